package postapp

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"credpost/internal/core/event"
	postEntity "credpost/internal/core/post"
	contractPort "credpost/internal/ports/contract"
	postPort "credpost/internal/ports/post"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParallelReads bounds concurrent getPost calls during one refresh.
const maxParallelReads = 8

type PostService struct {
	Contract  contractPort.Client
	Discovery postPort.Discovery
	Indexer   postPort.Indexer // only used when Discovery is a *post.Registry
	Logger    *zap.Logger
}

func NewPostService(
	contract contractPort.Client,
	discovery postPort.Discovery,
	indexer postPort.Indexer,
	logger *zap.Logger,
) *PostService {
	return &PostService{
		Contract:  contract,
		Discovery: discovery,
		Indexer:   indexer,
		Logger:    logger,
	}
}

func (s *PostService) registry() (*postEntity.Registry, bool) {
	r, ok := s.Discovery.(*postEntity.Registry)
	return r, ok
}

// Seed fills the registry from chain history. It returns the first block live
// tracking must cover so nothing mined during the scan is missed, or 0 when
// nothing was scanned (probe discovery).
func (s *PostService) Seed(ctx context.Context) (uint64, error) {
	registry, ok := s.registry()
	if !ok || s.Indexer == nil {
		return 0, nil
	}
	ids, head, err := s.Indexer.ScanPostIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan PostCreated history: %w", err)
	}
	added := registry.Add(ids...)
	s.Logger.Info("✅ Post registry seeded",
		zap.Int("scanned", len(ids)), zap.Int("added", added), zap.Uint64("head", head))
	return head + 1, nil
}

// Track records ids announced by PostCreated events.
func (s *PostService) Track(ev event.Event) {
	registry, ok := s.registry()
	if !ok || ev.Kind != event.PostCreated || ev.PostID == nil {
		return
	}
	if registry.Add(ev.PostID) > 0 {
		s.Logger.Info("📝 Tracking new post", zap.String("postID", ev.PostID.String()))
	}
}

// Reset forgets every tracked id.
func (s *PostService) Reset() {
	if registry, ok := s.registry(); ok {
		registry.Reset()
	}
}

// ListPosts reads every discovered id. A failed or unused slot is skipped so
// one missing record does not abort the rest of the refresh. The result keeps
// discovery order.
func (s *PostService) ListPosts(ctx context.Context) ([]*postEntity.Post, error) {
	ids, err := s.Discovery.PostIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover post ids: %w", err)
	}

	slots := make([]*postEntity.Post, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.Contract.GetPost(gctx, id)
			if err != nil {
				if errors.Is(err, contractPort.ErrNotFound) {
					s.Logger.Debug("No post found", zap.String("postID", id.String()))
				} else {
					s.Logger.Warn("⚠️ Could not read post", zap.String("postID", id.String()), zap.Error(err))
				}
				return nil
			}
			if p.Exists() {
				slots[i] = p
			}
			return nil
		})
	}
	_ = g.Wait()

	posts := make([]*postEntity.Post, 0, len(ids))
	for _, p := range slots {
		if p != nil {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (s *PostService) GetPost(ctx context.Context, postID *big.Int) (*postEntity.Post, error) {
	return s.Contract.GetPost(ctx, postID)
}

// CreatePost submits createPost and waits for it to be mined.
func (s *PostService) CreatePost(ctx context.Context, from common.Address, postID *big.Int) error {
	s.Logger.Info("🚀 CreatePost called", zap.String("postID", postID.String()), zap.Stringer("from", from))

	receipt, err := s.Contract.CreatePost(ctx, from, postID)
	if err != nil {
		s.Logger.Error("❌ Failed to create post", zap.String("postID", postID.String()), zap.Error(err))
		return fmt.Errorf("create post %s: %w", postID, err)
	}

	if registry, ok := s.registry(); ok {
		registry.Add(postID)
	}
	s.Logger.Info("✅ Post created", zap.String("postID", postID.String()), zap.Stringer("tx", receipt.TxHash))
	return nil
}

// Vote submits vote and waits for it to be mined. Existence and finalization
// are left to the contract.
func (s *PostService) Vote(ctx context.Context, from common.Address, postID *big.Int, isUpvote bool) error {
	s.Logger.Info("🗳️ Vote called", zap.String("postID", postID.String()), zap.Bool("isUpvote", isUpvote))

	receipt, err := s.Contract.Vote(ctx, from, postID, isUpvote)
	if err != nil {
		s.Logger.Error("❌ Failed to vote", zap.String("postID", postID.String()), zap.Error(err))
		return fmt.Errorf("vote on post %s: %w", postID, err)
	}

	s.Logger.Info("✅ Vote mined", zap.String("postID", postID.String()), zap.Stringer("tx", receipt.TxHash))
	return nil
}
