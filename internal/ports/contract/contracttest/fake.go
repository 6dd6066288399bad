// Package contracttest provides an in-memory credibility contract for tests.
package contracttest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"credpost/internal/core/post"
	"credpost/internal/core/user"
	contractPort "credpost/internal/ports/contract"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Vote is one recorded vote call.
type Vote struct {
	From     common.Address
	PostID   *big.Int
	IsUpvote bool
}

// FakeClient keeps posts and users in maps. Unknown posts read back with a
// zero creator, like unallocated slots on chain. Each vote counts as one.
type FakeClient struct {
	mu    sync.Mutex
	posts map[string]*post.Post
	users map[common.Address]*user.User

	Votes   []Vote
	Created []*big.Int
	Reads   int

	// Injected failures, keyed by post id where it applies.
	ReadErrs  map[string]error
	UserErr   error
	CreateErr error
	VoteErr   error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		posts:    make(map[string]*post.Post),
		users:    make(map[common.Address]*user.User),
		ReadErrs: make(map[string]error),
	}
}

// SetPost stores p as the on-chain record for p.ID.
func (f *FakeClient) SetPost(p *post.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[p.ID.String()] = clonePost(p)
}

func (f *FakeClient) SetUser(u *user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.Address] = &cp
}

func (f *FakeClient) CreatePost(ctx context.Context, from common.Address, postID *big.Int) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	key := postID.String()
	if _, ok := f.posts[key]; ok {
		return nil, fmt.Errorf("%w: post exists", contractPort.ErrTransactionReverted)
	}
	f.posts[key] = &post.Post{
		ID:        new(big.Int).Set(postID),
		Creator:   from,
		Upvotes:   big.NewInt(0),
		Downvotes: big.NewInt(0),
	}
	f.Created = append(f.Created, new(big.Int).Set(postID))
	return receipt(), nil
}

func (f *FakeClient) Vote(ctx context.Context, from common.Address, postID *big.Int, isUpvote bool) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Votes = append(f.Votes, Vote{From: from, PostID: new(big.Int).Set(postID), IsUpvote: isUpvote})
	if f.VoteErr != nil {
		return nil, f.VoteErr
	}
	p, ok := f.posts[postID.String()]
	if !ok || p.IsFinalized {
		return nil, fmt.Errorf("%w: cannot vote", contractPort.ErrTransactionReverted)
	}
	if isUpvote {
		p.Upvotes = new(big.Int).Add(p.Upvotes, big.NewInt(1))
	} else {
		p.Downvotes = new(big.Int).Add(p.Downvotes, big.NewInt(1))
	}
	return receipt(), nil
}

func (f *FakeClient) GetPost(ctx context.Context, postID *big.Int) (*post.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if err := f.ReadErrs[postID.String()]; err != nil {
		return nil, err
	}
	p, ok := f.posts[postID.String()]
	if !ok {
		return &post.Post{ID: new(big.Int).Set(postID), Upvotes: big.NewInt(0), Downvotes: big.NewInt(0)}, nil
	}
	return clonePost(p), nil
}

func (f *FakeClient) GetUser(ctx context.Context, account common.Address) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	u, ok := f.users[account]
	if !ok {
		return &user.User{Address: account, CredibilityScore: big.NewInt(0), SuccessfulPosts: big.NewInt(0)}, nil
	}
	cp := *u
	return &cp, nil
}

func clonePost(p *post.Post) *post.Post {
	cp := *p
	cp.ID = new(big.Int).Set(p.ID)
	if p.Upvotes != nil {
		cp.Upvotes = new(big.Int).Set(p.Upvotes)
	}
	if p.Downvotes != nil {
		cp.Downvotes = new(big.Int).Set(p.Downvotes)
	}
	return &cp
}

func receipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x01")}
}
