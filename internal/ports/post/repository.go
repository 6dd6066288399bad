package post

import (
	"context"
	"math/big"

	"credpost/internal/core/post"
)

// Discovery lists the post ids worth reading.
type Discovery interface {
	PostIDs(ctx context.Context) ([]*big.Int, error)
}

// Indexer scans chain history for created post ids. It also returns the
// block the scan stopped at, so live tracking can continue right after it.
type Indexer interface {
	ScanPostIDs(ctx context.Context) ([]*big.Int, uint64, error)
}

// DTOs for the HTTP and CLI surfaces
type PostDTO struct {
	ID           string `json:"postId"`
	Creator      string `json:"creator"`
	ShortCreator string `json:"shortCreator"`
	Upvotes      string `json:"upvotes"`
	Downvotes    string `json:"downvotes"`
	IsFinalized  bool   `json:"isFinalized"`
}

func NewPostDTO(p *post.Post) *PostDTO {
	return &PostDTO{
		ID:           bigString(p.ID),
		Creator:      p.Creator.Hex(),
		ShortCreator: p.ShortCreator(),
		Upvotes:      bigString(p.Upvotes),
		Downvotes:    bigString(p.Downvotes),
		IsFinalized:  p.IsFinalized,
	}
}

func NewPostDTOs(posts []*post.Post) []*PostDTO {
	dtos := make([]*PostDTO, 0, len(posts))
	for _, p := range posts {
		dtos = append(dtos, NewPostDTO(p))
	}
	return dtos
}

func bigString(b *big.Int) string {
	if b == nil {
		return ""
	}
	return b.String()
}
