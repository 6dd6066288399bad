package contract

import (
	"context"
	"errors"
	"math/big"

	"credpost/internal/core/post"
	"credpost/internal/core/user"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrTransactionRejected means the wallet refused to sign.
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrTransactionReverted means the contract refused the call, either at
	// submission (gas estimation) or in the mined receipt.
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrNotFound means the contract reverted a read for the given key.
	ErrNotFound = errors.New("record not found")
	// ErrReadFailure covers transport and decoding failures on reads.
	ErrReadFailure = errors.New("contract read failed")
)

// Client is the typed proxy over the credibility contract.
type Client interface {
	CreatePost(ctx context.Context, from common.Address, postID *big.Int) (*types.Receipt, error)
	Vote(ctx context.Context, from common.Address, postID *big.Int, isUpvote bool) (*types.Receipt, error)
	GetPost(ctx context.Context, postID *big.Int) (*post.Post, error)
	GetUser(ctx context.Context, account common.Address) (*user.User, error)
}
