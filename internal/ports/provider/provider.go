package provider

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrUserRejected        = errors.New("request rejected by user")
)

// Provider is the account side of the wallet: who is connected and on which chain.
type Provider interface {
	RequestAccounts(ctx context.Context) (common.Address, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type AccountsHandler func(accounts []common.Address)

type ChainHandler func(chainID *big.Int)
