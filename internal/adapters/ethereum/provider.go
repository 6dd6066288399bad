package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	providerPort "credpost/internal/ports/provider"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Provider wraps the wallet's JSON-RPC endpoint. The wallet holds the keys:
// transactions are signed on its side through eth_sendTransaction.
type Provider struct {
	RPC         *rpc.Client
	Eth         *ethclient.Client
	ReceiptPoll time.Duration
	Logger      *zap.Logger
}

func NewProvider(client *rpc.Client, receiptPoll time.Duration, logger *zap.Logger) *Provider {
	if receiptPoll <= 0 {
		receiptPoll = time.Second
	}
	return &Provider{
		RPC:         client,
		Eth:         ethclient.NewClient(client),
		ReceiptPoll: receiptPoll,
		Logger:      logger,
	}
}

// RequestAccounts prompts the wallet and returns the active account. Plain
// nodes do not implement eth_requestAccounts; eth_accounts is used instead.
func (p *Provider) RequestAccounts(ctx context.Context) (common.Address, error) {
	var accounts []common.Address
	err := p.RPC.CallContext(ctx, &accounts, "eth_requestAccounts")
	if err != nil && isMethodNotFound(err) {
		p.Logger.Info("eth_requestAccounts not supported, falling back to eth_accounts")
		err = p.RPC.CallContext(ctx, &accounts, "eth_accounts")
	}
	if err != nil {
		return common.Address{}, providerError(err)
	}
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("%w: no accounts exposed", providerPort.ErrProviderUnavailable)
	}
	return accounts[0], nil
}

func (p *Provider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.RPC.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, providerError(err)
	}
	return accounts, nil
}

func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := p.Eth.ChainID(ctx)
	if err != nil {
		return nil, providerError(err)
	}
	return id, nil
}

// SendTransaction asks the wallet to sign and broadcast a call to `to`.
func (p *Provider) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	args := map[string]interface{}{
		"from": from,
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var hash common.Hash
	if err := p.RPC.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		if isUserRejected(err) {
			return common.Hash{}, fmt.Errorf("%w: %w", providerPort.ErrUserRejected, err)
		}
		return common.Hash{}, err
	}
	return hash, nil
}

// WaitMined polls for the receipt until the transaction is mined or ctx ends.
func (p *Provider) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(p.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := p.Eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, goethereum.NotFound) {
			p.Logger.Debug("Receipt not available yet", zap.Stringer("tx", hash), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
