package workers

import (
	"context"
	"math/big"
	"time"

	providerPort "credpost/internal/ports/provider"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ProviderWatcher turns the provider's account and chain state into change
// notifications by polling it.
type ProviderWatcher struct {
	Provider          providerPort.Provider
	Interval          time.Duration
	OnAccountsChanged providerPort.AccountsHandler
	OnChainChanged    providerPort.ChainHandler
	Logger            *zap.Logger
}

func NewProviderWatcher(provider providerPort.Provider, interval time.Duration, logger *zap.Logger) *ProviderWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ProviderWatcher{
		Provider: provider,
		Interval: interval,
		Logger:   logger,
	}
}

func (w *ProviderWatcher) Run(ctx context.Context) {
	w.Logger.Info("🚀 ProviderWatcher started")

	accounts, accountsKnown := w.readAccounts(ctx)
	chainID, _ := w.readChain(ctx)

	for {
		sleep(ctx, w.Interval)
		select {
		case <-ctx.Done():
			w.Logger.Info("🛑 Provider watcher stopped")
			return
		default:
		}

		if current, ok := w.readAccounts(ctx); ok {
			if accountsKnown && !sameAccounts(accounts, current) && w.OnAccountsChanged != nil {
				w.OnAccountsChanged(current)
			}
			accounts, accountsKnown = current, true
		}

		if current, ok := w.readChain(ctx); ok {
			if chainID != nil && chainID.Cmp(current) != 0 && w.OnChainChanged != nil {
				w.OnChainChanged(current)
			}
			chainID = current
		}
	}
}

func (w *ProviderWatcher) readAccounts(ctx context.Context) ([]common.Address, bool) {
	accounts, err := w.Provider.Accounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.Logger.Warn("⚠️ Could not read provider accounts", zap.Error(err))
		}
		return nil, false
	}
	return accounts, true
}

func (w *ProviderWatcher) readChain(ctx context.Context) (*big.Int, bool) {
	id, err := w.Provider.ChainID(ctx)
	if err != nil || id == nil {
		if err != nil && ctx.Err() == nil {
			w.Logger.Warn("⚠️ Could not read provider chain id", zap.Error(err))
		}
		return nil, false
	}
	return id, true
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
