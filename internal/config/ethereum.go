package config

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RPCClient is the single connection to the wallet provider.
var RPCClient *rpc.Client

// InitEthereum dials the provider endpoint (http, ws or ipc).
func InitEthereum(ctx context.Context, s *Settings) (*rpc.Client, error) {
	client, err := rpc.DialContext(ctx, s.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial provider %s: %w", s.RPCURL, err)
	}

	RPCClient = client
	if Logger != nil {
		Logger.Info("✅ Provider connected", zap.String("rpc", s.RPCURL), zap.String("contract", s.ContractAddress.Hex()))
	}
	return client, nil
}
