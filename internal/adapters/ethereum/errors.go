package ethereum

import (
	"errors"
	"fmt"
	"strings"

	contractPort "credpost/internal/ports/contract"
	providerPort "credpost/internal/ports/provider"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC / EIP-1193 error codes the adapter reacts to.
const (
	codeUserRejected   = 4001
	codeUnauthorized   = 4100
	codeMethodNotFound = -32601
	codeExecReverted   = 3
)

func rpcCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

func isUserRejected(err error) bool {
	code, ok := rpcCode(err)
	return ok && code == codeUserRejected
}

func isMethodNotFound(err error) bool {
	code, ok := rpcCode(err)
	return ok && code == codeMethodNotFound
}

func isRevert(err error) bool {
	if code, ok := rpcCode(err); ok && code == codeExecReverted {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}

// providerError maps account-request failures onto the provider port errors.
func providerError(err error) error {
	if isUserRejected(err) {
		return fmt.Errorf("%w: %w", providerPort.ErrUserRejected, err)
	}
	if code, ok := rpcCode(err); ok && code == codeUnauthorized {
		return fmt.Errorf("%w: %w", providerPort.ErrUserRejected, err)
	}
	return fmt.Errorf("%w: %w", providerPort.ErrProviderUnavailable, err)
}

// txError maps submission failures onto the contract port errors.
func txError(method string, err error) error {
	switch {
	case errors.Is(err, providerPort.ErrUserRejected), isUserRejected(err):
		return fmt.Errorf("%s: %w: %w", method, contractPort.ErrTransactionRejected, err)
	case isRevert(err):
		return fmt.Errorf("%s: %w: %w", method, contractPort.ErrTransactionReverted, err)
	default:
		return fmt.Errorf("%s: %w", method, err)
	}
}

// readError maps eth_call failures onto the contract port errors.
func readError(method string, err error) error {
	if isRevert(err) {
		return fmt.Errorf("%s: %w: %w", method, contractPort.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", method, contractPort.ErrReadFailure, err)
}
