package userapp

import (
	"context"
	"fmt"

	userEntity "credpost/internal/core/user"
	contractPort "credpost/internal/ports/contract"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// UserService reads reputation metrics for an account.
type UserService struct {
	Contract contractPort.Client
	Logger   *zap.Logger
}

func NewUserService(contract contractPort.Client, logger *zap.Logger) *UserService {
	return &UserService{
		Contract: contract,
		Logger:   logger,
	}
}

func (s *UserService) GetUser(ctx context.Context, account common.Address) (*userEntity.User, error) {
	u, err := s.Contract.GetUser(ctx, account)
	if err != nil {
		s.Logger.Error("❌ Error loading user info", zap.Stringer("account", account), zap.Error(err))
		return nil, fmt.Errorf("load user %s: %w", account.Hex(), err)
	}
	return u, nil
}
