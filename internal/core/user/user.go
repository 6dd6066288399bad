package user

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// User holds the reputation metrics the contract keeps for an account.
type User struct {
	Address          common.Address `json:"address"`
	CredibilityScore *big.Int       `json:"credibilityScore"`
	SuccessfulPosts  *big.Int       `json:"successfulPosts"`
}
