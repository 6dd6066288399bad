package post

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidID is returned for ids that do not fit the contract's uint256.
var ErrInvalidID = errors.New("invalid post id")

// Post is the client-side copy of a post record read from the contract.
// Every field comes straight from getPost; nothing is computed locally.
type Post struct {
	ID          *big.Int       `json:"postId"`
	Creator     common.Address `json:"creator"`
	Upvotes     *big.Int       `json:"upvotes"`
	Downvotes   *big.Int       `json:"downvotes"`
	IsFinalized bool           `json:"isFinalized"`
}

// Exists reports whether the slot is allocated. The contract returns the zero
// address as creator for ids that were never created.
func (p *Post) Exists() bool {
	return p != nil && p.Creator != (common.Address{})
}

// ShortCreator formats the creator as 0x1234...abcd.
func (p *Post) ShortCreator() string {
	hex := p.Creator.Hex()
	return fmt.Sprintf("%s...%s", hex[:6], hex[len(hex)-4:])
}

// ValidID reports whether id can be ABI-encoded as a uint256 without being
// truncated onto another post.
func ValidID(id *big.Int) bool {
	return id != nil && id.Sign() >= 0 && id.BitLen() <= 256
}

// ParseID parses a decimal post id. Ids are uint256 on chain, so negative,
// empty and out-of-range values are rejected.
func ParseID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %s is outside uint256", ErrInvalidID, s)
	}
	return id, nil
}
