package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Kind string

const (
	PostCreated   Kind = "PostCreated"
	Voted         Kind = "Voted"
	PostFinalized Kind = "PostFinalized"

	// SessionReset is published locally when the session is torn down.
	SessionReset Kind = "SessionReset"
)

// ContractKinds are the kinds emitted by the contract itself.
var ContractKinds = []Kind{PostCreated, Voted, PostFinalized}

// Event is a decoded contract log, or a local session notification.
// Fields that do not apply to a kind stay zero.
type Event struct {
	Kind        Kind           `json:"kind"`
	PostID      *big.Int       `json:"postId,omitempty"`
	Account     common.Address `json:"account"`
	IsUpvote    bool           `json:"isUpvote,omitempty"`
	Weight      *big.Int       `json:"weight,omitempty"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
	TxHash      common.Hash    `json:"txHash"`
	Reason      string         `json:"reason,omitempty"`
}
