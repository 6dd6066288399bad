package session

import (
	"math/big"
	"time"

	"credpost/internal/core/post"
	"credpost/internal/core/user"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
)

type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

// Session is the live connection to the wallet provider. A new Session,
// with a new ID, is created on every connect.
type Session struct {
	ID          uuid.UUID      `json:"id"`
	Account     common.Address `json:"account"`
	ChainID     *big.Int       `json:"chainId"`
	ConnectedAt time.Time      `json:"connectedAt"`
}

func New(account common.Address, chainID *big.Int) *Session {
	return &Session{
		ID:          uuid.Must(uuid.NewV4()),
		Account:     account,
		ChainID:     chainID,
		ConnectedAt: time.Now(),
	}
}

// Snapshot is the transient read-through cache the UI renders from.
// User is nil when the last user read failed.
type Snapshot struct {
	State       State        `json:"state"`
	Session     *Session     `json:"session,omitempty"`
	User        *user.User   `json:"user,omitempty"`
	Posts       []*post.Post `json:"posts"`
	RefreshedAt time.Time    `json:"refreshedAt"`
}
