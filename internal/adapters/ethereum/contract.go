package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"credpost/internal/core/event"
	postEntity "credpost/internal/core/post"
	userEntity "credpost/internal/core/user"
	contractPort "credpost/internal/ports/contract"
	eventsPort "credpost/internal/ports/events"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethevent "github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

// Backend is the read side of the node connection. *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call goethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q goethereum.FilterQuery, ch chan<- types.Log) (goethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Signer submits transactions through the wallet. *Provider satisfies it.
type Signer interface {
	SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type ContractOptions struct {
	TxTimeout   time.Duration // zero waits indefinitely
	ReadTimeout time.Duration // zero waits indefinitely
	DeployBlock uint64
	ScanChunk   uint64
}

// ContractClient is the typed proxy over the credibility contract at Address.
type ContractClient struct {
	Address common.Address
	ABI     abi.ABI
	Backend Backend
	Signer  Signer
	Options ContractOptions
	Logger  *zap.Logger
}

func NewContractClient(address common.Address, backend Backend, signer Signer, opts ContractOptions, logger *zap.Logger) *ContractClient {
	if opts.ScanChunk == 0 {
		opts.ScanChunk = 5000
	}
	return &ContractClient{
		Address: address,
		ABI:     CredibilityABI,
		Backend: backend,
		Signer:  signer,
		Options: opts,
		Logger:  logger,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ----- writes -----

func (c *ContractClient) CreatePost(ctx context.Context, from common.Address, postID *big.Int) (*types.Receipt, error) {
	if !postEntity.ValidID(postID) {
		return nil, fmt.Errorf("createPost: %w: %s", postEntity.ErrInvalidID, postID)
	}
	return c.transact(ctx, from, "createPost", postID)
}

func (c *ContractClient) Vote(ctx context.Context, from common.Address, postID *big.Int, isUpvote bool) (*types.Receipt, error) {
	if !postEntity.ValidID(postID) {
		return nil, fmt.Errorf("vote: %w: %s", postEntity.ErrInvalidID, postID)
	}
	return c.transact(ctx, from, "vote", postID, isUpvote)
}

func (c *ContractClient) transact(ctx context.Context, from common.Address, method string, args ...interface{}) (*types.Receipt, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack arguments: %w", method, err)
	}

	ctx, cancel := withTimeout(ctx, c.Options.TxTimeout)
	defer cancel()

	hash, err := c.Signer.SendTransaction(ctx, from, c.Address, data)
	if err != nil {
		return nil, txError(method, err)
	}
	c.Logger.Info("📤 Transaction submitted", zap.String("method", method), zap.Stringer("tx", hash))

	receipt, err := c.Signer.WaitMined(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%s: wait for %s: %w", method, hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s: %w: tx %s", method, contractPort.ErrTransactionReverted, hash)
	}
	return receipt, nil
}

// ----- reads -----

func (c *ContractClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack arguments: %w", method, err)
	}

	ctx, cancel := withTimeout(ctx, c.Options.ReadTimeout)
	defer cancel()

	out, err := c.Backend.CallContract(ctx, goethereum.CallMsg{To: &c.Address, Data: data}, nil)
	if err != nil {
		return nil, readError(method, err)
	}
	if len(out) == 0 {
		// No code at the address, or a revert without data on some nodes.
		return nil, readError(method, errors.New("empty return data, execution reverted"))
	}
	res, err := c.ABI.Unpack(method, out)
	if err != nil || len(res) == 0 {
		return nil, fmt.Errorf("%s: %w: decode: %v", method, contractPort.ErrReadFailure, err)
	}
	return res, nil
}

func (c *ContractClient) GetPost(ctx context.Context, postID *big.Int) (*postEntity.Post, error) {
	if !postEntity.ValidID(postID) {
		return nil, fmt.Errorf("getPost: %w: %s", postEntity.ErrInvalidID, postID)
	}
	res, err := c.call(ctx, "getPost", postID)
	if err != nil {
		return nil, err
	}
	t, ok := abi.ConvertType(res[0], new(postTuple)).(*postTuple)
	if !ok {
		return nil, fmt.Errorf("getPost: %w: unexpected tuple %T", contractPort.ErrReadFailure, res[0])
	}
	return &postEntity.Post{
		ID:          new(big.Int).Set(postID),
		Creator:     t.UserId,
		Upvotes:     t.Upvotes,
		Downvotes:   t.Downvotes,
		IsFinalized: t.IsFinalized,
	}, nil
}

func (c *ContractClient) GetUser(ctx context.Context, account common.Address) (*userEntity.User, error) {
	res, err := c.call(ctx, "getUser", account)
	if err != nil {
		return nil, err
	}
	t, ok := abi.ConvertType(res[0], new(userTuple)).(*userTuple)
	if !ok {
		return nil, fmt.Errorf("getUser: %w: unexpected tuple %T", contractPort.ErrReadFailure, res[0])
	}
	return &userEntity.User{
		Address:          account,
		CredibilityScore: t.CredibilityScore,
		SuccessfulPosts:  t.SuccessfulPosts,
	}, nil
}

// ----- events -----

func (c *ContractClient) query(from, to *big.Int, names ...string) goethereum.FilterQuery {
	ids := make([]common.Hash, 0, len(names))
	for _, n := range names {
		ids = append(ids, c.ABI.Events[n].ID)
	}
	return goethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{c.Address},
		Topics:    [][]common.Hash{ids},
	}
}

func contractEventNames() []string {
	names := make([]string, 0, len(event.ContractKinds))
	for _, k := range event.ContractKinds {
		names = append(names, string(k))
	}
	return names
}

// DecodeEvent turns a raw contract log into an Event.
func (c *ContractClient) DecodeEvent(log types.Log) (event.Event, error) {
	if len(log.Topics) == 0 {
		return event.Event{}, errors.New("anonymous log")
	}
	def, err := c.ABI.EventByID(log.Topics[0])
	if err != nil {
		return event.Event{}, err
	}
	values, err := def.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return event.Event{}, fmt.Errorf("unpack %s: %w", def.Name, err)
	}

	ev := event.Event{
		Kind:        event.Kind(def.Name),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}
	var ok bool
	switch ev.Kind {
	case event.PostCreated:
		if len(values) == 2 {
			ev.PostID, ok = values[0].(*big.Int)
			if ok {
				ev.Account, ok = values[1].(common.Address)
			}
		}
	case event.Voted:
		if len(values) == 4 {
			ev.PostID, ok = values[0].(*big.Int)
			if ok {
				ev.Account, ok = values[1].(common.Address)
			}
			if ok {
				ev.IsUpvote, ok = values[2].(bool)
			}
			if ok {
				ev.Weight, ok = values[3].(*big.Int)
			}
		}
	case event.PostFinalized:
		if len(values) == 1 {
			ev.PostID, ok = values[0].(*big.Int)
		}
	}
	if !ok {
		return event.Event{}, fmt.Errorf("unexpected %s payload", def.Name)
	}
	return ev, nil
}

func (c *ContractClient) decodeAll(logs []types.Log) []event.Event {
	events := make([]event.Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := c.DecodeEvent(l)
		if err != nil {
			c.Logger.Warn("⚠️ Skipping undecodable log", zap.Stringer("tx", l.TxHash), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events
}

func (c *ContractClient) LatestBlock(ctx context.Context) (uint64, error) {
	return c.Backend.BlockNumber(ctx)
}

// FilterEvents returns the contract's events in [from, to], in chain order.
func (c *ContractClient) FilterEvents(ctx context.Context, from, to uint64) ([]event.Event, error) {
	q := c.query(new(big.Int).SetUint64(from), new(big.Int).SetUint64(to), contractEventNames()...)
	logs, err := c.Backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return c.decodeAll(logs), nil
}

// SubscribeEvents streams newly mined contract events into sink. It needs a
// transport with subscription support (websocket or IPC).
func (c *ContractClient) SubscribeEvents(ctx context.Context, sink chan<- event.Event) (eventsPort.Stream, error) {
	logs := make(chan types.Log, 64)
	sub, err := c.Backend.SubscribeFilterLogs(ctx, c.query(nil, nil, contractEventNames()...), logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	return gethevent.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if l.Removed {
					continue
				}
				ev, err := c.DecodeEvent(l)
				if err != nil {
					c.Logger.Warn("⚠️ Skipping undecodable log", zap.Stringer("tx", l.TxHash), zap.Error(err))
					continue
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// ScanPostCreated returns the PostCreated events in [from, to], querying at
// most ScanChunk blocks per request.
func (c *ContractClient) ScanPostCreated(ctx context.Context, from, to uint64) ([]event.Event, error) {
	var events []event.Event
	for lo := from; lo <= to; lo += c.Options.ScanChunk {
		hi := lo + c.Options.ScanChunk - 1
		if hi > to || hi < lo {
			hi = to
		}
		q := c.query(new(big.Int).SetUint64(lo), new(big.Int).SetUint64(hi), string(event.PostCreated))
		logs, err := c.Backend.FilterLogs(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("filter PostCreated %d-%d: %w", lo, hi, err)
		}
		events = append(events, c.decodeAll(logs)...)
		if hi == to {
			break
		}
	}
	return events, nil
}

// ScanPostIDs collects every created post id from the deploy block to the
// chain head, ascending and without duplicates, and returns that head.
func (c *ContractClient) ScanPostIDs(ctx context.Context) ([]*big.Int, uint64, error) {
	head, err := c.Backend.BlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read head block: %w", err)
	}
	if head < c.Options.DeployBlock {
		return nil, head, nil
	}

	events, err := c.ScanPostCreated(ctx, c.Options.DeployBlock, head)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool, len(events))
	ids := make([]*big.Int, 0, len(events))
	for _, ev := range events {
		if ev.PostID == nil || seen[ev.PostID.String()] {
			continue
		}
		seen[ev.PostID.String()] = true
		ids = append(ids, ev.PostID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	c.Logger.Debug("PostCreated history scanned",
		zap.Uint64("from", c.Options.DeployBlock), zap.Uint64("to", head), zap.Int("ids", len(ids)))
	return ids, head, nil
}
