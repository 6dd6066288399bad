package sessionapp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"credpost/internal/core/event"
	postEntity "credpost/internal/core/post"
	postapp "credpost/internal/core/post/service"
	"credpost/internal/core/session"
	userEntity "credpost/internal/core/user"
	userapp "credpost/internal/core/user/service"
	eventsPort "credpost/internal/ports/events"
	providerPort "credpost/internal/ports/provider"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrNotConnected      = errors.New("wallet not connected")
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrSessionReset      = errors.New("session was reset while connecting")
	ErrInvalidPostID     = postEntity.ErrInvalidID
)

// Controller drives the Disconnected -> Connecting -> Connected lifecycle and
// owns everything scoped to a session: the event feed, bus subscriptions and
// the snapshot the UI renders.
type Controller struct {
	Provider providerPort.Provider
	Posts    *postapp.PostService
	Users    *userapp.UserService
	Bus      eventsPort.Bus
	Feed     eventsPort.Feed // may be nil
	Logger   *zap.Logger

	mu          sync.Mutex
	state       session.State
	epoch       uint64
	current     *session.Session
	cancel      context.CancelFunc
	subs        []eventsPort.Subscription
	user        *userEntity.User
	posts       []*postEntity.Post
	refreshedAt time.Time

	// Reads are stamped before they start; a result older than the last
	// applied one is dropped.
	postsIssued, postsApplied uint64
	userIssued, userApplied   uint64

	// Keys with a refresh loop running; true means another pass is owed.
	pending map[string]bool
}

func NewController(
	provider providerPort.Provider,
	posts *postapp.PostService,
	users *userapp.UserService,
	bus eventsPort.Bus,
	feed eventsPort.Feed,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		Provider: provider,
		Posts:    posts,
		Users:    users,
		Bus:      bus,
		Feed:     feed,
		Logger:   logger,
		state:    session.Disconnected,
		pending:  make(map[string]bool),
	}
}

func (c *Controller) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the live session, or nil when not connected.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	posts := make([]*postEntity.Post, len(c.posts))
	copy(posts, c.posts)
	return session.Snapshot{
		State:       c.state,
		Session:     c.current,
		User:        c.user,
		Posts:       posts,
		RefreshedAt: c.refreshedAt,
	}
}

// Connect requests an account from the provider, registers event
// subscriptions and performs the initial read. Connecting twice while
// connected returns the live session.
func (c *Controller) Connect(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	switch c.state {
	case session.Connecting:
		c.mu.Unlock()
		return nil, ErrConnectInProgress
	case session.Connected:
		s := c.current
		c.mu.Unlock()
		return s, nil
	}
	c.state = session.Connecting
	epoch := c.epoch
	c.mu.Unlock()

	c.Logger.Info("🔌 Connecting wallet")

	account, err := c.Provider.RequestAccounts(ctx)
	if err != nil {
		c.failConnect(epoch, err)
		return nil, fmt.Errorf("request accounts: %w", err)
	}
	chainID, err := c.Provider.ChainID(ctx)
	if err != nil {
		c.failConnect(epoch, err)
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	sess := session.New(account, chainID)
	subs, err := c.subscribe(sess)
	if err != nil {
		unsubscribeAll(subs)
		c.failConnect(epoch, err)
		return nil, fmt.Errorf("subscribe to contract events: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.epoch != epoch {
		// Reset fired while the provider prompt was open.
		c.mu.Unlock()
		cancel()
		unsubscribeAll(subs)
		return nil, ErrSessionReset
	}
	c.state = session.Connected
	c.current = sess
	c.cancel = cancel
	c.subs = subs
	c.mu.Unlock()

	c.Logger.Info("✅ Wallet connected",
		zap.Stringer("account", sess.Account),
		zap.String("chainID", chainID.String()),
		zap.Stringer("sessionID", sess.ID),
	)

	from, err := c.Posts.Seed(ctx)
	if err != nil {
		c.Logger.Warn("⚠️ Could not seed post registry", zap.Error(err))
	}
	if c.Feed != nil {
		go c.Feed.Run(sessCtx, from)
	}

	c.RefreshUser(ctx)
	c.RefreshPosts(ctx)
	return sess, nil
}

func (c *Controller) failConnect(epoch uint64, err error) {
	c.mu.Lock()
	if c.epoch == epoch && c.state == session.Connecting {
		c.state = session.Disconnected
	}
	c.mu.Unlock()
	c.Logger.Error("❌ Error connecting wallet", zap.Error(err))
}

func (c *Controller) subscribe(sess *session.Session) ([]eventsPort.Subscription, error) {
	var subs []eventsPort.Subscription

	onCreated := func(ctx context.Context, ev event.Event) {
		c.Logger.Info("New post created", zap.String("postID", bigString(ev.PostID)))
		c.Posts.Track(ev)
		c.backgroundRefresh(ctx, sess, false)
	}
	onVoteOrFinalize := func(ctx context.Context, ev event.Event) {
		c.Logger.Info("Post activity",
			zap.String("kind", string(ev.Kind)),
			zap.String("postID", bigString(ev.PostID)),
			zap.Bool("isUpvote", ev.IsUpvote),
		)
		c.backgroundRefresh(ctx, sess, true)
	}

	sub, err := c.Bus.Subscribe(onCreated, event.PostCreated)
	if err != nil {
		return subs, err
	}
	subs = append(subs, sub)

	sub, err = c.Bus.Subscribe(onVoteOrFinalize, event.Voted, event.PostFinalized)
	if err != nil {
		return subs, err
	}
	return append(subs, sub), nil
}

// backgroundRefresh collapses refreshes fired by near-simultaneous events.
// A request that lands while a pass is running owes one more pass, so the
// last event is always followed by a read that started after it.
func (c *Controller) backgroundRefresh(ctx context.Context, sess *session.Session, withUser bool) {
	key := sess.ID.String()
	c.coalesce("posts:"+key, func() { c.refreshPosts(ctx, sess) })
	if withUser {
		c.coalesce("user:"+key, func() { c.refreshUser(ctx, sess) })
	}
}

func (c *Controller) coalesce(key string, refresh func()) {
	c.mu.Lock()
	if _, running := c.pending[key]; running {
		c.pending[key] = true
		c.mu.Unlock()
		return
	}
	c.pending[key] = false
	c.mu.Unlock()

	for {
		refresh()

		c.mu.Lock()
		if !c.pending[key] {
			delete(c.pending, key)
			c.mu.Unlock()
			return
		}
		c.pending[key] = false
		c.mu.Unlock()
	}
}

// RefreshPosts re-reads every discovered post and replaces the cached list.
// Read failures are logged, never returned.
func (c *Controller) RefreshPosts(ctx context.Context) {
	if sess := c.Session(); sess != nil {
		c.refreshPosts(ctx, sess)
	}
}

// RefreshUser re-reads the connected account's metrics. On failure the
// cached user becomes absent.
func (c *Controller) RefreshUser(ctx context.Context) {
	if sess := c.Session(); sess != nil {
		c.refreshUser(ctx, sess)
	}
}

func (c *Controller) refreshPosts(ctx context.Context, sess *session.Session) {
	c.mu.Lock()
	c.postsIssued++
	seq := c.postsIssued
	c.mu.Unlock()

	posts, err := c.Posts.ListPosts(ctx)
	if err != nil {
		c.Logger.Error("❌ Error loading posts", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(sess) || seq < c.postsApplied {
		return
	}
	c.postsApplied = seq
	c.posts = posts
	c.refreshedAt = time.Now()
}

func (c *Controller) refreshUser(ctx context.Context, sess *session.Session) {
	c.mu.Lock()
	c.userIssued++
	seq := c.userIssued
	c.mu.Unlock()

	u, err := c.Users.GetUser(ctx, sess.Account)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrent(sess) || seq < c.userApplied {
		return
	}
	c.userApplied = seq
	if err != nil {
		c.user = nil
		return
	}
	c.user = u
	c.refreshedAt = time.Now()
}

// isCurrent must be called with c.mu held.
func (c *Controller) isCurrent(sess *session.Session) bool {
	return c.current != nil && c.current.ID == sess.ID
}

func (c *Controller) requireSession() (*session.Session, error) {
	sess := c.Session()
	if sess == nil {
		return nil, ErrNotConnected
	}
	return sess, nil
}

// CreatePost submits the transaction, waits for it, then reloads the post list.
func (c *Controller) CreatePost(ctx context.Context, postID *big.Int) error {
	if !postEntity.ValidID(postID) {
		return ErrInvalidPostID
	}
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	if err := c.Posts.CreatePost(ctx, sess.Account, postID); err != nil {
		return err
	}
	c.refreshPosts(ctx, sess)
	return nil
}

// Vote submits the vote, waits for it, then reloads the posts and the user so
// the displayed counters are the contract's.
func (c *Controller) Vote(ctx context.Context, postID *big.Int, isUpvote bool) error {
	if !postEntity.ValidID(postID) {
		return ErrInvalidPostID
	}
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	if err := c.Posts.Vote(ctx, sess.Account, postID, isUpvote); err != nil {
		return err
	}
	c.refreshPosts(ctx, sess)
	c.refreshUser(ctx, sess)
	return nil
}

// Disconnect is a user-initiated reset.
func (c *Controller) Disconnect() {
	c.Reset("disconnect")
}

func (c *Controller) HandleAccountsChanged(accounts []common.Address) {
	c.Logger.Info("👤 Accounts changed", zap.Int("count", len(accounts)))
	c.Reset("accountsChanged")
}

func (c *Controller) HandleChainChanged(chainID *big.Int) {
	c.Logger.Info("⛓️ Chain changed", zap.String("chainID", bigString(chainID)))
	c.Reset("chainChanged")
}

// Reset discards all session state and returns to Disconnected. Nothing from
// the previous session survives; in-flight reads for it are dropped.
func (c *Controller) Reset(reason string) {
	c.mu.Lock()
	old := c.current
	cancel := c.cancel
	subs := c.subs

	c.state = session.Disconnected
	c.epoch++
	c.current = nil
	c.cancel = nil
	c.subs = nil
	c.user = nil
	c.posts = nil
	c.refreshedAt = time.Time{}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	unsubscribeAll(subs)
	c.Posts.Reset()

	ev := event.Event{Kind: event.SessionReset, Reason: reason}
	if old != nil {
		ev.Account = old.Account
		c.Logger.Info("🛑 Session reset", zap.String("reason", reason), zap.Stringer("sessionID", old.ID))
	} else {
		c.Logger.Info("🛑 Session reset while disconnected", zap.String("reason", reason))
	}
	if err := c.Bus.Publish(context.Background(), ev); err != nil {
		c.Logger.Warn("⚠️ Could not publish session reset", zap.Error(err))
	}
}

func unsubscribeAll(subs []eventsPort.Subscription) {
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func bigString(b *big.Int) string {
	if b == nil {
		return ""
	}
	return b.String()
}
