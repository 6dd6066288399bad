package sessionapp

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"credpost/internal/adapters/memory"
	"credpost/internal/core/event"
	postEntity "credpost/internal/core/post"
	postapp "credpost/internal/core/post/service"
	"credpost/internal/core/session"
	userEntity "credpost/internal/core/user"
	userapp "credpost/internal/core/user/service"
	contractPort "credpost/internal/ports/contract"
	"credpost/internal/ports/contract/contracttest"
	postPort "credpost/internal/ports/post"
	providerPort "credpost/internal/ports/provider"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) RequestAccounts(ctx context.Context) (common.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *MockProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]common.Address), args.Error(1)
}

func (m *MockProvider) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

type stubFeed struct {
	mu   sync.Mutex
	ctx  context.Context
	from uint64
}

func (f *stubFeed) Run(ctx context.Context, from uint64) {
	f.mu.Lock()
	f.ctx = ctx
	f.from = from
	f.mu.Unlock()
	<-ctx.Done()
}

func (f *stubFeed) startBlock() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.from
}

type stubIndexer struct {
	ids  []*big.Int
	head uint64
}

func (s *stubIndexer) ScanPostIDs(ctx context.Context) ([]*big.Int, uint64, error) {
	return s.ids, s.head, nil
}

// gatedClient stalls the first GetPost after arm, once the read is done, until
// release is closed.
type gatedClient struct {
	*contracttest.FakeClient
	mu      sync.Mutex
	release chan struct{}
	stalled chan struct{}
}

func (g *gatedClient) arm() (stalled, release chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release = make(chan struct{})
	g.stalled = make(chan struct{})
	return g.stalled, g.release
}

func (g *gatedClient) GetPost(ctx context.Context, postID *big.Int) (*postEntity.Post, error) {
	p, err := g.FakeClient.GetPost(ctx, postID)
	g.mu.Lock()
	release, stalled := g.release, g.stalled
	g.release, g.stalled = nil, nil
	g.mu.Unlock()
	if release != nil {
		close(stalled)
		<-release
	}
	return p, err
}

func (f *stubFeed) context() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx
}

type fixture struct {
	provider *MockProvider
	contract *contracttest.FakeClient
	bus      *memory.EventBus
	feed     *stubFeed
	ctl      *Controller
}

func newFixture(t *testing.T, discovery postPort.Discovery) *fixture {
	return newFixtureWith(t, discovery, nil, nil)
}

// newFixtureWith reads posts through reads when given; users always come from
// the fake contract.
func newFixtureWith(t *testing.T, discovery postPort.Discovery, reads contractPort.Client, indexer postPort.Indexer) *fixture {
	t.Helper()
	f := &fixture{
		provider: &MockProvider{},
		contract: contracttest.NewFakeClient(),
		bus:      memory.NewEventBus(zap.NewNop()),
		feed:     &stubFeed{},
	}
	t.Cleanup(func() { f.bus.Close() })
	if reads == nil {
		reads = f.contract
	}

	posts := postapp.NewPostService(reads, discovery, indexer, zap.NewNop())
	users := userapp.NewUserService(f.contract, zap.NewNop())
	f.ctl = NewController(f.provider, posts, users, f.bus, f.feed, zap.NewNop())
	return f
}

func (f *fixture) expectWallet(account common.Address, chainID int64) {
	f.provider.On("RequestAccounts", mock.Anything).Return(account, nil)
	f.provider.On("ChainID", mock.Anything).Return(big.NewInt(chainID), nil)
}

func probe() postPort.Discovery { return postEntity.ProbeRange{From: 1, To: 5} }

func TestConnect_LoadsPostsAndUser(t *testing.T) {
	f := newFixture(t, probe())
	f.expectWallet(alice, 1337)
	f.contract.SetPost(&postEntity.Post{ID: big.NewInt(3), Creator: bob, Upvotes: big.NewInt(4), Downvotes: big.NewInt(1)})
	f.contract.SetUser(&userEntity.User{Address: alice, CredibilityScore: big.NewInt(70), SuccessfulPosts: big.NewInt(2)})

	sess, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice, sess.Account)
	assert.Equal(t, "1337", sess.ChainID.String())
	assert.Equal(t, session.Connected, f.ctl.State())

	snap := f.ctl.Snapshot()
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, "3", snap.Posts[0].ID.String())
	require.NotNil(t, snap.User)
	assert.Equal(t, "70", snap.User.CredibilityScore.String())

	assert.Eventually(t, func() bool { return f.feed.context() != nil }, time.Second, 10*time.Millisecond)
}

func TestConnect_RejectedReturnsToDisconnected(t *testing.T) {
	f := newFixture(t, probe())
	f.provider.On("RequestAccounts", mock.Anything).Return(common.Address{}, providerPort.ErrUserRejected)

	_, err := f.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, providerPort.ErrUserRejected)
	assert.Equal(t, session.Disconnected, f.ctl.State())
	assert.Nil(t, f.ctl.Session())
	f.provider.AssertNotCalled(t, "ChainID", mock.Anything)
}

func TestConnect_ChainIDFailure(t *testing.T) {
	f := newFixture(t, probe())
	f.provider.On("RequestAccounts", mock.Anything).Return(alice, nil)
	f.provider.On("ChainID", mock.Anything).Return(nil, providerPort.ErrProviderUnavailable)

	_, err := f.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, providerPort.ErrProviderUnavailable)
	assert.Equal(t, session.Disconnected, f.ctl.State())
}

func TestConnect_WhileConnecting(t *testing.T) {
	f := newFixture(t, probe())
	release := make(chan struct{})
	f.provider.On("RequestAccounts", mock.Anything).Run(func(mock.Arguments) { <-release }).Return(alice, nil)
	f.provider.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.ctl.Connect(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.ctl.State() == session.Connecting }, time.Second, 5*time.Millisecond)

	_, err := f.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, session.Connected, f.ctl.State())
}

func TestConnect_WhileConnectedReturnsSameSession(t *testing.T) {
	f := newFixture(t, probe())
	f.expectWallet(alice, 1)

	first, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)
	second, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	f.provider.AssertNumberOfCalls(t, "RequestAccounts", 1)
}

func TestConnect_ResetDuringPrompt(t *testing.T) {
	f := newFixture(t, probe())
	release := make(chan struct{})
	f.provider.On("RequestAccounts", mock.Anything).Run(func(mock.Arguments) { <-release }).Return(alice, nil)
	f.provider.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.ctl.Connect(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.ctl.State() == session.Connecting }, time.Second, 5*time.Millisecond)

	f.ctl.HandleChainChanged(big.NewInt(5))
	close(release)

	assert.ErrorIs(t, <-done, ErrSessionReset)
	assert.Equal(t, session.Disconnected, f.ctl.State())
	assert.Nil(t, f.ctl.Session())
}

func TestVote_RefreshesCounters(t *testing.T) {
	f := newFixture(t, probe())
	f.expectWallet(alice, 1)
	f.contract.SetPost(&postEntity.Post{ID: big.NewInt(3), Creator: bob, Upvotes: big.NewInt(0), Downvotes: big.NewInt(0)})

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.ctl.Vote(context.Background(), big.NewInt(3), true))

	require.Len(t, f.contract.Votes, 1)
	assert.Equal(t, "3", f.contract.Votes[0].PostID.String())
	assert.True(t, f.contract.Votes[0].IsUpvote)
	assert.Equal(t, alice, f.contract.Votes[0].From)

	snap := f.ctl.Snapshot()
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, "1", snap.Posts[0].Upvotes.String())
	assert.Equal(t, "0", snap.Posts[0].Downvotes.String())
}

func TestCreatePost_AddsToList(t *testing.T) {
	f := newFixture(t, postEntity.NewRegistry())
	f.expectWallet(alice, 1)

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.ctl.Snapshot().Posts)

	require.NoError(t, f.ctl.CreatePost(context.Background(), big.NewInt(12)))
	snap := f.ctl.Snapshot()
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, "12", snap.Posts[0].ID.String())
	assert.Equal(t, alice, snap.Posts[0].Creator)
}

func TestWritesRequireSession(t *testing.T) {
	f := newFixture(t, probe())

	assert.ErrorIs(t, f.ctl.CreatePost(context.Background(), big.NewInt(1)), ErrNotConnected)
	assert.ErrorIs(t, f.ctl.Vote(context.Background(), big.NewInt(1), true), ErrNotConnected)
	assert.ErrorIs(t, f.ctl.CreatePost(context.Background(), big.NewInt(-1)), ErrInvalidPostID)
	assert.ErrorIs(t, f.ctl.Vote(context.Background(), nil, false), ErrInvalidPostID)
}

func TestWrites_RejectIDsOutsideUint256(t *testing.T) {
	f := newFixture(t, probe())
	f.expectWallet(alice, 1)
	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)

	tooBig := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(3))
	assert.ErrorIs(t, f.ctl.Vote(context.Background(), tooBig, true), ErrInvalidPostID)
	assert.ErrorIs(t, f.ctl.CreatePost(context.Background(), tooBig), ErrInvalidPostID)
	assert.Empty(t, f.contract.Votes)
	assert.Empty(t, f.contract.Created)
}

func TestAccountsChanged_ResetsEverything(t *testing.T) {
	f := newFixture(t, probe())
	f.expectWallet(alice, 1)
	f.contract.SetPost(&postEntity.Post{ID: big.NewInt(2), Creator: bob, Upvotes: big.NewInt(0), Downvotes: big.NewInt(0)})

	resets := make(chan event.Event, 1)
	_, err := f.bus.Subscribe(func(_ context.Context, ev event.Event) { resets <- ev }, event.SessionReset)
	require.NoError(t, err)

	_, err = f.ctl.Connect(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.feed.context() != nil }, time.Second, 5*time.Millisecond)
	feedCtx := f.feed.context()

	f.ctl.HandleAccountsChanged([]common.Address{bob})

	assert.Equal(t, session.Disconnected, f.ctl.State())
	snap := f.ctl.Snapshot()
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Posts)
	assert.Error(t, feedCtx.Err(), "session context is cancelled")

	select {
	case ev := <-resets:
		assert.Equal(t, "accountsChanged", ev.Reason)
		assert.Equal(t, alice, ev.Account)
	case <-time.After(time.Second):
		t.Fatal("no SessionReset event")
	}
}

func TestContractEvents_TriggerRefresh(t *testing.T) {
	f := newFixture(t, postEntity.NewRegistry())
	f.expectWallet(alice, 1)

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)

	// created by someone else, announced only through the event
	f.contract.SetPost(&postEntity.Post{ID: big.NewInt(21), Creator: bob, Upvotes: big.NewInt(0), Downvotes: big.NewInt(0)})
	require.NoError(t, f.bus.Publish(context.Background(), event.Event{Kind: event.PostCreated, PostID: big.NewInt(21), Account: bob}))

	assert.Eventually(t, func() bool { return len(f.ctl.Snapshot().Posts) == 1 }, time.Second, 10*time.Millisecond)

	f.contract.SetPost(&postEntity.Post{ID: big.NewInt(21), Creator: bob, Upvotes: big.NewInt(5), Downvotes: big.NewInt(0)})
	f.contract.SetUser(&userEntity.User{Address: alice, CredibilityScore: big.NewInt(9), SuccessfulPosts: big.NewInt(1)})
	require.NoError(t, f.bus.Publish(context.Background(), event.Event{Kind: event.Voted, PostID: big.NewInt(21), IsUpvote: true}))

	assert.Eventually(t, func() bool {
		snap := f.ctl.Snapshot()
		return len(snap.Posts) == 1 && snap.Posts[0].Upvotes.String() == "5" &&
			snap.User != nil && snap.User.CredibilityScore.String() == "9"
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshUser_FailureMakesUserAbsent(t *testing.T) {
	f := newFixture(t, probe())
	f.expectWallet(alice, 1)

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.ctl.Snapshot().User)

	f.contract.UserErr = assert.AnError
	f.ctl.RefreshUser(context.Background())
	assert.Nil(t, f.ctl.Snapshot().User)
}

func TestConnect_FeedStartsAfterScannedHead(t *testing.T) {
	indexer := &stubIndexer{ids: []*big.Int{big.NewInt(4)}, head: 100}
	f := newFixtureWith(t, postEntity.NewRegistry(), nil, indexer)
	f.expectWallet(alice, 1)

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.feed.context() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(101), f.feed.startBlock())
}

func TestContractEvents_RefreshAfterInFlightRead(t *testing.T) {
	gated := &gatedClient{FakeClient: contracttest.NewFakeClient()}
	f := newFixtureWith(t, postEntity.NewRegistry(), gated, nil)
	f.expectWallet(alice, 1)

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)

	gated.SetPost(&postEntity.Post{ID: big.NewInt(3), Creator: bob, Upvotes: big.NewInt(0), Downvotes: big.NewInt(0)})
	stalled, release := gated.arm()
	require.NoError(t, f.bus.Publish(context.Background(), event.Event{Kind: event.PostCreated, PostID: big.NewInt(3), Account: bob}))

	select {
	case <-stalled:
	case <-time.After(time.Second):
		t.Fatal("refresh did not start")
	}

	// the vote lands while the first refresh holds the old counters
	gated.SetPost(&postEntity.Post{ID: big.NewInt(3), Creator: bob, Upvotes: big.NewInt(7), Downvotes: big.NewInt(0)})
	f.contract.SetUser(&userEntity.User{Address: alice, CredibilityScore: big.NewInt(3), SuccessfulPosts: big.NewInt(0)})
	require.NoError(t, f.bus.Publish(context.Background(), event.Event{Kind: event.Voted, PostID: big.NewInt(3), IsUpvote: true}))

	// the user refresh follows the posts request in the same handler
	require.Eventually(t, func() bool {
		u := f.ctl.Snapshot().User
		return u != nil && u.CredibilityScore.String() == "3"
	}, time.Second, 5*time.Millisecond)
	close(release)

	assert.Eventually(t, func() bool {
		posts := f.ctl.Snapshot().Posts
		return len(posts) == 1 && posts[0].Upvotes.String() == "7"
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshPosts_LateReadDoesNotOverwrite(t *testing.T) {
	gated := &gatedClient{FakeClient: contracttest.NewFakeClient()}
	f := newFixtureWith(t, postEntity.ProbeRange{From: 2, To: 2}, gated, nil)
	f.expectWallet(alice, 1)
	gated.SetPost(&postEntity.Post{ID: big.NewInt(2), Creator: bob, Upvotes: big.NewInt(0), Downvotes: big.NewInt(0)})

	_, err := f.ctl.Connect(context.Background())
	require.NoError(t, err)

	stalled, release := gated.arm()
	done := make(chan struct{})
	go func() {
		f.ctl.RefreshPosts(context.Background())
		close(done)
	}()
	<-stalled

	gated.SetPost(&postEntity.Post{ID: big.NewInt(2), Creator: bob, Upvotes: big.NewInt(5), Downvotes: big.NewInt(0)})
	f.ctl.RefreshPosts(context.Background())
	require.Equal(t, "5", f.ctl.Snapshot().Posts[0].Upvotes.String())

	close(release)
	<-done
	assert.Equal(t, "5", f.ctl.Snapshot().Posts[0].Upvotes.String())
}
