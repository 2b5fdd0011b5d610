package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/metrics"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/registry"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeRepoManager struct {
	users    users.Repository
	messages messages.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context) error { return nil }
func (m *fakeRepoManager) Users() users.Repository             { return m.users }
func (m *fakeRepoManager) Messages() messages.Repository       { return m.messages }
func (m *fakeRepoManager) Close(context.Context) error         { return nil }

type failingMessages struct {
	mu      sync.Mutex
	appends int
}

func (f *failingMessages) Append(context.Context, *models.Message) (*models.Message, error) {
	f.mu.Lock()
	f.appends++
	f.mu.Unlock()
	return nil, errors.New("disk full")
}

func (f *failingMessages) History(context.Context, string, string) ([]*models.Message, error) {
	return nil, errors.New("disk full")
}

type recChannel struct {
	id     string
	fail   bool
	mu     sync.Mutex
	events []registry.Event
	closed bool
}

func (c *recChannel) ID() string { return c.id }

func (c *recChannel) Push(ev registry.Event) error {
	if c.fail {
		return errors.New("queue full")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *recChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recChannel) Events() []registry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]registry.Event(nil), c.events...)
}

type chatFixture struct {
	svc   *ChatService
	reg   *registry.Registry
	users *users.MemoryRepository
	msgs  messages.Repository
	alice *auth.Claims
	bob   *auth.Claims
}

func newChatFixture(t *testing.T, msgs messages.Repository) *chatFixture {
	t.Helper()
	ur := users.NewMemoryRepository()
	if msgs == nil {
		msgs = messages.NewMemoryRepository()
	}

	claims := func(first string) *auth.Claims {
		u, err := ur.Create(context.Background(), &models.User{FirstName: first, LastName: "X", Email: first + "@example.com"})
		require.NoError(t, err)
		return &auth.Claims{UserID: u.ID, FirstName: first}
	}

	reg := registry.New(nil)
	rm := &fakeRepoManager{users: ur, messages: msgs}
	return &chatFixture{
		svc:   NewChatService(rm, reg, metrics.New(prometheus.NewRegistry()), logging.Nop()),
		reg:   reg,
		users: ur,
		msgs:  msgs,
		alice: claims("alice"),
		bob:   claims("bob"),
	}
}

// --- tests ---

func TestSend_EmptyTextHasNoSideEffects(t *testing.T) {
	f := newChatFixture(t, nil)
	bobCh := &recChannel{id: "b1"}
	f.reg.Bind(f.bob.UserID, bobCh)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Send(context.Background(), f.alice, f.bob.UserID, text, "")
		assert.ErrorIs(t, err, common.ErrEmptyMessage)
	}

	hist, err := f.svc.History(context.Background(), f.alice.UserID, f.bob.UserID)
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Empty(t, bobCh.Events())
}

func TestSend_UnknownRecipient(t *testing.T) {
	f := newChatFixture(t, nil)

	_, err := f.svc.Send(context.Background(), f.alice, "ghost", "hi", "")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.svc.Send(context.Background(), f.alice, "", "hi", "")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestSend_RecipientOffline(t *testing.T) {
	f := newChatFixture(t, nil)

	msg, err := f.svc.Send(context.Background(), f.alice, f.bob.UserID, "hello", "")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, f.alice.UserID, msg.From)
	assert.Equal(t, f.bob.UserID, msg.To)

	// bob connects later and reconciles from history
	hist, err := f.svc.History(context.Background(), f.bob.UserID, f.alice.UserID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "hello", hist[0].Text)
}

func TestSend_RecipientOnline(t *testing.T) {
	f := newChatFixture(t, nil)
	b1 := &recChannel{id: "b1"}
	b2 := &recChannel{id: "b2"}
	f.reg.Bind(f.bob.UserID, b1)
	f.reg.Bind(f.bob.UserID, b2)

	msg, err := f.svc.Send(context.Background(), f.alice, f.bob.UserID, "hi bob", "")
	require.NoError(t, err)

	for _, ch := range []*recChannel{b1, b2} {
		evs := ch.Events()
		require.Len(t, evs, 1)
		assert.Equal(t, PairChannel(f.bob.UserID, f.alice.UserID), evs[0].Channel)
		assert.Equal(t, msg.ID, evs[0].Message.ID)
	}
}

func TestSend_SyncsSenderDevicesExceptOrigin(t *testing.T) {
	f := newChatFixture(t, nil)
	origin := &recChannel{id: "a1"}
	other := &recChannel{id: "a2"}
	f.reg.Bind(f.alice.UserID, origin)
	f.reg.Bind(f.alice.UserID, other)

	_, err := f.svc.Send(context.Background(), f.alice, f.bob.UserID, "hi", "a1")
	require.NoError(t, err)

	assert.Empty(t, origin.Events())
	evs := other.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, PersonalChannel(f.alice.UserID), evs[0].Channel)
}

func TestSend_ToSelfUsesPersonalChannelOnly(t *testing.T) {
	f := newChatFixture(t, nil)
	a1 := &recChannel{id: "a1"}
	f.reg.Bind(f.alice.UserID, a1)

	_, err := f.svc.Send(context.Background(), f.alice, f.alice.UserID, "note to self", "")
	require.NoError(t, err)

	evs := a1.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, PersonalChannel(f.alice.UserID), evs[0].Channel)

	hist, err := f.svc.History(context.Background(), f.alice.UserID, f.alice.UserID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestSend_AppendFailureDoesNotPush(t *testing.T) {
	fm := &failingMessages{}
	f := newChatFixture(t, fm)
	bobCh := &recChannel{id: "b1"}
	aliceCh := &recChannel{id: "a2"}
	f.reg.Bind(f.bob.UserID, bobCh)
	f.reg.Bind(f.alice.UserID, aliceCh)

	_, err := f.svc.Send(context.Background(), f.alice, f.bob.UserID, "hi", "")
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.Equal(t, 1, fm.appends)
	assert.Empty(t, bobCh.Events())
	assert.Empty(t, aliceCh.Events())

	_, err = f.svc.History(context.Background(), f.alice.UserID, f.bob.UserID)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestSend_CancelledContextAppendsNothing(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Send(ctx, f.alice, f.alice.UserID, "hi", "")
	assert.ErrorIs(t, err, context.Canceled)

	hist, err := f.svc.History(context.Background(), f.alice.UserID, f.alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSend_PushFailureDropsChannel(t *testing.T) {
	f := newChatFixture(t, nil)
	slow := &recChannel{id: "b1", fail: true}
	ok := &recChannel{id: "b2"}
	f.reg.Bind(f.bob.UserID, slow)
	f.reg.Bind(f.bob.UserID, ok)

	_, err := f.svc.Send(context.Background(), f.alice, f.bob.UserID, "hi", "")
	require.NoError(t, err)

	assert.True(t, slow.closed)
	assert.Len(t, ok.Events(), 1)
	require.Len(t, f.reg.ChannelsFor(f.bob.UserID), 1)
	assert.Equal(t, "b2", f.reg.ChannelsFor(f.bob.UserID)[0].ID())
}

func TestHistory_Symmetric(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.alice, f.bob.UserID, "one", "")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.bob, f.alice.UserID, "two", "")
	require.NoError(t, err)

	ab, err := f.svc.History(ctx, f.alice.UserID, f.bob.UserID)
	require.NoError(t, err)
	ba, err := f.svc.History(ctx, f.bob.UserID, f.alice.UserID)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	require.Len(t, ab, 2)
	assert.Equal(t, "one", ab[0].Text)
	assert.Equal(t, "two", ab[1].Text)
}

func TestSend_ConcurrentSendsKeepOrder(t *testing.T) {
	f := newChatFixture(t, nil)
	bobCh := &recChannel{id: "b1"}
	f.reg.Bind(f.bob.UserID, bobCh)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, to := f.alice, f.bob.UserID
			if i%2 == 1 {
				sender, to = f.bob, f.alice.UserID
			}
			_, err := f.svc.Send(ctx, sender, to, fmt.Sprint(i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist, err := f.svc.History(ctx, f.alice.UserID, f.bob.UserID)
	require.NoError(t, err)
	require.Len(t, hist, n)
	for i := 1; i < len(hist); i++ {
		assert.True(t, hist[i].CreatedAt.After(hist[i-1].CreatedAt), "timestamps must strictly increase")
	}

	var fromAlice, fromBob, all []string
	for _, m := range hist {
		all = append(all, m.ID)
		if m.From == f.alice.UserID {
			fromAlice = append(fromAlice, m.ID)
		} else {
			fromBob = append(fromBob, m.ID)
		}
	}

	// bob's channel carries alice's messages on the pair channel and his own
	// sends on the personal channel, each in stored order
	var pair, personal, seen []string
	for _, ev := range bobCh.Events() {
		seen = append(seen, ev.Message.ID)
		switch ev.Channel {
		case PairChannel(f.bob.UserID, f.alice.UserID):
			pair = append(pair, ev.Message.ID)
		case PersonalChannel(f.bob.UserID):
			personal = append(personal, ev.Message.ID)
		default:
			t.Errorf("unexpected channel %q", ev.Channel)
		}
	}
	assert.Equal(t, fromAlice, pair)
	assert.Equal(t, fromBob, personal)
	assert.Equal(t, all, seen)
}

func TestStripeFor_StableAndInRange(t *testing.T) {
	key := models.ConversationKey("alice", "bob")
	s := stripeFor(key)
	assert.Equal(t, s, stripeFor(models.ConversationKey("bob", "alice")))
	assert.GreaterOrEqual(t, s, 0)
	assert.Less(t, s, lockStripes)
}

func TestMonotonicClock(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)
	c := &monotonicClock{now: func() time.Time { return fixed }}

	t1 := c.Next(3)
	t2 := c.Next(3)
	t3 := c.Next(7)

	assert.Equal(t, fixed.Truncate(time.Millisecond), t1)
	assert.Equal(t, t1.Add(time.Millisecond), t2)
	assert.Equal(t, t1, t3)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "bob-alice", PairChannel("bob", "alice"))
	assert.NotEqual(t, PairChannel("bob", "alice"), PairChannel("alice", "bob"))
	assert.Equal(t, "personal-channel-alice", PersonalChannel("alice"))
}
