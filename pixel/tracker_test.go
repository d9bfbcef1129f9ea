package pixel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	ready   []bool
	checks  int
	sendErr error
	events  []Event
}

func (r *recordingSink) Ready(context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.checks
	r.checks++
	if len(r.ready) == 0 {
		return true
	}
	if i >= len(r.ready) {
		return r.ready[len(r.ready)-1]
	}
	return r.ready[i]
}

func (r *recordingSink) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func readyTracker(t *testing.T, sink *recordingSink, store Store, c *clock) *Tracker {
	t.Helper()
	tr := NewTracker(sink, store, WithTrackerClock(c.now), WithRetryDelay(time.Millisecond))
	require.NoError(t, tr.Init(context.Background()))
	return tr
}

func TestTracker_DropsEventsBeforeInit(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := NewTracker(sink, NewMemoryStore())

	sent, err := tr.TrackPurchase(context.Background(), Purchase{TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = tr.TrackLead(context.Background(), UserInfo{}, nil)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, sink.names())
}

func TestTracker_InitRetriesOnce(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{ready: []bool{false, true}}
	tr := NewTracker(sink, NewMemoryStore(), WithRetryDelay(time.Millisecond))

	require.NoError(t, tr.Init(context.Background()))
	assert.True(t, tr.Ready())
	assert.Equal(t, 2, sink.checks)
}

func TestTracker_InitGivesUp(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{ready: []bool{false, false, true}}
	tr := NewTracker(sink, NewMemoryStore(), WithRetryDelay(time.Millisecond))

	err := tr.Init(context.Background())
	assert.ErrorIs(t, err, ErrSinkUnavailable)
	assert.False(t, tr.Ready())

	sent, err := tr.TrackPageView(context.Background(), "/dashboard")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestTracker_PurchaseOncePerTransaction(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()
	p := Purchase{TransactionID: "tx-1", Plan: "premium", Value: decimal.RequireFromString("19.90")}

	first, err := tr.TrackPurchase(ctx, p)
	require.NoError(t, err)
	second, err := tr.TrackPurchase(ctx, p)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "purchase-tx-1", sink.events[0].ID)
	assert.Equal(t, "BRL", sink.events[0].Data["currency"])
}

func TestTracker_PurchaseWithoutTransactionUsesTimestamp(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()
	at := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	a, _ := tr.TrackPurchase(ctx, Purchase{Plan: "premium", Value: decimal.NewFromInt(20), Timestamp: at})
	b, _ := tr.TrackPurchase(ctx, Purchase{Plan: "premium", Value: decimal.NewFromInt(20), Timestamp: at})
	c, _ := tr.TrackPurchase(ctx, Purchase{Plan: "premium", Value: decimal.NewFromInt(20), Timestamp: at.Add(time.Second)})

	assert.True(t, a)
	assert.False(t, b)
	assert.True(t, c)
}

func TestTracker_CheckoutSlidingWindow(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	c := newClock()
	store := NewMemoryStore()
	tr := readyTracker(t, sink, store, c)
	ctx := context.Background()
	co := Checkout{Plan: "premium", Value: decimal.RequireFromString("19.90")}

	first, _ := tr.TrackInitiateCheckout(ctx, co)
	c.advance(4 * time.Minute)
	second, _ := tr.TrackInitiateCheckout(ctx, co)
	other, _ := tr.TrackInitiateCheckout(ctx, Checkout{Plan: "premium", Value: decimal.NewFromInt(30)})
	c.advance(2 * time.Minute)
	third, _ := tr.TrackInitiateCheckout(ctx, co)

	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, other)
	assert.True(t, third)
	assert.Equal(t, []string{EventInitiateCheckout, EventInitiateCheckout, EventInitiateCheckout}, sink.names())
	assert.Equal(t, 2, store.Len(setCheckout))
}

func TestTracker_PageViewClearAllowsRefire(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()

	a, _ := tr.TrackPageView(ctx, "/livros")
	b, _ := tr.TrackPageView(ctx, "/livros")
	require.NoError(t, tr.ClearPageView(ctx, "/livros"))
	c, _ := tr.TrackPageView(ctx, "/livros")

	assert.True(t, a)
	assert.False(t, b)
	assert.True(t, c)
}

func TestTracker_RegistrationKeys(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()

	byID, _ := tr.TrackCompleteRegistration(ctx, Registration{UserID: "7", Email: "a@b.com"})
	sameID, _ := tr.TrackCompleteRegistration(ctx, Registration{UserID: "7", Email: "other@b.com"})
	byEmail, _ := tr.TrackCompleteRegistration(ctx, Registration{Email: "a@b.com"})
	anon, _ := tr.TrackCompleteRegistration(ctx, Registration{})
	anonAgain, _ := tr.TrackCompleteRegistration(ctx, Registration{})

	assert.True(t, byID)
	assert.False(t, sameID)
	assert.True(t, byEmail)
	assert.True(t, anon)
	assert.False(t, anonAgain)
}

func TestTracker_PixGeneratedKeyedByOrderOrCode(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()

	a, _ := tr.TrackPixGenerated(ctx, PixCharge{OrderID: "o-1", Code: "000201"})
	b, _ := tr.TrackPixGenerated(ctx, PixCharge{OrderID: "o-1", Code: "different"})
	c, _ := tr.TrackPixGenerated(ctx, PixCharge{Code: "000201"})
	d, _ := tr.TrackPixGenerated(ctx, PixCharge{Code: "000201"})

	assert.True(t, a)
	assert.False(t, b)
	assert.True(t, c)
	assert.False(t, d)
	assert.True(t, sink.events[0].Custom)
	assert.Equal(t, EventPixGenerated, sink.events[0].Name)
}

func TestTracker_EmptyKeyIsNotDeduplicated(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	store := NewMemoryStore()
	tr := readyTracker(t, sink, store, newClock())
	ctx := context.Background()

	first, _ := tr.TrackPixGenerated(ctx, PixCharge{Plan: "premium", Value: decimal.NewFromInt(29)})
	second, _ := tr.TrackPixGenerated(ctx, PixCharge{Plan: "premium", Value: decimal.NewFromInt(29)})
	home, _ := tr.TrackPageView(ctx, "")
	homeAgain, _ := tr.TrackPageView(ctx, "")

	assert.True(t, first)
	assert.True(t, second)
	assert.True(t, home)
	assert.True(t, homeAgain)
	assert.Len(t, sink.events, 4)
	assert.NotEqual(t, sink.events[0].ID, sink.events[1].ID)
	assert.Zero(t, store.Len(setPix))
	assert.Zero(t, store.Len(setPageView))
}

func TestTracker_FunnelEventsAlwaysFire(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()
	book := Content{ID: "iracema", Name: "Iracema"}

	for i := 0; i < 2; i++ {
		_, _ = tr.TrackViewContent(ctx, book)
		_, _ = tr.TrackAddToCart(ctx, book)
		_, _ = tr.TrackAddPaymentInfo(ctx, book)
		_, _ = tr.TrackLead(ctx, UserInfo{Email: "a@b.com"}, nil)
		_, _ = tr.TrackCustom(ctx, "QuizStarted", map[string]any{"book": "iracema"})
	}

	assert.Len(t, sink.events, 10)
	assert.Equal(t, []string{"iracema"}, sink.events[0].Data["content_ids"])
}

func TestTracker_SendFailureReleasesKey(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{sendErr: errors.New("offline")}
	tr := readyTracker(t, sink, NewMemoryStore(), newClock())
	ctx := context.Background()

	sent, err := tr.TrackPurchase(ctx, Purchase{TransactionID: "tx-9"})
	require.Error(t, err)
	assert.False(t, sent)

	sink.mu.Lock()
	sink.sendErr = nil
	sink.mu.Unlock()

	sent, err = tr.TrackPurchase(ctx, Purchase{TransactionID: "tx-9"})
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestTracker_RedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	sink := &recordingSink{}
	c := newClock()
	tr := readyTracker(t, sink, NewRedisStore(rc, "pixel:sess-1", time.Hour), c)
	ctx := context.Background()

	a, err := tr.TrackPurchase(ctx, Purchase{TransactionID: "tx-1"})
	require.NoError(t, err)
	b, err := tr.TrackPurchase(ctx, Purchase{TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.True(t, a)
	assert.False(t, b)
	assert.True(t, mr.Exists("pixel:sess-1:purchase:tx-1"))

	co := Checkout{Plan: "premium", Value: decimal.NewFromInt(20)}
	first, _ := tr.TrackInitiateCheckout(ctx, co)
	second, _ := tr.TrackInitiateCheckout(ctx, co)
	mr.FastForward(CheckoutWindow + time.Second)
	third, _ := tr.TrackInitiateCheckout(ctx, co)

	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, third)
}
