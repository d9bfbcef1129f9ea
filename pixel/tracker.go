package pixel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSinkUnavailable is returned by Init when the sink never became ready.
var ErrSinkUnavailable = errors.New("pixel: sink not available")

// CheckoutWindow is how long an identical checkout counts as a repeat.
const CheckoutWindow = 5 * time.Minute

const (
	setPageView     = "pageview"
	setRegistration = "registration"
	setCheckout     = "checkout"
	setPurchase     = "purchase"
	setPix          = "pix"
)

// Sink delivers events to the ad platform.
type Sink interface {
	Ready(ctx context.Context) bool
	Send(ctx context.Context, ev Event) error
}

// Tracker deduplicates conversion events of one visitor session.
// Every Track method reports whether the event was sent.
type Tracker struct {
	sink       Sink
	store      Store
	log        *zap.Logger
	now        func() time.Time
	retryDelay time.Duration
	sourceURL  string

	ready atomic.Bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

// WithTrackerClock replaces time.Now.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithRetryDelay sets the pause before Init checks the sink a second time.
func WithRetryDelay(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.retryDelay = d }
}

// WithSourceURL sets the default event_source_url.
func WithSourceURL(u string) TrackerOption {
	return func(t *Tracker) { t.sourceURL = u }
}

// NewTracker returns a Tracker that stays inactive until Init succeeds.
func NewTracker(sink Sink, store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sink:       sink,
		store:      store,
		log:        zap.NewNop(),
		now:        time.Now,
		retryDelay: time.Second,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Init activates the tracker. A sink that is not ready is checked once more
// after the retry delay.
func (t *Tracker) Init(ctx context.Context) error {
	if t.sink.Ready(ctx) {
		t.ready.Store(true)
		return nil
	}
	timer := time.NewTimer(t.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if !t.sink.Ready(ctx) {
		t.log.Warn("pixel sink unavailable, events will be dropped")
		return ErrSinkUnavailable
	}
	t.ready.Store(true)
	return nil
}

// Ready reports whether Init succeeded.
func (t *Tracker) Ready() bool {
	return t.ready.Load()
}

// TrackPageView fires once per path until ClearPageView is called for it.
func (t *Tracker) TrackPageView(ctx context.Context, path string) (bool, error) {
	ev := Event{Name: EventPageView, SourceURL: t.url(path)}
	return t.once(ctx, setPageView, path, ev)
}

// ClearPageView lets the next TrackPageView for path fire again.
func (t *Tracker) ClearPageView(ctx context.Context, path string) error {
	return t.store.Remove(ctx, setPageView, path)
}

// TrackCompleteRegistration fires once per identity.
func (t *Tracker) TrackCompleteRegistration(ctx context.Context, r Registration) (bool, error) {
	key := r.UserID
	if key == "" {
		key = r.Email
	}
	if key == "" {
		key = "anonymous"
	}
	ev := Event{
		Name: EventCompleteRegistration,
		ID:   "registration-" + key,
		User: UserInfo{ExternalID: r.UserID, Email: r.Email, Phone: r.Phone},
		Data: map[string]any{"status": "completed"},
	}
	return t.once(ctx, setRegistration, key, ev)
}

// TrackInitiateCheckout drops a checkout with the same plan and value seen
// within CheckoutWindow.
func (t *Tracker) TrackInitiateCheckout(ctx context.Context, c Checkout) (bool, error) {
	if !t.ready.Load() {
		return false, nil
	}
	key := c.Plan + "|" + c.Value.String()
	now := t.now()
	fresh, err := t.store.AddWithin(ctx, setCheckout, key, CheckoutWindow, now)
	if err != nil {
		return false, fmt.Errorf("pixel: dedup checkout: %w", err)
	}
	if !fresh {
		t.log.Debug("pixel checkout deduplicated", zap.String("key", key))
		return false, nil
	}
	data := valueData(c.Value, c.Currency)
	data["content_name"] = c.Plan
	ev := Event{Name: EventInitiateCheckout, Time: now, Data: data}
	if err := t.send(ctx, ev); err != nil {
		_ = t.store.Remove(ctx, setCheckout, key)
		return false, err
	}
	return true, nil
}

// TrackPurchase fires once per transaction. Without a transaction id the key
// falls back to plan, value and timestamp.
func (t *Tracker) TrackPurchase(ctx context.Context, p Purchase) (bool, error) {
	key := p.TransactionID
	if key == "" {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = t.now()
		}
		key = fmt.Sprintf("%s|%s|%d", p.Plan, p.Value.String(), ts.UnixMilli())
	}
	data := valueData(p.Value, p.Currency)
	data["content_name"] = p.Plan
	if p.TransactionID != "" {
		data["transaction_id"] = p.TransactionID
	}
	ev := Event{Name: EventPurchase, ID: "purchase-" + key, Data: data}
	return t.once(ctx, setPurchase, key, ev)
}

// TrackPixGenerated fires once per order, or per PIX code when there is no order id.
func (t *Tracker) TrackPixGenerated(ctx context.Context, p PixCharge) (bool, error) {
	key := p.OrderID
	if key == "" {
		key = p.Code
	}
	data := valueData(p.Value, "")
	data["content_name"] = p.Plan
	if p.OrderID != "" {
		data["order_id"] = p.OrderID
	}
	ev := Event{Name: EventPixGenerated, Custom: true, Data: data}
	if key != "" {
		ev.ID = "pix-" + key
	}
	return t.once(ctx, setPix, key, ev)
}

// TrackViewContent is sent every time.
func (t *Tracker) TrackViewContent(ctx context.Context, c Content) (bool, error) {
	return t.always(ctx, Event{Name: EventViewContent, Data: c.data()})
}

// TrackAddToCart is sent every time.
func (t *Tracker) TrackAddToCart(ctx context.Context, c Content) (bool, error) {
	return t.always(ctx, Event{Name: EventAddToCart, Data: c.data()})
}

// TrackAddPaymentInfo is sent every time.
func (t *Tracker) TrackAddPaymentInfo(ctx context.Context, c Content) (bool, error) {
	return t.always(ctx, Event{Name: EventAddPaymentInfo, Data: c.data()})
}

// TrackLead is sent every time.
func (t *Tracker) TrackLead(ctx context.Context, u UserInfo, data map[string]any) (bool, error) {
	return t.always(ctx, Event{Name: EventLead, User: u, Data: data})
}

// TrackCustom sends a custom event every time.
func (t *Tracker) TrackCustom(ctx context.Context, name string, data map[string]any) (bool, error) {
	return t.always(ctx, Event{Name: name, Custom: true, Data: data})
}

// once sends ev the first time key is seen in set. An empty key has nothing
// to deduplicate on and is sent every time.
func (t *Tracker) once(ctx context.Context, set, key string, ev Event) (bool, error) {
	if key == "" {
		return t.always(ctx, ev)
	}
	if !t.ready.Load() {
		return false, nil
	}
	fresh, err := t.store.Add(ctx, set, key)
	if err != nil {
		return false, fmt.Errorf("pixel: dedup %s: %w", set, err)
	}
	if !fresh {
		t.log.Debug("pixel event deduplicated", zap.String("event", ev.Name), zap.String("key", key))
		return false, nil
	}
	if err := t.send(ctx, ev); err != nil {
		_ = t.store.Remove(ctx, set, key)
		return false, err
	}
	return true, nil
}

func (t *Tracker) always(ctx context.Context, ev Event) (bool, error) {
	if !t.ready.Load() {
		return false, nil
	}
	if err := t.send(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tracker) send(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = t.now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.SourceURL == "" {
		ev.SourceURL = t.sourceURL
	}
	if err := t.sink.Send(ctx, ev); err != nil {
		t.log.Warn("pixel send failed", zap.String("event", ev.Name), zap.Error(err))
		return fmt.Errorf("pixel: send %s: %w", ev.Name, err)
	}
	return nil
}

func (t *Tracker) url(path string) string {
	if t.sourceURL == "" {
		return path
	}
	return t.sourceURL + path
}
