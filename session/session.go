// Package session holds the reader's snapshot for one logged-in session.
//
// A Session is constructed explicitly and handed to whatever renders it; there
// is no package-level instance. Mutations update the snapshot and its derived
// statistics, notify subscribers and then push the whole snapshot to the
// backend. Persist failures are logged and do not roll back local state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/stats"
)

var (
	ErrNoSnapshot          = errors.New("session: no user data loaded")
	ErrInvalidAmount       = errors.New("session: amount must be positive")
	ErrInsufficientBalance = errors.New("session: insufficient balance")
	ErrInvalidPlan         = errors.New("session: unknown plan")
	ErrInvalidGoal         = errors.New("session: monthly goal must be positive")
	ErrInvalidRating       = errors.New("session: rating must be between 1 and 5")
	ErrLoggedOut           = errors.New("session: logged out during load")
)

// Gateway is the part of the backend client a Session needs.
type Gateway interface {
	GetUserData(ctx context.Context) (*models.UserData, error)
	UpdateUserData(ctx context.Context, data models.UserData, expectVersion int64) (*models.UserData, error)
}

// Identity seeds the default snapshot when the server has no record yet.
type Identity struct {
	ID       uint
	FullName string
	Email    string
	Phone    string
}

// Session owns the snapshot of the active reader.
type Session struct {
	gw       Gateway
	log      *zap.Logger
	now      func() time.Time
	identity Identity
	strict   bool

	mu   sync.Mutex
	data *models.UserData

	// epoch advances on Logout so loads started earlier are discarded.
	epoch       uint64
	stopRefresh context.CancelFunc

	subMu  sync.Mutex
	subs   map[int]func(models.UserData)
	nextID int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for persist failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIdentity sets the identity used for a fresh snapshot.
func WithIdentity(id Identity) Option {
	return func(s *Session) { s.identity = id }
}

// WithStrictVersioning sends the last seen version with every write so the
// server can reject stale snapshots.
func WithStrictVersioning() Option {
	return func(s *Session) { s.strict = true }
}

// New returns an empty Session backed by gw.
func New(gw Gateway, opts ...Option) *Session {
	s := &Session{
		gw:   gw,
		log:  zap.NewNop(),
		now:  time.Now,
		subs: make(map[int]func(models.UserData)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the snapshot with the server copy, or with a fresh default
// snapshot when the server has no record.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.load(ctx, epoch)
}

// load installs the server copy unless Logout ran after epoch was read.
func (s *Session) load(ctx context.Context, epoch uint64) error {
	remote, err := s.gw.GetUserData(ctx)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		fresh := s.defaultSnapshot()
		remote = &fresh
	case err != nil:
		return fmt.Errorf("load user data: %w", err)
	}

	data := remote.Clone()
	if data.BooksCompleted == nil {
		data.BooksCompleted = []models.CompletionRecord{}
	}
	if data.Transactions == nil {
		data.Transactions = []models.LedgerEntry{}
	}
	data.Stats = stats.Recompute(data.BooksCompleted, data.MonthlyGoal, s.now())

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrLoggedOut
	}
	s.data = &data
	snap := data.Clone()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// Snapshot returns a copy of the current snapshot and whether one is loaded.
func (s *Session) Snapshot() (models.UserData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return models.UserData{}, false
	}
	return s.data.Clone(), true
}

// CompleteBook records a finished book and credits its reward. Duplicate
// completions are not checked here; the backend skips them on persist and
// the snapshot then follows the server's ledger.
func (s *Session) CompleteBook(ctx context.Context, slug, title string, reward decimal.Decimal, rating int, difficulty string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return s.mutate(ctx, func(d *models.UserData, now time.Time) error {
		d.BooksCompleted = append(d.BooksCompleted, models.CompletionRecord{
			BookSlug:    slug,
			Title:       title,
			Reward:      reward,
			Rating:      rating,
			Difficulty:  difficulty,
			CompletedAt: now,
		})
		d.Transactions = append(d.Transactions, models.LedgerEntry{
			ID:          uuid.NewString(),
			Type:        models.TxEarning,
			Description: "Leitura concluída: " + title,
			Amount:      reward,
			CreatedAt:   now,
		})
		d.Balance = d.Balance.Add(reward)
		d.TotalEarnings = d.TotalEarnings.Add(reward)
		if stats.CanWithdraw(len(d.BooksCompleted)) {
			d.CanWithdraw = true
		}
		return nil
	})
}

// SelectPlan sets both the selected and the active plan. Charging is handled
// by the payment flow.
func (s *Session) SelectPlan(ctx context.Context, plan models.Plan) error {
	if !plan.Valid() {
		return ErrInvalidPlan
	}
	return s.mutate(ctx, func(d *models.UserData, _ time.Time) error {
		p := plan
		d.SelectedPlan = &p
		d.Plan = plan
		return nil
	})
}

// UpdateMonthlyGoal sets the goal; progress is recomputed against this month's earnings.
func (s *Session) UpdateMonthlyGoal(ctx context.Context, goal decimal.Decimal) error {
	if !goal.IsPositive() {
		return ErrInvalidGoal
	}
	return s.mutate(ctx, func(d *models.UserData, _ time.Time) error {
		d.MonthlyGoal = goal
		return nil
	})
}

// Withdraw deducts amount from the balance. The payout itself happens elsewhere.
func (s *Session) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.mutate(ctx, func(d *models.UserData, now time.Time) error {
		if amount.GreaterThan(d.Balance) {
			return ErrInsufficientBalance
		}
		d.Balance = d.Balance.Sub(amount)
		d.Transactions = append(d.Transactions, models.LedgerEntry{
			ID:          uuid.NewString(),
			Type:        models.TxWithdrawal,
			Description: "Saque via PIX",
			Amount:      amount.Neg(),
			CreatedAt:   now,
		})
		return nil
	})
}

// Logout discards the snapshot and stops the refresh loop. A Load already in
// flight is dropped.
func (s *Session) Logout() {
	s.mu.Lock()
	s.data = nil
	s.epoch++
	stop := s.stopRefresh
	s.stopRefresh = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// StartRefresh reloads the snapshot every interval until ctx is done or
// Logout is called. Starting again replaces the previous loop.
// Load errors are logged and the previous snapshot is kept.
func (s *Session) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopRefresh != nil {
		s.stopRefresh()
	}
	s.stopRefresh = cancel
	epoch := s.epoch
	s.mu.Unlock()

	go func() {
		defer cancel()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.load(ctx, epoch)
				if errors.Is(err, ErrLoggedOut) {
					return
				}
				if err != nil && ctx.Err() == nil {
					s.log.Warn("periodic refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Session) mutate(ctx context.Context, apply func(d *models.UserData, now time.Time) error) error {
	now := s.now()

	s.mu.Lock()
	if s.data == nil {
		s.mu.Unlock()
		return ErrNoSnapshot
	}
	next := s.data.Clone()
	if err := apply(&next, now); err != nil {
		s.mu.Unlock()
		return err
	}
	next.Stats = stats.Recompute(next.BooksCompleted, next.MonthlyGoal, now)
	s.data = &next
	snap := next.Clone()
	s.mu.Unlock()

	s.publish(snap)
	s.persist(ctx, snap)
	return nil
}

func (s *Session) persist(ctx context.Context, snap models.UserData) {
	var expect int64
	if s.strict {
		expect = snap.Version
	}
	saved, err := s.gw.UpdateUserData(ctx, snap, expect)
	if err != nil {
		s.log.Warn("persist user data failed",
			zap.Uint("user_id", snap.ID),
			zap.Int64("version", snap.Version),
			zap.Bool("conflict", errors.Is(err, gateway.ErrConflict)),
			zap.Error(err),
		)
		return
	}
	if saved == nil {
		return
	}

	s.mu.Lock()
	if s.data == nil || saved.Version <= s.data.Version {
		s.mu.Unlock()
		return
	}
	s.data.Version = saved.Version
	if s.data.ID == 0 {
		s.data.ID = saved.ID
	}
	if !ledgerDiverged(*s.data, *saved) {
		s.mu.Unlock()
		return
	}
	// The server owns completions and money; it may have skipped a repeat
	// completion or replaced client ledger ids.
	adopted := saved.Clone()
	s.data.BooksCompleted = adopted.BooksCompleted
	s.data.Transactions = adopted.Transactions
	if s.data.BooksCompleted == nil {
		s.data.BooksCompleted = []models.CompletionRecord{}
	}
	if s.data.Transactions == nil {
		s.data.Transactions = []models.LedgerEntry{}
	}
	s.data.Balance = adopted.Balance
	s.data.TotalEarnings = adopted.TotalEarnings
	s.data.CanWithdraw = s.data.CanWithdraw || adopted.CanWithdraw
	s.data.Stats = stats.Recompute(s.data.BooksCompleted, s.data.MonthlyGoal, s.now())
	next := s.data.Clone()
	s.mu.Unlock()

	s.log.Info("adopted server ledger",
		zap.Uint("user_id", next.ID),
		zap.Int64("version", next.Version),
		zap.String("balance", next.Balance.String()),
	)
	s.publish(next)
}

func ledgerDiverged(local, remote models.UserData) bool {
	if !local.Balance.Equal(remote.Balance) || !local.TotalEarnings.Equal(remote.TotalEarnings) {
		return true
	}
	if len(local.BooksCompleted) != len(remote.BooksCompleted) || len(local.Transactions) != len(remote.Transactions) {
		return true
	}
	for i := range local.Transactions {
		if local.Transactions[i].ID != remote.Transactions[i].ID {
			return true
		}
	}
	return false
}

func (s *Session) defaultSnapshot() models.UserData {
	return models.UserData{
		ID:             s.identity.ID,
		FullName:       s.identity.FullName,
		Email:          s.identity.Email,
		Phone:          s.identity.Phone,
		Balance:        decimal.Zero,
		TotalEarnings:  decimal.Zero,
		MonthlyGoal:    models.DefaultMonthlyGoal,
		Plan:           models.PlanFree,
		BooksCompleted: []models.CompletionRecord{},
		Transactions:   []models.LedgerEntry{},
	}
}
