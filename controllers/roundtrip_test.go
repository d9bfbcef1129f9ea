package controllers

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/session"
)

// TestSessionAgainstServer drives the client session through the real HTTP
// handlers and checks both sides agree on the snapshot.
func TestSessionAgainstServer(t *testing.T) {
	env := newTestEnv(t)
	env.createBook(t, "dom-casmurro", 45, "medium", false)
	env.createBook(t, "iracema", 38, "easy", false)
	env.createBook(t, "o-cortico", 42, "hard", false)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx := context.Background()

	client := gateway.New(srv.URL)
	auth, err := client.Register(ctx, gateway.RegisterRequest{
		FullName: "Ana Souza", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	s := session.New(client, session.WithStrictVersioning())
	require.NoError(t, s.Load(ctx))
	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, auth.User.ID, snap.ID)

	require.NoError(t, s.CompleteBook(ctx, "dom-casmurro", "Dom Casmurro", decimal.NewFromInt(45), 5, "medium"))
	require.NoError(t, s.CompleteBook(ctx, "iracema", "Iracema", decimal.NewFromInt(38), 4, "easy"))
	require.NoError(t, s.CompleteBook(ctx, "o-cortico", "O Cortiço", decimal.NewFromInt(42), 5, "hard"))
	require.NoError(t, s.Withdraw(ctx, decimal.NewFromInt(60)))

	local, _ := s.Snapshot()
	remote, err := client.GetUserData(ctx)
	require.NoError(t, err)

	assert.True(t, remote.Balance.Equal(decimal.NewFromInt(65)), remote.Balance.String())
	assert.True(t, remote.Balance.Equal(local.Balance))
	assert.True(t, remote.TotalEarnings.Equal(decimal.NewFromInt(125)))
	assert.True(t, remote.CanWithdraw)
	assert.Len(t, remote.BooksCompleted, 3)
	assert.Len(t, remote.Transactions, 4)
	assert.Equal(t, remote.Transactions[0].ID, local.Transactions[0].ID)
	assert.Equal(t, local.Version, remote.Version)
	assert.Equal(t, int64(5), remote.Version)

	// The server catalog endpoint refuses a book the session already synced.
	_, err = client.CompleteBook(ctx, "dom-casmurro", gateway.CompleteBookRequest{Rating: 5})
	assert.ErrorIs(t, err, gateway.ErrConflict)

	st, err := client.GetUserStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalBooksRead)
	assert.InDelta(t, 4.67, st.AverageRating, 0.01)

	require.NoError(t, client.Logout(ctx))
	_, err = client.GetUserData(ctx)
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}

func TestSessionRepeatCompletionKeepsSyncing(t *testing.T) {
	env := newTestEnv(t)
	env.createBook(t, "dom-casmurro", 45, "medium", false)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx := context.Background()

	client := gateway.New(srv.URL)
	_, err := client.Register(ctx, gateway.RegisterRequest{
		FullName: "Ana Souza", Email: "ana@example.com", Password: "secret123",
	})
	require.NoError(t, err)

	var mu sync.Mutex
	clock := time.Now().Add(-time.Hour)
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	s := session.New(client, session.WithStrictVersioning(), session.WithClock(tick))
	require.NoError(t, s.Load(ctx))

	require.NoError(t, s.CompleteBook(ctx, "dom-casmurro", "Dom Casmurro", decimal.NewFromInt(45), 5, "medium"))
	require.NoError(t, s.CompleteBook(ctx, "dom-casmurro", "Dom Casmurro", decimal.NewFromInt(45), 5, "medium"))
	require.NoError(t, s.SelectPlan(ctx, models.PlanPremium))
	require.NoError(t, s.UpdateMonthlyGoal(ctx, decimal.NewFromInt(900)))

	remote, err := client.GetUserData(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPremium, remote.Plan)
	assert.True(t, remote.MonthlyGoal.Equal(decimal.NewFromInt(900)))
	assert.Len(t, remote.BooksCompleted, 1)
	assert.True(t, remote.Balance.Equal(decimal.NewFromInt(45)), remote.Balance.String())

	local, _ := s.Snapshot()
	assert.Len(t, local.BooksCompleted, 1)
	assert.True(t, local.Balance.Equal(remote.Balance))
	assert.Equal(t, remote.Version, local.Version)
}
