package controllers

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betareaderbr/betareader/models"
)

func TestPlatformStats(t *testing.T) {
	env := newTestEnv(t)
	ana, _ := env.createUser(t, "Ana", "ana@example.com")
	env.createUser(t, "Bia", "bia@example.com")
	require.NoError(t, env.db.Create(&[]models.Transaction{
		{UserID: ana.ID, Type: string(models.TxEarning), Amount: decimal.NewFromInt(125)},
		{UserID: ana.ID, Type: string(models.TxWithdrawal), Amount: decimal.NewFromInt(-60)},
	}).Error)
	require.NoError(t, env.db.Create(&models.PageView{
		Date: time.Now(), Path: "/", Count: 7,
	}).Error)

	w, resp := env.do(t, request{method: http.MethodGet, path: "/api/stats"})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[PlatformStats](t, resp.Data)
	assert.Equal(t, int64(2), out.UserCount)
	assert.True(t, out.TotalPaid.Equal(decimal.NewFromInt(60)))
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, request{method: http.MethodGet, path: "/api/config/plans"})
	require.Equal(t, http.StatusOK, w.Code)
	plans := decode[map[string]any](t, resp.Data)
	assert.EqualValues(t, 19.9, plans["premium_price"])
	assert.EqualValues(t, 50, plans["min_withdraw"])
	assert.EqualValues(t, 3, plans["withdraw_min_books"])

	w, _ = env.do(t, request{method: http.MethodGet, path: "/api/config/notice"})
	assert.Equal(t, http.StatusOK, w.Code)
}
