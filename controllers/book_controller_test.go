package controllers

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/models"
)

func TestListBooks_FiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.createBook(t, "iracema", 38, "easy", false)
	env.createBook(t, "dom-casmurro", 45, "medium", false)
	env.createBook(t, "o-cortico", 42, "hard", false)

	w, resp := env.do(t, request{method: http.MethodGet, path: "/api/books?page=1&page_size=2"})
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[gateway.BookPage](t, resp.Data)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	w, resp = env.do(t, request{method: http.MethodGet, path: "/api/books?difficulty=dificil"})
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[gateway.BookPage](t, resp.Data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "o-cortico", page.Items[0].Slug)

	w, _ = env.do(t, request{method: http.MethodGet, path: "/api/books?difficulty=impossible"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListBooks_ServedFromCache(t *testing.T) {
	env := newTestEnv(t)
	env.createBook(t, "iracema", 38, "easy", false)

	w, _ := env.do(t, request{method: http.MethodGet, path: "/api/books"})
	require.Equal(t, http.StatusOK, w.Code)

	env.createBook(t, "dom-casmurro", 45, "medium", false)
	w, resp := env.do(t, request{method: http.MethodGet, path: "/api/books"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[gateway.BookPage](t, resp.Data).Items, 1)
}

func TestGetBook_HidesAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.createBook(t, "iracema", 38, "easy", false, 1, 2)

	w, resp := env.do(t, request{method: http.MethodGet, path: "/api/books/iracema"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(resp.Data), "answer")
	book := decode[gateway.Book](t, resp.Data)
	assert.Len(t, book.Questions, 2)

	w, resp = env.do(t, request{method: http.MethodGet, path: "/api/books/missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40420, resp.Code)
}

func TestCompleteBook_CreditsAndUnlocksWithdraw(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "Ana", "ana@example.com")
	env.createBook(t, "dom-casmurro", 45, "medium", false, 0)
	env.createBook(t, "iracema", 38, "easy", false)
	env.createBook(t, "o-cortico", 42, "hard", false)

	w, resp := env.complete(t, token, "dom-casmurro", 5, 2)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40031, resp.Code)

	w, _ = env.complete(t, token, "dom-casmurro", 5, 0)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.complete(t, token, "iracema", 4)
	require.Equal(t, http.StatusOK, w.Code)
	w, resp = env.complete(t, token, "o-cortico", 5)
	require.Equal(t, http.StatusOK, w.Code)

	data := decode[models.UserData](t, resp.Data)
	assert.True(t, data.Balance.Equal(decimal.NewFromInt(125)))
	assert.True(t, data.TotalEarnings.Equal(decimal.NewFromInt(125)))
	assert.True(t, data.CanWithdraw)
	assert.Len(t, data.BooksCompleted, 3)
	assert.Len(t, data.Transactions, 3)
	assert.Equal(t, 3, data.Stats.TotalBooksRead)
	assert.InDelta(t, 4.67, data.Stats.AverageRating, 0.01)
	assert.Equal(t, int64(4), data.Version)

	w, resp = env.complete(t, token, "iracema", 5)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40910, resp.Code)
	assert.Equal(t, "book already completed", resp.Message)

	var txCount int64
	require.NoError(t, env.db.Model(&models.Transaction{}).Count(&txCount).Error)
	assert.Equal(t, int64(3), txCount)
}

func TestCompleteBook_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "Ana", "ana@example.com")
	env.createBook(t, "memorias-postumas", 60, "hard", true)

	w, resp := env.complete(t, token, "memorias-postumas", 0)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40030, resp.Code)

	w, resp = env.complete(t, token, "memorias-postumas", 5)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 40320, resp.Code)

	w, _ = env.do(t, request{method: http.MethodPatch, path: "/api/users/me/plan", token: token,
		body: map[string]any{"plan": "premium"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.complete(t, token, "memorias-postumas", 5)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.complete(t, token, "missing", 5)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
