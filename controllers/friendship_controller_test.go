package controllers

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/models"
)

func TestFriendships_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ana, anaToken := env.createUser(t, "Ana", "ana@example.com")
	bia, biaToken := env.createUser(t, "Bia", "bia@example.com")
	require.NoError(t, env.db.Create(&models.BookCompletion{
		UserID: bia.ID, BookSlug: "iracema", Reward: decimal.NewFromInt(38), Rating: 5,
	}).Error)

	w, resp := env.do(t, request{method: http.MethodPost, path: "/api/friendships", token: anaToken,
		body: gateway.FriendRequest{Email: "BIA@example.com"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := decode[gateway.Friend](t, resp.Data)
	assert.Equal(t, models.FriendshipPending, sent.Status)
	assert.Equal(t, "outgoing", sent.Direction)
	assert.Equal(t, bia.ID, sent.Friend.ID)
	assert.Equal(t, int64(1), sent.Friend.BooksCompleted)

	w, resp = env.do(t, request{method: http.MethodPost, path: "/api/friendships", token: biaToken,
		body: gateway.FriendRequest{ReferralCode: ana.ReferralCode}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40940, resp.Code)

	idPath := "/api/friendships/" + strconv.FormatUint(uint64(sent.ID), 10)

	// Only the addressee may accept.
	w, _ = env.do(t, request{method: http.MethodPost, path: idPath + "/accept", token: anaToken})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, request{method: http.MethodPost, path: idPath + "/accept", token: biaToken})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = env.do(t, request{method: http.MethodGet, path: "/api/friendships", token: biaToken})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]gateway.Friend](t, resp.Data)
	require.Len(t, list, 1)
	assert.Equal(t, "incoming", list[0].Direction)
	assert.Equal(t, models.FriendshipAccepted, list[0].Status)
	assert.Equal(t, "Ana", list[0].Friend.FullName)

	w, _ = env.do(t, request{method: http.MethodDelete, path: idPath, token: anaToken})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, request{method: http.MethodDelete, path: idPath, token: anaToken})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFriendships_SendValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "Ana", "ana@example.com")

	w, resp := env.do(t, request{method: http.MethodPost, path: "/api/friendships", token: token,
		body: gateway.FriendRequest{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40041, resp.Code)

	w, resp = env.do(t, request{method: http.MethodPost, path: "/api/friendships", token: token,
		body: gateway.FriendRequest{Email: "ana@example.com"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40042, resp.Code)

	w, resp = env.do(t, request{method: http.MethodPost, path: "/api/friendships", token: token,
		body: gateway.FriendRequest{ReferralCode: "NOPE0000"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40440, resp.Code)
}
