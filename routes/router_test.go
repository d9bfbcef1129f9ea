package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/pixel"
	"github.com/betareaderbr/betareader/utils"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	config.Set(config.AppConfig{
		JWTSecret: "test-secret",
		GinMode:   "test",
		GinPath:   filepath.Join(t.TempDir(), "gin.log"),
	})
	utils.SetRedis(nil)

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), config.GormConfig("silent"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	return SetupRouter(db)
}

func TestSetupRouter_Health(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Code int               `json:"code"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data["status"])
}

func TestSetupRouter_UnknownAPIRoute(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "40400")
}

func TestSetupRouter_ProtectedRoutesNeedSession(t *testing.T) {
	r := testRouter(t)

	for _, path := range []string{"/api/users/me/data", "/api/friendships", "/api/auth/me"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestPixelSink(t *testing.T) {
	_, isLog := PixelSink(config.AppConfig{}).(pixel.LogSink)
	assert.True(t, isLog)

	capi, ok := PixelSink(config.AppConfig{PixelID: "1", PixelAccessToken: "tok", PixelAPIVersion: "v19.0"}).(*pixel.ConversionsAPISink)
	require.True(t, ok)
	assert.Equal(t, "v19.0", capi.APIVersion)
}
