package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/middleware"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/pixel"
	"github.com/betareaderbr/betareader/utils"
)

var mr *miniredis.Miniredis

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: "test-secret"})

	var err error
	mr, err = miniredis.Run()
	if err != nil {
		panic(err)
	}
	utils.SetRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	code := m.Run()
	mr.Close()
	os.Exit(code)
}

type recordingSink struct {
	mu     sync.Mutex
	events []pixel.Event
}

func (r *recordingSink) Ready(context.Context) bool { return true }

func (r *recordingSink) Send(_ context.Context, ev pixel.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	sink   *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr.FlushAll()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), config.GormConfig("silent"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	env := &testEnv{db: db, sink: &recordingSink{}}
	env.router = testRouter(db, env.sink)
	return env
}

func testRouter(db *gorm.DB, sink pixel.Sink) *gin.Engine {
	r := gin.New()
	r.Use(middleware.UTMCapture())

	authCtl := NewAuthController(db)
	userCtl := NewUserController(db)
	bookCtl := NewBookController(db)
	friendCtl := NewFriendshipController(db)
	trackCtl := NewTrackController(sink, "https://betareader.com.br")
	statsCtl := NewStatsController(db)
	configCtl := NewConfigController()

	api := r.Group("/api")
	api.POST("/auth/register", authCtl.Register)
	api.POST("/auth/login", authCtl.Login)
	api.GET("/books", bookCtl.ListBooks)
	api.GET("/books/:slug", bookCtl.GetBook)
	api.GET("/stats", statsCtl.GetStats)
	api.GET("/config/plans", configCtl.GetPlans)
	api.GET("/config/notice", configCtl.GetNotice)
	api.POST("/track/:event", middleware.OptionalAuth(), trackCtl.Track)

	auth := api.Group("")
	auth.Use(middleware.AuthRequired())
	auth.POST("/auth/logout", authCtl.Logout)
	auth.GET("/auth/me", authCtl.Me)
	auth.GET("/users/me/data", userCtl.GetData)
	auth.PUT("/users/me/data", userCtl.PutData)
	auth.GET("/users/me/stats", userCtl.GetStats)
	auth.PATCH("/users/me/plan", userCtl.SelectPlan)
	auth.PATCH("/users/me/goal", userCtl.UpdateGoal)
	auth.POST("/users/me/withdraw", userCtl.Withdraw)
	auth.POST("/books/:slug/complete", bookCtl.CompleteBook)
	auth.GET("/friendships", friendCtl.ListFriends)
	auth.POST("/friendships", friendCtl.SendRequest)
	auth.POST("/friendships/:id/accept", friendCtl.AcceptRequest)
	auth.DELETE("/friendships/:id", friendCtl.RemoveFriend)
	return r
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, req request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// createUser inserts a reader directly and returns it with a session token.
func (e *testEnv) createUser(t *testing.T, name, email string) (models.User, string) {
	t.Helper()
	hash, err := utils.HashPassword("secret123")
	require.NoError(t, err)
	u := models.User{FullName: name, Email: email, PasswordHash: hash}
	require.NoError(t, e.db.Create(&u).Error)
	token, err := utils.GenerateToken(u.ID, u.Email, time.Hour)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) createBook(t *testing.T, slug string, reward int64, difficulty string, premium bool, answers ...int) models.Book {
	t.Helper()
	quiz := make([]models.QuizQuestion, 0, len(answers))
	for _, a := range answers {
		quiz = append(quiz, models.QuizQuestion{Question: "Pergunta?", Options: []string{"a", "b", "c"}, Answer: a})
	}
	raw, err := json.Marshal(quiz)
	require.NoError(t, err)
	b := models.Book{
		Slug:       slug,
		Title:      "Livro " + slug,
		Author:     "Autor",
		Reward:     decimal.NewFromInt(reward),
		Difficulty: difficulty,
		Category:   "romance",
		Premium:    premium,
		Questions:  datatypes.JSON(raw),
	}
	require.NoError(t, e.db.Create(&b).Error)
	return b
}

func (e *testEnv) complete(t *testing.T, token, slug string, rating int, answers ...int) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return e.do(t, request{
		method: http.MethodPost,
		path:   "/api/books/" + slug + "/complete",
		token:  token,
		body:   map[string]any{"rating": rating, "answers": answers},
	})
}
