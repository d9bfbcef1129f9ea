package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/pixel"
	"github.com/betareaderbr/betareader/utils"
)

const (
	// SessionHeader carries the visitor session used for pixel deduplication.
	SessionHeader = "X-Session-ID"
	// SessionIDCookie is the fallback when the header is absent.
	SessionIDCookie = "sid"

	pixelSessionTTL = 24 * time.Hour
	maxSessionIDLen = 64
)

type memorySession struct {
	store    *pixel.MemoryStore
	lastSeen time.Time
}

// TrackController forwards marketing events to the pixel sink, once per
// visitor session for conversions.
type TrackController struct {
	sink       pixel.Sink
	sourceURL  string
	retryDelay time.Duration

	mu       sync.Mutex
	sessions map[string]*memorySession
}

// NewTrackController creates a TrackController over sink. sourceURL prefixes
// page paths in event_source_url.
func NewTrackController(sink pixel.Sink, sourceURL string) *TrackController {
	return &TrackController{
		sink:       sink,
		sourceURL:  strings.TrimRight(sourceURL, "/"),
		retryDelay: time.Second,
		sessions:   make(map[string]*memorySession),
	}
}

// storeFor uses Redis when reachable; otherwise sessions live in process
// memory until idle for a day.
func (t *TrackController) storeFor(sid string) pixel.Store {
	if rc := utils.GetRedis(); rc != nil {
		return pixel.NewRedisStore(rc, "pixel:"+sid, pixelSessionTTL)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	at := now()
	for key, s := range t.sessions {
		if at.Sub(s.lastSeen) > pixelSessionTTL {
			delete(t.sessions, key)
		}
	}
	s, ok := t.sessions[sid]
	if !ok {
		s = &memorySession{store: pixel.NewMemoryStore()}
		t.sessions[sid] = s
	}
	s.lastSeen = at
	return s.store
}

func (t *TrackController) sessionID(ctx *gin.Context) (string, bool) {
	sid := strings.TrimSpace(ctx.GetHeader(SessionHeader))
	if sid == "" {
		if c, err := ctx.Cookie(SessionIDCookie); err == nil {
			sid = strings.TrimSpace(c)
		}
	}
	if sid == "" {
		sid = uuid.NewString()
		ctx.SetSameSite(http.SameSiteLaxMode)
		ctx.SetCookie(SessionIDCookie, sid, int(30*24*time.Hour/time.Second), "/", "", ctx.Request.TLS != nil, true)
	}
	if len(sid) > maxSessionIDLen || strings.ContainsAny(sid, ": \t") {
		return "", false
	}
	return sid, true
}

// Track handles POST /api/track/:event and reports whether the event was sent.
func (t *TrackController) Track(ctx *gin.Context) {
	var req gateway.TrackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	sid, ok := t.sessionID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40051, "invalid session id")
		return
	}
	if userID, ok := getUserID(ctx); ok && req.UserID == "" {
		req.UserID = strconv.FormatUint(uint64(userID), 10)
	}

	tracker := pixel.NewTracker(t.sink, t.storeFor(sid),
		pixel.WithTrackerLogger(utils.Logger),
		pixel.WithTrackerClock(now),
		pixel.WithRetryDelay(t.retryDelay),
		pixel.WithSourceURL(t.sourceURL),
	)
	if err := tracker.Init(ctx.Request.Context()); err != nil {
		utils.Success(ctx, gin.H{"sent": false})
		return
	}

	sent, err := dispatch(ctx.Request.Context(), tracker, ctx.Param("event"), req)
	if err != nil {
		if errors.Is(err, errUnknownEvent) {
			utils.Error(ctx, http.StatusBadRequest, 40052, "unknown event")
			return
		}
		utils.Logger.Warn("pixel event failed", zap.String("event", ctx.Param("event")), zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50250, "failed to send event")
		return
	}
	utils.Success(ctx, gin.H{"sent": sent})
}

var errUnknownEvent = errors.New("unknown pixel event")

func dispatch(ctx context.Context, tr *pixel.Tracker, event string, req gateway.TrackRequest) (bool, error) {
	content := pixel.Content{
		ID:       req.ContentID,
		Name:     req.ContentName,
		Value:    req.Value,
		Currency: req.Currency,
	}
	user := pixel.UserInfo{ExternalID: req.UserID, Email: req.Email, Phone: req.Phone}

	switch normalizeEvent(event) {
	case "pageview":
		return tr.TrackPageView(ctx, req.Path)
	case "clearpageview":
		return false, tr.ClearPageView(ctx, req.Path)
	case "registration", "completeregistration":
		return tr.TrackCompleteRegistration(ctx, pixel.Registration{UserID: req.UserID, Email: req.Email, Phone: req.Phone})
	case "checkout", "initiatecheckout":
		return tr.TrackInitiateCheckout(ctx, pixel.Checkout{Plan: req.Plan, Value: req.Value, Currency: req.Currency})
	case "purchase":
		return tr.TrackPurchase(ctx, pixel.Purchase{
			TransactionID: req.TransactionID,
			Plan:          req.Plan,
			Value:         req.Value,
			Currency:      req.Currency,
		})
	case "pix", "pixgerado", "pixgenerated":
		return tr.TrackPixGenerated(ctx, pixel.PixCharge{OrderID: req.OrderID, Code: req.PixCode, Plan: req.Plan, Value: req.Value})
	case "viewcontent":
		return tr.TrackViewContent(ctx, content)
	case "addtocart":
		return tr.TrackAddToCart(ctx, content)
	case "addpaymentinfo":
		return tr.TrackAddPaymentInfo(ctx, content)
	case "lead":
		return tr.TrackLead(ctx, user, req.Data)
	case "custom":
		if strings.TrimSpace(req.EventName) == "" {
			return false, errUnknownEvent
		}
		return tr.TrackCustom(ctx, req.EventName, req.Data)
	}
	return false, errUnknownEvent
}

func normalizeEvent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "").Replace(s)
}
