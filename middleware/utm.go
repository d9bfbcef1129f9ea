package middleware

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/betareaderbr/betareader/models"
)

const (
	// UTMCookie keeps first-touch campaign attribution.
	UTMCookie = "utm"
	// ContextUTMKey stores the visitor's models.UTM.
	ContextUTMKey = "utm"

	utmCookieMaxAge = 30 * 24 * 60 * 60
)

// UTMCapture records campaign parameters on the first visit that carries them
// and exposes the stored attribution to handlers. Later campaigns do not
// overwrite the first touch.
func UTMCapture() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		stored, hasStored := readUTMCookie(ctx)
		if !hasStored {
			if fresh := utmFromQuery(ctx); !fresh.Empty() {
				writeUTMCookie(ctx, fresh)
				stored, hasStored = fresh, true
			}
		}
		if hasStored {
			ctx.Set(ContextUTMKey, stored)
		}
		ctx.Next()
	}
}

// UTMFromContext returns the attribution set by UTMCapture.
func UTMFromContext(ctx *gin.Context) models.UTM {
	if v, ok := ctx.Get(ContextUTMKey); ok {
		if utm, ok := v.(models.UTM); ok {
			return utm
		}
	}
	return models.UTM{}
}

func utmFromQuery(ctx *gin.Context) models.UTM {
	clip := func(s string) string {
		s = strings.TrimSpace(s)
		if len(s) > 128 {
			s = s[:128]
		}
		return s
	}
	return models.UTM{
		Source:   clip(ctx.Query("utm_source")),
		Medium:   clip(ctx.Query("utm_medium")),
		Campaign: clip(ctx.Query("utm_campaign")),
		Content:  clip(ctx.Query("utm_content")),
		Term:     clip(ctx.Query("utm_term")),
	}
}

func readUTMCookie(ctx *gin.Context) (models.UTM, bool) {
	raw, err := ctx.Cookie(UTMCookie)
	if err != nil || raw == "" {
		return models.UTM{}, false
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return models.UTM{}, false
	}
	var utm models.UTM
	if err := json.Unmarshal(b, &utm); err != nil || utm.Empty() {
		return models.UTM{}, false
	}
	return utm, true
}

func writeUTMCookie(ctx *gin.Context, utm models.UTM) {
	b, err := json.Marshal(utm)
	if err != nil {
		return
	}
	ctx.SetCookie(UTMCookie, base64.RawURLEncoding.EncodeToString(b), utmCookieMaxAge, "/", "", false, true)
}
