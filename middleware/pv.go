package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/utils"
)

// PageViewRecorder counts successful page views per day, path and campaign source.
// Run it after UTMCapture so the source is known.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		path := c.Request.URL.Path
		// API calls, health checks and assets are not page views.
		if path == "/health" || strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/static/") {
			return
		}

		now := time.Now().In(time.Local)
		localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "path"}, {Name: "utm_source"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
		}).Create(&models.PageView{
			Date:      localMidnight,
			Path:      path,
			UTMSource: UTMFromContext(c).Source,
			Count:     1,
		}).Error
		if err != nil {
			utils.Sugar.Debugf("page view upsert failed path=%s err=%v", path, err)
		}
	}
}
