package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/utils"
)

// StatsController provides platform-wide figures for the landing page.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// PlatformStats is the payload of GET /api/stats.
type PlatformStats struct {
	UserCount       int64           `json:"user_count"`
	CompletionCount int64           `json:"completion_count"`
	CompletedToday  int64           `json:"completed_today"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	PageViewsToday  int64           `json:"page_views_today"`
}

// GetStats returns aggregate statistics. Failed counters read as zero.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var cached PlatformStats
	if utils.CacheGetJSON(ctx.Request.Context(), utils.CacheKeyPlatform, &cached) {
		utils.Success(ctx, cached)
		return
	}

	var out PlatformStats
	if err := s.db.Model(&models.User{}).Count(&out.UserCount).Error; err != nil {
		out.UserCount = 0
	}
	if err := s.db.Model(&models.BookCompletion{}).Count(&out.CompletionCount).Error; err != nil {
		out.CompletionCount = 0
	}

	at := now()
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	if err := s.db.Model(&models.BookCompletion{}).
		Where("completed_at >= ? AND completed_at < ?", dayStart, dayStart.AddDate(0, 0, 1)).
		Count(&out.CompletedToday).Error; err != nil {
		out.CompletedToday = 0
	}

	// Withdrawals are stored negative.
	var withdrawals []models.Transaction
	if err := s.db.Select("amount").Where("type = ?", string(models.TxWithdrawal)).Find(&withdrawals).Error; err == nil {
		total := decimal.Zero
		for _, w := range withdrawals {
			total = total.Add(w.Amount.Abs())
		}
		out.TotalPaid = total
	}

	// String date equality avoids timezone mismatches with the DATE column.
	if err := s.db.Model(&models.PageView{}).
		Where("date = ?", at.Format("2006-01-02")).
		Select("COALESCE(SUM(count),0)").
		Scan(&out.PageViewsToday).Error; err != nil {
		out.PageViewsToday = 0
	}

	ttl := time.Duration(config.Get().StatsCacheSeconds) * time.Second
	utils.CacheSetJSON(ctx.Request.Context(), utils.CacheKeyPlatform, out, ttl)
	utils.Success(ctx, out)
}
