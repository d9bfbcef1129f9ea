package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/stats"
	"github.com/betareaderbr/betareader/utils"
)

// ConfigController serves environment-driven settings the UI renders.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetPlans returns prices and payout rules.
func (c *ConfigController) GetPlans(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"premium_price":        cfg.PremiumPrice,
		"currency":             "BRL",
		"min_withdraw":         cfg.MinWithdraw,
		"withdraw_min_books":   stats.WithdrawMinBooks,
		"default_monthly_goal": cfg.DefaultMonthlyGoal,
		"referral_bonus":       cfg.ReferralBonus,
	})
}

// GetNotice returns the announcement bar content.
func (c *ConfigController) GetNotice(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title": cfg.NoticeTitle,
		"html":  utils.Sanitize(cfg.NoticeHTML),
	})
}
