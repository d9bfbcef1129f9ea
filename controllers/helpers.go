package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/middleware"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/stats"
	"github.com/betareaderbr/betareader/utils"
)

var (
	errStaleSnapshot     = errors.New("snapshot version is stale")
	errAlreadyCompleted  = errors.New("book already completed")
	errNegativeBalance   = errors.New("balance cannot be negative")
	errInvalidEntry      = errors.New("invalid ledger entry")
	errWithdrawLocked    = errors.New("withdraw not unlocked")
	errInsufficientFunds = errors.New("insufficient balance")
	errPremiumRequired   = errors.New("premium plan required")
)

// now is swapped in tests.
var now = time.Now

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 12
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func paginationBlock(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// isDuplicateErr covers drivers that do not translate unique violations.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

// loadUserData assembles the full snapshot of a reader with fresh statistics.
func loadUserData(db *gorm.DB, userID uint) (models.UserData, error) {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return models.UserData{}, err
	}
	completions, err := userCompletions(db, userID)
	if err != nil {
		return models.UserData{}, err
	}
	var txs []models.Transaction
	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&txs).Error; err != nil {
		return models.UserData{}, err
	}

	data := user.ToUserData(completions, txs)
	data.Stats = stats.Recompute(data.BooksCompleted, data.MonthlyGoal, now())
	return data, nil
}

func userCompletions(db *gorm.DB, userID uint) ([]models.BookCompletion, error) {
	var completions []models.BookCompletion
	err := db.Where("user_id = ?", userID).Order("completed_at ASC").Find(&completions).Error
	return completions, err
}

func invalidateUserStats(ctx context.Context, userID uint) {
	utils.CacheDelete(ctx, utils.CacheKeyUserStats+strconv.FormatUint(uint64(userID), 10))
	utils.CacheDelete(ctx, utils.CacheKeyPlatform)
}
