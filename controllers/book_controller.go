package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/stats"
	"github.com/betareaderbr/betareader/utils"
)

// BookController serves the catalog and records completions.
type BookController struct {
	db *gorm.DB
}

// NewBookController creates a new BookController instance.
func NewBookController(db *gorm.DB) *BookController {
	return &BookController{db: db}
}

// toBookView hides quiz answers.
func toBookView(b models.Book, withQuestions bool) gateway.Book {
	view := gateway.Book{
		Slug:       b.Slug,
		Title:      b.Title,
		Author:     b.Author,
		Excerpt:    b.Excerpt,
		Reward:     b.Reward,
		Difficulty: b.Difficulty,
		Category:   b.Category,
		Premium:    b.Premium,
	}
	if !withQuestions {
		return view
	}
	qs, err := b.Quiz()
	if err != nil {
		utils.Logger.Warn("broken quiz", zap.String("slug", b.Slug), zap.Error(err))
		return view
	}
	for _, q := range qs {
		view.Questions = append(view.Questions, gateway.Question{Question: q.Question, Options: q.Options})
	}
	return view
}

// ListBooks returns a page of the catalog, optionally filtered.
func (b *BookController) ListBooks(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	category := strings.TrimSpace(ctx.Query("category"))
	difficulty := ""
	if raw := strings.TrimSpace(ctx.Query("difficulty")); raw != "" {
		difficulty = stats.NormalizeDifficulty(raw)
		if difficulty == "" {
			utils.Error(ctx, http.StatusBadRequest, 40020, "invalid difficulty")
			return
		}
	}

	cacheKey := fmt.Sprintf("%scat=%s:diff=%s:page=%d:size=%d", utils.CacheKeyBooks, category, difficulty, page, pageSize)
	if raw, ok := utils.CacheGetBytes(ctx.Request.Context(), cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", raw)
		return
	}

	query := b.db.Model(&models.Book{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to count books")
		return
	}
	var books []models.Book
	if err := query.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&books).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list books")
		return
	}

	items := make([]gateway.Book, 0, len(books))
	for _, book := range books {
		items = append(items, toBookView(book, false))
	}
	payload := gin.H{
		"items":      items,
		"pagination": paginationBlock(page, pageSize, total),
	}
	utils.CacheSetJSON(ctx.Request.Context(), cacheKey, utils.JSONResponse{Code: models.CodeOK, Message: models.MessageOK, Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// GetBook returns one book with its quiz questions.
func (b *BookController) GetBook(ctx *gin.Context) {
	var book models.Book
	if err := b.db.Where("slug = ?", ctx.Param("slug")).First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "book not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to load book")
		return
	}
	utils.Success(ctx, toBookView(book, true))
}

// CompleteBook records a finished book, pays its reward and returns the
// updated snapshot. Each book pays once per reader.
func (b *BookController) CompleteBook(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req gateway.CompleteBookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Rating < 1 || req.Rating > 5 {
		utils.Error(ctx, http.StatusBadRequest, 40030, "avaliação deve ser de 1 a 5")
		return
	}

	var book models.Book
	if err := b.db.Where("slug = ?", ctx.Param("slug")).First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "book not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to load book")
		return
	}
	correct, err := book.CheckAnswers(req.Answers)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to check answers")
		return
	}
	if !correct {
		utils.Error(ctx, http.StatusBadRequest, 40031, "respostas incorretas")
		return
	}

	err = b.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}
		if book.Premium && user.Plan != string(models.PlanPremium) {
			return errPremiumRequired
		}

		at := now()
		completion := models.BookCompletion{
			UserID:      userID,
			BookSlug:    book.Slug,
			Title:       book.Title,
			Reward:      book.Reward,
			Rating:      req.Rating,
			Difficulty:  book.Difficulty,
			CompletedAt: at,
		}
		if err := tx.Create(&completion).Error; err != nil {
			if isDuplicateErr(err) {
				return errAlreadyCompleted
			}
			return err
		}

		entry := models.Transaction{
			UserID:      userID,
			Type:        string(models.TxEarning),
			Description: "Leitura concluída: " + book.Title,
			Amount:      book.Reward,
			CreatedAt:   at,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var completed int64
		if err := tx.Model(&models.BookCompletion{}).Where("user_id = ?", userID).Count(&completed).Error; err != nil {
			return err
		}
		user.Balance = user.Balance.Add(book.Reward)
		user.TotalEarnings = user.TotalEarnings.Add(book.Reward)
		user.CanWithdraw = user.CanWithdraw || stats.CanWithdraw(int(completed))
		user.Version++
		return tx.Save(&user).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errAlreadyCompleted):
			utils.Error(ctx, http.StatusConflict, 40910, "book already completed")
		case errors.Is(err, errPremiumRequired):
			utils.Error(ctx, http.StatusForbidden, 40320, "livro exclusivo do plano premium")
		case errors.Is(err, gorm.ErrRecordNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		default:
			utils.Logger.Error("complete book failed", zap.Error(err))
			utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to complete book")
		}
		return
	}

	invalidateUserStats(ctx.Request.Context(), userID)
	data, err := loadUserData(b.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load user data")
		return
	}
	utils.Success(ctx, data)
}
