package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/stats"
	"github.com/betareaderbr/betareader/utils"
)

// UserController serves the reader snapshot and the account operations on it.
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a new UserController instance.
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

// GetData returns the stored snapshot.
func (u *UserController) GetData(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	data, err := loadUserData(u.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load user data")
		return
	}
	utils.Success(ctx, data)
}

// PutData merges a full snapshot from the client. Profile fields, plan and
// goal are taken as sent; completions are checked against the catalog and
// only withdrawals are accepted from the client ledger. Balance and earnings
// are derived from the stored ledger. An If-Match header carrying a version
// rejects stale writes.
func (u *UserController) PutData(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req models.UserData
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	var expect int64
	if h := strings.Trim(ctx.GetHeader("If-Match"), `" `); h != "" {
		v, err := strconv.ParseInt(h, 10, 64)
		if err != nil || v < 0 {
			utils.Error(ctx, http.StatusBadRequest, 40011, "invalid If-Match version")
			return
		}
		expect = v
	}

	err := u.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}
		if expect > 0 && user.Version != expect {
			return errStaleSnapshot
		}

		if name := utils.SanitizeText(req.FullName); name != "" {
			user.FullName = name
		}
		user.Phone = utils.SanitizeText(req.Phone)
		if req.MonthlyGoal.IsPositive() {
			user.MonthlyGoal = req.MonthlyGoal
		}
		if req.Plan.Valid() {
			user.Plan = string(req.Plan)
		}
		user.SelectedPlan = nil
		if req.SelectedPlan != nil && req.SelectedPlan.Valid() {
			p := string(*req.SelectedPlan)
			user.SelectedPlan = &p
		}

		if err := mergeCompletions(tx, &user, req.BooksCompleted); err != nil {
			return err
		}
		var completed int64
		if err := tx.Model(&models.BookCompletion{}).Where("user_id = ?", userID).Count(&completed).Error; err != nil {
			return err
		}
		user.CanWithdraw = user.CanWithdraw || stats.CanWithdraw(int(completed))

		if err := mergeWithdrawals(tx, &user, req.Transactions); err != nil {
			return err
		}

		var txs []models.Transaction
		if err := tx.Where("user_id = ?", userID).Find(&txs).Error; err != nil {
			return err
		}
		balance, earnings := models.LedgerTotals(txs)
		if balance.IsNegative() {
			return errNegativeBalance
		}
		user.Balance = balance
		if earnings.GreaterThan(user.TotalEarnings) {
			user.TotalEarnings = earnings
		}
		user.Version++
		return tx.Save(&user).Error
	})
	if err != nil {
		u.writeError(ctx, err, 50011, "failed to save user data")
		return
	}

	invalidateUserStats(ctx.Request.Context(), userID)
	u.respondData(ctx, userID)
}

// mergeCompletions stores completions of catalog books the reader has not
// finished yet. Title, reward and difficulty come from the catalog, and each
// stored completion is paired with a server-side earning entry. Repeated or
// unknown slugs are skipped so the rest of the snapshot still applies.
func mergeCompletions(tx *gorm.DB, user *models.User, records []models.CompletionRecord) error {
	existing, err := userCompletions(tx, user.ID)
	if err != nil {
		return err
	}
	stored := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		stored[c.BookSlug] = struct{}{}
	}

	for _, r := range records {
		if r.BookSlug == "" || r.Rating < 1 || r.Rating > 5 {
			return errInvalidEntry
		}
		if _, ok := stored[r.BookSlug]; ok {
			continue
		}

		var book models.Book
		if err := tx.Where("slug = ?", r.BookSlug).First(&book).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Logger.Info("snapshot completion for unknown book skipped",
					zap.Uint("user_id", user.ID), zap.String("slug", r.BookSlug))
				continue
			}
			return err
		}
		if book.Premium && user.Plan != string(models.PlanPremium) {
			utils.Logger.Info("snapshot completion for premium book skipped",
				zap.Uint("user_id", user.ID), zap.String("slug", r.BookSlug))
			continue
		}

		c := models.CompletionFromRecord(user.ID, r)
		c.Title = book.Title
		c.Reward = book.Reward
		c.Difficulty = book.Difficulty
		if at := now(); c.CompletedAt.IsZero() || c.CompletedAt.After(at) {
			c.CompletedAt = at
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&c)
		if res.Error != nil {
			return res.Error
		}
		stored[r.BookSlug] = struct{}{}
		if res.RowsAffected == 0 {
			continue
		}

		entry := models.Transaction{
			UserID:      user.ID,
			Type:        string(models.TxEarning),
			Description: "Leitura concluída: " + book.Title,
			Amount:      book.Reward,
			CreatedAt:   c.CompletedAt,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
	}
	return nil
}

// mergeWithdrawals appends unseen withdrawal entries. Credits (earning, bonus
// and activity) are written only by the server and are ignored here; stored
// rows never change. Withdrawals before the payout unlock are dropped.
func mergeWithdrawals(tx *gorm.DB, user *models.User, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var ids []string
	if err := tx.Model(&models.Transaction{}).Where("user_id = ?", user.ID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	for _, e := range entries {
		if !validEntry(e) {
			return errInvalidEntry
		}
		if _, ok := seen[e.ID]; ok || e.Type != models.TxWithdrawal {
			continue
		}
		if !user.CanWithdraw {
			utils.Logger.Info("snapshot withdrawal before unlock skipped",
				zap.Uint("user_id", user.ID), zap.String("id", e.ID))
			continue
		}
		t := models.TransactionFromEntry(user.ID, e)
		t.Description = utils.SanitizeText(t.Description)
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now()
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error; err != nil {
			return err
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

func validEntry(e models.LedgerEntry) bool {
	if e.ID == "" || len(e.ID) > 36 || !e.Type.Valid() {
		return false
	}
	if e.Type == models.TxWithdrawal {
		return !e.Amount.IsPositive()
	}
	return true
}

// GetStats returns the reader's statistics, cached briefly in Redis.
func (u *UserController) GetStats(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	cacheKey := utils.CacheKeyUserStats + strconv.FormatUint(uint64(userID), 10)
	var cached models.Statistics
	if utils.CacheGetJSON(ctx.Request.Context(), cacheKey, &cached) {
		utils.Success(ctx, cached)
		return
	}

	var user models.User
	if err := u.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to load user")
		return
	}
	completions, err := userCompletions(u.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to load completions")
		return
	}

	records := make([]models.CompletionRecord, 0, len(completions))
	for _, c := range completions {
		records = append(records, c.Record())
	}
	out := stats.Recompute(records, user.MonthlyGoal, now())

	ttl := time.Duration(config.Get().StatsCacheSeconds) * time.Second
	utils.CacheSetJSON(ctx.Request.Context(), cacheKey, out, ttl)
	utils.Success(ctx, out)
}

// SelectPlan switches the reader's plan.
func (u *UserController) SelectPlan(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Plan models.Plan `json:"plan" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || !req.Plan.Valid() {
		utils.Error(ctx, http.StatusBadRequest, 40012, "invalid plan")
		return
	}

	plan := string(req.Plan)
	err := u.updateUser(userID, func(user *models.User) error {
		user.Plan = plan
		user.SelectedPlan = &plan
		return nil
	})
	if err != nil {
		u.writeError(ctx, err, 50014, "failed to update plan")
		return
	}
	u.respondData(ctx, userID)
}

// UpdateGoal sets the monthly earnings goal.
func (u *UserController) UpdateGoal(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		MonthlyGoal decimal.Decimal `json:"monthly_goal"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || !req.MonthlyGoal.IsPositive() {
		utils.Error(ctx, http.StatusBadRequest, 40013, "meta mensal deve ser positiva")
		return
	}

	err := u.updateUser(userID, func(user *models.User) error {
		user.MonthlyGoal = req.MonthlyGoal.Round(2)
		return nil
	})
	if err != nil {
		u.writeError(ctx, err, 50015, "failed to update goal")
		return
	}
	invalidateUserStats(ctx.Request.Context(), userID)
	u.respondData(ctx, userID)
}

// Withdraw pays out part of the balance to a PIX key.
func (u *UserController) Withdraw(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Amount     decimal.Decimal `json:"amount"`
		PixKey     string          `json:"pix_key" binding:"required"`
		PixKeyType string          `json:"pix_key_type" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40014, "invalid request payload")
		return
	}
	if !utils.ValidPixKey(req.PixKeyType, req.PixKey) {
		utils.Error(ctx, http.StatusBadRequest, 40015, "chave PIX inválida")
		return
	}
	minimum := config.Get().MinWithdraw
	if req.Amount.LessThan(minimum) {
		utils.Error(ctx, http.StatusBadRequest, 40016, "valor mínimo para saque é R$ "+minimum.StringFixed(2))
		return
	}
	amount := req.Amount.Round(2)

	err := u.updateUser(userID, func(user *models.User) error {
		if !user.CanWithdraw {
			return errWithdrawLocked
		}
		if amount.GreaterThan(user.Balance) {
			return errInsufficientFunds
		}
		user.Balance = user.Balance.Sub(amount)
		return nil
	}, models.Transaction{
		Type:        string(models.TxWithdrawal),
		Description: "Saque via PIX (" + strings.ToLower(req.PixKeyType) + ")",
		Amount:      amount.Neg(),
	})
	if err != nil {
		u.writeError(ctx, err, 50016, "failed to withdraw")
		return
	}
	invalidateUserStats(ctx.Request.Context(), userID)
	utils.Logger.Info("withdraw requested", zap.Uint("user_id", userID), zap.String("amount", amount.StringFixed(2)))
	u.respondData(ctx, userID)
}

// updateUser applies fn to the locked user row, appends entries and bumps the version.
func (u *UserController) updateUser(userID uint, fn func(*models.User) error, entries ...models.Transaction) error {
	return u.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
		for i := range entries {
			entries[i].UserID = userID
			if entries[i].CreatedAt.IsZero() {
				entries[i].CreatedAt = now()
			}
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		user.Version++
		return tx.Save(&user).Error
	})
}

func (u *UserController) respondData(ctx *gin.Context, userID uint) {
	data, err := loadUserData(u.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load user data")
		return
	}
	utils.Success(ctx, data)
}

func (u *UserController) writeError(ctx *gin.Context, err error, code int, msg string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
	case errors.Is(err, errStaleSnapshot):
		utils.Error(ctx, http.StatusConflict, 40920, "os dados foram alterados em outra sessão")
	case errors.Is(err, errInvalidEntry):
		utils.Error(ctx, http.StatusBadRequest, 40017, "registro inválido")
	case errors.Is(err, errNegativeBalance):
		utils.Error(ctx, http.StatusBadRequest, 40018, "saldo não pode ficar negativo")
	case errors.Is(err, errInsufficientFunds):
		utils.Error(ctx, http.StatusBadRequest, 40019, "saldo insuficiente")
	case errors.Is(err, errWithdrawLocked):
		utils.Error(ctx, http.StatusForbidden, 40310, "conclua pelo menos 3 livros para liberar o saque")
	default:
		utils.Logger.Error(msg, zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, code, msg)
	}
}
