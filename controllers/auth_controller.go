package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/middleware"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/utils"
)

// AuthController handles account registration and sessions.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Register creates a reader account, credits the referrer if any and opens a session.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		FullName     string     `json:"full_name" binding:"required"`
		Email        string     `json:"email" binding:"required,email"`
		Phone        string     `json:"phone"`
		Password     string     `json:"password" binding:"required"`
		ReferralCode string     `json:"referral_code"`
		UTM          models.UTM `json:"utm"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	fullName := utils.SanitizeText(req.FullName)
	if l := len([]rune(fullName)); l < 2 || l > 128 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "nome deve ter entre 2 e 128 caracteres")
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ip := ctx.ClientIP()
	if err := utils.CheckRegistration(ctx.Request.Context(), ip); err != nil {
		code := 42910
		switch {
		case errors.Is(err, utils.ErrRegisterBanned):
			code = 42920
		case errors.Is(err, utils.ErrRegisterDailyLimit):
			code = 42921
		}
		utils.Error(ctx, http.StatusTooManyRequests, code, err.Error())
		return
	}

	var existing models.User
	if err := a.db.Where("email = ?", email).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "e-mail já cadastrado")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		FullName:     fullName,
		Email:        email,
		Phone:        utils.SanitizeText(req.Phone),
		PasswordHash: hash,
		MonthlyGoal:  config.Get().DefaultMonthlyGoal,
		RegisterIP:   ip,
	}
	// The first-touch cookie wins over whatever the client reports.
	utm := middleware.UTMFromContext(ctx)
	if utm.Empty() {
		utm = req.UTM
	}
	user.ApplyUTM(utm)

	var referrer *models.User
	if code := strings.ToUpper(strings.TrimSpace(req.ReferralCode)); code != "" {
		var ref models.User
		if err := a.db.Where("referral_code = ?", code).First(&ref).Error; err == nil {
			referrer = &ref
			user.ReferredBy = &ref.ID
		} else {
			utils.Logger.Info("unknown referral code", zap.String("code", code))
		}
	}

	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		return creditReferral(tx, referrer.ID, &user, config.Get().ReferralBonus)
	})
	if err != nil {
		utils.RecordRegistrationFailure(ctx.Request.Context(), ip)
		if isDuplicateErr(err) {
			utils.Error(ctx, http.StatusConflict, 40901, "e-mail já cadastrado")
			return
		}
		utils.Logger.Error("register failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}
	utils.RecordRegistrationSuccess(ctx.Request.Context(), ip)
	if referrer != nil {
		invalidateUserStats(ctx.Request.Context(), referrer.ID)
	}

	a.issueSession(ctx, user.ID, user.Email)
}

// creditReferral pays the referral bonus and links both readers as friends.
func creditReferral(tx *gorm.DB, referrerID uint, newcomer *models.User, bonus decimal.Decimal) error {
	var ref models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ref, referrerID).Error; err != nil {
		return err
	}

	if bonus.IsPositive() {
		entry := models.Transaction{
			UserID:      ref.ID,
			Type:        string(models.TxBonus),
			Description: "Bônus de indicação: " + newcomer.FullName,
			Amount:      bonus,
			CreatedAt:   now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		ref.Balance = ref.Balance.Add(bonus)
		ref.TotalEarnings = ref.TotalEarnings.Add(bonus)
		ref.Version++
		if err := tx.Save(&ref).Error; err != nil {
			return err
		}
	}

	return tx.Create(&models.Friendship{
		RequesterID: ref.ID,
		AddresseeID: newcomer.ID,
		Status:      models.FriendshipAccepted,
	}).Error
}

// Login verifies credentials and opens a session.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "e-mail ou senha inválidos")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "e-mail ou senha inválidos")
		return
	}

	a.issueSession(ctx, user.ID, user.Email)
}

func (a *AuthController) issueSession(ctx *gin.Context, userID uint, email string) {
	ttl := utils.TokenTTL()
	token, err := utils.GenerateToken(userID, email, ttl)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}
	data, err := loadUserData(a.db, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to load user data")
		return
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.SessionCookie, token, int(ttl/time.Second), "/", "", ctx.Request.TLS != nil, true)
	utils.Success(ctx, gin.H{
		"token": token,
		"user":  data,
	})
}

// Logout revokes the current token until it would have expired.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "missing session")
		return
	}

	expiresAt := now().Add(utils.TokenTTL())
	if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.RevokeToken(ctx.Request.Context(), token, expiresAt)

	ctx.SetCookie(middleware.SessionCookie, "", -1, "/", "", ctx.Request.TLS != nil, true)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated reader's snapshot.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	data, err := loadUserData(a.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to load user")
		return
	}
	utils.Success(ctx, data)
}
