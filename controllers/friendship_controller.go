package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/gateway"
	"github.com/betareaderbr/betareader/models"
	"github.com/betareaderbr/betareader/utils"
)

// FriendshipController manages reading friends and invitations.
type FriendshipController struct {
	db *gorm.DB
}

// NewFriendshipController creates a new FriendshipController instance.
func NewFriendshipController(db *gorm.DB) *FriendshipController {
	return &FriendshipController{db: db}
}

// ListFriends returns every friendship of the reader, both directions.
func (f *FriendshipController) ListFriends(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var links []models.Friendship
	if err := f.db.Preload("Requester").Preload("Addressee").
		Where("requester_id = ? OR addressee_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&links).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to list friends")
		return
	}

	otherIDs := make([]uint, 0, len(links))
	for _, l := range links {
		otherIDs = append(otherIDs, otherSide(l, userID).ID)
	}
	counts, err := f.completionCounts(utils.Unique(otherIDs))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to count completions")
		return
	}

	out := make([]gateway.Friend, 0, len(links))
	for _, l := range links {
		out = append(out, toFriendView(l, userID, counts))
	}
	utils.Success(ctx, out)
}

func otherSide(l models.Friendship, userID uint) models.User {
	if l.RequesterID == userID {
		return l.Addressee
	}
	return l.Requester
}

func toFriendView(l models.Friendship, userID uint, counts map[uint]int64) gateway.Friend {
	other := otherSide(l, userID)
	direction := "incoming"
	if l.RequesterID == userID {
		direction = "outgoing"
	}
	return gateway.Friend{
		ID:        l.ID,
		Status:    l.Status,
		Direction: direction,
		Friend: gateway.FriendUser{
			ID:             other.ID,
			FullName:       other.FullName,
			BooksCompleted: counts[other.ID],
		},
	}
}

func (f *FriendshipController) completionCounts(userIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		UserID uint
		Total  int64
	}
	err := f.db.Model(&models.BookCompletion{}).
		Select("user_id, COUNT(*) AS total").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.UserID] = r.Total
	}
	return counts, nil
}

// SendRequest invites another reader found by e-mail or referral code.
func (f *FriendshipController) SendRequest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req gateway.FriendRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	var target models.User
	var err error
	switch {
	case strings.TrimSpace(req.Email) != "":
		err = f.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&target).Error
	case strings.TrimSpace(req.ReferralCode) != "":
		err = f.db.Where("referral_code = ?", strings.ToUpper(strings.TrimSpace(req.ReferralCode))).First(&target).Error
	default:
		utils.Error(ctx, http.StatusBadRequest, 40041, "informe e-mail ou código de indicação")
		return
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "leitor não encontrado")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to find reader")
		return
	}
	if target.ID == userID {
		utils.Error(ctx, http.StatusBadRequest, 40042, "você não pode adicionar a si mesmo")
		return
	}

	var existing int64
	if err := f.db.Model(&models.Friendship{}).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", userID, target.ID, target.ID, userID).
		Count(&existing).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to check friendship")
		return
	}
	if existing > 0 {
		utils.Error(ctx, http.StatusConflict, 40940, "convite já existe")
		return
	}

	link := models.Friendship{RequesterID: userID, AddresseeID: target.ID, Status: models.FriendshipPending}
	if err := f.db.Create(&link).Error; err != nil {
		if isDuplicateErr(err) {
			utils.Error(ctx, http.StatusConflict, 40940, "convite já existe")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to create friendship")
		return
	}
	link.Addressee = target

	counts, _ := f.completionCounts([]uint{target.ID})
	utils.Success(ctx, toFriendView(link, userID, counts))
}

// AcceptRequest accepts a pending invitation addressed to the reader.
func (f *FriendshipController) AcceptRequest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40043, "invalid id")
		return
	}

	res := f.db.Model(&models.Friendship{}).
		Where("id = ? AND addressee_id = ? AND status = ?", id, userID, models.FriendshipPending).
		Update("status", models.FriendshipAccepted)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to accept friendship")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40441, "convite não encontrado")
		return
	}
	utils.Success(ctx, gin.H{"message": "accepted"})
}

// RemoveFriend deletes a friendship, or declines an invitation, from either side.
func (f *FriendshipController) RemoveFriend(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40043, "invalid id")
		return
	}

	res := f.db.Where("id = ? AND (requester_id = ? OR addressee_id = ?)", id, userID, userID).
		Delete(&models.Friendship{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50046, "failed to remove friendship")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40441, "convite não encontrado")
		return
	}
	utils.Success(ctx, gin.H{"message": "removed"})
}
