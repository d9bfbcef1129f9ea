package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a reader account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	FullName      string          `gorm:"size:128;not null" json:"full_name"`
	Email         string          `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Phone         string          `gorm:"size:32" json:"phone"`
	PasswordHash  string          `gorm:"size:255" json:"-"`
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	TotalEarnings decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_earnings"`
	MonthlyGoal   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"monthly_goal"`
	Plan          string          `gorm:"size:16;not null;default:'free'" json:"plan"`
	SelectedPlan  *string         `gorm:"size:16" json:"selected_plan"`
	CanWithdraw   bool            `gorm:"not null;default:false" json:"can_withdraw"`
	ReferralCode  string          `gorm:"size:16;uniqueIndex" json:"referral_code"`
	ReferredBy    *uint           `gorm:"index" json:"referred_by,omitempty"`
	RegisterIP    string          `gorm:"size:45" json:"-"`
	UTMSource     string          `gorm:"size:128" json:"utm_source,omitempty"`
	UTMMedium     string          `gorm:"size:128" json:"utm_medium,omitempty"`
	UTMCampaign   string          `gorm:"size:128" json:"utm_campaign,omitempty"`
	UTMContent    string          `gorm:"size:128" json:"utm_content,omitempty"`
	UTMTerm       string          `gorm:"size:128" json:"utm_term,omitempty"`
	Version       int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// DefaultMonthlyGoal applies when a reader has not chosen a goal yet.
var DefaultMonthlyGoal = decimal.NewFromInt(500)

// BeforeCreate fills plan, goal, version and referral code when missing.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Plan == "" {
		u.Plan = string(PlanFree)
	}
	if !u.MonthlyGoal.IsPositive() {
		u.MonthlyGoal = DefaultMonthlyGoal
	}
	if u.Version == 0 {
		u.Version = 1
	}
	if u.ReferralCode == "" {
		u.ReferralCode = NewReferralCode()
	}
	return nil
}

// NewReferralCode returns an 8 character uppercase code.
func NewReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// UTM holds campaign attribution parameters captured on first visit.
type UTM struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
	Content  string `json:"utm_content"`
	Term     string `json:"utm_term"`
}

// Empty reports whether no parameter is set.
func (u UTM) Empty() bool {
	return u.Source == "" && u.Medium == "" && u.Campaign == "" && u.Content == "" && u.Term == ""
}

// ApplyUTM stores attribution on the user.
func (u *User) ApplyUTM(utm UTM) {
	u.UTMSource = utm.Source
	u.UTMMedium = utm.Medium
	u.UTMCampaign = utm.Campaign
	u.UTMContent = utm.Content
	u.UTMTerm = utm.Term
}

// ToUserData builds the wire snapshot. Stats are left for the caller to compute.
func (u *User) ToUserData(completions []BookCompletion, txs []Transaction) UserData {
	data := UserData{
		ID:             u.ID,
		FullName:       u.FullName,
		Email:          u.Email,
		Phone:          u.Phone,
		Balance:        u.Balance,
		TotalEarnings:  u.TotalEarnings,
		MonthlyGoal:    u.MonthlyGoal,
		Plan:           Plan(u.Plan),
		CanWithdraw:    u.CanWithdraw,
		ReferralCode:   u.ReferralCode,
		Version:        u.Version,
		BooksCompleted: make([]CompletionRecord, 0, len(completions)),
		Transactions:   make([]LedgerEntry, 0, len(txs)),
	}
	if u.SelectedPlan != nil {
		p := Plan(*u.SelectedPlan)
		data.SelectedPlan = &p
	}
	for _, c := range completions {
		data.BooksCompleted = append(data.BooksCompleted, c.Record())
	}
	for _, t := range txs {
		data.Transactions = append(data.Transactions, t.Entry())
	}
	return data
}
