package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Plan is the subscription tier of a reader.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPremium
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxEarning    TransactionType = "earning"
	TxBonus      TransactionType = "bonus"
	TxWithdrawal TransactionType = "withdrawal"
	TxActivity   TransactionType = "activity"
)

// Valid reports whether t is a known ledger entry type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxEarning, TxBonus, TxWithdrawal, TxActivity:
		return true
	}
	return false
}

// CompletionRecord is one finished book with its paid reward.
type CompletionRecord struct {
	BookSlug    string          `json:"bookSlug"`
	Title       string          `json:"title"`
	Reward      decimal.Decimal `json:"reward"`
	Rating      int             `json:"rating"`
	Difficulty  string          `json:"difficulty,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
}

// LedgerEntry is an append-only balance event.
type LedgerEntry struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// DailyEarning is one point of the 7-day earnings series.
type DailyEarning struct {
	Day    string          `json:"day"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Statistics are derived from the completion list, the monthly goal and the current date.
type Statistics struct {
	TotalBooksRead  int             `json:"totalBooksRead"`
	TodayBooksRead  int             `json:"todayBooksRead"`
	WeekBooksRead   int             `json:"weekBooksRead"`
	MonthBooksRead  int             `json:"monthBooksRead"`
	TodayEarnings   decimal.Decimal `json:"todayEarnings"`
	WeekEarnings    decimal.Decimal `json:"weekEarnings"`
	MonthEarnings   decimal.Decimal `json:"monthEarnings"`
	AverageRating   float64         `json:"averageRating"`
	WeeklyEarnings  []DailyEarning  `json:"weeklyEarnings"`
	WeeklyGoal      decimal.Decimal `json:"weeklyGoal"`
	WeeklyProgress  float64         `json:"weeklyProgress"`
	MonthlyProgress float64         `json:"monthlyProgress"`
	Streak          int             `json:"streak"`
	EasyBooks       int             `json:"easyBooks"`
	MediumBooks     int             `json:"mediumBooks"`
	HardBooks       int             `json:"hardBooks"`
}

// UserData is the full snapshot of one reader exchanged between client and server.
type UserData struct {
	ID             uint               `json:"id"`
	FullName       string             `json:"fullName"`
	Email          string             `json:"email"`
	Phone          string             `json:"phone"`
	Balance        decimal.Decimal    `json:"balance"`
	TotalEarnings  decimal.Decimal    `json:"totalEarnings"`
	MonthlyGoal    decimal.Decimal    `json:"monthlyGoal"`
	Plan           Plan               `json:"plan"`
	SelectedPlan   *Plan              `json:"selectedPlan"`
	CanWithdraw    bool               `json:"canWithdraw"`
	ReferralCode   string             `json:"referralCode,omitempty"`
	BooksCompleted []CompletionRecord `json:"booksCompleted"`
	Transactions   []LedgerEntry      `json:"transactions"`
	Stats          Statistics         `json:"stats"`
	Version        int64              `json:"version"`
}

// Clone returns a deep copy so callers can read it without sharing slices.
func (u UserData) Clone() UserData {
	out := u
	if u.SelectedPlan != nil {
		p := *u.SelectedPlan
		out.SelectedPlan = &p
	}
	out.BooksCompleted = append([]CompletionRecord(nil), u.BooksCompleted...)
	out.Transactions = append([]LedgerEntry(nil), u.Transactions...)
	out.Stats.WeeklyEarnings = append([]DailyEarning(nil), u.Stats.WeeklyEarnings...)
	return out
}
