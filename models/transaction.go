package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is the persisted LedgerEntry. Rows are never updated or deleted.
type Transaction struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	Type        string          `gorm:"size:16;index;not null" json:"type"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a uuid when the client did not send one.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Entry converts to the wire form.
func (t Transaction) Entry() LedgerEntry {
	return LedgerEntry{
		ID:          t.ID,
		Type:        TransactionType(t.Type),
		Description: t.Description,
		Amount:      t.Amount,
		CreatedAt:   t.CreatedAt,
	}
}

// TransactionFromEntry converts a wire entry for the given user.
func TransactionFromEntry(userID uint, e LedgerEntry) Transaction {
	return Transaction{
		ID:          e.ID,
		UserID:      userID,
		Type:        string(e.Type),
		Description: e.Description,
		Amount:      e.Amount,
		CreatedAt:   e.CreatedAt,
	}
}

// LedgerTotals derives balance and lifetime earnings from the ledger.
// Earnings count positive earning and bonus entries; balance is the signed sum.
func LedgerTotals(txs []Transaction) (balance, earnings decimal.Decimal) {
	for _, t := range txs {
		balance = balance.Add(t.Amount)
		switch TransactionType(t.Type) {
		case TxEarning, TxBonus:
			if t.Amount.IsPositive() {
				earnings = earnings.Add(t.Amount)
			}
		}
	}
	return balance, earnings
}
