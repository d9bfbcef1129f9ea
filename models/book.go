package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Book is a readable excerpt with a reward and a short quiz.
type Book struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Slug       string          `gorm:"size:128;uniqueIndex;not null" json:"slug"`
	Title      string          `gorm:"size:255;not null" json:"title"`
	Author     string          `gorm:"size:128" json:"author"`
	Excerpt    string          `gorm:"type:text" json:"excerpt"`
	Reward     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"reward"`
	Difficulty string          `gorm:"size:16;index" json:"difficulty"`
	Category   string          `gorm:"size:64;index" json:"category"`
	Premium    bool            `gorm:"not null;default:false" json:"premium"`
	Questions  datatypes.JSON  `gorm:"type:json" json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// QuizQuestion is one multiple choice question. Answer is the index of the right option.
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

// Quiz decodes the stored questions; an empty column yields no questions.
func (b *Book) Quiz() ([]QuizQuestion, error) {
	if len(b.Questions) == 0 {
		return nil, nil
	}
	var qs []QuizQuestion
	if err := json.Unmarshal(b.Questions, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// CheckAnswers reports whether answers match every question in order.
func (b *Book) CheckAnswers(answers []int) (bool, error) {
	qs, err := b.Quiz()
	if err != nil {
		return false, err
	}
	if len(answers) != len(qs) {
		return false, nil
	}
	for i, q := range qs {
		if answers[i] != q.Answer {
			return false, nil
		}
	}
	return true, nil
}

// BookCompletion is the persisted CompletionRecord. (user_id, book_slug) is unique.
type BookCompletion struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"uniqueIndex:idx_completion_user_book;not null" json:"user_id"`
	BookSlug    string          `gorm:"uniqueIndex:idx_completion_user_book;size:128;not null" json:"book_slug"`
	Title       string          `gorm:"size:255" json:"title"`
	Reward      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"reward"`
	Rating      int             `gorm:"not null;default:0" json:"rating"`
	Difficulty  string          `gorm:"size:16" json:"difficulty"`
	CompletedAt time.Time       `gorm:"index;not null" json:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Record converts to the wire form.
func (c BookCompletion) Record() CompletionRecord {
	return CompletionRecord{
		BookSlug:    c.BookSlug,
		Title:       c.Title,
		Reward:      c.Reward,
		Rating:      c.Rating,
		Difficulty:  c.Difficulty,
		CompletedAt: c.CompletedAt,
	}
}

// CompletionFromRecord converts a wire record for the given user.
func CompletionFromRecord(userID uint, r CompletionRecord) BookCompletion {
	return BookCompletion{
		UserID:      userID,
		BookSlug:    r.BookSlug,
		Title:       r.Title,
		Reward:      r.Reward,
		Rating:      r.Rating,
		Difficulty:  r.Difficulty,
		CompletedAt: r.CompletedAt,
	}
}
