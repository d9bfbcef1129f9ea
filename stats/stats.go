// Package stats derives reading statistics from a reader's completion history.
//
// Everything here is pure: the same completions, goal and clock always give the
// same Statistics, so the server and the client session can both call Recompute.
package stats

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betareaderbr/betareader/models"
)

const dateLayout = "2006-01-02"

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// WithdrawMinBooks is the number of completions that unlocks withdrawals.
const WithdrawMinBooks = 3

// weekdayLabels is indexed by time.Weekday.
var weekdayLabels = [7]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

var hundred = decimal.NewFromInt(100)

var difficultyAliases = map[string]string{
	"easy":    DifficultyEasy,
	"fácil":   DifficultyEasy,
	"facil":   DifficultyEasy,
	"medium":  DifficultyMedium,
	"médio":   DifficultyMedium,
	"medio":   DifficultyMedium,
	"hard":    DifficultyHard,
	"difícil": DifficultyHard,
	"dificil": DifficultyHard,
}

// NormalizeDifficulty maps a difficulty tag to one of the three buckets, or "" when unknown.
func NormalizeDifficulty(tag string) string {
	return difficultyAliases[strings.ToLower(strings.TrimSpace(tag))]
}

// Recompute builds Statistics for completions relative to now (in now's location).
func Recompute(completions []models.CompletionRecord, monthlyGoal decimal.Decimal, now time.Time) models.Statistics {
	loc := now.Location()
	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)

	s := models.Statistics{
		TodayEarnings:  decimal.Zero,
		WeekEarnings:   decimal.Zero,
		MonthEarnings:  decimal.Zero,
		WeeklyGoal:     decimal.Zero,
		WeeklyEarnings: make([]models.DailyEarning, 7),
	}

	seriesIndex := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		d := today.AddDate(0, 0, i-6)
		key := d.Format(dateLayout)
		seriesIndex[key] = i
		s.WeeklyEarnings[i] = models.DailyEarning{
			Day:    weekdayLabels[d.Weekday()],
			Date:   key,
			Amount: decimal.Zero,
		}
	}

	activeDays := make(map[string]struct{}, len(completions))
	ratingSum := 0
	for _, c := range completions {
		at := c.CompletedAt.In(loc)
		key := at.Format(dateLayout)
		reward := c.Reward

		s.TotalBooksRead++
		ratingSum += c.Rating
		activeDays[key] = struct{}{}

		if at.Before(tomorrow) {
			if !at.Before(today) {
				s.TodayBooksRead++
				s.TodayEarnings = s.TodayEarnings.Add(reward)
			}
			if !at.Before(weekStart) {
				s.WeekBooksRead++
				s.WeekEarnings = s.WeekEarnings.Add(reward)
			}
			if !at.Before(monthStart) {
				s.MonthBooksRead++
				s.MonthEarnings = s.MonthEarnings.Add(reward)
			}
		}
		if i, ok := seriesIndex[key]; ok {
			s.WeeklyEarnings[i].Amount = s.WeeklyEarnings[i].Amount.Add(reward)
		}

		switch NormalizeDifficulty(c.Difficulty) {
		case DifficultyEasy:
			s.EasyBooks++
		case DifficultyMedium:
			s.MediumBooks++
		case DifficultyHard:
			s.HardBooks++
		}
	}

	if s.TotalBooksRead > 0 {
		s.AverageRating = float64(ratingSum) / float64(s.TotalBooksRead)
	}
	if monthlyGoal.IsPositive() {
		s.WeeklyGoal = monthlyGoal.Div(decimal.NewFromInt(4)).Round(2)
	}
	s.WeeklyProgress = Progress(s.WeekEarnings, s.WeeklyGoal)
	s.MonthlyProgress = Progress(s.MonthEarnings, monthlyGoal)
	s.Streak = streak(activeDays, today)
	return s
}

// Progress returns earned/goal as a percentage in [0, 100], rounded to two places.
// A non-positive goal yields 0.
func Progress(earned, goal decimal.Decimal) float64 {
	if !goal.IsPositive() || !earned.IsPositive() {
		return 0
	}
	p := earned.Mul(hundred).Div(goal)
	if p.GreaterThan(hundred) {
		p = hundred
	}
	return p.Round(2).InexactFloat64()
}

// CanWithdraw reports whether the completion count unlocks withdrawals.
func CanWithdraw(completed int) bool {
	return completed >= WithdrawMinBooks
}

// streak counts consecutive active days back from today. A day without
// completions breaks it, except today which may still be filled in.
func streak(activeDays map[string]struct{}, today time.Time) int {
	day := today
	if _, ok := activeDays[day.Format(dateLayout)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for {
		if _, ok := activeDays[day.Format(dateLayout)]; !ok {
			return n
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
