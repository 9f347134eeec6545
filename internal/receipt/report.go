package receipt

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// DefaultReportMonths is the report window when none is requested
const DefaultReportMonths = 6

const monthLayout = "2006-01"

// MonthlyTotal is the spend for one calendar month
type MonthlyTotal struct {
	Month string          `json:"month"` // YYYY-MM
	Total decimal.Decimal `json:"total"`
}

// CategoryTotal is the spend for one category over the report window
type CategoryTotal struct {
	Category scanning.Category `json:"category"`
	Total    decimal.Decimal   `json:"total"`
}

// Report summarizes spend over the last few calendar months
type Report struct {
	Since      string          `json:"since"` // YYYY-MM-DD, first day of the oldest month
	Total      decimal.Decimal `json:"total"`
	Monthly    []MonthlyTotal  `json:"monthly"`
	Categories []CategoryTotal `json:"categories"`
}

// buildReport groups expenses into the months window ending at now.
// Every month in the window is present, oldest first, even with no spend.
// Categories with spend are sorted by total, largest first.
func buildReport(expenses []*Expense, months int, now time.Time) *Report {
	if months <= 0 {
		months = DefaultReportMonths
	}
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	since := firstOfMonth.AddDate(0, -(months - 1), 0)
	through := now.Format(isoDate)

	monthly := make([]MonthlyTotal, months)
	monthIndex := make(map[string]int, months)
	for i := range monthly {
		m := since.AddDate(0, i, 0).Format(monthLayout)
		monthly[i] = MonthlyTotal{Month: m, Total: decimal.Zero}
		monthIndex[m] = i
	}

	total := decimal.Zero
	byCategory := make(map[scanning.Category]decimal.Decimal)
	sinceDate := since.Format(isoDate)

	for _, e := range expenses {
		// Dates are YYYY-MM-DD so string order is date order
		if len(e.Date) != len(isoDate) || e.Date < sinceDate || e.Date > through {
			continue
		}
		i, ok := monthIndex[e.Date[:len(monthLayout)]]
		if !ok {
			continue
		}
		monthly[i].Total = monthly[i].Total.Add(e.Amount)
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	categories := make([]CategoryTotal, 0, len(byCategory))
	for c, t := range byCategory {
		categories = append(categories, CategoryTotal{Category: c, Total: t})
	}
	sort.Slice(categories, func(i, j int) bool {
		if !categories[i].Total.Equal(categories[j].Total) {
			return categories[i].Total.GreaterThan(categories[j].Total)
		}
		return categories[i].Category < categories[j].Category
	})

	return &Report{
		Since:      sinceDate,
		Total:      total,
		Monthly:    monthly,
		Categories: categories,
	}
}

// Report summarizes an owner's expenses over the last months calendar months,
// including the current one
func (s *Service) Report(ownerID string, months int) (*Report, error) {
	expenses, err := s.db.ListExpenses(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return buildReport(expenses, months, s.timeSource.Now()), nil
}
