package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

const monthLayout = "2006-01"

// MonthBounds returns the [from, to) UTC window of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// ParseMonth parses a YYYY-MM month key.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(monthLayout, month)
	if err != nil {
		return time.Time{}, core.Invalid("month", fmt.Sprintf("invalid month %q (expected YYYY-MM)", month))
	}
	return t, nil
}

// MonthKey formats t as the YYYY-MM key used by MonthlyHistory.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// paidAmount is what was actually spent on a purchased item.
func paidAmount(it core.Item) decimal.Decimal {
	if it.PaidPrice != nil {
		return *it.PaidPrice
	}
	return it.Subtotal()
}

// BuildMonthlyHistory aggregates purchased items into the user's history row
// for month. AveragePerCategory divides the total by the number of distinct
// categories (empty counts as one) and is zero when nothing was bought.
func BuildMonthlyHistory(userID int64, month string, items []core.Item) core.MonthlyHistory {
	h := core.MonthlyHistory{
		UserID:             userID,
		Month:              month,
		Total:              decimal.Zero,
		AveragePerCategory: decimal.Zero,
	}
	categories := make(map[string]struct{})
	for _, it := range items {
		if !it.Purchased || it.IsDeleted() {
			continue
		}
		h.Total = h.Total.Add(paidAmount(it))
		h.ItemCount++
		categories[strings.ToLower(strings.TrimSpace(it.Category))] = struct{}{}
	}
	if n := len(categories); n > 0 {
		h.AveragePerCategory = h.Total.DivRound(decimal.NewFromInt(int64(n)), core.AmountPlaces)
	}
	return h
}
