package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shoplist/internal/core"
)

var historyHeader = []any{"User", "Month", "Total", "Items", "Average per category", "Updated"}

// historyValues lays out one history row as columns A:F.
func historyValues(h core.MonthlyHistory) []any {
	return []any{
		h.UserID,
		h.Month,
		core.FormatAmount(h.Total),
		h.ItemCount,
		core.FormatAmount(h.AveragePerCategory),
		h.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// findHistoryRow returns the 1-based sheet row holding userID and month in
// columns A:B. When absent it returns the row after the last one.
func findHistoryRow(values [][]any, userID int64, month string) (int, bool) {
	for i, row := range values {
		if len(row) < 2 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err != nil {
			continue
		}
		if id == userID && strings.TrimSpace(fmt.Sprint(row[1])) == month {
			return i + 1, true
		}
	}
	return len(values) + 1, false
}
