package core

import "github.com/shopspring/decimal"

// Uncategorized labels items without a category in breakdowns.
const Uncategorized = "Uncategorized"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name       string
	Amount     decimal.Decimal
	Percentage decimal.Decimal // share of the list total, 0-100
}

// ListSummary is a compact budget view of one list.
type ListSummary struct {
	ListID         int64
	Budget         decimal.Decimal
	Total          decimal.Decimal
	Remaining      decimal.Decimal
	Spent          decimal.Decimal
	OverBudget     bool
	State          BudgetState
	Alert          AlertLevel
	ItemCount      int
	PurchasedCount int
}
