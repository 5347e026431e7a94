// Package services provides business logic and orchestration services.
//
// This file implements the aggregation engine: it derives a list's total,
// budget state and alert level from its live items.
package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

// Default alert thresholds, expressed as a share of the budget.
// YELLOW from 90% of the budget, RED once the budget is exceeded.
var (
	DefaultYellowRatio = decimal.RequireFromString("0.90")
	DefaultRedRatio    = decimal.RequireFromString("1.00")
)

// AlertPolicy is the threshold ladder used to derive alert levels.
type AlertPolicy struct {
	YellowRatio decimal.Decimal
	RedRatio    decimal.Decimal
}

// DefaultAlertPolicy returns the documented default ladder.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{YellowRatio: DefaultYellowRatio, RedRatio: DefaultRedRatio}
}

// NewAlertPolicy builds a policy from float ratios read from configuration.
func NewAlertPolicy(yellow, red float64) (AlertPolicy, error) {
	p := AlertPolicy{
		YellowRatio: decimal.NewFromFloat(yellow).Round(4),
		RedRatio:    decimal.NewFromFloat(red).Round(4),
	}
	if err := p.Validate(); err != nil {
		return AlertPolicy{}, err
	}
	return p, nil
}

func (p AlertPolicy) Validate() error {
	if !p.YellowRatio.IsPositive() {
		return fmt.Errorf("yellow ratio %s must be positive", p.YellowRatio)
	}
	if p.RedRatio.LessThan(p.YellowRatio) {
		return fmt.Errorf("red ratio %s must not be below yellow ratio %s", p.RedRatio, p.YellowRatio)
	}
	return nil
}

// Level places total on the ladder for budget. Comparisons multiply the
// budget instead of dividing the total, so a zero budget needs no special
// arithmetic: any positive total is RED.
func (p AlertPolicy) Level(total, budget decimal.Decimal) core.AlertLevel {
	if !budget.IsPositive() {
		if total.IsPositive() {
			return core.AlertRed
		}
		return core.AlertNone
	}
	switch {
	case total.GreaterThan(budget.Mul(p.RedRatio)):
		return core.AlertRed
	case total.GreaterThanOrEqual(budget.Mul(p.YellowRatio)):
		return core.AlertYellow
	default:
		return core.AlertNone
	}
}

// Aggregate holds the derived fields of a list.
type Aggregate struct {
	Total decimal.Decimal
	State core.BudgetState
	Alert core.AlertLevel
}

// Total sums quantity x unit price over items, skipping deleted ones.
func Total(items []core.Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.IsDeleted() {
			continue
		}
		total = total.Add(it.Subtotal())
	}
	return total
}

// Recompute derives total, state and alert for list from items. It is a
// pure function: the same inputs always give the same Aggregate.
func Recompute(list core.ShoppingList, items []core.Item, policy AlertPolicy) Aggregate {
	budget := list.Budget
	total := Total(items)
	state := core.StateOK
	if total.GreaterThan(budget) {
		state = core.StateOverBudget
	}
	return Aggregate{
		Total: total,
		State: state,
		Alert: policy.Level(total, budget),
	}
}

// Apply copies the aggregate onto list and reports whether the alert level rose.
func (a Aggregate) Apply(list *core.ShoppingList) (raised bool) {
	raised = a.Alert.Rank() > list.Alert.Rank()
	list.Total = a.Total
	list.State = a.State
	list.Alert = a.Alert
	return raised
}

// alertMessage describes a raised alert for the alert log.
func alertMessage(list core.ShoppingList) string {
	if list.Alert == core.AlertRed {
		return fmt.Sprintf("List %q is over its budget of %s (total %s)",
			list.Name, core.FormatAmount(list.Budget), core.FormatAmount(list.Total))
	}
	return fmt.Sprintf("List %q is close to its budget of %s (total %s)",
		list.Name, core.FormatAmount(list.Budget), core.FormatAmount(list.Total))
}
