// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for spending recommendations.
// Each rule is an independent pure check over a list and its items that
// yields at most one advisory message.

package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

// Rule thresholds.
var (
	LargeQuantityThreshold = decimal.NewFromInt(10)
	HighUnitPriceThreshold = decimal.NewFromInt(30000)
)

// SparseListMaxItems is the largest item count considered a sparse list.
const SparseListMaxItems = 2

// Rule is the strategy interface for one recommendation heuristic.
type Rule interface {
	// Name identifies the rule in logs.
	Name() string
	// Evaluate returns the advisory message and true when the rule fires.
	Evaluate(list core.ShoppingList, items []core.Item) (string, bool)
}

// BudgetExceededRule fires when the items cost more than the budget.
type BudgetExceededRule struct{}

func (BudgetExceededRule) Name() string { return "budget_exceeded" }

func (BudgetExceededRule) Evaluate(list core.ShoppingList, items []core.Item) (string, bool) {
	if Total(items).GreaterThan(list.Budget) {
		return "You are over budget. Consider removing or reducing some items.", true
	}
	return "", false
}

// TopCategoryRule names the category with the highest spend. Items without
// a category are ignored; ties go to the category seen first.
type TopCategoryRule struct{}

func (TopCategoryRule) Name() string { return "top_category" }

func (TopCategoryRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	sums := make(map[string]decimal.Decimal)
	var order []string
	for _, it := range items {
		cat := strings.TrimSpace(it.Category)
		if cat == "" {
			continue
		}
		if _, seen := sums[cat]; !seen {
			order = append(order, cat)
			sums[cat] = decimal.Zero
		}
		sums[cat] = sums[cat].Add(it.Subtotal())
	}
	if len(order) == 0 {
		return "", false
	}

	top := order[0]
	for _, cat := range order[1:] {
		if sums[cat].GreaterThan(sums[top]) {
			top = cat
		}
	}
	return fmt.Sprintf("Most of your spending goes to %s.", top), true
}

// LargeQuantityRule names the first item bought in bulk.
type LargeQuantityRule struct{}

func (LargeQuantityRule) Name() string { return "large_quantity" }

func (LargeQuantityRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	for _, it := range items {
		if it.Quantity.GreaterThanOrEqual(LargeQuantityThreshold) {
			return fmt.Sprintf("You are buying a large quantity of %s. Make sure you need that much.", it.Name), true
		}
	}
	return "", false
}

// HighUnitPriceRule names the first item with an expensive unit price.
type HighUnitPriceRule struct{}

func (HighUnitPriceRule) Name() string { return "high_unit_price" }

func (HighUnitPriceRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	for _, it := range items {
		if it.UnitPrice.GreaterThan(HighUnitPriceThreshold) {
			return fmt.Sprintf("%s has a high unit price. Look for a cheaper alternative.", it.Name), true
		}
	}
	return "", false
}

// DuplicateNamesRule lists every name that appears more than once.
// Names are compared trimmed and case-insensitively; the first spelling is reported.
type DuplicateNamesRule struct{}

func (DuplicateNamesRule) Name() string { return "duplicate_names" }

func (DuplicateNamesRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	counts := make(map[string]int)
	spelling := make(map[string]string)
	var order []string
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.Name))
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			spelling[key] = strings.TrimSpace(it.Name)
		}
		counts[key]++
	}

	var dups []string
	for _, key := range order {
		if counts[key] > 1 {
			dups = append(dups, spelling[key])
		}
	}
	if len(dups) == 0 {
		return "", false
	}
	return "Duplicate items on your list: " + strings.Join(dups, ", ") + ".", true
}

// SparseListRule fires for lists with very few items.
type SparseListRule struct{}

func (SparseListRule) Name() string { return "sparse_list" }

func (SparseListRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	if len(items) <= SparseListMaxItems {
		return "Your list is very short. Did you forget something?", true
	}
	return "", false
}

// InvalidQuantityRule names the first item whose quantity is not positive.
type InvalidQuantityRule struct{}

func (InvalidQuantityRule) Name() string { return "invalid_quantity" }

func (InvalidQuantityRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	if i := firstInvalidQuantity(items); i >= 0 {
		return fmt.Sprintf("%s has an invalid quantity.", items[i].Name), true
	}
	return "", false
}

// NegativePriceRule names the first item with a negative unit price. The
// item already reported by InvalidQuantityRule is skipped.
type NegativePriceRule struct{}

func (NegativePriceRule) Name() string { return "negative_price" }

func (NegativePriceRule) Evaluate(_ core.ShoppingList, items []core.Item) (string, bool) {
	skip := firstInvalidQuantity(items)
	for i, it := range items {
		if i == skip {
			continue
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Sprintf("%s has a negative price.", it.Name), true
		}
	}
	return "", false
}

func firstInvalidQuantity(items []core.Item) int {
	for i, it := range items {
		if !it.Quantity.IsPositive() {
			return i
		}
	}
	return -1
}

// DefaultRules returns the rule pipeline in output order.
func DefaultRules() []Rule {
	return []Rule{
		BudgetExceededRule{},
		TopCategoryRule{},
		LargeQuantityRule{},
		HighUnitPriceRule{},
		DuplicateNamesRule{},
		SparseListRule{},
		InvalidQuantityRule{},
		NegativePriceRule{},
	}
}
