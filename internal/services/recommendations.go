package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

// Generator runs an ordered rule pipeline over a list.
type Generator struct {
	rules []Rule
}

// NewGenerator returns a generator using rules, or DefaultRules when none are given.
func NewGenerator(rules ...Rule) *Generator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Generator{rules: rules}
}

// Generate returns the messages of every rule that fires, in rule order.
// Rules only see live items. It never returns nil so an empty result
// encodes as [] in JSON.
func (g *Generator) Generate(list core.ShoppingList, items []core.Item) []string {
	items = liveItems(items)
	messages := make([]string, 0, len(g.rules))
	for _, r := range g.rules {
		if msg, ok := r.Evaluate(list, items); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

// Fired returns the names of the rules that fire, for logging.
func (g *Generator) Fired(list core.ShoppingList, items []core.Item) []string {
	items = liveItems(items)
	var names []string
	for _, r := range g.rules {
		if _, ok := r.Evaluate(list, items); ok {
			names = append(names, r.Name())
		}
	}
	return names
}

func liveItems(items []core.Item) []core.Item {
	live := make([]core.Item, 0, len(items))
	for _, it := range items {
		if !it.IsDeleted() {
			live = append(live, it)
		}
	}
	return live
}

var hundred = decimal.NewFromInt(100)

// Summarize builds the budget view of list from its live items.
func Summarize(list core.ShoppingList, items []core.Item) core.ListSummary {
	s := core.ListSummary{
		ListID: list.ID,
		Budget: list.Budget,
		Total:  Total(items),
		Spent:  decimal.Zero,
		State:  list.State,
		Alert:  list.Alert,
	}
	for _, it := range items {
		if it.IsDeleted() {
			continue
		}
		s.ItemCount++
		if it.Purchased {
			s.PurchasedCount++
			if it.PaidPrice != nil {
				s.Spent = s.Spent.Add(*it.PaidPrice)
			} else {
				s.Spent = s.Spent.Add(it.Subtotal())
			}
		}
	}
	s.Remaining = list.Budget.Sub(s.Total)
	s.OverBudget = s.Total.GreaterThan(list.Budget)
	return s
}

// CategoryBreakdown groups live item subtotals by category in first-seen order.
// Items without a category fall into core.Uncategorized. Percentages are
// rounded to two places; a zero total reports 0 for every category.
func CategoryBreakdown(items []core.Item) []core.CategoryAmount {
	sums := make(map[string]decimal.Decimal)
	var order []string
	total := decimal.Zero
	for _, it := range items {
		if it.IsDeleted() {
			continue
		}
		name := strings.TrimSpace(it.Category)
		if name == "" {
			name = core.Uncategorized
		}
		if _, seen := sums[name]; !seen {
			order = append(order, name)
			sums[name] = decimal.Zero
		}
		sub := it.Subtotal()
		sums[name] = sums[name].Add(sub)
		total = total.Add(sub)
	}

	out := make([]core.CategoryAmount, 0, len(order))
	for _, name := range order {
		pct := decimal.Zero
		if !total.IsZero() {
			pct = sums[name].Mul(hundred).DivRound(total, core.AmountPlaces)
		}
		out = append(out, core.CategoryAmount{Name: name, Amount: sums[name], Percentage: pct})
	}
	return out
}
