package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StateOK         BudgetState = "OK"
	StateOverBudget BudgetState = "OVER_BUDGET"

	AlertNone   AlertLevel = "NONE"
	AlertYellow AlertLevel = "YELLOW"
	AlertRed    AlertLevel = "RED"

	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

const (
	maxNameLength     = 100
	maxCategoryLength = 50
	maxUnitLength     = 30
	maxEmailLength    = 100
	currencyCodeLen   = 3
)

type (
	BudgetState string
	AlertLevel  string
	Priority    string

	User struct {
		ID    int64
		Name  string
		Email string // unique, stored lower-cased
		// Currency is the preferred ISO 4217 code, empty when unset.
		Currency  string
		CreatedAt time.Time
	}

	// AlertPreferences selects how a user is told about raised budget
	// alerts. InApp controls whether the alert log records the raise; Push
	// and Badge are copied onto each recorded entry for delivery channels.
	AlertPreferences struct {
		UserID    int64
		InApp     bool
		Push      bool
		Badge     bool
		UpdatedAt time.Time
	}

	ShoppingList struct {
		ID                  int64
		UserID              int64
		Name                string
		Budget              decimal.Decimal
		Total               decimal.Decimal // derived, see services.Recompute
		State               BudgetState
		Alert               AlertLevel
		AlertAcknowledgedAt *time.Time
		CreatedAt           time.Time
		UpdatedAt           time.Time
		DeletedAt           *time.Time
		Version             int64
	}

	Item struct {
		ID                int64
		ListID            int64
		Name              string
		Category          string
		Quantity          decimal.Decimal
		Unit              string
		UnitPrice         decimal.Decimal
		Priority          Priority
		Note              string
		Purchased         bool
		PurchasedAt       *time.Time
		PurchasedQuantity *decimal.Decimal
		PaidPrice         *decimal.Decimal
		CreatedAt         time.Time
		UpdatedAt         time.Time
		DeletedAt         *time.Time
		Version           int64
	}

	AlertEntry struct {
		ID            int64
		ListID        int64
		Level         AlertLevel
		Message       string
		TotalAtMoment decimal.Decimal
		Push          bool
		Badge         bool
		CreatedAt     time.Time
	}

	RecommendationSnapshot struct {
		ID           int64
		ListID       int64
		ListVersion  int64
		Messages     []string
		TotalUsed    decimal.Decimal
		BudgetUnused decimal.Decimal
		CreatedAt    time.Time
	}

	MonthlyHistory struct {
		UserID             int64
		Month              string // YYYY-MM
		Total              decimal.Decimal
		ItemCount          int
		AveragePerCategory decimal.Decimal
		UpdatedAt          time.Time
	}
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("version conflict")
	ErrUnauthenticated = errors.New("missing or unknown caller identity")
)

// ValidationError carries the offending field. It matches ErrValidation via errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Subtotal returns quantity times unit price.
func (it Item) Subtotal() decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice)
}

// IsDeleted reports whether the list has been soft-deleted.
func (l ShoppingList) IsDeleted() bool {
	return l.DeletedAt != nil
}

// IsDeleted reports whether the item has been soft-deleted.
func (it Item) IsDeleted() bool {
	return it.DeletedAt != nil
}

// Rank orders alert levels so the ladder can be compared.
func (a AlertLevel) Rank() int {
	switch a {
	case AlertYellow:
		return 1
	case AlertRed:
		return 2
	default:
		return 0
	}
}

func (a AlertLevel) IsValid() bool {
	switch a {
	case AlertNone, AlertYellow, AlertRed:
		return true
	}
	return false
}

// ParsePriority accepts the canonical names and the legacy single-letter codes.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MEDIUM", "M":
		return PriorityMedium, nil
	case "HIGH", "A":
		return PriorityHigh, nil
	case "LOW", "B":
		return PriorityLow, nil
	}
	return "", Invalid("priority", "must be one of HIGH, MEDIUM, LOW")
}

// DefaultAlertPreferences applies to users that never saved their own.
func DefaultAlertPreferences(userID int64) AlertPreferences {
	return AlertPreferences{UserID: userID, InApp: true, Push: false, Badge: true}
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (u User) Validate() error {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return Invalid("name", "is required")
	}
	if len(name) > maxNameLength {
		return Invalid("name", "too long (max 100 characters)")
	}

	email := NormalizeEmail(u.Email)
	if email == "" {
		return Invalid("email", "is required")
	}
	if len(email) > maxEmailLength {
		return Invalid("email", "too long (max 100 characters)")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Invalid("email", "must be a plain address like name@example.com")
	}

	if c := NormalizeCurrency(u.Currency); c != "" {
		if len(c) != currencyCodeLen {
			return Invalid("currency", "must be a 3-letter ISO 4217 code")
		}
		for _, r := range c {
			if r < 'A' || r > 'Z' {
				return Invalid("currency", "must be a 3-letter ISO 4217 code")
			}
		}
	}
	return nil
}

func (l ShoppingList) Validate() error {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		return Invalid("name", "is required")
	}
	if len(name) > maxNameLength {
		return Invalid("name", "too long (max 100 characters)")
	}
	if l.Budget.IsNegative() {
		return Invalid("budget", "must not be negative")
	}
	if l.UserID <= 0 {
		return Invalid("user_id", "is required")
	}
	return nil
}

func (it Item) Validate() error {
	name := strings.TrimSpace(it.Name)
	if name == "" {
		return Invalid("name", "is required")
	}
	if len(name) > maxNameLength {
		return Invalid("name", "too long (max 100 characters)")
	}
	if len(it.Category) > maxCategoryLength {
		return Invalid("category", "too long (max 50 characters)")
	}
	if len(it.Unit) > maxUnitLength {
		return Invalid("unit", "too long (max 30 characters)")
	}
	if !it.Quantity.IsPositive() {
		return Invalid("quantity", "must be greater than zero")
	}
	if it.UnitPrice.IsNegative() {
		return Invalid("unit_price", "must not be negative")
	}
	switch it.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return Invalid("priority", "must be one of HIGH, MEDIUM, LOW")
	}
	if it.PurchasedQuantity != nil && it.PurchasedQuantity.IsNegative() {
		return Invalid("purchased_quantity", "must not be negative")
	}
	if it.PaidPrice != nil && it.PaidPrice.IsNegative() {
		return Invalid("paid_price", "must not be negative")
	}
	if it.ListID <= 0 {
		return Invalid("list_id", "is required")
	}
	return nil
}

// MarkPurchased applies the purchase transition at now. Explicit purchase
// values win over the defaults; PurchasedAt is only set on false->true.
func (it *Item) MarkPurchased(now time.Time, quantity, paid *decimal.Decimal) {
	if !it.Purchased {
		it.Purchased = true
		t := now
		it.PurchasedAt = &t
	}
	if quantity != nil {
		q := *quantity
		it.PurchasedQuantity = &q
	} else if it.PurchasedQuantity == nil {
		q := it.Quantity
		it.PurchasedQuantity = &q
	}
	if paid != nil {
		p := *paid
		it.PaidPrice = &p
	} else if it.PaidPrice == nil {
		p := it.Subtotal()
		it.PaidPrice = &p
	}
}

// ClearPurchase reverts the item to not purchased.
func (it *Item) ClearPurchase() {
	it.Purchased = false
	it.PurchasedAt = nil
	it.PurchasedQuantity = nil
	it.PaidPrice = nil
}
