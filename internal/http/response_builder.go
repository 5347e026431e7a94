// Package http provides the JSON API server and its handlers.
//
// This file implements a small builder for JSON responses, the wire views
// of the domain types and the single error-to-status mapping.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
	"shoplist/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// ETag sets a strong entity tag from a version counter.
func (b *JSONResponseBuilder) ETag(version int64) *JSONResponseBuilder {
	return b.Header("ETag", `"`+itoa(version)+`"`)
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. 204 responses carry no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent || b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// Error kinds reported in the error envelope.
const (
	KindNotFound        = "not_found"
	KindValidation      = "validation"
	KindConflict        = "conflict"
	KindUnauthenticated = "unauthenticated"
	KindRateLimited     = "rate_limited"
	KindInternal        = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// classify maps an error to its status, kind and client-facing message.
// Internal errors never leak their text.
func classify(err error) (int, errorDetail) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorDetail{Kind: KindValidation, Message: ve.Error(), Field: ve.Field}
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, errorDetail{Kind: KindValidation, Message: err.Error()}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorDetail{Kind: KindNotFound, Message: "resource not found"}
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, errorDetail{Kind: KindConflict, Message: "version conflict, reload and retry"}
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, errorDetail{Kind: KindUnauthenticated, Message: "missing or unknown " + UserIDHeader}
	default:
		return http.StatusInternalServerError, errorDetail{Kind: KindInternal, Message: "internal error"}
	}
}

// writeError is the only place errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		logger := log.FromContext(r.Context())
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err,
			log.ComponentHTTP, r.Method+" "+r.Pattern, log.NewFields().WithErrorKind(detail.Kind))
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
			log.FieldErrorKind, detail.Kind, log.FieldError, err.Error())
	}
	NewJSONResponse().Status(status).Body(errorBody{Error: detail}).Write(w)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(errorBody{Error: errorDetail{Kind: KindRateLimited, Message: "rate limit exceeded, try again later"}}).
		Write(w)
}

type userView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Currency  string    `json:"currency,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u core.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Currency: u.Currency, CreatedAt: u.CreatedAt}
}

type alertPreferencesView struct {
	UserID    int64      `json:"user_id"`
	InApp     bool       `json:"in_app"`
	Push      bool       `json:"push"`
	Badge     bool       `json:"badge"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func newAlertPreferencesView(p core.AlertPreferences) alertPreferencesView {
	v := alertPreferencesView{UserID: p.UserID, InApp: p.InApp, Push: p.Push, Badge: p.Badge}
	if !p.UpdatedAt.IsZero() {
		v.UpdatedAt = &p.UpdatedAt
	}
	return v
}

type listView struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"user_id"`
	Name                string     `json:"name"`
	Budget              string     `json:"budget"`
	Total               string     `json:"total"`
	BudgetState         string     `json:"budget_state"`
	AlertLevel          string     `json:"alert_level"`
	AlertAcknowledgedAt *time.Time `json:"alert_acknowledged_at,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func newListView(l core.ShoppingList) listView {
	return listView{
		ID:                  l.ID,
		UserID:              l.UserID,
		Name:                l.Name,
		Budget:              core.FormatAmount(l.Budget),
		Total:               core.FormatAmount(l.Total),
		BudgetState:         string(l.State),
		AlertLevel:          string(l.Alert),
		AlertAcknowledgedAt: l.AlertAcknowledgedAt,
		Version:             l.Version,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
}

type itemView struct {
	ID                int64      `json:"id"`
	ListID            int64      `json:"list_id"`
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	Quantity          string     `json:"quantity"`
	Unit              string     `json:"unit"`
	UnitPrice         string     `json:"unit_price"`
	Subtotal          string     `json:"subtotal"`
	Priority          string     `json:"priority"`
	Note              string     `json:"note"`
	Purchased         bool       `json:"purchased"`
	PurchasedAt       *time.Time `json:"purchased_at,omitempty"`
	PurchasedQuantity *string    `json:"purchased_quantity,omitempty"`
	PaidPrice         *string    `json:"paid_price,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func optionalAmount(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := core.FormatAmount(*d)
	return &s
}

func newItemView(it core.Item) itemView {
	return itemView{
		ID:                it.ID,
		ListID:            it.ListID,
		Name:              it.Name,
		Category:          it.Category,
		Quantity:          core.FormatAmount(it.Quantity),
		Unit:              it.Unit,
		UnitPrice:         core.FormatAmount(it.UnitPrice),
		Subtotal:          core.FormatAmount(it.Subtotal()),
		Priority:          string(it.Priority),
		Note:              it.Note,
		Purchased:         it.Purchased,
		PurchasedAt:       it.PurchasedAt,
		PurchasedQuantity: optionalAmount(it.PurchasedQuantity),
		PaidPrice:         optionalAmount(it.PaidPrice),
		Version:           it.Version,
		CreatedAt:         it.CreatedAt,
		UpdatedAt:         it.UpdatedAt,
	}
}

func newItemViews(items []core.Item) []itemView {
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		out = append(out, newItemView(it))
	}
	return out
}

type summaryView struct {
	ListID         int64  `json:"list_id"`
	Budget         string `json:"budget"`
	Total          string `json:"total"`
	Remaining      string `json:"remaining"`
	Spent          string `json:"spent"`
	OverBudget     bool   `json:"over_budget"`
	BudgetState    string `json:"budget_state"`
	AlertLevel     string `json:"alert_level"`
	ItemCount      int    `json:"item_count"`
	PurchasedCount int    `json:"purchased_count"`
}

func newSummaryView(s core.ListSummary) summaryView {
	return summaryView{
		ListID:         s.ListID,
		Budget:         core.FormatAmount(s.Budget),
		Total:          core.FormatAmount(s.Total),
		Remaining:      core.FormatAmount(s.Remaining),
		Spent:          core.FormatAmount(s.Spent),
		OverBudget:     s.OverBudget,
		BudgetState:    string(s.State),
		AlertLevel:     string(s.Alert),
		ItemCount:      s.ItemCount,
		PurchasedCount: s.PurchasedCount,
	}
}

type categoryView struct {
	Category   string `json:"category"`
	Total      string `json:"total"`
	Percentage string `json:"percentage"`
}

type alertView struct {
	ID            int64     `json:"id"`
	ListID        int64     `json:"list_id"`
	Level         string    `json:"level"`
	Message       string    `json:"message"`
	TotalAtMoment string    `json:"total_at_moment"`
	Push          bool      `json:"push"`
	Badge         bool      `json:"badge"`
	CreatedAt     time.Time `json:"created_at"`
}

type snapshotView struct {
	ID           int64     `json:"id"`
	ListID       int64     `json:"list_id"`
	ListVersion  int64     `json:"list_version"`
	Messages     []string  `json:"messages"`
	TotalUsed    string    `json:"total_used"`
	BudgetUnused string    `json:"budget_unused"`
	CreatedAt    time.Time `json:"created_at"`
}

type historyView struct {
	UserID             int64     `json:"user_id"`
	Month              string    `json:"month"`
	Total              string    `json:"total"`
	ItemCount          int       `json:"item_count"`
	AveragePerCategory string    `json:"average_per_category"`
	UpdatedAt          time.Time `json:"updated_at"`
}
