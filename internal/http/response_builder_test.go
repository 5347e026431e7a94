package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/lists/3").
		ETag(2).
		Body(map[string]int{"id": 3}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if w.Header().Get("ETag") != `"2"` || w.Header().Get("Location") != "/lists/3" {
		t.Errorf("headers = %v", w.Header())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "{\"id\":3}\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Body("ignored").Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with %d body bytes", w.Code, w.Body.Len())
	}
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{core.Invalid("name", "is required"), http.StatusBadRequest, KindValidation},
		{fmt.Errorf("get list 3: %w", core.ErrNotFound), http.StatusNotFound, KindNotFound},
		{fmt.Errorf("update list: %w", core.ErrConflict), http.StatusConflict, KindConflict},
		{core.ErrUnauthenticated, http.StatusUnauthorized, KindUnauthenticated},
		{errors.New("disk on fire"), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest(http.MethodGet, "/lists/3", nil), tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
			}
			if body.Error.Kind != tt.kind || body.Error.Message == "" {
				t.Errorf("error = %+v, want kind %s", body.Error, tt.kind)
			}
			if tt.kind == KindInternal && body.Error.Message != "internal error" {
				t.Errorf("internal error text leaked: %q", body.Error.Message)
			}
		})
	}
}

func TestItemView_Amounts(t *testing.T) {
	paid := decimal.RequireFromString("1.5")
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	v := newItemView(core.Item{
		ID:          1,
		Name:        "Milk",
		Quantity:    decimal.NewFromInt(3),
		UnitPrice:   decimal.RequireFromString("0.5"),
		Priority:    core.PriorityHigh,
		Purchased:   true,
		PurchasedAt: &at,
		PaidPrice:   &paid,
	})

	if v.Quantity != "3.00" || v.UnitPrice != "0.50" || v.Subtotal != "1.50" {
		t.Errorf("amounts = %s %s %s", v.Quantity, v.UnitPrice, v.Subtotal)
	}
	if v.PaidPrice == nil || *v.PaidPrice != "1.50" {
		t.Errorf("PaidPrice = %v", v.PaidPrice)
	}
	if v.PurchasedQuantity != nil {
		t.Errorf("PurchasedQuantity should be omitted, got %v", *v.PurchasedQuantity)
	}
}
