package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

func TestStore_ExportHistoryOverwrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	h := core.MonthlyHistory{UserID: 1, Month: "2026-03", Total: decimal.NewFromInt(10)}
	ref, err := s.ExportHistory(ctx, h)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}

	h.Total = decimal.NewFromInt(12)
	ref, err = s.ExportHistory(ctx, h)
	if err != nil || ref != "mem:1" {
		t.Fatalf("re-export should reuse the row: ref=%q err=%v", ref, err)
	}

	ref, _ = s.ExportHistory(ctx, core.MonthlyHistory{UserID: 1, Month: "2026-04"})
	if ref != "mem:2" {
		t.Errorf("new month ref = %q, want mem:2", ref)
	}

	rows := s.Rows()
	if len(rows) != 2 || !rows[0].Total.Equal(decimal.NewFromInt(12)) {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestStore_ExportHistoryRejectsIncompleteRows(t *testing.T) {
	s := New()
	if _, err := s.ExportHistory(context.Background(), core.MonthlyHistory{Month: "2026-03"}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
