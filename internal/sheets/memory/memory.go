// Package memory is an in-process HistoryExporter used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"shoplist/internal/core"
	"shoplist/internal/sheets"
)

type rowKey struct {
	userID int64
	month  string
}

type Store struct {
	mu   sync.Mutex
	rows []core.MonthlyHistory
	idx  map[rowKey]int
}

var _ sheets.HistoryExporter = (*Store)(nil)

func New() *Store {
	return &Store{idx: make(map[rowKey]int)}
}

// ExportHistory stores the row and returns a synthetic row reference.
func (s *Store) ExportHistory(_ context.Context, h core.MonthlyHistory) (string, error) {
	if h.UserID <= 0 || h.Month == "" {
		return "", core.Invalid("history", "user and month are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rowKey{userID: h.UserID, month: h.Month}
	if i, ok := s.idx[k]; ok {
		s.rows[i] = h
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, h)
	s.idx[k] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns the exported rows in first-export order.
func (s *Store) Rows() []core.MonthlyHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.MonthlyHistory(nil), s.rows...)
}
