package sheets

import (
	"context"

	"shoplist/internal/core"
)

// Ports for outbound adapters.
type (
	// HistoryExporter writes a user's monthly history row to an external
	// sheet. Exporting the same user and month twice overwrites the row.
	HistoryExporter interface {
		ExportHistory(ctx context.Context, h core.MonthlyHistory) (rowRef string, err error)
	}
)
