package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"shoplist/internal/amqp"
	"shoplist/internal/core"
	"shoplist/internal/services"
	"shoplist/internal/storage"
)

// HistorySink receives rebuilt history rows for export.
type HistorySink interface {
	Enqueue(h core.MonthlyHistory)
}

// ListWorker maintains the read caches derived from list events:
// recommendation snapshots per list version and monthly history per user.
type ListWorker struct {
	store     storage.Store
	generator *services.Generator
	sink      HistorySink
}

// NewListWorker wires the worker. sink may be nil when no export is configured.
func NewListWorker(store storage.Store, sink HistorySink) *ListWorker {
	return &ListWorker{
		store:     store,
		generator: services.NewGenerator(),
		sink:      sink,
	}
}

// HandleListRecomputed processes a single list event from AMQP. Events for
// lists that no longer exist are acknowledged without work.
func (w *ListWorker) HandleListRecomputed(ctx context.Context, msg *amqp.ListRecomputedMessage) error {
	slog.InfoContext(ctx, "Processing list event",
		"event_id", msg.EventID,
		"list_id", msg.ListID,
		"version", msg.Version)

	list, err := w.store.GetList(ctx, msg.ListID)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "List gone, skipping event", "list_id", msg.ListID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get list %d: %w", msg.ListID, err)
	}
	if list.Version > msg.Version {
		slog.DebugContext(ctx, "Event is older than the stored list",
			"list_id", list.ID, "event_version", msg.Version, "version", list.Version)
	}

	if err := w.snapshot(ctx, list); err != nil {
		return err
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = list.UpdatedAt
	}
	h, err := services.RebuildMonthlyHistory(ctx, w.store, list.UserID, at)
	if err != nil {
		return fmt.Errorf("rebuild history: %w", err)
	}
	if w.sink != nil {
		w.sink.Enqueue(h)
	}

	slog.InfoContext(ctx, "List event processed",
		"list_id", list.ID,
		"month", h.Month,
		"month_total", h.Total.String())
	return nil
}

// snapshot stores the recommendations of the list's current version once.
func (w *ListWorker) snapshot(ctx context.Context, list core.ShoppingList) error {
	return w.store.WithTx(ctx, func(tx storage.Store) error {
		exists, err := tx.HasSnapshot(ctx, list.ID, list.Version)
		if err != nil {
			return fmt.Errorf("check snapshot: %w", err)
		}
		if exists {
			slog.DebugContext(ctx, "Snapshot already stored", "list_id", list.ID, "version", list.Version)
			return nil
		}

		items, err := tx.ListItems(ctx, list.ID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		unused := list.Budget.Sub(list.Total)
		if unused.IsNegative() {
			unused = decimal.Zero
		}
		_, err = tx.SaveSnapshot(ctx, core.RecommendationSnapshot{
			ListID:       list.ID,
			ListVersion:  list.Version,
			Messages:     w.generator.Generate(list, items),
			TotalUsed:    list.Total,
			BudgetUnused: unused,
		})
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	})
}
