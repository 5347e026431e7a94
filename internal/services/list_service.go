package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
	"shoplist/internal/log"
	"shoplist/internal/storage"
)

// Publisher announces committed recomputes. Implemented by *amqp.Client.
type Publisher interface {
	PublishListRecomputed(ctx context.Context, list core.ShoppingList) error
}

// ListService orchestrates lists and items: every mutation that can change a
// list's derived fields recomputes them in the same transaction and writes
// the list with a version check.
type ListService struct {
	store     storage.Store
	publisher Publisher
	policy    AlertPolicy
	generator *Generator
	now       func() time.Time
}

// NewListService wires the service. publisher may be nil.
func NewListService(store storage.Store, publisher Publisher, policy AlertPolicy) *ListService {
	return &ListService{
		store:     store,
		publisher: publisher,
		policy:    policy,
		generator: NewGenerator(),
		now:       time.Now,
	}
}

// ListUpdate carries the optional fields of a list update. Version, when
// set, must match the stored version.
type ListUpdate struct {
	Name    *string
	Budget  *decimal.Decimal
	Version *int64
}

// ItemInput describes a new item.
type ItemInput struct {
	ListID            int64
	Name              string
	Category          string
	Quantity          decimal.Decimal
	Unit              string
	UnitPrice         decimal.Decimal
	Priority          string
	Note              string
	Purchased         bool
	PurchasedQuantity *decimal.Decimal
	PaidPrice         *decimal.Decimal
}

// ItemPatch carries the optional fields of an item update.
type ItemPatch struct {
	Name              *string
	Category          *string
	Quantity          *decimal.Decimal
	Unit              *string
	UnitPrice         *decimal.Decimal
	Priority          *string
	Note              *string
	Purchased         *bool
	PurchasedQuantity *decimal.Decimal
	PaidPrice         *decimal.Decimal
	Version           *int64
}

// ownedList loads a live list owned by actor. Lists of other users are
// reported as not found.
func ownedList(ctx context.Context, st storage.Store, actor, id int64) (core.ShoppingList, error) {
	l, err := st.GetList(ctx, id)
	if err != nil {
		return core.ShoppingList{}, err
	}
	if l.UserID != actor {
		return core.ShoppingList{}, fmt.Errorf("list %d: %w", id, core.ErrNotFound)
	}
	return l, nil
}

func checkVersion(expected *int64, actual int64) error {
	if expected != nil && *expected != actual {
		return fmt.Errorf("version %d is stale (current %d): %w", *expected, actual, core.ErrConflict)
	}
	return nil
}

// recompute re-derives the list's total, state and alert from its live
// items and writes them with a version check. A raised alert is appended to
// the alert log in the same transaction, unless the owner turned in-app
// alerts off, and clears any acknowledgement.
func (s *ListService) recompute(ctx context.Context, tx storage.Store, list core.ShoppingList) (core.ShoppingList, error) {
	items, err := tx.ListItems(ctx, list.ID)
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("load items: %w", err)
	}

	previous := list.Alert
	agg := Recompute(list, items, s.policy)
	raised := agg.Apply(&list)
	if raised {
		list.AlertAcknowledgedAt = nil
	}

	updated, err := tx.UpdateList(ctx, list, list.Version)
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("save list %d: %w", list.ID, err)
	}

	if raised {
		prefs, err := tx.GetAlertPreferences(ctx, updated.UserID)
		if err != nil {
			return core.ShoppingList{}, fmt.Errorf("load alert preferences: %w", err)
		}
		if prefs.InApp {
			entry := core.AlertEntry{
				ListID:        updated.ID,
				Level:         updated.Alert,
				Message:       alertMessage(updated),
				TotalAtMoment: updated.Total,
				Push:          prefs.Push,
				Badge:         prefs.Badge,
				CreatedAt:     s.now().UTC(),
			}
			if _, err := tx.AddAlert(ctx, entry); err != nil {
				return core.ShoppingList{}, fmt.Errorf("record alert: %w", err)
			}
		} else {
			slog.DebugContext(ctx, "In-app alerts disabled, alert not logged", "user_id", updated.UserID)
		}
		fields := log.NewFields().
			WithUser(updated.UserID).
			WithList(updated.ID, updated.Version, updated.Total.String(), updated.Budget.String(), string(updated.Alert))
		slog.InfoContext(ctx, "Budget alert raised", append(fields.ToSlice(), "from", previous)...)
	}
	return updated, nil
}

// publish announces list; failures are logged and never returned.
func (s *ListService) publish(ctx context.Context, list core.ShoppingList) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping list event", "list_id", list.ID)
		return
	}
	if err := s.publisher.PublishListRecomputed(ctx, list); err != nil {
		slog.ErrorContext(ctx, "Failed to publish list event",
			"list_id", list.ID, "version", list.Version, "error", err)
	}
}

func (s *ListService) CreateList(ctx context.Context, actor int64, name string, budget decimal.Decimal) (core.ShoppingList, error) {
	l := core.ShoppingList{UserID: actor, Name: strings.TrimSpace(name), Budget: budget}
	if err := l.Validate(); err != nil {
		return core.ShoppingList{}, err
	}
	Recompute(l, nil, s.policy).Apply(&l)

	created, err := s.store.CreateList(ctx, l)
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("create list: %w", err)
	}
	slog.InfoContext(ctx, "List created", "list_id", created.ID, "user_id", actor)
	return created, nil
}

func (s *ListService) GetList(ctx context.Context, actor, id int64) (core.ShoppingList, error) {
	return ownedList(ctx, s.store, actor, id)
}

func (s *ListService) ListLists(ctx context.Context, actor int64) ([]core.ShoppingList, error) {
	return s.store.ListLists(ctx, actor)
}

// UpdateList renames the list or changes its budget. A budget change
// recomputes the derived fields.
func (s *ListService) UpdateList(ctx context.Context, actor, id int64, upd ListUpdate) (core.ShoppingList, error) {
	var out core.ShoppingList
	var recomputed bool
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		l, err := ownedList(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := checkVersion(upd.Version, l.Version); err != nil {
			return err
		}

		if upd.Name != nil {
			l.Name = strings.TrimSpace(*upd.Name)
		}
		budgetChanged := upd.Budget != nil && !upd.Budget.Equal(l.Budget)
		if upd.Budget != nil {
			l.Budget = *upd.Budget
		}
		if err := l.Validate(); err != nil {
			return err
		}

		if budgetChanged {
			out, err = s.recompute(ctx, tx, l)
			recomputed = true
			return err
		}
		out, err = tx.UpdateList(ctx, l, l.Version)
		return err
	})
	if err != nil {
		return core.ShoppingList{}, err
	}
	if recomputed {
		s.publish(ctx, out)
	}
	return out, nil
}

// DeleteList soft-deletes the list and its items.
func (s *ListService) DeleteList(ctx context.Context, actor, id int64, version *int64) error {
	return s.store.WithTx(ctx, func(tx storage.Store) error {
		l, err := ownedList(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, l.Version); err != nil {
			return err
		}
		return tx.DeleteList(ctx, id, l.Version, s.now())
	})
}

// Recompute re-derives and persists the list's total, state and alert.
func (s *ListService) Recompute(ctx context.Context, actor, id int64) (core.ShoppingList, error) {
	var out core.ShoppingList
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		l, err := ownedList(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		out, err = s.recompute(ctx, tx, l)
		return err
	})
	if err != nil {
		return core.ShoppingList{}, err
	}
	s.publish(ctx, out)
	return out, nil
}

// listWithItems loads an owned list and its live items outside a transaction.
func (s *ListService) listWithItems(ctx context.Context, actor, id int64) (core.ShoppingList, []core.Item, error) {
	l, err := ownedList(ctx, s.store, actor, id)
	if err != nil {
		return core.ShoppingList{}, nil, err
	}
	items, err := s.store.ListItems(ctx, id)
	if err != nil {
		return core.ShoppingList{}, nil, fmt.Errorf("load items: %w", err)
	}
	return l, items, nil
}

func (s *ListService) Summary(ctx context.Context, actor, id int64) (core.ListSummary, error) {
	l, items, err := s.listWithItems(ctx, actor, id)
	if err != nil {
		return core.ListSummary{}, err
	}
	return Summarize(l, items), nil
}

func (s *ListService) Categories(ctx context.Context, actor, id int64) ([]core.CategoryAmount, error) {
	_, items, err := s.listWithItems(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(items), nil
}

// Recommendations runs the rule pipeline over the list's current items.
func (s *ListService) Recommendations(ctx context.Context, actor, id int64) ([]string, error) {
	l, items, err := s.listWithItems(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	msgs := s.generator.Generate(l, items)
	slog.DebugContext(ctx, "Recommendations generated",
		"list_id", id, "rules", s.generator.Fired(l, items))
	return msgs, nil
}

func (s *ListService) Snapshots(ctx context.Context, actor, id int64) ([]core.RecommendationSnapshot, error) {
	if _, err := ownedList(ctx, s.store, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, id)
}

func (s *ListService) Alerts(ctx context.Context, actor, id int64) ([]core.AlertEntry, error) {
	if _, err := ownedList(ctx, s.store, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListAlerts(ctx, id)
}

// AcknowledgeAlert stamps the current alert as seen.
func (s *ListService) AcknowledgeAlert(ctx context.Context, actor, id int64) (core.ShoppingList, error) {
	var out core.ShoppingList
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		l, err := ownedList(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		l.AlertAcknowledgedAt = &now
		out, err = tx.UpdateList(ctx, l, l.Version)
		return err
	})
	return out, err
}

func (s *ListService) ListItems(ctx context.Context, actor, listID int64) ([]core.Item, error) {
	_, items, err := s.listWithItems(ctx, actor, listID)
	return items, err
}

// ownedItem loads a live item whose list belongs to actor.
func ownedItem(ctx context.Context, st storage.Store, actor, id int64) (core.Item, core.ShoppingList, error) {
	it, err := st.GetItem(ctx, id)
	if err != nil {
		return core.Item{}, core.ShoppingList{}, err
	}
	l, err := ownedList(ctx, st, actor, it.ListID)
	if err != nil {
		return core.Item{}, core.ShoppingList{}, err
	}
	return it, l, nil
}

func (s *ListService) GetItem(ctx context.Context, actor, id int64) (core.Item, error) {
	it, _, err := ownedItem(ctx, s.store, actor, id)
	return it, err
}

// CreateItem adds an item and recomputes its list.
func (s *ListService) CreateItem(ctx context.Context, actor int64, in ItemInput) (core.Item, error) {
	priority, err := core.ParsePriority(in.Priority)
	if err != nil {
		return core.Item{}, err
	}
	it := core.Item{
		ListID:    in.ListID,
		Name:      strings.TrimSpace(in.Name),
		Category:  strings.TrimSpace(in.Category),
		Quantity:  in.Quantity,
		Unit:      strings.TrimSpace(in.Unit),
		UnitPrice: in.UnitPrice,
		Priority:  priority,
		Note:      in.Note,
	}
	if in.Purchased {
		it.MarkPurchased(s.now().UTC(), in.PurchasedQuantity, in.PaidPrice)
	}
	if err := it.Validate(); err != nil {
		return core.Item{}, err
	}

	var created core.Item
	var list core.ShoppingList
	err = s.store.WithTx(ctx, func(tx storage.Store) error {
		l, err := ownedList(ctx, tx, actor, it.ListID)
		if err != nil {
			return err
		}
		created, err = tx.CreateItem(ctx, it)
		if err != nil {
			return err
		}
		list, err = s.recompute(ctx, tx, l)
		return err
	})
	if err != nil {
		return core.Item{}, err
	}

	slog.InfoContext(ctx, "Item created",
		append(log.NewFields().WithItem(created.ID, created.ListID).ToSlice(), "total", list.Total.String())...)
	s.publish(ctx, list)
	return created, nil
}

func applyPatch(it *core.Item, p ItemPatch, now time.Time) error {
	if p.Name != nil {
		it.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		it.Category = strings.TrimSpace(*p.Category)
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		it.Unit = strings.TrimSpace(*p.Unit)
	}
	if p.UnitPrice != nil {
		it.UnitPrice = *p.UnitPrice
	}
	if p.Priority != nil {
		priority, err := core.ParsePriority(*p.Priority)
		if err != nil {
			return err
		}
		it.Priority = priority
	}
	if p.Note != nil {
		it.Note = *p.Note
	}

	purchased := it.Purchased
	if p.Purchased != nil {
		purchased = *p.Purchased
	}
	switch {
	case purchased:
		it.MarkPurchased(now, p.PurchasedQuantity, p.PaidPrice)
	case it.Purchased:
		it.ClearPurchase()
	}
	return it.Validate()
}

// UpdateItem applies a partial update and recomputes the item's list.
func (s *ListService) UpdateItem(ctx context.Context, actor, id int64, patch ItemPatch) (core.Item, error) {
	var updated core.Item
	var list core.ShoppingList
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		it, l, err := ownedItem(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := checkVersion(patch.Version, it.Version); err != nil {
			return err
		}
		if err := applyPatch(&it, patch, s.now().UTC()); err != nil {
			return err
		}
		updated, err = tx.UpdateItem(ctx, it, it.Version)
		if err != nil {
			return err
		}
		list, err = s.recompute(ctx, tx, l)
		return err
	})
	if err != nil {
		return core.Item{}, err
	}
	s.publish(ctx, list)
	return updated, nil
}

// DeleteItem soft-deletes the item and recomputes its list.
func (s *ListService) DeleteItem(ctx context.Context, actor, id int64, version *int64) error {
	var list core.ShoppingList
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		it, l, err := ownedItem(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := checkVersion(version, it.Version); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, id, it.Version, s.now()); err != nil {
			return err
		}
		list, err = s.recompute(ctx, tx, l)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, list)
	return nil
}
