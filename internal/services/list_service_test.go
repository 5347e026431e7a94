package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
	"shoplist/internal/storage"
	"shoplist/internal/storage/memory"
)

type fakePublisher struct {
	mu    sync.Mutex
	lists []core.ShoppingList
	err   error
}

func (p *fakePublisher) PublishListRecomputed(_ context.Context, list core.ShoppingList) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists = append(p.lists, list)
	return p.err
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lists)
}

type fixture struct {
	svc   *ListService
	store *memory.Store
	pub   *fakePublisher
	user  core.User
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		pub:   &fakePublisher{},
		now:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	f.store.WithClock(func() time.Time { return f.now })
	f.svc = NewListService(f.store, f.pub, DefaultAlertPolicy())
	f.svc.now = func() time.Time { return f.now }

	u, err := f.store.CreateUser(context.Background(), core.User{Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	f.user = u
	return f
}

func (f *fixture) list(t *testing.T, budget string) core.ShoppingList {
	t.Helper()
	l, err := f.svc.CreateList(context.Background(), f.user.ID, "Weekly", dec(budget))
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	return l
}

func (f *fixture) item(t *testing.T, listID int64, name, qty, price string) core.Item {
	t.Helper()
	it, err := f.svc.CreateItem(context.Background(), f.user.ID, ItemInput{
		ListID:    listID,
		Name:      name,
		Quantity:  dec(qty),
		UnitPrice: dec(price),
	})
	if err != nil {
		t.Fatalf("CreateItem(%s) error = %v", name, err)
	}
	return it
}

func ptr[T any](v T) *T { return &v }

func TestListService_CreateList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := f.list(t, "100")
	if l.Version != 1 || l.State != core.StateOK || l.Alert != core.AlertNone || !l.Total.IsZero() {
		t.Errorf("unexpected new list: %+v", l)
	}
	if f.pub.count() != 0 {
		t.Errorf("list creation should not publish, got %d events", f.pub.count())
	}

	tests := []struct {
		name   string
		budget string
	}{
		{"empty name", "10"},
		{"negative budget", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listName := "Groceries"
			if tt.name == "empty name" {
				listName = "   "
			}
			_, err := f.svc.CreateList(ctx, f.user.ID, listName, dec(tt.budget))
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestListService_ItemMutationsRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100000")

	f.item(t, l.ID, "TV", "1", "60000")
	second := f.item(t, l.ID, "Console", "1", "60000")

	got, err := f.svc.GetList(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("GetList() error = %v", err)
	}
	if !got.Total.Equal(dec("120000")) || got.State != core.StateOverBudget || got.Alert != core.AlertRed {
		t.Errorf("after two items: total %s state %s alert %s", got.Total, got.State, got.Alert)
	}
	if got.Version != 3 {
		t.Errorf("Version = %d, want 3 (one bump per recompute)", got.Version)
	}

	if err := f.svc.DeleteItem(ctx, f.user.ID, second.ID, ptr(second.Version)); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	got, _ = f.svc.GetList(ctx, f.user.ID, l.ID)
	if !got.Total.Equal(dec("60000")) || got.State != core.StateOK || got.Alert != core.AlertNone {
		t.Errorf("after delete: total %s state %s alert %s", got.Total, got.State, got.Alert)
	}

	if f.pub.count() != 3 {
		t.Errorf("published %d events, want 3", f.pub.count())
	}
}

func TestListService_AlertLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")

	f.item(t, l.ID, "Cheese", "1", "95") // YELLOW
	f.item(t, l.ID, "Wine", "1", "10")   // RED
	f.item(t, l.ID, "Bread", "1", "1")   // still RED, no new entry

	alerts, err := f.svc.Alerts(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alert entries, want 2", len(alerts))
	}
	if alerts[0].Level != core.AlertYellow || alerts[1].Level != core.AlertRed {
		t.Errorf("alert levels = %s, %s", alerts[0].Level, alerts[1].Level)
	}
	if !alerts[1].TotalAtMoment.Equal(dec("105")) {
		t.Errorf("TotalAtMoment = %s, want 105", alerts[1].TotalAtMoment)
	}
}

func TestListService_AlertLogFollowsPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.SaveAlertPreferences(ctx, core.AlertPreferences{UserID: f.user.ID, InApp: true, Push: true, Badge: false})
	if err != nil {
		t.Fatalf("SaveAlertPreferences() error = %v", err)
	}
	l := f.list(t, "10")
	f.item(t, l.ID, "Cheese", "1", "20")

	alerts, _ := f.svc.Alerts(ctx, f.user.ID, l.ID)
	if len(alerts) != 1 || !alerts[0].Push || alerts[0].Badge {
		t.Fatalf("alerts = %+v, want one entry with push and without badge", alerts)
	}

	_, err = f.store.SaveAlertPreferences(ctx, core.AlertPreferences{UserID: f.user.ID, InApp: false})
	if err != nil {
		t.Fatalf("SaveAlertPreferences() error = %v", err)
	}
	quiet, err := f.svc.CreateList(ctx, f.user.ID, "Party", dec("10"))
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	f.item(t, quiet.ID, "Wine", "1", "50")

	got, _ := f.svc.GetList(ctx, f.user.ID, quiet.ID)
	if got.Alert != core.AlertRed {
		t.Errorf("Alert = %s, want RED regardless of preferences", got.Alert)
	}
	alerts, _ = f.svc.Alerts(ctx, f.user.ID, quiet.ID)
	if len(alerts) != 0 {
		t.Errorf("got %d alert entries with in-app alerts off, want 0", len(alerts))
	}
}

func TestListService_AcknowledgeAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "10")
	f.item(t, l.ID, "Cheese", "1", "9.50")

	acked, err := f.svc.AcknowledgeAlert(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("AcknowledgeAlert() error = %v", err)
	}
	if acked.AlertAcknowledgedAt == nil || !acked.AlertAcknowledgedAt.Equal(f.now) {
		t.Errorf("AlertAcknowledgedAt = %v, want %v", acked.AlertAcknowledgedAt, f.now)
	}

	f.item(t, l.ID, "Wine", "1", "5")
	got, _ := f.svc.GetList(ctx, f.user.ID, l.ID)
	if got.AlertAcknowledgedAt != nil {
		t.Error("a raised alert should clear the acknowledgement")
	}
}

func TestListService_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "50")
	it := f.item(t, l.ID, "Milk", "1", "2")

	other, err := f.store.CreateUser(ctx, core.User{Name: "Bea", Email: "bea@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	checks := []struct {
		name string
		call func() error
	}{
		{"get list", func() error { _, err := f.svc.GetList(ctx, other.ID, l.ID); return err }},
		{"recompute", func() error { _, err := f.svc.Recompute(ctx, other.ID, l.ID); return err }},
		{"recommendations", func() error { _, err := f.svc.Recommendations(ctx, other.ID, l.ID); return err }},
		{"get item", func() error { _, err := f.svc.GetItem(ctx, other.ID, it.ID); return err }},
		{"delete item", func() error { return f.svc.DeleteItem(ctx, other.ID, it.ID, nil) }},
		{"create item", func() error {
			_, err := f.svc.CreateItem(ctx, other.ID, ItemInput{ListID: l.ID, Name: "Eggs", Quantity: dec("1"), UnitPrice: dec("1")})
			return err
		}},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if err := c.call(); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}

	lists, err := f.svc.ListLists(ctx, other.ID)
	if err != nil || len(lists) != 0 {
		t.Errorf("ListLists(other) = %d lists, err %v", len(lists), err)
	}
}

func TestListService_UpdateList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	f.item(t, l.ID, "Cheese", "1", "95")
	published := f.pub.count()

	cur, _ := f.svc.GetList(ctx, f.user.ID, l.ID)
	if cur.Alert != core.AlertYellow {
		t.Fatalf("Alert = %s, want YELLOW", cur.Alert)
	}

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := f.svc.UpdateList(ctx, f.user.ID, l.ID, ListUpdate{Name: ptr("Renamed"), Version: ptr(cur.Version - 1)})
		if !errors.Is(err, core.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("rename does not publish", func(t *testing.T) {
		renamed, err := f.svc.UpdateList(ctx, f.user.ID, l.ID, ListUpdate{Name: ptr("Renamed"), Version: ptr(cur.Version)})
		if err != nil {
			t.Fatalf("UpdateList() error = %v", err)
		}
		if renamed.Name != "Renamed" || renamed.Version != cur.Version+1 {
			t.Errorf("unexpected list: %+v", renamed)
		}
		if f.pub.count() != published {
			t.Error("rename should not publish")
		}
	})

	t.Run("budget change recomputes", func(t *testing.T) {
		updated, err := f.svc.UpdateList(ctx, f.user.ID, l.ID, ListUpdate{Budget: ptr(dec("200"))})
		if err != nil {
			t.Fatalf("UpdateList() error = %v", err)
		}
		if updated.Alert != core.AlertNone || updated.State != core.StateOK {
			t.Errorf("after budget raise: alert %s state %s", updated.Alert, updated.State)
		}
		if f.pub.count() != published+1 {
			t.Errorf("budget change should publish once, got %d new events", f.pub.count()-published)
		}
	})

	t.Run("invalid budget", func(t *testing.T) {
		_, err := f.svc.UpdateList(ctx, f.user.ID, l.ID, ListUpdate{Budget: ptr(dec("-5"))})
		if !errors.Is(err, core.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestListService_DeleteListCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	it := f.item(t, l.ID, "Milk", "2", "1.20")

	cur, _ := f.svc.GetList(ctx, f.user.ID, l.ID)
	if err := f.svc.DeleteList(ctx, f.user.ID, l.ID, ptr(cur.Version-1)); !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale delete error = %v, want ErrConflict", err)
	}
	if err := f.svc.DeleteList(ctx, f.user.ID, l.ID, nil); err != nil {
		t.Fatalf("DeleteList() error = %v", err)
	}
	if _, err := f.svc.GetList(ctx, f.user.ID, l.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetList() error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.GetItem(ctx, f.user.ID, it.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetItem() error = %v, want ErrNotFound", err)
	}
}

func TestListService_PurchaseTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	it := f.item(t, l.ID, "Apples", "3", "2.50")

	bought, err := f.svc.UpdateItem(ctx, f.user.ID, it.ID, ItemPatch{Purchased: ptr(true)})
	if err != nil {
		t.Fatalf("UpdateItem(purchase) error = %v", err)
	}
	if bought.PurchasedAt == nil || !bought.PurchasedAt.Equal(f.now) {
		t.Errorf("PurchasedAt = %v, want %v", bought.PurchasedAt, f.now)
	}
	if bought.PurchasedQuantity == nil || !bought.PurchasedQuantity.Equal(dec("3")) {
		t.Errorf("PurchasedQuantity = %v, want 3", bought.PurchasedQuantity)
	}
	if bought.PaidPrice == nil || !bought.PaidPrice.Equal(dec("7.5")) {
		t.Errorf("PaidPrice = %v, want 7.5", bought.PaidPrice)
	}

	first := f.now
	f.now = f.now.Add(time.Hour)
	edited, err := f.svc.UpdateItem(ctx, f.user.ID, it.ID, ItemPatch{Note: ptr("green ones"), PaidPrice: ptr(dec("7"))})
	if err != nil {
		t.Fatalf("UpdateItem(note) error = %v", err)
	}
	if !edited.PurchasedAt.Equal(first) {
		t.Errorf("PurchasedAt moved to %v", edited.PurchasedAt)
	}
	if !edited.PaidPrice.Equal(dec("7")) {
		t.Errorf("PaidPrice = %s, want 7", edited.PaidPrice)
	}

	cleared, err := f.svc.UpdateItem(ctx, f.user.ID, it.ID, ItemPatch{Purchased: ptr(false), Version: ptr(edited.Version)})
	if err != nil {
		t.Fatalf("UpdateItem(unpurchase) error = %v", err)
	}
	if cleared.Purchased || cleared.PurchasedAt != nil || cleared.PurchasedQuantity != nil || cleared.PaidPrice != nil {
		t.Errorf("purchase fields not cleared: %+v", cleared)
	}

	if _, err := f.svc.UpdateItem(ctx, f.user.ID, it.ID, ItemPatch{Note: ptr("x"), Version: ptr(edited.Version)}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale item update error = %v, want ErrConflict", err)
	}
}

func TestListService_CreateItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	f.item(t, l.ID, "Milk", "1", "1")

	tests := []struct {
		name string
		in   ItemInput
	}{
		{"zero quantity", ItemInput{ListID: l.ID, Name: "Eggs", Quantity: dec("0"), UnitPrice: dec("1")}},
		{"negative price", ItemInput{ListID: l.ID, Name: "Eggs", Quantity: dec("1"), UnitPrice: dec("-1")}},
		{"bad priority", ItemInput{ListID: l.ID, Name: "Eggs", Quantity: dec("1"), UnitPrice: dec("1"), Priority: "urgent"}},
		{"duplicate name", ItemInput{ListID: l.ID, Name: " Milk ", Quantity: dec("1"), UnitPrice: dec("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateItem(ctx, f.user.ID, tt.in); !errors.Is(err, core.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	items, _ := f.svc.ListItems(ctx, f.user.ID, l.ID)
	if len(items) != 1 {
		t.Errorf("rejected items should not be stored, have %d", len(items))
	}
}

func TestListService_LegacyPriority(t *testing.T) {
	f := newFixture(t)
	l := f.list(t, "100")
	it, err := f.svc.CreateItem(context.Background(), f.user.ID, ItemInput{
		ListID: l.ID, Name: "Rice", Quantity: dec("1"), UnitPrice: dec("1"), Priority: "A",
	})
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if it.Priority != core.PriorityHigh {
		t.Errorf("Priority = %s, want HIGH", it.Priority)
	}
}

func TestListService_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	l := f.list(t, "100")

	if _, err := f.svc.CreateItem(context.Background(), f.user.ID, ItemInput{
		ListID: l.ID, Name: "Rice", Quantity: dec("1"), UnitPrice: dec("1"),
	}); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if f.pub.count() != 1 {
		t.Errorf("expected one publish attempt, got %d", f.pub.count())
	}
}

func TestListService_NilPublisher(t *testing.T) {
	store := memory.New()
	svc := NewListService(store, nil, DefaultAlertPolicy())
	ctx := context.Background()
	u, _ := store.CreateUser(ctx, core.User{Name: "Ana", Email: "ana@example.com"})
	l, err := svc.CreateList(ctx, u.ID, "Weekly", dec("10"))
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	if _, err := svc.Recompute(ctx, u.ID, l.ID); err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
}

func TestListService_RecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "10")
	f.item(t, l.ID, "Cheese", "2", "4.75")

	first, err := f.svc.Recompute(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	second, err := f.svc.Recompute(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	if !first.Total.Equal(second.Total) || first.State != second.State || first.Alert != second.Alert {
		t.Errorf("recompute not idempotent: %+v vs %+v", first, second)
	}
	if !second.Total.Equal(dec("9.5")) || second.Alert != core.AlertYellow {
		t.Errorf("total %s alert %s, want 9.5 YELLOW", second.Total, second.Alert)
	}

	alerts, _ := f.svc.Alerts(ctx, f.user.ID, l.ID)
	if len(alerts) != 1 {
		t.Errorf("repeated recompute should not add alerts, have %d", len(alerts))
	}
}

func TestListService_ReadViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.list(t, "100")
	f.item(t, l.ID, "TV", "1", "60")

	sum, err := f.svc.Summary(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !sum.Remaining.Equal(dec("40")) || sum.ItemCount != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	cats, err := f.svc.Categories(ctx, f.user.ID, l.ID)
	if err != nil || len(cats) != 1 || cats[0].Name != core.Uncategorized {
		t.Errorf("Categories() = %+v, %v", cats, err)
	}

	msgs, err := f.svc.Recommendations(ctx, f.user.ID, l.ID)
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0] != "Your list is very short. Did you forget something?" {
		t.Errorf("Recommendations() = %v", msgs)
	}

	snaps, err := f.svc.Snapshots(ctx, f.user.ID, l.ID)
	if err != nil || len(snaps) != 0 {
		t.Errorf("Snapshots() = %v, %v", snaps, err)
	}
}


func TestListService_ConcurrentItemCreatesOnSQLite(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "shoplist.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	svc := NewListService(repo, nil, DefaultAlertPolicy())
	u, err := repo.CreateUser(ctx, core.User{Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	l, err := svc.CreateList(ctx, u.ID, "Weekly", dec("100"))
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}

	const writers = 20
	var (
		wg      sync.WaitGroup
		created atomic.Int64
	)
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateItem(ctx, u.ID, ItemInput{
				ListID:    l.ID,
				Name:      fmt.Sprintf("item-%d", i),
				Quantity:  dec("1"),
				UnitPrice: dec("1"),
			})
			if err != nil {
				errs <- err
				return
			}
			created.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, core.ErrConflict) {
			t.Errorf("CreateItem() error = %v, want nil or ErrConflict", err)
		}
	}

	items, err := svc.ListItems(ctx, u.ID, l.ID)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if int64(len(items)) != created.Load() {
		t.Errorf("%d items stored, %d creates succeeded", len(items), created.Load())
	}
	got, _ := svc.GetList(ctx, u.ID, l.ID)
	if !got.Total.Equal(decimal.NewFromInt(int64(len(items)))) {
		t.Errorf("Total = %s, want %d", got.Total, len(items))
	}
}
