package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seed(t *testing.T, repo *SQLiteRepository) core.ShoppingList {
	t.Helper()
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, core.User{Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	l, err := repo.CreateList(ctx, core.ShoppingList{
		UserID: u.ID,
		Name:   "Weekly",
		Budget: decimal.RequireFromString("100.50"),
		Total:  decimal.Zero,
		State:  core.StateOK,
		Alert:  core.AlertNone,
	})
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	return l
}

func testItem(listID int64, name string) core.Item {
	return core.Item{
		ListID:    listID,
		Name:      name,
		Quantity:  decimal.RequireFromString("1.5"),
		UnitPrice: decimal.RequireFromString("0.10"),
		Priority:  core.PriorityHigh,
	}
}

func TestSQLiteRepository_ListRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	l := seed(t, repo)

	if l.Version != 1 {
		t.Errorf("Version = %d, want 1", l.Version)
	}
	if !l.Budget.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Budget = %s, want 100.5", l.Budget)
	}

	lists, err := repo.ListLists(context.Background(), l.UserID)
	if err != nil || len(lists) != 1 {
		t.Fatalf("ListLists() = %d lists, err %v", len(lists), err)
	}
}

func TestSQLiteRepository_UpdateListConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)

	l.Total = decimal.RequireFromString("95")
	l.Alert = core.AlertYellow
	updated, err := repo.UpdateList(ctx, l, 1)
	if err != nil {
		t.Fatalf("UpdateList() error = %v", err)
	}
	if updated.Version != 2 || updated.Alert != core.AlertYellow || !updated.Total.Equal(decimal.NewFromInt(95)) {
		t.Errorf("unexpected list after update: %+v", updated)
	}

	if _, err := repo.UpdateList(ctx, l, 1); !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale update error = %v, want ErrConflict", err)
	}

	l.ID = 9999
	if _, err := repo.UpdateList(ctx, l, 1); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing list error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_ConcurrentListWrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.WithTx(ctx, func(tx Store) error {
				cur, err := tx.GetList(ctx, l.ID)
				if err != nil {
					return err
				}
				if _, err := tx.CreateItem(ctx, testItem(l.ID, fmt.Sprintf("item-%d", i))); err != nil {
					return err
				}
				cur.Total = cur.Total.Add(decimal.RequireFromString("0.15"))
				_, err = tx.UpdateList(ctx, cur, cur.Version)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	committed := 0
	for err := range errs {
		switch {
		case err == nil:
			committed++
		case !errors.Is(err, core.ErrConflict):
			t.Errorf("concurrent write error = %v, want nil or ErrConflict", err)
		}
	}

	got, err := repo.GetList(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetList() error = %v", err)
	}
	if got.Version != int64(1+committed) {
		t.Errorf("Version = %d, want %d", got.Version, 1+committed)
	}
	items, _ := repo.ListItems(ctx, l.ID)
	if len(items) != committed {
		t.Errorf("%d items stored, %d writes committed", len(items), committed)
	}
	if want := decimal.RequireFromString("0.15").Mul(decimal.NewFromInt(int64(committed))); !got.Total.Equal(want) {
		t.Errorf("Total = %s, want %s", got.Total, want)
	}
}

func TestSQLiteRepository_Users(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, core.User{Name: " Ana ", Email: "Ana@Example.com", Currency: "cop"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.Name != "Ana" || u.Email != "ana@example.com" || u.Currency != "COP" {
		t.Errorf("unexpected user: %+v", u)
	}
	if _, err := repo.CreateUser(ctx, core.User{Name: "Ana 2", Email: "ana@example.com"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email error = %v, want ErrDuplicateEmail", err)
	}

	found, err := repo.GetUserByEmail(ctx, " ANA@example.com")
	if err != nil || found.ID != u.ID {
		t.Errorf("GetUserByEmail() = %+v, %v", found, err)
	}
	if _, err := repo.GetUserByEmail(ctx, ""); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("empty email error = %v, want ErrNotFound", err)
	}

	prefs, err := repo.GetAlertPreferences(ctx, u.ID)
	if err != nil || prefs != core.DefaultAlertPreferences(u.ID) {
		t.Errorf("GetAlertPreferences() = %+v, %v, want defaults", prefs, err)
	}
	if _, err := repo.SaveAlertPreferences(ctx, core.AlertPreferences{UserID: u.ID, InApp: true, Push: true}); err != nil {
		t.Fatalf("SaveAlertPreferences() error = %v", err)
	}
	prefs, err = repo.GetAlertPreferences(ctx, u.ID)
	if err != nil || !prefs.InApp || !prefs.Push || prefs.Badge {
		t.Errorf("saved preferences = %+v, %v", prefs, err)
	}
	if _, err := repo.SaveAlertPreferences(ctx, core.AlertPreferences{UserID: 9999}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_Items(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)

	it, err := repo.CreateItem(ctx, testItem(l.ID, "Milk"))
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if !it.Subtotal().Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("Subtotal = %s, want 0.15", it.Subtotal())
	}

	if _, err := repo.CreateItem(ctx, testItem(l.ID, "Milk")); !errors.Is(err, core.ErrValidation) {
		t.Errorf("duplicate name error = %v, want validation error", err)
	}

	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	it.MarkPurchased(now, nil, nil)
	updated, err := repo.UpdateItem(ctx, it, it.Version)
	if err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if !updated.Purchased || updated.PurchasedAt == nil || !updated.PurchasedAt.Equal(now) {
		t.Errorf("purchase not persisted: %+v", updated)
	}
	if updated.PaidPrice == nil || !updated.PaidPrice.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("PaidPrice = %v, want 0.15", updated.PaidPrice)
	}

	bought, err := repo.PurchasedItems(ctx, l.UserID,
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(bought) != 1 {
		t.Fatalf("PurchasedItems() = %d items, err %v", len(bought), err)
	}

	if err := repo.DeleteItem(ctx, it.ID, it.Version, time.Now()); !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale delete error = %v, want ErrConflict", err)
	}
	if err := repo.DeleteItem(ctx, updated.ID, updated.Version, time.Now()); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if _, err := repo.GetItem(ctx, it.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted item error = %v, want ErrNotFound", err)
	}
	if _, err := repo.CreateItem(ctx, testItem(l.ID, "Milk")); err != nil {
		t.Errorf("name should be free after delete: %v", err)
	}
}

func TestSQLiteRepository_WithTxRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx Store) error {
		if _, err := tx.CreateItem(ctx, testItem(l.ID, "Eggs")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	items, err := repo.ListItems(ctx, l.ID)
	if err != nil || len(items) != 0 {
		t.Errorf("expected no items after rollback, got %d (err %v)", len(items), err)
	}
}

func TestSQLiteRepository_DeleteListCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)
	if _, err := repo.CreateItem(ctx, testItem(l.ID, "Rice")); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	if err := repo.DeleteList(ctx, l.ID, l.Version, time.Now()); err != nil {
		t.Fatalf("DeleteList() error = %v", err)
	}
	if _, err := repo.GetList(ctx, l.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetList() error = %v, want ErrNotFound", err)
	}
	items, _ := repo.ListItems(ctx, l.ID)
	if len(items) != 0 {
		t.Errorf("expected cascade, %d items remain", len(items))
	}
}

func TestSQLiteRepository_SnapshotsAndHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)

	_, err := repo.SaveSnapshot(ctx, core.RecommendationSnapshot{
		ListID:       l.ID,
		ListVersion:  l.Version,
		Messages:     []string{"Your list is very short. Did you forget something?"},
		TotalUsed:    decimal.Zero,
		BudgetUnused: l.Budget,
	})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	ok, err := repo.HasSnapshot(ctx, l.ID, l.Version)
	if err != nil || !ok {
		t.Errorf("HasSnapshot() = %v, %v", ok, err)
	}
	snaps, err := repo.ListSnapshots(ctx, l.ID)
	if err != nil || len(snaps) != 1 || len(snaps[0].Messages) != 1 {
		t.Errorf("ListSnapshots() = %+v, %v", snaps, err)
	}

	h := core.MonthlyHistory{UserID: l.UserID, Month: "2026-05", Total: decimal.NewFromInt(10), ItemCount: 2, AveragePerCategory: decimal.NewFromInt(5)}
	if err := repo.UpsertHistory(ctx, h); err != nil {
		t.Fatalf("UpsertHistory() error = %v", err)
	}
	h.Total = decimal.NewFromInt(12)
	if err := repo.UpsertHistory(ctx, h); err != nil {
		t.Fatalf("UpsertHistory() second error = %v", err)
	}
	rows, err := repo.ListHistory(ctx, l.UserID)
	if err != nil || len(rows) != 1 || !rows[0].Total.Equal(decimal.NewFromInt(12)) {
		t.Errorf("ListHistory() = %+v, %v", rows, err)
	}
}

func TestSQLiteRepository_Alerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	l := seed(t, repo)

	_, err := repo.AddAlert(ctx, core.AlertEntry{
		ListID:        l.ID,
		Level:         core.AlertRed,
		Message:       "over budget",
		TotalAtMoment: decimal.RequireFromString("120.00"),
		Push:          true,
	})
	if err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}
	alerts, err := repo.ListAlerts(ctx, l.ID)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("ListAlerts() = %d alerts, err %v", len(alerts), err)
	}
	a := alerts[0]
	if a.Level != core.AlertRed || !a.Push || a.Badge || !a.TotalAtMoment.Equal(decimal.NewFromInt(120)) {
		t.Errorf("unexpected alert: %+v", a)
	}
}
