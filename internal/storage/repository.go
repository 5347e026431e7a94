package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"shoplist/internal/core"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	inTx    bool
}

var _ Store = (*SQLiteRepository)(nil)

// DSN adds the connection pragmas every connection needs. Transactions
// begin IMMEDIATE so concurrent writers queue on busy_timeout instead of
// failing when a read lock cannot be upgraded.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && !r.inTx {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx implements Store.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return lockConflict(fmt.Errorf("begin transaction: %w", err))
	}
	txRepo := &SQLiteRepository{db: r.db, queries: r.queries.WithTx(tx), inTx: true}

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return lockConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return lockConflict(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// lockConflict reports a database that stayed locked past busy_timeout as
// core.ErrConflict so the caller retries like any lost compare-and-swap.
func lockConflict(err error) error {
	if isLocked(err) {
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	}
	return err
}

func isLocked(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// notFound maps sql.ErrNoRows onto the domain sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	id, err := r.queries.CreateUser(ctx, CreateUserParams{
		Name:      strings.TrimSpace(u.Name),
		Email:     core.NormalizeEmail(u.Email),
		Currency:  core.NormalizeCurrency(u.Currency),
		CreatedAt: time.Now().UTC(),
	})
	if isUniqueViolation(err) {
		return core.User{}, ErrDuplicateEmail
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := r.queries.GetUser(ctx, id)
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, notFound(err))
	}
	return toCoreUser(u), nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := r.queries.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", notFound(err))
	}
	return toCoreUser(u), nil
}

func toCoreUser(u User) core.User {
	return core.User{ID: u.ID, Name: u.Name, Email: u.Email, Currency: u.Currency, CreatedAt: u.CreatedAt}
}

func (r *SQLiteRepository) GetAlertPreferences(ctx context.Context, userID int64) (core.AlertPreferences, error) {
	p, err := r.queries.GetAlertPreferences(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultAlertPreferences(userID), nil
	}
	if err != nil {
		return core.AlertPreferences{}, fmt.Errorf("get alert preferences of user %d: %w", userID, err)
	}
	return core.AlertPreferences{
		UserID:    p.UserID,
		InApp:     p.InApp,
		Push:      p.Push,
		Badge:     p.Badge,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func (r *SQLiteRepository) SaveAlertPreferences(ctx context.Context, p core.AlertPreferences) (core.AlertPreferences, error) {
	if _, err := r.queries.GetUser(ctx, p.UserID); err != nil {
		return core.AlertPreferences{}, fmt.Errorf("get user %d: %w", p.UserID, notFound(err))
	}
	p.UpdatedAt = time.Now().UTC()
	err := r.queries.UpsertAlertPreferences(ctx, AlertPreferences{
		UserID:    p.UserID,
		InApp:     p.InApp,
		Push:      p.Push,
		Badge:     p.Badge,
		UpdatedAt: p.UpdatedAt,
	})
	if err != nil {
		return core.AlertPreferences{}, fmt.Errorf("save alert preferences of user %d: %w", p.UserID, err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreateList(ctx context.Context, l core.ShoppingList) (core.ShoppingList, error) {
	if _, err := r.queries.GetUser(ctx, l.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ShoppingList{}, core.Invalid("user_id", "unknown user")
		}
		return core.ShoppingList{}, fmt.Errorf("check list owner: %w", err)
	}
	id, err := r.queries.CreateList(ctx, CreateListParams{
		UserID:    l.UserID,
		Name:      l.Name,
		Budget:    l.Budget,
		Total:     l.Total,
		State:     string(l.State),
		Alert:     string(l.Alert),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("create list: %w", err)
	}
	return r.GetList(ctx, id)
}

func (r *SQLiteRepository) GetList(ctx context.Context, id int64) (core.ShoppingList, error) {
	l, err := r.queries.GetList(ctx, id)
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("get list %d: %w", id, notFound(err))
	}
	return toCoreList(l), nil
}

func (r *SQLiteRepository) ListLists(ctx context.Context, userID int64) ([]core.ShoppingList, error) {
	rows, err := r.queries.ListListsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list lists for user %d: %w", userID, err)
	}
	out := make([]core.ShoppingList, len(rows))
	for i, l := range rows {
		out[i] = toCoreList(l)
	}
	return out, nil
}

// casMiss resolves a zero-row conditional write into NotFound or Conflict.
func casMiss(exists func() error) error {
	if err := exists(); err != nil {
		return err
	}
	return core.ErrConflict
}

func (r *SQLiteRepository) UpdateList(ctx context.Context, l core.ShoppingList, expected int64) (core.ShoppingList, error) {
	n, err := r.queries.UpdateList(ctx, UpdateListParams{
		ID:                  l.ID,
		Name:                l.Name,
		Budget:              l.Budget,
		Total:               l.Total,
		State:               string(l.State),
		Alert:               string(l.Alert),
		AlertAcknowledgedAt: nullTime(l.AlertAcknowledgedAt),
		UpdatedAt:           time.Now().UTC(),
		ExpectedVersion:     expected,
	})
	if err != nil {
		return core.ShoppingList{}, fmt.Errorf("update list %d: %w", l.ID, err)
	}
	if n == 0 {
		return core.ShoppingList{}, casMiss(func() error { _, err := r.GetList(ctx, l.ID); return err })
	}
	return r.GetList(ctx, l.ID)
}

func (r *SQLiteRepository) DeleteList(ctx context.Context, id, expected int64, at time.Time) error {
	return r.WithTx(ctx, func(tx Store) error {
		q := tx.(*SQLiteRepository).queries
		n, err := q.SoftDeleteList(ctx, id, expected, at.UTC())
		if err != nil {
			return fmt.Errorf("delete list %d: %w", id, err)
		}
		if n == 0 {
			return casMiss(func() error { _, err := tx.GetList(ctx, id); return err })
		}
		if err := q.SoftDeleteItemsByList(ctx, id, at.UTC()); err != nil {
			return fmt.Errorf("delete items of list %d: %w", id, err)
		}
		return nil
	})
}

func (r *SQLiteRepository) CreateItem(ctx context.Context, it core.Item) (core.Item, error) {
	if _, err := r.GetList(ctx, it.ListID); err != nil {
		return core.Item{}, err
	}
	id, err := r.queries.CreateItem(ctx, itemParams(it), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return core.Item{}, ErrDuplicateItem
		}
		return core.Item{}, fmt.Errorf("create item: %w", err)
	}
	return r.GetItem(ctx, id)
}

func (r *SQLiteRepository) GetItem(ctx context.Context, id int64) (core.Item, error) {
	it, err := r.queries.GetItem(ctx, id)
	if err != nil {
		return core.Item{}, fmt.Errorf("get item %d: %w", id, notFound(err))
	}
	return toCoreItem(it), nil
}

func (r *SQLiteRepository) ListItems(ctx context.Context, listID int64) ([]core.Item, error) {
	rows, err := r.queries.ListItemsByList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list items of list %d: %w", listID, err)
	}
	return toCoreItems(rows), nil
}

func (r *SQLiteRepository) UpdateItem(ctx context.Context, it core.Item, expected int64) (core.Item, error) {
	n, err := r.queries.UpdateItem(ctx, it.ID, itemParams(it), time.Now().UTC(), expected)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Item{}, ErrDuplicateItem
		}
		return core.Item{}, fmt.Errorf("update item %d: %w", it.ID, err)
	}
	if n == 0 {
		return core.Item{}, casMiss(func() error { _, err := r.GetItem(ctx, it.ID); return err })
	}
	return r.GetItem(ctx, it.ID)
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, id, expected int64, at time.Time) error {
	n, err := r.queries.SoftDeleteItem(ctx, id, expected, at.UTC())
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n == 0 {
		return casMiss(func() error { _, err := r.GetItem(ctx, id); return err })
	}
	return nil
}

func (r *SQLiteRepository) AddAlert(ctx context.Context, a core.AlertEntry) (core.AlertEntry, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	id, err := r.queries.CreateAlert(ctx, AlertEntry{
		ListID:        a.ListID,
		Level:         string(a.Level),
		Message:       a.Message,
		TotalAtMoment: a.TotalAtMoment,
		Push:          a.Push,
		Badge:         a.Badge,
		CreatedAt:     a.CreatedAt,
	})
	if err != nil {
		return core.AlertEntry{}, fmt.Errorf("create alert: %w", err)
	}
	a.ID = id
	return a, nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, listID int64) ([]core.AlertEntry, error) {
	rows, err := r.queries.ListAlertsByList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list alerts of list %d: %w", listID, err)
	}
	out := make([]core.AlertEntry, len(rows))
	for i, a := range rows {
		out[i] = core.AlertEntry{
			ID:            a.ID,
			ListID:        a.ListID,
			Level:         core.AlertLevel(a.Level),
			Message:       a.Message,
			TotalAtMoment: a.TotalAtMoment,
			Push:          a.Push,
			Badge:         a.Badge,
			CreatedAt:     a.CreatedAt,
		}
	}
	return out, nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s core.RecommendationSnapshot) (core.RecommendationSnapshot, error) {
	if s.Messages == nil {
		s.Messages = []string{}
	}
	msgs, err := json.Marshal(s.Messages)
	if err != nil {
		return core.RecommendationSnapshot{}, fmt.Errorf("marshal snapshot messages: %w", err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	id, err := r.queries.CreateSnapshot(ctx, RecommendationSnapshot{
		ListID:       s.ListID,
		ListVersion:  s.ListVersion,
		Messages:     string(msgs),
		TotalUsed:    s.TotalUsed,
		BudgetUnused: s.BudgetUnused,
		CreatedAt:    s.CreatedAt,
	})
	if err != nil {
		return core.RecommendationSnapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	s.ID = id
	return s, nil
}

func (r *SQLiteRepository) HasSnapshot(ctx context.Context, listID, version int64) (bool, error) {
	n, err := r.queries.CountSnapshots(ctx, listID, version)
	if err != nil {
		return false, fmt.Errorf("count snapshots: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListSnapshots(ctx context.Context, listID int64) ([]core.RecommendationSnapshot, error) {
	rows, err := r.queries.ListSnapshotsByList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots of list %d: %w", listID, err)
	}
	out := make([]core.RecommendationSnapshot, len(rows))
	for i, s := range rows {
		var msgs []string
		if err := json.Unmarshal([]byte(s.Messages), &msgs); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", s.ID, err)
		}
		out[i] = core.RecommendationSnapshot{
			ID:           s.ID,
			ListID:       s.ListID,
			ListVersion:  s.ListVersion,
			Messages:     msgs,
			TotalUsed:    s.TotalUsed,
			BudgetUnused: s.BudgetUnused,
			CreatedAt:    s.CreatedAt,
		}
	}
	return out, nil
}

// PurchasedItems filters the purchase window in Go: stored timestamps are
// text and do not compare reliably in SQL across fractional-second widths.
func (r *SQLiteRepository) PurchasedItems(ctx context.Context, userID int64, from, to time.Time) ([]core.Item, error) {
	rows, err := r.queries.ListPurchasedItemsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchased items for user %d: %w", userID, err)
	}
	out := make([]core.Item, 0, len(rows))
	for _, it := range toCoreItems(rows) {
		if it.PurchasedAt.Before(from) || !it.PurchasedAt.Before(to) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertHistory(ctx context.Context, h core.MonthlyHistory) error {
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now().UTC()
	}
	err := r.queries.UpsertHistory(ctx, MonthlyHistory{
		UserID:             h.UserID,
		Month:              h.Month,
		Total:              h.Total,
		ItemCount:          int64(h.ItemCount),
		AveragePerCategory: h.AveragePerCategory,
		UpdatedAt:          h.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("upsert history %d/%s: %w", h.UserID, h.Month, err)
	}
	slog.DebugContext(ctx, "Monthly history saved", "user_id", h.UserID, "month", h.Month, "total", h.Total.String())
	return nil
}

func (r *SQLiteRepository) ListHistory(ctx context.Context, userID int64) ([]core.MonthlyHistory, error) {
	rows, err := r.queries.ListHistoryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list history for user %d: %w", userID, err)
	}
	out := make([]core.MonthlyHistory, len(rows))
	for i, h := range rows {
		out[i] = core.MonthlyHistory{
			UserID:             h.UserID,
			Month:              h.Month,
			Total:              h.Total,
			ItemCount:          int(h.ItemCount),
			AveragePerCategory: h.AveragePerCategory,
			UpdatedAt:          h.UpdatedAt,
		}
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func itemParams(it core.Item) ItemParams {
	return ItemParams{
		ListID:            it.ListID,
		Name:              it.Name,
		Category:          it.Category,
		Quantity:          it.Quantity,
		Unit:              it.Unit,
		UnitPrice:         it.UnitPrice,
		Priority:          string(it.Priority),
		Note:              it.Note,
		Purchased:         it.Purchased,
		PurchasedAt:       nullTime(it.PurchasedAt),
		PurchasedQuantity: nullDecimal(it.PurchasedQuantity),
		PaidPrice:         nullDecimal(it.PaidPrice),
	}
}

func toCoreList(l ShoppingList) core.ShoppingList {
	return core.ShoppingList{
		ID:                  l.ID,
		UserID:              l.UserID,
		Name:                l.Name,
		Budget:              l.Budget,
		Total:               l.Total,
		State:               core.BudgetState(l.State),
		Alert:               core.AlertLevel(l.Alert),
		AlertAcknowledgedAt: timePtr(l.AlertAcknowledgedAt),
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
		DeletedAt:           timePtr(l.DeletedAt),
		Version:             l.Version,
	}
}

func toCoreItem(i Item) core.Item {
	return core.Item{
		ID:                i.ID,
		ListID:            i.ListID,
		Name:              i.Name,
		Category:          i.Category,
		Quantity:          i.Quantity,
		Unit:              i.Unit,
		UnitPrice:         i.UnitPrice,
		Priority:          core.Priority(i.Priority),
		Note:              i.Note,
		Purchased:         i.Purchased,
		PurchasedAt:       timePtr(i.PurchasedAt),
		PurchasedQuantity: decimalPtr(i.PurchasedQuantity),
		PaidPrice:         decimalPtr(i.PaidPrice),
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
		DeletedAt:         timePtr(i.DeletedAt),
		Version:           i.Version,
	}
}

func toCoreItems(rows []Item) []core.Item {
	out := make([]core.Item, len(rows))
	for i, it := range rows {
		out[i] = toCoreItem(it)
	}
	return out
}
