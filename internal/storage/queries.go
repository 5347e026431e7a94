package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type CreateUserParams struct {
	Name      string
	Email     string
	Currency  string
	CreatedAt time.Time
}

const createUser = `INSERT INTO users (name, email, currency, created_at) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createUser, arg.Name, arg.Email, arg.Currency, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getUser = `SELECT id, name, email, currency, created_at FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Name, &u.Email, &u.Currency, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `SELECT id, name, email, currency, created_at FROM users WHERE email = ? AND email <> ''`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).Scan(&u.ID, &u.Name, &u.Email, &u.Currency, &u.CreatedAt)
	return u, err
}

const getAlertPreferences = `SELECT user_id, in_app, push, badge, updated_at FROM alert_preferences WHERE user_id = ?`

func (q *Queries) GetAlertPreferences(ctx context.Context, userID int64) (AlertPreferences, error) {
	var p AlertPreferences
	err := q.db.QueryRowContext(ctx, getAlertPreferences, userID).Scan(&p.UserID, &p.InApp, &p.Push, &p.Badge, &p.UpdatedAt)
	return p, err
}

const upsertAlertPreferences = `INSERT INTO alert_preferences (user_id, in_app, push, badge, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    in_app = excluded.in_app,
    push = excluded.push,
    badge = excluded.badge,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertAlertPreferences(ctx context.Context, p AlertPreferences) error {
	_, err := q.db.ExecContext(ctx, upsertAlertPreferences, p.UserID, p.InApp, p.Push, p.Badge, p.UpdatedAt)
	return err
}

const listColumns = `id, user_id, name, budget, total, state, alert, alert_acknowledged_at,
	created_at, updated_at, deleted_at, version`

func scanList(row interface{ Scan(...interface{}) error }) (ShoppingList, error) {
	var l ShoppingList
	err := row.Scan(
		&l.ID, &l.UserID, &l.Name, &l.Budget, &l.Total, &l.State, &l.Alert, &l.AlertAcknowledgedAt,
		&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt, &l.Version,
	)
	return l, err
}

type CreateListParams struct {
	UserID    int64
	Name      string
	Budget    decimal.Decimal
	Total     decimal.Decimal
	State     string
	Alert     string
	CreatedAt time.Time
}

const createList = `INSERT INTO shopping_lists (user_id, name, budget, total, state, alert, created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`

func (q *Queries) CreateList(ctx context.Context, arg CreateListParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createList,
		arg.UserID, arg.Name, arg.Budget, arg.Total, arg.State, arg.Alert, arg.CreatedAt, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getList = `SELECT ` + listColumns + ` FROM shopping_lists WHERE id = ? AND deleted_at IS NULL`

func (q *Queries) GetList(ctx context.Context, id int64) (ShoppingList, error) {
	return scanList(q.db.QueryRowContext(ctx, getList, id))
}

const listListsByUser = `SELECT ` + listColumns + ` FROM shopping_lists
WHERE user_id = ? AND deleted_at IS NULL ORDER BY id`

func (q *Queries) ListListsByUser(ctx context.Context, userID int64) ([]ShoppingList, error) {
	rows, err := q.db.QueryContext(ctx, listListsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ShoppingList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

type UpdateListParams struct {
	ID                  int64
	Name                string
	Budget              decimal.Decimal
	Total               decimal.Decimal
	State               string
	Alert               string
	AlertAcknowledgedAt sql.NullTime
	UpdatedAt           time.Time
	ExpectedVersion     int64
}

const updateList = `UPDATE shopping_lists
SET name = ?, budget = ?, total = ?, state = ?, alert = ?, alert_acknowledged_at = ?,
    updated_at = ?, version = version + 1
WHERE id = ? AND version = ? AND deleted_at IS NULL`

// UpdateList returns the number of rows written; zero means a stale version or a missing row.
func (q *Queries) UpdateList(ctx context.Context, arg UpdateListParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateList,
		arg.Name, arg.Budget, arg.Total, arg.State, arg.Alert, arg.AlertAcknowledgedAt,
		arg.UpdatedAt, arg.ID, arg.ExpectedVersion)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const softDeleteList = `UPDATE shopping_lists
SET deleted_at = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ? AND deleted_at IS NULL`

func (q *Queries) SoftDeleteList(ctx context.Context, id, expected int64, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, softDeleteList, at, at, id, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const softDeleteItemsByList = `UPDATE items
SET deleted_at = ?, updated_at = ?, version = version + 1
WHERE list_id = ? AND deleted_at IS NULL`

func (q *Queries) SoftDeleteItemsByList(ctx context.Context, listID int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, softDeleteItemsByList, at, at, listID)
	return err
}

const itemColumns = `items.id, items.list_id, items.name, items.category, items.quantity, items.unit,
	items.unit_price, items.priority, items.note, items.purchased, items.purchased_at,
	items.purchased_quantity, items.paid_price, items.created_at, items.updated_at,
	items.deleted_at, items.version`

func scanItem(row interface{ Scan(...interface{}) error }) (Item, error) {
	var i Item
	err := row.Scan(
		&i.ID, &i.ListID, &i.Name, &i.Category, &i.Quantity, &i.Unit,
		&i.UnitPrice, &i.Priority, &i.Note, &i.Purchased, &i.PurchasedAt,
		&i.PurchasedQuantity, &i.PaidPrice, &i.CreatedAt, &i.UpdatedAt,
		&i.DeletedAt, &i.Version,
	)
	return i, err
}

func collectItems(rows *sql.Rows) ([]Item, error) {
	defer rows.Close()
	var items []Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type ItemParams struct {
	ListID            int64
	Name              string
	Category          string
	Quantity          decimal.Decimal
	Unit              string
	UnitPrice         decimal.Decimal
	Priority          string
	Note              string
	Purchased         bool
	PurchasedAt       sql.NullTime
	PurchasedQuantity decimal.NullDecimal
	PaidPrice         decimal.NullDecimal
}

const createItem = `INSERT INTO items (list_id, name, category, quantity, unit, unit_price, priority, note,
    purchased, purchased_at, purchased_quantity, paid_price, created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

func (q *Queries) CreateItem(ctx context.Context, arg ItemParams, createdAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, createItem,
		arg.ListID, arg.Name, arg.Category, arg.Quantity, arg.Unit, arg.UnitPrice, arg.Priority, arg.Note,
		arg.Purchased, arg.PurchasedAt, arg.PurchasedQuantity, arg.PaidPrice, createdAt, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getItem = `SELECT ` + itemColumns + ` FROM items WHERE items.id = ? AND items.deleted_at IS NULL`

func (q *Queries) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(q.db.QueryRowContext(ctx, getItem, id))
}

const listItemsByList = `SELECT ` + itemColumns + ` FROM items
WHERE items.list_id = ? AND items.deleted_at IS NULL ORDER BY items.id`

func (q *Queries) ListItemsByList(ctx context.Context, listID int64) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, listItemsByList, listID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

const updateItem = `UPDATE items
SET name = ?, category = ?, quantity = ?, unit = ?, unit_price = ?, priority = ?, note = ?,
    purchased = ?, purchased_at = ?, purchased_quantity = ?, paid_price = ?,
    updated_at = ?, version = version + 1
WHERE id = ? AND version = ? AND deleted_at IS NULL`

func (q *Queries) UpdateItem(ctx context.Context, id int64, arg ItemParams, updatedAt time.Time, expected int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateItem,
		arg.Name, arg.Category, arg.Quantity, arg.Unit, arg.UnitPrice, arg.Priority, arg.Note,
		arg.Purchased, arg.PurchasedAt, arg.PurchasedQuantity, arg.PaidPrice,
		updatedAt, id, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const softDeleteItem = `UPDATE items
SET deleted_at = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ? AND deleted_at IS NULL`

func (q *Queries) SoftDeleteItem(ctx context.Context, id, expected int64, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, softDeleteItem, at, at, id, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listPurchasedItemsByUser = `SELECT ` + itemColumns + ` FROM items
JOIN shopping_lists ON shopping_lists.id = items.list_id
WHERE shopping_lists.user_id = ? AND shopping_lists.deleted_at IS NULL
  AND items.deleted_at IS NULL AND items.purchased = 1 AND items.purchased_at IS NOT NULL
ORDER BY items.id`

func (q *Queries) ListPurchasedItemsByUser(ctx context.Context, userID int64) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, listPurchasedItemsByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

const createAlert = `INSERT INTO alert_entries (list_id, level, message, total_at_moment, push, badge, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAlert(ctx context.Context, a AlertEntry) (int64, error) {
	res, err := q.db.ExecContext(ctx, createAlert,
		a.ListID, a.Level, a.Message, a.TotalAtMoment, a.Push, a.Badge, a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listAlertsByList = `SELECT id, list_id, level, message, total_at_moment, push, badge, created_at
FROM alert_entries WHERE list_id = ? ORDER BY id`

func (q *Queries) ListAlertsByList(ctx context.Context, listID int64) ([]AlertEntry, error) {
	rows, err := q.db.QueryContext(ctx, listAlertsByList, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AlertEntry
	for rows.Next() {
		var a AlertEntry
		if err := rows.Scan(&a.ID, &a.ListID, &a.Level, &a.Message, &a.TotalAtMoment, &a.Push, &a.Badge, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const createSnapshot = `INSERT INTO recommendation_snapshots (list_id, list_version, messages, total_used, budget_unused, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateSnapshot(ctx context.Context, s RecommendationSnapshot) (int64, error) {
	res, err := q.db.ExecContext(ctx, createSnapshot,
		s.ListID, s.ListVersion, s.Messages, s.TotalUsed, s.BudgetUnused, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const countSnapshots = `SELECT COUNT(*) FROM recommendation_snapshots WHERE list_id = ? AND list_version = ?`

func (q *Queries) CountSnapshots(ctx context.Context, listID, version int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSnapshots, listID, version).Scan(&n)
	return n, err
}

const listSnapshotsByList = `SELECT id, list_id, list_version, messages, total_used, budget_unused, created_at
FROM recommendation_snapshots WHERE list_id = ? ORDER BY id`

func (q *Queries) ListSnapshotsByList(ctx context.Context, listID int64) ([]RecommendationSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotsByList, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecommendationSnapshot
	for rows.Next() {
		var s RecommendationSnapshot
		if err := rows.Scan(&s.ID, &s.ListID, &s.ListVersion, &s.Messages, &s.TotalUsed, &s.BudgetUnused, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const upsertHistory = `INSERT INTO monthly_history (user_id, month, total, item_count, average_per_category, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, month) DO UPDATE SET
    total = excluded.total,
    item_count = excluded.item_count,
    average_per_category = excluded.average_per_category,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertHistory(ctx context.Context, h MonthlyHistory) error {
	_, err := q.db.ExecContext(ctx, upsertHistory,
		h.UserID, h.Month, h.Total, h.ItemCount, h.AveragePerCategory, h.UpdatedAt)
	return err
}

const listHistoryByUser = `SELECT user_id, month, total, item_count, average_per_category, updated_at
FROM monthly_history WHERE user_id = ? ORDER BY month`

func (q *Queries) ListHistoryByUser(ctx context.Context, userID int64) ([]MonthlyHistory, error) {
	rows, err := q.db.QueryContext(ctx, listHistoryByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MonthlyHistory
	for rows.Next() {
		var h MonthlyHistory
		if err := rows.Scan(&h.UserID, &h.Month, &h.Total, &h.ItemCount, &h.AveragePerCategory, &h.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}
