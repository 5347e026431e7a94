package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries holds the SQL statements of the schema in migrations/.
type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the table columns.

type User struct {
	ID        int64
	Name      string
	Email     string
	Currency  string
	CreatedAt time.Time
}

type AlertPreferences struct {
	UserID    int64
	InApp     bool
	Push      bool
	Badge     bool
	UpdatedAt time.Time
}

type ShoppingList struct {
	ID                  int64
	UserID              int64
	Name                string
	Budget              decimal.Decimal
	Total               decimal.Decimal
	State               string
	Alert               string
	AlertAcknowledgedAt sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           sql.NullTime
	Version             int64
}

type Item struct {
	ID                int64
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
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         sql.NullTime
	Version           int64
}

type AlertEntry struct {
	ID            int64
	ListID        int64
	Level         string
	Message       string
	TotalAtMoment decimal.Decimal
	Push          bool
	Badge         bool
	CreatedAt     time.Time
}

type RecommendationSnapshot struct {
	ID           int64
	ListID       int64
	ListVersion  int64
	Messages     string // JSON array
	TotalUsed    decimal.Decimal
	BudgetUnused decimal.Decimal
	CreatedAt    time.Time
}

type MonthlyHistory struct {
	UserID             int64
	Month              string
	Total              decimal.Decimal
	ItemCount          int64
	AveragePerCategory decimal.Decimal
	UpdatedAt          time.Time
}
