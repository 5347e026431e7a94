package storage

import (
	"context"
	"time"

	"shoplist/internal/core"
)

// Store is the persistence port used by the services. Reads of lists and
// items never return soft-deleted rows; a missing or deleted row is
// core.ErrNotFound.
//
// Writes of lists and items are compare-and-swap on Version: the row is only
// written when its stored version equals expected, and the stored version is
// bumped by one. A mismatch is core.ErrConflict.
type Store interface {
	// WithTx runs fn inside a single transaction. Any error from fn rolls
	// back every write fn made. Calling WithTx on the Store passed to fn
	// reuses the open transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error

	// CreateUser stores u with its email normalized. A taken email is
	// ErrDuplicateEmail.
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	// GetAlertPreferences returns the saved preferences of the user, or
	// core.DefaultAlertPreferences when none were saved.
	GetAlertPreferences(ctx context.Context, userID int64) (core.AlertPreferences, error)
	SaveAlertPreferences(ctx context.Context, p core.AlertPreferences) (core.AlertPreferences, error)

	CreateList(ctx context.Context, l core.ShoppingList) (core.ShoppingList, error)
	GetList(ctx context.Context, id int64) (core.ShoppingList, error)
	ListLists(ctx context.Context, userID int64) ([]core.ShoppingList, error)
	UpdateList(ctx context.Context, l core.ShoppingList, expected int64) (core.ShoppingList, error)
	// DeleteList soft-deletes the list and every live item on it.
	DeleteList(ctx context.Context, id int64, expected int64, at time.Time) error

	CreateItem(ctx context.Context, it core.Item) (core.Item, error)
	GetItem(ctx context.Context, id int64) (core.Item, error)
	// ListItems returns the live items of a list in creation order.
	ListItems(ctx context.Context, listID int64) ([]core.Item, error)
	UpdateItem(ctx context.Context, it core.Item, expected int64) (core.Item, error)
	DeleteItem(ctx context.Context, id int64, expected int64, at time.Time) error

	AddAlert(ctx context.Context, a core.AlertEntry) (core.AlertEntry, error)
	ListAlerts(ctx context.Context, listID int64) ([]core.AlertEntry, error)

	SaveSnapshot(ctx context.Context, s core.RecommendationSnapshot) (core.RecommendationSnapshot, error)
	HasSnapshot(ctx context.Context, listID, version int64) (bool, error)
	ListSnapshots(ctx context.Context, listID int64) ([]core.RecommendationSnapshot, error)

	// PurchasedItems returns live purchased items on the user's live lists
	// whose purchase time falls in [from, to).
	PurchasedItems(ctx context.Context, userID int64, from, to time.Time) ([]core.Item, error)
	UpsertHistory(ctx context.Context, h core.MonthlyHistory) error
	ListHistory(ctx context.Context, userID int64) ([]core.MonthlyHistory, error)
}

// ErrDuplicateItem is returned when an item name is already used by a live
// item on the same list.
var ErrDuplicateItem error = core.Invalid("name", "duplicate item name")

// ErrDuplicateEmail is returned when another user already registered the email.
var ErrDuplicateEmail error = core.Invalid("email", "already registered")
