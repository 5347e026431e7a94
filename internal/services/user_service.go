package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"shoplist/internal/cache"
	"shoplist/internal/core"
	"shoplist/internal/storage"
)

const (
	userCacheSize = 1000
	userCacheTTL  = 5 * time.Minute
)

// UserService owns user records. Lookups go through an LRU cache and
// concurrent misses for the same id share one storage read.
type UserService struct {
	store storage.Store
	users *cache.LRUCache[int64, core.User]
	group singleflight.Group
}

func NewUserService(store storage.Store) *UserService {
	return &UserService{
		store: store,
		users: cache.NewLRUCache[int64, core.User](userCacheSize, userCacheTTL),
	}
}

// Cache exposes the user cache so it can be registered for periodic sweeps.
func (s *UserService) Cache() *cache.LRUCache[int64, core.User] {
	return s.users
}

// AlertPreferencesPatch carries the preference flags to change.
type AlertPreferencesPatch struct {
	InApp *bool
	Push  *bool
	Badge *bool
}

func (s *UserService) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u = core.User{
		Name:     strings.TrimSpace(u.Name),
		Email:    core.NormalizeEmail(u.Email),
		Currency: core.NormalizeCurrency(u.Currency),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	s.users.Set(created.ID, created)
	slog.InfoContext(ctx, "User created", "user_id", created.ID)
	return created, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (core.User, error) {
	if u, ok := s.users.Get(id); ok {
		return u, nil
	}
	v, err, shared := s.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			return core.User{}, err
		}
		s.users.Set(id, u)
		return u, nil
	})
	if err != nil {
		return core.User{}, err
	}
	if shared {
		slog.DebugContext(ctx, "User lookup shared", "user_id", id)
	}
	return v.(core.User), nil
}

// FindByEmail looks a user up by email, ignoring case and surrounding space.
func (s *UserService) FindByEmail(ctx context.Context, email string) (core.User, error) {
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.User{}, core.Invalid("email", "is required")
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return core.User{}, err
	}
	s.users.Set(u.ID, u)
	return u, nil
}

func (s *UserService) AlertPreferences(ctx context.Context, id int64) (core.AlertPreferences, error) {
	if _, err := s.GetUser(ctx, id); err != nil {
		return core.AlertPreferences{}, err
	}
	return s.store.GetAlertPreferences(ctx, id)
}

// UpdateAlertPreferences applies patch over the user's current preferences.
func (s *UserService) UpdateAlertPreferences(ctx context.Context, id int64, patch AlertPreferencesPatch) (core.AlertPreferences, error) {
	var saved core.AlertPreferences
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}
		p, err := tx.GetAlertPreferences(ctx, id)
		if err != nil {
			return err
		}
		if patch.InApp != nil {
			p.InApp = *patch.InApp
		}
		if patch.Push != nil {
			p.Push = *patch.Push
		}
		if patch.Badge != nil {
			p.Badge = *patch.Badge
		}
		saved, err = tx.SaveAlertPreferences(ctx, p)
		return err
	})
	if err != nil {
		return core.AlertPreferences{}, err
	}
	slog.InfoContext(ctx, "Alert preferences updated",
		"user_id", id, "in_app", saved.InApp, "push", saved.Push, "badge", saved.Badge)
	return saved, nil
}

// Authenticate resolves the caller named by a request. An unknown id is
// core.ErrUnauthenticated.
func (s *UserService) Authenticate(ctx context.Context, id int64) (core.User, error) {
	if id <= 0 {
		return core.User{}, core.ErrUnauthenticated
	}
	u, err := s.GetUser(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrUnauthenticated)
	}
	return u, err
}

// History returns the user's monthly spending history, oldest month first.
func (s *UserService) History(ctx context.Context, id int64) ([]core.MonthlyHistory, error) {
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, id)
}

// RebuildHistory recomputes the user's history row for the month containing
// at from purchased items and stores it.
func (s *UserService) RebuildHistory(ctx context.Context, userID int64, at time.Time) (core.MonthlyHistory, error) {
	return RebuildMonthlyHistory(ctx, s.store, userID, at)
}

// RebuildMonthlyHistory is the store-level history rebuild shared with the worker.
func RebuildMonthlyHistory(ctx context.Context, st storage.Store, userID int64, at time.Time) (core.MonthlyHistory, error) {
	from, to := MonthBounds(at)
	items, err := st.PurchasedItems(ctx, userID, from, to)
	if err != nil {
		return core.MonthlyHistory{}, fmt.Errorf("load purchased items: %w", err)
	}
	h := BuildMonthlyHistory(userID, MonthKey(from), items)
	h.UpdatedAt = time.Now().UTC()
	if err := st.UpsertHistory(ctx, h); err != nil {
		return core.MonthlyHistory{}, fmt.Errorf("store history %s: %w", h.Month, err)
	}
	return h, nil
}
