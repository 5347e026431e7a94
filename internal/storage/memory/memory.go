// Package memory provides an in-process implementation of storage.Store.
// It is used for local runs and as the test double of the services.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shoplist/internal/core"
	"shoplist/internal/storage"
)

type state struct {
	seq       int64
	users     map[int64]core.User
	lists     map[int64]core.ShoppingList
	items     map[int64]core.Item
	alerts    []core.AlertEntry
	snapshots []core.RecommendationSnapshot
	history   map[historyKey]core.MonthlyHistory
	prefs     map[int64]core.AlertPreferences
}

type historyKey struct {
	userID int64
	month  string
}

func newState() *state {
	return &state{
		users:   make(map[int64]core.User),
		lists:   make(map[int64]core.ShoppingList),
		items:   make(map[int64]core.Item),
		history: make(map[historyKey]core.MonthlyHistory),
		prefs:   make(map[int64]core.AlertPreferences),
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:       s.seq,
		users:     make(map[int64]core.User, len(s.users)),
		lists:     make(map[int64]core.ShoppingList, len(s.lists)),
		items:     make(map[int64]core.Item, len(s.items)),
		alerts:    append([]core.AlertEntry(nil), s.alerts...),
		snapshots: append([]core.RecommendationSnapshot(nil), s.snapshots...),
		history:   make(map[historyKey]core.MonthlyHistory, len(s.history)),
		prefs:     make(map[int64]core.AlertPreferences, len(s.prefs)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.lists {
		c.lists[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.history {
		c.history[k] = v
	}
	for k, v := range s.prefs {
		c.prefs[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store keeps every entity in maps guarded by one mutex. Transactions hold
// the mutex for their whole duration and restore a copy of the state on error.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) tx() *txStore {
	return &txStore{st: s.data, now: s.now}
}

// WithTx implements storage.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.clone()
	if err := fn(s.tx()); err != nil {
		s.data = saved
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetUserByEmail(ctx, email)
}

func (s *Store) GetAlertPreferences(ctx context.Context, userID int64) (core.AlertPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetAlertPreferences(ctx, userID)
}

func (s *Store) SaveAlertPreferences(ctx context.Context, p core.AlertPreferences) (core.AlertPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveAlertPreferences(ctx, p)
}

func (s *Store) CreateList(ctx context.Context, l core.ShoppingList) (core.ShoppingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().CreateList(ctx, l)
}

func (s *Store) GetList(ctx context.Context, id int64) (core.ShoppingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetList(ctx, id)
}

func (s *Store) ListLists(ctx context.Context, userID int64) ([]core.ShoppingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListLists(ctx, userID)
}

func (s *Store) UpdateList(ctx context.Context, l core.ShoppingList, expected int64) (core.ShoppingList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().UpdateList(ctx, l, expected)
}

func (s *Store) DeleteList(ctx context.Context, id, expected int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().DeleteList(ctx, id, expected, at)
}

func (s *Store) CreateItem(ctx context.Context, it core.Item) (core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().CreateItem(ctx, it)
}

func (s *Store) GetItem(ctx context.Context, id int64) (core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetItem(ctx, id)
}

func (s *Store) ListItems(ctx context.Context, listID int64) ([]core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListItems(ctx, listID)
}

func (s *Store) UpdateItem(ctx context.Context, it core.Item, expected int64) (core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().UpdateItem(ctx, it, expected)
}

func (s *Store) DeleteItem(ctx context.Context, id, expected int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().DeleteItem(ctx, id, expected, at)
}

func (s *Store) AddAlert(ctx context.Context, a core.AlertEntry) (core.AlertEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().AddAlert(ctx, a)
}

func (s *Store) ListAlerts(ctx context.Context, listID int64) ([]core.AlertEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListAlerts(ctx, listID)
}

func (s *Store) SaveSnapshot(ctx context.Context, snap core.RecommendationSnapshot) (core.RecommendationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveSnapshot(ctx, snap)
}

func (s *Store) HasSnapshot(ctx context.Context, listID, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().HasSnapshot(ctx, listID, version)
}

func (s *Store) ListSnapshots(ctx context.Context, listID int64) ([]core.RecommendationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListSnapshots(ctx, listID)
}

func (s *Store) PurchasedItems(ctx context.Context, userID int64, from, to time.Time) ([]core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().PurchasedItems(ctx, userID, from, to)
}

func (s *Store) UpsertHistory(ctx context.Context, h core.MonthlyHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().UpsertHistory(ctx, h)
}

func (s *Store) ListHistory(ctx context.Context, userID int64) ([]core.MonthlyHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListHistory(ctx, userID)
}

// txStore operates on the state directly; the caller holds the mutex.
type txStore struct {
	st  *state
	now func() time.Time
}

func (t *txStore) WithTx(_ context.Context, fn func(tx storage.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(context.Context) error { return nil }
func (t *txStore) Close() error               { return nil }

func (t *txStore) CreateUser(_ context.Context, u core.User) (core.User, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = core.NormalizeEmail(u.Email)
	u.Currency = core.NormalizeCurrency(u.Currency)
	if u.Email != "" {
		for _, other := range t.st.users {
			if other.Email == u.Email {
				return core.User{}, storage.ErrDuplicateEmail
			}
		}
	}
	u.ID = t.st.nextID()
	u.CreatedAt = t.now().UTC()
	t.st.users[u.ID] = u
	return u, nil
}

func (t *txStore) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.User{}, core.ErrNotFound
	}
	for _, u := range t.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (t *txStore) GetAlertPreferences(_ context.Context, userID int64) (core.AlertPreferences, error) {
	if p, ok := t.st.prefs[userID]; ok {
		return p, nil
	}
	return core.DefaultAlertPreferences(userID), nil
}

func (t *txStore) SaveAlertPreferences(_ context.Context, p core.AlertPreferences) (core.AlertPreferences, error) {
	if _, ok := t.st.users[p.UserID]; !ok {
		return core.AlertPreferences{}, core.ErrNotFound
	}
	p.UpdatedAt = t.now().UTC()
	t.st.prefs[p.UserID] = p
	return p, nil
}

func (t *txStore) GetUser(_ context.Context, id int64) (core.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (t *txStore) CreateList(_ context.Context, l core.ShoppingList) (core.ShoppingList, error) {
	if _, ok := t.st.users[l.UserID]; !ok {
		return core.ShoppingList{}, core.Invalid("user_id", "unknown user")
	}
	now := t.now().UTC()
	l.ID = t.st.nextID()
	l.Version = 1
	l.CreatedAt = now
	l.UpdatedAt = now
	l.DeletedAt = nil
	t.st.lists[l.ID] = l
	return l, nil
}

func (t *txStore) GetList(_ context.Context, id int64) (core.ShoppingList, error) {
	l, ok := t.st.lists[id]
	if !ok || l.IsDeleted() {
		return core.ShoppingList{}, core.ErrNotFound
	}
	return l, nil
}

func (t *txStore) ListLists(_ context.Context, userID int64) ([]core.ShoppingList, error) {
	out := []core.ShoppingList{}
	for _, l := range t.st.lists {
		if l.UserID == userID && !l.IsDeleted() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txStore) UpdateList(ctx context.Context, l core.ShoppingList, expected int64) (core.ShoppingList, error) {
	cur, err := t.GetList(ctx, l.ID)
	if err != nil {
		return core.ShoppingList{}, err
	}
	if cur.Version != expected {
		return core.ShoppingList{}, core.ErrConflict
	}
	l.UserID = cur.UserID
	l.CreatedAt = cur.CreatedAt
	l.DeletedAt = nil
	l.UpdatedAt = t.now().UTC()
	l.Version = cur.Version + 1
	t.st.lists[l.ID] = l
	return l, nil
}

func (t *txStore) DeleteList(ctx context.Context, id, expected int64, at time.Time) error {
	l, err := t.GetList(ctx, id)
	if err != nil {
		return err
	}
	if l.Version != expected {
		return core.ErrConflict
	}
	at = at.UTC()
	l.DeletedAt = &at
	l.UpdatedAt = at
	l.Version++
	t.st.lists[id] = l

	for itemID, it := range t.st.items {
		if it.ListID == id && !it.IsDeleted() {
			it.DeletedAt = &at
			it.UpdatedAt = at
			it.Version++
			t.st.items[itemID] = it
		}
	}
	return nil
}

func (t *txStore) nameTaken(listID, selfID int64, name string) bool {
	for _, it := range t.st.items {
		if it.ListID == listID && it.ID != selfID && !it.IsDeleted() && it.Name == name {
			return true
		}
	}
	return false
}

func (t *txStore) CreateItem(ctx context.Context, it core.Item) (core.Item, error) {
	if _, err := t.GetList(ctx, it.ListID); err != nil {
		return core.Item{}, err
	}
	if t.nameTaken(it.ListID, 0, it.Name) {
		return core.Item{}, storage.ErrDuplicateItem
	}
	now := t.now().UTC()
	it.ID = t.st.nextID()
	it.Version = 1
	it.CreatedAt = now
	it.UpdatedAt = now
	it.DeletedAt = nil
	t.st.items[it.ID] = it
	return it, nil
}

func (t *txStore) GetItem(_ context.Context, id int64) (core.Item, error) {
	it, ok := t.st.items[id]
	if !ok || it.IsDeleted() {
		return core.Item{}, core.ErrNotFound
	}
	return it, nil
}

func (t *txStore) ListItems(_ context.Context, listID int64) ([]core.Item, error) {
	out := []core.Item{}
	for _, it := range t.st.items {
		if it.ListID == listID && !it.IsDeleted() {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txStore) UpdateItem(ctx context.Context, it core.Item, expected int64) (core.Item, error) {
	cur, err := t.GetItem(ctx, it.ID)
	if err != nil {
		return core.Item{}, err
	}
	if cur.Version != expected {
		return core.Item{}, core.ErrConflict
	}
	if t.nameTaken(cur.ListID, cur.ID, it.Name) {
		return core.Item{}, storage.ErrDuplicateItem
	}
	it.ListID = cur.ListID
	it.CreatedAt = cur.CreatedAt
	it.DeletedAt = nil
	it.UpdatedAt = t.now().UTC()
	it.Version = cur.Version + 1
	t.st.items[it.ID] = it
	return it, nil
}

func (t *txStore) DeleteItem(ctx context.Context, id, expected int64, at time.Time) error {
	it, err := t.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if it.Version != expected {
		return core.ErrConflict
	}
	at = at.UTC()
	it.DeletedAt = &at
	it.UpdatedAt = at
	it.Version++
	t.st.items[id] = it
	return nil
}

func (t *txStore) AddAlert(_ context.Context, a core.AlertEntry) (core.AlertEntry, error) {
	a.ID = t.st.nextID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now().UTC()
	}
	t.st.alerts = append(t.st.alerts, a)
	return a, nil
}

func (t *txStore) ListAlerts(_ context.Context, listID int64) ([]core.AlertEntry, error) {
	out := []core.AlertEntry{}
	for _, a := range t.st.alerts {
		if a.ListID == listID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *txStore) SaveSnapshot(_ context.Context, snap core.RecommendationSnapshot) (core.RecommendationSnapshot, error) {
	snap.ID = t.st.nextID()
	snap.Messages = append([]string{}, snap.Messages...)
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = t.now().UTC()
	}
	t.st.snapshots = append(t.st.snapshots, snap)
	return snap, nil
}

func (t *txStore) HasSnapshot(_ context.Context, listID, version int64) (bool, error) {
	for _, s := range t.st.snapshots {
		if s.ListID == listID && s.ListVersion == version {
			return true, nil
		}
	}
	return false, nil
}

func (t *txStore) ListSnapshots(_ context.Context, listID int64) ([]core.RecommendationSnapshot, error) {
	out := []core.RecommendationSnapshot{}
	for _, s := range t.st.snapshots {
		if s.ListID == listID {
			s.Messages = append([]string{}, s.Messages...)
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *txStore) PurchasedItems(_ context.Context, userID int64, from, to time.Time) ([]core.Item, error) {
	out := []core.Item{}
	for _, it := range t.st.items {
		if it.IsDeleted() || !it.Purchased || it.PurchasedAt == nil {
			continue
		}
		l, ok := t.st.lists[it.ListID]
		if !ok || l.IsDeleted() || l.UserID != userID {
			continue
		}
		if it.PurchasedAt.Before(from) || !it.PurchasedAt.Before(to) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txStore) UpsertHistory(_ context.Context, h core.MonthlyHistory) error {
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = t.now().UTC()
	}
	t.st.history[historyKey{userID: h.UserID, month: h.Month}] = h
	return nil
}

func (t *txStore) ListHistory(_ context.Context, userID int64) ([]core.MonthlyHistory, error) {
	out := []core.MonthlyHistory{}
	for k, h := range t.st.history {
		if k.userID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}
