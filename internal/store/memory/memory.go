// Package memory is an in-process implementation of the store ports.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"savings/internal/core"
	"savings/internal/store"
)

// Operation names accepted by SetHook.
const (
	OpListUsers   = "list_users"
	OpGetUser     = "get_user"
	OpIncrement   = "increment"
	OpSumAmounts  = "sum_amounts"
	OpFindEntry   = "find_entry"
	OpInsertEntry = "insert_entry"
	OpMarkApplied = "mark_applied"
	OpListPending = "list_pending"
)

// Hook runs before an operation for the given user ("" for list operations).
// A non-nil error fails the operation. Hooks run without the store lock held,
// so they may call back into the store.
type Hook func(userID string) error

type Store struct {
	mu       sync.Mutex
	users    map[string]*core.UserRecord
	order    []string
	expenses []core.Expense
	ledger   map[string]*core.LedgerEntry
	hooks    map[string]Hook
}

var (
	_ store.UserStore    = (*Store)(nil)
	_ store.ExpenseStore = (*Store)(nil)
	_ store.LedgerStore  = (*Store)(nil)
	_ store.Pinger       = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users:  make(map[string]*core.UserRecord),
		ledger: make(map[string]*core.LedgerEntry),
		hooks:  make(map[string]Hook),
	}
}

// SetHook installs (or with nil, removes) a hook for op.
func (s *Store) SetHook(op string, h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.hooks, op)
		return
	}
	s.hooks[op] = h
}

func (s *Store) runHook(op, userID string) error {
	s.mu.Lock()
	h := s.hooks[op]
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(userID)
}

// PutUser inserts or replaces a user record.
func (s *Store) PutUser(u core.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.order = append(s.order, u.ID)
	}
	cp := u
	s.users[u.ID] = &cp
}

// AddExpense records an expense for an existing user.
func (s *Store) AddExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[e.UserID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUserNotFound, e.UserID)
	}
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.UserRecord, error) {
	if err := s.runHook(OpListUsers, ""); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.users[id])
	}
	return out, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (core.UserRecord, error) {
	if err := s.runHook(OpGetUser, userID); err != nil {
		return core.UserRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.UserRecord{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	return *u, nil
}

// IncrementTotalSavings applies delta once per (user, month) and flags the
// ledger entry applied in the same critical section.
func (s *Store) IncrementTotalSavings(ctx context.Context, userID string, month core.Month, delta core.Money) (bool, error) {
	if err := s.runHook(OpIncrement, userID); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	k := key(userID, month)
	e, ok := s.ledger[k]
	if !ok {
		return false, fmt.Errorf("increment %s: no ledger entry", k)
	}
	if e.Applied {
		return false, nil
	}
	u.TotalSavings = u.TotalSavings.Add(delta)
	e.Applied = true
	return true, nil
}

func (s *Store) SumAmounts(ctx context.Context, userID string, start, end time.Time) (core.Money, error) {
	if err := s.runHook(OpSumAmounts, userID); err != nil {
		return core.Money{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.Money{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var total core.Money
	for _, e := range s.expenses {
		if e.UserID != userID || !core.InRange(e.Date, start, end) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (s *Store) FindEntry(ctx context.Context, userID string, month core.Month) (*core.LedgerEntry, error) {
	if err := s.runHook(OpFindEntry, userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ledger[key(userID, month)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *Store) InsertEntry(ctx context.Context, entry core.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := s.runHook(OpInsertEntry, entry.UserID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entry.Key()
	if _, exists := s.ledger[k]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateEntry, k)
	}
	cp := entry
	cp.Applied = false
	s.ledger[k] = &cp
	return nil
}

func (s *Store) MarkApplied(_ context.Context, userID string, month core.Month) error {
	if err := s.runHook(OpMarkApplied, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ledger[key(userID, month)]
	if !ok {
		return fmt.Errorf("mark applied %s: no such entry", key(userID, month))
	}
	e.Applied = true
	return nil
}

func (s *Store) ListPending(_ context.Context) ([]core.LedgerEntry, error) {
	if err := s.runHook(OpListPending, ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range s.ledger {
		if !e.Applied {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, userID string) ([]core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out, nil
}

// PutEntry stores an entry as-is, bypassing uniqueness checks, for seeding fixtures.
// It does not touch the user's total.
func (s *Store) PutEntry(e core.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.ledger[e.Key()] = &cp
}

func sortEntries(entries []core.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Month != entries[j].Month {
			return entries[i].Month.Before(entries[j].Month)
		}
		return entries[i].UserID < entries[j].UserID
	})
}

func key(userID string, month core.Month) string {
	return userID + "/" + month.String()
}
