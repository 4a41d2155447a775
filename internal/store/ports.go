// Package store declares the persistence ports consumed by the savings reconciler.
// Implementations live in storage (SQLite), store/mongostore and store/memory.
package store

import (
	"context"
	"time"

	"savings/internal/core"
)

// Ports for outbound adapters.
type (
	UserStore interface {
		// ListUsers returns every user record as stored.
		ListUsers(ctx context.Context) ([]core.UserRecord, error)

		// IncrementTotalSavings adds delta to the user's running total. It is a
		// relative adjustment and idempotent per (userID, month): applying the
		// same month twice returns applied=false and changes nothing. The ledger
		// entry for (userID, month) must already have been inserted.
		IncrementTotalSavings(ctx context.Context, userID string, month core.Month, delta core.Money) (applied bool, err error)

		// GetUser returns a single user or core.ErrUserNotFound.
		GetUser(ctx context.Context, userID string) (core.UserRecord, error)
	}

	ExpenseStore interface {
		// SumAmounts totals the user's expenses dated in [start, end). Zero if none.
		SumAmounts(ctx context.Context, userID string, start, end time.Time) (core.Money, error)
	}

	LedgerStore interface {
		// FindEntry returns nil, nil when no entry exists for the key.
		FindEntry(ctx context.Context, userID string, month core.Month) (*core.LedgerEntry, error)

		// InsertEntry stores a pending entry. The store enforces uniqueness of
		// (userID, month) and returns core.ErrDuplicateEntry on conflict.
		InsertEntry(ctx context.Context, entry core.LedgerEntry) error

		// MarkApplied flags the entry as reflected in the user's total.
		MarkApplied(ctx context.Context, userID string, month core.Month) error

		// ListPending returns entries inserted but not yet applied, any month.
		ListPending(ctx context.Context) ([]core.LedgerEntry, error)

		// ListEntries returns a user's history ordered by month.
		ListEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error)
	}

	// Pinger is implemented by stores that can report reachability.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
