package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"savings/internal/core"
	"savings/internal/store"
)

// SQLiteRepository implements the user, expense and ledger ports on one SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var (
	_ store.UserStore    = (*SQLiteRepository)(nil)
	_ store.ExpenseStore = (*SQLiteRepository)(nil)
	_ store.LedgerStore  = (*SQLiteRepository)(nil)
	_ store.Pinger       = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; concurrent reconciler workers queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// CreateUser inserts a user. Salary, goal and balance are written as given.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.UserRecord, email string) error {
	err := r.queries.CreateUser(ctx, CreateUserParams{
		ID:                u.ID,
		Email:             sql.NullString{String: email, Valid: email != ""},
		MonthlySalary:     u.MonthlySalary,
		SavingGoal:        u.SavingGoal,
		Balance:           u.Balance,
		TotalSavingsCents: u.TotalSavings.Cents,
		CreatedAt:         r.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, classify(err))
	}
	return nil
}

// AddExpense validates and stores an expense, returning its row id.
func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	id, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		UserID:      e.UserID,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Note:        e.Note,
		SpentAt:     e.Date.UnixMilli(),
		CreatedAt:   r.now().UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", classify(err))
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", id,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category)

	return id, nil
}

// ListUsers implements store.UserStore
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.UserRecord, error) {
	rows, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", classify(err))
	}
	users := make([]core.UserRecord, len(rows))
	for i, u := range rows {
		users[i] = toUserRecord(u)
	}
	return users, nil
}

// GetUser implements store.UserStore
func (r *SQLiteRepository) GetUser(ctx context.Context, userID string) (core.UserRecord, error) {
	u, err := r.queries.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserRecord{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return core.UserRecord{}, fmt.Errorf("get user %s: %w", userID, classify(err))
	}
	return toUserRecord(u), nil
}

// IncrementTotalSavings implements store.UserStore. Flagging the ledger row and
// adding to the total happen in one transaction, so the total moves at most
// once per (user, month).
func (r *SQLiteRepository) IncrementTotalSavings(ctx context.Context, userID string, month core.Month, delta core.Money) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	n, err := q.ApplyLedgerEntry(ctx, r.now().UnixMilli(), userID, month.String())
	if err != nil {
		return false, fmt.Errorf("apply ledger entry: %w", classify(err))
	}
	if n == 0 {
		if _, err := q.GetLedgerEntry(ctx, userID, month.String()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, fmt.Errorf("increment %s/%s: no ledger entry", userID, month)
			}
			return false, fmt.Errorf("get ledger entry: %w", classify(err))
		}
		// Already applied by an earlier run.
		return false, nil
	}

	n, err = q.AddToTotalSavings(ctx, delta.Cents, userID)
	if err != nil {
		return false, fmt.Errorf("add to total savings: %w", classify(err))
	}
	if n == 0 {
		return false, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", classify(err))
	}
	return true, nil
}

// SumAmounts implements store.ExpenseStore
func (r *SQLiteRepository) SumAmounts(ctx context.Context, userID string, start, end time.Time) (core.Money, error) {
	total, err := r.queries.SumExpenseAmounts(ctx, userID, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", classify(err))
	}
	return core.Cents(total), nil
}

// FindEntry implements store.LedgerStore
func (r *SQLiteRepository) FindEntry(ctx context.Context, userID string, month core.Month) (*core.LedgerEntry, error) {
	row, err := r.queries.GetLedgerEntry(ctx, userID, month.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", classify(err))
	}
	e, err := toLedgerEntry(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertEntry implements store.LedgerStore
func (r *SQLiteRepository) InsertEntry(ctx context.Context, entry core.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	err := r.queries.InsertLedgerEntry(ctx, LedgerRow{
		UserID:      entry.UserID,
		Month:       entry.Month.String(),
		SavingCents: entry.Saving.Cents,
		CreatedAt:   entry.CreatedAt.UnixMilli(),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateEntry, entry.Key())
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", classify(err))
	}
	return nil
}

// MarkApplied implements store.LedgerStore. IncrementTotalSavings already sets
// applied_at, so this only fails when the entry does not exist.
func (r *SQLiteRepository) MarkApplied(ctx context.Context, userID string, month core.Month) error {
	if _, err := r.queries.ApplyLedgerEntry(ctx, r.now().UnixMilli(), userID, month.String()); err != nil {
		return fmt.Errorf("mark applied: %w", classify(err))
	}
	if _, err := r.queries.GetLedgerEntry(ctx, userID, month.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark applied %s/%s: no such entry", userID, month)
		}
		return fmt.Errorf("get ledger entry: %w", classify(err))
	}
	return nil
}

// ListPending implements store.LedgerStore
func (r *SQLiteRepository) ListPending(ctx context.Context) ([]core.LedgerEntry, error) {
	rows, err := r.queries.ListPendingLedgerEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", classify(err))
	}
	return toLedgerEntries(rows)
}

// ListEntries implements store.LedgerStore
func (r *SQLiteRepository) ListEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	rows, err := r.queries.ListLedgerEntriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", userID, classify(err))
	}
	return toLedgerEntries(rows)
}

// SumAppliedSavings returns the sum of applied ledger entries for a user. It
// equals the user's total savings when the ledger and counter agree.
func (r *SQLiteRepository) SumAppliedSavings(ctx context.Context, userID string) (core.Money, error) {
	total, err := r.queries.SumAppliedSavings(ctx, userID)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum applied savings: %w", classify(err))
	}
	return core.Cents(total), nil
}

func toUserRecord(u User) core.UserRecord {
	return core.UserRecord{
		ID:            u.ID,
		MonthlySalary: u.MonthlySalary,
		SavingGoal:    u.SavingGoal,
		Balance:       u.Balance,
		TotalSavings:  core.Cents(u.TotalSavingsCents),
	}
}

func toLedgerEntry(row LedgerRow) (core.LedgerEntry, error) {
	month, err := core.ParseMonth(row.Month)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger row %s: %w", row.UserID, err)
	}
	return core.LedgerEntry{
		UserID:    row.UserID,
		Month:     month,
		Saving:    core.Cents(row.SavingCents),
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		Applied:   row.AppliedAt.Valid,
	}, nil
}

func toLedgerEntries(rows []LedgerRow) ([]core.LedgerEntry, error) {
	entries := make([]core.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		e, err := toLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// classify tags connection-level failures as core.ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
		}
	}
	return err
}
