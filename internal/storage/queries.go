package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// User mirrors a users row. Salary, goal and balance are scanned untyped.
type User struct {
	ID                string
	Email             sql.NullString
	MonthlySalary     any
	SavingGoal        any
	Balance           any
	TotalSavingsCents int64
	CreatedAt         int64
}

type LedgerRow struct {
	UserID      string
	Month       string
	SavingCents int64
	CreatedAt   int64
	AppliedAt   sql.NullInt64
}

const listUsers = `SELECT id, email, monthly_salary, saving_goal, balance, total_savings_cents, created_at
FROM users ORDER BY created_at, id`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(&i.ID, &i.Email, &i.MonthlySalary, &i.SavingGoal, &i.Balance, &i.TotalSavingsCents, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getUser = `SELECT id, email, monthly_salary, saving_goal, balance, total_savings_cents, created_at
FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var i User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&i.ID, &i.Email, &i.MonthlySalary, &i.SavingGoal, &i.Balance, &i.TotalSavingsCents, &i.CreatedAt)
	return i, err
}

const createUser = `INSERT INTO users (id, email, monthly_salary, saving_goal, balance, total_savings_cents, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

type CreateUserParams struct {
	ID                string
	Email             sql.NullString
	MonthlySalary     any
	SavingGoal        any
	Balance           any
	TotalSavingsCents int64
	CreatedAt         int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser, arg.ID, arg.Email, arg.MonthlySalary, arg.SavingGoal, arg.Balance, arg.TotalSavingsCents, arg.CreatedAt)
	return err
}

const addToTotalSavings = `UPDATE users SET total_savings_cents = total_savings_cents + ? WHERE id = ?`

func (q *Queries) AddToTotalSavings(ctx context.Context, deltaCents int64, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, addToTotalSavings, deltaCents, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createExpense = `INSERT INTO expenses (user_id, amount_cents, category, note, spent_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

type CreateExpenseParams struct {
	UserID      string
	AmountCents int64
	Category    string
	Note        string
	SpentAt     int64
	CreatedAt   int64
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExpense, arg.UserID, arg.AmountCents, arg.Category, arg.Note, arg.SpentAt, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const sumExpenseAmounts = `SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
WHERE user_id = ? AND spent_at >= ? AND spent_at < ?`

func (q *Queries) SumExpenseAmounts(ctx context.Context, userID string, startMillis, endMillis int64) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumExpenseAmounts, userID, startMillis, endMillis).Scan(&total)
	return total, err
}

const getLedgerEntry = `SELECT user_id, month, saving_cents, created_at, applied_at
FROM savings_ledger WHERE user_id = ? AND month = ?`

func (q *Queries) GetLedgerEntry(ctx context.Context, userID, month string) (LedgerRow, error) {
	var i LedgerRow
	err := q.db.QueryRowContext(ctx, getLedgerEntry, userID, month).Scan(&i.UserID, &i.Month, &i.SavingCents, &i.CreatedAt, &i.AppliedAt)
	return i, err
}

const insertLedgerEntry = `INSERT INTO savings_ledger (user_id, month, saving_cents, created_at)
VALUES (?, ?, ?, ?)`

func (q *Queries) InsertLedgerEntry(ctx context.Context, arg LedgerRow) error {
	_, err := q.db.ExecContext(ctx, insertLedgerEntry, arg.UserID, arg.Month, arg.SavingCents, arg.CreatedAt)
	return err
}

const applyLedgerEntry = `UPDATE savings_ledger SET applied_at = ?
WHERE user_id = ? AND month = ? AND applied_at IS NULL`

// ApplyLedgerEntry flags a pending entry; it affects zero rows when the entry
// is missing or already applied.
func (q *Queries) ApplyLedgerEntry(ctx context.Context, appliedAt int64, userID, month string) (int64, error) {
	res, err := q.db.ExecContext(ctx, applyLedgerEntry, appliedAt, userID, month)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listPendingLedgerEntries = `SELECT user_id, month, saving_cents, created_at, applied_at
FROM savings_ledger WHERE applied_at IS NULL ORDER BY month, user_id`

func (q *Queries) ListPendingLedgerEntries(ctx context.Context) ([]LedgerRow, error) {
	return q.listLedger(ctx, listPendingLedgerEntries)
}

const listLedgerEntriesByUser = `SELECT user_id, month, saving_cents, created_at, applied_at
FROM savings_ledger WHERE user_id = ? ORDER BY month`

func (q *Queries) ListLedgerEntriesByUser(ctx context.Context, userID string) ([]LedgerRow, error) {
	return q.listLedger(ctx, listLedgerEntriesByUser, userID)
}

const sumAppliedSavings = `SELECT COALESCE(SUM(saving_cents), 0) FROM savings_ledger
WHERE user_id = ? AND applied_at IS NOT NULL`

func (q *Queries) SumAppliedSavings(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumAppliedSavings, userID).Scan(&total)
	return total, err
}

func (q *Queries) listLedger(ctx context.Context, query string, args ...interface{}) ([]LedgerRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerRow
	for rows.Next() {
		var i LedgerRow
		if err := rows.Scan(&i.UserID, &i.Month, &i.SavingCents, &i.CreatedAt, &i.AppliedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
