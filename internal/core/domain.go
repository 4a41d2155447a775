package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// UserRecord is a user exactly as read from a store. Monetary fields keep
	// their raw stored value (nil when absent) so that bad legacy data surfaces
	// as ErrMalformedUserRecord instead of a scan failure.
	UserRecord struct {
		ID            string
		MonthlySalary any
		SavingGoal    any
		Balance       any
		TotalSavings  Money
	}

	// User is a validated user record.
	User struct {
		ID            string
		MonthlySalary Money // 0 when not set
		SavingGoal    Money
		HasSavingGoal bool
		Balance       Money
		TotalSavings  Money
	}

	Expense struct {
		UserID   string
		Amount   Money
		Date     time.Time // economic date, not the write time
		Category string
		Note     string
	}

	// LedgerEntry records one user's saving for one month. (UserID, Month) is unique.
	// Applied is set once Saving has been added to the user's TotalSavings.
	LedgerEntry struct {
		UserID    string
		Month     Month
		Saving    Money
		CreatedAt time.Time
		Applied   bool
	}
)

var (
	// ErrStoreUnavailable marks transient store failures. A batch that cannot
	// reach its stores at all is aborted and retried by the scheduler.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateEntry is returned by ledger inserts when (user, month) already exists.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")
	// ErrMalformedUserRecord marks a user whose stored fields cannot be interpreted.
	ErrMalformedUserRecord = errors.New("malformed user record")
	ErrUserNotFound        = errors.New("user not found")

	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidMonth   = errors.New("invalid month")
	ErrEmptyCategory  = errors.New("empty category")
	ErrInvalidDate    = errors.New("invalid date")
	ErrEmptyUserID    = errors.New("empty user id")
	ErrNegativeAmount = errors.New("negative amount")
)

// Normalize validates the raw record. A missing salary counts as zero; a
// non-numeric or negative salary or saving goal is a malformed record.
func (r UserRecord) Normalize() (User, error) {
	u := User{ID: r.ID, TotalSavings: r.TotalSavings}
	if strings.TrimSpace(r.ID) == "" {
		return User{}, fmt.Errorf("%w: %v", ErrMalformedUserRecord, ErrEmptyUserID)
	}

	salary, _, err := ParseAmount(r.MonthlySalary)
	if err != nil {
		return User{}, fmt.Errorf("%w: monthlySalary: %v", ErrMalformedUserRecord, err)
	}
	if salary.IsNegative() {
		return User{}, fmt.Errorf("%w: monthlySalary: %v", ErrMalformedUserRecord, ErrNegativeAmount)
	}
	u.MonthlySalary = salary

	goal, present, err := ParseAmount(r.SavingGoal)
	if err != nil {
		return User{}, fmt.Errorf("%w: savingGoal: %v", ErrMalformedUserRecord, err)
	}
	if goal.IsNegative() {
		return User{}, fmt.Errorf("%w: savingGoal: %v", ErrMalformedUserRecord, ErrNegativeAmount)
	}
	u.SavingGoal, u.HasSavingGoal = goal, present

	balance, _, err := ParseAmount(r.Balance)
	if err != nil {
		return User{}, fmt.Errorf("%w: balance: %v", ErrMalformedUserRecord, err)
	}
	u.Balance = balance

	return u, nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUserID
	}
	if e.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := e.Month.Validate(); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Key returns the natural key "<user>/<YYYY-MM>".
func (e LedgerEntry) Key() string {
	return e.UserID + "/" + e.Month.String()
}
