package sheets

import (
	"context"
	"time"

	"savings/internal/core"
)

// SavingRow is one exported ledger entry.
type SavingRow struct {
	Month      string
	UserID     string
	Saving     core.Money
	RecordedAt time.Time
	RunID      string
}

// Ports for outbound adapters.
type (
	SavingWriter interface {
		AppendSaving(ctx context.Context, row SavingRow) (rowRef string, err error)
	}

	// SavingReader lets the exporter skip rows it already wrote when an
	// event is delivered twice.
	SavingReader interface {
		ListSavings(ctx context.Context, month string) ([]SavingRow, error)
	}
)

// Validate checks the fields every sheet row needs.
func (r SavingRow) Validate() error {
	if r.UserID == "" {
		return core.ErrEmptyUserID
	}
	if _, err := core.ParseMonth(r.Month); err != nil {
		return err
	}
	return nil
}
