package memory

import (
	"context"
	"fmt"
	"sync"

	ports "savings/internal/sheets"
)

// Store keeps exported rows in memory.
type Store struct {
	mu   sync.Mutex
	rows []ports.SavingRow
}

var (
	_ ports.SavingWriter = (*Store)(nil)
	_ ports.SavingReader = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// AppendSaving stores the row and returns a synthetic row reference.
func (s *Store) AppendSaving(_ context.Context, row ports.SavingRow) (string, error) {
	if err := row.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ListSavings returns the rows of month in insertion order.
func (s *Store) ListSavings(_ context.Context, month string) ([]ports.SavingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.SavingRow
	for _, r := range s.rows {
		if r.Month == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rows returns a copy of every stored row.
func (s *Store) Rows() []ports.SavingRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.SavingRow(nil), s.rows...)
}
