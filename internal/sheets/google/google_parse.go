package google

import (
	"fmt"
	"strings"
	"time"

	"savings/internal/core"
	ports "savings/internal/sheets"
)

// Columns: Month | User | Saving | Recorded at | Run
func savingRowValues(r ports.SavingRow) []any {
	return []any{
		r.Month,
		r.UserID,
		r.Saving.Float64(),
		r.RecordedAt.UTC().Format(time.RFC3339),
		r.RunID,
	}
}

// parseSavingRows converts a values matrix (as returned by Sheets API) into
// rows. Blank lines are skipped; a row with an unreadable saving is an error.
func parseSavingRows(values [][]interface{}) ([]ports.SavingRow, error) {
	var out []ports.SavingRow
	for i, raw := range values {
		row := toStrings(raw)
		month := safeGet(row, 0)
		user := safeGet(row, 1)
		if month == "" && user == "" {
			continue
		}
		saving, _, err := core.ParseAmount(safeGet(row, 2))
		if err != nil {
			return nil, fmt.Errorf("row %d: saving: %w", i+2, err)
		}
		r := ports.SavingRow{
			Month:  month,
			UserID: user,
			Saving: saving,
			RunID:  safeGet(row, 4),
		}
		if ts := safeGet(row, 3); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				r.RecordedAt = t
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
