package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"savings/internal/amqp"
	"savings/internal/cache"
	"savings/internal/core"
	"savings/internal/sheets"
	"savings/internal/store"
)

const (
	exportedCacheSize = 10000
	exportedCacheTTL  = 24 * time.Hour
)

// ExportWorker copies recorded savings to a spreadsheet.
type ExportWorker struct {
	writer sheets.SavingWriter
	reader sheets.SavingReader

	// exported remembers "<user>/<month>" keys already in the sheet so
	// redeliveries skip the sheet read.
	exported *cache.LRU[struct{}]
}

// NewExportWorker builds a worker. reader may be nil, in which case only
// redeliveries seen by this process are deduplicated.
func NewExportWorker(writer sheets.SavingWriter, reader sheets.SavingReader) *ExportWorker {
	return &ExportWorker{
		writer:   writer,
		reader:   reader,
		exported: cache.NewLRU[struct{}](exportedCacheSize, exportedCacheTTL),
	}
}

// HandleEvent processes a single event from AMQP. Unknown event types are
// acknowledged and ignored.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.Event) error {
	switch event.Type {
	case amqp.EventSavingRecorded:
		var msg amqp.SavingRecordedMessage
		if err := event.DecodePayload(&msg); err != nil {
			// A payload that cannot be decoded will never succeed; drop it.
			slog.ErrorContext(ctx, "Dropping unreadable saving event",
				"id", event.ID,
				"error", err)
			return nil
		}
		return w.exportSaving(ctx, sheets.SavingRow{
			Month:      msg.Month,
			UserID:     msg.UserID,
			Saving:     core.Cents(msg.SavingCents),
			RecordedAt: msg.RecordedAt,
			RunID:      event.RunID,
		})

	case amqp.EventReconciliationCompleted:
		var msg amqp.ReconciliationCompletedMessage
		if err := event.DecodePayload(&msg); err != nil {
			slog.WarnContext(ctx, "Unreadable reconciliation summary", "id", event.ID, "error", err)
			return nil
		}
		slog.InfoContext(ctx, "Reconciliation completed",
			"run_id", event.RunID,
			"month", msg.Month,
			"status", msg.Status,
			"processed", msg.Processed,
			"skipped", msg.Skipped,
			"failed", msg.Failed,
			"repaired", msg.Repaired)
		return nil

	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "id", event.ID, "type", event.Type)
		return nil
	}
}

// ExportMonth writes every applied ledger entry of month that the sheet does
// not have yet. This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ExportMonth(ctx context.Context, month core.Month, users store.UserStore, ledger store.LedgerStore) (int, error) {
	records, err := users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	exported, errorCount := 0, 0
	for _, u := range records {
		entries, err := ledger.ListEntries(ctx, u.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list ledger entries", "user_id", u.ID, "error", err)
			errorCount++
			continue
		}
		for _, e := range entries {
			if e.Month != month || !e.Applied {
				continue
			}
			row := sheets.SavingRow{
				Month:      e.Month.String(),
				UserID:     e.UserID,
				Saving:     e.Saving,
				RecordedAt: e.CreatedAt,
				RunID:      "backfill",
			}
			if err := w.exportSaving(ctx, row); err != nil {
				slog.ErrorContext(ctx, "Failed to export saving", "user_id", e.UserID, "error", err)
				errorCount++
				continue
			}
			exported++
		}
	}

	slog.InfoContext(ctx, "Month export completed",
		"month", month.String(),
		"users", len(records),
		"exported", exported,
		"errors", errorCount)

	return exported, nil
}

func (w *ExportWorker) exportSaving(ctx context.Context, row sheets.SavingRow) error {
	key := row.UserID + "/" + row.Month
	if _, ok := w.exported.Get(key); ok {
		slog.DebugContext(ctx, "Saving already exported", "user_id", row.UserID, "month", row.Month)
		return nil
	}

	if w.reader != nil {
		existing, err := w.reader.ListSavings(ctx, row.Month)
		if err != nil {
			return fmt.Errorf("read exported savings: %w", err)
		}
		for _, r := range existing {
			if r.UserID == row.UserID {
				slog.DebugContext(ctx, "Saving already in sheet",
					"user_id", row.UserID,
					"month", row.Month)
				w.exported.Set(key, struct{}{})
				return nil
			}
		}
	}

	ref, err := w.writer.AppendSaving(ctx, row)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	w.exported.Set(key, struct{}{})

	slog.InfoContext(ctx, "Successfully exported saving",
		"user_id", row.UserID,
		"month", row.Month,
		"sheets_ref", ref,
		"saving_cents", row.Saving.Cents)

	return nil
}
