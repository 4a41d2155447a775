package amqp

import (
	"context"

	"savings/internal/core"
	"savings/internal/services"
)

// EventSink is satisfied by *Client.
type EventSink interface {
	Publish(ctx context.Context, event *Event) error
}

// SavingsPublisher turns reconciler outcomes into events.
type SavingsPublisher struct {
	sink EventSink
}

var _ services.EventPublisher = (*SavingsPublisher)(nil)

func NewSavingsPublisher(sink EventSink) *SavingsPublisher {
	return &SavingsPublisher{sink: sink}
}

func (p *SavingsPublisher) SavingRecorded(ctx context.Context, runID string, entry core.LedgerEntry) error {
	event, err := NewEvent(EventSavingRecorded, runID, SavingRecordedMessage{
		UserID:      entry.UserID,
		Month:       entry.Month.String(),
		SavingCents: entry.Saving.Cents,
		RecordedAt:  entry.CreatedAt,
	})
	if err != nil {
		return err
	}
	return p.sink.Publish(ctx, event)
}

func (p *SavingsPublisher) ReconciliationCompleted(ctx context.Context, sum services.Summary) error {
	event, err := NewEvent(EventReconciliationCompleted, sum.RunID, ReconciliationCompletedMessage{
		Month:        sum.Month,
		Policy:       sum.Policy,
		Status:       string(sum.Status()),
		Processed:    sum.Processed,
		Skipped:      sum.Skipped,
		Failed:       sum.Failed,
		Repaired:     sum.Repaired,
		RepairFailed: sum.RepairFailed,
		Started:      sum.Started,
		Finished:     sum.Finished,
	})
	if err != nil {
		return err
	}
	return p.sink.Publish(ctx, event)
}
