package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"savings/internal/core"
	"savings/internal/log"
	"savings/internal/store"
)

const (
	DefaultWorkers      = 4
	DefaultStoreTimeout = 10 * time.Second
	publishTimeout      = 10 * time.Second
)

// Failure reasons reported in Summary.Failures.
const (
	ReasonMalformed   = log.ErrorTypeMalformed
	ReasonUnavailable = log.ErrorTypeUnavailable
	ReasonStore       = log.ErrorTypeDatabase
	ReasonPolicy      = "policy_error"
	ReasonRepair      = "repair_failed"
)

// EventPublisher receives the outcome of a run. Publish errors are logged and
// never change the summary.
type EventPublisher interface {
	SavingRecorded(ctx context.Context, runID string, entry core.LedgerEntry) error
	ReconciliationCompleted(ctx context.Context, summary Summary) error
}

// Options configures a Reconciler. Zero values select the defaults.
type Options struct {
	Workers      int
	StoreTimeout time.Duration
	// Location decides where month boundaries fall. Defaults to UTC.
	Location  *time.Location
	Policy    Policy
	Clock     func() time.Time
	Publisher EventPublisher
	Logger    *log.Logger
}

// Reconciler closes the previous calendar month for every user: one ledger
// entry per (user, month), and the same amount added once to the user's total.
type Reconciler struct {
	users   store.UserStore
	ledger  store.LedgerStore
	policy  Policy
	workers int
	timeout time.Duration
	loc     *time.Location
	clock   func() time.Time
	events  EventPublisher
	logger  *log.Logger
}

// NewReconciler wires the stores. Without an explicit policy the expense policy
// over expenses is used.
func NewReconciler(users store.UserStore, expenses store.ExpenseStore, ledger store.LedgerStore, opts Options) (*Reconciler, error) {
	if users == nil || ledger == nil {
		return nil, errors.New("reconciler needs a user store and a ledger store")
	}
	policy := opts.Policy
	if policy == nil {
		p, err := GetPolicy(PolicyExpenses, expenses)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	r := &Reconciler{
		users:   users,
		ledger:  ledger,
		policy:  policy,
		workers: opts.Workers,
		timeout: opts.StoreTimeout,
		loc:     opts.Location,
		clock:   opts.Clock,
		events:  opts.Publisher,
		logger:  opts.Logger,
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if r.timeout <= 0 {
		r.timeout = DefaultStoreTimeout
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = log.FromSlog(nil, log.ComponentReconciler)
	}
	return r, nil
}

// Policy returns the active saving policy.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// RunMonthlyReconciliation reconciles the month before the current one.
func (r *Reconciler) RunMonthlyReconciliation(ctx context.Context) (Summary, error) {
	return r.Reconcile(ctx, r.clock())
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeRepaired
	outcomeFailed
)

type userResult struct {
	outcome outcome
	entry   core.LedgerEntry
	failure Failure
	err     error
}

// Reconcile closes the month preceding now's month.
//
// Pending entries left by an interrupted run are applied first. Users are then
// processed concurrently and independently: a failing user is recorded and
// the others continue. The returned error is non-nil only when the users
// could not be listed, when every attempted user hit an unavailable store,
// or when ctx ended; the summary is always populated.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) (Summary, error) {
	month := core.PreviousMonth(now.In(r.loc))
	start, end := month.Range(r.loc)

	sum := Summary{
		RunID:   uuid.NewString(),
		Month:   month.String(),
		Policy:  r.policy.Name(),
		Started: r.clock(),
	}
	logger := r.logger.With(log.FieldRunID, sum.RunID, log.FieldMonth, sum.Month)

	logger.InfoContext(ctx, "Starting monthly reconciliation",
		log.FieldPolicy, sum.Policy,
		"range_start", start.Format(time.RFC3339),
		"range_end", end.Format(time.RFC3339))

	r.repairPending(ctx, logger, &sum)

	if err := ctx.Err(); err != nil {
		return r.interrupted(ctx, logger, sum, err)
	}
	records, err := r.listUsers(ctx)
	if err != nil && ctx.Err() != nil {
		return r.interrupted(ctx, logger, sum, ctx.Err())
	}
	if err != nil {
		sum.Aborted = true
		sum.Finished = r.clock()
		logger.ErrorContext(ctx, "Failed to list users",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeUnavailable)
		r.publish(ctx, logger, sum)
		return sum, err
	}

	var (
		mu          sync.Mutex
		attempted   int
		unavailable int
	)
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for _, rec := range records {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}
		attempted++
		g.Go(func() error {
			res := r.reconcileUser(ctx, logger, rec, month, start, end)

			mu.Lock()
			defer mu.Unlock()
			switch res.outcome {
			case outcomeProcessed:
				sum.Processed++
				sum.Recorded = append(sum.Recorded, res.entry)
			case outcomeRepaired:
				sum.Repaired++
				sum.Recorded = append(sum.Recorded, res.entry)
			case outcomeSkipped:
				sum.Skipped++
			case outcomeFailed:
				sum.Failed++
				sum.Failures = append(sum.Failures, res.failure)
				if errors.Is(res.err, core.ErrStoreUnavailable) {
					unavailable++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	sum.Finished = r.clock()

	var runErr error
	switch {
	case attempted > 0 && unavailable == attempted:
		sum.Aborted = true
		runErr = fmt.Errorf("%w: all %d users failed", core.ErrStoreUnavailable, attempted)
	case sum.Cancelled || ctx.Err() != nil:
		sum.Cancelled = true
		runErr = fmt.Errorf("reconciliation interrupted after %d of %d users: %w", attempted, len(records), ctx.Err())
	}

	logger.InfoContext(ctx, "Monthly reconciliation complete",
		"status", sum.Status(),
		"users", len(records),
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"repaired", sum.Repaired,
		"repair_failed", sum.RepairFailed,
		log.FieldDuration, sum.Duration().Milliseconds())

	r.publish(ctx, logger, sum)
	return sum, runErr
}

// interrupted ends a run whose context was cancelled before users were listed.
func (r *Reconciler) interrupted(ctx context.Context, logger *log.Logger, sum Summary, err error) (Summary, error) {
	sum.Cancelled = true
	sum.Finished = r.clock()
	logger.WarnContext(ctx, "Reconciliation interrupted before listing users",
		"repaired", sum.Repaired,
		log.FieldError, err)
	r.publish(ctx, logger, sum)
	return sum, fmt.Errorf("reconciliation interrupted before listing users: %w", err)
}

func (r *Reconciler) listUsers(ctx context.Context) ([]core.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.users.ListUsers(ctx)
	if err == nil {
		return records, nil
	}
	if errors.Is(err, core.ErrStoreUnavailable) {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return nil, fmt.Errorf("%w: list users: %w", core.ErrStoreUnavailable, err)
}

// reconcileUser runs NOT_RECONCILED -> ALREADY_DONE | COMPUTE -> PERSISTED for one user.
func (r *Reconciler) reconcileUser(ctx context.Context, logger *log.Logger, rec core.UserRecord, month core.Month, start, end time.Time) userResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user, err := rec.Normalize()
	if err != nil {
		logger.WarnContext(ctx, "Skipping malformed user record",
			log.FieldUserID, rec.ID,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeMalformed)
		return r.failed(rec.ID, month, ReasonMalformed, err)
	}
	logger = logger.With(log.FieldUserID, user.ID)

	existing, err := r.ledger.FindEntry(ctx, user.ID, month)
	if err != nil {
		return r.storeFailure(ctx, logger, user.ID, month, log.OpFind, err)
	}
	if existing != nil {
		if existing.Applied {
			logger.DebugContext(ctx, "Month already reconciled")
			return userResult{outcome: outcomeSkipped}
		}
		// Inserted by an earlier run that did not get to apply it.
		if err := r.apply(ctx, *existing); err != nil {
			return r.storeFailure(ctx, logger, user.ID, month, log.OpRepair, err)
		}
		logger.InfoContext(ctx, "Applied pending ledger entry",
			log.FieldSavingCents, existing.Saving.Cents)
		e := *existing
		e.Applied = true
		return userResult{outcome: outcomeRepaired, entry: e}
	}

	saving, err := r.policy.Saving(ctx, user, start, end)
	if err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			return r.storeFailure(ctx, logger, user.ID, month, log.OpReconcile, err)
		}
		logger.ErrorContext(ctx, "Failed to compute saving",
			log.FieldPolicy, r.policy.Name(),
			log.FieldError, err)
		return r.failed(user.ID, month, ReasonPolicy, err)
	}

	entry := core.LedgerEntry{
		UserID:    user.ID,
		Month:     month,
		Saving:    saving,
		CreatedAt: r.clock(),
	}
	if err := r.ledger.InsertEntry(ctx, entry); err != nil {
		if errors.Is(err, core.ErrDuplicateEntry) {
			logger.InfoContext(ctx, "Ledger entry written concurrently, skipping")
			return userResult{outcome: outcomeSkipped}
		}
		return r.storeFailure(ctx, logger, user.ID, month, log.OpInsert, err)
	}

	if err := r.apply(ctx, entry); err != nil {
		// The entry stays pending and is applied by the next run.
		return r.storeFailure(ctx, logger, user.ID, month, log.OpIncrement, err)
	}

	logger.InfoContext(ctx, "Recorded monthly saving",
		log.FieldSavingCents, saving.Cents)
	entry.Applied = true
	return userResult{outcome: outcomeProcessed, entry: entry}
}

// apply adds the entry's saving to the user's total and flags the entry.
// IncrementTotalSavings is idempotent per month, so re-applying after a crash
// between the two calls is safe.
func (r *Reconciler) apply(ctx context.Context, e core.LedgerEntry) error {
	if _, err := r.users.IncrementTotalSavings(ctx, e.UserID, e.Month, e.Saving); err != nil {
		return fmt.Errorf("increment total savings: %w", err)
	}
	if err := r.ledger.MarkApplied(ctx, e.UserID, e.Month); err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	return nil
}

// repairPending applies entries of any month that were inserted but never
// applied. Failures are recorded and left for the next run.
func (r *Reconciler) repairPending(ctx context.Context, logger *log.Logger, sum *Summary) {
	listCtx, cancel := context.WithTimeout(ctx, r.timeout)
	pending, err := r.ledger.ListPending(listCtx)
	cancel()
	if err != nil {
		logger.WarnContext(ctx, "Could not list pending ledger entries",
			log.FieldOperation, log.OpRepair,
			log.FieldError, err)
		return
	}

	for _, e := range pending {
		if ctx.Err() != nil {
			return
		}
		applyCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.apply(applyCtx, e)
		cancel()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to apply pending ledger entry",
				log.FieldUserID, e.UserID,
				"entry_month", e.Month.String(),
				log.FieldError, err)
			sum.Failures = append(sum.Failures, Failure{
				UserID: e.UserID,
				Month:  e.Month.String(),
				Reason: ReasonRepair,
				Error:  err.Error(),
			})
			sum.RepairFailed++
			continue
		}
		logger.InfoContext(ctx, "Applied pending ledger entry",
			log.FieldUserID, e.UserID,
			"entry_month", e.Month.String(),
			log.FieldSavingCents, e.Saving.Cents)
		e.Applied = true
		sum.Repaired++
		sum.Recorded = append(sum.Recorded, e)
	}
}

func (r *Reconciler) storeFailure(ctx context.Context, logger *log.Logger, userID string, month core.Month, op string, err error) userResult {
	reason := ReasonStore
	if errors.Is(err, core.ErrStoreUnavailable) {
		reason = ReasonUnavailable
	}
	logger.ErrorContext(ctx, "Store operation failed",
		log.FieldOperation, op,
		log.FieldError, err,
		log.FieldErrorType, reason)
	return r.failed(userID, month, reason, err)
}

func (r *Reconciler) failed(userID string, month core.Month, reason string, err error) userResult {
	return userResult{
		outcome: outcomeFailed,
		err:     err,
		failure: Failure{
			UserID: userID,
			Month:  month.String(),
			Reason: reason,
			Error:  err.Error(),
		},
	}
}

func (r *Reconciler) publish(ctx context.Context, logger *log.Logger, sum Summary) {
	if r.events == nil {
		return
	}
	// Events describe writes that already happened, so they go out even when
	// the run itself was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, e := range sum.Recorded {
		if err := r.events.SavingRecorded(ctx, sum.RunID, e); err != nil {
			logger.WarnContext(ctx, "Failed to publish saving event",
				log.FieldOperation, log.OpPublish,
				log.FieldUserID, e.UserID,
				log.FieldError, err)
		}
	}
	if err := r.events.ReconciliationCompleted(ctx, sum); err != nil {
		logger.WarnContext(ctx, "Failed to publish reconciliation summary",
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}
