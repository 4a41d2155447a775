package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savings/internal/core"
	"savings/internal/log"
	"savings/internal/store/memory"
)

var (
	// Any instant in April closes March.
	aprilNow = time.Date(2024, time.April, 15, 10, 30, 0, 0, time.UTC)
	march    = core.Month{Year: 2024, Month: time.March}
	february = core.Month{Year: 2024, Month: time.February}
)

func newTestReconciler(t *testing.T, s *memory.Store, opts Options) *Reconciler {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return aprilNow }
	}
	r, err := NewReconciler(s, s, s, opts)
	require.NoError(t, err)
	return r
}

func addExpense(t *testing.T, s *memory.Store, userID string, cents int64, at time.Time) {
	t.Helper()
	require.NoError(t, s.AddExpense(context.Background(), core.Expense{
		UserID:   userID,
		Amount:   core.Cents(cents),
		Date:     at,
		Category: "test",
	}))
}

func totalOf(t *testing.T, s *memory.Store, userID string) int64 {
	t.Helper()
	u, err := s.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.TotalSavings.Cents
}

func ledgerSum(t *testing.T, s *memory.Store, userID string) (sum int64, n int) {
	t.Helper()
	entries, err := s.ListEntries(context.Background(), userID)
	require.NoError(t, err)
	for _, e := range entries {
		sum += e.Saving.Cents
	}
	return sum, len(entries)
}

// seedScenario creates users A to D:
// A earns 3000 and spent 500 and 1200 in March.
// B already has an applied March entry of 200.
// C earns 1000 and spent 1500.
// D has a non-numeric salary.
func seedScenario(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	start, _ := march.Range(time.UTC)

	s.PutUser(core.UserRecord{ID: "A", MonthlySalary: 3000})
	s.PutUser(core.UserRecord{ID: "B", MonthlySalary: 5000, TotalSavings: core.Cents(20000)})
	s.PutUser(core.UserRecord{ID: "C", MonthlySalary: "1000"})
	s.PutUser(core.UserRecord{ID: "D", MonthlySalary: "three thousand"})

	addExpense(t, s, "A", 50000, start.Add(24*time.Hour))
	addExpense(t, s, "A", 120000, start.Add(10*24*time.Hour))
	addExpense(t, s, "B", 99900, start.Add(48*time.Hour))
	addExpense(t, s, "C", 150000, start.Add(72*time.Hour))

	s.PutEntry(core.LedgerEntry{UserID: "B", Month: march, Saving: core.Cents(20000), CreatedAt: aprilNow.Add(-time.Hour), Applied: true})
	return s
}

func TestReconcileScenario(t *testing.T) {
	s := seedScenario(t)
	r := newTestReconciler(t, s, Options{})

	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)

	assert.Equal(t, "2024-03", sum.Month)
	assert.Equal(t, 2, sum.Processed, "A and C")
	assert.Equal(t, 1, sum.Skipped, "B")
	assert.Equal(t, 1, sum.Failed, "D")
	assert.Equal(t, StatusPartial, sum.Status())
	assert.NotEmpty(t, sum.RunID)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "D", sum.Failures[0].UserID)
	assert.Equal(t, ReasonMalformed, sum.Failures[0].Reason)

	a, err := s.FindEntry(context.Background(), "A", march)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, int64(130000), a.Saving.Cents)
	assert.True(t, a.Applied)
	assert.Equal(t, int64(130000), totalOf(t, s, "A"))

	c, err := s.FindEntry(context.Background(), "C", march)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(-50000), c.Saving.Cents)
	assert.Equal(t, int64(-50000), totalOf(t, s, "C"))

	assert.Equal(t, int64(20000), totalOf(t, s, "B"))
	_, n := ledgerSum(t, s, "B")
	assert.Equal(t, 1, n)

	d, err := s.FindEntry(context.Background(), "D", march)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestReconcileIsIdempotent(t *testing.T) {
	s := seedScenario(t)
	r := newTestReconciler(t, s, Options{})

	_, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)

	before := map[string]int64{}
	for _, id := range []string{"A", "B", "C"} {
		before[id] = totalOf(t, s, id)
	}

	// Later in the same month targets March again.
	sum, err := r.Reconcile(context.Background(), aprilNow.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Processed)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Repaired)

	for id, total := range before {
		assert.Equal(t, total, totalOf(t, s, id), "user %s", id)
		_, n := ledgerSum(t, s, id)
		assert.Equal(t, 1, n, "user %s", id)
	}
}

func TestTotalSavingsEqualsLedgerSum(t *testing.T) {
	s := memory.New()
	for _, id := range []string{"u1", "u2", "u3"} {
		s.PutUser(core.UserRecord{ID: id, MonthlySalary: 1000})
	}
	for m := time.January; m <= time.May; m++ {
		start := time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)
		addExpense(t, s, "u1", int64(m)*10000, start)
		addExpense(t, s, "u2", 150000, start.Add(time.Hour))
	}

	r := newTestReconciler(t, s, Options{Workers: 2})
	for m := time.February; m <= time.June; m++ {
		now := time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 2; i++ {
			_, err := r.Reconcile(context.Background(), now)
			require.NoError(t, err)
		}
	}

	for _, id := range []string{"u1", "u2", "u3"} {
		sum, n := ledgerSum(t, s, id)
		assert.Equal(t, 5, n, "user %s", id)
		assert.Equal(t, sum, totalOf(t, s, id), "user %s", id)
	}
	assert.Equal(t, int64(5*100000), totalOf(t, s, "u3"))
	assert.Equal(t, int64(5*(100000-150000)), totalOf(t, s, "u2"))
}

func TestMonthEdges(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 100})
	start, end := march.Range(time.UTC)

	addExpense(t, s, "u1", 1000, start)                     // included
	addExpense(t, s, "u1", 2000, end.Add(-time.Nanosecond)) // included
	addExpense(t, s, "u1", 4000, end)                       // excluded
	addExpense(t, s, "u1", 8000, start.Add(-time.Nanosecond))

	r := newTestReconciler(t, s, Options{})
	_, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)

	e, err := s.FindEntry(context.Background(), "u1", march)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(10000-3000), e.Saving.Cents)
}

func TestMissingSalaryIsZero(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1"})
	start, _ := march.Range(time.UTC)
	addExpense(t, s, "u1", 2500, start.Add(time.Hour))

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sum.Status())

	e, err := s.FindEntry(context.Background(), "u1", march)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(-2500), e.Saving.Cents)
	assert.Equal(t, int64(-2500), totalOf(t, s, "u1"))
}

func TestReconcileTargetsPreviousMonth(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		loc  *time.Location
		want string
	}{
		{"mid month", aprilNow, nil, "2024-03"},
		{"january rolls back a year", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), nil, "2023-12"},
		{"last instant of month", time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC), nil, "2024-02"},
		// 23:30 UTC on Mar 31 is already April 1 one hour east.
		{"configured location", time.Date(2024, time.March, 31, 23, 30, 0, 0, time.UTC), time.FixedZone("UTC+1", 3600), "2024-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler(t, memory.New(), Options{Location: tt.loc})
			sum, err := r.Reconcile(context.Background(), tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sum.Month)
			assert.Equal(t, StatusSuccess, sum.Status())
		})
	}
}

func TestMonthBoundariesFollowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1"})
	// March 1 00:30 local, still February in UTC.
	addExpense(t, s, "u1", 700, time.Date(2024, time.February, 29, 23, 30, 0, 0, time.UTC))

	r := newTestReconciler(t, s, Options{Location: loc})
	_, err := r.Reconcile(context.Background(), time.Date(2024, time.April, 2, 12, 0, 0, 0, loc))
	require.NoError(t, err)

	e, err := s.FindEntry(context.Background(), "u1", march)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(-700), e.Saving.Cents)
}

func TestConcurrentInsertCountsAsSkip(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 10})

	// Another invocation writes and applies the entry between our check and insert.
	s.SetHook(memory.OpInsertEntry, func(userID string) error {
		s.PutEntry(core.LedgerEntry{UserID: userID, Month: march, Saving: core.Cents(1000), CreatedAt: aprilNow, Applied: true})
		return nil
	})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Processed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, StatusSuccess, sum.Status())
	assert.Zero(t, totalOf(t, s, "u1"), "the other invocation owns the increment")
}

func TestOverlappingRunsApplyOnce(t *testing.T) {
	s := memory.New()
	for i := 0; i < 20; i++ {
		s.PutUser(core.UserRecord{ID: fmt.Sprintf("u%02d", i), MonthlySalary: 100})
	}
	r := newTestReconciler(t, s, Options{Workers: 8})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Reconcile(context.Background(), aprilNow)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("u%02d", i)
		assert.Equal(t, int64(10000), totalOf(t, s, id), "user %s", id)
		_, n := ledgerSum(t, s, id)
		assert.Equal(t, 1, n)
	}
}

func TestCrashBetweenInsertAndIncrementIsRepaired(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 500})
	s.PutUser(core.UserRecord{ID: "u2", MonthlySalary: 700})

	unavailable := fmt.Errorf("%w: connection reset", core.ErrStoreUnavailable)
	s.SetHook(memory.OpIncrement, func(userID string) error {
		if userID == "u1" {
			return unavailable
		}
		return nil
	})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err, "one unavailable user does not fail the batch")
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, ReasonUnavailable, sum.Failures[0].Reason)
	assert.Zero(t, totalOf(t, s, "u1"))

	pending, err := s.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "u1/2024-03", pending[0].Key())

	s.SetHook(memory.OpIncrement, nil)
	sum, err = r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Repaired)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, StatusSuccess, sum.Status())

	assert.Equal(t, int64(50000), totalOf(t, s, "u1"))
	assert.Equal(t, int64(70000), totalOf(t, s, "u2"))
	ledger, _ := ledgerSum(t, s, "u1")
	assert.Equal(t, ledger, totalOf(t, s, "u1"))
}

func TestRepairSweepCoversEarlierMonths(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 100})
	s.PutEntry(core.LedgerEntry{UserID: "u1", Month: february, Saving: core.Cents(4200), CreatedAt: aprilNow.AddDate(0, -1, 0)})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Repaired)
	assert.Equal(t, 1, sum.Processed)

	assert.Equal(t, int64(4200+10000), totalOf(t, s, "u1"))
	ledger, n := ledgerSum(t, s, "u1")
	assert.Equal(t, 2, n)
	assert.Equal(t, ledger, totalOf(t, s, "u1"))
}

func TestFailedRepairIsNotReportedAsSuccess(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 100})
	// The owner of this entry no longer exists, so it can never be applied.
	s.PutEntry(core.LedgerEntry{UserID: "gone", Month: february, Saving: core.Cents(700), CreatedAt: aprilNow.AddDate(0, -1, 0)})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 1, sum.RepairFailed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, ReasonRepair, sum.Failures[0].Reason)
	assert.Equal(t, "gone", sum.Failures[0].UserID)
	assert.Equal(t, StatusPartial, sum.Status())

	pending, err := s.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "gone", pending[0].UserID)
}

func TestOnlyFailedRepairsFailRun(t *testing.T) {
	s := memory.New()
	s.PutEntry(core.LedgerEntry{UserID: "gone", Month: february, Saving: core.Cents(700), CreatedAt: aprilNow.AddDate(0, -1, 0)})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RepairFailed)
	assert.Equal(t, StatusFailed, sum.Status())
}

func TestPendingEntryOfTargetMonthIsAppliedNotRecomputed(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 100})
	// Saving differs from what the policy would compute now.
	s.PutEntry(core.LedgerEntry{UserID: "u1", Month: march, Saving: core.Cents(333), CreatedAt: aprilNow})
	s.SetHook(memory.OpListPending, func(string) error { return errors.New("sweep unavailable") })

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Repaired)
	assert.Equal(t, 0, sum.Processed)
	assert.Equal(t, int64(333), totalOf(t, s, "u1"))
}

func TestMarkAppliedFailureDoesNotDoubleCount(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 100})
	s.SetHook(memory.OpMarkApplied, func(string) error { return errors.New("write conflict") })

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, ReasonStore, sum.Failures[0].Reason)

	s.SetHook(memory.OpMarkApplied, nil)
	_, err = r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), totalOf(t, s, "u1"))
}

func TestListUsersFailureFailsBatch(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1"})
	s.SetHook(memory.OpListUsers, func(string) error { return errors.New("dial tcp: connection refused") })

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.True(t, sum.Aborted)
	assert.Equal(t, StatusFailed, sum.Status())
	assert.Equal(t, "2024-03", sum.Month)
}

func TestAllUsersUnavailableFailsBatch(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1"})
	s.PutUser(core.UserRecord{ID: "u2"})
	s.SetHook(memory.OpFindEntry, func(string) error {
		return fmt.Errorf("find: %w", core.ErrStoreUnavailable)
	})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, StatusFailed, sum.Status())
}

func TestMalformedRecordsDoNotFailBatch(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: -5})
	s.PutUser(core.UserRecord{ID: "u2", SavingGoal: "lots"})

	r := newTestReconciler(t, s, Options{})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, StatusFailed, sum.Status())
	for _, f := range sum.Failures {
		assert.Equal(t, ReasonMalformed, f.Reason)
	}
}

func TestCancellationKeepsProcessedUsers(t *testing.T) {
	s := memory.New()
	for i := 1; i <= 5; i++ {
		s.PutUser(core.UserRecord{ID: fmt.Sprintf("u%d", i), MonthlySalary: 100})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.SetHook(memory.OpFindEntry, func(userID string) error {
		if userID == "u2" {
			cancel()
		}
		return nil
	})

	r := newTestReconciler(t, s, Options{Workers: 1})
	sum, err := r.Reconcile(ctx, aprilNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Cancelled)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, StatusPartial, sum.Status())
	assert.Equal(t, int64(10000), totalOf(t, s, "u1"))

	for _, id := range []string{"u3", "u4", "u5"} {
		e, err := s.FindEntry(context.Background(), id, march)
		require.NoError(t, err)
		assert.Nil(t, e, "user %s must not be touched", id)
	}

	s.SetHook(memory.OpFindEntry, nil)
	sum, err = r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Processed)
	assert.Equal(t, 1, sum.Skipped)
	for i := 1; i <= 5; i++ {
		assert.Equal(t, int64(10000), totalOf(t, s, fmt.Sprintf("u%d", i)))
	}
}

func TestCancellationBeforeListingUsersIsNotAnOutage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *memory.Store, cancel context.CancelFunc)
	}{
		{
			name:  "cancelled before the run",
			setup: func(_ *memory.Store, cancel context.CancelFunc) { cancel() },
		},
		{
			name: "cancelled while listing users",
			setup: func(s *memory.Store, cancel context.CancelFunc) {
				s.SetHook(memory.OpListUsers, func(string) error {
					cancel()
					return context.Canceled
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 100})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.setup(s, cancel)

			r := newTestReconciler(t, s, Options{})
			sum, err := r.Reconcile(ctx, aprilNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, core.ErrStoreUnavailable)
			assert.True(t, sum.Cancelled)
			assert.False(t, sum.Aborted)
			assert.Equal(t, 0, sum.Processed)
			assert.Equal(t, int64(0), totalOf(t, s, "u1"))
		})
	}
}

func TestBalancePolicyReconcile(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 3000, Balance: "812.40"})
	s.PutUser(core.UserRecord{ID: "u2", MonthlySalary: 3000})
	start, _ := march.Range(time.UTC)
	addExpense(t, s, "u1", 100000, start)

	r := newTestReconciler(t, s, Options{Policy: BalancePolicy{}})
	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err)
	assert.Equal(t, PolicyBalance, sum.Policy)
	assert.Equal(t, 2, sum.Processed)

	assert.Equal(t, int64(81240), totalOf(t, s, "u1"))
	assert.Zero(t, totalOf(t, s, "u2"))
}

type recordingPublisher struct {
	mu        sync.Mutex
	recorded  []core.LedgerEntry
	summaries []Summary
	err       error
}

func (p *recordingPublisher) SavingRecorded(_ context.Context, _ string, e core.LedgerEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, e)
	return p.err
}

func (p *recordingPublisher) ReconciliationCompleted(_ context.Context, s Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
	return p.err
}

func TestEventsArePublished(t *testing.T) {
	s := seedScenario(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	r := newTestReconciler(t, s, Options{Publisher: pub})

	sum, err := r.Reconcile(context.Background(), aprilNow)
	require.NoError(t, err, "publish failures never fail the run")
	assert.Equal(t, StatusPartial, sum.Status())

	assert.Len(t, pub.recorded, 2)
	for _, e := range pub.recorded {
		assert.True(t, e.Applied)
		assert.Equal(t, march, e.Month)
	}
	require.Len(t, pub.summaries, 1)
	assert.Equal(t, sum.RunID, pub.summaries[0].RunID)
}

func TestRunMonthlyReconciliationUsesClock(t *testing.T) {
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 1})
	r := newTestReconciler(t, s, Options{
		Clock: func() time.Time { return time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC) },
	})

	sum, err := r.RunMonthlyReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-12", sum.Month)
	assert.Equal(t, 1, sum.Processed)
}

func TestNewReconcilerValidation(t *testing.T) {
	_, err := NewReconciler(nil, nil, nil, Options{})
	assert.Error(t, err)

	s := memory.New()
	_, err = NewReconciler(s, nil, s, Options{})
	assert.Error(t, err, "default policy needs an expense store")

	r, err := NewReconciler(s, nil, s, Options{Policy: BalancePolicy{}})
	require.NoError(t, err)
	assert.Equal(t, PolicyBalance, r.Policy().Name())
}
