package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savings/internal/core"
	"savings/internal/log"
	"savings/internal/services"
	"savings/internal/store/memory"
	"savings/internal/worker"
)

var aprilNow = time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	s := memory.New()
	s.PutUser(core.UserRecord{ID: "u1", MonthlySalary: 3000})
	require.NoError(t, s.AddExpense(context.Background(), core.Expense{
		UserID:   "u1",
		Amount:   core.Cents(120000),
		Date:     time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
		Category: "rent",
	}))

	rec, err := services.NewReconciler(s, s, s, services.Options{
		Clock:  func() time.Time { return aprilNow },
		Logger: log.Discard(),
	})
	require.NoError(t, err)

	srv := NewServer(":0", Deps{
		Runner: worker.NewScheduler(rec, time.Hour, log.Discard()),
		Users:  s,
		Ledger: s,
		Pinger: s,
	}, log.Discard())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, s
}

func do(srv *Server, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return core.ErrStoreUnavailable }

func TestReadyReportsStoreDown(t *testing.T) {
	srv := NewServer(":0", Deps{Pinger: downPinger{}}, log.Discard())
	defer srv.Shutdown(context.Background())

	rr := do(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/reconcile/last")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(srv, http.MethodPost, "/reconcile")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "2024-03", body["month"])
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 1, body["processed"])

	// Second run of the same month changes nothing.
	rr = do(srv, http.MethodPost, "/reconcile")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["processed"])
	assert.EqualValues(t, 1, body["skipped"])

	rr = do(srv, http.MethodGet, "/reconcile/last")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(srv, http.MethodGet, "/reconcile")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestReconcileBatchFailureIs503(t *testing.T) {
	srv, s := newTestServer(t)
	s.SetHook(memory.OpListUsers, func(string) error { return errors.New("connection refused") })

	rr := do(srv, http.MethodPost, "/reconcile")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["status"])
}

type busyRunner struct{}

func (busyRunner) RunOnce(context.Context) (services.Summary, error) {
	return services.Summary{}, worker.ErrRunInProgress
}

func (busyRunner) LastSummary() (services.Summary, bool) { return services.Summary{}, false }

func TestReconcileInProgressIs409(t *testing.T) {
	srv := NewServer(":0", Deps{Runner: busyRunner{}}, log.Discard())
	defer srv.Shutdown(context.Background())

	rr := do(srv, http.MethodPost, "/reconcile")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestReconcileIsRateLimited(t *testing.T) {
	srv := NewServer(":0", Deps{Runner: busyRunner{}}, log.Discard())
	defer srv.Shutdown(context.Background())

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		codes[do(srv, http.MethodPost, "/reconcile").Code]++
	}
	assert.Equal(t, 6, codes[http.StatusConflict])
	assert.Equal(t, 4, codes[http.StatusTooManyRequests])
}

func TestUserSavings(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(srv, http.MethodPost, "/reconcile").Code)

	rr := do(srv, http.MethodGet, "/users/u1/savings")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body savingsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.UserID)
	assert.Equal(t, int64(180000), body.TotalSavingsCents)
	assert.Equal(t, "1800.00", body.TotalSavings)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "2024-03", body.Entries[0].Month)
	assert.True(t, body.Entries[0].Applied)

	rr = do(srv, http.MethodGet, "/users/missing/savings")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUserSavingsStoreUnavailable(t *testing.T) {
	srv, s := newTestServer(t)
	s.SetHook(memory.OpGetUser, func(string) error { return core.ErrStoreUnavailable })

	rr := do(srv, http.MethodGet, "/users/u1/savings")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
