//go:build integration

package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"savings/internal/core"
)

// Run with: MONGO_URI=mongodb://localhost:27017 go test -tags=integration ./internal/store/mongostore/
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("savings_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestIntegrationLedgerFlow(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	march := core.Month{Year: 2024, Month: time.March}
	start, end := march.Range(time.UTC)
	uid := bson.NewObjectID().Hex()

	require.NoError(t, s.InsertUser(ctx, core.UserRecord{ID: uid, MonthlySalary: 3000.0, TotalSavings: core.Cents(1000)}))
	require.NoError(t, s.AddExpense(ctx, core.Expense{UserID: uid, Amount: core.Cents(120050), Date: start, Category: "rent"}))
	require.NoError(t, s.AddExpense(ctx, core.Expense{UserID: uid, Amount: core.Cents(999), Date: end, Category: "food"}))

	spent, err := s.SumAmounts(ctx, uid, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(120050), spent.Cents)

	entry := core.LedgerEntry{UserID: uid, Month: march, Saving: core.Cents(179950), CreatedAt: time.Now()}
	require.NoError(t, s.InsertEntry(ctx, entry))
	assert.ErrorIs(t, s.InsertEntry(ctx, entry), core.ErrDuplicateEntry)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	applied, err := s.IncrementTotalSavings(ctx, uid, march, entry.Saving)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.IncrementTotalSavings(ctx, uid, march, entry.Saving)
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, s.MarkApplied(ctx, uid, march))

	u, err := s.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(180950), u.TotalSavings.Cents)

	entries, err := s.ListEntries(ctx, uid)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Applied)

	_, err = s.GetUser(ctx, bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}
