// Package mongostore implements the store ports on MongoDB. It reads the
// legacy users, expenses and savings collections with their camelCase fields.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"savings/internal/core"
	"savings/internal/store"
)

var (
	UsersCollection    = "users"
	ExpensesCollection = "expenses"
	SavingsCollection  = "savings"
)

type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	expenses *mongo.Collection
	savings  *mongo.Collection
}

var (
	_ store.UserStore    = (*Store)(nil)
	_ store.ExpenseStore = (*Store)(nil)
	_ store.LedgerStore  = (*Store)(nil)
	_ store.Pinger       = (*Store)(nil)
)

// Connect opens a client against uri and returns a store on database dbName.
// The returned store owns the client; call Close to disconnect.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri not set")
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	s := New(client.Database(dbName))
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("Connected to MongoDB", "database", dbName)
	return s, nil
}

func New(db *mongo.Database) *Store {
	return &Store{
		client:   db.Client(),
		users:    db.Collection(UsersCollection),
		expenses: db.Collection(ExpensesCollection),
		savings:  db.Collection(SavingsCollection),
	}
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}
	return nil
}

// EnsureIndexes creates the unique (userId, month) ledger index and the
// expense lookup index. It is safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.savings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "month", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("userId_month_unique"),
	})
	if err != nil {
		return fmt.Errorf("create savings index: %w", classify(err))
	}
	_, err = s.expenses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create expenses index: %w", classify(err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping MongoDB: %w", classify(err))
	}
	return nil
}

// InsertUser writes a user document. Used for seeding.
func (s *Store) InsertUser(ctx context.Context, u core.UserRecord) error {
	doc := bson.M{"_id": userKey(u.ID), "totalSavings": decimal128(u.TotalSavings)}
	for field, v := range map[string]any{"monthlySalary": u.MonthlySalary, "savingGoal": u.SavingGoal, "balance": u.Balance} {
		if v != nil {
			doc[field] = v
		}
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, classify(err))
	}
	return nil
}

// AddExpense writes an expense document. Used for seeding.
func (s *Store) AddExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.expenses.InsertOne(ctx, bson.M{
		"userId":   userKey(e.UserID),
		"amount":   decimal128(e.Amount),
		"category": e.Category,
		"note":     e.Note,
		"date":     e.Date,
	})
	if err != nil {
		return fmt.Errorf("insert expense: %w", classify(err))
	}
	return nil
}

// ListUsers implements store.UserStore
func (s *Store) ListUsers(ctx context.Context) ([]core.UserRecord, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", classify(err))
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", classify(err))
	}

	users := make([]core.UserRecord, 0, len(docs))
	for _, doc := range docs {
		users = append(users, toUserRecord(doc))
	}
	return users, nil
}

// GetUser implements store.UserStore
func (s *Store) GetUser(ctx context.Context, userID string) (core.UserRecord, error) {
	var doc bson.M
	err := s.users.FindOne(ctx, bson.M{"_id": userKey(userID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.UserRecord{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return core.UserRecord{}, fmt.Errorf("find user %s: %w", userID, classify(err))
	}
	return toUserRecord(doc), nil
}

// IncrementTotalSavings implements store.UserStore. The user document records
// every month already added in reconciledMonths, and the filter excludes it, so
// the $inc happens at most once per (user, month) even across processes.
func (s *Store) IncrementTotalSavings(ctx context.Context, userID string, month core.Month, delta core.Money) (bool, error) {
	entry, err := s.FindEntry(ctx, userID, month)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, fmt.Errorf("increment %s/%s: no ledger entry", userID, month)
	}

	filter := bson.M{"_id": userKey(userID), "reconciledMonths": bson.M{"$ne": month.String()}}
	update := bson.M{
		"$inc":      bson.M{"totalSavings": decimal128(delta)},
		"$addToSet": bson.M{"reconciledMonths": month.String()},
	}
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("increment total savings: %w", classify(err))
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userKey(userID)})
	if err != nil {
		return false, fmt.Errorf("count user: %w", classify(err))
	}
	if n == 0 {
		return false, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	return false, nil
}

// SumAmounts implements store.ExpenseStore
func (s *Store) SumAmounts(ctx context.Context, userID string, start, end time.Time) (core.Money, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"userId": userKey(userID),
			"date":   bson.M{"$gte": start, "$lt": end},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"totalSpent": bson.M{"$sum": bson.M{"$toDecimal": "$amount"}},
		}}},
	}

	cursor, err := s.expenses.Aggregate(ctx, pipeline)
	if err != nil {
		return core.Money{}, fmt.Errorf("aggregate expenses: %w", classify(err))
	}
	var rows []struct {
		TotalSpent any `bson:"totalSpent"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return core.Money{}, fmt.Errorf("decode expense sum: %w", classify(err))
	}
	if len(rows) == 0 {
		return core.Money{}, nil
	}

	total, _, err := core.ParseAmount(rawValue(rows[0].TotalSpent))
	if err != nil {
		return core.Money{}, fmt.Errorf("expense sum for %s: %w", userID, err)
	}
	return total, nil
}

// FindEntry implements store.LedgerStore
func (s *Store) FindEntry(ctx context.Context, userID string, month core.Month) (*core.LedgerEntry, error) {
	var doc savingDoc
	err := s.savings.FindOne(ctx, bson.M{"userId": userKey(userID), "month": month.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find saving: %w", classify(err))
	}
	e, err := doc.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertEntry implements store.LedgerStore
func (s *Store) InsertEntry(ctx context.Context, entry core.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.savings.InsertOne(ctx, bson.M{
		"userId":    userKey(entry.UserID),
		"month":     entry.Month.String(),
		"saving":    decimal128(entry.Saving),
		"createdAt": entry.CreatedAt,
		"applied":   false,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateEntry, entry.Key())
	}
	if err != nil {
		return fmt.Errorf("insert saving: %w", classify(err))
	}
	return nil
}

// MarkApplied implements store.LedgerStore
func (s *Store) MarkApplied(ctx context.Context, userID string, month core.Month) error {
	res, err := s.savings.UpdateOne(ctx,
		bson.M{"userId": userKey(userID), "month": month.String()},
		bson.M{"$set": bson.M{"applied": true}})
	if err != nil {
		return fmt.Errorf("mark applied: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mark applied %s/%s: no such entry", userID, month)
	}
	return nil
}

// ListPending implements store.LedgerStore. Documents written before the
// applied flag existed have no field and are treated as applied.
func (s *Store) ListPending(ctx context.Context) ([]core.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "month", Value: 1}, {Key: "userId", Value: 1}})
	return s.findEntries(ctx, bson.M{"applied": false}, opts)
}

// ListEntries implements store.LedgerStore
func (s *Store) ListEntries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "month", Value: 1}})
	return s.findEntries(ctx, bson.M{"userId": userKey(userID)}, opts)
}

func (s *Store) findEntries(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]core.LedgerEntry, error) {
	cursor, err := s.savings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find savings: %w", classify(err))
	}
	var docs []savingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode savings: %w", classify(err))
	}
	entries := make([]core.LedgerEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// classify tags network and timeout failures as core.ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return err
}
