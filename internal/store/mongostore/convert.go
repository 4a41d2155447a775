package mongostore

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"savings/internal/core"
)

// savingDoc is a document of the savings collection.
type savingDoc struct {
	UserID    any       `bson:"userId"`
	Month     string    `bson:"month"`
	Saving    any       `bson:"saving"`
	CreatedAt time.Time `bson:"createdAt"`
	Applied   *bool     `bson:"applied,omitempty"`
}

func (d savingDoc) entry() (core.LedgerEntry, error) {
	month, err := core.ParseMonth(d.Month)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("saving document: %w", err)
	}
	saving, _, err := core.ParseAmount(rawValue(d.Saving))
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("saving document %s: %w", month, err)
	}
	return core.LedgerEntry{
		UserID:    idString(d.UserID),
		Month:     month,
		Saving:    saving,
		CreatedAt: d.CreatedAt,
		Applied:   d.Applied == nil || *d.Applied,
	}, nil
}

func toUserRecord(doc bson.M) core.UserRecord {
	r := core.UserRecord{
		ID:            idString(doc["_id"]),
		MonthlySalary: rawValue(doc["monthlySalary"]),
		SavingGoal:    rawValue(doc["savingGoal"]),
		Balance:       rawValue(doc["balance"]),
	}
	// A corrupt running total reads as zero; the reconciler only ever adds to it.
	if total, _, err := core.ParseAmount(rawValue(doc["totalSavings"])); err == nil {
		r.TotalSavings = total
	}
	return r
}

// userKey returns the stored form of a user id: an ObjectID when id is a
// 24-character hex string, the string itself otherwise.
func userKey(id string) any {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idString(v any) string {
	switch id := v.(type) {
	case bson.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// rawValue maps BSON-specific scalars to values core.ParseAmount understands.
// Anything else passes through unchanged and is rejected there.
func rawValue(v any) any {
	switch x := v.(type) {
	case bson.Decimal128:
		return x.String()
	case bson.Null, bson.Undefined:
		return nil
	default:
		return v
	}
}

func decimal128(m core.Money) bson.Decimal128 {
	d, err := bson.ParseDecimal128(m.String())
	if err != nil {
		// m.String() always yields a plain fixed-point number.
		panic(fmt.Sprintf("mongostore: decimal128 %q: %v", m.String(), err))
	}
	return d
}
