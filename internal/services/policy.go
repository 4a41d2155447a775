// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for the monthly saving amount.
// Each policy encapsulates one way of deriving a user's saving for a month;
// a reconciler runs with exactly one of them.

package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"savings/internal/core"
	"savings/internal/store"
)

const (
	PolicyExpenses = "expenses"
	PolicyBalance  = "balance"
)

// Policy is the strategy interface for computing a user's saving for a month.
type Policy interface {
	// Name returns the configuration name of the policy.
	Name() string

	// Saving returns the amount to record for user in the month covering
	// [start, end). The result may be negative.
	Saving(ctx context.Context, user core.User, start, end time.Time) (core.Money, error)
}

// ExpensePolicy saves the monthly salary minus the expenses dated in the month.
// A user without a salary saves the negative of their expenses.
type ExpensePolicy struct {
	Expenses store.ExpenseStore
}

func (ExpensePolicy) Name() string { return PolicyExpenses }

// Saving sums the user's expenses in [start, end) and subtracts them from the salary.
func (p ExpensePolicy) Saving(ctx context.Context, user core.User, start, end time.Time) (core.Money, error) {
	spent, err := p.Expenses.SumAmounts(ctx, user.ID, start, end)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return user.MonthlySalary.Sub(spent), nil
}

// BalancePolicy saves the user's stored balance at reconciliation time,
// whatever month is being closed. A missing balance saves zero.
type BalancePolicy struct{}

func (BalancePolicy) Name() string { return PolicyBalance }

func (BalancePolicy) Saving(_ context.Context, user core.User, _, _ time.Time) (core.Money, error) {
	return user.Balance, nil
}

// policyFactories maps configuration names to policy constructors.
var policyFactories = map[string]func(store.ExpenseStore) Policy{
	PolicyExpenses: func(s store.ExpenseStore) Policy { return ExpensePolicy{Expenses: s} },
	PolicyBalance:  func(store.ExpenseStore) Policy { return BalancePolicy{} },
}

// GetPolicy returns the policy registered under name.
// Returns an error if the name is not supported.
func GetPolicy(name string, expenses store.ExpenseStore) (Policy, error) {
	factory, ok := policyFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown saving policy: %q", name)
	}
	if name == PolicyExpenses && expenses == nil {
		return nil, fmt.Errorf("saving policy %q needs an expense store", name)
	}
	return factory(expenses), nil
}

// PolicyNames lists the registered policy names in sorted order.
func PolicyNames() []string {
	names := make([]string, 0, len(policyFactories))
	for name := range policyFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
