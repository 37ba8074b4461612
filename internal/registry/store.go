package registry

import (
	"context"
	"slices"
)

// View is a read-only snapshot of the registry collections. Every returned
// entity is a copy; mutating it never affects the store.
type View interface {
	FindProject(id string) (Project, bool)
	ListProjects() []Project

	FindCredit(id string) (CarbonCredit, bool)
	FindCreditByToken(tokenID string) (CarbonCredit, bool)
	ListCredits() []CarbonCredit

	FindTransaction(id string) (Transaction, bool)
	ListTransactions() []Transaction

	ListSensorReadings() []SensorReading

	FindUser(id string) (User, bool)
	FindUserByUsername(username string) (User, bool)
	ListUsers() []User
}

// Tx is the mutable view handed to RunInTransaction callbacks. Create methods
// assign ids and defaults; Update methods apply a mutator to a copy and store
// it only if the result validates. Transactions and sensor readings are
// append-only and have no update.
type Tx interface {
	View

	CreateProject(p Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)

	CreateCredit(c CarbonCredit) (CarbonCredit, error)
	UpdateCredit(id string, mutator func(*CarbonCredit) error) (CarbonCredit, error)

	CreateTransaction(t Transaction) (Transaction, error)

	CreateSensorReading(s SensorReading) (SensorReading, error)

	CreateUser(u User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
}

// Store is the entity store contract. RunInTransaction commits the callback's
// writes only when it returns nil; a failed callback leaves the store as it was.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(v View) error) error
}

// Filter returns the elements that satisfy keep, preserving order
func Filter[T any](items []T, keep func(T) bool) []T {
	if keep == nil {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// SortTransactionsNewestFirst orders by createdAt descending; equal
// timestamps put the later insertion first. Input must be in insertion order.
func SortTransactionsNewestFirst(txs []Transaction) {
	slices.Reverse(txs)
	slices.SortStableFunc(txs, func(a, b Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// SortReadingsNewestFirst orders by timestamp descending with the same tie rule
func SortReadingsNewestFirst(readings []SensorReading) {
	slices.Reverse(readings)
	slices.SortStableFunc(readings, func(a, b SensorReading) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
