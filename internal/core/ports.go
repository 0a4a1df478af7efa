package core

import (
	"context"
	"time"
)

// Ports consumed by the engine. The SQLite repository implements all of them;
// tests substitute in-memory fakes.

// TransactionFilter narrows a transaction query. Nil pointer fields mean
// "don't care". HasBox filters on the presence of an operating box reference
// independently of BoxID.
type TransactionFilter struct {
	BusinessID *int64
	VehicleID  *int64
	BoxID      *int64
	HasBox     *bool
	Type       *TransactionType
	State      *TransactionState
	Category   *string
	Range      *DateRange
}

// TransactionQuery reads transactions for aggregation. Implementations must
// return each statement's rows from a single consistent snapshot.
type TransactionQuery interface {
	FindTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
}

// BoxReader reads operating boxes outside a unit of work.
type BoxReader interface {
	GetBox(ctx context.Context, id int64) (OperatingBox, error)
}

// VehicleReader lists a business's vehicles for fleet-wide statements.
type VehicleReader interface {
	ListVehicles(ctx context.Context, businessID int64) ([]Vehicle, error)
}

// UnitOfWork is the transactional surface handed to ledger and settlement
// operations. Everything done through one UnitOfWork commits or rolls back
// together.
type UnitOfWork interface {
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	SetTransactionState(ctx context.Context, id int64, s TransactionState) error
	GetBox(ctx context.Context, id int64) (OperatingBox, error)
	// CompareAndSwapBalance writes the new balance only if the stored value
	// still equals expected; otherwise it returns ErrConcurrentUpdate.
	CompareAndSwapBalance(ctx context.Context, id int64, expected, updated Money) error
	AppendHistory(ctx context.Context, e HistoryEntry) error
}

// UnitOfWorkRunner opens a unit of work, runs fn, and commits if fn returned
// nil or rolls back otherwise.
type UnitOfWorkRunner interface {
	InTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// Clock supplies timestamps for history entries; fixed in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
