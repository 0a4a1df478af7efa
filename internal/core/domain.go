package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	StateRefund         TransactionState = "refund"
	StatePaid           TransactionState = "paid"
	StateReceivable     TransactionState = "receivable"
	StatePayable        TransactionState = "payable"
	StatePartialPayment TransactionState = "partial_payment"
)

const (
	Recharge   MovementType = "recharge"
	Withdrawal MovementType = "withdrawal"
)

type (
	TransactionType  string
	TransactionState string
	MovementType     string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// DateRange is a closed interval of calendar days.
	DateRange struct {
		From Date
		To   Date
	}

	// Scope selects the transactions a statement covers: a whole business,
	// or a single vehicle within it.
	Scope struct {
		BusinessID int64
		VehicleID  *int64
	}

	// Transaction is a single financial movement. Immutable after capture
	// except State, which only the settlement workflow may advance.
	Transaction struct {
		ID             int64
		BusinessID     int64
		VehicleID      *int64
		OperatingBoxID *int64
		Type           TransactionType
		Amount         Money
		Date           Date
		State          TransactionState
		Category       string
		Description    string
	}

	// OperatingBox is an internal cash sub-ledger. Its Balance is mutated
	// exclusively by the ledger, never directly.
	OperatingBox struct {
		ID         int64
		BusinessID int64
		Name       string
		Balance    Money
		Active     bool
	}

	// HistoryEntry is the append-only audit record written alongside every
	// balance mutation, in the same atomic unit.
	HistoryEntry struct {
		ID            string
		BoxID         int64
		Amount        Money
		Movement      MovementType
		TransactionID *int64
		BalanceBefore Money
		BalanceAfter  Money
		Description   string
		CreatedAt     time.Time
	}

	Business struct {
		ID   int64
		Name string
	}

	Vehicle struct {
		ID         int64
		BusinessID int64
		Plate      string
		Active     bool
	}
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (s TransactionState) Valid() bool {
	switch s {
	case StateRefund, StatePaid, StateReceivable, StatePayable, StatePartialPayment:
		return true
	}
	return false
}

func (m MovementType) Valid() bool {
	return m == Recharge || m == Withdrawal
}

// NewDate creates a new Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDateRange
	}
	return nil
}

func NewDateRange(from, to Date) (DateRange, error) {
	r := DateRange{From: from, To: to}
	return r, r.Validate()
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return ErrInvalidDateRange
	}
	if r.To.Before(r.From.Time) {
		return ErrInvalidDateRange
	}
	return nil
}

// Contains reports whether d falls inside the range, bounds included.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From.Time) && !d.After(r.To.Time)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Cents > 0 }

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (tx Transaction) Validate() error {
	if !tx.Type.Valid() {
		return errors.New("invalid transaction type: " + string(tx.Type))
	}
	if !tx.State.Valid() {
		return errors.New("invalid transaction state: " + string(tx.State))
	}
	if tx.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if err := tx.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(tx.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (b OperatingBox) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("empty operating box name")
	}
	return nil
}

// Matches reports whether the transaction belongs to the scope. A business
// scope covers every transaction of the business; a vehicle scope only those
// tied to that vehicle.
func (s Scope) Matches(tx Transaction) bool {
	if tx.BusinessID != s.BusinessID {
		return false
	}
	if s.VehicleID == nil {
		return true
	}
	return tx.VehicleID != nil && *tx.VehicleID == *s.VehicleID
}
