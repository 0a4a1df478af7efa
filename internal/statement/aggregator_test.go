package statement

import (
	"context"
	"errors"
	"math"
	"testing"

	"flota/internal/core"
)

func ptr(v int64) *int64 { return &v }

// fakeTxQuery filters an in-memory transaction slice the way the repository
// would.
type fakeTxQuery struct {
	rows []core.Transaction
	err  error
}

func (f *fakeTxQuery) FindTransactions(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Transaction
	for _, tx := range f.rows {
		if filter.BusinessID != nil && tx.BusinessID != *filter.BusinessID {
			continue
		}
		if filter.VehicleID != nil && (tx.VehicleID == nil || *tx.VehicleID != *filter.VehicleID) {
			continue
		}
		if filter.BoxID != nil && (tx.OperatingBoxID == nil || *tx.OperatingBoxID != *filter.BoxID) {
			continue
		}
		if filter.HasBox != nil && (tx.OperatingBoxID != nil) != *filter.HasBox {
			continue
		}
		if filter.Type != nil && tx.Type != *filter.Type {
			continue
		}
		if filter.State != nil && tx.State != *filter.State {
			continue
		}
		if filter.Category != nil && tx.Category != *filter.Category {
			continue
		}
		if filter.Range != nil && !filter.Range.Contains(tx.Date) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

type fakeBoxes struct {
	boxes map[int64]core.OperatingBox
}

func (f *fakeBoxes) GetBox(ctx context.Context, id int64) (core.OperatingBox, error) {
	b, ok := f.boxes[id]
	if !ok {
		return core.OperatingBox{}, core.ErrNotFound
	}
	return b, nil
}

func march() core.DateRange {
	r, _ := core.NewDateRange(core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 31))
	return r
}

// mixedMonth is the canonical aggregation scenario: a plain fare, a box
// recharge, a box-funded expense and a plain expense.
func mixedMonth() []core.Transaction {
	return []core.Transaction{
		{ID: 1, BusinessID: 1, Type: core.Income, Amount: core.Money{Cents: 100000},
			Date: core.NewDate(2024, 3, 5), State: core.StatePaid, Category: "fares"},
		{ID: 2, BusinessID: 1, OperatingBoxID: ptr(10), Type: core.Income, Amount: core.Money{Cents: 50000},
			Date: core.NewDate(2024, 3, 8), State: core.StatePaid, Category: "recharges"},
		{ID: 3, BusinessID: 1, OperatingBoxID: ptr(10), Type: core.Expense, Amount: core.Money{Cents: 30000},
			Date: core.NewDate(2024, 3, 12), State: core.StatePaid, Category: "fuel"},
		{ID: 4, BusinessID: 1, Type: core.Expense, Amount: core.Money{Cents: 20000},
			Date: core.NewDate(2024, 3, 20), State: core.StateRefund, Category: "damages"},
	}
}

func TestScopeStatement(t *testing.T) {
	agg := NewAggregator(&fakeTxQuery{rows: mixedMonth()}, &fakeBoxes{}, nil)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}

	// The box recharge is an internal transfer: no income, but its paired
	// expense still counts.
	if st.IncomeTotal.Cents != 100000 {
		t.Errorf("IncomeTotal = %d, want 100000", st.IncomeTotal.Cents)
	}
	if st.ExpenseTotal.Cents != 50000 {
		t.Errorf("ExpenseTotal = %d, want 50000", st.ExpenseTotal.Cents)
	}
	if st.GrossMargin.Cents != 50000 {
		t.Errorf("GrossMargin = %d, want 50000", st.GrossMargin.Cents)
	}
	if st.MarginBeforeTaxes.Cents != 50000 {
		t.Errorf("MarginBeforeTaxes = %d, want 50000 under the gross policy", st.MarginBeforeTaxes.Cents)
	}
	if st.ProfitabilityPct != 50.0 {
		t.Errorf("ProfitabilityPct = %v, want 50", st.ProfitabilityPct)
	}
}

func TestScopeStatementGroupsSumToTotals(t *testing.T) {
	agg := NewAggregator(&fakeTxQuery{rows: mixedMonth()}, &fakeBoxes{}, nil)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}

	for _, groups := range map[string][]Group{"ByState": st.ByState, "ByCategory": st.ByCategory} {
		var income, expense int64
		var share float64
		for _, g := range groups {
			income += g.Income.Cents
			expense += g.Expense.Cents
			share += g.SharePct
			if g.Balance.Cents != g.Income.Cents-g.Expense.Cents {
				t.Errorf("group %q balance = %d, want income-expense", g.Key, g.Balance.Cents)
			}
		}
		if income != st.IncomeTotal.Cents {
			t.Errorf("group incomes sum to %d, headline is %d", income, st.IncomeTotal.Cents)
		}
		if expense != st.ExpenseTotal.Cents {
			t.Errorf("group expenses sum to %d, headline is %d", expense, st.ExpenseTotal.Cents)
		}
		if math.Abs(share-100.0) > 0.05 {
			t.Errorf("shares sum to %v, want ~100", share)
		}
	}
}

func TestScopeStatementGroupOrdering(t *testing.T) {
	// Same activity for "fuel" and "tolls"; the tie breaks on the key.
	rows := []core.Transaction{
		{ID: 1, BusinessID: 1, Type: core.Expense, Amount: core.Money{Cents: 5000},
			Date: core.NewDate(2024, 3, 1), State: core.StatePaid, Category: "tolls"},
		{ID: 2, BusinessID: 1, Type: core.Expense, Amount: core.Money{Cents: 5000},
			Date: core.NewDate(2024, 3, 2), State: core.StatePaid, Category: "fuel"},
		{ID: 3, BusinessID: 1, Type: core.Income, Amount: core.Money{Cents: 90000},
			Date: core.NewDate(2024, 3, 3), State: core.StatePaid, Category: "fares"},
	}
	agg := NewAggregator(&fakeTxQuery{rows: rows}, &fakeBoxes{}, nil)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}

	want := []string{"fares", "fuel", "tolls"}
	if len(st.ByCategory) != len(want) {
		t.Fatalf("ByCategory has %d groups, want %d", len(st.ByCategory), len(want))
	}
	for i, key := range want {
		if st.ByCategory[i].Key != key {
			t.Errorf("ByCategory[%d] = %q, want %q", i, st.ByCategory[i].Key, key)
		}
	}
}

func TestScopeStatementEmptyPeriod(t *testing.T) {
	agg := NewAggregator(&fakeTxQuery{}, &fakeBoxes{}, nil)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}
	if st.IncomeTotal.Cents != 0 || st.ExpenseTotal.Cents != 0 || st.GrossMargin.Cents != 0 {
		t.Errorf("empty period totals = %+v, want zeros", st)
	}
	if st.ProfitabilityPct != 0 {
		t.Errorf("ProfitabilityPct = %v, want 0 on zero income", st.ProfitabilityPct)
	}
	if len(st.ByState) != 0 || len(st.ByCategory) != 0 {
		t.Error("empty period should produce no groups")
	}
}

func TestScopeStatementVehicleScope(t *testing.T) {
	rows := append(mixedMonth(), core.Transaction{
		ID: 5, BusinessID: 1, VehicleID: ptr(7), Type: core.Income, Amount: core.Money{Cents: 40000},
		Date: core.NewDate(2024, 3, 15), State: core.StatePaid, Category: "fares",
	})
	agg := NewAggregator(&fakeTxQuery{rows: rows}, &fakeBoxes{}, nil)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1, VehicleID: ptr(7)}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}
	if st.IncomeTotal.Cents != 40000 {
		t.Errorf("vehicle IncomeTotal = %d, want 40000", st.IncomeTotal.Cents)
	}
	if st.ExpenseTotal.Cents != 0 {
		t.Errorf("vehicle ExpenseTotal = %d, want 0", st.ExpenseTotal.Cents)
	}
}

func TestScopeStatementPeriodFilter(t *testing.T) {
	rows := append(mixedMonth(), core.Transaction{
		ID: 6, BusinessID: 1, Type: core.Income, Amount: core.Money{Cents: 77777},
		Date: core.NewDate(2024, 4, 1), State: core.StatePaid, Category: "fares",
	})
	agg := NewAggregator(&fakeTxQuery{rows: rows}, &fakeBoxes{}, nil)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}
	if st.IncomeTotal.Cents != 100000 {
		t.Errorf("IncomeTotal = %d, want 100000 (April row excluded)", st.IncomeTotal.Cents)
	}
}

func TestScopeStatementInvalidPeriod(t *testing.T) {
	agg := NewAggregator(&fakeTxQuery{}, &fakeBoxes{}, nil)

	bad := core.DateRange{From: core.NewDate(2024, 3, 31), To: core.NewDate(2024, 3, 1)}
	if _, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, bad); !errors.Is(err, core.ErrInvalidDateRange) {
		t.Errorf("ScopeStatement() error = %v, want ErrInvalidDateRange", err)
	}
}

func TestScopeStatementTaxAdjustedMargin(t *testing.T) {
	margin := core.TaxAdjustedMarginPolicy{TaxRatePct: 10, FixedCost: core.Money{Cents: 5000}}
	agg := NewAggregator(&fakeTxQuery{rows: mixedMonth()}, &fakeBoxes{}, margin)

	st, err := agg.ScopeStatement(context.Background(), core.Scope{BusinessID: 1}, march())
	if err != nil {
		t.Fatalf("ScopeStatement() error = %v", err)
	}
	// gross 50000 - 10% of 100000 - 5000 fixed
	if st.MarginBeforeTaxes.Cents != 35000 {
		t.Errorf("MarginBeforeTaxes = %d, want 35000", st.MarginBeforeTaxes.Cents)
	}
	if st.GrossMargin.Cents != 50000 {
		t.Errorf("GrossMargin = %d, want 50000 regardless of policy", st.GrossMargin.Cents)
	}
}

func TestBoxDetail(t *testing.T) {
	boxes := &fakeBoxes{boxes: map[int64]core.OperatingBox{
		10: {ID: 10, BusinessID: 1, Name: "fuel float", Balance: core.Money{Cents: 20000}, Active: true},
	}}
	agg := NewAggregator(&fakeTxQuery{rows: mixedMonth()}, boxes, nil)

	d, err := agg.BoxDetail(context.Background(), 10, march())
	if err != nil {
		t.Fatalf("BoxDetail() error = %v", err)
	}

	if d.BoxName != "fuel float" {
		t.Errorf("BoxName = %q", d.BoxName)
	}
	// The recharge the global rule excludes still counts inside the box.
	if d.Recharges.Cents != 50000 || d.RechargeCount != 1 {
		t.Errorf("Recharges = %d (%d), want 50000 (1)", d.Recharges.Cents, d.RechargeCount)
	}
	if d.Withdrawals.Cents != 30000 || d.WithdrawalCount != 1 {
		t.Errorf("Withdrawals = %d (%d), want 30000 (1)", d.Withdrawals.Cents, d.WithdrawalCount)
	}
	if d.Net.Cents != 20000 {
		t.Errorf("Net = %d, want 20000", d.Net.Cents)
	}
	if d.AvgRecharge.Cents != 50000 || d.AvgWithdrawal.Cents != 30000 {
		t.Errorf("averages = %d / %d", d.AvgRecharge.Cents, d.AvgWithdrawal.Cents)
	}
	if d.RetentionPct != 40.0 {
		t.Errorf("RetentionPct = %v, want 40", d.RetentionPct)
	}
	if d.StoredBalance.Cents != 20000 || d.Diff.Cents != 0 {
		t.Errorf("StoredBalance = %d, Diff = %d, want 20000 and 0", d.StoredBalance.Cents, d.Diff.Cents)
	}
}

func TestBoxDetailZeroActivity(t *testing.T) {
	boxes := &fakeBoxes{boxes: map[int64]core.OperatingBox{
		10: {ID: 10, BusinessID: 1, Name: "idle float", Balance: core.Money{Cents: 500}, Active: true},
	}}
	agg := NewAggregator(&fakeTxQuery{}, boxes, nil)

	d, err := agg.BoxDetail(context.Background(), 10, march())
	if err != nil {
		t.Fatalf("BoxDetail() error = %v", err)
	}
	if d.AvgRecharge.Cents != 0 || d.AvgWithdrawal.Cents != 0 || d.RetentionPct != 0 {
		t.Errorf("zero-activity detail should not divide: %+v", d)
	}
	if d.Diff.Cents != 500 {
		t.Errorf("Diff = %d, want the full stored balance", d.Diff.Cents)
	}
}

func TestBoxDetailMissingBox(t *testing.T) {
	agg := NewAggregator(&fakeTxQuery{}, &fakeBoxes{}, nil)

	if _, err := agg.BoxDetail(context.Background(), 99, march()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("BoxDetail() error = %v, want ErrNotFound", err)
	}
}
