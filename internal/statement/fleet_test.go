package statement

import (
	"context"
	"errors"
	"testing"

	"flota/internal/core"
)

type fakeVehicles struct {
	vs  []core.Vehicle
	err error
}

func (f *fakeVehicles) ListVehicles(ctx context.Context, businessID int64) ([]core.Vehicle, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Vehicle
	for _, v := range f.vs {
		if v.BusinessID == businessID {
			out = append(out, v)
		}
	}
	return out, nil
}

func TestFleetStatements(t *testing.T) {
	rows := []core.Transaction{
		{ID: 1, BusinessID: 1, VehicleID: ptr(2), Type: core.Income, Amount: core.Money{Cents: 60000},
			Date: core.NewDate(2024, 3, 5), State: core.StatePaid, Category: "fares"},
		{ID: 2, BusinessID: 1, VehicleID: ptr(1), Type: core.Income, Amount: core.Money{Cents: 40000},
			Date: core.NewDate(2024, 3, 6), State: core.StatePaid, Category: "fares"},
		{ID: 3, BusinessID: 1, Type: core.Expense, Amount: core.Money{Cents: 10000},
			Date: core.NewDate(2024, 3, 7), State: core.StatePaid, Category: "insurance"},
	}
	vehicles := &fakeVehicles{vs: []core.Vehicle{
		{ID: 2, BusinessID: 1, Plate: "AB123CD", Active: true},
		{ID: 1, BusinessID: 1, Plate: "EF456GH", Active: true},
		{ID: 3, BusinessID: 1, Plate: "ZZ999ZZ", Active: false},
	}}
	agg := NewAggregator(&fakeTxQuery{rows: rows}, &fakeBoxes{}, nil)

	ov, err := agg.FleetStatements(context.Background(), vehicles, 1, march())
	if err != nil {
		t.Fatalf("FleetStatements() error = %v", err)
	}

	if ov.Business.IncomeTotal.Cents != 100000 {
		t.Errorf("business income = %d, want 100000", ov.Business.IncomeTotal.Cents)
	}
	if ov.Business.ExpenseTotal.Cents != 10000 {
		t.Errorf("business expense = %d, want 10000", ov.Business.ExpenseTotal.Cents)
	}

	if len(ov.ByVehicle) != 2 {
		t.Fatalf("ByVehicle has %d entries, want 2 (inactive excluded)", len(ov.ByVehicle))
	}
	if ov.ByVehicle[0].Vehicle.ID != 1 || ov.ByVehicle[1].Vehicle.ID != 2 {
		t.Errorf("ByVehicle order = %d, %d, want 1, 2", ov.ByVehicle[0].Vehicle.ID, ov.ByVehicle[1].Vehicle.ID)
	}
	if ov.ByVehicle[0].Statement.IncomeTotal.Cents != 40000 {
		t.Errorf("vehicle 1 income = %d, want 40000", ov.ByVehicle[0].Statement.IncomeTotal.Cents)
	}
	if ov.ByVehicle[1].Statement.IncomeTotal.Cents != 60000 {
		t.Errorf("vehicle 2 income = %d, want 60000", ov.ByVehicle[1].Statement.IncomeTotal.Cents)
	}
}

func TestFleetStatementsQueryError(t *testing.T) {
	boom := errors.New("boom")
	vehicles := &fakeVehicles{vs: []core.Vehicle{{ID: 1, BusinessID: 1, Active: true}}}
	agg := NewAggregator(&fakeTxQuery{err: boom}, &fakeBoxes{}, nil)

	if _, err := agg.FleetStatements(context.Background(), vehicles, 1, march()); !errors.Is(err, boom) {
		t.Errorf("FleetStatements() error = %v, want the query error", err)
	}
}

func TestFleetStatementsListError(t *testing.T) {
	boom := errors.New("db down")
	agg := NewAggregator(&fakeTxQuery{}, &fakeBoxes{}, nil)

	if _, err := agg.FleetStatements(context.Background(), &fakeVehicles{err: boom}, 1, march()); !errors.Is(err, boom) {
		t.Errorf("FleetStatements() error = %v, want the list error", err)
	}
}
