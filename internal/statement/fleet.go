package statement

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"flota/internal/core"
)

// VehicleStatement pairs a vehicle with its scoped statement.
type VehicleStatement struct {
	Vehicle   core.Vehicle
	Statement Statement
}

// FleetOverview is the business-level statement plus one statement per
// active vehicle.
type FleetOverview struct {
	Business  Statement
	ByVehicle []VehicleStatement
}

// FleetStatements computes the business statement and per-vehicle statements
// concurrently. Each statement remains a single query + pure fold, so each is
// internally consistent; vehicles are bounded, so one goroutine per vehicle.
func (a *Aggregator) FleetStatements(ctx context.Context, vehicles core.VehicleReader, businessID int64, period core.DateRange) (FleetOverview, error) {
	if err := period.Validate(); err != nil {
		return FleetOverview{}, err
	}

	vs, err := vehicles.ListVehicles(ctx, businessID)
	if err != nil {
		return FleetOverview{}, fmt.Errorf("list vehicles of business %d: %w", businessID, err)
	}
	active := vs[:0]
	for _, v := range vs {
		if v.Active {
			active = append(active, v)
		}
	}

	var overview FleetOverview
	overview.ByVehicle = make([]VehicleStatement, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := a.ScopeStatement(gctx, core.Scope{BusinessID: businessID}, period)
		if err != nil {
			return err
		}
		overview.Business = st
		return nil
	})
	for i, v := range active {
		g.Go(func() error {
			st, err := a.ScopeStatement(gctx, core.Scope{BusinessID: businessID, VehicleID: &v.ID}, period)
			if err != nil {
				return fmt.Errorf("vehicle %d statement: %w", v.ID, err)
			}
			overview.ByVehicle[i] = VehicleStatement{Vehicle: v, Statement: st}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FleetOverview{}, err
	}

	sort.Slice(overview.ByVehicle, func(i, j int) bool {
		return overview.ByVehicle[i].Vehicle.ID < overview.ByVehicle[j].Vehicle.ID
	})
	return overview, nil
}
