// Package statement computes financial statements over a scope and period.
// All computations are pure folds over a single transaction query; nothing
// here mutates state.
package statement

import (
	"context"
	"fmt"
	"math"
	"sort"

	"flota/internal/core"
)

// Group is one by-state or by-category partition of the statement pool.
type Group struct {
	Key          string
	Income       core.Money
	Expense      core.Money
	Balance      core.Money
	IncomeCount  int
	ExpenseCount int
	// Activity is the group's total moved volume (income + expense sums),
	// used for ordering and distribution shares.
	Activity core.Money
	SharePct float64
}

// Statement is a scope's financial statement for a period.
type Statement struct {
	Scope             core.Scope
	Period            core.DateRange
	IncomeTotal       core.Money
	ExpenseTotal      core.Money
	GrossMargin       core.Money
	MarginBeforeTaxes core.Money
	ProfitabilityPct  float64
	ByState           []Group
	ByCategory        []Group
}

// BoxDetail is the internal-audit view of one operating box over a period.
// Unlike scope statements it counts every transaction tied to the box,
// including the recharges the global income rule excludes.
type BoxDetail struct {
	BoxID           int64
	BoxName         string
	Period          core.DateRange
	Recharges       core.Money
	Withdrawals     core.Money
	Net             core.Money
	RechargeCount   int
	WithdrawalCount int
	AvgRecharge     core.Money
	AvgWithdrawal   core.Money
	RetentionPct    float64
	StoredBalance   core.Money
	Diff            core.Money
}

type Aggregator struct {
	txs    core.TransactionQuery
	boxes  core.BoxReader
	margin core.MarginPolicy
}

func NewAggregator(txs core.TransactionQuery, boxes core.BoxReader, margin core.MarginPolicy) *Aggregator {
	if margin == nil {
		margin = core.GrossMarginPolicy{}
	}
	return &Aggregator{txs: txs, boxes: boxes, margin: margin}
}

// ScopeStatement computes the statement for one scope and period. The rows
// come from a single query, so every derived total shares one snapshot.
func (a *Aggregator) ScopeStatement(ctx context.Context, scope core.Scope, period core.DateRange) (Statement, error) {
	if err := period.Validate(); err != nil {
		return Statement{}, err
	}

	rows, err := a.txs.FindTransactions(ctx, core.TransactionFilter{
		BusinessID: &scope.BusinessID,
		VehicleID:  scope.VehicleID,
		Range:      &period,
	})
	if err != nil {
		return Statement{}, fmt.Errorf("query transactions: %w", err)
	}

	return BuildStatement(scope, period, rows, a.margin), nil
}

// BuildStatement folds classified transactions into a statement. Exposed so
// fleet-wide runs can share one query result set.
func BuildStatement(scope core.Scope, period core.DateRange, rows []core.Transaction, margin core.MarginPolicy) Statement {
	if margin == nil {
		margin = core.GrossMarginPolicy{}
	}

	var income, expense core.Money
	pool := make([]core.Transaction, 0, len(rows))
	for _, tx := range rows {
		if !core.CountsInStatementPool(tx) {
			continue
		}
		pool = append(pool, tx)
		if core.CountsAsGlobalIncome(tx) {
			income = income.Add(tx.Amount)
		}
		if core.CountsAsGlobalExpense(tx) {
			expense = expense.Add(tx.Amount)
		}
	}

	gross := income.Sub(expense)
	st := Statement{
		Scope:             scope,
		Period:            period,
		IncomeTotal:       income,
		ExpenseTotal:      expense,
		GrossMargin:       gross,
		MarginBeforeTaxes: margin.MarginBeforeTaxes(income, expense),
		ProfitabilityPct:  pctOf(gross, income),
		ByState:           groupBy(pool, func(tx core.Transaction) string { return string(tx.State) }),
		ByCategory:        groupBy(pool, func(tx core.Transaction) string { return tx.Category }),
	}
	return st
}

// BoxDetail computes a box's period activity against its stored balance.
func (a *Aggregator) BoxDetail(ctx context.Context, boxID int64, period core.DateRange) (BoxDetail, error) {
	if err := period.Validate(); err != nil {
		return BoxDetail{}, err
	}

	box, err := a.boxes.GetBox(ctx, boxID)
	if err != nil {
		return BoxDetail{}, fmt.Errorf("load operating box %d: %w", boxID, err)
	}

	rows, err := a.txs.FindTransactions(ctx, core.TransactionFilter{
		BoxID: &boxID,
		Range: &period,
	})
	if err != nil {
		return BoxDetail{}, fmt.Errorf("query box transactions: %w", err)
	}

	d := BoxDetail{
		BoxID:         box.ID,
		BoxName:       box.Name,
		Period:        period,
		StoredBalance: box.Balance,
	}
	for _, tx := range rows {
		switch tx.Type {
		case core.Income:
			d.Recharges = d.Recharges.Add(tx.Amount)
			d.RechargeCount++
		case core.Expense:
			d.Withdrawals = d.Withdrawals.Add(tx.Amount)
			d.WithdrawalCount++
		}
	}
	d.Net = d.Recharges.Sub(d.Withdrawals)
	d.AvgRecharge = avg(d.Recharges, d.RechargeCount)
	d.AvgWithdrawal = avg(d.Withdrawals, d.WithdrawalCount)
	d.RetentionPct = pctOf(d.Net, d.Recharges)
	d.Diff = d.StoredBalance.Sub(d.Net)
	return d, nil
}

func groupBy(pool []core.Transaction, key func(core.Transaction) string) []Group {
	byKey := make(map[string]*Group)
	var totalActivity int64
	for _, tx := range pool {
		g, ok := byKey[key(tx)]
		if !ok {
			g = &Group{Key: key(tx)}
			byKey[g.Key] = g
		}
		switch tx.Type {
		case core.Income:
			g.Income = g.Income.Add(tx.Amount)
			g.IncomeCount++
		case core.Expense:
			g.Expense = g.Expense.Add(tx.Amount)
			g.ExpenseCount++
		}
		totalActivity += tx.Amount.Cents
	}

	groups := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		g.Balance = g.Income.Sub(g.Expense)
		g.Activity = g.Income.Add(g.Expense)
		if totalActivity > 0 {
			g.SharePct = round2(float64(g.Activity.Cents) / float64(totalActivity) * 100.0)
		}
		groups = append(groups, *g)
	}

	// Presentation order: most active group first, ties by key.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Activity.Cents != groups[j].Activity.Cents {
			return groups[i].Activity.Cents > groups[j].Activity.Cents
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// pctOf returns part/total*100 rounded to 2 decimals, or 0 when total is not
// positive. Divisions in statements never raise.
func pctOf(part, total core.Money) float64 {
	if total.Cents <= 0 {
		return 0
	}
	return round2(float64(part.Cents) / float64(total.Cents) * 100.0)
}

func avg(total core.Money, count int) core.Money {
	if count <= 0 {
		return core.Money{}
	}
	return core.Money{Cents: total.Cents / int64(count)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
