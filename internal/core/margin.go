package core

import "fmt"

// MarginPolicy is the strategy interface for computing the margin before
// taxes from a statement's headline totals. The business rule is not settled
// (gross margin vs. a tax-and-fixed-cost adjusted figure), so the policy is
// selected by name from configuration instead of hard-coded.
type MarginPolicy interface {
	// MarginBeforeTaxes returns the margin derived from headline income and
	// expense totals.
	MarginBeforeTaxes(income, expense Money) Money
}

// GrossMarginPolicy treats margin before taxes as income minus expense.
type GrossMarginPolicy struct{}

func (GrossMarginPolicy) MarginBeforeTaxes(income, expense Money) Money {
	return income.Sub(expense)
}

// TaxAdjustedMarginPolicy subtracts an estimated tax share of income and a
// fixed monthly cost from the gross margin.
type TaxAdjustedMarginPolicy struct {
	TaxRatePct float64
	FixedCost  Money
}

func (p TaxAdjustedMarginPolicy) MarginBeforeTaxes(income, expense Money) Money {
	gross := income.Sub(expense)
	tax := Money{Cents: int64(float64(income.Cents) * p.TaxRatePct / 100.0)}
	return gross.Sub(tax).Sub(p.FixedCost)
}

const (
	MarginPolicyGross       = "gross"
	MarginPolicyTaxAdjusted = "tax_adjusted"
)

// NewMarginPolicy builds the named policy. taxRatePct and fixedCost are only
// used by the tax-adjusted policy.
func NewMarginPolicy(name string, taxRatePct float64, fixedCost Money) (MarginPolicy, error) {
	switch name {
	case MarginPolicyGross:
		return GrossMarginPolicy{}, nil
	case MarginPolicyTaxAdjusted:
		return TaxAdjustedMarginPolicy{TaxRatePct: taxRatePct, FixedCost: fixedCost}, nil
	default:
		return nil, fmt.Errorf("unknown margin policy: %s", name)
	}
}
