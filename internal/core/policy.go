package core

// Inclusion rules for statement totals.
//
// Income that flows into an operating box is an internal transfer (a box
// recharge) and must not be counted as business income, or it would be double
// counted when the box spends it. Expenses count regardless of where the cash
// came from. These three predicates are the only place the rule lives; every
// aggregation routes through them.

// CountsAsGlobalIncome reports whether tx contributes to a scope's headline
// income: an Income transaction with no operating box reference.
func CountsAsGlobalIncome(tx Transaction) bool {
	return tx.Type == Income && tx.OperatingBoxID == nil
}

// CountsAsGlobalExpense reports whether tx contributes to a scope's headline
// expense: every Expense transaction, box-linked or not.
func CountsAsGlobalExpense(tx Transaction) bool {
	return tx.Type == Expense
}

// CountsInStatementPool reports whether tx belongs to the pool that the
// by-state and by-category breakdowns partition.
func CountsInStatementPool(tx Transaction) bool {
	return CountsAsGlobalExpense(tx) || CountsAsGlobalIncome(tx)
}
