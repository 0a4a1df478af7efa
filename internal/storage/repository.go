// Package storage persists the ledger domain in SQLite. All write paths go
// through Repository.InTx so balance mutations, history entries and state
// flips commit as one unit.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flota/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection keeps unit-of-work
	// transactions from tripping over each other on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so reads share one code
// path inside and outside a unit of work.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InTx runs fn inside one database transaction. fn returning nil commits;
// any error rolls everything back and is returned unchanged.
func (r *Repository) InTx(ctx context.Context, fn func(uow core.UnitOfWork) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	if err := fn(&txUnit{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// FindTransactions implements core.TransactionQuery.
func (r *Repository) FindTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	return findTransactions(ctx, r.db, f)
}

// GetBox implements core.BoxReader.
func (r *Repository) GetBox(ctx context.Context, id int64) (core.OperatingBox, error) {
	return getBox(ctx, r.db, id)
}

// GetTransaction reads a single transaction outside a unit of work.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

// ListBoxes returns every operating box, in id order.
func (r *Repository) ListBoxes(ctx context.Context) ([]core.OperatingBox, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, business_id, name, balance_cents, active FROM operating_boxes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list operating boxes: %w", err)
	}
	defer rows.Close()

	var bs []core.OperatingBox
	for rows.Next() {
		var b core.OperatingBox
		var active int64
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.Name, &b.Balance.Cents, &active); err != nil {
			return nil, fmt.Errorf("scan operating box: %w", err)
		}
		b.Active = active != 0
		bs = append(bs, b)
	}
	return bs, rows.Err()
}

// ListVehicles implements core.VehicleReader.
func (r *Repository) ListVehicles(ctx context.Context, businessID int64) ([]core.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, business_id, plate, active FROM vehicles WHERE business_id = ? ORDER BY id`,
		businessID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vs []core.Vehicle
	for rows.Next() {
		var v core.Vehicle
		var active int64
		if err := rows.Scan(&v.ID, &v.BusinessID, &v.Plate, &active); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		v.Active = active != 0
		vs = append(vs, v)
	}
	return vs, rows.Err()
}

// ListBoxHistory returns the most recent audit entries for a box, newest
// first.
func (r *Repository) ListBoxHistory(ctx context.Context, boxID int64, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, box_id, movement, amount_cents, transaction_id,
		        balance_before_cents, balance_after_cents, description, created_at
		 FROM box_history WHERE box_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		boxID, limit)
	if err != nil {
		return nil, fmt.Errorf("list box history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var e core.HistoryEntry
		var txID sql.NullInt64
		var created string
		if err := rows.Scan(&e.ID, &e.BoxID, &e.Movement, &e.Amount.Cents, &txID,
			&e.BalanceBefore.Cents, &e.BalanceAfter.Cents, &e.Description, &created); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if txID.Valid {
			e.TransactionID = &txID.Int64
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountBoxHistory counts audit entries for a box.
func (r *Repository) CountBoxHistory(ctx context.Context, boxID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM box_history WHERE box_id = ?`, boxID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count box history: %w", err)
	}
	return n, nil
}

// CreateBusiness inserts a business and returns its id.
func (r *Repository) CreateBusiness(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO businesses (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("create business: %w", err)
	}
	return res.LastInsertId()
}

// CreateVehicle inserts a vehicle and returns its id.
func (r *Repository) CreateVehicle(ctx context.Context, v core.Vehicle) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO vehicles (business_id, plate, active) VALUES (?, ?, ?)`,
		v.BusinessID, v.Plate, boolInt(v.Active))
	if err != nil {
		return 0, fmt.Errorf("create vehicle: %w", err)
	}
	return res.LastInsertId()
}

// CreateBox inserts an operating box and returns its id.
func (r *Repository) CreateBox(ctx context.Context, b core.OperatingBox) (int64, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO operating_boxes (business_id, name, balance_cents, active) VALUES (?, ?, ?, ?)`,
		b.BusinessID, b.Name, b.Balance.Cents, boolInt(b.Active))
	if err != nil {
		return 0, fmt.Errorf("create operating box: %w", err)
	}
	return res.LastInsertId()
}

// CreateTransaction inserts a transaction captured upstream and returns its id.
func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (business_id, vehicle_id, operating_box_id, tx_type, amount_cents, tx_date, state, category, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.BusinessID, nullInt(tx.VehicleID), nullInt(tx.OperatingBoxID),
		string(tx.Type), tx.Amount.Cents, tx.Date.Format(dateLayout),
		string(tx.State), tx.Category, tx.Description)
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"business_id", tx.BusinessID,
		"tx_type", string(tx.Type),
		"amount_cents", tx.Amount.Cents,
		"state", string(tx.State))
	return id, nil
}

// txUnit is the core.UnitOfWork bound to one *sql.Tx.
type txUnit struct {
	tx *sql.Tx
}

func (u *txUnit) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return getTransaction(ctx, u.tx, id)
}

func (u *txUnit) SetTransactionState(ctx context.Context, id int64, s core.TransactionState) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE transactions SET state = ? WHERE id = ?`, string(s), id)
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (u *txUnit) GetBox(ctx context.Context, id int64) (core.OperatingBox, error) {
	return getBox(ctx, u.tx, id)
}

func (u *txUnit) CompareAndSwapBalance(ctx context.Context, id int64, expected, updated core.Money) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE operating_boxes SET balance_cents = ? WHERE id = ? AND balance_cents = ?`,
		updated.Cents, id, expected.Cents)
	if err != nil {
		return fmt.Errorf("swap balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap balance: %w", err)
	}
	if n == 0 {
		if _, err := getBox(ctx, u.tx, id); errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		return core.ErrConcurrentUpdate
	}
	return nil
}

func (u *txUnit) AppendHistory(ctx context.Context, e core.HistoryEntry) error {
	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO box_history
		 (id, box_id, movement, amount_cents, transaction_id,
		  balance_before_cents, balance_after_cents, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BoxID, string(e.Movement), e.Amount.Cents, nullInt(e.TransactionID),
		e.BalanceBefore.Cents, e.BalanceAfter.Cents, e.Description,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func getBox(ctx context.Context, q querier, id int64) (core.OperatingBox, error) {
	var b core.OperatingBox
	var active int64
	err := q.QueryRowContext(ctx,
		`SELECT id, business_id, name, balance_cents, active FROM operating_boxes WHERE id = ?`,
		id).Scan(&b.ID, &b.BusinessID, &b.Name, &b.Balance.Cents, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return core.OperatingBox{}, core.ErrNotFound
	}
	if err != nil {
		return core.OperatingBox{}, fmt.Errorf("get operating box: %w", err)
	}
	b.Active = active != 0
	return b, nil
}

func getTransaction(ctx context.Context, q querier, id int64) (core.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, business_id, vehicle_id, operating_box_id, tx_type, amount_cents,
		        tx_date, state, category, description
		 FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func findTransactions(ctx context.Context, q querier, f core.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, business_id, vehicle_id, operating_box_id, tx_type, amount_cents,
	                 tx_date, state, category, description
	          FROM transactions`
	var conds []string
	var args []any

	if f.BusinessID != nil {
		conds = append(conds, "business_id = ?")
		args = append(args, *f.BusinessID)
	}
	if f.VehicleID != nil {
		conds = append(conds, "vehicle_id = ?")
		args = append(args, *f.VehicleID)
	}
	if f.BoxID != nil {
		conds = append(conds, "operating_box_id = ?")
		args = append(args, *f.BoxID)
	}
	if f.HasBox != nil {
		if *f.HasBox {
			conds = append(conds, "operating_box_id IS NOT NULL")
		} else {
			conds = append(conds, "operating_box_id IS NULL")
		}
	}
	if f.Type != nil {
		conds = append(conds, "tx_type = ?")
		args = append(args, string(*f.Type))
	}
	if f.State != nil {
		conds = append(conds, "state = ?")
		args = append(args, string(*f.State))
	}
	if f.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, *f.Category)
	}
	if f.Range != nil {
		conds = append(conds, "tx_date >= ?", "tx_date <= ?")
		args = append(args, f.Range.From.Format(dateLayout), f.Range.To.Format(dateLayout))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY tx_date, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(scan func(dest ...any) error) (core.Transaction, error) {
	var tx core.Transaction
	var vehicleID, boxID sql.NullInt64
	var txDate string
	err := scan(&tx.ID, &tx.BusinessID, &vehicleID, &boxID, &tx.Type, &tx.Amount.Cents,
		&txDate, &tx.State, &tx.Category, &tx.Description)
	if err != nil {
		return core.Transaction{}, err
	}
	if vehicleID.Valid {
		tx.VehicleID = &vehicleID.Int64
	}
	if boxID.Valid {
		tx.OperatingBoxID = &boxID.Int64
	}
	d, err := time.Parse(dateLayout, txDate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse tx_date %q: %w", txDate, err)
	}
	tx.Date = core.Date{Time: d}
	return tx, nil
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
