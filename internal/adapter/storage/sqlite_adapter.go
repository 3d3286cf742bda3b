package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ledgerworks/stockroom/internal/core/domain"
)

// Open opens (creating if needed) the embedded database file. WAL keeps
// readers off the writer's back; busy_timeout bounds writer waits so that
// contention surfaces as a distinct outcome instead of an instant error.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return db, nil
}

// SQLiteAdapter implements the inventory ledger and the catalog store on a
// single embedded database, so a multi-key deduction is one transaction.
type SQLiteAdapter struct {
	db *sql.DB
}

func NewSQLiteAdapter(db *sql.DB) *SQLiteAdapter {
	return &SQLiteAdapter{db: db}
}

func (a *SQLiteAdapter) InitSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			cost_price    TEXT NOT NULL,
			selling_price TEXT NOT NULL,
			barcode       TEXT NOT NULL,
			category      TEXT NOT NULL DEFAULT 'General'
		);
		CREATE TABLE IF NOT EXISTS inventory (
			product_id TEXT NOT NULL,
			location   TEXT NOT NULL,
			quantity   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (product_id, location)
		);`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Adjust applies a signed quantity change in one upsert statement. No
// availability guard: negative balances are legal administrative
// corrections, distinct from sale deduction.
func (a *SQLiteAdapter) Adjust(ctx context.Context, productID, location string, delta int) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, location, quantity) VALUES (?, ?, ?)
		ON CONFLICT (product_id, location) DO UPDATE SET quantity = quantity + excluded.quantity`,
		productID, location, delta)
	if err != nil {
		return a.mapErr("adjust inventory", err)
	}
	return nil
}

// CheckAndDeduct verifies and deducts every line inside one transaction.
// Lines are processed in lexicographic product-id order, never cart
// iteration order. Each line is a guarded UPDATE; a guard that affects no
// row means insufficient stock (or no entry at all, which counts as zero),
// and the whole transaction rolls back with nothing deducted.
func (a *SQLiteAdapter) CheckAndDeduct(ctx context.Context, items map[string]int, location string) error {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return a.mapErr("begin deduct tx", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		qty := items[id]
		res, err := tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - ?
			WHERE product_id = ? AND location = ? AND quantity >= ?`,
			qty, id, location, qty)
		if err != nil {
			return a.mapErr("deduct inventory", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deduct inventory: %w", err)
		}
		if rows == 0 {
			var available int
			err := tx.QueryRowContext(ctx, `
				SELECT quantity FROM inventory WHERE product_id = ? AND location = ?`,
				id, location).Scan(&available)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return a.mapErr("read shortfall", err)
			}
			return &domain.InsufficientStockError{
				ProductID: id,
				Location:  location,
				Requested: qty,
				Available: available,
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return a.mapErr("commit deduct tx", err)
	}
	return nil
}

// Snapshot reads every ledger entry with its catalog price in a single
// statement, which WAL executes against one point-in-time view. Entries
// for uncataloged products carry a zero price.
func (a *SQLiteAdapter) Snapshot(ctx context.Context) ([]domain.StockView, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT i.product_id, i.location, i.quantity, COALESCE(p.selling_price, '0')
		FROM inventory i
		LEFT JOIN products p ON p.id = i.product_id
		ORDER BY i.product_id, i.location`)
	if err != nil {
		return nil, a.mapErr("query snapshot", err)
	}
	defer rows.Close()

	var views []domain.StockView
	for rows.Next() {
		var v domain.StockView
		var price string
		if err := rows.Scan(&v.ProductID, &v.Location, &v.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		v.SellingPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse selling price for %s: %w", v.ProductID, err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, a.mapErr("iterate snapshot", err)
	}
	return views, nil
}

func (a *SQLiteAdapter) AddProduct(ctx context.Context, p domain.Product) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, cost_price, selling_price, barcode, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.CostPrice.String(), p.SellingPrice.String(), p.Barcode, p.Category)
	if err != nil {
		if isConstraint(err) {
			return domain.ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (a *SQLiteAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	var cost, selling string
	err := a.db.QueryRowContext(ctx, `
		SELECT id, name, description, cost_price, selling_price, barcode, category
		FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &cost, &selling, &p.Barcode, &p.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, a.mapErr("query product", err)
	}
	if p.CostPrice, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse cost price for %s: %w", id, err)
	}
	if p.SellingPrice, err = decimal.NewFromString(selling); err != nil {
		return nil, fmt.Errorf("parse selling price for %s: %w", id, err)
	}
	return &p, nil
}

// mapErr translates exhausted lock waits and caller deadline expiry into
// the contention-timeout outcome; everything else is a storage fault.
func (a *SQLiteAdapter) mapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isBusy(err) {
		return fmt.Errorf("%s: %w", op, domain.ErrContentionTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
