package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const invoiceConstraint = "sales_invoice_id_key"

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	driver, err := migratepgx.WithInstance(s.db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.sku, p.name, p.unit_price, p.tax_rate, COALESCE(sc.quantity, 0), p.active
		FROM products p
		LEFT JOIN stock_counters sc ON sc.product_id = p.id
		WHERE p.active = true
		ORDER BY p.name
	`)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitPrice, &p.TaxRate, &p.StockQuantity, &p.Active); err != nil {
			return nil, storageErr("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return products, nil
}

// UpsertProduct writes the product row and resets its stock counter.
func (s *Store) UpsertProduct(ctx context.Context, product domain.Product, stock int) error {
	if product.ID == "" || product.SKU == "" || stock < 0 {
		return domain.InvalidParameterf("product id, sku and non-negative stock are required")
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		_ = pgTx.Rollback()
	}()

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, unit_price, tax_rate, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name, unit_price = EXCLUDED.unit_price,
			tax_rate = EXCLUDED.tax_rate, active = EXCLUDED.active, updated_at = now()
	`, product.ID, product.SKU, product.Name, product.UnitPrice, product.TaxRate, product.Active); err != nil {
		return storageErr("upsert product", err)
	}

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO stock_counters (product_id, quantity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`, product.ID, stock); err != nil {
		return storageErr("set stock", err)
	}

	if err := pgTx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (s *Store) StockLevels(ctx context.Context, productIDs []string) (map[string]int, error) {
	levels := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return levels, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM stock_counters
		WHERE product_id = ANY($1)
	`, uniqueIDs(productIDs))
	if err != nil {
		return nil, storageErr("stock levels", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, storageErr("scan stock", err)
		}
		levels[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("stock levels", err)
	}
	return levels, nil
}

// TryDecrementStock relies on the row lock taken by the conditional UPDATE
// to serialize concurrent decrements of the same product.
func (s *Store) TryDecrementStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_counters
		SET quantity = quantity - $2, updated_at = now()
		WHERE product_id = $1 AND quantity >= $2
	`, productID, quantity)
	if err != nil {
		return storageErr("decrement stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("decrement stock", err)
	}
	if affected == 1 {
		return nil
	}

	available := -1
	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM stock_counters WHERE product_id = $1`, productID).Scan(&current); err == nil {
		available = current
	} else if errors.Is(err, sql.ErrNoRows) {
		available = 0
	}
	return &domain.StockError{ProductID: productID, Requested: quantity, Available: available}
}

func (s *Store) RestoreStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_counters
		SET quantity = quantity + $2, updated_at = now()
		WHERE product_id = $1
	`, productID, quantity)
	if err != nil {
		return storageErr("restore stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("restore stock", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: restore stock: no counter for product %s", domain.ErrStorageFailure, productID)
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (string, error) {
	if sale.InvoiceID == "" {
		return "", domain.InvalidParameterf("invoice id is required")
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	var customer any
	if sale.CustomerRef != nil {
		customer = nullIfEmpty(*sale.CustomerRef)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_id, customer_ref, cashier_ref,
			subtotal, tax_amount, discount_amount, total_amount,
			payment_method, payment_status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		sale.ID, sale.InvoiceID, customer, sale.CashierRef,
		sale.Subtotal, sale.TaxAmount, sale.DiscountAmount, sale.TotalAmount,
		string(sale.PaymentMethod), string(sale.PaymentStatus), sale.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, invoiceConstraint) {
			return "", fmt.Errorf("invoice %s: %w", sale.InvoiceID, domain.ErrDuplicateInvoice)
		}
		return "", storageErr("insert sale", err)
	}
	return sale.ID, nil
}

func (s *Store) CreateSaleItems(ctx context.Context, saleID string, items []domain.SaleItem) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		_ = pgTx.Rollback()
	}()

	for _, item := range items {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, product_id, quantity, unit_price, tax_rate,
				tax_amount, discount_amount, line_total
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			saleID, item.ProductID, item.Quantity, item.UnitPrice, item.TaxRate,
			item.TaxAmount, item.DiscountAmount, item.LineTotal,
		); err != nil {
			return storageErr("insert sale item", err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// VoidSale removes the header; items go with it through ON DELETE CASCADE.
func (s *Store) VoidSale(ctx context.Context, saleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
		return storageErr("void sale", err)
	}
	return nil
}

func (s *Store) FindSaleByInvoice(ctx context.Context, invoiceID string) (domain.Sale, []domain.SaleItem, error) {
	var (
		sale     domain.Sale
		customer sql.NullString
		method   string
		status   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_id, customer_ref, cashier_ref,
			subtotal, tax_amount, discount_amount, total_amount,
			payment_method, payment_status, created_at
		FROM sales
		WHERE invoice_id = $1
	`, invoiceID).Scan(
		&sale.ID, &sale.InvoiceID, &customer, &sale.CashierRef,
		&sale.Subtotal, &sale.TaxAmount, &sale.DiscountAmount, &sale.TotalAmount,
		&method, &status, &sale.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, nil, store.ErrNotFound
	}
	if err != nil {
		return domain.Sale{}, nil, storageErr("find sale", err)
	}
	if customer.Valid {
		ref := customer.String
		sale.CustomerRef = &ref
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.PaymentStatus = domain.PaymentStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, unit_price, tax_rate,
			tax_amount, discount_amount, line_total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, sale.ID)
	if err != nil {
		return domain.Sale{}, nil, storageErr("list sale items", err)
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.TaxRate,
			&item.TaxAmount, &item.DiscountAmount, &item.LineTotal,
		); err != nil {
			return domain.Sale{}, nil, storageErr("scan sale item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Sale{}, nil, storageErr("list sale items", err)
	}
	return sale, items, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageFailure, op, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
