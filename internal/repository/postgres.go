package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	_ "github.com/lib/pq"

	"github.com/fjod/go_cart/cart-aggregation-service/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(cred *Credentials) (*PostgresStore, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	log.Println("Connected to postgres")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InTx wraps fn in a single transaction. Rollback on any error keeps
// header/line-item writes all-or-nothing; a committed product snapshot
// is the only write that may survive a failed upsert, and only via a
// competing transaction's own commit.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx CartTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCartByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	query := `SELECT id, user_id, COALESCE(coupon_code, ''), COALESCE(discount_amount, 0), created_at, updated_at
	          FROM cart_headers WHERE user_id = $1`

	var header domain.CartHeader
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&header.ID,
		&header.UserID,
		&header.CouponCode,
		&header.DiscountAmount,
		&header.CreatedAt,
		&header.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart header: %w", err)
	}

	items, err := listLineItems(ctx, s.db, header.ID)
	if err != nil {
		return nil, err
	}

	return &domain.Cart{Header: header, Items: items}, nil
}

// postgresTx implements CartTx over one *sql.Tx.
type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT id, name, price, description, category_name, image_url FROM products WHERE id = $1`

	var p domain.Product
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.Description, &p.CategoryName, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return &p, nil
}

// InsertProduct uses ON CONFLICT DO NOTHING rather than letting the
// unique violation abort the transaction; the conflict is still
// reported so callers keep the first-write-wins contract visible.
func (t *postgresTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (id, name, price, description, category_name, image_url)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (id) DO NOTHING`

	res, err := t.tx.ExecContext(ctx, query,
		p.ID, p.Name, p.Price, p.Description, p.CategoryName, p.ImageURL)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert product rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateProduct
	}
	return nil
}

func (t *postgresTx) FindHeaderForUser(ctx context.Context, userID string) (*domain.CartHeader, error) {
	query := `SELECT id, user_id, COALESCE(coupon_code, ''), COALESCE(discount_amount, 0), created_at, updated_at
	          FROM cart_headers WHERE user_id = $1 FOR UPDATE`

	var h domain.CartHeader
	err := t.tx.QueryRowContext(ctx, query, userID).Scan(
		&h.ID, &h.UserID, &h.CouponCode, &h.DiscountAmount, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart header for update: %w", err)
	}
	return &h, nil
}

func (t *postgresTx) InsertHeader(ctx context.Context, h *domain.CartHeader) error {
	query := `INSERT INTO cart_headers (user_id, coupon_code, discount_amount)
	          VALUES ($1, NULLIF($2, ''), $3)
	          ON CONFLICT (user_id) DO NOTHING
	          RETURNING id, created_at, updated_at`

	err := t.tx.QueryRowContext(ctx, query, h.UserID, h.CouponCode, h.DiscountAmount).
		Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// A concurrent transaction won the insert race. DO NOTHING keeps
		// this transaction alive so the caller can re-read the winner's row.
		return ErrDuplicateHeader
	}
	if err != nil {
		return fmt.Errorf("insert cart header: %w", err)
	}
	return nil
}

func (t *postgresTx) FindLineItem(ctx context.Context, headerID, productID int64) (*domain.CartLineItem, error) {
	query := `SELECT id, cart_header_id, product_id, count, added_at
	          FROM cart_line_items WHERE cart_header_id = $1 AND product_id = $2`

	var item domain.CartLineItem
	err := t.tx.QueryRowContext(ctx, query, headerID, productID).Scan(
		&item.ID, &item.HeaderID, &item.ProductID, &item.Count, &item.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query line item: %w", err)
	}
	return &item, nil
}

func (t *postgresTx) InsertLineItem(ctx context.Context, item *domain.CartLineItem) error {
	query := `INSERT INTO cart_line_items (cart_header_id, product_id, count)
	          VALUES ($1, $2, $3)
	          RETURNING id, added_at`

	err := t.tx.QueryRowContext(ctx, query, item.HeaderID, item.ProductID, item.Count).
		Scan(&item.ID, &item.AddedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateItem
		}
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateLineItemCount(ctx context.Context, id int64, count int) error {
	query := `UPDATE cart_line_items SET count = $2 WHERE id = $1`

	res, err := t.tx.ExecContext(ctx, query, id, count)
	if err != nil {
		return fmt.Errorf("update line item count: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update line item rows affected: %w", err)
	}
	if rows == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *postgresTx) DeleteLineItem(ctx context.Context, id int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_line_items WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete line item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete line item rows affected: %w", err)
	}
	return rows > 0, nil
}

func (t *postgresTx) ListLineItemsByHeader(ctx context.Context, headerID int64) ([]domain.CartLineItem, error) {
	return listLineItems(ctx, t.tx, headerID)
}

func (t *postgresTx) DeleteLineItemsByHeader(ctx context.Context, headerID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cart_line_items WHERE cart_header_id = $1`, headerID); err != nil {
		return fmt.Errorf("delete line items by header: %w", err)
	}
	return nil
}

func (t *postgresTx) DeleteHeader(ctx context.Context, headerID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cart_headers WHERE id = $1`, headerID); err != nil {
		return fmt.Errorf("delete cart header: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listLineItems(ctx context.Context, q querier, headerID int64) ([]domain.CartLineItem, error) {
	query := `SELECT li.id, li.cart_header_id, li.product_id, li.count, li.added_at,
	                 p.id, p.name, p.price, p.description, p.category_name, p.image_url
	          FROM cart_line_items li
	          JOIN products p ON p.id = li.product_id
	          WHERE li.cart_header_id = $1
	          ORDER BY li.id`

	rows, err := q.QueryContext(ctx, query, headerID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartLineItem
	for rows.Next() {
		var item domain.CartLineItem
		var p domain.Product
		if err := rows.Scan(
			&item.ID, &item.HeaderID, &item.ProductID, &item.Count, &item.AddedAt,
			&p.ID, &p.Name, &p.Price, &p.Description, &p.CategoryName, &p.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scan line item row: %w", err)
		}
		item.Product = &p
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}
