package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"marketplace/model"
)

const defaultLockTimeout = 3 * time.Second

// PostgresStore is a Store backed by Postgres.
type PostgresStore struct {
	DB *sql.DB

	// LockTimeout bounds how long a checkout transaction waits for
	// product row locks before aborting with ErrTxContention.
	LockTimeout time.Duration
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{DB: db, LockTimeout: defaultLockTimeout}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

func (s *PostgresStore) lockTimeout() time.Duration {
	if s.LockTimeout <= 0 {
		return defaultLockTimeout
	}
	return s.LockTimeout
}

// --- products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO products (name, description, price, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, nullString(p.Description), p.Price, p.Stock,
	).Scan(&p.ID)
	return p, err
}

func (s *PostgresStore) FindProductByID(ctx context.Context, id uuid.UUID) (model.Product, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, description, price, stock FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, description, price, stock FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStock(ctx context.Context, productID uuid.UUID, newStock int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE products SET stock = $1 WHERE id = $2`, newStock, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- carts ---

func (s *PostgresStore) CreateCart(ctx context.Context, sessionID string) (model.Cart, error) {
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO carts (session_id) VALUES (NULLIF($1, '')) RETURNING id`, sessionID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return model.Cart{}, ErrDuplicateSession
	}
	if err != nil {
		return model.Cart{}, err
	}
	return model.Cart{ID: id, SessionID: sessionID, Items: []model.CartItem{}}, nil
}

func (s *PostgresStore) FindCartByID(ctx context.Context, id uuid.UUID) (model.Cart, error) {
	var cart model.Cart
	var session sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, session_id FROM carts WHERE id = $1`, id,
	).Scan(&cart.ID, &session)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cart{}, ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	cart.SessionID = session.String

	cart.Items, err = s.listCartItems(ctx, cart.ID)
	return cart, err
}

func (s *PostgresStore) FindCartBySession(ctx context.Context, sessionID string) (model.Cart, error) {
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE session_id = $1`, sessionID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cart{}, ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return s.FindCartByID(ctx, id)
}

func (s *PostgresStore) DeleteCart(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) listCartItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY product_id`,
		cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.CartItem{}
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- cart items ---

func (s *PostgresStore) FindCartItem(ctx context.Context, cartID, productID uuid.UUID) (model.CartItem, error) {
	var it model.CartItem
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID,
	).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CartItem{}, ErrNotFound
	}
	return it, err
}

// UpsertCartItem adds quantity to the (cart, product) line item, creating it
// if absent. The conditional update runs inside Postgres, so two concurrent
// adds for the same pair cannot lose an increment.
func (s *PostgresStore) UpsertCartItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, cartID, productID, quantity)
	return err
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (model.Product, error) {
	var p model.Product
	var desc sql.NullString
	var price decimal.Decimal
	if err := row.Scan(&p.ID, &p.Name, &desc, &price, &p.Stock); err != nil {
		return model.Product{}, err
	}
	p.Description = desc.String
	p.Price = price
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 55P03 lock_not_available (lock_timeout exceeded),
		// 57014 query_canceled (statement_timeout / ctx cancellation).
		return pqErr.Code == "55P03" || pqErr.Code == "57014"
	}
	return false
}
