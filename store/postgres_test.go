package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"marketplace/stock"
)

var (
	pqError23505 = pq.Error{Code: "23505"}
	pqError55P03 = pq.Error{Code: "55P03"}
)

const lockTimeoutStmt = `SET LOCAL lock_timeout = '3000ms'`

const checkoutSelect = `
		SELECT ci.product_id, ci.quantity, p.name, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY p.id
		FOR UPDATE
	`

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{DB: db}, mock
}

func TestFindProductByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, description, price, stock FROM products WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "price", "stock"}))

	if _, err := s.FindProductByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertCartItem_IncrementOnConflict(t *testing.T) {
	s, mock := newMockStore(t)
	cartID, productID := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`)).
		WithArgs(cartID, productID, 3).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.UpsertCartItem(context.Background(), cartID, productID, 3); err != nil {
		t.Fatalf("UpsertCartItem failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCart_DuplicateSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO carts (session_id) VALUES (NULLIF($1, '')) RETURNING id`)).
		WithArgs("sess-1").
		WillReturnError(&pqError23505)

	if _, err := s.CreateCart(context.Background(), "sess-1"); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommitCheckout_Success(t *testing.T) {
	s, mock := newMockStore(t)
	cartID := uuid.New()
	p1, p2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTimeoutStmt)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"product_id", "quantity", "name", "stock"}).
		AddRow(p1.String(), 3, "Keyboard", 5).
		AddRow(p2.String(), 1, "Mouse", 2)
	mock.ExpectQuery(regexp.QuoteMeta(checkoutSelect)).
		WithArgs(cartID).
		WillReturnRows(rows)

	mock.ExpectPrepare(regexp.QuoteMeta(`UPDATE products SET stock = stock - $1 WHERE id = $2`))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock = stock - $1 WHERE id = $2`)).
		WithArgs(3, p1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock = stock - $1 WHERE id = $2`)).
		WithArgs(1, p2).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items WHERE cart_id = $1`)).
		WithArgs(cartID).
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM carts WHERE id = $1`)).
		WithArgs(cartID).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.CommitCheckout(context.Background(), cartID); err != nil {
		t.Fatalf("CommitCheckout failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommitCheckout_ShortfallUnderLockRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	cartID := uuid.New()
	p1, p2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTimeoutStmt)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"product_id", "quantity", "name", "stock"}).
		AddRow(p1.String(), 5, "Keyboard", 3).
		AddRow(p2.String(), 1, "Mouse", 2)
	mock.ExpectQuery(regexp.QuoteMeta(checkoutSelect)).
		WithArgs(cartID).
		WillReturnRows(rows)
	mock.ExpectRollback()

	err := s.CommitCheckout(context.Background(), cartID)
	var insufficient *stock.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(insufficient.Shortfalls) != 1 {
		t.Fatalf("expected 1 shortfall, got %+v", insufficient.Shortfalls)
	}
	sf := insufficient.Shortfalls[0]
	if sf.ProductName != "Keyboard" || sf.Available != 3 || sf.Requested != 5 {
		t.Fatalf("unexpected shortfall: %+v", sf)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommitCheckout_CartNotFoundAndEmptyCart(t *testing.T) {
	s, mock := newMockStore(t)
	cartID := uuid.New()

	// missing cart
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTimeoutStmt)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(checkoutSelect)).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "name", "stock"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`)).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	if err := s.CommitCheckout(context.Background(), cartID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// cart exists but has no items
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTimeoutStmt)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(checkoutSelect)).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "name", "stock"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`)).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	if err := s.CommitCheckout(context.Background(), cartID); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommitCheckout_LockTimeoutIsContention(t *testing.T) {
	s, mock := newMockStore(t)
	cartID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTimeoutStmt)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(checkoutSelect)).
		WithArgs(cartID).
		WillReturnError(&pqError55P03)
	mock.ExpectRollback()

	if err := s.CommitCheckout(context.Background(), cartID); !errors.Is(err, ErrTxContention) {
		t.Fatalf("expected ErrTxContention, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommitCheckout_DecrementErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	cartID := uuid.New()
	p1 := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTimeoutStmt)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(checkoutSelect)).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "name", "stock"}).
			AddRow(p1.String(), 2, "Keyboard", 5))
	mock.ExpectPrepare(regexp.QuoteMeta(`UPDATE products SET stock = stock - $1 WHERE id = $2`))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock = stock - $1 WHERE id = $2`)).
		WithArgs(2, p1).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	if err := s.CommitCheckout(context.Background(), cartID); err == nil {
		t.Fatal("expected error from failed decrement")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
