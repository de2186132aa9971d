package orderrepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
)

var orderRows = []string{"id", "order_no", "user_id", "game_id", "original_price", "final_price", "discount_amount", "payment_method", "status", "cancel_reason", "refund_reason", "created_at", "paid_at", "finished_at", "updated_at"}

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	assert.NoError(t, err)
	repo := New(mockDB)
	defer mockDB.Close()

	return repo, mockDB
}

func TestRepository_Save(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	order := func() *domain.Order {
		return &domain.Order{
			OrderNo:        "4561261212345467",
			UserID:         1,
			GameID:         42,
			OriginalPrice:  decimal.RequireFromString("29.99"),
			FinalPrice:     decimal.RequireFromString("19.99"),
			DiscountAmount: decimal.RequireFromString("10.00"),
			PaymentMethod:  "wallet",
			Status:         "CREATED",
		}
	}

	tests := []struct {
		name      string
		mockSetup func()
		expectErr bool
	}{
		{
			name: "Successfully saves order",
			mockSetup: func() {
				rows := pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
					AddRow(int64(7), now, now)
				mock.ExpectQuery(regexp.QuoteMeta(`
					INSERT INTO orders (order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
					RETURNING id, created_at, updated_at`)).
					WithArgs("4561261212345467", int64(1), int64(42), decimal.RequireFromString("29.99"), decimal.RequireFromString("19.99"), decimal.RequireFromString("10.00"), "wallet", "CREATED").
					WillReturnRows(rows)
			},
			expectErr: false,
		},
		{
			name: "Database error",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`
					INSERT INTO orders (order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
					RETURNING id, created_at, updated_at`)).
					WithArgs("4561261212345467", int64(1), int64(42), decimal.RequireFromString("29.99"), decimal.RequireFromString("19.99"), decimal.RequireFromString("10.00"), "wallet", "CREATED").
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			o := order()
			err := repo.Save(context.Background(), o)

			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, int64(7), o.ID)
			}
		})
	}
}

func TestRepository_FindByOrderNo(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tests := []struct {
		name      string
		orderNo   string
		mockSetup func()
		found     bool
		expectErr bool
	}{
		{
			name:    "Existing order number",
			orderNo: "4561261212345467",
			mockSetup: func() {
				rows := pgxmock.NewRows(orderRows).
					AddRow(int64(7), "4561261212345467", int64(1), int64(42), "29.99", "19.99", "10.00", "wallet", "CREATED", "", "", now, nil, nil, now)
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE order_no = $1`)).
					WithArgs("4561261212345467").
					WillReturnRows(rows)
			},
			found: true,
		},
		{
			name:    "Missing order number returns nil",
			orderNo: "0000000000000000",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE order_no = $1`)).
					WithArgs("0000000000000000").
					WillReturnError(pgx.ErrNoRows)
			},
			found: false,
		},
		{
			name:    "Database error",
			orderNo: "4561261212345467",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE order_no = $1`)).
					WithArgs("4561261212345467").
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			result, err := repo.FindByOrderNo(context.Background(), tt.orderNo)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if tt.found {
				assert.NotNil(t, result)
				assert.Equal(t, tt.orderNo, result.OrderNo)
			} else {
				assert.Nil(t, result)
			}
		})
	}
}

func TestRepository_FindOrdersByUserID(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	tests := []struct {
		name      string
		userID    int64
		mockSetup func()
		expectErr bool
		count     int
	}{
		{
			name:   "Returns orders newest first",
			userID: 1,
			mockSetup: func() {
				rows := pgxmock.NewRows(orderRows).
					AddRow(int64(8), "4561261212345475", int64(1), int64(43), "59.99", "59.99", "0", "wallet", "PAID", "", "", now, &now, nil, now).
					AddRow(int64(7), "4561261212345467", int64(1), int64(42), "29.99", "19.99", "10.00", "wallet", "CANCELLED", "insufficient_funds", "", now.Add(-time.Hour), nil, &now, now)
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC`)).
					WithArgs(int64(1)).
					WillReturnRows(rows)
			},
			count: 2,
		},
		{
			name:   "Database error",
			userID: 1,
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC`)).
					WithArgs(int64(1)).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			orders, err := repo.FindOrdersByUserID(context.Background(), tt.userID)

			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, orders)
			} else {
				assert.NoError(t, err)
				assert.Len(t, orders, tt.count)
			}
		})
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	order := &domain.Order{
		ID:           7,
		OrderNo:      "4561261212345467",
		Status:       "PAID",
		CancelReason: "",
		RefundReason: "",
		PaidAt:       &now,
	}

	tests := []struct {
		name      string
		mockSetup func()
		expectErr bool
		swapped   bool
	}{
		{
			name: "Transition applied",
			mockSetup: func() {
				mock.ExpectExec(regexp.QuoteMeta(`
					UPDATE orders
					SET status = $1, cancel_reason = $2, refund_reason = $3, paid_at = $4, finished_at = $5, updated_at = now()
					WHERE id = $6 AND status = $7`)).
					WithArgs("PAID", "", "", &now, (*time.Time)(nil), int64(7), "CREATED").
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
			swapped: true,
		},
		{
			name: "Lost the compare-and-swap",
			mockSetup: func() {
				mock.ExpectExec(regexp.QuoteMeta(`
					UPDATE orders
					SET status = $1, cancel_reason = $2, refund_reason = $3, paid_at = $4, finished_at = $5, updated_at = now()
					WHERE id = $6 AND status = $7`)).
					WithArgs("PAID", "", "", &now, (*time.Time)(nil), int64(7), "CREATED").
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			swapped: false,
		},
		{
			name: "Database error",
			mockSetup: func() {
				mock.ExpectExec(regexp.QuoteMeta(`
					UPDATE orders
					SET status = $1, cancel_reason = $2, refund_reason = $3, paid_at = $4, finished_at = $5, updated_at = now()
					WHERE id = $6 AND status = $7`)).
					WithArgs("PAID", "", "", &now, (*time.Time)(nil), int64(7), "CREATED").
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			ok, err := repo.UpdateStatus(context.Background(), order, "CREATED")

			if tt.expectErr {
				assert.Error(t, err)
				assert.False(t, ok)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.swapped, ok)
			}
		})
	}
}

func TestRepository_FindExpired(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()
	deadline := now.Add(-15 * time.Minute)

	tests := []struct {
		name      string
		mockSetup func()
		expectErr bool
		count     int
	}{
		{
			name: "Returns stale unpaid orders",
			mockSetup: func() {
				rows := pgxmock.NewRows(orderRows).
					AddRow(int64(7), "4561261212345467", int64(1), int64(42), "29.99", "19.99", "10.00", "wallet", "CREATED", "", "", now.Add(-time.Hour), nil, nil, now)
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE status = 'CREATED' AND created_at < $1 ORDER BY created_at ASC LIMIT $2`)).
					WithArgs(deadline, 100).
					WillReturnRows(rows)
			},
			count: 1,
		},
		{
			name: "Database error",
			mockSetup: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at FROM orders WHERE status = 'CREATED' AND created_at < $1 ORDER BY created_at ASC LIMIT $2`)).
					WithArgs(deadline, 100).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			orders, err := repo.FindExpired(context.Background(), deadline, 100)

			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, orders)
			} else {
				assert.NoError(t, err)
				assert.Len(t, orders, tt.count)
			}
		})
	}
}
