package orderrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
)

const orderColumns = `id, order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status, cancel_reason, refund_reason, created_at, paid_at, finished_at, updated_at`

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Save(ctx context.Context, order *domain.Order) error {
	query := `
        INSERT INTO orders (order_no, user_id, game_id, original_price, final_price, discount_amount, payment_method, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		order.OrderNo, order.UserID, order.GameID, order.OriginalPrice,
		order.FinalPrice, order.DiscountAmount, order.PaymentMethod, order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		zap.L().Error("can't save order", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) FindByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders
        WHERE order_no = $1
    `
	return r.scanOrder(r.db.QueryRow(ctx, query, orderNo))
}

func (r *Repository) FindByID(ctx context.Context, orderID int64) (*domain.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders
        WHERE id = $1
    `
	return r.scanOrder(r.db.QueryRow(ctx, query, orderID))
}

func (r *Repository) FindOrdersByUserID(ctx context.Context, userID int64) ([]domain.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		zap.L().Error("can't get orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectOrders(rows)
}

// UpdateStatus moves an order between states with a compare-and-swap on the
// current status. Returns false when the order was not in fromStatus, leaving
// it untouched.
func (r *Repository) UpdateStatus(ctx context.Context, order *domain.Order, fromStatus string) (bool, error) {
	query := `
        UPDATE orders
        SET status = $1, cancel_reason = $2, refund_reason = $3, paid_at = $4, finished_at = $5, updated_at = now()
        WHERE id = $6 AND status = $7
    `
	tag, err := r.db.Exec(ctx, query,
		order.Status, order.CancelReason, order.RefundReason,
		order.PaidAt, order.FinishedAt, order.ID, fromStatus,
	)
	if err != nil {
		zap.L().Error("failed to update order status", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindExpired returns unpaid orders created before the deadline, oldest first.
func (r *Repository) FindExpired(ctx context.Context, createdBefore time.Time, limit uint32) ([]domain.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders
        WHERE status = 'CREATED' AND created_at < $1
        ORDER BY created_at ASC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, createdBefore, int(limit))
	if err != nil {
		zap.L().Error("can't get expired orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectOrders(rows)
}

func (r *Repository) scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID, &order.OrderNo, &order.UserID, &order.GameID,
		&order.OriginalPrice, &order.FinalPrice, &order.DiscountAmount,
		&order.PaymentMethod, &order.Status, &order.CancelReason, &order.RefundReason,
		&order.CreatedAt, &order.PaidAt, &order.FinishedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find order", zap.Error(err))
		return nil, err
	}
	return &order, nil
}

func (r *Repository) collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		err := rows.Scan(
			&order.ID, &order.OrderNo, &order.UserID, &order.GameID,
			&order.OriginalPrice, &order.FinalPrice, &order.DiscountAmount,
			&order.PaymentMethod, &order.Status, &order.CancelReason, &order.RefundReason,
			&order.CreatedAt, &order.PaidAt, &order.FinishedAt, &order.UpdatedAt,
		)
		if err != nil {
			zap.L().Error("can't scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
