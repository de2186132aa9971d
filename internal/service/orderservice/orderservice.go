package orderservice

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/validate"
)

const (
	// CreatedOrderStatus order is placed, payment not settled yet;
	CreatedOrderStatus string = "CREATED"
	// PaidOrderStatus wallet debit and ledger entry committed;
	PaidOrderStatus string = "PAID"
	// CompletedOrderStatus delivery finished, terminal;
	CompletedOrderStatus string = "COMPLETED"
	// CancelledOrderStatus order abandoned before or after payment, terminal;
	CancelledOrderStatus string = "CANCELLED"
	// RefundRequestedOrderStatus refund asked for, credit not committed yet;
	RefundRequestedOrderStatus string = "REFUND_REQUESTED"
	// RefundedOrderStatus compensating credit committed, terminal;
	RefundedOrderStatus string = "REFUNDED"
)

// transitions is the whole state machine. Anything not listed here is
// rejected with ErrInvalidOrderState.
var transitions = map[string][]string{
	CreatedOrderStatus:         {PaidOrderStatus, CancelledOrderStatus},
	PaidOrderStatus:            {CompletedOrderStatus, CancelledOrderStatus, RefundRequestedOrderStatus},
	RefundRequestedOrderStatus: {RefundedOrderStatus},
}

func canTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrderState = errors.New("invalid order state transition")
	ErrInvalidPrice      = errors.New("order price must be positive")
	ErrPriceAboveListed  = errors.New("final price exceeds listed price")
)

type Repo interface {
	Save(ctx context.Context, order *domain.Order) error
	FindByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	FindByID(ctx context.Context, orderID int64) (*domain.Order, error)
	FindOrdersByUserID(ctx context.Context, userID int64) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, order *domain.Order, fromStatus string) (bool, error)
	FindExpired(ctx context.Context, createdBefore time.Time, limit uint32) ([]domain.Order, error)
}

type Service struct {
	repo Repo
}

func New(repo Repo) *Service {
	return &Service{
		repo: repo,
	}
}

// Create places a new order in CREATED. No wallet effect.
func (s *Service) Create(ctx context.Context, userID, gameID int64, originalPrice, finalPrice decimal.Decimal, paymentMethod string) (*domain.Order, error) {
	if !finalPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if finalPrice.GreaterThan(originalPrice) {
		return nil, ErrPriceAboveListed
	}

	order := &domain.Order{
		OrderNo:        validate.NewOrderNo(),
		UserID:         userID,
		GameID:         gameID,
		OriginalPrice:  originalPrice,
		FinalPrice:     finalPrice,
		DiscountAmount: originalPrice.Sub(finalPrice),
		PaymentMethod:  paymentMethod,
		Status:         CreatedOrderStatus,
	}

	if err := s.repo.Save(ctx, order); err != nil {
		zap.L().Error("can't save order: ", zap.Error(err))
		return nil, err
	}
	return order, nil
}

// MarkPaid is only called after the wallet debit committed in the same
// transaction boundary.
func (s *Service) MarkPaid(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return s.transition(ctx, order, PaidOrderStatus, func(o *domain.Order) {
		now := time.Now()
		o.PaidAt = &now
	})
}

func (s *Service) Complete(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return s.transition(ctx, order, CompletedOrderStatus, func(o *domain.Order) {
		now := time.Now()
		o.FinishedAt = &now
	})
}

// Cancel moves the order to CANCELLED. Cancelling a PAID order is only done
// by the settlement coordinator after the compensating credit committed.
func (s *Service) Cancel(ctx context.Context, order *domain.Order, reason string) (*domain.Order, error) {
	return s.transition(ctx, order, CancelledOrderStatus, func(o *domain.Order) {
		now := time.Now()
		o.CancelReason = reason
		o.FinishedAt = &now
	})
}

func (s *Service) RequestRefund(ctx context.Context, order *domain.Order, reason string) (*domain.Order, error) {
	return s.transition(ctx, order, RefundRequestedOrderStatus, func(o *domain.Order) {
		o.RefundReason = reason
	})
}

// CompleteRefund requires the compensating credit and its ledger entry to be
// committed in the same transaction boundary.
func (s *Service) CompleteRefund(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return s.transition(ctx, order, RefundedOrderStatus, func(o *domain.Order) {
		now := time.Now()
		o.FinishedAt = &now
	})
}

// transition applies one state-machine edge with a compare-and-swap on the
// stored status, so a concurrent transition loses cleanly instead of
// overwriting.
func (s *Service) transition(ctx context.Context, order *domain.Order, to string, mutate func(*domain.Order)) (*domain.Order, error) {
	from := order.Status
	if !canTransition(from, to) {
		zap.L().Info("rejected order transition",
			zap.String("orderNo", order.OrderNo), zap.String("from", from), zap.String("to", to))
		return nil, ErrInvalidOrderState
	}

	updated := *order
	updated.Status = to
	mutate(&updated)

	ok, err := s.repo.UpdateStatus(ctx, &updated, from)
	if err != nil {
		zap.L().Error("failed to update order", zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOrderState
	}

	*order = updated
	return order, nil
}

func (s *Service) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	order, err := s.repo.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) GetOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.repo.FindOrdersByUserID(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get orders", zap.Error(err))
		return nil, err
	}
	return orders, nil
}

// Expired lists unpaid orders older than the payment deadline for the
// expiry sweeper.
func (s *Service) Expired(ctx context.Context, createdBefore time.Time, limit uint32) ([]domain.Order, error) {
	orders, err := s.repo.FindExpired(ctx, createdBefore, limit)
	if err != nil {
		zap.L().Error("failed to get expired orders", zap.Error(err))
		return nil, err
	}
	return orders, nil
}
