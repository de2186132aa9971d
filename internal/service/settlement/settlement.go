package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/orderservice"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
)

const (
	retryBaseDelay = 50 * time.Millisecond

	// CancelReasonInsufficientFunds goes on orders abandoned because the
	// wallet could not cover them.
	CancelReasonInsufficientFunds = "insufficient_funds"
	// CancelReasonPaymentTimeout goes on orders the expiry sweeper cancels.
	CancelReasonPaymentTimeout = "payment_timeout"
)

var (
	ErrGameUnavailable = errors.New("game is not available for purchase")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrMissingTxnID    = errors.New("third-party transaction id is required")
)

type WalletService interface {
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, entry walletservice.Entry) (*walletservice.Result, error)
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, entry walletservice.Entry) (*walletservice.Result, error)
}

type OrderService interface {
	Create(ctx context.Context, userID, gameID int64, originalPrice, finalPrice decimal.Decimal, paymentMethod string) (*domain.Order, error)
	MarkPaid(ctx context.Context, order *domain.Order) (*domain.Order, error)
	Cancel(ctx context.Context, order *domain.Order, reason string) (*domain.Order, error)
	RequestRefund(ctx context.Context, order *domain.Order, reason string) (*domain.Order, error)
	CompleteRefund(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
}

type Catalog interface {
	GetGame(ctx context.Context, gameID int64) (*domain.Game, error)
}

// Service drives every multi-entity settlement unit: the wallet change, the
// ledger entry and the order transition commit together or not at all.
type Service struct {
	walletService WalletService
	orderService  OrderService
	catalog       Catalog
	txManager     pg.TXManager
	maxRetries    uint64
}

func New(walletService WalletService, orderService OrderService, catalog Catalog, txManager pg.TXManager, maxRetries uint64) *Service {
	return &Service{
		walletService: walletService,
		orderService:  orderService,
		catalog:       catalog,
		txManager:     txManager,
		maxRetries:    maxRetries,
	}
}

// Purchase settles a game purchase from the user's wallet. The order id is
// the idempotency key of the debit, so a retried purchase of the same order
// settles exactly once. On insufficient funds the order ends CANCELLED with
// the wallet untouched.
func (s *Service) Purchase(ctx context.Context, userID, gameID int64, amount decimal.Decimal, paymentMethod string) (*domain.Order, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	game, err := s.catalog.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !game.Available {
		return nil, ErrGameUnavailable
	}

	order, err := s.orderService.Create(ctx, userID, gameID, game.Price, amount, paymentMethod)
	if err != nil {
		return nil, err
	}

	idempotencyKey := "order:" + order.OrderNo
	err = s.withRetry(ctx, func(ctx context.Context) error {
		// Each attempt transitions a copy, so a retry after a rolled-back
		// commit starts from the persisted CREATED state.
		attempt := *order
		result, err := s.walletService.Debit(ctx, userID, amount, walletservice.Entry{
			Type:           walletservice.TxnTypeConsume,
			Description:    fmt.Sprintf("purchase of %s (order %s)", game.Name, order.OrderNo),
			OrderID:        &order.ID,
			IdempotencyKey: &idempotencyKey,
		})
		if err != nil {
			return err
		}
		if result.Replayed {
			// Already settled by an earlier attempt; leave the order as is.
			return nil
		}
		if _, err := s.orderService.MarkPaid(ctx, &attempt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, walletservice.ErrInsufficientFunds) {
			if _, cancelErr := s.orderService.Cancel(ctx, order, CancelReasonInsufficientFunds); cancelErr != nil {
				zap.L().Error("failed to cancel unfunded order",
					zap.String("orderNo", order.OrderNo), zap.Error(cancelErr))
			}
			return nil, err
		}
		return nil, err
	}

	return s.orderService.GetByOrderNo(ctx, order.OrderNo)
}

// Recharge credits externally confirmed funds. The third-party transaction
// id is the sole dedup mechanism: a duplicated confirmation returns the
// original result with exactly one ledger entry behind it.
func (s *Service) Recharge(ctx context.Context, userID int64, amount decimal.Decimal, paymentMethod, thirdPartyTxnID string) (*walletservice.Result, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if thirdPartyTxnID == "" {
		return nil, ErrMissingTxnID
	}

	var result *walletservice.Result
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.walletService.Credit(ctx, userID, amount, walletservice.Entry{
			Type:            walletservice.TxnTypeRecharge,
			Description:     "wallet recharge via " + paymentMethod,
			ThirdPartyTxnID: &thirdPartyTxnID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Refund returns the full order amount to the wallet and moves the order to
// REFUNDED. Valid only for PAID orders; replaying a finished refund returns
// the refunded order unchanged.
func (s *Service) Refund(ctx context.Context, orderNo, reason string) (*domain.Order, error) {
	order, err := s.orderService.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order.Status == orderservice.RefundedOrderStatus {
		return order, nil
	}
	if order.Status != orderservice.PaidOrderStatus && order.Status != orderservice.RefundRequestedOrderStatus {
		return nil, orderservice.ErrInvalidOrderState
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		attempt := *order
		if attempt.Status == orderservice.PaidOrderStatus {
			if _, err := s.orderService.RequestRefund(ctx, &attempt, reason); err != nil {
				return err
			}
		}
		idempotencyKey := "refund:" + order.OrderNo
		if _, err := s.walletService.Credit(ctx, order.UserID, order.FinalPrice, walletservice.Entry{
			Type:           walletservice.TxnTypeRefund,
			Description:    "refund of order " + order.OrderNo,
			OrderID:        &order.ID,
			IdempotencyKey: &idempotencyKey,
		}); err != nil {
			return err
		}
		if _, err := s.orderService.CompleteRefund(ctx, &attempt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.orderService.GetByOrderNo(ctx, order.OrderNo)
}

// CancelOrder abandons an order. A CREATED order is cancelled outright; a
// PAID order gets its compensating credit committed in the same unit, so a
// paid order never ends up cancelled without a matching refund record.
func (s *Service) CancelOrder(ctx context.Context, orderNo, reason string) (*domain.Order, error) {
	order, err := s.orderService.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case orderservice.CreatedOrderStatus:
		return s.orderService.Cancel(ctx, order, reason)
	case orderservice.PaidOrderStatus:
		err = s.withRetry(ctx, func(ctx context.Context) error {
			attempt := *order
			idempotencyKey := "cancel:" + order.OrderNo
			if _, err := s.walletService.Credit(ctx, order.UserID, order.FinalPrice, walletservice.Entry{
				Type:           walletservice.TxnTypeRefund,
				Description:    "refund on cancellation of order " + order.OrderNo,
				OrderID:        &order.ID,
				IdempotencyKey: &idempotencyKey,
			}); err != nil {
				return err
			}
			if _, err := s.orderService.Cancel(ctx, &attempt, reason); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return s.orderService.GetByOrderNo(ctx, order.OrderNo)
	default:
		return nil, orderservice.ErrInvalidOrderState
	}
}

// withRetry runs op as one transaction, retrying only transient storage
// conflicts with capped exponential backoff. Business-rule failures surface
// immediately.
func (s *Service) withRetry(ctx context.Context, op pg.TransactionalFn) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(retryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.txManager.Begin(ctx, op)
		if err != nil && pg.IsRetryable(err) {
			zap.L().Warn("retrying settlement unit after transient conflict", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}
