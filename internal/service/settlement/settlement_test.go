package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/orderservice"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
)

func NewMock(t *testing.T) (*Service, *MockWalletService, *MockOrderService, *MockCatalog, *pg.MockTXManager) {
	ctrl := gomock.NewController(t)
	walletService := NewMockWalletService(ctrl)
	orderService := NewMockOrderService(ctrl)
	gameCatalog := NewMockCatalog(ctrl)
	txManager := pg.NewMockTXManager(ctrl)
	service := New(walletService, orderService, gameCatalog, txManager, 3)
	defer ctrl.Finish()
	return service, walletService, orderService, gameCatalog, txManager
}

func passthroughTx(txManager *pg.MockTXManager) {
	txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn pg.TransactionalFn) error {
			return fn(ctx)
		}).AnyTimes()
}

func availableGame() *domain.Game {
	return &domain.Game{
		ID:        42,
		Name:      "Elden Ring",
		Price:     decimal.RequireFromString("29.99"),
		Available: true,
	}
}

func newOrder(status string) *domain.Order {
	return &domain.Order{
		ID:            7,
		OrderNo:       "4561261212345467",
		UserID:        1,
		GameID:        42,
		OriginalPrice: decimal.RequireFromString("29.99"),
		FinalPrice:    decimal.RequireFromString("19.99"),
		Status:        status,
	}
}

func TestPurchase(t *testing.T) {
	amount := decimal.RequireFromString("19.99")

	tests := []struct {
		name          string
		amount        decimal.Decimal
		prepareMock   func(w *MockWalletService, o *MockOrderService, c *MockCatalog)
		expectedError error
	}{
		{
			name:   "Successful purchase settles debit and marks order paid",
			amount: amount,
			prepareMock: func(w *MockWalletService, o *MockOrderService, c *MockCatalog) {
				c.EXPECT().GetGame(gomock.Any(), int64(42)).Return(availableGame(), nil)
				o.EXPECT().Create(gomock.Any(), int64(1), int64(42), availableGame().Price, amount, "wallet").
					Return(newOrder(orderservice.CreatedOrderStatus), nil)
				w.EXPECT().Debit(gomock.Any(), int64(1), amount, gomock.Any()).DoAndReturn(
					func(_ context.Context, _ int64, _ decimal.Decimal, entry walletservice.Entry) (*walletservice.Result, error) {
						assert.Equal(t, walletservice.TxnTypeConsume, entry.Type)
						assert.Equal(t, "order:4561261212345467", *entry.IdempotencyKey)
						assert.Equal(t, int64(7), *entry.OrderID)
						return &walletservice.Result{Record: &domain.TransactionRecord{ID: 42}}, nil
					})
				o.EXPECT().MarkPaid(gomock.Any(), gomock.Any()).Return(newOrder(orderservice.PaidOrderStatus), nil)
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.PaidOrderStatus), nil)
			},
		},
		{
			name:   "Insufficient funds cancels the order and keeps the wallet untouched",
			amount: amount,
			prepareMock: func(w *MockWalletService, o *MockOrderService, c *MockCatalog) {
				c.EXPECT().GetGame(gomock.Any(), int64(42)).Return(availableGame(), nil)
				o.EXPECT().Create(gomock.Any(), int64(1), int64(42), availableGame().Price, amount, "wallet").
					Return(newOrder(orderservice.CreatedOrderStatus), nil)
				w.EXPECT().Debit(gomock.Any(), int64(1), amount, gomock.Any()).
					Return(nil, walletservice.ErrInsufficientFunds)
				o.EXPECT().Cancel(gomock.Any(), gomock.Any(), CancelReasonInsufficientFunds).
					Return(newOrder(orderservice.CancelledOrderStatus), nil)
			},
			expectedError: walletservice.ErrInsufficientFunds,
		},
		{
			name:   "Replayed debit does not mark the order paid again",
			amount: amount,
			prepareMock: func(w *MockWalletService, o *MockOrderService, c *MockCatalog) {
				c.EXPECT().GetGame(gomock.Any(), int64(42)).Return(availableGame(), nil)
				o.EXPECT().Create(gomock.Any(), int64(1), int64(42), availableGame().Price, amount, "wallet").
					Return(newOrder(orderservice.CreatedOrderStatus), nil)
				w.EXPECT().Debit(gomock.Any(), int64(1), amount, gomock.Any()).
					Return(&walletservice.Result{Record: &domain.TransactionRecord{ID: 42}, Replayed: true}, nil)
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.PaidOrderStatus), nil)
			},
		},
		{
			name:   "Unavailable game is refused before any order exists",
			amount: amount,
			prepareMock: func(w *MockWalletService, o *MockOrderService, c *MockCatalog) {
				game := availableGame()
				game.Available = false
				c.EXPECT().GetGame(gomock.Any(), int64(42)).Return(game, nil)
			},
			expectedError: ErrGameUnavailable,
		},
		{
			name:          "Non-positive amount is refused",
			amount:        decimal.Zero,
			prepareMock:   func(*MockWalletService, *MockOrderService, *MockCatalog) {},
			expectedError: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, walletService, orderService, gameCatalog, txManager := NewMock(t)
			passthroughTx(txManager)
			tt.prepareMock(walletService, orderService, gameCatalog)

			order, err := service.Purchase(context.Background(), 1, 42, tt.amount, "wallet")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, order)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, orderservice.PaidOrderStatus, order.Status)
			}
		})
	}
}

func TestRecharge(t *testing.T) {
	amount := decimal.RequireFromString("100.00")
	txnID := "2024112722001432101234567890"

	tests := []struct {
		name          string
		amount        decimal.Decimal
		txnID         string
		prepareMock   func(w *MockWalletService)
		expectedError error
		replayed      bool
	}{
		{
			name:   "Successful recharge",
			amount: amount,
			txnID:  txnID,
			prepareMock: func(w *MockWalletService) {
				w.EXPECT().Credit(gomock.Any(), int64(1), amount, gomock.Any()).DoAndReturn(
					func(_ context.Context, _ int64, _ decimal.Decimal, entry walletservice.Entry) (*walletservice.Result, error) {
						assert.Equal(t, walletservice.TxnTypeRecharge, entry.Type)
						assert.Equal(t, txnID, *entry.ThirdPartyTxnID)
						return &walletservice.Result{Record: &domain.TransactionRecord{ID: 7}}, nil
					})
			},
		},
		{
			name:   "Replayed confirmation returns the original result",
			amount: amount,
			txnID:  txnID,
			prepareMock: func(w *MockWalletService) {
				w.EXPECT().Credit(gomock.Any(), int64(1), amount, gomock.Any()).
					Return(&walletservice.Result{Record: &domain.TransactionRecord{ID: 7}, Replayed: true}, nil)
			},
			replayed: true,
		},
		{
			name:          "Missing third-party transaction id",
			amount:        amount,
			txnID:         "",
			prepareMock:   func(*MockWalletService) {},
			expectedError: ErrMissingTxnID,
		},
		{
			name:          "Non-positive amount",
			amount:        decimal.RequireFromString("-1"),
			txnID:         txnID,
			prepareMock:   func(*MockWalletService) {},
			expectedError: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, walletService, _, _, txManager := NewMock(t)
			passthroughTx(txManager)
			tt.prepareMock(walletService)

			result, err := service.Recharge(context.Background(), 1, tt.amount, "alipay", tt.txnID)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.replayed, result.Replayed)
				assert.Equal(t, int64(7), result.Record.ID)
			}
		})
	}
}

func TestRefund(t *testing.T) {
	tests := []struct {
		name          string
		prepareMock   func(w *MockWalletService, o *MockOrderService)
		expectedError error
	}{
		{
			name: "Paid order is refunded in full",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.PaidOrderStatus), nil)
				o.EXPECT().RequestRefund(gomock.Any(), gomock.Any(), "game does not launch").
					Return(newOrder(orderservice.RefundRequestedOrderStatus), nil)
				w.EXPECT().Credit(gomock.Any(), int64(1), decimal.RequireFromString("19.99"), gomock.Any()).DoAndReturn(
					func(_ context.Context, _ int64, _ decimal.Decimal, entry walletservice.Entry) (*walletservice.Result, error) {
						assert.Equal(t, walletservice.TxnTypeRefund, entry.Type)
						assert.Equal(t, "refund:4561261212345467", *entry.IdempotencyKey)
						return &walletservice.Result{Record: &domain.TransactionRecord{ID: 8}}, nil
					})
				o.EXPECT().CompleteRefund(gomock.Any(), gomock.Any()).Return(newOrder(orderservice.RefundedOrderStatus), nil)
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.RefundedOrderStatus), nil)
			},
		},
		{
			name: "Interrupted refund resumes from REFUND_REQUESTED",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").
					Return(newOrder(orderservice.RefundRequestedOrderStatus), nil)
				w.EXPECT().Credit(gomock.Any(), int64(1), decimal.RequireFromString("19.99"), gomock.Any()).
					Return(&walletservice.Result{Record: &domain.TransactionRecord{ID: 8}, Replayed: true}, nil)
				o.EXPECT().CompleteRefund(gomock.Any(), gomock.Any()).Return(newOrder(orderservice.RefundedOrderStatus), nil)
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.RefundedOrderStatus), nil)
			},
		},
		{
			name: "Finished refund replays as a no-op",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").
					Return(newOrder(orderservice.RefundedOrderStatus), nil)
			},
		},
		{
			name: "Unpaid order cannot be refunded",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").
					Return(newOrder(orderservice.CreatedOrderStatus), nil)
			},
			expectedError: orderservice.ErrInvalidOrderState,
		},
		{
			name: "Missing order",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").
					Return(nil, orderservice.ErrOrderNotFound)
			},
			expectedError: orderservice.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, walletService, orderService, _, txManager := NewMock(t)
			passthroughTx(txManager)
			tt.prepareMock(walletService, orderService)

			order, err := service.Refund(context.Background(), "4561261212345467", "game does not launch")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, order)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, order)
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name          string
		prepareMock   func(w *MockWalletService, o *MockOrderService)
		expectedError error
	}{
		{
			name: "Unpaid order is cancelled without touching the wallet",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.CreatedOrderStatus), nil)
				o.EXPECT().Cancel(gomock.Any(), gomock.Any(), "changed my mind").
					Return(newOrder(orderservice.CancelledOrderStatus), nil)
			},
		},
		{
			name: "Paid order gets a compensating credit before cancelling",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.PaidOrderStatus), nil)
				w.EXPECT().Credit(gomock.Any(), int64(1), decimal.RequireFromString("19.99"), gomock.Any()).DoAndReturn(
					func(_ context.Context, _ int64, _ decimal.Decimal, entry walletservice.Entry) (*walletservice.Result, error) {
						assert.Equal(t, walletservice.TxnTypeRefund, entry.Type)
						assert.Equal(t, "cancel:4561261212345467", *entry.IdempotencyKey)
						return &walletservice.Result{Record: &domain.TransactionRecord{ID: 9}}, nil
					})
				o.EXPECT().Cancel(gomock.Any(), gomock.Any(), "changed my mind").
					Return(newOrder(orderservice.CancelledOrderStatus), nil)
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.CancelledOrderStatus), nil)
			},
		},
		{
			name: "Completed order cannot be cancelled",
			prepareMock: func(w *MockWalletService, o *MockOrderService) {
				o.EXPECT().GetByOrderNo(gomock.Any(), "4561261212345467").Return(newOrder(orderservice.CompletedOrderStatus), nil)
			},
			expectedError: orderservice.ErrInvalidOrderState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, walletService, orderService, _, txManager := NewMock(t)
			passthroughTx(txManager)
			tt.prepareMock(walletService, orderService)

			order, err := service.CancelOrder(context.Background(), "4561261212345467", "changed my mind")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, order)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, order)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("Transient serialization failure is retried", func(t *testing.T) {
		service, walletService, _, _, txManager := NewMock(t)
		txnID := "retry-1"

		calls := 0
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, fn pg.TransactionalFn) error {
				calls++
				if calls == 1 {
					return &pgconn.PgError{Code: "40001"}
				}
				return fn(ctx)
			}).Times(2)
		walletService.EXPECT().Credit(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).
			Return(&walletservice.Result{Record: &domain.TransactionRecord{ID: 7}}, nil)

		result, err := service.Recharge(context.Background(), 1, decimal.RequireFromString("10"), "alipay", txnID)
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, int64(7), result.Record.ID)
	})

	t.Run("Business errors are not retried", func(t *testing.T) {
		service, walletService, _, _, txManager := NewMock(t)
		passthroughTx(txManager)

		walletService.EXPECT().Credit(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).
			Return(nil, walletservice.ErrWalletFrozen).Times(1)

		_, err := service.Recharge(context.Background(), 1, decimal.RequireFromString("10"), "alipay", "txn-2")
		assert.ErrorIs(t, err, walletservice.ErrWalletFrozen)
	})

	t.Run("Transition state survives a retried attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		walletService := NewMockWalletService(ctrl)
		gameCatalog := NewMockCatalog(ctrl)
		txManager := pg.NewMockTXManager(ctrl)
		orderRepo := orderservice.NewMockRepo(ctrl)
		service := New(walletService, orderservice.New(orderRepo), gameCatalog, txManager, 3)

		amount := decimal.RequireFromString("19.99")
		gameCatalog.EXPECT().GetGame(gomock.Any(), int64(42)).Return(availableGame(), nil)

		var orderNo string
		orderRepo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, order *domain.Order) error {
				order.ID = 7
				orderNo = order.OrderNo
				return nil
			})

		// First commit loses a serialization conflict after fn ran through.
		calls := 0
		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, fn pg.TransactionalFn) error {
				calls++
				if err := fn(ctx); err != nil {
					return err
				}
				if calls == 1 {
					return &pgconn.PgError{Code: "40001"}
				}
				return nil
			}).Times(2)

		walletService.EXPECT().Debit(gomock.Any(), int64(1), amount, gomock.Any()).
			Return(&walletservice.Result{Record: &domain.TransactionRecord{ID: 42}}, nil).Times(2)

		// Every attempt must swap from the persisted CREATED state.
		orderRepo.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), orderservice.CreatedOrderStatus).
			DoAndReturn(func(_ context.Context, order *domain.Order, _ string) (bool, error) {
				assert.Equal(t, orderservice.PaidOrderStatus, order.Status)
				return true, nil
			}).Times(2)

		orderRepo.EXPECT().FindByOrderNo(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, no string) (*domain.Order, error) {
				assert.Equal(t, orderNo, no)
				paid := newOrder(orderservice.PaidOrderStatus)
				paid.OrderNo = no
				return paid, nil
			})

		order, err := service.Purchase(context.Background(), 1, 42, amount, "wallet")
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, orderservice.PaidOrderStatus, order.Status)
	})

	t.Run("Retries are bounded", func(t *testing.T) {
		service, _, _, _, txManager := NewMock(t)

		txManager.EXPECT().Begin(gomock.Any(), gomock.Any()).
			Return(&pgconn.PgError{Code: "40001"}).Times(4)

		_, err := service.Recharge(context.Background(), 1, decimal.RequireFromString("10"), "alipay", "txn-3")
		assert.Error(t, err)
		var pgErr *pgconn.PgError
		assert.True(t, errors.As(err, &pgErr))
	})
}
