package expiry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/X1aoM1ngTX/game9-sub001/internal/config"
	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/orderservice"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/settlement"
)

var cancellingOrders sync.Map

type OrderLister interface {
	Expired(ctx context.Context, createdBefore time.Time, limit uint32) ([]domain.Order, error)
}

type Canceller interface {
	Cancel(ctx context.Context, order *domain.Order, reason string) (*domain.Order, error)
}

// Service sweeps unpaid orders past the payment deadline and cancels them.
// A payment confirmation that arrives after the sweep is rejected by the
// order state machine, not silently applied.
type Service struct {
	orders        OrderLister
	canceller     Canceller
	ttl           time.Duration
	limit         uint32
	workerPool    WorkerPoolI
	sweepInterval time.Duration
}

func New(cfg *config.Config, orders OrderLister, canceller Canceller) *Service {
	return &Service{
		orders:        orders,
		canceller:     canceller,
		ttl:           cfg.OrderPaymentTTL,
		limit:         1000,
		workerPool:    NewWorkerPool(10),
		sweepInterval: time.Minute,
	}
}

func (s *Service) Start(ctx context.Context) {
	zap.L().Info("Order expiry sweeper started")
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Context canceled, stopping expiry sweeper")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	deadline := time.Now().Add(-s.ttl)
	orders, err := s.orders.Expired(ctx, deadline, s.limit)
	if err != nil {
		zap.L().Error("Failed to fetch expired orders", zap.Error(err))
		return
	}

	var g errgroup.Group
	for _, order := range orders {
		order := order

		if _, loaded := cancellingOrders.LoadOrStore(order.OrderNo, struct{}{}); loaded {
			continue
		}

		g.Go(func() error {
			err := s.workerPool.AddTask(ctx, func() error {
				defer cancellingOrders.Delete(order.OrderNo)
				return s.cancelExpired(ctx, order)
			})
			if err != nil {
				cancellingOrders.Delete(order.OrderNo)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("Error cancelling expired orders", zap.Error(err))
	}
}

func (s *Service) cancelExpired(ctx context.Context, order domain.Order) error {
	_, err := s.canceller.Cancel(ctx, &order, settlement.CancelReasonPaymentTimeout)
	if err != nil {
		// The order got paid between the scan and the cancel; leave it alone.
		if errors.Is(err, orderservice.ErrInvalidOrderState) {
			return nil
		}
		return err
	}
	zap.L().Info("Cancelled expired order", zap.String("orderNo", order.OrderNo))
	return nil
}
