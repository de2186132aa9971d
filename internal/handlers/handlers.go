package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/X1aoM1ngTX/game9-sub001/docs"
	ordershandlers "github.com/X1aoM1ngTX/game9-sub001/internal/handlers/orders"
	wallethandlers "github.com/X1aoM1ngTX/game9-sub001/internal/handlers/wallet"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/auth"
)

type WalletHandler interface {
	GetWallet(w http.ResponseWriter, r *http.Request)
	Recharge(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
}

type OrderHandler interface {
	Purchase(w http.ResponseWriter, r *http.Request)
	GetOrders(w http.ResponseWriter, r *http.Request)
	GetOrder(w http.ResponseWriter, r *http.Request)
	CancelOrder(w http.ResponseWriter, r *http.Request)
	Refund(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	WalletHandler WalletHandler
	OrderHandler  OrderHandler
}

func New(s *service.Services) *Handlers {
	return &Handlers{
		WalletHandler: wallethandlers.New(s.WalletService, s.Settlement),
		OrderHandler:  ordershandlers.New(s.OrderService, s.Settlement),
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))
	r.Route("/api/user", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware)
			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", h.WalletHandler.GetWallet)
				r.Post("/recharge", h.WalletHandler.Recharge)
				r.Get("/transactions", h.WalletHandler.GetTransactions)
			})
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.OrderHandler.Purchase)
				r.Get("/", h.OrderHandler.GetOrders)
				r.Route("/{orderNo}", func(r chi.Router) {
					r.Get("/", h.OrderHandler.GetOrder)
					r.Post("/cancel", h.OrderHandler.CancelOrder)
					r.Post("/refund", h.OrderHandler.Refund)
				})
			})
		})
	})

	return r
}
