package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/X1aoM1ngTX/game9-sub001/internal/catalog"
	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/dto"
	orderservice "github.com/X1aoM1ngTX/game9-sub001/internal/service/orderservice"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/settlement"
	walletservice "github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/auth"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/utils"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/validate"
)

type Service interface {
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	GetOrders(ctx context.Context, userID int64) ([]domain.Order, error)
}

type Settlement interface {
	Purchase(ctx context.Context, userID, gameID int64, amount decimal.Decimal, paymentMethod string) (*domain.Order, error)
	Refund(ctx context.Context, orderNo, reason string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderNo, reason string) (*domain.Order, error)
}

type OrderHandler struct {
	orderService Service
	settlement   Settlement
}

func New(orderService Service, settlement Settlement) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		settlement:   settlement,
	}
}

// Purchase godoc
//
//	@Summary		Purchase a game
//	@Description	Create an order and settle it from the wallet in one unit. On insufficient funds the order ends CANCELLED and the wallet stays untouched.
//	@Tags			Orders
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.PurchaseRequestDTO	true	"Purchase payload"
//	@Success		200		{object}	dto.OrderResponseDTO	"Order settled"
//	@Failure		400		{object}	utils.Response			"Malformed request body"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		402		{object}	utils.Response			"Insufficient funds"
//	@Failure		404		{object}	utils.Response			"Game or wallet not found"
//	@Failure		409		{object}	utils.Response			"Game not available"
//	@Failure		422		{object}	utils.Response			"Invalid amount"
//	@Failure		423		{object}	utils.Response			"Wallet is frozen"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/orders [post]
func (h *OrderHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	var req dto.PurchaseRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.settlement.Purchase(r.Context(), userID, req.GameID, req.Amount, req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, walletservice.ErrInsufficientFunds):
			utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, catalog.ErrGameNotFound), errors.Is(err, walletservice.ErrWalletNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, settlement.ErrGameUnavailable):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, settlement.ErrInvalidAmount),
			errors.Is(err, orderservice.ErrInvalidPrice),
			errors.Is(err, orderservice.ErrPriceAboveListed):
			utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, walletservice.ErrWalletFrozen):
			utils.RespondWithError(w, http.StatusLocked, err.Error())
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toOrderDTO(order))
}

// GetOrders godoc
//
//	@Summary		Get orders list for user
//	@Description	Retrieve all orders of the authorized user, newest first.
//	@Tags			Orders
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		dto.OrderResponseDTO
//	@Success		204	{object}	utils.Response	"No data available"
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/user/orders [get]
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	orders, err := h.orderService.GetOrders(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(orders) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No data available")
		return
	}

	var response []dto.OrderResponseDTO
	for i := range orders {
		response = append(response, toOrderDTO(&orders[i]))
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// GetOrder godoc
//
//	@Summary		Get one order
//	@Description	Retrieve a single order by its number.
//	@Tags			Orders
//	@Security		BearerAuth
//	@Produce		json
//	@Param			orderNo	path		string	true	"Order number"
//	@Success		200		{object}	dto.OrderResponseDTO
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		404		{object}	utils.Response	"Order not found"
//	@Failure		422		{object}	utils.Response	"Invalid order number"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/user/orders/{orderNo} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	order, ok := h.ownedOrder(w, r, userID)
	if !ok {
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toOrderDTO(order))
}

// CancelOrder godoc
//
//	@Summary		Cancel an order
//	@Description	Cancel an unpaid order, or a paid one with a compensating refund committed in the same unit.
//	@Tags			Orders
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			orderNo	path		string					true	"Order number"
//	@Param			request	body		dto.CancelOrderRequestDTO	false	"Cancellation reason"
//	@Success		200		{object}	dto.OrderResponseDTO	"Order cancelled"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		404		{object}	utils.Response			"Order not found"
//	@Failure		409		{object}	utils.Response			"Order is in a terminal state"
//	@Failure		422		{object}	utils.Response			"Invalid order number"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/orders/{orderNo}/cancel [post]
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	order, ok := h.ownedOrder(w, r, userID)
	if !ok {
		return
	}

	var req dto.CancelOrderRequestDTO
	_ = json.NewDecoder(r.Body).Decode(&req)

	cancelled, err := h.settlement.CancelOrder(r.Context(), order.OrderNo, req.Reason)
	if err != nil {
		h.respondTransitionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toOrderDTO(cancelled))
}

// Refund godoc
//
//	@Summary		Refund a paid order
//	@Description	Return the full order amount to the wallet and move the order to REFUNDED. Replaying a finished refund returns the refunded order unchanged.
//	@Tags			Orders
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			orderNo	path		string				true	"Order number"
//	@Param			request	body		dto.RefundRequestDTO	false	"Refund reason"
//	@Success		200		{object}	dto.OrderResponseDTO	"Order refunded"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		404		{object}	utils.Response			"Order not found"
//	@Failure		409		{object}	utils.Response			"Order is not refundable"
//	@Failure		422		{object}	utils.Response			"Invalid order number"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/orders/{orderNo}/refund [post]
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	order, ok := h.ownedOrder(w, r, userID)
	if !ok {
		return
	}

	var req dto.RefundRequestDTO
	_ = json.NewDecoder(r.Body).Decode(&req)

	refunded, err := h.settlement.Refund(r.Context(), order.OrderNo, req.Reason)
	if err != nil {
		h.respondTransitionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, toOrderDTO(refunded))
}

// ownedOrder loads the order from the path and hides other users' orders
// behind a 404.
func (h *OrderHandler) ownedOrder(w http.ResponseWriter, r *http.Request, userID int64) (*domain.Order, bool) {
	orderNo := chi.URLParam(r, "orderNo")
	if !validate.IsLuna(orderNo) {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid order number")
		return nil, false
	}

	order, err := h.orderService.GetByOrderNo(r.Context(), orderNo)
	if err != nil {
		if errors.Is(err, orderservice.ErrOrderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	if order.UserID != userID {
		utils.RespondWithError(w, http.StatusNotFound, orderservice.ErrOrderNotFound.Error())
		return nil, false
	}
	return order, true
}

func (h *OrderHandler) respondTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderservice.ErrInvalidOrderState):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orderservice.ErrOrderNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, walletservice.ErrWalletFrozen):
		utils.RespondWithError(w, http.StatusLocked, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func toOrderDTO(order *domain.Order) dto.OrderResponseDTO {
	return dto.OrderResponseDTO{
		OrderNo:        order.OrderNo,
		GameID:         order.GameID,
		OriginalPrice:  order.OriginalPrice,
		FinalPrice:     order.FinalPrice,
		DiscountAmount: order.DiscountAmount,
		PaymentMethod:  order.PaymentMethod,
		Status:         order.Status,
		CancelReason:   order.CancelReason,
		RefundReason:   order.RefundReason,
		CreatedAt:      order.CreatedAt,
		PaidAt:         order.PaidAt,
		FinishedAt:     order.FinishedAt,
	}
}
