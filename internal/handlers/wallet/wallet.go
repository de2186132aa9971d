package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/dto"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/settlement"
	walletservice "github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/auth"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/utils"
)

type Service interface {
	GetBalance(ctx context.Context, userID int64) (*domain.Wallet, error)
	Transactions(ctx context.Context, userID int64, cursor domain.LedgerCursor, limit int) ([]domain.TransactionRecord, error)
}

type Settlement interface {
	Recharge(ctx context.Context, userID int64, amount decimal.Decimal, paymentMethod, thirdPartyTxnID string) (*walletservice.Result, error)
}

type WalletHandler struct {
	walletService Service
	settlement    Settlement
}

func New(walletService Service, settlement Settlement) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		settlement:    settlement,
	}
}

// GetWallet godoc
//
//	@Summary		Get current wallet state
//	@Description	Retrieve the wallet balance and status for the authenticated user.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	dto.WalletResponseDTO	"Current wallet snapshot"
//	@Failure		401	{object}	utils.Response			"User not authorized"
//	@Failure		404	{object}	utils.Response			"Wallet not found"
//	@Failure		500	{object}	utils.Response			"Internal server error"
//	@Router			/api/user/wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	wallet, err := h.walletService.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, walletservice.ErrWalletNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.WalletResponseDTO{
		Balance:   wallet.Balance,
		Status:    wallet.Status,
		UpdatedAt: wallet.UpdatedAt,
	})
}

// Recharge godoc
//
//	@Summary		Recharge the wallet
//	@Description	Credit externally confirmed funds to the wallet. Replaying the same third-party transaction id returns the original result.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.RechargeRequestDTO	true	"Recharge payload"
//	@Success		200		{object}	dto.RechargeResponseDTO	"Recharge settled"
//	@Failure		400		{object}	utils.Response			"Malformed request body"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		404		{object}	utils.Response			"Wallet not found"
//	@Failure		422		{object}	utils.Response			"Invalid amount or transaction id"
//	@Failure		423		{object}	utils.Response			"Wallet is frozen"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/wallet/recharge [post]
func (h *WalletHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	var req dto.RechargeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.settlement.Recharge(r.Context(), userID, req.Amount, req.PaymentMethod, req.ThirdPartyTxnID)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrInvalidAmount), errors.Is(err, settlement.ErrMissingTxnID):
			utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, walletservice.ErrWalletNotFound):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, walletservice.ErrWalletFrozen):
			utils.RespondWithError(w, http.StatusLocked, err.Error())
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.RechargeResponseDTO{
		TransactionID: result.Record.ID,
		Balance:       result.Wallet.Balance,
	})
}

// GetTransactions godoc
//
//	@Summary		Get wallet transaction history
//	@Description	One newest-first page of the wallet ledger. Pass the returned cursor to continue.
//	@Tags			Wallet
//	@Security		BearerAuth
//	@Produce		json
//	@Param			cursor	query		string	false	"Cursor from the previous page"
//	@Param			limit	query		int		false	"Page size"
//	@Success		200		{object}	dto.TransactionsPageDTO	"Transactions page"
//	@Success		204		{object}	utils.Response			"No transactions"
//	@Failure		400		{object}	utils.Response			"Malformed cursor"
//	@Failure		401		{object}	utils.Response			"User not authorized"
//	@Failure		404		{object}	utils.Response			"Wallet not found"
//	@Failure		500		{object}	utils.Response			"Internal server error"
//	@Router			/api/user/wallet/transactions [get]
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(int64)

	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.walletService.Transactions(r.Context(), userID, cursor, limit)
	if err != nil {
		if errors.Is(err, walletservice.ErrWalletNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	if len(records) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No transactions")
		return
	}

	page := dto.TransactionsPageDTO{
		Transactions: make([]dto.TransactionResponseDTO, len(records)),
	}
	for i, record := range records {
		page.Transactions[i] = dto.TransactionResponseDTO{
			ID:           record.ID,
			Type:         record.Type,
			Amount:       record.Amount,
			BalanceAfter: record.BalanceAfter,
			Description:  record.Description,
			OrderID:      record.OrderID,
			CreatedAt:    record.CreatedAt,
		}
	}
	last := records[len(records)-1]
	page.NextCursor = formatCursor(domain.LedgerCursor{CreatedAt: last.CreatedAt, ID: last.ID})

	utils.RespondWithJSON(w, http.StatusOK, page)
}

func parseCursor(raw string) (domain.LedgerCursor, error) {
	if raw == "" {
		return domain.LedgerCursor{}, nil
	}
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return domain.LedgerCursor{}, errors.New("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return domain.LedgerCursor{}, err
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.LedgerCursor{}, err
	}
	return domain.LedgerCursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

func formatCursor(cursor domain.LedgerCursor) string {
	return fmt.Sprintf("%d:%d", cursor.CreatedAt.UnixNano(), cursor.ID)
}
