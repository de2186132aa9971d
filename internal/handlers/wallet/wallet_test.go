package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/dto"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/settlement"
	walletservice "github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/auth"
)

func NewMock(t *testing.T) (*WalletHandler, *MockService, *MockSettlement) {
	ctrl := gomock.NewController(t)
	service := NewMockService(ctrl)
	settlementMock := NewMockSettlement(ctrl)
	handler := New(service, settlementMock)
	defer ctrl.Finish()
	return handler, service, settlementMock
}

func authCtx() context.Context {
	return context.WithValue(context.Background(), auth.UserIDKey, int64(1))
}

func TestGetWalletHandler(t *testing.T) {
	handler, service, _ := NewMock(t)

	tests := []struct {
		name         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Successful retrieval",
			prepareMock: func() {
				service.EXPECT().
					GetBalance(gomock.Any(), int64(1)).
					Return(&domain.Wallet{
						Balance: decimal.RequireFromString("100.50"),
						Status:  "active",
					}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Wallet not found",
			prepareMock: func() {
				service.EXPECT().
					GetBalance(gomock.Any(), int64(1)).
					Return(nil, walletservice.ErrWalletNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name: "Internal server error",
			prepareMock: func() {
				service.EXPECT().
					GetBalance(gomock.Any(), int64(1)).
					Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := httptest.NewRequest(http.MethodGet, "/api/user/wallet", nil)
			r = r.WithContext(authCtx())
			w := httptest.NewRecorder()
			handler.GetWallet(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.WalletResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.True(t, body.Balance.Equal(decimal.RequireFromString("100.50")))
				assert.Equal(t, "active", body.Status)
			}
		})
	}
}

func TestRechargeHandler(t *testing.T) {
	handler, _, settlementMock := NewMock(t)

	tests := []struct {
		name         string
		body         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Successful recharge",
			body: `{"amount":"100.00","payment_method":"alipay","third_party_txn_id":"txn-1"}`,
			prepareMock: func() {
				settlementMock.EXPECT().
					Recharge(gomock.Any(), int64(1), decimal.RequireFromString("100.00"), "alipay", "txn-1").
					Return(&walletservice.Result{
						Wallet: &domain.Wallet{Balance: decimal.RequireFromString("200.00")},
						Record: &domain.TransactionRecord{ID: 7},
					}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "Malformed body",
			body:         `{`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Missing transaction id",
			body: `{"amount":"100.00","payment_method":"alipay"}`,
			prepareMock: func() {
				settlementMock.EXPECT().
					Recharge(gomock.Any(), int64(1), decimal.RequireFromString("100.00"), "alipay", "").
					Return(nil, settlement.ErrMissingTxnID)
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "Frozen wallet",
			body: `{"amount":"100.00","payment_method":"alipay","third_party_txn_id":"txn-1"}`,
			prepareMock: func() {
				settlementMock.EXPECT().
					Recharge(gomock.Any(), int64(1), decimal.RequireFromString("100.00"), "alipay", "txn-1").
					Return(nil, walletservice.ErrWalletFrozen)
			},
			expectedCode: http.StatusLocked,
		},
		{
			name: "Wallet not found",
			body: `{"amount":"100.00","payment_method":"alipay","third_party_txn_id":"txn-1"}`,
			prepareMock: func() {
				settlementMock.EXPECT().
					Recharge(gomock.Any(), int64(1), decimal.RequireFromString("100.00"), "alipay", "txn-1").
					Return(nil, walletservice.ErrWalletNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := httptest.NewRequest(http.MethodPost, "/api/user/wallet/recharge", bytes.NewBufferString(tt.body))
			r = r.WithContext(authCtx())
			w := httptest.NewRecorder()
			handler.Recharge(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.RechargeResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, int64(7), body.TransactionID)
				assert.True(t, body.Balance.Equal(decimal.RequireFromString("200.00")))
			}
		})
	}
}

func TestGetTransactionsHandler(t *testing.T) {
	handler, service, _ := NewMock(t)
	now := time.Now()

	tests := []struct {
		name         string
		target       string
		prepareMock  func()
		expectedCode int
	}{
		{
			name:   "Returns a page with cursor",
			target: "/api/user/wallet/transactions",
			prepareMock: func() {
				service.EXPECT().
					Transactions(gomock.Any(), int64(1), domain.LedgerCursor{}, 0).
					Return([]domain.TransactionRecord{
						{ID: 2, Type: "recharge", Amount: decimal.RequireFromString("100.00"), CreatedAt: now},
						{ID: 1, Type: "consume", Amount: decimal.RequireFromString("-19.99"), CreatedAt: now.Add(-time.Minute)},
					}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "Malformed cursor",
			target:       "/api/user/wallet/transactions?cursor=bogus",
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:   "No transactions",
			target: "/api/user/wallet/transactions",
			prepareMock: func() {
				service.EXPECT().
					Transactions(gomock.Any(), int64(1), domain.LedgerCursor{}, 0).
					Return(nil, nil)
			},
			expectedCode: http.StatusNoContent,
		},
		{
			name:   "Wallet not found",
			target: "/api/user/wallet/transactions",
			prepareMock: func() {
				service.EXPECT().
					Transactions(gomock.Any(), int64(1), domain.LedgerCursor{}, 0).
					Return(nil, walletservice.ErrWalletNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			r = r.WithContext(authCtx())
			w := httptest.NewRecorder()
			handler.GetTransactions(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.TransactionsPageDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Len(t, body.Transactions, 2)
				assert.NotEmpty(t, body.NextCursor)
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := domain.LedgerCursor{CreatedAt: time.Unix(0, 1607526597000000000).UTC(), ID: 42}
	parsed, err := parseCursor(formatCursor(cursor))
	assert.NoError(t, err)
	assert.Equal(t, cursor, parsed)

	_, err = parseCursor("no-separator")
	assert.Error(t, err)
	_, err = parseCursor("abc:def")
	assert.Error(t, err)
}
