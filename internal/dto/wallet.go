package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletResponseDTO struct {
	Balance   decimal.Decimal `json:"balance" example:"500.50"`
	Status    string          `json:"status" example:"active"`
	UpdatedAt time.Time       `json:"updated_at" example:"2020-12-09T16:09:57+03:00"`
}

type RechargeRequestDTO struct {
	Amount          decimal.Decimal `json:"amount" example:"100.00"`
	PaymentMethod   string          `json:"payment_method" example:"alipay"`
	ThirdPartyTxnID string          `json:"third_party_txn_id" example:"2024112722001432101234567890"`
}

type RechargeResponseDTO struct {
	TransactionID int64           `json:"transaction_id" example:"42"`
	Balance       decimal.Decimal `json:"balance" example:"600.50"`
}

type TransactionResponseDTO struct {
	ID           int64           `json:"id" example:"42"`
	Type         string          `json:"type" example:"consume"`
	Amount       decimal.Decimal `json:"amount" example:"-19.99"`
	BalanceAfter decimal.Decimal `json:"balance_after" example:"480.51"`
	Description  string          `json:"description,omitempty" example:"purchase of Elden Ring (order 4561261212345467)"`
	OrderID      *int64          `json:"order_id,omitempty" example:"7"`
	CreatedAt    time.Time       `json:"created_at" example:"2020-12-09T16:09:57+03:00"`
}

type TransactionsPageDTO struct {
	Transactions []TransactionResponseDTO `json:"transactions"`
	NextCursor   string                   `json:"next_cursor,omitempty" example:"1607526597000000000:42"`
}
