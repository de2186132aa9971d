package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseRequestDTO struct {
	GameID        int64           `json:"game_id" example:"42"`
	Amount        decimal.Decimal `json:"amount" example:"19.99"`
	PaymentMethod string          `json:"payment_method" example:"wallet"`
}

type CancelOrderRequestDTO struct {
	Reason string `json:"reason" example:"changed my mind"`
}

type RefundRequestDTO struct {
	Reason string `json:"reason" example:"game does not launch"`
}

type OrderResponseDTO struct {
	OrderNo        string          `json:"order_no" example:"4561261212345467"`
	GameID         int64           `json:"game_id" example:"42"`
	OriginalPrice  decimal.Decimal `json:"original_price" example:"29.99"`
	FinalPrice     decimal.Decimal `json:"final_price" example:"19.99"`
	DiscountAmount decimal.Decimal `json:"discount_amount" example:"10.00"`
	PaymentMethod  string          `json:"payment_method" example:"wallet"`
	Status         string          `json:"status" example:"PAID"`
	CancelReason   string          `json:"cancel_reason,omitempty" example:"insufficient_funds"`
	RefundReason   string          `json:"refund_reason,omitempty" example:"game does not launch"`
	CreatedAt      time.Time       `json:"created_at" example:"2020-12-09T16:09:57+03:00"`
	PaidAt         *time.Time      `json:"paid_at,omitempty" example:"2020-12-09T16:10:57+03:00"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty" example:"2020-12-09T16:11:57+03:00"`
}
