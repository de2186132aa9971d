package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID        int64           `db:"id"`
	UserID    int64           `db:"user_id"`
	Balance   decimal.Decimal `db:"balance"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type TransactionRecord struct {
	ID              int64           `db:"id"`
	WalletID        int64           `db:"wallet_id"`
	Type            string          `db:"type"`
	Amount          decimal.Decimal `db:"amount"`
	BalanceAfter    decimal.Decimal `db:"balance_after"`
	Description     string          `db:"description"`
	OrderID         *int64          `db:"order_id"`
	ThirdPartyTxnID *string         `db:"third_party_txn_id"`
	IdempotencyKey  *string         `db:"idempotency_key"`
	CreatedAt       time.Time       `db:"created_at"`
}

type Order struct {
	ID             int64           `db:"id"`
	OrderNo        string          `db:"order_no"`
	UserID         int64           `db:"user_id"`
	GameID         int64           `db:"game_id"`
	OriginalPrice  decimal.Decimal `db:"original_price"`
	FinalPrice     decimal.Decimal `db:"final_price"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	PaymentMethod  string          `db:"payment_method"`
	Status         string          `db:"status"`
	CancelReason   string          `db:"cancel_reason"`
	RefundReason   string          `db:"refund_reason"`
	CreatedAt      time.Time       `db:"created_at"`
	PaidAt         *time.Time      `db:"paid_at"`
	FinishedAt     *time.Time      `db:"finished_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Game is a read-only snapshot resolved from the catalog service.
type Game struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// LedgerCursor points at the last seen transaction of a newest-first page.
// The zero value means "from the top".
type LedgerCursor struct {
	CreatedAt time.Time
	ID        int64
}

func (c LedgerCursor) IsZero() bool {
	return c.ID == 0 && c.CreatedAt.IsZero()
}
