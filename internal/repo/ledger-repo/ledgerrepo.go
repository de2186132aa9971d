package ledgerrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
)

const (
	idempotencyKeyConstraint = "transactions_idempotency_key_key"
	thirdPartyTxnConstraint  = "transactions_third_party_txn_id_key"
)

var (
	// ErrDuplicateIdempotencyKey means this exact request was already settled.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")
	// ErrDuplicateThirdPartyTxn means the external confirmation was already settled.
	ErrDuplicateThirdPartyTxn = errors.New("third-party transaction already recorded")
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

// Append inserts an immutable ledger record. Duplicate idempotency keys and
// third-party transaction ids are refused by unique indexes at commit time,
// not by a check-then-insert, which closes the duplicate-settlement race.
func (r *Repository) Append(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	query := `
        INSERT INTO transactions (wallet_id, type, amount, balance_after, description, order_id, third_party_txn_id, idempotency_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		record.WalletID, record.Type, record.Amount, record.BalanceAfter,
		record.Description, record.OrderID, record.ThirdPartyTxnID, record.IdempotencyKey,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		if constraint, ok := pg.UniqueViolation(err); ok {
			switch constraint {
			case idempotencyKeyConstraint:
				return nil, ErrDuplicateIdempotencyKey
			case thirdPartyTxnConstraint:
				return nil, ErrDuplicateThirdPartyTxn
			}
		}
		zap.L().Error("can't append transaction record", zap.Error(err))
		return nil, err
	}
	return record, nil
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionRecord, error) {
	query := `
        SELECT id, wallet_id, type, amount, balance_after, description, order_id, third_party_txn_id, idempotency_key, created_at
        FROM transactions
        WHERE idempotency_key = $1
    `
	return r.scanRecord(r.db.QueryRow(ctx, query, key))
}

func (r *Repository) FindByThirdPartyTxnID(ctx context.Context, thirdPartyTxnID string) (*domain.TransactionRecord, error) {
	query := `
        SELECT id, wallet_id, type, amount, balance_after, description, order_id, third_party_txn_id, idempotency_key, created_at
        FROM transactions
        WHERE third_party_txn_id = $1
    `
	return r.scanRecord(r.db.QueryRow(ctx, query, thirdPartyTxnID))
}

// ListByWallet returns one newest-first page. The cursor is the last record
// of the previous page, so the sequence is restartable and stable under
// concurrent appends.
func (r *Repository) ListByWallet(ctx context.Context, walletID int64, cursor domain.LedgerCursor, limit int) ([]domain.TransactionRecord, error) {
	query := `
        SELECT id, wallet_id, type, amount, balance_after, description, order_id, third_party_txn_id, idempotency_key, created_at
        FROM transactions
        WHERE wallet_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `
	args := []any{walletID, limit}
	if !cursor.IsZero() {
		query = `
        SELECT id, wallet_id, type, amount, balance_after, description, order_id, third_party_txn_id, idempotency_key, created_at
        FROM transactions
        WHERE wallet_id = $1 AND (created_at, id) < ($2, $3)
        ORDER BY created_at DESC, id DESC
        LIMIT $4
    `
		args = []any{walletID, cursor.CreatedAt, cursor.ID, limit}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		zap.L().Error("can't list transaction records", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		var record domain.TransactionRecord
		err := rows.Scan(
			&record.ID, &record.WalletID, &record.Type, &record.Amount, &record.BalanceAfter,
			&record.Description, &record.OrderID, &record.ThirdPartyTxnID, &record.IdempotencyKey, &record.CreatedAt,
		)
		if err != nil {
			zap.L().Error("can't scan transaction record row", zap.Error(err))
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Repository) scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	var record domain.TransactionRecord
	err := row.Scan(
		&record.ID, &record.WalletID, &record.Type, &record.Amount, &record.BalanceAfter,
		&record.Description, &record.OrderID, &record.ThirdPartyTxnID, &record.IdempotencyKey, &record.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find transaction record", zap.Error(err))
		return nil, err
	}
	return &record, nil
}
