package walletrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `
        SELECT id, user_id, balance, status, created_at, updated_at
        FROM wallets
        WHERE user_id = $1
    `
	return r.scanWallet(r.db.QueryRow(ctx, query, userID))
}

// GetByUserIDForUpdate locks the wallet row for the rest of the enclosing
// transaction. All balance mutations go through this lock, so concurrent
// read-modify-write cycles on one wallet never interleave.
func (r *Repository) GetByUserIDForUpdate(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `
        SELECT id, user_id, balance, status, created_at, updated_at
        FROM wallets
        WHERE user_id = $1
        FOR UPDATE
    `
	return r.scanWallet(r.db.QueryRow(ctx, query, userID))
}

func (r *Repository) Create(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `
        INSERT INTO wallets (user_id, balance, status)
        VALUES ($1, 0, 'active')
        RETURNING id, user_id, balance, status, created_at, updated_at
    `
	wallet, err := r.scanWallet(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		zap.L().Error("failed to create wallet", zap.Error(err))
		return nil, err
	}
	return wallet, nil
}

// UpdateBalance writes the already-computed balance. The wallets table CHECK
// constraint rejects a negative result even if a caller skips validation.
func (r *Repository) UpdateBalance(ctx context.Context, walletID int64, balance decimal.Decimal) (*domain.Wallet, error) {
	query := `
        UPDATE wallets
        SET balance = $1, updated_at = now()
        WHERE id = $2
        RETURNING id, user_id, balance, status, created_at, updated_at
    `
	wallet, err := r.scanWallet(r.db.QueryRow(ctx, query, balance, walletID))
	if err != nil {
		zap.L().Error("failed to update wallet balance", zap.Error(err))
		return nil, err
	}
	return wallet, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, walletID int64, status string) (*domain.Wallet, error) {
	query := `
        UPDATE wallets
        SET status = $1, updated_at = now()
        WHERE id = $2
        RETURNING id, user_id, balance, status, created_at, updated_at
    `
	wallet, err := r.scanWallet(r.db.QueryRow(ctx, query, status, walletID))
	if err != nil {
		zap.L().Error("failed to update wallet status", zap.Error(err))
		return nil, err
	}
	return wallet, nil
}

func (r *Repository) scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := row.Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.Status, &wallet.CreatedAt, &wallet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}
