package walletservice

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
	ledgerrepo "github.com/X1aoM1ngTX/game9-sub001/internal/repo/ledger-repo"
)

const (
	// WalletStatusActive wallet accepts debits and credits;
	WalletStatusActive string = "active"
	// WalletStatusFrozen wallet rejects all mutations until unfrozen;
	WalletStatusFrozen string = "frozen"
	// WalletStatusClosed wallet is retired and rejects all mutations;
	WalletStatusClosed string = "closed"
)

const (
	TxnTypeRecharge   string = "recharge"
	TxnTypeConsume    string = "consume"
	TxnTypeRefund     string = "refund"
	TxnTypeAdjustment string = "adjustment"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletFrozen      = errors.New("wallet is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type WalletRepo interface {
	GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, userID int64) (*domain.Wallet, error)
	Create(ctx context.Context, userID int64) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, walletID int64, balance decimal.Decimal) (*domain.Wallet, error)
	UpdateStatus(ctx context.Context, walletID int64, status string) (*domain.Wallet, error)
}

type LedgerRepo interface {
	Append(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionRecord, error)
	FindByThirdPartyTxnID(ctx context.Context, thirdPartyTxnID string) (*domain.TransactionRecord, error)
	ListByWallet(ctx context.Context, walletID int64, cursor domain.LedgerCursor, limit int) ([]domain.TransactionRecord, error)
}

// Entry describes the ledger record a mutation writes alongside the balance
// change. At least one of IdempotencyKey and ThirdPartyTxnID should be set so
// a retried call settles exactly once.
type Entry struct {
	Type            string
	Description     string
	OrderID         *int64
	ThirdPartyTxnID *string
	IdempotencyKey  *string
}

// Result is the committed outcome of a debit or credit. Replayed marks a
// deduplicated retry: Record is the original ledger entry and no balance
// change was reapplied.
type Result struct {
	Wallet   *domain.Wallet
	Record   *domain.TransactionRecord
	Replayed bool
}

type Service struct {
	walletRepo WalletRepo
	ledgerRepo LedgerRepo
	txManager  pg.TXManager
}

func New(walletRepo WalletRepo, ledgerRepo LedgerRepo, txManager pg.TXManager) *Service {
	return &Service{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		txManager:  txManager,
	}
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get wallet", zap.Error(err))
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) CreateWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.Create(ctx, userID)
	if err != nil {
		if _, ok := pg.UniqueViolation(err); ok {
			return s.GetBalance(ctx, userID)
		}
		zap.L().Error("failed to create wallet", zap.Error(err))
		return nil, err
	}
	return wallet, nil
}

// Debit withdraws amount from the user's wallet and appends the matching
// ledger record in one transaction. A repeat of an already-settled entry
// returns the original outcome without touching the balance.
func (s *Service) Debit(ctx context.Context, userID int64, amount decimal.Decimal, entry Entry) (*Result, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.mutate(ctx, userID, entry, func(wallet *domain.Wallet) (decimal.Decimal, decimal.Decimal, error) {
		if wallet.Balance.LessThan(amount) {
			return decimal.Decimal{}, decimal.Decimal{}, ErrInsufficientFunds
		}
		return wallet.Balance.Sub(amount), amount.Neg(), nil
	})
}

// Credit deposits amount into the user's wallet with the same atomicity and
// idempotency guarantees as Debit.
func (s *Service) Credit(ctx context.Context, userID int64, amount decimal.Decimal, entry Entry) (*Result, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.mutate(ctx, userID, entry, func(wallet *domain.Wallet) (decimal.Decimal, decimal.Decimal, error) {
		return wallet.Balance.Add(amount), amount, nil
	})
}

// mutate runs the read-check-write cycle under the wallet row lock. The
// balance update and the ledger append commit together or not at all.
func (s *Service) mutate(ctx context.Context, userID int64, entry Entry, apply func(*domain.Wallet) (newBalance, delta decimal.Decimal, err error)) (*Result, error) {
	var result *Result
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}
		if wallet.Status != WalletStatusActive {
			return ErrWalletFrozen
		}

		newBalance, delta, err := apply(wallet)
		if err != nil {
			return err
		}

		updated, err := s.walletRepo.UpdateBalance(ctx, wallet.ID, newBalance)
		if err != nil {
			return err
		}

		record, err := s.ledgerRepo.Append(ctx, &domain.TransactionRecord{
			WalletID:        wallet.ID,
			Type:            entry.Type,
			Amount:          delta,
			BalanceAfter:    newBalance,
			Description:     entry.Description,
			OrderID:         entry.OrderID,
			ThirdPartyTxnID: entry.ThirdPartyTxnID,
			IdempotencyKey:  entry.IdempotencyKey,
		})
		if err != nil {
			return err
		}

		result = &Result{Wallet: updated, Record: record}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrDuplicateIdempotencyKey) || errors.Is(err, ledgerrepo.ErrDuplicateThirdPartyTxn) {
			return s.replayed(ctx, userID, entry)
		}
		return nil, err
	}
	return result, nil
}

// replayed recovers the original outcome after a duplicate entry aborted the
// transaction.
func (s *Service) replayed(ctx context.Context, userID int64, entry Entry) (*Result, error) {
	var (
		record *domain.TransactionRecord
		err    error
	)
	switch {
	case entry.IdempotencyKey != nil:
		record, err = s.ledgerRepo.FindByIdempotencyKey(ctx, *entry.IdempotencyKey)
	case entry.ThirdPartyTxnID != nil:
		record, err = s.ledgerRepo.FindByThirdPartyTxnID(ctx, *entry.ThirdPartyTxnID)
	}
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("settled transaction record disappeared")
	}
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("duplicate settlement request, returning original result",
		zap.Int64("userID", userID), zap.Int64("transactionID", record.ID))
	return &Result{Wallet: wallet, Record: record, Replayed: true}, nil
}

func (s *Service) Freeze(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return s.setStatus(ctx, userID, WalletStatusFrozen)
}

func (s *Service) Unfreeze(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return s.setStatus(ctx, userID, WalletStatusActive)
}

func (s *Service) setStatus(ctx context.Context, userID int64, status string) (*domain.Wallet, error) {
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.walletRepo.UpdateStatus(ctx, wallet.ID, status)
	if err != nil {
		zap.L().Error("failed to update wallet status", zap.Error(err))
		return nil, err
	}
	return updated, nil
}

// Transactions returns one page of the wallet's ledger, newest first.
func (s *Service) Transactions(ctx context.Context, userID int64, cursor domain.LedgerCursor, limit int) ([]domain.TransactionRecord, error) {
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	records, err := s.ledgerRepo.ListByWallet(ctx, wallet.ID, cursor, limit)
	if err != nil {
		zap.L().Error("failed to list transactions", zap.Error(err))
		return nil, err
	}
	return records, nil
}
