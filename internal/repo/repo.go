package repo

import (
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
	ledgerrepo "github.com/X1aoM1ngTX/game9-sub001/internal/repo/ledger-repo"
	orderrepo "github.com/X1aoM1ngTX/game9-sub001/internal/repo/order-repo"
	walletrepo "github.com/X1aoM1ngTX/game9-sub001/internal/repo/wallet-repo"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/orderservice"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
)

type Repositories struct {
	WalletRepo walletservice.WalletRepo
	LedgerRepo walletservice.LedgerRepo
	OrderRepo  orderservice.Repo
}

func New(conn pg.Database) *Repositories {
	walletRepo := walletrepo.New(conn)
	ledgerRepo := ledgerrepo.New(conn)
	orderRepo := orderrepo.New(conn)

	return &Repositories{
		WalletRepo: walletRepo,
		LedgerRepo: ledgerRepo,
		OrderRepo:  orderRepo,
	}
}
