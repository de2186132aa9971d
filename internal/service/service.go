package service

import (
	"github.com/X1aoM1ngTX/game9-sub001/internal/catalog"
	"github.com/X1aoM1ngTX/game9-sub001/internal/config"
	"github.com/X1aoM1ngTX/game9-sub001/internal/pg"
	"github.com/X1aoM1ngTX/game9-sub001/internal/repo"
	orderservice "github.com/X1aoM1ngTX/game9-sub001/internal/service/orderservice"
	"github.com/X1aoM1ngTX/game9-sub001/internal/service/settlement"
	walletservice "github.com/X1aoM1ngTX/game9-sub001/internal/service/walletservice"
)

type Services struct {
	WalletService *walletservice.Service
	OrderService  *orderservice.Service
	Settlement    *settlement.Service
}

func New(cfg *config.Config, repo *repo.Repositories, txManager pg.TXManager, gameCatalog *catalog.Service) *Services {
	walletService := walletservice.New(repo.WalletRepo, repo.LedgerRepo, txManager)
	orderService := orderservice.New(repo.OrderRepo)
	settlementService := settlement.New(walletService, orderService, gameCatalog, txManager, cfg.SettleRetries)

	return &Services{
		WalletService: walletService,
		OrderService:  orderService,
		Settlement:    settlementService,
	}
}
