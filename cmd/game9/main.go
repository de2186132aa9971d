package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/X1aoM1ngTX/game9-sub001/internal/app"
)

// @title Game9 Wallet & Settlement API
// @version 1.0
// @description Wallet ledger and order settlement service for the game marketplace.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application := app.New()
	if err := application.Start(ctx); err != nil {
		log.Fatal().Msgf("Failed to start application: %v", err)
	}
	if err := application.Wait(ctx, cancel); err != nil {
		log.Fatal().Msgf("Application ended with error: %v", err)
	}
}
