package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/X1aoM1ngTX/game9-sub001/internal/config"
	"github.com/X1aoM1ngTX/game9-sub001/internal/domain"
	"github.com/X1aoM1ngTX/game9-sub001/pkg/clients"
)

const (
	maxRetries    = 3
	retryInterval = time.Second * 1
)

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// Service resolves game ids against the catalog system. The catalog is a
// read-only oracle; nothing here mutates it.
type Service struct {
	url    string
	client clients.HTTPClientI
}

func New(cfg *config.Config, client clients.HTTPClientI) *Service {
	return &Service{
		url:    cfg.CatalogAddress,
		client: client,
	}
}

func (s *Service) GetGame(ctx context.Context, gameID int64) (*domain.Game, error) {
	url := fmt.Sprintf("%s/api/games/%d", s.url, gameID)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		statusCode, respBody, _, err := s.client.Get(ctx, url, nil)
		if err != nil {
			if attempt < maxRetries {
				time.Sleep(retryInterval * time.Duration(attempt))
				continue
			}
			return nil, fmt.Errorf("failed to resolve game %d after %d retries: %w", gameID, maxRetries, err)
		}

		switch statusCode {
		case http.StatusOK:
			var game domain.Game
			if err := json.Unmarshal(respBody, &game); err != nil {
				return nil, fmt.Errorf("failed to parse catalog response: %w", err)
			}
			if game.ID != gameID {
				return nil, fmt.Errorf("game id mismatch: expected %d, got %d", gameID, game.ID)
			}
			return &game, nil
		case http.StatusNotFound:
			return nil, ErrGameNotFound
		default:
			zap.L().Warn("unexpected catalog status code",
				zap.Int("status", statusCode), zap.Int64("gameID", gameID), zap.Int("attempt", attempt))
			if statusCode >= http.StatusInternalServerError && attempt < maxRetries {
				time.Sleep(retryInterval * time.Duration(attempt))
				continue
			}
			return nil, ErrCatalogUnavailable
		}
	}
	return nil, ErrCatalogUnavailable
}
