// Package insights generates the market insights shown on the
// dashboard. Insights are derived from the tracked catalog and the
// recorded price history; generation is a seeded random walk, so the
// demo produces plausible movement without any upstream market feed.
package insights

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

// Service generates and serves market insights
type Service struct {
	db      *gorm.DB
	catalog *Catalog
	logger  zerolog.Logger
}

// NewService creates the insights service
func NewService(db *gorm.DB, catalog *Catalog, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		catalog: catalog,
		logger:  logger.With().Str("component", "insights").Logger(),
	}
}

// Catalog returns the tracked market catalog
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Refresh records a new price point for every tracked coin and
// regenerates its insight. The walk is seeded from the refresh time so
// a retried refresh for the same instant is idempotent.
func (s *Service) Refresh(ctx context.Context, at time.Time) error {
	rng := rand.New(rand.NewSource(at.Truncate(time.Minute).UnixNano()))

	for _, coin := range s.catalog.Coins {
		price, change, err := s.nextPrice(ctx, coin, rng)
		if err != nil {
			return err
		}

		point := models.PricePoint{
			Symbol:     coin.Symbol,
			PriceUSD:   price,
			Change24h:  change,
			RecordedAt: at,
		}
		if err := s.db.WithContext(ctx).Create(&point).Error; err != nil {
			return fmt.Errorf("failed to record price point for %s: %w", coin.Symbol, err)
		}

		insight := buildInsight(coin, price, change, at, rng)
		if err := s.db.WithContext(ctx).Create(&insight).Error; err != nil {
			return fmt.Errorf("failed to store insight for %s: %w", coin.Symbol, err)
		}
	}

	s.logger.Info().Int("coins", len(s.catalog.Coins)).Time("at", at).Msg("Market insights refreshed")
	return nil
}

// nextPrice walks from the most recent recorded price, or the catalog
// seed when no history exists yet
func (s *Service) nextPrice(ctx context.Context, coin Coin, rng *rand.Rand) (float64, float64, error) {
	var last models.PricePoint
	err := s.db.WithContext(ctx).
		Where("symbol = ?", coin.Symbol).
		Order("recorded_at DESC").
		First(&last).Error

	base := coin.PriceUSD
	if err == nil {
		base = last.PriceUSD
	} else if err != gorm.ErrRecordNotFound {
		return 0, 0, fmt.Errorf("failed to load price history for %s: %w", coin.Symbol, err)
	}

	// Stablecoins barely move; everything else walks within ±5%
	spread := 0.05
	if coin.PriceUSD >= 0.99 && coin.PriceUSD <= 1.01 {
		spread = 0.001
	}

	change := (rng.Float64()*2 - 1) * spread * 100
	price := base * (1 + change/100)
	return price, change, nil
}

func buildInsight(coin Coin, price, change float64, at time.Time, rng *rand.Rand) models.Insight {
	sentiment := models.SentimentNeutral
	switch {
	case change >= 1.5:
		sentiment = models.SentimentBullish
	case change <= -1.5:
		sentiment = models.SentimentBearish
	}

	confidence := 0.5 + rng.Float64()*0.45

	var summary string
	switch sentiment {
	case models.SentimentBullish:
		summary = fmt.Sprintf("%s is showing upward momentum at $%.2f (%+.2f%% over 24h). Volume patterns suggest continued accumulation.", coin.Name, price, change)
	case models.SentimentBearish:
		summary = fmt.Sprintf("%s is under selling pressure at $%.2f (%+.2f%% over 24h). Support levels are being tested.", coin.Name, price, change)
	default:
		summary = fmt.Sprintf("%s is consolidating around $%.2f (%+.2f%% over 24h). No clear directional signal.", coin.Name, price, change)
	}

	return models.Insight{
		Symbol:      coin.Symbol,
		Sentiment:   sentiment,
		Confidence:  confidence,
		Summary:     summary,
		GeneratedAt: at,
	}
}

// Latest returns the most recent insight per tracked symbol
func (s *Service) Latest(ctx context.Context) ([]models.Insight, error) {
	var result []models.Insight
	for _, coin := range s.catalog.Coins {
		var insight models.Insight
		err := s.db.WithContext(ctx).
			Where("symbol = ?", coin.Symbol).
			Order("generated_at DESC").
			First(&insight).Error
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load insight for %s: %w", coin.Symbol, err)
		}
		result = append(result, insight)
	}
	return result, nil
}

// CurrentPrice returns the latest recorded USD price for a symbol,
// falling back to the catalog seed price
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	coin, ok := s.catalog.Lookup(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown token symbol: %s", symbol)
	}

	var last models.PricePoint
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("recorded_at DESC").
		First(&last).Error
	if err == gorm.ErrRecordNotFound {
		return coin.PriceUSD, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load price for %s: %w", symbol, err)
	}
	return last.PriceUSD, nil
}
