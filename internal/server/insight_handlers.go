package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

// @Router /api/insights [get]
func (s *Server) listInsights(c *gin.Context) {
	insights, err := s.insightsService.Latest(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list insights")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list insights"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

// marketEntry is one row of the market overview
type marketEntry struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
	Rank      int     `json:"rank"`
	Default   bool    `json:"default,omitempty"`
}

// @Router /api/market [get]
//
// listMarket returns the tracked catalog with the latest recorded
// prices. Before the first refresh the seed values are served.
func (s *Server) listMarket(c *gin.Context) {
	catalog := s.insightsService.Catalog()

	entries := make([]marketEntry, 0, len(catalog.Coins))
	for _, coin := range catalog.Coins {
		entry := marketEntry{
			Name:      coin.Name,
			Symbol:    coin.Symbol,
			PriceUSD:  coin.PriceUSD,
			Change24h: coin.Change24h,
			Rank:      coin.Rank,
			Default:   coin.Default,
		}

		var last models.PricePoint
		err := s.db.Where("symbol = ?", coin.Symbol).
			Order("recorded_at DESC").
			First(&last).Error
		if err == nil {
			entry.PriceUSD = last.PriceUSD
			entry.Change24h = last.Change24h
		}

		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{"market": entries})
}
