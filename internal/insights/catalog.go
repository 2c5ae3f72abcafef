package insights

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Coin is one entry in the tracked market catalog
type Coin struct {
	Name      string  `yaml:"name"`
	Symbol    string  `yaml:"symbol"`
	PriceUSD  float64 `yaml:"price_usd"`
	Change24h float64 `yaml:"change_24h"`
	Rank      int     `yaml:"rank"`
	Default   bool    `yaml:"default,omitempty"`
}

// Catalog is the set of tokens the dashboard tracks
type Catalog struct {
	Coins []Coin `yaml:"coins"`
}

// LoadCatalog parses the embedded market catalog
func LoadCatalog() (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(catalogYAML, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse market catalog: %w", err)
	}
	if len(catalog.Coins) == 0 {
		return nil, fmt.Errorf("market catalog is empty")
	}
	return &catalog, nil
}

// Lookup finds a coin by symbol
func (c *Catalog) Lookup(symbol string) (*Coin, bool) {
	for i := range c.Coins {
		if c.Coins[i].Symbol == symbol {
			return &c.Coins[i], true
		}
	}
	return nil, false
}

// DefaultCoin returns the catalog's default token (USDT in the shipped
// catalog), falling back to the first entry
func (c *Catalog) DefaultCoin() *Coin {
	for i := range c.Coins {
		if c.Coins[i].Default {
			return &c.Coins[i]
		}
	}
	return &c.Coins[0]
}
