package insights

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}

	return NewService(db, catalog, zerolog.Nop())
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog.Coins) == 0 {
		t.Fatal("catalog is empty")
	}

	if _, ok := catalog.Lookup("USDT"); !ok {
		t.Error("USDT missing from catalog")
	}
	if _, ok := catalog.Lookup("BTC"); !ok {
		t.Error("BTC missing from catalog")
	}

	def := catalog.DefaultCoin()
	if def.Symbol != "USDT" {
		t.Errorf("default coin = %q, want USDT", def.Symbol)
	}
}

func TestRefresh_RecordsPricesAndInsights(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := svc.Refresh(ctx, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(latest) != len(svc.Catalog().Coins) {
		t.Errorf("got %d insights, want one per coin (%d)", len(latest), len(svc.Catalog().Coins))
	}

	for _, insight := range latest {
		if insight.Confidence < 0.5 || insight.Confidence > 0.95 {
			t.Errorf("%s confidence = %v, want within [0.5, 0.95]", insight.Symbol, insight.Confidence)
		}
		if insight.Summary == "" {
			t.Errorf("%s has empty summary", insight.Symbol)
		}
		switch insight.Sentiment {
		case models.SentimentBullish, models.SentimentBearish, models.SentimentNeutral:
		default:
			t.Errorf("%s sentiment = %q", insight.Symbol, insight.Sentiment)
		}
	}
}

func TestRefresh_WalksFromLastRecordedPrice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := svc.Refresh(ctx, t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p0, err := svc.CurrentPrice(ctx, "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Refresh(ctx, t0.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p1, err := svc.CurrentPrice(ctx, "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Walk stays within ±5% of the previous observation
	if p1 < p0*0.95 || p1 > p0*1.05 {
		t.Errorf("price moved from %v to %v, outside the walk spread", p0, p1)
	}
}

func TestRefresh_StablecoinsBarelyMove(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		if err := svc.Refresh(ctx, at); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	price, err := svc.CurrentPrice(ctx, "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price < 0.98 || price > 1.02 {
		t.Errorf("USDT price = %v, should hold near the peg", price)
	}
}

func TestCurrentPrice_FallsBackToCatalogSeed(t *testing.T) {
	svc := newTestService(t)

	coin, _ := svc.Catalog().Lookup("BTC")
	price, err := svc.CurrentPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != coin.PriceUSD {
		t.Errorf("price = %v, want catalog seed %v", price, coin.PriceUSD)
	}
}

func TestCurrentPrice_UnknownSymbol(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.CurrentPrice(context.Background(), "NOPE"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestLatest_EmptyBeforeFirstRefresh(t *testing.T) {
	svc := newTestService(t)

	latest, err := svc.Latest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(latest) != 0 {
		t.Errorf("got %d insights before any refresh", len(latest))
	}
}
