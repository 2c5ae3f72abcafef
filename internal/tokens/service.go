// Package tokens implements the flash token operations: generating
// demo tokens, converting between symbols at catalog rates, and
// recording transfers in the append-only ledger.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/insights"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

// Supported target blockchains for generated tokens
var supportedBlockchains = map[string]bool{
	"ethereum": true,
	"binance":  true,
	"tron":     true,
	"solana":   true,
	"polygon":  true,
}

// transferFeeRate is the flat demo fee charged on transfers
const transferFeeRate = 0.001

var addressPattern = regexp.MustCompile(`^(0x[0-9a-fA-F]{40}|T[1-9A-HJ-NP-Za-km-z]{33})$`)

var (
	ErrUnknownSymbol       = errors.New("unknown token symbol")
	ErrUnknownBlockchain   = errors.New("unsupported blockchain")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAddress      = errors.New("invalid destination address")
	ErrSameSymbol          = errors.New("conversion requires two different symbols")
)

// Service implements token operations against the ledger
type Service struct {
	db       *gorm.DB
	insights *insights.Service
	logger   zerolog.Logger
}

// NewService creates the token service
func NewService(db *gorm.DB, insightsService *insights.Service, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		insights: insightsService,
		logger:   logger.With().Str("component", "tokens").Logger(),
	}
}

// Generate mints demo tokens into the user's balance and records the
// ledger entry
func (s *Service) Generate(ctx context.Context, userID, symbol, blockchain string, amount float64) (*models.TokenTransaction, error) {
	symbol = strings.ToUpper(symbol)
	if _, ok := s.insights.Catalog().Lookup(symbol); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if !supportedBlockchains[strings.ToLower(blockchain)] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockchain, blockchain)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx := &models.TokenTransaction{
		UserID:     userID,
		Type:       models.TxGenerate,
		Symbol:     symbol,
		Amount:     amount,
		Blockchain: strings.ToLower(blockchain),
		Status:     models.TxStatusCompleted,
	}

	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := adjustBalance(dbtx, userID, symbol, amount); err != nil {
			return err
		}
		return dbtx.Create(tx).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("symbol", symbol).
		Float64("amount", amount).
		Msg("Tokens generated")
	return tx, nil
}

// Convert exchanges between two symbols at the current catalog rate
func (s *Service) Convert(ctx context.Context, userID, fromSymbol, toSymbol string, amount float64) (*models.TokenTransaction, error) {
	fromSymbol = strings.ToUpper(fromSymbol)
	toSymbol = strings.ToUpper(toSymbol)
	if fromSymbol == toSymbol {
		return nil, ErrSameSymbol
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	fromPrice, err := s.insights.CurrentPrice(ctx, fromSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, fromSymbol)
	}
	toPrice, err := s.insights.CurrentPrice(ctx, toSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, toSymbol)
	}

	received := amount * fromPrice / toPrice

	tx := &models.TokenTransaction{
		UserID:        userID,
		Type:          models.TxConvert,
		Symbol:        fromSymbol,
		Amount:        amount,
		CounterSymbol: toSymbol,
		CounterAmount: received,
		Status:        models.TxStatusCompleted,
	}

	err = s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := adjustBalance(dbtx, userID, fromSymbol, -amount); err != nil {
			return err
		}
		if err := adjustBalance(dbtx, userID, toSymbol, received); err != nil {
			return err
		}
		return dbtx.Create(tx).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("from", fromSymbol).
		Str("to", toSymbol).
		Float64("amount", amount).
		Float64("received", received).
		Msg("Tokens converted")
	return tx, nil
}

// Transfer debits the user's balance toward an external address. No
// chain interaction happens; the transfer is a ledger entry.
func (s *Service) Transfer(ctx context.Context, userID, symbol, address string, amount float64) (*models.TokenTransaction, error) {
	symbol = strings.ToUpper(symbol)
	if _, ok := s.insights.Catalog().Lookup(symbol); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !addressPattern.MatchString(address) {
		return nil, ErrInvalidAddress
	}

	fee := amount * transferFeeRate
	tx := &models.TokenTransaction{
		UserID:  userID,
		Type:    models.TxTransfer,
		Symbol:  symbol,
		Amount:  amount,
		Address: address,
		Fee:     fee,
		Status:  models.TxStatusCompleted,
	}

	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := adjustBalance(dbtx, userID, symbol, -(amount + fee)); err != nil {
			return err
		}
		return dbtx.Create(tx).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("symbol", symbol).
		Str("address", address).
		Float64("amount", amount).
		Msg("Tokens transferred")
	return tx, nil
}

// Balances returns the user's non-zero balances
func (s *Service) Balances(ctx context.Context, userID string) ([]models.TokenBalance, error) {
	var balances []models.TokenBalance
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND amount > 0", userID).
		Order("symbol ASC").
		Find(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return balances, nil
}

// Transactions returns the user's ledger, newest first
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]models.TokenTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []models.TokenTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// adjustBalance applies a delta to the (user, symbol) balance row,
// creating it on first credit and refusing debits past zero
func adjustBalance(dbtx *gorm.DB, userID, symbol string, delta float64) error {
	var balance models.TokenBalance
	err := dbtx.Where("user_id = ? AND symbol = ?", userID, symbol).First(&balance).Error
	if err == gorm.ErrRecordNotFound {
		if delta < 0 {
			return ErrInsufficientBalance
		}
		balance = models.TokenBalance{UserID: userID, Symbol: symbol, Amount: delta}
		return dbtx.Create(&balance).Error
	}
	if err != nil {
		return fmt.Errorf("failed to load balance: %w", err)
	}

	next := balance.Amount + delta
	if next < 0 {
		return ErrInsufficientBalance
	}
	return dbtx.Model(&balance).Update("amount", next).Error
}
