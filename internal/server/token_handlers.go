package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cryptopilot-dev/cryptopilot/internal/tokens"
)

// GenerateTokensRequest represents the token generation request
type GenerateTokensRequest struct {
	Symbol     string  `json:"symbol" binding:"required" validate:"tokensymbol"`
	Blockchain string  `json:"blockchain" binding:"required"`
	Amount     float64 `json:"amount" binding:"required" validate:"gt=0"`
}

// ConvertTokensRequest represents the token conversion request
type ConvertTokensRequest struct {
	FromSymbol string  `json:"from_symbol" binding:"required" validate:"tokensymbol"`
	ToSymbol   string  `json:"to_symbol" binding:"required" validate:"tokensymbol"`
	Amount     float64 `json:"amount" binding:"required" validate:"gt=0"`
}

// TransferTokensRequest represents the token transfer request
type TransferTokensRequest struct {
	Symbol  string  `json:"symbol" binding:"required" validate:"tokensymbol"`
	Address string  `json:"address" binding:"required"`
	Amount  float64 `json:"amount" binding:"required" validate:"gt=0"`
}

// @Router /api/tokens/balances [get]
func (s *Server) listBalances(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	balances, err := s.tokensService.Balances(c.Request.Context(), sessionData.UserID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list balances")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list balances"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// @Router /api/tokens/generate [post]
func (s *Server) generateTokens(c *gin.Context) {
	var req GenerateTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionData, _ := GetSessionData(c)

	tx, err := s.tokensService.Generate(c.Request.Context(), sessionData.UserID, req.Symbol, req.Blockchain, req.Amount)
	if err != nil {
		s.respondTokenError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// @Router /api/tokens/convert [post]
func (s *Server) convertTokens(c *gin.Context) {
	var req ConvertTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionData, _ := GetSessionData(c)

	tx, err := s.tokensService.Convert(c.Request.Context(), sessionData.UserID, req.FromSymbol, req.ToSymbol, req.Amount)
	if err != nil {
		s.respondTokenError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// @Router /api/tokens/transfer [post]
func (s *Server) transferTokens(c *gin.Context) {
	var req TransferTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionData, _ := GetSessionData(c)

	tx, err := s.tokensService.Transfer(c.Request.Context(), sessionData.UserID, req.Symbol, req.Address, req.Amount)
	if err != nil {
		s.respondTokenError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// @Router /api/transactions [get]
func (s *Server) listTransactions(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := s.tokensService.Transactions(c.Request.Context(), sessionData.UserID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// respondTokenError maps ledger failures onto HTTP statuses. Validation
// problems are 400, insufficient funds is 422, anything else is 500.
func (s *Server) respondTokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tokens.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Insufficient balance"})
	case errors.Is(err, tokens.ErrUnknownSymbol),
		errors.Is(err, tokens.ErrUnknownBlockchain),
		errors.Is(err, tokens.ErrInvalidAmount),
		errors.Is(err, tokens.ErrInvalidAddress),
		errors.Is(err, tokens.ErrSameSymbol):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Msg("Token operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token operation failed"})
	}
}
