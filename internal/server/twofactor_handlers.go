package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cryptopilot-dev/cryptopilot/internal/auth"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

// TOTPCodeRequest carries a six-digit authenticator code
type TOTPCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// @Router /api/2fa/setup [post]
//
// setupTwoFactor provisions a TOTP secret for the user. The secret is
// stored immediately but 2FA stays off until the user proves they can
// produce a valid code via /2fa/enable.
func (s *Server) setupTwoFactor(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if user.TwoFactorEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two-factor authentication is already enabled"})
		return
	}

	setup, err := auth.GenerateTOTPSecret(user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate TOTP secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set up two-factor authentication"})
		return
	}

	if err := s.db.Model(&user).Update("totp_secret", setup.Secret).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store TOTP secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set up two-factor authentication"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret": setup.Secret,
		"url":    setup.URL,
	})
}

// @Router /api/2fa/enable [post]
func (s *Server) enableTwoFactor(c *gin.Context) {
	var req TOTPCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sessionData, _ := GetSessionData(c)

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if user.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Run setup before enabling two-factor authentication"})
		return
	}
	if user.TwoFactorEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two-factor authentication is already enabled"})
		return
	}

	if !auth.VerifyTOTPCode(req.Code, user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid two-factor code"})
		return
	}

	if err := s.db.Model(&user).Update("two_factor_enabled", true).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to enable two-factor")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable two-factor authentication"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Two-factor enabled")
	c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication enabled"})
}

// @Router /api/2fa/disable [post]
func (s *Server) disableTwoFactor(c *gin.Context) {
	var req TOTPCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sessionData, _ := GetSessionData(c)

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if !user.TwoFactorEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two-factor authentication is not enabled"})
		return
	}

	if !auth.VerifyTOTPCode(req.Code, user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid two-factor code"})
		return
	}

	updates := map[string]any{
		"two_factor_enabled": false,
		"totp_secret":        "",
	}
	if err := s.db.Model(&user).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to disable two-factor")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disable two-factor authentication"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Two-factor disabled")
	c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication disabled"})
}
