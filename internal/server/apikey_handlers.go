package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cryptopilot-dev/cryptopilot/internal/auth"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

// CreateAPIKeyRequest represents the key creation request
type CreateAPIKeyRequest struct {
	Name        string `json:"name" binding:"required" validate:"min=1,max=64"`
	Permissions string `json:"permissions" validate:"omitempty,oneof=read write admin"`
	ExpiresIn   int    `json:"expires_in_days" validate:"omitempty,min=1,max=365"`
}

// @Router /api/keys [get]
func (s *Server) listAPIKeys(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var keys []models.APIKey
	err := s.db.Where("user_id = ?", sessionData.UserID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list API keys")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// @Router /api/keys [post]
//
// createAPIKey mints a new key. The plaintext is returned exactly once;
// only the hash is stored.
func (s *Server) createAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionData, _ := GetSessionData(c)

	permissions := req.Permissions
	if permissions == "" {
		permissions = models.PermissionRead
	}
	// Only admins can mint admin-scoped keys
	if permissions == models.PermissionAdmin && !sessionData.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required for admin-scoped keys"})
		return
	}

	plaintext, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
		return
	}

	key := models.APIKey{
		UserID:      sessionData.UserID,
		Name:        req.Name,
		Prefix:      prefix,
		KeyHash:     hash,
		Permissions: permissions,
	}
	if req.ExpiresIn > 0 {
		expiresAt := time.Now().AddDate(0, 0, req.ExpiresIn).UTC()
		key.ExpiresAt = &expiresAt
	}

	if err := s.db.Create(&key).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Str("key_id", key.ID).Msg("API key created")
	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"api_key": plaintext,
		"message": "Store this key now; it will not be shown again",
	})
}

// @Router /api/keys/{id} [delete]
func (s *Server) deleteAPIKey(c *gin.Context) {
	sessionData, _ := GetSessionData(c)
	keyID := c.Param("id")

	var key models.APIKey
	err := s.db.Where("id = ? AND user_id = ?", keyID, sessionData.UserID).First(&key).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	if err := s.db.Delete(&key).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke API key"})
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Str("key_id", keyID).Msg("API key revoked")
	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}
