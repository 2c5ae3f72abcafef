package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/auth"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

const (
	bearerPrefix      = "Bearer "
	sessionCookieName = "cp_session"
	apiKeyHeader      = "X-API-Key"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrUserNotFound       = errors.New("user not found")
)

func setSession(c *gin.Context, sessionData *auth.SessionData) {
	c.Set("session", sessionData)
}

// GetSessionData returns the authenticated session for the request
func GetSessionData(c *gin.Context) (*auth.SessionData, bool) {
	session, exists := c.Get("session")
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*auth.SessionData)
	return sessionData, ok
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// extractToken pulls a JWT from the Authorization header or, failing
// that, the session cookie set at login. Browsers use the cookie; the
// CLI sends the bearer header.
func extractToken(c *gin.Context) (token, method string, err error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return "", "", ErrInvalidToken
		}
		token = strings.TrimPrefix(authHeader, bearerPrefix)
		if token == "" {
			return "", "", ErrInvalidToken
		}
		return token, "jwt", nil
	}

	if cookie, cookieErr := c.Cookie(sessionCookieName); cookieErr == nil && cookie != "" {
		return cookie, "cookie", nil
	}

	return "", "", ErrMissingCredentials
}

// AuthMiddleware authenticates requests via JWT (header or cookie) or
// via an API key
func AuthMiddleware(db *gorm.DB, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// API key path
		if rawKey := c.GetHeader(apiKeyHeader); rawKey != "" {
			if !authenticateAPIKey(c, db, log, rawKey) {
				return
			}
			c.Next()
			return
		}

		token, method, err := extractToken(c)
		if err != nil {
			respondWithError(c, log, http.StatusUnauthorized, err, "Unauthorized")
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			respondWithError(c, log, http.StatusUnauthorized, ErrInvalidToken, "Invalid or expired token")
			return
		}

		// Verify user exists in database
		var user models.User
		if err := db.Where("id = ?", claims.UserID).First(&user).Error; err != nil {
			respondWithError(c, log, http.StatusUnauthorized, ErrUserNotFound, "User not found")
			return
		}

		setSession(c, &auth.SessionData{
			UserID:     user.ID,
			Email:      user.Email,
			Role:       user.Role,
			AuthMethod: method,
		})

		c.Next()
	}
}

// authenticateAPIKey resolves an API key to its owning user. Expired
// keys are rejected; LastUsedAt is updated best-effort.
func authenticateAPIKey(c *gin.Context, db *gorm.DB, log zerolog.Logger, rawKey string) bool {
	var key models.APIKey
	err := db.Where("key_hash = ?", auth.HashAPIKey(rawKey)).First(&key).Error
	if err != nil {
		respondWithError(c, log, http.StatusUnauthorized, ErrInvalidAPIKey, "Invalid API key")
		return false
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		respondWithError(c, log, http.StatusUnauthorized, ErrInvalidAPIKey, "API key expired")
		return false
	}

	var user models.User
	if err := db.Where("id = ?", key.UserID).First(&user).Error; err != nil {
		respondWithError(c, log, http.StatusUnauthorized, ErrUserNotFound, "User not found")
		return false
	}

	now := time.Now().UTC()
	if err := db.Model(&key).Update("last_used_at", now).Error; err != nil {
		log.Warn().Err(err).Str("key_id", key.ID).Msg("Failed to update key last_used_at")
	}

	role := user.Role
	if key.Permissions != models.PermissionAdmin && role == models.RoleAdmin {
		// Keys never escalate past their own permission level
		role = models.RoleUser
	}

	setSession(c, &auth.SessionData{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       role,
		AuthMethod: "api_key",
	})
	return true
}

// AdminOnlyMiddleware ensures the authenticated user is an admin
func AdminOnlyMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionData, exists := GetSessionData(c)
		if !exists {
			respondWithError(c, log, http.StatusUnauthorized, errors.New("no session"), "Unauthorized")
			return
		}

		if !sessionData.IsAdmin() {
			respondWithError(c, log, http.StatusForbidden, errors.New("not admin"), "Admin access required")
			return
		}

		c.Next()
	}
}
