package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/auth"
	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
	"github.com/cryptopilot-dev/cryptopilot/internal/tasks"
)

const (
	sessionTTL          = 24 * time.Hour
	verificationTTL     = 48 * time.Hour
	verificationBacklog = 3 // max outstanding tokens per user
)

// LoginRequest represents the direct login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

// RegisterRequest represents the direct registration request
type RegisterRequest struct {
	Username    string `json:"username" binding:"required" validate:"min=3,max=32"`
	Password    string `json:"password" binding:"required" validate:"min=8,max=128"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email" binding:"required" validate:"email"`
}

// FirebaseSyncRequest carries a Firebase identity for reconciliation
type FirebaseSyncRequest struct {
	IDToken     string `json:"idToken" binding:"required"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// SupabaseSyncRequest carries a Supabase identity for reconciliation.
// The access token arrives in the Authorization header.
type SupabaseSyncRequest struct {
	User struct {
		ID               string         `json:"id"`
		Email            string         `json:"email"`
		EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
		UserMetadata     map[string]any `json:"user_metadata"`
	} `json:"user" binding:"required"`
}

// sessionResponse is the wire shape of an application session
func sessionResponse(user *models.User, token string) gin.H {
	return gin.H{
		"user_id":            user.ID,
		"username":           user.Username,
		"display_name":       user.DisplayName,
		"email":              user.Email,
		"role":               user.Role,
		"email_verified":     user.EmailVerified,
		"two_factor_enabled": user.TwoFactorEnabled,
		"token":              token,
	}
}

// issueSession mints a JWT for the user and sets the session cookie.
// Browser clients ride the cookie; the CLI stores the returned token.
func issueSession(c *gin.Context, user *models.User) (string, error) {
	token, err := auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", err
	}
	c.SetCookie(sessionCookieName, token, int(sessionTTL.Seconds()), "/", "", false, true)
	return token, nil
}

// @Router /api/auth/login [post]
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var user models.User
	err := s.db.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error
	if err != nil {
		// Same response as a bad password, to avoid enumeration
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if user.PasswordHash == "" || auth.VerifyPassword(req.Password, user.PasswordHash) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if user.TwoFactorEnabled {
		if req.TOTPCode == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Two-factor code required", "totp_required": true})
			return
		}
		if !auth.VerifyTOTPCode(req.TOTPCode, user.TOTPSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid two-factor code"})
			return
		}
	}

	token, err := issueSession(c, &user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User logged in")
	c.JSON(http.StatusOK, sessionResponse(&user, token))
}

// @Router /api/auth/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	user := models.User{
		Username:     strings.ToLower(req.Username),
		Email:        strings.ToLower(req.Email),
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username or email already taken"})
		return
	}

	s.enqueueVerificationEmail(&user)

	token, err := issueSession(c, &user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User registered")
	c.JSON(http.StatusCreated, sessionResponse(&user, token))
}

// @Router /api/auth/firebase-sync [post]
func (s *Server) firebaseSync(c *gin.Context) {
	var req FirebaseSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	identity, err := s.verifier.VerifyFirebaseToken(c.Request.Context(), req.IDToken)
	if err != nil {
		s.respondSyncError(c, err)
		return
	}
	if identity.Email == "" {
		identity.Email = req.Email
	}
	if identity.DisplayName == "" {
		identity.DisplayName = req.DisplayName
	}

	user, err := s.upsertSyncedUser(identity)
	if err != nil {
		s.logger.Error().Err(err).Msg("Firebase sync upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync session"})
		return
	}

	token, err := issueSession(c, user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Firebase session synced")
	c.JSON(http.StatusOK, gin.H{
		"user":  sessionResponse(user, token),
		"token": token,
	})
}

// @Router /api/auth/supabase-sync [post]
func (s *Server) supabaseSync(c *gin.Context) {
	var req SupabaseSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing provider access token"})
		return
	}
	accessToken := strings.TrimPrefix(authHeader, bearerPrefix)

	identity, err := s.verifier.VerifySupabaseToken(c.Request.Context(), accessToken)
	if err != nil {
		s.respondSyncError(c, err)
		return
	}

	// The token is authoritative; the posted user record must match it
	if req.User.ID != "" && req.User.ID != identity.ExternalID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not match presented user"})
		return
	}
	if identity.DisplayName == "" {
		if v, ok := req.User.UserMetadata["display_name"].(string); ok {
			identity.DisplayName = v
		}
	}

	user, err := s.upsertSyncedUser(identity)
	if err != nil {
		s.logger.Error().Err(err).Msg("Supabase sync upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync session"})
		return
	}

	token, err := issueSession(c, user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Supabase session synced")
	c.JSON(http.StatusOK, sessionResponse(user, token))
}

// respondSyncError maps verifier failures onto HTTP statuses: rejected
// tokens are 401, provider outages are 502
func (s *Server) respondSyncError(c *gin.Context, err error) {
	s.logger.Warn().Err(err).Msg("Provider token verification failed")
	if strings.Contains(err.Error(), idp.ErrProviderUnavailable.Error()) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Identity provider unavailable"})
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid provider token"})
}

// upsertSyncedUser finds or creates the user row for a verified external
// identity. Match order: provider UID, then email; a fresh row is
// created when neither matches. Repeated syncs of the same identity are
// idempotent.
func (s *Server) upsertSyncedUser(identity *idp.Identity) (*models.User, error) {
	uidColumn := "firebase_uid"
	if identity.Provider == idp.ProviderSupabase {
		uidColumn = "supabase_uid"
	}

	var user models.User
	err := s.db.Where(uidColumn+" = ?", identity.ExternalID).First(&user).Error
	if err == nil {
		return s.refreshSyncedUser(&user, identity)
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if identity.Email != "" {
		err = s.db.Where("email = ?", strings.ToLower(identity.Email)).First(&user).Error
		if err == nil {
			// Link the external identity to the existing account
			if linkErr := s.db.Model(&user).Update(uidColumn, identity.ExternalID).Error; linkErr != nil {
				return nil, linkErr
			}
			return s.refreshSyncedUser(&user, identity)
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	username, err := s.uniqueUsername(identity)
	if err != nil {
		return nil, err
	}

	displayName := identity.DisplayName
	if displayName == "" {
		displayName = username
	}

	user = models.User{
		Username:    username,
		Email:       strings.ToLower(identity.Email),
		DisplayName: displayName,
		Role:        models.RoleUser,
	}
	if identity.Provider == idp.ProviderSupabase {
		user.SupabaseUID = &identity.ExternalID
	} else {
		user.FirebaseUID = &identity.ExternalID
	}
	if identity.VerifiedAt != nil {
		user.EmailVerified = true
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// refreshSyncedUser folds newly verified attributes into an existing row
func (s *Server) refreshSyncedUser(user *models.User, identity *idp.Identity) (*models.User, error) {
	updates := map[string]any{}
	if identity.VerifiedAt != nil && !user.EmailVerified {
		updates["email_verified"] = true
		user.EmailVerified = true
	}
	if identity.DisplayName != "" && user.DisplayName == "" {
		updates["display_name"] = identity.DisplayName
		user.DisplayName = identity.DisplayName
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// uniqueUsername derives a username from the identity's email local
// part, suffixing on collision
func (s *Server) uniqueUsername(identity *idp.Identity) (string, error) {
	base := strings.ToLower(strings.SplitN(identity.Email, "@", 2)[0])
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, base)
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 0; i < 10; i++ {
		var count int64
		if err := s.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		suffix := make([]byte, 3)
		if _, err := rand.Read(suffix); err != nil {
			return "", err
		}
		candidate = base + hex.EncodeToString(suffix)
	}
	return "", fmt.Errorf("could not derive a unique username for %s", identity.Email)
}

// @Router /api/auth/me [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(&user, ""))
}

// @Router /api/auth/logout [post]
func (s *Server) logout(c *gin.Context) {
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// VerifyEmailRequest carries the token from the verification link
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// @Router /api/auth/verify-email [post]
func (s *Server) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var verification models.EmailVerification
	err := s.db.Where("token = ? AND consumed_at IS NULL", req.Token).First(&verification).Error
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
		return
	}
	if verification.ExpiresAt.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification token"})
		return
	}

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&verification).Update("consumed_at", now).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", verification.UserID).
			Update("email_verified", true).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to consume verification token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify email"})
		return
	}

	s.logger.Info().Str("user_id", verification.UserID).Msg("Email verified")
	c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
}

// @Router /api/auth/resend-verification [post]
func (s *Server) resendVerification(c *gin.Context) {
	sessionData, _ := GetSessionData(c)

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if user.EmailVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already verified"})
		return
	}

	var outstanding int64
	s.db.Model(&models.EmailVerification{}).
		Where("user_id = ? AND consumed_at IS NULL AND expires_at > ?", user.ID, time.Now()).
		Count(&outstanding)
	if outstanding >= verificationBacklog {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many pending verification emails"})
		return
	}

	s.enqueueVerificationEmail(&user)
	c.JSON(http.StatusOK, gin.H{"message": "Verification email queued"})
}

// enqueueVerificationEmail creates a verification token and queues its
// delivery. Failures are logged, not surfaced; registration must not
// fail because the mail queue is down.
func (s *Server) enqueueVerificationEmail(user *models.User) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate verification token")
		return
	}

	verification := models.EmailVerification{
		UserID:    user.ID,
		Token:     hex.EncodeToString(tokenBytes),
		ExpiresAt: time.Now().Add(verificationTTL).UTC(),
	}
	if err := s.db.Create(&verification).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store verification token")
		return
	}

	task, err := tasks.NewSendVerificationEmailTask(user.ID, verification.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create verification email task")
		return
	}
	if _, err := s.asynqClient.Enqueue(task); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to enqueue verification email")
	}
}
