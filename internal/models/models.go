package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config represents the global configuration for the deployment.
// This is a singleton model (only one row should exist).
type Config struct {
	BaseModel
	// Auto-generated on first setup (64 hex chars)
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"`

	// Insight refresh configuration
	InsightRefreshSchedule string     `json:"insight_refresh_schedule"` // Cron expression, empty = no auto refresh
	LastInsightRefreshAt   *time.Time `json:"last_insight_refresh_at"`
	NextInsightRefreshAt   *time.Time `json:"next_insight_refresh_at"` // Calculated from cron schedule
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an application account. A user row is the system of
// record regardless of which identity provider authenticated it; the
// provider UID columns link the row to external identities so repeated
// syncs upsert instead of creating duplicates.
type User struct {
	BaseModel
	Username     string `json:"username" gorm:"unique;not null"`
	Email        string `json:"email" gorm:"unique;not null"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"` // empty for IdP-only accounts
	Role         string `json:"role" gorm:"not null;default:user"`

	EmailVerified    bool   `json:"email_verified" gorm:"not null;default:false"`
	TwoFactorEnabled bool   `json:"two_factor_enabled" gorm:"not null;default:false"`
	TOTPSecret       string `json:"-"`

	// External identity links (nullable, unique when present)
	FirebaseUID *string `json:"-" gorm:"uniqueIndex"`
	SupabaseUID *string `json:"-" gorm:"uniqueIndex"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// API key permission levels
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// APIKey represents a programmatic access key. Only the hash is stored;
// the plaintext key is shown once at creation time.
type APIKey struct {
	BaseModel
	UserID      string     `json:"user_id" gorm:"not null;index"`
	Name        string     `json:"name" gorm:"not null"`
	Prefix      string     `json:"prefix" gorm:"not null"` // first 8 chars, for display
	KeyHash     string     `json:"-" gorm:"not null;uniqueIndex"`
	Permissions string     `json:"permissions" gorm:"not null;default:read"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	ExpiresAt   *time.Time `json:"expires_at"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TokenBalance tracks a user's holdings of one token symbol
type TokenBalance struct {
	BaseModel
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_balance_user_symbol"`
	Symbol    string    `json:"symbol" gorm:"not null;uniqueIndex:idx_balance_user_symbol"`
	Amount    float64   `json:"amount" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Transaction types
const (
	TxGenerate = "generate"
	TxConvert  = "convert"
	TxTransfer = "transfer"
)

// Transaction statuses
const (
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// TokenTransaction is one entry in the append-only token ledger
type TokenTransaction struct {
	BaseModel
	UserID        string  `json:"user_id" gorm:"not null;index"`
	Type          string  `json:"type" gorm:"not null"`
	Symbol        string  `json:"symbol" gorm:"not null"`
	Amount        float64 `json:"amount" gorm:"not null"`
	CounterSymbol string  `json:"counter_symbol,omitempty"` // convert target
	CounterAmount float64 `json:"counter_amount,omitempty"`
	Address       string  `json:"address,omitempty"` // transfer destination
	Blockchain    string  `json:"blockchain,omitempty"`
	Fee           float64 `json:"fee,omitempty"`
	Status        string  `json:"status" gorm:"not null;default:completed"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// PricePoint is one observed USD price for a token symbol
type PricePoint struct {
	BaseModel
	Symbol     string    `json:"symbol" gorm:"not null;index"`
	PriceUSD   float64   `json:"price_usd" gorm:"not null"`
	Change24h  float64   `json:"change_24h"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index"`
}

// Insight sentiments
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// Insight is one generated market insight for a token symbol
type Insight struct {
	BaseModel
	Symbol      string    `json:"symbol" gorm:"not null;index"`
	Sentiment   string    `json:"sentiment" gorm:"not null"`
	Confidence  float64   `json:"confidence" gorm:"not null"` // 0..1
	Summary     string    `json:"summary" gorm:"type:text;not null"`
	GeneratedAt time.Time `json:"generated_at" gorm:"not null"`
}

// EmailVerification is a pending email verification token
type EmailVerification struct {
	BaseModel
	UserID     string     `json:"user_id" gorm:"not null;index"`
	Token      string     `json:"-" gorm:"not null;uniqueIndex"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null"`
	ConsumedAt *time.Time `json:"consumed_at"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&User{}, &Config{}, &APIKey{}, &TokenBalance{},
		&TokenTransaction{}, &PricePoint{}, &Insight{}, &EmailVerification{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
