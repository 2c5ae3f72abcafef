// Package client is the CLI's authenticated API client for the
// dashboard endpoints. Authentication endpoints are not here; those go
// through the session reconciler and the backend client it wraps.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cryptopilot-dev/cryptopilot/internal/session"
)

// Client represents an authenticated HTTP client for the CryptoPilot API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     session.TokenStore
}

// New creates a new API client. Bearer tokens are loaded per request
// from the token store.
func New(serverURL string, tokens session.TokenStore) *Client {
	return &Client{
		baseURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: tokens,
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// Session mirrors the wire session shape
type Session struct {
	UserID           string `json:"user_id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	EmailVerified    bool   `json:"email_verified"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// Balance is one token balance row
type Balance struct {
	Symbol    string  `json:"symbol"`
	Amount    float64 `json:"amount"`
	UpdatedAt string  `json:"updated_at"`
}

// Transaction is one ledger entry
type Transaction struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Symbol        string  `json:"symbol"`
	Amount        float64 `json:"amount"`
	CounterSymbol string  `json:"counter_symbol,omitempty"`
	CounterAmount float64 `json:"counter_amount,omitempty"`
	Address       string  `json:"address,omitempty"`
	Blockchain    string  `json:"blockchain,omitempty"`
	Fee           float64 `json:"fee,omitempty"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
}

// Insight is one generated market insight
type Insight struct {
	Symbol      string  `json:"symbol"`
	Sentiment   string  `json:"sentiment"`
	Confidence  float64 `json:"confidence"`
	Summary     string  `json:"summary"`
	GeneratedAt string  `json:"generated_at"`
}

// MarketEntry is one row of the market overview
type MarketEntry struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
	Rank      int     `json:"rank"`
	Default   bool    `json:"default,omitempty"`
}

// APIKey is one provisioned key (without its secret)
type APIKey struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Prefix      string  `json:"prefix"`
	Permissions string  `json:"permissions"`
	LastUsedAt  *string `json:"last_used_at"`
	ExpiresAt   *string `json:"expires_at"`
	CreatedAt   string  `json:"created_at"`
}

// Me returns the current session
func (c *Client) Me() (*Session, error) {
	var session Session
	if err := c.do("GET", "/api/auth/me", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Balances returns the user's token balances
func (c *Client) Balances() ([]Balance, error) {
	var resp struct {
		Balances []Balance `json:"balances"`
	}
	if err := c.do("GET", "/api/tokens/balances", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

// Generate mints demo tokens
func (c *Client) Generate(symbol, blockchain string, amount float64) (*Transaction, error) {
	body := map[string]any{
		"symbol":     symbol,
		"blockchain": blockchain,
		"amount":     amount,
	}
	var resp struct {
		Transaction Transaction `json:"transaction"`
	}
	if err := c.do("POST", "/api/tokens/generate", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Transaction, nil
}

// Convert exchanges between two symbols
func (c *Client) Convert(fromSymbol, toSymbol string, amount float64) (*Transaction, error) {
	body := map[string]any{
		"from_symbol": fromSymbol,
		"to_symbol":   toSymbol,
		"amount":      amount,
	}
	var resp struct {
		Transaction Transaction `json:"transaction"`
	}
	if err := c.do("POST", "/api/tokens/convert", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Transaction, nil
}

// Transfer sends tokens to an external address
func (c *Client) Transfer(symbol, address string, amount float64) (*Transaction, error) {
	body := map[string]any{
		"symbol":  symbol,
		"address": address,
		"amount":  amount,
	}
	var resp struct {
		Transaction Transaction `json:"transaction"`
	}
	if err := c.do("POST", "/api/tokens/transfer", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Transaction, nil
}

// Transactions returns the user's ledger, newest first
func (c *Client) Transactions(limit int) ([]Transaction, error) {
	path := "/api/transactions"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// Insights returns the latest market insights
func (c *Client) Insights() ([]Insight, error) {
	var resp struct {
		Insights []Insight `json:"insights"`
	}
	if err := c.do("GET", "/api/insights", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Insights, nil
}

// Market returns the tracked catalog with current prices
func (c *Client) Market() ([]MarketEntry, error) {
	var resp struct {
		Market []MarketEntry `json:"market"`
	}
	if err := c.do("GET", "/api/market", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Market, nil
}

// ListKeys returns the user's API keys
func (c *Client) ListKeys() ([]APIKey, error) {
	var resp struct {
		Keys []APIKey `json:"keys"`
	}
	if err := c.do("GET", "/api/keys", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// CreateKey mints a new API key and returns it with its one-time secret
func (c *Client) CreateKey(name, permissions string, expiresInDays int) (*APIKey, string, error) {
	body := map[string]any{"name": name}
	if permissions != "" {
		body["permissions"] = permissions
	}
	if expiresInDays > 0 {
		body["expires_in_days"] = expiresInDays
	}
	var resp struct {
		Key    APIKey `json:"key"`
		APIKey string `json:"api_key"`
	}
	if err := c.do("POST", "/api/keys", body, &resp); err != nil {
		return nil, "", err
	}
	return &resp.Key, resp.APIKey, nil
}

// DeleteKey revokes an API key
func (c *Client) DeleteKey(id string) error {
	return c.do("DELETE", "/api/keys/"+id, nil, nil)
}

// TwoFactorSetup is the provisioning material for an authenticator app
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// SetupTwoFactor provisions a TOTP secret
func (c *Client) SetupTwoFactor() (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	if err := c.do("POST", "/api/2fa/setup", nil, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

// EnableTwoFactor turns on 2FA after verifying a code
func (c *Client) EnableTwoFactor(code string) error {
	return c.do("POST", "/api/2fa/enable", map[string]string{"code": code}, nil)
}

// DisableTwoFactor turns off 2FA after verifying a code
func (c *Client) DisableTwoFactor(code string) error {
	return c.do("POST", "/api/2fa/disable", map[string]string{"code": code}, nil)
}

// ServerConfig is the admin-visible deployment configuration
type ServerConfig struct {
	ID                     string  `json:"id"`
	InsightRefreshSchedule string  `json:"insight_refresh_schedule"`
	LastInsightRefreshAt   *string `json:"last_insight_refresh_at"`
	NextInsightRefreshAt   *string `json:"next_insight_refresh_at"`
}

// GetConfig fetches the deployment configuration (admin only)
func (c *Client) GetConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := c.do("GET", "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetInsightSchedule updates the insight refresh cron schedule (admin only)
func (c *Client) SetInsightSchedule(schedule string) (*ServerConfig, error) {
	var cfg ServerConfig
	body := map[string]string{"insightRefreshSchedule": schedule}
	if err := c.do("PATCH", "/api/config", body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// do sends one authenticated JSON request
func (c *Client) do(method, path string, body any, out any) error {
	token, err := c.tokens.LoadToken(c.baseURL)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var envelope struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && envelope.Error != "" {
			return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, envelope.Error)
		}
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
