package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Session is the wallet session as reported by the dashboard server.
type Session struct {
	Address       string          `json:"address,omitempty"`
	NativeBalance decimal.Decimal `json:"native_balance"`
	Connected     bool            `json:"connected"`
	LastRefresh   time.Time       `json:"last_refresh,omitzero"`
}

// OperationResult is the outcome of a confirmed create, mint or send.
type OperationResult struct {
	Operation string `json:"operation"`
	Signature string `json:"signature"`
	Mint      string `json:"mint"`
	Amount    string `json:"amount,omitempty"`
	BaseUnits uint64 `json:"base_units,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// Mint is on-chain mint metadata.
type Mint struct {
	Address         string          `json:"address"`
	Decimals        uint8           `json:"decimals"`
	Supply          decimal.Decimal `json:"supply"`
	SupplyBaseUnits uint64          `json:"supply_base_units"`
	MintAuthority   *string         `json:"mint_authority,omitempty"`
	FreezeAuthority *string         `json:"freeze_authority,omitempty"`
}

// TokenAccount is one token balance held by the session wallet.
type TokenAccount struct {
	Mint      string          `json:"mint"`
	Account   string          `json:"account"`
	Decimals  uint8           `json:"decimals"`
	UIBalance decimal.Decimal `json:"ui_balance"`
}

// Transaction is one entry of the session wallet's recent history.
type Transaction struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Err       string    `json:"error,omitempty"`
	Memo      string    `json:"memo,omitempty"`
}

// Notification is a transient success or error message.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Code       string // failure code, empty when the server sent none
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// CodeOf returns the failure code carried by err, if any.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Client is the HTTP client for the mintdash server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard client. Operations wait for on-chain
// confirmation, so the default timeout is generous.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Connect attaches the server's wallet and returns the new session.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	var sess Session
	if err := c.do(ctx, "POST", "/api/v1/session", nil, http.StatusOK, &sess); err != nil {
		return nil, err
	}
	c.logger.Debug("session connected", "address", sess.Address)
	return &sess, nil
}

// Disconnect detaches the wallet.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/api/v1/session", nil, http.StatusNoContent, nil)
}

// Session returns the current session.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var sess Session
	if err := c.do(ctx, "GET", "/api/v1/session", nil, http.StatusOK, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateMint creates a new token mint owned by the session wallet.
// Decimals is sent as given so the server can validate it.
func (c *Client) CreateMint(ctx context.Context, name, symbol, decimals string) (*OperationResult, error) {
	body := map[string]string{
		"name":     name,
		"symbol":   symbol,
		"decimals": decimals,
	}
	var res OperationResult
	if err := c.do(ctx, "POST", "/api/v1/mints", body, http.StatusCreated, &res); err != nil {
		return nil, err
	}
	c.logger.Debug("mint created", "mint", res.Mint, "signature", res.Signature)
	return &res, nil
}

// MintSupply mints amount display units of mint into the session wallet.
func (c *Client) MintSupply(ctx context.Context, mint, amount string) (*OperationResult, error) {
	path := fmt.Sprintf("/api/v1/mints/%s/supply", url.PathEscape(mint))
	var res OperationResult
	if err := c.do(ctx, "POST", path, map[string]string{"amount": amount}, http.StatusOK, &res); err != nil {
		return nil, err
	}
	c.logger.Debug("supply minted", "mint", mint, "amount", amount, "signature", res.Signature)
	return &res, nil
}

// Send transfers amount display units of mint to recipient.
func (c *Client) Send(ctx context.Context, mint, recipient, amount string) (*OperationResult, error) {
	body := map[string]string{
		"mint":      mint,
		"recipient": recipient,
		"amount":    amount,
	}
	var res OperationResult
	if err := c.do(ctx, "POST", "/api/v1/transfers", body, http.StatusOK, &res); err != nil {
		return nil, err
	}
	c.logger.Debug("tokens sent", "mint", mint, "recipient", recipient, "signature", res.Signature)
	return &res, nil
}

// GetMint reads mint metadata.
func (c *Client) GetMint(ctx context.Context, mint string) (*Mint, error) {
	var m Mint
	if err := c.do(ctx, "GET", "/api/v1/mints/"+url.PathEscape(mint), nil, http.StatusOK, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// TokenAccounts lists the session wallet's token balances.
func (c *Client) TokenAccounts(ctx context.Context) ([]TokenAccount, error) {
	var response struct {
		TokenAccounts []TokenAccount `json:"token_accounts"`
	}
	if err := c.do(ctx, "GET", "/api/v1/token-accounts", nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.TokenAccounts, nil
}

// Transactions lists the session wallet's recent transactions, newest first.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var response struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, "GET", "/api/v1/transactions", nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Transactions, nil
}

// RecentMints lists recently used mint addresses, most recent first.
func (c *Client) RecentMints(ctx context.Context) ([]string, error) {
	var response struct {
		Mints []string `json:"mints"`
	}
	if err := c.do(ctx, "GET", "/api/v1/recent-mints", nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Mints, nil
}

// Notification returns the live notification, or nil when there is none.
func (c *Client) Notification(ctx context.Context) (*Notification, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/notification", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var n Notification
		if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &n, nil
	}
	return nil, c.parseErrorResponse(resp)
}

// DismissNotification clears the live notification.
func (c *Client) DismissNotification(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/api/v1/notification", nil, http.StatusNoContent, nil)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// do sends a JSON request and decodes the JSON response into out when the
// server answers with want.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("request failed: %s", string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
}
