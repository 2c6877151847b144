package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// headlessReady is the wallet-headless status code for a loaded wallet.
const headlessReady = 3

// HeadlessConfig configures the wallet-headless adapter.
type HeadlessConfig struct {
	BaseURL   string
	WalletID  string
	APIKey    string
	Network   string // used until the service reports one
	TimeoutMs int    // default 30000
}

// Headless implements Wallet against a hathor-wallet-headless style REST service.
// Every call carries the x-wallet-id header; every response is a JSON object
// with a "success" flag, and success=false is turned into an error.
type Headless struct {
	baseURL  string
	walletID string
	apiKey   string
	client   *http.Client

	mu      sync.RWMutex
	network string
}

// NewHeadless creates a wallet-headless adapter.
func NewHeadless(cfg HeadlessConfig) *Headless {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 30000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8000"
	}
	return &Headless{
		baseURL:  cfg.BaseURL,
		walletID: cfg.WalletID,
		apiKey:   cfg.APIKey,
		network:  cfg.Network,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
	}
}

// HeadlessError is a success=false answer from the service.
type HeadlessError struct {
	Path    string
	Status  int
	Message string
}

func (e *HeadlessError) Error() string {
	return fmt.Sprintf("wallet %s: %s (http %d)", e.Path, e.Message, e.Status)
}

// envelope is the common part of every headless response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do sends body (nil for GET) and decodes the full response into out.
// It returns the raw response so callers can pass it through untouched.
func (h *Headless) do(ctx context.Context, method, path string, body interface{}, out interface{}) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal wallet request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create wallet request: %w", err)
	}
	req.Header.Set("x-wallet-id", h.walletID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set("x-api-key", h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read wallet response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("wallet %s: http %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = "request failed"
		}
		return nil, &HeadlessError{Path: path, Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode wallet %s: %w", path, err)
		}
	}
	return raw, nil
}

// IsReady asks the service for the wallet status.
func (h *Headless) IsReady(ctx context.Context) bool {
	var st struct {
		StatusCode int    `json:"statusCode"`
		Network    string `json:"network"`
	}
	if _, err := h.do(ctx, http.MethodGet, "/wallet/status", nil, &st); err != nil {
		slog.Debug("wallet status check failed", "error", err)
		return false
	}
	if st.Network != "" {
		h.mu.Lock()
		h.network = st.Network
		h.mu.Unlock()
	}
	return st.StatusCode == headlessReady
}

func (h *Headless) Network() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.network
}

func (h *Headless) AddressAtIndex(ctx context.Context, index int) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	q := url.Values{"index": {strconv.Itoa(index)}}
	if _, err := h.do(ctx, http.MethodGet, "/wallet/address?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (h *Headless) SignMessageWithAddress(ctx context.Context, message string, addressIndex int, _ string) (SignedMessage, error) {
	var out SignedMessage
	_, err := h.do(ctx, http.MethodPost, "/wallet/sign-message", map[string]interface{}{
		"message": message,
		"index":   addressIndex,
	}, &out)
	if out.Message == "" {
		out.Message = message
	}
	return out, err
}

func (h *Headless) SignOracleData(ctx context.Context, ncID, data, oracle, _ string) (SignedOracleData, error) {
	var out struct {
		SignedData string `json:"signedData"`
	}
	_, err := h.do(ctx, http.MethodPost, "/wallet/nano-contracts/oracle-signed-result", map[string]string{
		"nc_id":  ncID,
		"data":   data,
		"oracle": oracle,
	}, &out)
	if err != nil {
		return SignedOracleData{}, err
	}
	return SignedOracleData{Data: data, SignedData: out.SignedData, Oracle: oracle}, nil
}

func (h *Headless) SendNanoContractTx(ctx context.Context, tx NanoContractTx, _ string) (json.RawMessage, error) {
	path := "/wallet/nano-contracts/execute"
	if tx.BlueprintID != "" && tx.NcID == "" {
		path = "/wallet/nano-contracts/create"
	}
	return h.do(ctx, http.MethodPost, path, map[string]interface{}{
		"blueprint_id": tx.BlueprintID,
		"nc_id":        tx.NcID,
		"method":       tx.Method,
		"data": map[string]interface{}{
			"actions": tx.Actions,
			"args":    tx.Args,
		},
	}, nil)
}

func (h *Headless) CreateToken(ctx context.Context, params TokenParams, _ string) (json.RawMessage, error) {
	return h.do(ctx, http.MethodPost, "/wallet/create-token", params, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Wallet = (*Headless)(nil)
