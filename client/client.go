// Package client is the Go HTTP client for the ultraswap API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	natspkg "github.com/brojonat/ultraswap/service/nats"
)

// Pair is a saved swap configuration.
type Pair struct {
	ID                  int64     `json:"id"`
	InputMint           string    `json:"input_mint"`
	OutputMint          string    `json:"output_mint"`
	Amount              int64     `json:"amount"`
	SlippageBps         int32     `json:"slippage_bps"`
	PriorityFeeLamports int64     `json:"priority_fee_lamports"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PairForm carries pair fields as typed text. Blank slippage and priority fee
// take the server's defaults.
type PairForm struct {
	InputMint           string `json:"input_mint"`
	OutputMint          string `json:"output_mint"`
	Amount              string `json:"amount"`
	SlippageBps         string `json:"slippage_bps,omitempty"`
	PriorityFeeLamports string `json:"priority_fee_lamports,omitempty"`
}

// Key is the public side of the server's signing key.
type Key struct {
	PublicKey string `json:"public_key"`
	Taker     string `json:"taker"`
}

// Task identifies a background task started for a pair.
type Task struct {
	PairID int64  `json:"pair_id"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ImportLine is a rejected import line.
type ImportLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// ImportResult is the outcome of an import.
type ImportResult struct {
	Imported []Pair       `json:"imported"`
	Skipped  []ImportLine `json:"skipped"`
	Failed   []ImportLine `json:"failed"`
	Lines    []string     `json:"lines"`
}

// Balance is a token balance of the server's key.
type Balance struct {
	Mint     string `json:"mint"`
	Owner    string `json:"owner"`
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"ui_amount"`
	Native   bool   `json:"native"`
}

// Received is how much of a mint a transaction delivered.
type Received struct {
	Signature string `json:"signature"`
	Mint      string `json:"mint"`
	Amount    int64  `json:"amount"`
	Found     bool   `json:"found"`
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the server, returned while a
// swap for the pair is still running.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client is the HTTP client for the ultraswap service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

// SetKey installs a base58 private key on the server.
func (c *Client) SetKey(ctx context.Context, privateKey string) (*Key, error) {
	var key Key
	err := c.do(ctx, http.MethodPut, "/api/v1/key", map[string]string{"private_key": privateKey}, http.StatusOK, &key)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetKey returns the server's current public key.
func (c *Client) GetKey(ctx context.Context) (*Key, error) {
	var key Key
	if err := c.do(ctx, http.MethodGet, "/api/v1/key", nil, http.StatusOK, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ListPairs returns every saved pair.
func (c *Client) ListPairs(ctx context.Context) ([]Pair, error) {
	var resp struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/pairs", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// GetPair returns one pair.
func (c *Client) GetPair(ctx context.Context, id int64) (*Pair, error) {
	var pair Pair
	if err := c.do(ctx, http.MethodGet, pairPath(id, ""), nil, http.StatusOK, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// CreatePair saves a new pair.
func (c *Client) CreatePair(ctx context.Context, form PairForm) (*Pair, error) {
	var pair Pair
	if err := c.do(ctx, http.MethodPost, "/api/v1/pairs", form, http.StatusCreated, &pair); err != nil {
		return nil, err
	}
	c.logger.Debug("pair created", "id", pair.ID)
	return &pair, nil
}

// UpdatePair replaces a pair's fields.
func (c *Client) UpdatePair(ctx context.Context, id int64, form PairForm) (*Pair, error) {
	var pair Pair
	if err := c.do(ctx, http.MethodPut, pairPath(id, ""), form, http.StatusOK, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// DeletePair removes a pair.
func (c *Client) DeletePair(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, pairPath(id, ""), nil, http.StatusNoContent, nil)
}

// ImportPairs uploads pair lines. source names the input in console lines.
func (c *Client) ImportPairs(ctx context.Context, r io.Reader, source string) (*ImportResult, error) {
	u := c.baseURL + "/api/v1/pairs/import?source=" + url.QueryEscape(source)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	var result ImportResult
	if err := c.send(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Balance returns the server key's balance of mint.
func (c *Client) Balance(ctx context.Context, mint string) (*Balance, error) {
	var balance Balance
	if err := c.do(ctx, http.MethodGet, "/api/v1/balances/"+url.PathEscape(mint), nil, http.StatusOK, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RefreshBalance starts a balance refresh for a pair.
func (c *Client) RefreshBalance(ctx context.Context, id int64) (*Task, error) {
	return c.task(ctx, pairPath(id, "/balance"), nil)
}

// Buy starts a buy of the pair's stored amount.
func (c *Client) Buy(ctx context.Context, id int64) (*Task, error) {
	return c.task(ctx, pairPath(id, "/buy"), nil)
}

// Sell starts a sell of percent of the pair's input balance. An empty percent sells everything.
func (c *Client) Sell(ctx context.Context, id int64, percent string) (*Task, error) {
	return c.task(ctx, pairPath(id, "/sell"), percentBody(percent))
}

// RunAll starts a swap for every pair.
func (c *Client) RunAll(ctx context.Context, percent string) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/swaps/run-all", percentBody(percent), http.StatusAccepted, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// ReceivedAmount reports how much of mint a confirmed transaction delivered to the server's key.
func (c *Client) ReceivedAmount(ctx context.Context, signature, mint string) (*Received, error) {
	path := "/api/v1/transactions/" + url.PathEscape(signature) + "/received?mint=" + url.QueryEscape(mint)
	var received Received
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &received); err != nil {
		return nil, err
	}
	return &received, nil
}

// StreamConsole reads console events until ctx is done, the server closes the
// stream, or fn returns an error. An empty kind streams every event.
func (c *Client) StreamConsole(ctx context.Context, kind string, fn func(*natspkg.ConsoleEvent) error) error {
	u := c.baseURL + "/api/v1/stream/console"
	if kind != "" {
		u += "?kind=" + url.QueryEscape(kind)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would cut the stream.
	streamClient := *c.httpClient
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to console stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data != "" && eventType != "connected" {
				var event natspkg.ConsoleEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					c.logger.Warn("failed to decode console event", "event", eventType, "error", err)
				} else if err := fn(&event); err != nil {
					return err
				}
			}
			eventType, data = "", ""
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading console stream: %w", err)
	}
	return nil
}

func (c *Client) task(ctx context.Context, path string, body interface{}) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusAccepted, &task); err != nil {
		return nil, err
	}
	c.logger.Debug("task started", "pair_id", task.PairID, "task_id", task.TaskID)
	return &task, nil
}

// do sends a JSON request and decodes a JSON response when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
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
	return c.send(req, wantStatus, out)
}

func (c *Client) send(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
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
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}

func pairPath(id int64, suffix string) string {
	return "/api/v1/pairs/" + strconv.FormatInt(id, 10) + suffix
}

func percentBody(percent string) interface{} {
	if percent == "" {
		return nil
	}
	return map[string]string{"percent": percent}
}
