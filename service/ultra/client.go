// Package ultra is a client for the Jupiter Ultra order/execute API.
package ultra

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
	"strings"
	"time"

	"github.com/brojonat/ultraswap/service/metrics"
)

// DefaultBaseURL is the public Ultra API host.
const DefaultBaseURL = "https://ultra-api.jup.ag"

// userAgent is sent on every request; the API rejects some default client agents.
const userAgent = "Mozilla/5.0"

// maxResponseBody bounds how much of a response we are willing to read.
const maxResponseBody = 4 << 20

// OrderParams are the inputs of one ExactIn order request.
type OrderParams struct {
	InputMint           string
	OutputMint          string
	Amount              uint64
	SlippageBps         int
	PriorityFeeLamports int64
	Taker               string
	ExcludeDexes        string
	ExcludeRouters      string
}

// OrderResponse is the subset of the order payload the swap needs.
// Transaction and RequestID are both empty when no route exists.
type OrderResponse struct {
	Transaction  string `json:"transaction"`
	RequestID    string `json:"requestId"`
	InAmount     string `json:"inAmount,omitempty"`
	OutAmount    string `json:"outAmount,omitempty"`
	Router       string `json:"router,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Reason returns whatever explanation the API gave for an empty order.
func (o *OrderResponse) Reason() string {
	if o.ErrorMessage != "" {
		return o.ErrorMessage
	}
	return o.Error
}

// ExecuteRequest submits a signed order transaction.
type ExecuteRequest struct {
	RequestID         string `json:"requestId"`
	SignedTransaction string `json:"signedTransaction"`
}

// ExecuteResponse reports the fate of an executed order.
type ExecuteResponse struct {
	Status             string `json:"status"`
	Signature          string `json:"signature,omitempty"`
	Error              string `json:"error,omitempty"`
	Code               *int   `json:"code,omitempty"`
	Slot               string `json:"slot,omitempty"`
	InputAmountResult  string `json:"inputAmountResult,omitempty"`
	OutputAmountResult string `json:"outputAmountResult,omitempty"`

	// Raw is the undecoded body, kept for failure reports that carry no error field.
	Raw json.RawMessage `json:"-"`
}

// Client talks to the Ultra API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new Ultra API client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
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
		metrics:    m,
	}
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Order requests a ready-to-sign transaction for an ExactIn swap.
// Non-2xx responses are still decoded so an empty order can carry the API's reason.
func (c *Client) Order(ctx context.Context, p OrderParams) (*OrderResponse, error) {
	q := url.Values{}
	q.Set("inputMint", p.InputMint)
	q.Set("outputMint", p.OutputMint)
	q.Set("amount", strconv.FormatUint(p.Amount, 10))
	q.Set("swapMode", "ExactIn")
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))
	q.Set("broadcastFeeType", "maxCap")
	q.Set("priorityFeeLamports", strconv.FormatInt(p.PriorityFeeLamports, 10))
	q.Set("useWsol", "false")
	q.Set("asLegacyTransaction", "false")
	q.Set("excludeDexes", p.ExcludeDexes)
	q.Set("excludeRouters", p.ExcludeRouters)
	q.Set("taker", p.Taker)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/order?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out OrderResponse
	status, _, err := c.do(req, "order", &out)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "order received",
		"input_mint", p.InputMint,
		"output_mint", p.OutputMint,
		"amount", p.Amount,
		"http_status", status,
		"request_id", out.RequestID,
		"has_transaction", out.Transaction != "",
	)
	return &out, nil
}

// Execute submits a signed transaction for the given order.
func (c *Client) Execute(ctx context.Context, r ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out ExecuteResponse
	status, raw, err := c.do(req, "execute", &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw

	c.logger.InfoContext(ctx, "order executed",
		"request_id", r.RequestID,
		"http_status", status,
		"status", out.Status,
		"signature", out.Signature,
	)
	return &out, nil
}

// do sends req and decodes the JSON body into out whatever the status code.
func (c *Client) do(req *http.Request, endpoint string, out any) (int, json.RawMessage, error) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUltraCall(endpoint, "error", time.Since(start).Seconds())
		return 0, nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.metrics.RecordUltraCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, raw, fmt.Errorf("%s returned status %d with undecodable body %q: %w",
			endpoint, resp.StatusCode, truncate(string(raw), 200), err)
	}
	return resp.StatusCode, raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
