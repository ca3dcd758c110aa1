// Package swap runs one order, sign, execute round trip against the aggregator.
package swap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/ultraswap/service/metrics"
	"github.com/brojonat/ultraswap/service/session"
	"github.com/brojonat/ultraswap/service/ultra"
)

// StatusSuccess is the execute status of a landed swap.
const StatusSuccess = "Success"

const (
	DefaultExplorerTxURL   = "https://explorer.solana.com/tx/"
	DefaultAggregatorTxURL = ultra.DefaultBaseURL + "/tx/"

	unknownSignature = "unknown"
)

// ErrQuoteUnavailable means the aggregator returned no transaction for the order,
// most often because the wallet cannot cover the amount.
var ErrQuoteUnavailable = errors.New("swap unavailable, check balance")

// QuoteUnavailableError carries the aggregator's explanation, if any.
type QuoteUnavailableError struct {
	Reason string
}

func (e *QuoteUnavailableError) Error() string {
	if e.Reason == "" {
		return ErrQuoteUnavailable.Error()
	}
	return ErrQuoteUnavailable.Error() + ": " + e.Reason
}

func (e *QuoteUnavailableError) Is(target error) bool {
	return target == ErrQuoteUnavailable
}

// Aggregator is the part of the Ultra API a swap needs.
type Aggregator interface {
	Order(ctx context.Context, p ultra.OrderParams) (*ultra.OrderResponse, error)
	Execute(ctx context.Context, r ultra.ExecuteRequest) (*ultra.ExecuteResponse, error)
}

// Request describes one ExactIn swap in base units.
type Request struct {
	InputMint           string
	OutputMint          string
	Amount              uint64
	SlippageBps         int
	PriorityFeeLamports int64
}

// Config is everything a swap needs besides the request itself.
type Config struct {
	Session         *session.Session
	ExcludeDexes    string
	ExcludeRouters  string
	ExplorerTxURL   string
	AggregatorTxURL string
}

// Outcome is the execute result of a submitted swap.
type Outcome struct {
	RequestID string
	Status    string
	Signature string
	Error     string
	// Detail is the raw execute body, used when a failure carries no error text.
	Detail string

	explorerTxURL   string
	aggregatorTxURL string
}

// Succeeded reports whether the aggregator confirmed the swap.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Links returns the explorer and aggregator URLs for the swap signature.
func (o *Outcome) Links() []string {
	sig := o.Signature
	if sig == "" {
		sig = unknownSignature
	}
	return []string{o.explorerTxURL + sig, o.aggregatorTxURL + sig}
}

// Message renders the outcome the way it is shown on the console.
func (o *Outcome) Message() string {
	var b strings.Builder
	if o.Succeeded() {
		b.WriteString("Success: " + o.Signature)
	} else {
		b.WriteString("Fail: " + o.failureDetail())
	}
	for _, link := range o.Links() {
		b.WriteString("\n" + link)
	}
	return b.String()
}

func (o *Outcome) failureDetail() string {
	switch {
	case o.Error != "":
		return o.Error
	case o.Detail != "":
		return o.Detail
	default:
		return "status " + o.Status
	}
}

// Describe collapses a swap result into the single line block shown to the user.
func Describe(o *Outcome, err error) string {
	if err != nil {
		if errors.Is(err, ErrQuoteUnavailable) {
			return err.Error()
		}
		return "Error: " + err.Error()
	}
	if o == nil {
		return "Error: no swap result"
	}
	return o.Message()
}

// Swapper executes swaps for one session.
type Swapper struct {
	cfg     Config
	api     Aggregator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Swapper. The session must hold a signer.
func New(cfg Config, api Aggregator, m *metrics.Metrics, logger *slog.Logger) (*Swapper, error) {
	if cfg.Session == nil || len(cfg.Session.Signer) == 0 {
		return nil, session.ErrNoSigner
	}
	if api == nil {
		return nil, errors.New("swap requires an aggregator client")
	}
	if cfg.ExplorerTxURL == "" {
		cfg.ExplorerTxURL = DefaultExplorerTxURL
	}
	if cfg.AggregatorTxURL == "" {
		cfg.AggregatorTxURL = DefaultAggregatorTxURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Swapper{
		cfg:     cfg,
		api:     api,
		logger:  logger,
		metrics: m,
	}, nil
}

// Run orders, signs and executes req. It never retries.
// A missing transaction or request id in the order yields ErrQuoteUnavailable
// and nothing is signed or submitted.
func (s *Swapper) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	outcome, err := s.run(ctx, req)

	label := "error"
	switch {
	case err == nil && outcome.Succeeded():
		label = "success"
	case err == nil:
		label = "failed"
	case errors.Is(err, ErrQuoteUnavailable):
		label = "unavailable"
	}
	s.metrics.RecordSwap(label, time.Since(start).Seconds())

	return outcome, err
}

func (s *Swapper) run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Amount == 0 {
		return nil, errors.New("swap amount must be positive")
	}

	logger := s.logger.With(
		"input_mint", req.InputMint,
		"output_mint", req.OutputMint,
		"amount", req.Amount,
	)

	order, err := s.api.Order(ctx, ultra.OrderParams{
		InputMint:           req.InputMint,
		OutputMint:          req.OutputMint,
		Amount:              req.Amount,
		SlippageBps:         req.SlippageBps,
		PriorityFeeLamports: req.PriorityFeeLamports,
		Taker:               s.cfg.Session.Taker.String(),
		ExcludeDexes:        s.cfg.ExcludeDexes,
		ExcludeRouters:      s.cfg.ExcludeRouters,
	})
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	if order.Transaction == "" || order.RequestID == "" {
		logger.InfoContext(ctx, "no route for order", "reason", order.Reason())
		return nil, &QuoteUnavailableError{Reason: order.Reason()}
	}

	signed, sig, err := SignTransaction(order.Transaction, s.cfg.Session.Signer)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "order signed", "request_id", order.RequestID, "signature", sig.String())

	res, err := s.api.Execute(ctx, ultra.ExecuteRequest{
		RequestID:         order.RequestID,
		SignedTransaction: signed,
	})
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	outcome := &Outcome{
		RequestID:       order.RequestID,
		Status:          res.Status,
		Signature:       res.Signature,
		Error:           res.Error,
		Detail:          string(res.Raw),
		explorerTxURL:   s.cfg.ExplorerTxURL,
		aggregatorTxURL: s.cfg.AggregatorTxURL,
	}

	if outcome.Succeeded() {
		logger.InfoContext(ctx, "swap succeeded", "request_id", order.RequestID, "signature", res.Signature)
	} else {
		logger.WarnContext(ctx, "swap failed",
			"request_id", order.RequestID,
			"status", res.Status,
			"error", res.Error,
			"signature", res.Signature,
		)
	}
	return outcome, nil
}
