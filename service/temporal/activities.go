package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/ultraswap/service/metrics"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// PollBalanceInput is the schedule argument for one pair.
type PollBalanceInput struct {
	PairID int64  `json:"pair_id"`
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
}

// PollBalanceResult contains the result of one balance poll.
type PollBalanceResult struct {
	PairID   int64     `json:"pair_id"`
	Mint     string    `json:"mint"`
	Amount   uint64    `json:"amount"`
	UIAmount string    `json:"ui_amount"`
	PollTime time.Time `json:"poll_time"`
	Error    *string   `json:"error,omitempty"`
}

// FetchBalanceInput contains parameters for the FetchBalance activity.
type FetchBalanceInput struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"`
}

// FetchBalanceResult contains the result of the FetchBalance activity.
type FetchBalanceResult struct {
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"ui_amount"`
}

// PublishBalanceInput contains parameters for the PublishBalance activity.
type PublishBalanceInput struct {
	PairID int64  `json:"pair_id"`
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

// BalanceReader defines the Solana operations needed by activities.
type BalanceReader interface {
	GetBalance(ctx context.Context, owner solanago.PublicKey, mint string) (*solana.Balance, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	balances  BalanceReader
	publisher natspkg.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(balances BalanceReader, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		balances:  balances,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// FetchBalance reads owner's balance of mint.
func (a *Activities) FetchBalance(ctx context.Context, input FetchBalanceInput) (*FetchBalanceResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("FetchBalance", time.Since(start).Seconds())
	}()

	owner, err := solanago.PublicKeyFromBase58(input.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address %q: %w", input.Owner, err)
	}

	balance, err := a.balances.GetBalance(ctx, owner, input.Mint)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch balance",
			"owner", input.Owner,
			"mint", input.Mint,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}

	a.logger.DebugContext(ctx, "fetched balance",
		"mint", input.Mint,
		"amount", balance.Amount,
	)

	return &FetchBalanceResult{
		Amount:   balance.Amount,
		Decimals: balance.Decimals,
		UIAmount: balance.UIAmount,
	}, nil
}

// PublishBalance emits a balance console event for a pair.
func (a *Activities) PublishBalance(ctx context.Context, input PublishBalanceInput) error {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("PublishBalance", time.Since(start).Seconds())
	}()

	if a.publisher == nil {
		return nil
	}

	event := natspkg.NewBalanceEvent(input.Mint, input.Amount).ForPair(input.PairID)
	if err := a.publisher.PublishEvent(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish balance event",
			"pair_id", input.PairID,
			"error", err,
		)
		return fmt.Errorf("failed to publish balance event: %w", err)
	}
	return nil
}
