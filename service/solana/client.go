package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brojonat/ultraswap/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// nativeDecimals is the number of lamports in one SOL expressed as a power of ten.
const nativeDecimals = 9

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetTokenAccountBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetTokenAccountBalanceResult, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client answers balance and settlement questions for a wallet.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling. If metrics is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// GetBalance returns owner's balance of mint. SOL is read straight from the
// owner account; every other mint goes through the owner's associated token account.
func (c *Client) GetBalance(ctx context.Context, owner solana.PublicKey, mint string) (*Balance, error) {
	if IsNativeMint(mint) {
		return c.nativeBalance(ctx, owner)
	}

	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mintKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account for mint %s: %w", mint, err)
	}

	start := time.Now()
	result, err := c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	c.record("GetTokenAccountBalance", start, err)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get token balance",
			"owner", owner.String(),
			"mint", mint,
			"account", ata.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get token balance for %s: %w", mint, err)
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("empty token balance response for account %s", ata)
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid token amount %q: %w", result.Value.Amount, err)
	}

	return &Balance{
		Mint:     mint,
		Owner:    owner,
		Account:  ata,
		Amount:   amount,
		Decimals: result.Value.Decimals,
		UIAmount: result.Value.UiAmountString,
	}, nil
}

func (c *Client) nativeBalance(ctx context.Context, owner solana.PublicKey) (*Balance, error) {
	start := time.Now()
	result, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentFinalized)
	c.record("GetBalance", start, err)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get native balance",
			"owner", owner.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get SOL balance: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("empty balance response for %s", owner)
	}

	return &Balance{
		Mint:     NativeMint,
		Owner:    owner,
		Account:  owner,
		Amount:   result.Value,
		Decimals: nativeDecimals,
		UIAmount: decimal.New(int64(result.Value), -nativeDecimals).String(),
		Native:   true,
	}, nil
}

// ReceivedAmount reports how much of mint the transaction moved into owner's
// token accounts. ok is false when the transaction carries no balance data for mint.
func (c *Client) ReceivedAmount(
	ctx context.Context,
	signature solana.Signature,
	owner solana.PublicKey,
	mint string,
) (delta int64, ok bool, err error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, signature, opts)
	c.record("GetTransaction", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	if result == nil || result.Meta == nil {
		return 0, false, nil
	}

	delta, ok = TokenDelta(result.Meta, mint, owner)
	return delta, ok, nil
}

func (c *Client) record(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}
