// Package actions implements every user operation: key management, pair CRUD,
// imports, balance refreshes and swaps. Failures are reported on the console
// as well as returned.
package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/dispatch"
	"github.com/brojonat/ultraswap/service/keystore"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/pairs"
	"github.com/brojonat/ultraswap/service/session"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/swap"
	"github.com/brojonat/ultraswap/service/temporal"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoKey is returned by every operation that needs a signer before one is set.
	ErrNoKey = errors.New("Set private key first!")
	// ErrInvalidKey wraps every key parse failure in SetKey.
	ErrInvalidKey = errors.New("invalid private key")
	// ErrNativeSell is returned when selling a pair whose input is the native mint.
	ErrNativeSell = errors.New("pairs with a native input mint can only be bought")
)

// PairStore is the persistence the actions need.
type PairStore interface {
	pairs.Creator
	GetPair(ctx context.Context, id int64) (*db.Pair, error)
	ListPairs(ctx context.Context) ([]*db.Pair, error)
	UpdatePair(ctx context.Context, id int64, params db.PairParams) (*db.Pair, error)
	DeletePair(ctx context.Context, id int64) error
}

// BalanceReader answers balance and settlement questions.
type BalanceReader interface {
	GetBalance(ctx context.Context, owner solana.PublicKey, mint string) (*solanapkg.Balance, error)
	ReceivedAmount(ctx context.Context, signature solana.Signature, owner solana.PublicKey, mint string) (int64, bool, error)
}

// Swapper runs one swap.
type Swapper interface {
	Run(ctx context.Context, req swap.Request) (*swap.Outcome, error)
}

// SwapperFactory builds a Swapper bound to a session.
type SwapperFactory func(s *session.Session) (Swapper, error)

// Config wires the actions to their collaborators.
type Config struct {
	// KeyPath is where SetKey saves and LoadKey reads the base58 key.
	KeyPath string
	// Taker overrides the order taker. Zero means the key's own address.
	Taker solana.PublicKey
	// PollInterval is the balance schedule interval.
	PollInterval time.Duration

	Store      PairStore
	Balances   BalanceReader
	NewSwapper SwapperFactory
	Dispatcher *dispatch.Dispatcher
	Publisher  natspkg.Publisher
	// Scheduler is optional. Nil disables balance auto-refresh.
	Scheduler temporal.Scheduler
	Logger    *slog.Logger
}

// Dispatch reports what RunAll did with one pair.
type Dispatch struct {
	PairID int64
	TaskID string
	Err    error
}

// Actions is the application shell.
type Actions struct {
	cfg     Config
	keyring session.Keyring
	logger  *slog.Logger
}

// New creates the actions. Store, Balances, NewSwapper, Dispatcher and Publisher are required.
func New(cfg Config) (*Actions, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("actions require a pair store")
	case cfg.Balances == nil:
		return nil, errors.New("actions require a balance reader")
	case cfg.NewSwapper == nil:
		return nil, errors.New("actions require a swapper factory")
	case cfg.Dispatcher == nil:
		return nil, errors.New("actions require a dispatcher")
	case cfg.Publisher == nil:
		return nil, errors.New("actions require a console publisher")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Actions{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Session returns the current session, or nil when no key is set.
func (a *Actions) Session() *session.Session {
	return a.keyring.Current()
}

func (a *Actions) requireSession() (*session.Session, error) {
	s := a.keyring.Current()
	if s == nil {
		return nil, ErrNoKey
	}
	return s, nil
}

// SetKey installs a new private key and saves it to the key file.
func (a *Actions) SetKey(ctx context.Context, encoded string) (*session.Session, error) {
	key, err := keystore.Parse(encoded)
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("%w: %v", ErrInvalidKey, err))
	}
	s, err := session.New(key, a.cfg.Taker)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	if err := keystore.SaveFile(a.cfg.KeyPath, key); err != nil {
		return nil, a.fail(ctx, err)
	}

	a.keyring.Set(s)
	a.logger.InfoContext(ctx, "private key set", "owner", s.Owner.String())
	a.info(ctx, "Private key set and saved.")

	a.resyncSchedules(ctx)
	return s, nil
}

// LoadKey installs the key from the environment or the key file, if there is one.
// It reports whether a key was loaded.
func (a *Actions) LoadKey(ctx context.Context) (bool, error) {
	key, err := keystore.Load(a.cfg.KeyPath)
	if errors.Is(err, keystore.ErrNoKeyFile) {
		return false, nil
	}
	if err != nil {
		return false, a.fail(ctx, err)
	}
	s, err := session.New(key, a.cfg.Taker)
	if err != nil {
		return false, a.fail(ctx, err)
	}

	a.keyring.Set(s)
	a.logger.InfoContext(ctx, "private key loaded", "owner", s.Owner.String())
	a.info(ctx, "Private key loaded from file.")
	return true, nil
}

// ListPairs returns every saved pair.
func (a *Actions) ListPairs(ctx context.Context) ([]*db.Pair, error) {
	return a.cfg.Store.ListPairs(ctx)
}

// GetPair returns one pair.
func (a *Actions) GetPair(ctx context.Context, id int64) (*db.Pair, error) {
	return a.cfg.Store.GetPair(ctx, id)
}

// CreatePair saves a new pair.
func (a *Actions) CreatePair(ctx context.Context, params db.PairParams) (*db.Pair, error) {
	pair, err := a.cfg.Store.CreatePair(ctx, params)
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("failed to add pair: %w", err))
	}
	a.info(ctx, fmt.Sprintf("Pair added: %s -> %s amount=%d", pair.InputMint, pair.OutputMint, pair.Amount))
	a.syncSchedule(ctx, pair)
	return pair, nil
}

// UpdatePair replaces the editable fields of a pair.
func (a *Actions) UpdatePair(ctx context.Context, id int64, params db.PairParams) (*db.Pair, error) {
	pair, err := a.cfg.Store.UpdatePair(ctx, id, params)
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("failed to update pair %d: %w", id, err))
	}
	a.publish(ctx, natspkg.NewEvent(natspkg.KindInfo, fmt.Sprintf("Pair %d updated.", id)).ForPair(id))
	a.syncSchedule(ctx, pair)
	return pair, nil
}

// DeletePair removes a pair, cancels its tasks and drops its schedule.
func (a *Actions) DeletePair(ctx context.Context, id int64) error {
	if err := a.cfg.Store.DeletePair(ctx, id); err != nil {
		return a.fail(ctx, fmt.Errorf("failed to delete pair %d: %w", id, err))
	}
	a.cfg.Dispatcher.Cancel(swapKey(id))
	a.cfg.Dispatcher.Cancel(balanceKey(id))
	if a.cfg.Scheduler != nil {
		if err := a.cfg.Scheduler.DeleteBalanceSchedule(ctx, id); err != nil {
			a.logger.WarnContext(ctx, "failed to delete balance schedule", "pair_id", id, "error", err)
		}
	}
	a.publish(ctx, natspkg.NewEvent(natspkg.KindInfo, fmt.Sprintf("Pair %d deleted.", id)).ForPair(id))
	return nil
}

// Import reads pair lines from r. source names the input in console lines.
func (a *Actions) Import(ctx context.Context, r io.Reader, source string) (*pairs.ImportReport, error) {
	report, err := pairs.Import(ctx, a.cfg.Store, r)
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("import failed: %w", err))
	}
	for _, line := range report.Lines(source) {
		a.publish(ctx, natspkg.NewEvent(natspkg.KindImport, line))
	}
	for _, pair := range report.Imported {
		a.syncSchedule(ctx, pair)
	}
	a.logger.InfoContext(ctx, "pairs imported",
		"source", source,
		"imported", len(report.Imported),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

// Balance returns the current key's balance of mint.
func (a *Actions) Balance(ctx context.Context, mint string) (*solanapkg.Balance, error) {
	s, err := a.requireSession()
	if err != nil {
		return nil, err
	}
	balance, err := a.cfg.Balances.GetBalance(ctx, s.Owner, mint)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	return balance, nil
}

// ReceivedAmount reports how much of mint a confirmed transaction moved to the current key.
func (a *Actions) ReceivedAmount(ctx context.Context, signature, mint string) (int64, bool, error) {
	s, err := a.requireSession()
	if err != nil {
		return 0, false, err
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return 0, false, fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	return a.cfg.Balances.ReceivedAmount(ctx, sig, s.Owner, mint)
}

func swapKey(pairID int64) string {
	return "swap:" + strconv.FormatInt(pairID, 10)
}

func balanceKey(pairID int64) string {
	return "balance:" + strconv.FormatInt(pairID, 10)
}

// syncSchedule keeps a pair's balance schedule in line with its input mint.
// Native input pairs are only ever bought, so they are not polled.
func (a *Actions) syncSchedule(ctx context.Context, pair *db.Pair) {
	if a.cfg.Scheduler == nil {
		return
	}
	s := a.keyring.Current()
	if s == nil || solanapkg.IsNativeMint(pair.InputMint) {
		if err := a.cfg.Scheduler.DeleteBalanceSchedule(ctx, pair.ID); err != nil {
			a.logger.DebugContext(ctx, "no balance schedule to delete", "pair_id", pair.ID, "error", err)
		}
		return
	}
	err := a.cfg.Scheduler.UpsertBalanceSchedule(ctx, pair.ID, s.Owner.String(), pair.InputMint, a.cfg.PollInterval)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to sync balance schedule", "pair_id", pair.ID, "error", err)
	}
}

func (a *Actions) resyncSchedules(ctx context.Context) {
	if a.cfg.Scheduler == nil {
		return
	}
	all, err := a.cfg.Store.ListPairs(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to list pairs for schedule sync", "error", err)
		return
	}
	for _, pair := range all {
		a.syncSchedule(ctx, pair)
	}
}

// SyncSchedules reconciles every pair's balance schedule.
func (a *Actions) SyncSchedules(ctx context.Context) {
	a.resyncSchedules(ctx)
}

// percentOrAll treats a zero percent as the whole balance.
func percentOrAll(p decimal.Decimal) decimal.Decimal {
	if p.IsZero() {
		return decimal.NewFromInt(100)
	}
	return p
}
