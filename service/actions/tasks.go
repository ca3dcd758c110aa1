package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/dispatch"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/session"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/swap"
	"github.com/shopspring/decimal"
)

// RefreshBalance fetches a pair's input-mint balance in the background.
// A refresh already running for the pair is cancelled.
func (a *Actions) RefreshBalance(ctx context.Context, pairID int64) (string, error) {
	s, err := a.requireSession()
	if err != nil {
		return "", err
	}
	pair, err := a.cfg.Store.GetPair(ctx, pairID)
	if err != nil {
		return "", err
	}

	a.publish(ctx, natspkg.NewEvent(natspkg.KindInfo, "Updating balance for "+pair.InputMint+"...").ForPair(pairID))

	taskID, err := a.cfg.Dispatcher.Submit(balanceKey(pairID), dispatch.Replace, func(ctx context.Context) {
		taskID := dispatch.TaskID(ctx)
		balance, err := a.cfg.Balances.GetBalance(ctx, s.Owner, pair.InputMint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.taskFail(ctx, pairID, taskID, fmt.Errorf("update balance error: %w", err))
			return
		}
		event := natspkg.NewBalanceEvent(pair.InputMint, balance.Amount).ForPair(pairID)
		event.TaskID = taskID
		a.publish(ctx, event)
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// Buy swaps the pair's stored amount in the background.
// It returns dispatch.ErrBusy while a swap for the pair is in flight.
func (a *Actions) Buy(ctx context.Context, pairID int64) (string, error) {
	s, err := a.requireSession()
	if err != nil {
		return "", err
	}
	pair, err := a.cfg.Store.GetPair(ctx, pairID)
	if err != nil {
		return "", err
	}
	if pair.Amount <= 0 {
		return "", fmt.Errorf("pair %d has no amount to buy", pairID)
	}
	return a.submitSwap(s, pair, func(context.Context) (uint64, error) {
		return uint64(pair.Amount), nil
	}, fmt.Sprintf("Buying %d of %s", pair.Amount, pair.InputMint))
}

// Sell swaps percent of the current input-mint balance in the background.
// A zero percent sells everything.
func (a *Actions) Sell(ctx context.Context, pairID int64, percent decimal.Decimal) (string, error) {
	s, err := a.requireSession()
	if err != nil {
		return "", err
	}
	percent = percentOrAll(percent)
	if _, err := swap.PercentOf(0, percent); err != nil {
		return "", err
	}
	pair, err := a.cfg.Store.GetPair(ctx, pairID)
	if err != nil {
		return "", err
	}
	if solanapkg.IsNativeMint(pair.InputMint) {
		return "", ErrNativeSell
	}
	return a.submitSell(s, pair, percent)
}

// RunAll starts a swap for every pair: native input pairs buy their stored
// amount, the others sell percent of their balance. Pairs that cannot start
// are reported in their Dispatch and skipped.
func (a *Actions) RunAll(ctx context.Context, percent decimal.Decimal) ([]Dispatch, error) {
	s, err := a.requireSession()
	if err != nil {
		return nil, err
	}
	percent = percentOrAll(percent)
	if _, err := swap.PercentOf(0, percent); err != nil {
		return nil, err
	}
	all, err := a.cfg.Store.ListPairs(ctx)
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("run all swaps error: %w", err))
	}

	out := make([]Dispatch, 0, len(all))
	for _, pair := range all {
		d := Dispatch{PairID: pair.ID}
		if solanapkg.IsNativeMint(pair.InputMint) {
			if pair.Amount <= 0 {
				d.Err = fmt.Errorf("pair %d has no amount to buy", pair.ID)
			} else {
				amount := uint64(pair.Amount)
				d.TaskID, d.Err = a.submitSwap(s, pair, func(context.Context) (uint64, error) {
					return amount, nil
				}, runningLine(pair, amount))
			}
		} else {
			d.TaskID, d.Err = a.submitSell(s, pair, percent)
		}
		if d.Err != nil {
			a.publish(ctx, natspkg.NewEvent(natspkg.KindError,
				fmt.Sprintf("run all swaps error for pair %d: %v", pair.ID, d.Err)).ForPair(pair.ID))
		}
		out = append(out, d)
	}
	return out, nil
}

func (a *Actions) submitSell(s *session.Session, pair *db.Pair, percent decimal.Decimal) (string, error) {
	amountFor := func(ctx context.Context) (uint64, error) {
		balance, err := a.cfg.Balances.GetBalance(ctx, s.Owner, pair.InputMint)
		if err != nil {
			return 0, fmt.Errorf("failed to read balance of %s: %w", pair.InputMint, err)
		}
		amount, err := swap.PercentOf(balance.Amount, percent)
		if err != nil {
			return 0, err
		}
		if amount == 0 {
			return 0, fmt.Errorf("nothing to sell: balance of %s is %d", pair.InputMint, balance.Amount)
		}
		a.publish(ctx, natspkg.NewEvent(natspkg.KindInfo,
			fmt.Sprintf("Selling %d of %s (%s%%)", amount, pair.InputMint, percent.String())).ForPair(pair.ID))
		return amount, nil
	}
	return a.submitSwap(s, pair, amountFor, "")
}

// submitSwap dispatches one swap for pair. amountFor runs inside the task so
// balance reads do not block the caller. intro, when set, is published once the
// amount is known.
func (a *Actions) submitSwap(
	s *session.Session,
	pair *db.Pair,
	amountFor func(context.Context) (uint64, error),
	intro string,
) (string, error) {
	swapper, err := a.cfg.NewSwapper(s)
	if err != nil {
		return "", fmt.Errorf("failed to prepare swap: %w", err)
	}

	taskID, err := a.cfg.Dispatcher.Submit(swapKey(pair.ID), dispatch.Reject, func(ctx context.Context) {
		taskID := dispatch.TaskID(ctx)
		amount, err := amountFor(ctx)
		if err != nil {
			a.taskFail(ctx, pair.ID, taskID, err)
			return
		}
		if intro != "" {
			event := natspkg.NewEvent(natspkg.KindInfo, intro).ForPair(pair.ID)
			event.TaskID = taskID
			a.publish(ctx, event)
		}

		outcome, err := swapper.Run(ctx, swap.Request{
			InputMint:           pair.InputMint,
			OutputMint:          pair.OutputMint,
			Amount:              amount,
			SlippageBps:         int(pair.SlippageBps),
			PriorityFeeLamports: pair.PriorityFeeLamports,
		})

		kind := natspkg.KindSwap
		if err != nil && !errors.Is(err, swap.ErrQuoteUnavailable) {
			kind = natspkg.KindError
		}
		event := natspkg.NewEvent(kind, swap.Describe(outcome, err)).ForPair(pair.ID)
		event.TaskID = taskID
		event.Mint = pair.InputMint
		event.Amount = &amount
		if outcome != nil {
			event.Signature = outcome.Signature
		}
		a.publish(ctx, event)
	})
	if err != nil {
		return "", err
	}

	return taskID, nil
}

func runningLine(pair *db.Pair, amount uint64) string {
	return fmt.Sprintf("Running swap: %s -> %s | Amount: %d | Slippage: %d | Priority: %d",
		pair.InputMint, pair.OutputMint, amount, pair.SlippageBps, pair.PriorityFeeLamports)
}

func (a *Actions) info(ctx context.Context, message string) {
	a.publish(ctx, natspkg.NewEvent(natspkg.KindInfo, message))
}

// fail reports err on the console and returns it unchanged.
func (a *Actions) fail(ctx context.Context, err error) error {
	a.logger.ErrorContext(ctx, "action failed", "error", err)
	a.publish(ctx, natspkg.NewEvent(natspkg.KindError, err.Error()))
	return err
}

func (a *Actions) taskFail(ctx context.Context, pairID int64, taskID string, err error) {
	a.logger.ErrorContext(ctx, "task failed", "pair_id", pairID, "task_id", taskID, "error", err)
	event := natspkg.NewEvent(natspkg.KindError, err.Error()).ForPair(pairID)
	event.TaskID = taskID
	a.publish(ctx, event)
}

// publish never fails the caller; a lost console line is only logged.
func (a *Actions) publish(ctx context.Context, event *natspkg.ConsoleEvent) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := a.cfg.Publisher.PublishEvent(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "failed to publish console event",
			"kind", event.Kind,
			"error", err,
		)
	}
}
