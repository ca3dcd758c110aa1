package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// PollBalanceWorkflow reads one pair's input-mint balance and reports it on the console.
// It is triggered by a per-pair Temporal schedule.
func PollBalanceWorkflow(ctx workflow.Context, input PollBalanceInput) (*PollBalanceResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PollBalanceWorkflow started", "pair_id", input.PairID, "mint", input.Mint)

	result := &PollBalanceResult{
		PairID:   input.PairID,
		Mint:     input.Mint,
		PollTime: workflow.Now(ctx),
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var balance *FetchBalanceResult
	err := workflow.ExecuteActivity(ctx, a.FetchBalance, FetchBalanceInput{
		Owner: input.Owner,
		Mint:  input.Mint,
	}).Get(ctx, &balance)
	if err != nil {
		errMsg := fmt.Sprintf("failed to fetch balance: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to fetch balance: %w", err)
	}

	result.Amount = balance.Amount
	result.UIAmount = balance.UIAmount

	err = workflow.ExecuteActivity(ctx, a.PublishBalance, PublishBalanceInput{
		PairID: input.PairID,
		Mint:   input.Mint,
		Amount: balance.Amount,
	}).Get(ctx, nil)
	if err != nil {
		// The balance was read; a lost console line is not worth failing the run.
		logger.Warn("failed to publish balance", "pair_id", input.PairID, "error", err)
	}

	logger.Info("PollBalanceWorkflow completed", "pair_id", input.PairID, "amount", balance.Amount)
	return result, nil
}
