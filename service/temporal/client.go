package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) pollAction(pairID int64, owner, mint string) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        scheduleID(pairID),
		Workflow:  "PollBalanceWorkflow",
		TaskQueue: c.taskQueue,
		Args: []interface{}{
			PollBalanceInput{
				PairID: pairID,
				Owner:  owner,
				Mint:   mint,
			},
		},
	}
}

func (c *Client) createBalanceSchedule(ctx context.Context, pairID int64, owner, mint string, interval time.Duration) error {
	id := scheduleID(pairID)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: c.pollAction(pairID, owner, mint),
		Memo: map[string]interface{}{
			"pair_id": pairID,
			"mint":    mint,
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"pair_id", pairID,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("balance schedule created",
		"pair_id", pairID,
		"owner", owner,
		"mint", mint,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertBalanceSchedule creates the schedule for a pair or updates the existing one.
func (c *Client) UpsertBalanceSchedule(ctx context.Context, pairID int64, owner, mint string, interval time.Duration) error {
	id := scheduleID(pairID)

	c.logger.Debug("upserting balance schedule",
		"pair_id", pairID,
		"mint", mint,
		"schedule_id", id,
		"interval", interval,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.createBalanceSchedule(ctx, pairID, owner, mint, interval)
	}

	action := c.pollAction(pairID, owner, mint)
	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			input.Description.Schedule.Action = action
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"pair_id", pairID,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("balance schedule updated",
		"pair_id", pairID,
		"mint", mint,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteBalanceSchedule deletes the Temporal schedule for a pair.
func (c *Client) DeleteBalanceSchedule(ctx context.Context, pairID int64) error {
	id := scheduleID(pairID)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"pair_id", pairID,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("balance schedule deleted",
		"pair_id", pairID,
		"schedule_id", id,
	)
	return nil
}

// ListBalanceSchedules returns the pair ids that currently have a schedule.
func (c *Client) ListBalanceSchedules(ctx context.Context) ([]int64, error) {
	iter, err := c.client.ScheduleClient().List(ctx, client.ScheduleListOptions{PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var ids []int64
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to list schedules: %w", err)
		}
		if pairID, ok := PairIDFromScheduleID(entry.ID); ok {
			ids = append(ids, pairID)
		}
	}
	return ids, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the task queue schedules start workflows on.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
