package temporal

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Scheduler manages Temporal schedules for balance polling.
// Each pair gets its own schedule that triggers the PollBalanceWorkflow.
type Scheduler interface {
	// UpsertBalanceSchedule creates the schedule for a pair, or replaces the
	// owner, mint and interval of an existing one.
	UpsertBalanceSchedule(ctx context.Context, pairID int64, owner, mint string, interval time.Duration) error

	// DeleteBalanceSchedule stops polling for a pair.
	DeleteBalanceSchedule(ctx context.Context, pairID int64) error
}

const schedulePrefix = "balance-pair-"

// scheduleID returns the Temporal schedule ID for a pair.
func scheduleID(pairID int64) string {
	return schedulePrefix + strconv.FormatInt(pairID, 10)
}

// PairIDFromScheduleID reverses scheduleID. ok is false for schedules this
// package did not create.
func PairIDFromScheduleID(id string) (int64, bool) {
	rest, found := strings.CutPrefix(id, schedulePrefix)
	if !found {
		return 0, false
	}
	pairID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return pairID, true
}
