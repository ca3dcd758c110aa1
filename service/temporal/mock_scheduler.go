package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScheduledPoll is what MockScheduler remembers about one schedule.
type ScheduledPoll struct {
	Owner    string
	Mint     string
	Interval time.Duration
}

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[int64]ScheduledPoll
	upsertErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[int64]ScheduledPoll),
	}
}

// UpsertBalanceSchedule records the schedule.
func (m *MockScheduler) UpsertBalanceSchedule(ctx context.Context, pairID int64, owner, mint string, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.schedules[pairID] = ScheduledPoll{Owner: owner, Mint: mint, Interval: interval}
	return nil
}

// DeleteBalanceSchedule removes a recorded schedule.
func (m *MockScheduler) DeleteBalanceSchedule(ctx context.Context, pairID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.schedules[pairID]; !exists {
		return fmt.Errorf("schedule %q not found", scheduleID(pairID))
	}
	delete(m.schedules, pairID)
	return nil
}

// SetUpsertError makes UpsertBalanceSchedule return an error.
func (m *MockScheduler) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SetDeleteError makes DeleteBalanceSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// Schedule returns the recorded schedule for a pair.
func (m *MockScheduler) Schedule(pairID int64) (ScheduledPoll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[pairID]
	return s, ok
}

// ScheduleCount returns the number of schedules.
func (m *MockScheduler) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}
