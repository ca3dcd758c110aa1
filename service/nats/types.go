package nats

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Console event kinds. Each kind is published on "console.<kind>".
const (
	KindInfo    = "info"
	KindError   = "error"
	KindSwap    = "swap"
	KindBalance = "balance"
	KindImport  = "import"
)

// ConsoleEvent is one line of console output, plus enough structure for clients to filter on.
type ConsoleEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	PairID    *int64    `json:"pair_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Mint      string    `json:"mint,omitempty"`
	Amount    *uint64   `json:"amount,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps a console event with an id and the current time.
func NewEvent(kind, message string) *ConsoleEvent {
	return &ConsoleEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// ForPair tags the event with a pair id.
func (e *ConsoleEvent) ForPair(id int64) *ConsoleEvent {
	e.PairID = &id
	return e
}

// Subject returns the subject the event is published on.
func (e *ConsoleEvent) Subject() string {
	return SubjectFor(e.Kind)
}

// SubjectFor maps a kind to its subject. An empty kind matches every console subject.
func SubjectFor(kind string) string {
	if kind == "" {
		return StreamSubjects
	}
	return subjectPrefix + kind
}

// NewBalanceEvent reports a fetched balance the way the console shows it.
func NewBalanceEvent(mint string, amount uint64) *ConsoleEvent {
	e := NewEvent(KindBalance, fmt.Sprintf("Balance for %s: %d", mint, amount))
	e.Mint = mint
	e.Amount = &amount
	return e
}
