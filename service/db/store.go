package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/ultraswap/service/db/dbgen"
	"github.com/brojonat/ultraswap/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const pairsTable = "swap_pairs"

// ErrPairNotFound is returned when no pair has the requested id.
var ErrPairNotFound = errors.New("pair not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	q       *dbgen.Queries
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		q:       dbgen.New(pool),
		metrics: m,
	}
}

// Pair is a saved swap configuration.
type Pair struct {
	ID                  int64
	InputMint           string
	OutputMint          string
	Amount              int64
	SlippageBps         int32
	PriorityFeeLamports int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PairParams holds the user-editable fields of a pair.
type PairParams struct {
	InputMint           string
	OutputMint          string
	Amount              int64
	SlippageBps         int32
	PriorityFeeLamports int64
}

// EnsureSchema creates the pairs table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreatePair inserts a new pair and returns it with its assigned id.
func (s *Store) CreatePair(ctx context.Context, params PairParams) (*Pair, error) {
	start := time.Now()
	result, err := s.q.CreatePair(ctx, dbgen.CreatePairParams{
		InputMint:           params.InputMint,
		OutputMint:          params.OutputMint,
		Amount:              params.Amount,
		SlippageBps:         params.SlippageBps,
		PriorityFeeLamports: params.PriorityFeeLamports,
	})
	s.record("create", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create pair: %w", err)
	}
	return dbPairToDomain(&result), nil
}

// GetPair retrieves a pair by id.
func (s *Store) GetPair(ctx context.Context, id int64) (*Pair, error) {
	start := time.Now()
	result, err := s.q.GetPair(ctx, id)
	s.record("get", start, err)
	if err != nil {
		return nil, notFound(err, id)
	}
	return dbPairToDomain(&result), nil
}

// ListPairs returns every pair ordered by id.
func (s *Store) ListPairs(ctx context.Context) ([]*Pair, error) {
	start := time.Now()
	results, err := s.q.ListPairs(ctx)
	s.record("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}

	pairs := make([]*Pair, len(results))
	for i := range results {
		pairs[i] = dbPairToDomain(&results[i])
	}
	return pairs, nil
}

// UpdatePair overwrites every editable field of pair id.
func (s *Store) UpdatePair(ctx context.Context, id int64, params PairParams) (*Pair, error) {
	start := time.Now()
	result, err := s.q.UpdatePair(ctx, dbgen.UpdatePairParams{
		ID:                  id,
		InputMint:           params.InputMint,
		OutputMint:          params.OutputMint,
		Amount:              params.Amount,
		SlippageBps:         params.SlippageBps,
		PriorityFeeLamports: params.PriorityFeeLamports,
	})
	s.record("update", start, err)
	if err != nil {
		return nil, notFound(err, id)
	}
	return dbPairToDomain(&result), nil
}

// DeletePair removes pair id.
func (s *Store) DeletePair(ctx context.Context, id int64) error {
	start := time.Now()
	n, err := s.q.DeletePair(ctx, id)
	s.record("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete pair %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrPairNotFound, id)
	}
	return nil
}

// CountPairs returns the number of saved pairs.
func (s *Store) CountPairs(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.q.CountPairs(ctx)
	s.record("count", start, err)
	return n, err
}

func (s *Store) record(operation string, start time.Time, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	s.metrics.RecordDBQuery(operation, pairsTable, time.Since(start).Seconds(), err)
}

func notFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrPairNotFound, id)
	}
	return fmt.Errorf("pair %d: %w", id, err)
}

func dbPairToDomain(p *dbgen.SwapPair) *Pair {
	return &Pair{
		ID:                  p.ID,
		InputMint:           p.InputMint,
		OutputMint:          p.OutputMint,
		Amount:              p.Amount,
		SlippageBps:         p.SlippageBps,
		PriorityFeeLamports: p.PriorityFeeLamports,
		CreatedAt:           timeFromPgtimestamptz(p.CreatedAt),
		UpdatedAt:           timeFromPgtimestamptz(p.UpdatedAt),
	}
}

func timeFromPgtimestamptz(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
