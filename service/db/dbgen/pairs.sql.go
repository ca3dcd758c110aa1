package dbgen

import (
	"context"
)

const pairColumns = `id, input_mint, output_mint, amount, slippage_bps, priority_fee_lamports, created_at, updated_at`

const countPairs = `-- name: CountPairs :one
SELECT COUNT(*) FROM swap_pairs
`

func (q *Queries) CountPairs(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countPairs)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createPair = `-- name: CreatePair :one
INSERT INTO swap_pairs (input_mint, output_mint, amount, slippage_bps, priority_fee_lamports)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + pairColumns

type CreatePairParams struct {
	InputMint           string `json:"input_mint"`
	OutputMint          string `json:"output_mint"`
	Amount              int64  `json:"amount"`
	SlippageBps         int32  `json:"slippage_bps"`
	PriorityFeeLamports int64  `json:"priority_fee_lamports"`
}

func (q *Queries) CreatePair(ctx context.Context, arg CreatePairParams) (SwapPair, error) {
	row := q.db.QueryRow(ctx, createPair,
		arg.InputMint,
		arg.OutputMint,
		arg.Amount,
		arg.SlippageBps,
		arg.PriorityFeeLamports,
	)
	var i SwapPair
	err := scanPair(row, &i)
	return i, err
}

const deletePair = `-- name: DeletePair :execrows
DELETE FROM swap_pairs WHERE id = $1
`

func (q *Queries) DeletePair(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, deletePair, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getPair = `-- name: GetPair :one
SELECT ` + pairColumns + `
FROM swap_pairs
WHERE id = $1
`

func (q *Queries) GetPair(ctx context.Context, id int64) (SwapPair, error) {
	row := q.db.QueryRow(ctx, getPair, id)
	var i SwapPair
	err := scanPair(row, &i)
	return i, err
}

const listPairs = `-- name: ListPairs :many
SELECT ` + pairColumns + `
FROM swap_pairs
ORDER BY id
`

func (q *Queries) ListPairs(ctx context.Context) ([]SwapPair, error) {
	rows, err := q.db.Query(ctx, listPairs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SwapPair
	for rows.Next() {
		var i SwapPair
		if err := scanPair(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updatePair = `-- name: UpdatePair :one
UPDATE swap_pairs
SET input_mint = $2,
    output_mint = $3,
    amount = $4,
    slippage_bps = $5,
    priority_fee_lamports = $6,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + pairColumns

type UpdatePairParams struct {
	ID                  int64  `json:"id"`
	InputMint           string `json:"input_mint"`
	OutputMint          string `json:"output_mint"`
	Amount              int64  `json:"amount"`
	SlippageBps         int32  `json:"slippage_bps"`
	PriorityFeeLamports int64  `json:"priority_fee_lamports"`
}

func (q *Queries) UpdatePair(ctx context.Context, arg UpdatePairParams) (SwapPair, error) {
	row := q.db.QueryRow(ctx, updatePair,
		arg.ID,
		arg.InputMint,
		arg.OutputMint,
		arg.Amount,
		arg.SlippageBps,
		arg.PriorityFeeLamports,
	)
	var i SwapPair
	err := scanPair(row, &i)
	return i, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(row scanner, i *SwapPair) error {
	return row.Scan(
		&i.ID,
		&i.InputMint,
		&i.OutputMint,
		&i.Amount,
		&i.SlippageBps,
		&i.PriorityFeeLamports,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}
