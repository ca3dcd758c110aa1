package dbgen

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type SwapPair struct {
	ID                  int64              `json:"id"`
	InputMint           string             `json:"input_mint"`
	OutputMint          string             `json:"output_mint"`
	Amount              int64              `json:"amount"`
	SlippageBps         int32              `json:"slippage_bps"`
	PriorityFeeLamports int64              `json:"priority_fee_lamports"`
	CreatedAt           pgtype.Timestamptz `json:"created_at"`
	UpdatedAt           pgtype.Timestamptz `json:"updated_at"`
}
