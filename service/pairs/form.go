package pairs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brojonat/ultraswap/service/db"
)

// ErrMissingFields is returned when a form lacks a mint or an amount.
var ErrMissingFields = errors.New("input mint, output mint and amount are required")

// Defaults fill the optional form fields.
type Defaults struct {
	SlippageBps         int
	PriorityFeeLamports int64
}

// Form is a pair as typed by a user. Every field is raw text.
type Form struct {
	InputMint           string `json:"input_mint"`
	OutputMint          string `json:"output_mint"`
	Amount              string `json:"amount"`
	SlippageBps         string `json:"slippage_bps,omitempty"`
	PriorityFeeLamports string `json:"priority_fee_lamports,omitempty"`
}

// Params validates the form and converts it, applying defaults to blank optional fields.
func (f Form) Params(d Defaults) (db.PairParams, error) {
	in := strings.TrimSpace(f.InputMint)
	out := strings.TrimSpace(f.OutputMint)
	amountText := strings.TrimSpace(f.Amount)
	if in == "" || out == "" || amountText == "" {
		return db.PairParams{}, ErrMissingFields
	}

	amount, err := strconv.ParseInt(amountText, 10, 64)
	if err != nil {
		return db.PairParams{}, fmt.Errorf("amount: invalid integer %q", amountText)
	}

	slippage := int64(d.SlippageBps)
	if s := strings.TrimSpace(f.SlippageBps); s != "" {
		if slippage, err = strconv.ParseInt(s, 10, 32); err != nil {
			return db.PairParams{}, fmt.Errorf("slippage_bps: invalid integer %q", s)
		}
	}

	priority := d.PriorityFeeLamports
	if s := strings.TrimSpace(f.PriorityFeeLamports); s != "" {
		if priority, err = strconv.ParseInt(s, 10, 64); err != nil {
			return db.PairParams{}, fmt.Errorf("priority_fee_lamports: invalid integer %q", s)
		}
	}

	return db.PairParams{
		InputMint:           in,
		OutputMint:          out,
		Amount:              amount,
		SlippageBps:         int32(slippage),
		PriorityFeeLamports: priority,
	}, nil
}
