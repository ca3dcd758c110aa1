package pairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = Defaults{SlippageBps: 300, PriorityFeeLamports: 500000}

func TestFormParams(t *testing.T) {
	tests := []struct {
		name         string
		form         Form
		wantErr      string
		wantSlippage int32
		wantPriority int64
	}{
		{
			name:         "defaults applied",
			form:         Form{InputMint: " in ", OutputMint: "out", Amount: "10"},
			wantSlippage: 300,
			wantPriority: 500000,
		},
		{
			name:         "explicit values",
			form:         Form{InputMint: "in", OutputMint: "out", Amount: "10", SlippageBps: "50", PriorityFeeLamports: "0"},
			wantSlippage: 50,
			wantPriority: 0,
		},
		{
			name:    "missing amount",
			form:    Form{InputMint: "in", OutputMint: "out"},
			wantErr: "required",
		},
		{
			name:    "missing mint",
			form:    Form{OutputMint: "out", Amount: "1"},
			wantErr: "required",
		},
		{
			name:    "bad amount",
			form:    Form{InputMint: "in", OutputMint: "out", Amount: "1.5"},
			wantErr: "amount",
		},
		{
			name:    "bad slippage",
			form:    Form{InputMint: "in", OutputMint: "out", Amount: "1", SlippageBps: "x"},
			wantErr: "slippage_bps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.form.Params(defaults)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "in", p.InputMint)
			assert.Equal(t, "out", p.OutputMint)
			assert.Equal(t, int64(10), p.Amount)
			assert.Equal(t, tt.wantSlippage, p.SlippageBps)
			assert.Equal(t, tt.wantPriority, p.PriorityFeeLamports)
		})
	}
}
