package pairs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brojonat/ultraswap/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCreator stores pairs in memory and can be told to fail on a mint.
type memCreator struct {
	pairs  []*db.Pair
	failOn string
}

func (m *memCreator) CreatePair(ctx context.Context, p db.PairParams) (*db.Pair, error) {
	if p.InputMint == m.failOn {
		return nil, errors.New("duplicate key")
	}
	pair := &db.Pair{
		ID:                  int64(len(m.pairs) + 1),
		InputMint:           p.InputMint,
		OutputMint:          p.OutputMint,
		Amount:              p.Amount,
		SlippageBps:         p.SlippageBps,
		PriorityFeeLamports: p.PriorityFeeLamports,
	}
	m.pairs = append(m.pairs, pair)
	return pair, nil
}

const importFile = `# inputMint,outputMint,amount,slippageBps,priorityFeeLamports
So11111111111111111111111111111111111111112,EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v,10000,300,500000

JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN,So11111111111111111111111111111111111111112,5000,200,400000
EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v,So11111111111111111111111111111111111111112,7000
DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263, So11111111111111111111111111111111111111112 ,1 , 50 ,0,extra
`

func TestImport_ThreeValidOneMalformed(t *testing.T) {
	store := &memCreator{}

	report, err := Import(context.Background(), store, strings.NewReader(importFile))
	require.NoError(t, err)

	assert.Len(t, store.pairs, 3)
	assert.Len(t, report.Imported, 3)
	require.Len(t, report.Skipped, 1)
	assert.Empty(t, report.Failed)

	assert.Equal(t, 5, report.Skipped[0].Number)
	assert.Contains(t, report.Skipped[0].Text, "7000")

	last := store.pairs[2]
	assert.Equal(t, "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", last.InputMint)
	assert.Equal(t, "So11111111111111111111111111111111111111112", last.OutputMint)
	assert.Equal(t, int64(1), last.Amount)
	assert.Equal(t, int32(50), last.SlippageBps)

	lines := report.Lines("pairs.txt")
	assert.Equal(t, "Imported 3 pairs from pairs.txt", lines[len(lines)-1])
	assert.Contains(t, lines[0], "Skipped line 5 (wrong format)")
}

func TestImport_NumericErrorsAreFailedNotSkipped(t *testing.T) {
	store := &memCreator{}
	input := "a,b,ten,300,500000\nc,d,10,300,500000\n"

	report, err := Import(context.Background(), store, strings.NewReader(input))
	require.NoError(t, err)

	assert.Len(t, report.Imported, 1)
	assert.Empty(t, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Number)
	assert.Contains(t, report.Failed[0].Reason, "amount")
}

func TestImport_InsertFailureKeepsGoing(t *testing.T) {
	store := &memCreator{failOn: "bad"}
	input := "bad,x,1,1,1\ngood,x,2,2,2\n"

	report, err := Import(context.Background(), store, strings.NewReader(input))
	require.NoError(t, err)

	assert.Len(t, report.Imported, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Number)
	assert.Contains(t, report.Failed[0].Reason, "duplicate key")
}

func TestParseImport_OnlyComments(t *testing.T) {
	plan, err := ParseImport(strings.NewReader("# nothing\n\n   \n#a,b,c,d,e\n"))
	require.NoError(t, err)
	assert.Empty(t, plan.Rows)
	assert.Empty(t, plan.Skipped)
	assert.Empty(t, plan.Failed)
}
