package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/brojonat/ultraswap/service/session"
	"github.com/brojonat/ultraswap/service/ultra"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAggregator scripts Order and Execute and remembers what it was sent.
type fakeAggregator struct {
	order      *ultra.OrderResponse
	orderErr   error
	execute    *ultra.ExecuteResponse
	executeErr error

	orders   []ultra.OrderParams
	executed []ultra.ExecuteRequest
}

func (f *fakeAggregator) Order(ctx context.Context, p ultra.OrderParams) (*ultra.OrderResponse, error) {
	f.orders = append(f.orders, p)
	return f.order, f.orderErr
}

func (f *fakeAggregator) Execute(ctx context.Context, r ultra.ExecuteRequest) (*ultra.ExecuteResponse, error) {
	f.executed = append(f.executed, r)
	return f.execute, f.executeErr
}

// unsignedTransfer builds the kind of blob the aggregator hands back: a transaction
// with payer as fee payer and an empty signature slot.
func unsignedTransfer(t *testing.T, payer solana.PublicKey) string {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1000, payer, solana.NewWallet().PublicKey()).Build(),
		},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func newTestSwapper(t *testing.T, api Aggregator) (*Swapper, *session.Session) {
	t.Helper()
	sess, err := session.New(solana.NewWallet().PrivateKey, solana.PublicKey{})
	require.NoError(t, err)
	s, err := New(Config{Session: sess}, api, nil, nil)
	require.NoError(t, err)
	return s, sess
}

var testRequest = Request{
	InputMint:           "So11111111111111111111111111111111111111112",
	OutputMint:          "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	Amount:              1_000_000,
	SlippageBps:         300,
	PriorityFeeLamports: 500000,
}

func TestRun_QuoteUnavailableSkipsExecute(t *testing.T) {
	tests := []struct {
		name  string
		order *ultra.OrderResponse
	}{
		{name: "no transaction", order: &ultra.OrderResponse{RequestID: "req-1"}},
		{name: "no request id", order: &ultra.OrderResponse{Transaction: "AAAA"}},
		{name: "empty order", order: &ultra.OrderResponse{ErrorMessage: "Insufficient funds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAggregator{order: tt.order}
			s, _ := newTestSwapper(t, api)

			outcome, err := s.Run(context.Background(), testRequest)

			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.True(t, errors.Is(err, ErrQuoteUnavailable))
			assert.Empty(t, api.executed, "execute must not be called without a quote")
			assert.Contains(t, Describe(outcome, err), "swap unavailable, check balance")
		})
	}
}

func TestRun_Success(t *testing.T) {
	const sig = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
	api := &fakeAggregator{
		execute: &ultra.ExecuteResponse{Status: "Success", Signature: sig},
	}
	s, sess := newTestSwapper(t, api)
	api.order = &ultra.OrderResponse{Transaction: unsignedTransfer(t, sess.Owner), RequestID: "req-1"}

	outcome, err := s.Run(context.Background(), testRequest)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())

	msg := outcome.Message()
	assert.Contains(t, msg, "Success: "+sig)
	assert.Contains(t, msg, "\nhttps://explorer.solana.com/tx/"+sig)
	assert.Contains(t, msg, "\nhttps://ultra-api.jup.ag/tx/"+sig)
	assert.Equal(t, []string{
		"https://explorer.solana.com/tx/" + sig,
		"https://ultra-api.jup.ag/tx/" + sig,
	}, outcome.Links())

	require.Len(t, api.orders, 1)
	assert.Equal(t, sess.Taker.String(), api.orders[0].Taker)
	assert.Equal(t, uint64(1_000_000), api.orders[0].Amount)

	require.Len(t, api.executed, 1)
	assert.Equal(t, "req-1", api.executed[0].RequestID)
	assert.NotEmpty(t, api.executed[0].SignedTransaction)
}

func TestRun_FailureWithoutSignature(t *testing.T) {
	api := &fakeAggregator{
		execute: &ultra.ExecuteResponse{Status: "Failed", Error: "Slippage tolerance exceeded"},
	}
	s, sess := newTestSwapper(t, api)
	api.order = &ultra.OrderResponse{Transaction: unsignedTransfer(t, sess.Owner), RequestID: "req-2"}

	outcome, err := s.Run(context.Background(), testRequest)
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())

	msg := outcome.Message()
	assert.Contains(t, msg, "Fail: Slippage tolerance exceeded")
	assert.Contains(t, msg, "https://explorer.solana.com/tx/unknown")
	assert.Contains(t, msg, "https://ultra-api.jup.ag/tx/unknown")
}

func TestRun_FailureWithoutErrorUsesBody(t *testing.T) {
	api := &fakeAggregator{
		execute: &ultra.ExecuteResponse{
			Status:    "Failed",
			Signature: "abc",
			Raw:       []byte(`{"status":"Failed","signature":"abc","code":-2}`),
		},
	}
	s, sess := newTestSwapper(t, api)
	api.order = &ultra.OrderResponse{Transaction: unsignedTransfer(t, sess.Owner), RequestID: "req-3"}

	outcome, err := s.Run(context.Background(), testRequest)
	require.NoError(t, err)

	msg := outcome.Message()
	assert.Contains(t, msg, `Fail: {"status":"Failed","signature":"abc","code":-2}`)
	assert.Contains(t, msg, "https://explorer.solana.com/tx/abc")
}

func TestRun_SignerMismatch(t *testing.T) {
	api := &fakeAggregator{}
	s, _ := newTestSwapper(t, api)
	api.order = &ultra.OrderResponse{
		Transaction: unsignedTransfer(t, solana.NewWallet().PublicKey()),
		RequestID:   "req-4",
	}

	_, err := s.Run(context.Background(), testRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignerNotRequired)
	assert.Empty(t, api.executed)
}

func TestRun_TransportErrors(t *testing.T) {
	api := &fakeAggregator{orderErr: errors.New("connection refused")}
	s, _ := newTestSwapper(t, api)

	outcome, err := s.Run(context.Background(), testRequest)
	require.Error(t, err)
	assert.Equal(t, "Error: order: connection refused", Describe(outcome, err))
}

func TestRun_ZeroAmount(t *testing.T) {
	api := &fakeAggregator{}
	s, _ := newTestSwapper(t, api)

	req := testRequest
	req.Amount = 0
	_, err := s.Run(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, api.orders)
}

func TestNew_RequiresSession(t *testing.T) {
	_, err := New(Config{}, &fakeAggregator{}, nil, nil)
	assert.ErrorIs(t, err, session.ErrNoSigner)
}

func TestNew_CustomLinks(t *testing.T) {
	sess, err := session.New(solana.NewWallet().PrivateKey, solana.PublicKey{})
	require.NoError(t, err)
	api := &fakeAggregator{execute: &ultra.ExecuteResponse{Status: "Success", Signature: "sig"}}
	api.order = &ultra.OrderResponse{Transaction: unsignedTransfer(t, sess.Owner), RequestID: "r"}

	s, err := New(Config{
		Session:         sess,
		ExplorerTxURL:   "https://solscan.io/tx/",
		AggregatorTxURL: "https://jup.example/tx/",
	}, api, nil, nil)
	require.NoError(t, err)

	outcome, err := s.Run(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://solscan.io/tx/sig", "https://jup.example/tx/sig"}, outcome.Links())
}
