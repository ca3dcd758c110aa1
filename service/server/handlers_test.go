package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/ultraswap/service/actions"
	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/dispatch"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/pairs"
	"github.com/brojonat/ultraswap/service/session"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	solMint  = "So11111111111111111111111111111111111111112"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) Session() *session.Session {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*session.Session)
}

func (m *mockApp) SetKey(ctx context.Context, encoded string) (*session.Session, error) {
	args := m.Called(ctx, encoded)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *mockApp) ListPairs(ctx context.Context) ([]*db.Pair, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.Pair), args.Error(1)
}

func (m *mockApp) GetPair(ctx context.Context, id int64) (*db.Pair, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Pair), args.Error(1)
}

func (m *mockApp) CreatePair(ctx context.Context, params db.PairParams) (*db.Pair, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Pair), args.Error(1)
}

func (m *mockApp) UpdatePair(ctx context.Context, id int64, params db.PairParams) (*db.Pair, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Pair), args.Error(1)
}

func (m *mockApp) DeletePair(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockApp) Import(ctx context.Context, r io.Reader, source string) (*pairs.ImportReport, error) {
	args := m.Called(ctx, r, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pairs.ImportReport), args.Error(1)
}

func (m *mockApp) Balance(ctx context.Context, mint string) (*solanapkg.Balance, error) {
	args := m.Called(ctx, mint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*solanapkg.Balance), args.Error(1)
}

func (m *mockApp) RefreshBalance(ctx context.Context, pairID int64) (string, error) {
	args := m.Called(ctx, pairID)
	return args.String(0), args.Error(1)
}

func (m *mockApp) Buy(ctx context.Context, pairID int64) (string, error) {
	args := m.Called(ctx, pairID)
	return args.String(0), args.Error(1)
}

func (m *mockApp) Sell(ctx context.Context, pairID int64, percent decimal.Decimal) (string, error) {
	args := m.Called(ctx, pairID, percent)
	return args.String(0), args.Error(1)
}

func (m *mockApp) RunAll(ctx context.Context, percent decimal.Decimal) ([]actions.Dispatch, error) {
	args := m.Called(ctx, percent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]actions.Dispatch), args.Error(1)
}

func (m *mockApp) ReceivedAmount(ctx context.Context, signature, mint string) (int64, bool, error) {
	args := m.Called(ctx, signature, mint)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

var testDefaults = pairs.Defaults{SlippageBps: 300, PriorityFeeLamports: 500000}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandler(app App, sub natspkg.Subscriber) http.Handler {
	return New(":0", app, sub, testDefaults, nil, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestHandler(new(mockApp), nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSetKey(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	s, err := session.New(key, solana.PublicKey{})
	require.NoError(t, err)

	app := new(mockApp)
	app.On("SetKey", mock.Anything, key.String()).Return(s, nil)
	app.On("SetKey", mock.Anything, "garbage").Return(nil, actions.ErrInvalidKey)
	h := newTestHandler(app, nil)

	rec := do(t, h, http.MethodPut, "/api/v1/key", `{"private_key":"`+key.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp keyResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, key.PublicKey().String(), resp.PublicKey)
	assert.Equal(t, resp.PublicKey, resp.Taker)

	rec = do(t, h, http.MethodPut, "/api/v1/key", `{"private_key":"garbage"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/key", `{"private_key":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestGetKey_NotSet(t *testing.T) {
	app := new(mockApp)
	app.On("Session").Return(nil)

	rec := do(t, newTestHandler(app, nil), http.MethodGet, "/api/v1/key", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePair_FormSemantics(t *testing.T) {
	app := new(mockApp)
	want := db.PairParams{
		InputMint: solMint, OutputMint: usdcMint, Amount: 10000, SlippageBps: 300, PriorityFeeLamports: 500000,
	}
	app.On("CreatePair", mock.Anything, want).Return(&db.Pair{
		ID: 1, InputMint: solMint, OutputMint: usdcMint, Amount: 10000, SlippageBps: 300, PriorityFeeLamports: 500000,
	}, nil)
	h := newTestHandler(app, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/pairs",
		`{"input_mint":"`+solMint+`","output_mint":"`+usdcMint+`","amount":"10000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp pairResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, int32(300), resp.SlippageBps)
	app.AssertExpectations(t)
}

func TestCreatePair_Invalid(t *testing.T) {
	h := newTestHandler(new(mockApp), nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing amount", `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `"}`, "required"},
		{"bad amount", `{"input_mint":"` + solMint + `","output_mint":"` + usdcMint + `","amount":"ten"}`, "invalid integer"},
		{"bad mint", `{"input_mint":"0OIl","output_mint":"` + usdcMint + `","amount":"1"}`, "base58"},
		{"huge body", `{"input_mint":"` + strings.Repeat("A", 2<<20) + `"}`, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/pairs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
		})
	}
}

func TestPairRoutes_ErrorMapping(t *testing.T) {
	app := new(mockApp)
	app.On("GetPair", mock.Anything, int64(9)).Return(nil, db.ErrPairNotFound)
	app.On("DeletePair", mock.Anything, int64(9)).Return(db.ErrPairNotFound)
	app.On("DeletePair", mock.Anything, int64(2)).Return(nil)
	app.On("ListPairs", mock.Anything).Return(nil, errors.New("connection refused"))
	h := newTestHandler(app, nil)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/pairs/9", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/pairs/9", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/v1/pairs/2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/pairs/abc", "").Code)

	rec := do(t, h, http.MethodGet, "/api/v1/pairs", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestImportPairs(t *testing.T) {
	app := new(mockApp)
	app.On("Import", mock.Anything, mock.Anything, "pairs.txt").Return(&pairs.ImportReport{
		Imported: []*db.Pair{{ID: 1, InputMint: solMint, OutputMint: usdcMint, Amount: 1}},
		Skipped:  []pairs.Line{{Number: 2, Text: "bad"}},
	}, nil)
	h := newTestHandler(app, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/pairs/import?source=pairs.txt", "ignored by the mock")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp importResponse
	decodeJSON(t, rec, &resp)
	assert.Len(t, resp.Imported, 1)
	assert.Len(t, resp.Skipped, 1)
	assert.Equal(t, []string{
		"Skipped line 2 (wrong format): bad",
		"Imported 1 pairs from pairs.txt",
	}, resp.Lines)
}

func TestTaskRoutes(t *testing.T) {
	app := new(mockApp)
	app.On("Buy", mock.Anything, int64(1)).Return("task-1", nil)
	app.On("Buy", mock.Anything, int64(2)).Return("", dispatch.ErrBusy)
	app.On("Buy", mock.Anything, int64(3)).Return("", actions.ErrNoKey)
	app.On("RefreshBalance", mock.Anything, int64(1)).Return("task-2", nil)
	app.On("Sell", mock.Anything, int64(1), decimal.RequireFromString("37.5")).Return("task-3", nil)
	app.On("Sell", mock.Anything, int64(4), decimal.Zero).Return("", actions.ErrNativeSell)
	h := newTestHandler(app, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/pairs/1/buy", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp taskResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "task-1", resp.TaskID)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/v1/pairs/2/buy", "").Code)

	rec = do(t, h, http.MethodPost, "/api/v1/pairs/3/buy", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), "Set private key first!")

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/pairs/1/balance", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/pairs/1/sell", `{"percent":"37.5"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/pairs/4/sell", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/pairs/1/sell", `{"percent":150}`).Code)
	app.AssertExpectations(t)
}

func TestRunAll(t *testing.T) {
	app := new(mockApp)
	app.On("RunAll", mock.Anything, decimal.NewFromInt(50)).Return([]actions.Dispatch{
		{PairID: 1, TaskID: "a"},
		{PairID: 2, Err: dispatch.ErrBusy},
	}, nil)
	h := newTestHandler(app, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/swaps/run-all", `{"percent":50}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Tasks []taskResponse `json:"tasks"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, "a", resp.Tasks[0].TaskID)
	assert.Contains(t, resp.Tasks[1].Error, "already running")
}

func TestBalanceAndReceived(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	app := new(mockApp)
	app.On("Balance", mock.Anything, solMint).Return(&solanapkg.Balance{
		Mint: solMint, Owner: owner, Account: owner, Amount: 1500000000, Decimals: 9, UIAmount: "1.5", Native: true,
	}, nil)
	sig := solana.Signature{9, 9, 9}
	app.On("ReceivedAmount", mock.Anything, sig.String(), usdcMint).Return(int64(250), true, nil)
	h := newTestHandler(app, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/balances/"+solMint, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceResponse
	decodeJSON(t, rec, &balance)
	assert.Equal(t, uint64(1500000000), balance.Amount)
	assert.Equal(t, "1.5", balance.UIAmount)
	assert.True(t, balance.Native)

	rec = do(t, h, http.MethodGet, "/api/v1/transactions/"+sig.String()+"/received?mint="+usdcMint, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var received receivedResponse
	decodeJSON(t, rec, &received)
	assert.Equal(t, int64(250), received.Amount)
	assert.True(t, received.Found)

	rec = do(t, h, http.MethodGet, "/api/v1/transactions/nope/received?mint="+usdcMint, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamConsole(t *testing.T) {
	bus := natspkg.NewLocalBus(testLogger())
	srv := httptest.NewServer(newTestHandler(new(mockApp), bus))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream/console?kind=swap", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.NoError(t, bus.PublishEvent(ctx, natspkg.NewEvent(natspkg.KindInfo, "filtered out")))
	require.NoError(t, bus.PublishEvent(ctx, natspkg.NewEvent(natspkg.KindSwap, "Success: abc")))

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: swap") {
			break
		}
		require.NotContains(t, line, "filtered out")
	}
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var event natspkg.ConsoleEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
	assert.Equal(t, "Success: abc", event.Message)
}
