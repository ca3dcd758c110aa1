package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/ultraswap/service/db"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	err := newApp().Run([]string{"ultraswap", "--server-url", server.URL, "server", "health"})
	require.NoError(t, err)
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newApp().Run([]string{"ultraswap", "--server-url", server.URL, "server", "health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestAPISellCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/pairs/5/sell", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "50", body["percent"])

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{"pair_id": 5, "task_id": "t-1"})
	}))
	defer server.Close()

	err := newApp().Run([]string{"ultraswap", "--server-url", server.URL, "api", "sell", "--percent", "50", "5"})
	require.NoError(t, err)
}

func TestAPIBuyCommand_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "task already running"})
	}))
	defer server.Close()

	err := newApp().Run([]string{"ultraswap", "--server-url", server.URL, "api", "buy", "5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still running")
}

func TestAPITaskCommand_InvalidID(t *testing.T) {
	err := newApp().Run([]string{"ultraswap", "api", "buy", "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pair id")
}

func TestCompileEventFilters(t *testing.T) {
	pairID := int64(3)
	amount := uint64(42)
	event := &natspkg.ConsoleEvent{
		Kind:    natspkg.KindBalance,
		Message: "Balance for " + usdcMint + ": 42",
		PairID:  &pairID,
		Mint:    usdcMint,
		Amount:  &amount,
	}

	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{name: "no filters", filters: nil, want: true},
		{name: "pair match", filters: []string{".pair_id == 3"}, want: true},
		{name: "pair mismatch", filters: []string{".pair_id == 4"}, want: false},
		{name: "all must hold", filters: []string{".kind == \"balance\"", ".amount > 100"}, want: false},
		{name: "non-boolean truthy", filters: []string{".mint"}, want: true},
		{name: "missing field is null", filters: []string{".signature"}, want: false},
		{name: "runtime error rejects", filters: []string{".message | tonumber"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := compileEventFilters(tt.filters)
			require.NoError(t, err)
			got, err := match(event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileEventFilters_Invalid(t *testing.T) {
	_, err := compileEventFilters([]string{".foo |"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestReconcile(t *testing.T) {
	list := []*db.Pair{
		{ID: 1, InputMint: "So11111111111111111111111111111111111111112", OutputMint: usdcMint},
		{ID: 2, InputMint: usdcMint, OutputMint: bonkMint},
		{ID: 3, InputMint: bonkMint, OutputMint: usdcMint},
	}
	// 1 is a SOL-funded pair and must not be polled; 9 has no pair.
	report := reconcile(list, []int64{9, 1, 3})

	require.Len(t, report.Missing, 1)
	assert.Equal(t, int64(2), report.Missing[0].ID)
	assert.Equal(t, []int64{1, 9}, report.Orphaned)
}

func TestPrintEvent(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)
	var buf bytes.Buffer
	printEvent(&buf, &natspkg.ConsoleEvent{Kind: natspkg.KindError, Message: "Set private key first!", Timestamp: ts})
	assert.Equal(t, "12:30:00 Set private key first!\n", buf.String())
}

func TestPairIDArgRequiresOneArgument(t *testing.T) {
	err := newApp().Run([]string{"ultraswap", "pairs", "delete"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires exactly one argument")
}
