package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/ultraswap/service/actions"
	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/dispatch"
	"github.com/brojonat/ultraswap/service/keystore"
	"github.com/brojonat/ultraswap/service/pairs"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/swap"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxImportBodySize  = 8 << 20
	maxAddressLength   = 100
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

type keyRequest struct {
	PrivateKey string `json:"private_key"`
}

type keyResponse struct {
	PublicKey string `json:"public_key"`
	Taker     string `json:"taker"`
}

type percentRequest struct {
	Percent json.Number `json:"percent"`
}

type pairResponse struct {
	ID                  int64     `json:"id"`
	InputMint           string    `json:"input_mint"`
	OutputMint          string    `json:"output_mint"`
	Amount              int64     `json:"amount"`
	SlippageBps         int32     `json:"slippage_bps"`
	PriorityFeeLamports int64     `json:"priority_fee_lamports"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type taskResponse struct {
	PairID int64  `json:"pair_id"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type importResponse struct {
	Imported []pairResponse `json:"imported"`
	Skipped  []importLine   `json:"skipped"`
	Failed   []importLine   `json:"failed"`
	Lines    []string       `json:"lines"`
}

type importLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

type balanceResponse struct {
	Mint     string `json:"mint"`
	Owner    string `json:"owner"`
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
	UIAmount string `json:"ui_amount"`
	Native   bool   `json:"native"`
}

type receivedResponse struct {
	Signature string `json:"signature"`
	Mint      string `json:"mint"`
	Amount    int64  `json:"amount"`
	Found     bool   `json:"found"`
}

// handleSetKey installs the signing key.
// PUT /api/v1/key
func handleSetKey(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req keyRequest
		if !decodeBody(w, r, &req, logger) {
			return
		}

		s, err := app.SetKey(r.Context(), req.PrivateKey)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}

		writeJSON(w, keyResponse{PublicKey: s.Owner.String(), Taker: s.Taker.String()}, http.StatusOK)
	})
}

// handleGetKey reports the public side of the current key.
// GET /api/v1/key
func handleGetKey(app App) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := app.Session()
		if s == nil {
			writeError(w, "no private key set", http.StatusNotFound)
			return
		}
		writeJSON(w, keyResponse{PublicKey: s.Owner.String(), Taker: s.Taker.String()}, http.StatusOK)
	})
}

// handleListPairs returns every saved pair.
// GET /api/v1/pairs
func handleListPairs(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := app.ListPairs(r.Context())
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}

		resp := make([]pairResponse, len(list))
		for i, p := range list {
			resp[i] = pairToResponse(p)
		}
		writeJSON(w, map[string]interface{}{"pairs": resp}, http.StatusOK)
	})
}

// handleGetPair returns one pair.
// GET /api/v1/pairs/{id}
func handleGetPair(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pairID(w, r)
		if !ok {
			return
		}
		pair, err := app.GetPair(r.Context(), id)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, pairToResponse(pair), http.StatusOK)
	})
}

// handleCreatePair saves a pair from form fields.
// POST /api/v1/pairs
func handleCreatePair(app App, defaults pairs.Defaults, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, ok := decodeForm(w, r, defaults, logger)
		if !ok {
			return
		}
		pair, err := app.CreatePair(r.Context(), params)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		logger.InfoContext(r.Context(), "pair created", "pair_id", pair.ID)
		writeJSON(w, pairToResponse(pair), http.StatusCreated)
	})
}

// handleUpdatePair replaces a pair's fields.
// PUT /api/v1/pairs/{id}
func handleUpdatePair(app App, defaults pairs.Defaults, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pairID(w, r)
		if !ok {
			return
		}
		params, ok := decodeForm(w, r, defaults, logger)
		if !ok {
			return
		}
		pair, err := app.UpdatePair(r.Context(), id, params)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, pairToResponse(pair), http.StatusOK)
	})
}

// handleDeletePair removes a pair.
// DELETE /api/v1/pairs/{id}
func handleDeletePair(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pairID(w, r)
		if !ok {
			return
		}
		if err := app.DeletePair(r.Context(), id); err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleImportPairs reads pair lines from the request body.
// POST /api/v1/pairs/import?source={name}
func handleImportPairs(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "request"
		}

		body := http.MaxBytesReader(w, r.Body, maxImportBodySize)
		report, err := app.Import(r.Context(), body, source)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeActionError(w, r, err, logger)
			return
		}

		resp := importResponse{
			Imported: make([]pairResponse, len(report.Imported)),
			Skipped:  importLines(report.Skipped),
			Failed:   importLines(report.Failed),
			Lines:    report.Lines(source),
		}
		for i, p := range report.Imported {
			resp.Imported[i] = pairToResponse(p)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleRefreshBalance starts a balance refresh for a pair.
// POST /api/v1/pairs/{id}/balance
func handleRefreshBalance(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pairID(w, r)
		if !ok {
			return
		}
		taskID, err := app.RefreshBalance(r.Context(), id)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, taskResponse{PairID: id, TaskID: taskID}, http.StatusAccepted)
	})
}

// handleBuy starts a buy for a pair.
// POST /api/v1/pairs/{id}/buy
func handleBuy(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pairID(w, r)
		if !ok {
			return
		}
		taskID, err := app.Buy(r.Context(), id)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, taskResponse{PairID: id, TaskID: taskID}, http.StatusAccepted)
	})
}

// handleSell starts a sell of a share of the pair's input balance.
// POST /api/v1/pairs/{id}/sell {"percent": 50}
func handleSell(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pairID(w, r)
		if !ok {
			return
		}
		percent, ok := decodePercent(w, r, logger)
		if !ok {
			return
		}
		taskID, err := app.Sell(r.Context(), id, percent)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, taskResponse{PairID: id, TaskID: taskID}, http.StatusAccepted)
	})
}

// handleRunAll starts a swap for every pair.
// POST /api/v1/swaps/run-all {"percent": 100}
func handleRunAll(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		percent, ok := decodePercent(w, r, logger)
		if !ok {
			return
		}
		dispatches, err := app.RunAll(r.Context(), percent)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}

		resp := make([]taskResponse, len(dispatches))
		for i, d := range dispatches {
			resp[i] = taskResponse{PairID: d.PairID, TaskID: d.TaskID}
			if d.Err != nil {
				resp[i].Error = d.Err.Error()
			}
		}
		writeJSON(w, map[string]interface{}{"tasks": resp}, http.StatusAccepted)
	})
}

// handleBalance returns the current key's balance of a mint.
// GET /api/v1/balances/{mint}
func handleBalance(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")
		if err := validateAddress(mint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		balance, err := app.Balance(r.Context(), mint)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, balanceToResponse(balance), http.StatusOK)
	})
}

// handleReceivedAmount reports how much of a mint a transaction moved to the current key.
// GET /api/v1/transactions/{signature}/received?mint={mint}
func handleReceivedAmount(app App, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.PathValue("signature")
		if _, err := solanago.SignatureFromBase58(signature); err != nil {
			writeError(w, "invalid signature", http.StatusBadRequest)
			return
		}
		mint := r.URL.Query().Get("mint")
		if err := validateAddress(mint); err != nil {
			writeError(w, "mint: "+err.Error(), http.StatusBadRequest)
			return
		}

		amount, found, err := app.ReceivedAmount(r.Context(), signature, mint)
		if err != nil {
			writeActionError(w, r, err, logger)
			return
		}
		writeJSON(w, receivedResponse{Signature: signature, Mint: mint, Amount: amount, Found: found}, http.StatusOK)
	})
}

func pairToResponse(p *db.Pair) pairResponse {
	return pairResponse{
		ID:                  p.ID,
		InputMint:           p.InputMint,
		OutputMint:          p.OutputMint,
		Amount:              p.Amount,
		SlippageBps:         p.SlippageBps,
		PriorityFeeLamports: p.PriorityFeeLamports,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func balanceToResponse(b *solanapkg.Balance) balanceResponse {
	return balanceResponse{
		Mint:     b.Mint,
		Owner:    b.Owner.String(),
		Account:  b.Account.String(),
		Amount:   b.Amount,
		Decimals: b.Decimals,
		UIAmount: b.UIAmount,
		Native:   b.Native,
	}
}

func importLines(lines []pairs.Line) []importLine {
	out := make([]importLine, len(lines))
	for i, l := range lines {
		out[i] = importLine{Number: l.Number, Text: l.Text, Reason: l.Reason}
	}
	return out
}

// pairID parses the {id} path value, writing a 400 on failure.
func pairID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "invalid pair id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeBody reads a size-limited JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "request body too large", http.StatusBadRequest)
			return false
		}
		logger.DebugContext(r.Context(), "invalid request body", "error", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func decodeForm(w http.ResponseWriter, r *http.Request, defaults pairs.Defaults, logger *slog.Logger) (db.PairParams, bool) {
	var form pairs.Form
	if !decodeBody(w, r, &form, logger) {
		return db.PairParams{}, false
	}
	params, err := form.Params(defaults)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return db.PairParams{}, false
	}
	for _, mint := range []string{params.InputMint, params.OutputMint} {
		if err := validateAddress(mint); err != nil {
			writeError(w, "mint: "+err.Error(), http.StatusBadRequest)
			return db.PairParams{}, false
		}
	}
	return params, true
}

// decodePercent reads an optional {"percent": ...} body. A missing body or
// percent means the whole balance.
func decodePercent(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (decimal.Decimal, bool) {
	if r.ContentLength == 0 {
		return decimal.Zero, true
	}
	var req percentRequest
	if !decodeBody(w, r, &req, logger) {
		return decimal.Zero, false
	}
	if req.Percent == "" {
		return decimal.Zero, true
	}
	percent, err := swap.ParsePercent(req.Percent.String())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return decimal.Zero, false
	}
	return percent, true
}

// writeActionError maps domain errors to status codes.
func writeActionError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var invalid *validationError
	switch {
	case errors.Is(err, db.ErrPairNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dispatch.ErrBusy):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, actions.ErrNoKey):
		writeError(w, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, actions.ErrInvalidKey),
		errors.Is(err, keystore.ErrEmptyKey),
		errors.Is(err, actions.ErrNativeSell),
		errors.Is(err, swap.ErrInvalidPercent),
		errors.Is(err, pairs.ErrMissingFields),
		errors.As(err, &invalid):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, dispatch.ErrClosed):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress checks that address looks like a base58 Solana key.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
