// Package pairs parses pair definitions from forms and import files.
package pairs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brojonat/ultraswap/service/db"
)

// importFields is the number of comma separated fields in an import line:
// inputMint,outputMint,amount,slippageBps,priorityFeeLamports
const importFields = 5

// Creator persists one pair.
type Creator interface {
	CreatePair(ctx context.Context, params db.PairParams) (*db.Pair, error)
}

// Line is a rejected input line and why.
type Line struct {
	Number int
	Text   string
	Reason string
}

// Row is a valid import line.
type Row struct {
	Number int
	Params db.PairParams
}

// ImportPlan is the parsed content of an import file.
type ImportPlan struct {
	Rows    []Row
	Skipped []Line
	Failed  []Line
}

// ImportReport summarizes an import.
type ImportReport struct {
	Imported []*db.Pair
	Skipped  []Line
	Failed   []Line
}

// Lines renders the report for the console, one entry per rejected line.
func (r *ImportReport) Lines(source string) []string {
	out := make([]string, 0, len(r.Skipped)+len(r.Failed)+1)
	for _, l := range r.Skipped {
		out = append(out, fmt.Sprintf("Skipped line %d (wrong format): %s", l.Number, l.Text))
	}
	for _, l := range r.Failed {
		out = append(out, fmt.Sprintf("Import error on line %d: %s", l.Number, l.Reason))
	}
	out = append(out, fmt.Sprintf("Imported %d pairs from %s", len(r.Imported), source))
	return out
}

// ParseImport reads pair lines. Blank lines and lines starting with # are ignored.
// Lines with fewer than five fields are skipped; fields beyond the fifth are ignored.
// Lines whose numeric fields do not parse are reported as failed.
func ParseImport(r io.Reader) (*ImportPlan, error) {
	plan := &ImportPlan{}
	scanner := bufio.NewScanner(r)
	number := 0
	for scanner.Scan() {
		number++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < importFields {
			plan.Skipped = append(plan.Skipped, Line{Number: number, Text: line, Reason: "wrong format"})
			continue
		}

		params, err := parseFields(parts[:importFields])
		if err != nil {
			plan.Failed = append(plan.Failed, Line{Number: number, Text: line, Reason: err.Error()})
			continue
		}
		plan.Rows = append(plan.Rows, Row{Number: number, Params: params})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import: %w", err)
	}
	return plan, nil
}

// Import parses r and inserts each valid row on its own. An insert failure is
// recorded and the remaining rows are still attempted.
func Import(ctx context.Context, store Creator, r io.Reader) (*ImportReport, error) {
	plan, err := ParseImport(r)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{
		Skipped: plan.Skipped,
		Failed:  plan.Failed,
	}
	for _, row := range plan.Rows {
		pair, err := store.CreatePair(ctx, row.Params)
		if err != nil {
			report.Failed = append(report.Failed, Line{
				Number: row.Number,
				Text:   row.Params.InputMint + "," + row.Params.OutputMint,
				Reason: err.Error(),
			})
			continue
		}
		report.Imported = append(report.Imported, pair)
	}
	return report, nil
}

func parseFields(f []string) (db.PairParams, error) {
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}

	amount, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil {
		return db.PairParams{}, fmt.Errorf("amount: invalid integer %q", f[2])
	}
	slippage, err := strconv.ParseInt(f[3], 10, 32)
	if err != nil {
		return db.PairParams{}, fmt.Errorf("slippageBps: invalid integer %q", f[3])
	}
	priority, err := strconv.ParseInt(f[4], 10, 64)
	if err != nil {
		return db.PairParams{}, fmt.Errorf("priorityFeeLamports: invalid integer %q", f[4])
	}

	return db.PairParams{
		InputMint:           f[0],
		OutputMint:          f[1],
		Amount:              amount,
		SlippageBps:         int32(slippage),
		PriorityFeeLamports: priority,
	}, nil
}
