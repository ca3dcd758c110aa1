package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/pairs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func pairsCommands() *cli.Command {
	return &cli.Command{
		Name:  "pairs",
		Usage: "Manage saved pairs directly in the database",
		Description: `These commands bypass the server. Balance schedules are not touched;
run "ultraswap temporal reconcile --fix" afterwards when Temporal is in use.`,
		Subcommands: []*cli.Command{
			listPairsCommand(),
			addPairCommand(),
			updatePairCommand(),
			deletePairCommand(),
			importPairsCommand(),
		},
	}
}

func formFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "in", Usage: "Input mint", Required: true},
		&cli.StringFlag{Name: "out", Usage: "Output mint", Required: true},
		&cli.StringFlag{Name: "amount", Usage: "Amount in base units of the input mint", Required: true},
		&cli.StringFlag{Name: "slippage-bps", Usage: "Slippage in basis points (blank uses the default)"},
		&cli.StringFlag{Name: "priority-fee", Usage: "Priority fee in lamports (blank uses the default)"},
		&cli.IntFlag{
			Name:    "default-slippage-bps",
			EnvVars: []string{"DEFAULT_SLIPPAGE_BPS"},
			Value:   300,
			Hidden:  true,
		},
		&cli.Int64Flag{
			Name:    "default-priority-fee",
			EnvVars: []string{"DEFAULT_PRIORITY_FEE_LAMPORTS"},
			Value:   500000,
			Hidden:  true,
		},
	}
}

func formParams(c *cli.Context) (db.PairParams, error) {
	form := pairs.Form{
		InputMint:           c.String("in"),
		OutputMint:          c.String("out"),
		Amount:              c.String("amount"),
		SlippageBps:         c.String("slippage-bps"),
		PriorityFeeLamports: c.String("priority-fee"),
	}
	return form.Params(pairs.Defaults{
		SlippageBps:         c.Int("default-slippage-bps"),
		PriorityFeeLamports: c.Int64("default-priority-fee"),
	})
}

func listPairsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List all saved pairs",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			list, err := store.ListPairs(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list pairs: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(list)
			}

			printPairs(os.Stdout, list)
			fmt.Fprintf(os.Stderr, "\nTotal: %d pairs\n", len(list))
			return nil
		},
	}
}

func addPairCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Save a new pair",
		Flags: formFlags(),
		Action: func(c *cli.Context) error {
			params, err := formParams(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			pair, err := store.CreatePair(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to add pair: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(pair)
			}
			fmt.Printf("Pair added: %s -> %s amount=%d\n", pair.InputMint, pair.OutputMint, pair.Amount)
			fmt.Printf("  ID: %d\n", pair.ID)
			return nil
		},
	}
}

func updatePairCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Replace a pair's fields",
		ArgsUsage: "<id>",
		Flags:     formFlags(),
		Action: func(c *cli.Context) error {
			id, err := pairIDArg(c)
			if err != nil {
				return err
			}
			params, err := formParams(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			pair, err := store.UpdatePair(context.Background(), id, params)
			if err != nil {
				return fmt.Errorf("failed to update pair: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(pair)
			}
			fmt.Printf("Pair %d updated.\n", pair.ID)
			return nil
		},
	}
}

func deletePairCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a pair",
		Aliases:   []string{"rm"},
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := pairIDArg(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.DeletePair(context.Background(), id); err != nil {
				return fmt.Errorf("failed to delete pair: %w", err)
			}
			fmt.Printf("Pair %d deleted.\n", id)
			return nil
		},
	}
}

func importPairsCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import pairs from a file, one \"in,out,amount,slippage_bps,priority_fee\" per line",
		ArgsUsage: "<file|->",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: file path or - for stdin")
			}
			source := c.Args().First()

			var r io.Reader = os.Stdin
			if source != "-" {
				f, err := os.Open(source)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", source, err)
				}
				defer f.Close()
				r = f
			} else {
				source = "stdin"
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			report, err := pairs.Import(context.Background(), store, r)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(report)
			}
			for _, line := range report.Lines(source) {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func printPairs(out io.Writer, list []*db.Pair) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINPUT MINT\tOUTPUT MINT\tAMOUNT\tSLIPPAGE BPS\tPRIORITY FEE\tUPDATED")
	for _, p := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			p.ID,
			p.InputMint,
			p.OutputMint,
			p.Amount,
			p.SlippageBps,
			p.PriorityFeeLamports,
			p.UpdatedAt.Format(time.RFC3339),
		)
	}
	w.Flush()
}

func pairIDArg(c *cli.Context) (int64, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("requires exactly one argument: pair id")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid pair id %q", c.Args().First())
	}
	return id, nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, func() { pool.Close() }, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
