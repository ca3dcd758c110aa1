package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/brojonat/ultraswap/service/session"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/swap"
	"github.com/brojonat/ultraswap/service/ultra"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show a token balance straight from the RPC node",
		ArgsUsage: "<mint>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "owner",
				Usage: "Owner address (defaults to the configured key's address)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: mint address")
			}
			mint := c.Args().First()

			var owner solanago.PublicKey
			if o := c.String("owner"); o != "" {
				var err error
				owner, err = solanago.PublicKeyFromBase58(o)
				if err != nil {
					return fmt.Errorf("invalid owner address: %w", err)
				}
			} else {
				key, err := loadKey(c)
				if err != nil {
					return err
				}
				owner = key.PublicKey()
			}

			rpcURL := c.String("rpc-url")
			rpc := solanapkg.NewClient(solanapkg.NewRPCClient(rpcURL), solanapkg.EndpointLabel(rpcURL), nil, quietLogger())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			fmt.Fprintf(os.Stderr, "Updating balance for %s...\n", mint)
			balance, err := rpc.GetBalance(ctx, owner, mint)
			if err != nil {
				return fmt.Errorf("update balance error: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(balance)
			}
			fmt.Printf("Balance for %s: %d\n", mint, balance.Amount)
			fmt.Printf("  UI amount: %s\n", balance.UIAmount)
			fmt.Printf("  Decimals:  %d\n", balance.Decimals)
			fmt.Printf("  Account:   %s\n", balance.Account)
			return nil
		},
	}
}

func swapCommand() *cli.Command {
	return &cli.Command{
		Name:  "swap",
		Usage: "Run one swap with the configured key, without a server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Input mint", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Output mint", Required: true},
			&cli.Uint64Flag{Name: "amount", Usage: "Amount in base units of the input mint", Required: true},
			&cli.IntFlag{Name: "slippage-bps", Usage: "Slippage in basis points", EnvVars: []string{"DEFAULT_SLIPPAGE_BPS"}, Value: 300},
			&cli.Int64Flag{Name: "priority-fee", Usage: "Priority fee in lamports", EnvVars: []string{"DEFAULT_PRIORITY_FEE_LAMPORTS"}, Value: 500000},
			&cli.StringFlag{Name: "ultra-url", Usage: "Ultra API base URL", EnvVars: []string{"ULTRA_API_URL"}, Value: "https://ultra-api.jup.ag"},
			&cli.StringFlag{Name: "taker", Usage: "Order taker (defaults to the key's address)", EnvVars: []string{"TAKER_ADDRESS"}},
			&cli.StringFlag{Name: "exclude-dexes", EnvVars: []string{"EXCLUDE_DEXES"}},
			&cli.StringFlag{Name: "exclude-routers", EnvVars: []string{"EXCLUDE_ROUTERS"}},
			&cli.DurationFlag{Name: "timeout", Usage: "Overall timeout", Value: 2 * time.Minute},
		},
		Action: func(c *cli.Context) error {
			key, err := loadKey(c)
			if err != nil {
				return err
			}

			var taker solanago.PublicKey
			if t := c.String("taker"); t != "" {
				taker, err = solanago.PublicKeyFromBase58(t)
				if err != nil {
					return fmt.Errorf("invalid taker address: %w", err)
				}
			}
			sess, err := session.New(key, taker)
			if err != nil {
				return err
			}

			logger := quietLogger()
			api := ultra.NewClient(c.String("ultra-url"), &http.Client{Timeout: 30 * time.Second}, nil, logger)
			swapper, err := swap.New(swap.Config{
				Session:        sess,
				ExcludeDexes:   c.String("exclude-dexes"),
				ExcludeRouters: c.String("exclude-routers"),
			}, api, nil, logger)
			if err != nil {
				return err
			}

			req := swap.Request{
				InputMint:           c.String("in"),
				OutputMint:          c.String("out"),
				Amount:              c.Uint64("amount"),
				SlippageBps:         c.Int("slippage-bps"),
				PriorityFeeLamports: c.Int64("priority-fee"),
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()

			jsonOutput := c.Bool("json")
			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			if !jsonOutput {
				fmt.Printf("Running swap: %s -> %s | Amount: %d | Slippage: %d | Priority: %d\n",
					req.InputMint, req.OutputMint, req.Amount, req.SlippageBps, req.PriorityFeeLamports)
				s.Suffix = " Ordering, signing and executing..."
				s.Start()
			}
			outcome, err := swapper.Run(ctx, req)
			if !jsonOutput {
				s.Stop()
			}

			if jsonOutput {
				result := map[string]interface{}{"message": swap.Describe(outcome, err)}
				if outcome != nil {
					result["status"] = outcome.Status
					result["signature"] = outcome.Signature
					result["request_id"] = outcome.RequestID
				}
				if encErr := outputJSON(result); encErr != nil {
					return encErr
				}
				return swapExitError(outcome, err)
			}

			printOutcome(os.Stdout, outcome, err)
			return swapExitError(outcome, err)
		},
	}
}

// printOutcome colours the console message: green on success, red otherwise.
func printOutcome(w io.Writer, outcome *swap.Outcome, err error) {
	msg := swap.Describe(outcome, err)
	if err == nil && outcome != nil && outcome.Succeeded() {
		fmt.Fprintln(w, color.GreenString(msg))
		return
	}
	fmt.Fprintln(w, color.RedString(msg))
}

func swapExitError(outcome *swap.Outcome, err error) error {
	if err != nil || outcome == nil || !outcome.Succeeded() {
		return cli.Exit("", 1)
	}
	return nil
}

func quietLogger() *slog.Logger {
	level := slog.LevelError
	if v, err := strconv.ParseBool(os.Getenv("ULTRASWAP_DEBUG")); err == nil && v {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
