package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brojonat/ultraswap/client"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func apiCommands() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Drive a running server through its HTTP API",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 30 * time.Second,
			},
		},
		Subcommands: []*cli.Command{
			apiSetKeyCommand(),
			apiPairsCommand(),
			apiAddPairCommand(),
			apiDeletePairCommand(),
			apiImportCommand(),
			apiTaskCommand("buy", "Buy a pair's stored amount", (*client.Client).Buy),
			apiSellCommand(),
			apiRunAllCommand(),
			apiTaskCommand("refresh", "Refresh the input balance of a pair", (*client.Client).RefreshBalance),
			apiBalanceCommand(),
			apiReceivedCommand(),
		},
	}
}

func newClient(c *cli.Context) (*client.Client, context.Context, context.CancelFunc) {
	cl := client.NewClient(c.String("server-url"), nil, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	return cl, ctx, cancel
}

func apiSetKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-key",
		Usage:     "Install a private key on the server (reads the key file when no argument is given)",
		ArgsUsage: "[key]",
		Action: func(c *cli.Context) error {
			encoded := c.Args().First()
			if encoded == "" {
				key, err := loadKey(c)
				if err != nil {
					return err
				}
				encoded = key.String()
			}

			cl, ctx, cancel := newClient(c)
			defer cancel()

			key, err := cl.SetKey(ctx, encoded)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(key)
			}
			color.Green("Private key set and saved.")
			fmt.Printf("  Public key: %s\n", key.PublicKey)
			fmt.Printf("  Taker:      %s\n", key.Taker)
			return nil
		},
	}
}

func apiPairsCommand() *cli.Command {
	return &cli.Command{
		Name:  "pairs",
		Usage: "List the server's pairs",
		Action: func(c *cli.Context) error {
			cl, ctx, cancel := newClient(c)
			defer cancel()

			list, err := cl.ListPairs(ctx)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(list)
			}
			for _, p := range list {
				fmt.Printf("%d\t%s -> %s\tamount=%d\tslippage=%d\tpriority=%d\n",
					p.ID, p.InputMint, p.OutputMint, p.Amount, p.SlippageBps, p.PriorityFeeLamports)
			}
			fmt.Fprintf(os.Stderr, "\nTotal: %d pairs\n", len(list))
			return nil
		},
	}
}

func apiAddPairCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Save a new pair through the server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "Input mint", Required: true},
			&cli.StringFlag{Name: "out", Usage: "Output mint", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "Amount in base units of the input mint", Required: true},
			&cli.StringFlag{Name: "slippage-bps", Usage: "Slippage in basis points (blank uses the server default)"},
			&cli.StringFlag{Name: "priority-fee", Usage: "Priority fee in lamports (blank uses the server default)"},
		},
		Action: func(c *cli.Context) error {
			cl, ctx, cancel := newClient(c)
			defer cancel()

			pair, err := cl.CreatePair(ctx, client.PairForm{
				InputMint:           c.String("in"),
				OutputMint:          c.String("out"),
				Amount:              c.String("amount"),
				SlippageBps:         c.String("slippage-bps"),
				PriorityFeeLamports: c.String("priority-fee"),
			})
			if err != nil {
				return err
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

func apiDeletePairCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a pair and stop its tasks",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := pairIDArg(c)
			if err != nil {
				return err
			}
			cl, ctx, cancel := newClient(c)
			defer cancel()

			if err := cl.DeletePair(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Pair %d deleted.\n", id)
			return nil
		},
	}
}

func apiImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Upload a pair file to the server",
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

			cl, ctx, cancel := newClient(c)
			defer cancel()

			result, err := cl.ImportPairs(ctx, r, source)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(result)
			}
			for _, line := range result.Lines {
				fmt.Println(line)
			}
			return nil
		},
	}
}

type taskFunc func(cl *client.Client, ctx context.Context, id int64) (*client.Task, error)

func apiTaskCommand(name, usage string, start taskFunc) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<pair id>",
		Action: func(c *cli.Context) error {
			id, err := pairIDArg(c)
			if err != nil {
				return err
			}
			cl, ctx, cancel := newClient(c)
			defer cancel()

			task, err := start(cl, ctx, id)
			if err != nil {
				return taskError(err)
			}
			return printTask(c, task)
		},
	}
}

func apiSellCommand() *cli.Command {
	return &cli.Command{
		Name:      "sell",
		Usage:     "Sell a percentage of a pair's input balance",
		ArgsUsage: "<pair id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "percent",
				Aliases: []string{"p"},
				Usage:   "Percentage of the balance to sell, 0 < p <= 100 (blank sells everything)",
			},
		},
		Action: func(c *cli.Context) error {
			id, err := pairIDArg(c)
			if err != nil {
				return err
			}
			cl, ctx, cancel := newClient(c)
			defer cancel()

			task, err := cl.Sell(ctx, id, c.String("percent"))
			if err != nil {
				return taskError(err)
			}
			return printTask(c, task)
		},
	}
}

func apiRunAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-all",
		Usage: "Buy every SOL-funded pair and sell every other pair",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "percent",
				Aliases: []string{"p"},
				Usage:   "Percentage of each balance to sell (blank sells everything)",
			},
		},
		Action: func(c *cli.Context) error {
			cl, ctx, cancel := newClient(c)
			defer cancel()

			tasks, err := cl.RunAll(ctx, c.String("percent"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(tasks)
			}
			for _, t := range tasks {
				if t.Error != "" {
					fmt.Printf("pair %d: %s\n", t.PairID, color.RedString(t.Error))
					continue
				}
				fmt.Printf("pair %d: started task %s\n", t.PairID, t.TaskID)
			}
			return nil
		},
	}
}

func apiBalanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the server key's balance of a mint",
		ArgsUsage: "<mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: mint address")
			}
			cl, ctx, cancel := newClient(c)
			defer cancel()

			balance, err := cl.Balance(ctx, c.Args().First())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(balance)
			}
			fmt.Printf("Balance for %s: %d\n", balance.Mint, balance.Amount)
			fmt.Printf("  UI amount: %s\n", balance.UIAmount)
			return nil
		},
	}
}

func apiReceivedCommand() *cli.Command {
	return &cli.Command{
		Name:      "received",
		Usage:     "Show how much of a mint a transaction delivered to the server key",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Usage: "Mint to measure", Required: true},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			cl, ctx, cancel := newClient(c)
			defer cancel()

			received, err := cl.ReceivedAmount(ctx, c.Args().First(), c.String("mint"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(received)
			}
			if !received.Found {
				fmt.Printf("No %s balance change for the key in %s\n", received.Mint, received.Signature)
				return nil
			}
			fmt.Printf("Received %d of %s\n", received.Amount, received.Mint)
			return nil
		},
	}
}

func printTask(c *cli.Context, task *client.Task) error {
	if c.Bool("json") {
		return outputJSON(task)
	}
	fmt.Printf("Started task %s for pair %d\n", task.TaskID, task.PairID)
	fmt.Fprintln(os.Stderr, "Follow progress with: ultraswap console")
	return nil
}

func taskError(err error) error {
	if client.IsConflict(err) {
		return fmt.Errorf("a swap for this pair is still running: %w", err)
	}
	return err
}
