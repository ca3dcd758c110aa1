package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Flags fall back to a local .env when one exists.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ultraswap",
		Usage: "Jupiter Ultra swap tool CLI",
		Description: `A command-line tool for the ultraswap service.

Manage saved pairs and the signing key, run one-off swaps, drive a running
server through its API, and follow the console stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Saved pairs, straight against the database
			pairsCommands(),
			// Local key file
			keyCommands(),
			// Direct chain and aggregator access
			balanceCommand(),
			swapCommand(),
			// Client commands (HTTP API)
			apiCommands(),
			consoleCommand(),
			// Temporal balance schedules
			{
				Name:  "temporal",
				Usage: "Temporal balance schedule commands",
				Subcommands: []*cli.Command{
					listSchedulesCommand(),
					reconcileCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "ultraswap server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "key-path",
				Usage:   "Private key file",
				EnvVars: []string{"PRIVATE_KEY_PATH"},
				Value:   "./private_key.txt",
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC endpoint",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.mainnet-beta.solana.com/",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue for balance polling",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "ultraswap-balance-polling",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
