package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/ultraswap/client"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/fatih/color"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func consoleCommand() *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "Follow the server's console output in real time",
		Description: `Streams console events over Server-Sent Events.

Examples:
  # Everything
  ultraswap console

  # Only swap results
  ultraswap console --kind swap

  # Events for one pair, as JSON
  ultraswap console --jq '.pair_id == 3' --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only show one kind: info, error, swap, balance or import",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter evaluated against each event; all must be truthy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			match, err := compileEventFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}
			jsonOutput := c.Bool("json")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			serverURL := c.String("server-url")
			cl := client.NewClient(serverURL, nil, quietLogger())
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Connecting to %s...\n", serverURL)
				fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")
			}

			return cl.StreamConsole(ctx, c.String("kind"), func(event *natspkg.ConsoleEvent) error {
				ok, err := match(event)
				if err != nil || !ok {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(event)
				}
				printEvent(os.Stdout, event)
				return nil
			})
		},
	}
}

// compileEventFilters returns a matcher that accepts an event only when every
// filter yields a truthy first result.
func compileEventFilters(filters []string) (func(*natspkg.ConsoleEvent) (bool, error), error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}

	return func(event *natspkg.ConsoleEvent) (bool, error) {
		if len(codes) == 0 {
			return true, nil
		}
		// gojq works on plain JSON values, not structs.
		data, err := json.Marshal(event)
		if err != nil {
			return false, err
		}
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return false, err
		}
		for _, code := range codes {
			result, ok := code.Run(v).Next()
			if !ok {
				return false, nil
			}
			if _, isErr := result.(error); isErr {
				return false, nil
			}
			if !isTruthy(result) {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

// isTruthy follows jq: only false and null are falsy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func printEvent(w io.Writer, event *natspkg.ConsoleEvent) {
	stamp := color.HiBlackString(event.Timestamp.Local().Format(time.TimeOnly))
	var msg string
	switch event.Kind {
	case natspkg.KindError:
		msg = color.RedString(event.Message)
	case natspkg.KindSwap:
		if strings.HasPrefix(event.Message, "Success") {
			msg = color.GreenString(event.Message)
		} else {
			msg = color.YellowString(event.Message)
		}
	case natspkg.KindBalance:
		msg = color.CyanString(event.Message)
	case natspkg.KindImport:
		msg = color.MagentaString(event.Message)
	default:
		msg = event.Message
	}
	fmt.Fprintf(w, "%s %s\n", stamp, msg)
}
