package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/brojonat/ultraswap/service/db"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/temporal"
	"github.com/urfave/cli/v2"
)

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List balance polling schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ids, err := tc.ListBalanceSchedules(context.Background())
			if err != nil {
				return err
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			if c.Bool("json") {
				return outputJSON(ids)
			}
			for _, id := range ids {
				fmt.Printf("balance-pair-%d\n", id)
			}
			fmt.Printf("\nTotal: %d schedules\n", len(ids))
			return nil
		},
	}
}

// reconcileReport compares saved pairs with existing schedules. Only pairs with
// a non-SOL input are polled.
type reconcileReport struct {
	Missing  []*db.Pair `json:"missing"`
	Orphaned []int64    `json:"orphaned"`
}

func reconcile(list []*db.Pair, scheduled []int64) reconcileReport {
	want := make(map[int64]bool)
	var report reconcileReport
	have := make(map[int64]bool, len(scheduled))
	for _, id := range scheduled {
		have[id] = true
	}
	for _, p := range list {
		if solanapkg.IsNativeMint(p.InputMint) {
			continue
		}
		want[p.ID] = true
		if !have[p.ID] {
			report.Missing = append(report.Missing, p)
		}
	}
	for _, id := range scheduled {
		if !want[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}
	sort.Slice(report.Orphaned, func(i, j int) bool { return report.Orphaned[i] < report.Orphaned[j] })
	return report
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Check for inconsistencies between saved pairs and balance schedules",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "Create missing schedules and delete orphaned ones",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Poll interval for created schedules",
				EnvVars: []string{"BALANCE_POLL_INTERVAL"},
				Value:   10 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			list, err := store.ListPairs(ctx)
			if err != nil {
				return fmt.Errorf("failed to list pairs: %w", err)
			}
			scheduled, err := tc.ListBalanceSchedules(ctx)
			if err != nil {
				return err
			}

			report := reconcile(list, scheduled)
			if c.Bool("json") && !c.Bool("fix") {
				return outputJSON(report)
			}

			fmt.Printf("Reconciliation Report:\n")
			fmt.Printf("  Pairs in DB: %d\n", len(list))
			fmt.Printf("  Schedules in Temporal: %d\n", len(scheduled))
			fmt.Printf("\n")

			if len(report.Missing) > 0 {
				fmt.Printf("⚠ Pairs missing schedules (%d):\n", len(report.Missing))
				for _, p := range report.Missing {
					fmt.Printf("  - pair %d (%s)\n", p.ID, p.InputMint)
				}
				fmt.Printf("\n")
			}
			if len(report.Orphaned) > 0 {
				fmt.Printf("⚠ Orphaned schedules (%d):\n", len(report.Orphaned))
				for _, id := range report.Orphaned {
					fmt.Printf("  - balance-pair-%d\n", id)
				}
				fmt.Printf("\n")
			}
			if len(report.Missing) == 0 && len(report.Orphaned) == 0 {
				fmt.Printf("✓ No inconsistencies found\n")
				return nil
			}
			if !c.Bool("fix") {
				fmt.Printf("Run with --fix to repair.\n")
				return nil
			}

			var fixErrors []error
			if len(report.Missing) > 0 {
				key, err := loadKey(c)
				if err != nil {
					return fmt.Errorf("creating schedules needs the owner key: %w", err)
				}
				owner := key.PublicKey().String()
				for _, p := range report.Missing {
					if err := tc.UpsertBalanceSchedule(ctx, p.ID, owner, p.InputMint, c.Duration("interval")); err != nil {
						fixErrors = append(fixErrors, err)
						fmt.Printf("✗ pair %d: %v\n", p.ID, err)
						continue
					}
					fmt.Printf("✓ Created schedule for pair %d\n", p.ID)
				}
			}
			for _, id := range report.Orphaned {
				if err := tc.DeleteBalanceSchedule(ctx, id); err != nil {
					fixErrors = append(fixErrors, err)
					fmt.Printf("✗ balance-pair-%d: %v\n", id, err)
					continue
				}
				fmt.Printf("✓ Deleted schedule balance-pair-%d\n", id)
			}

			if len(fixErrors) > 0 {
				return fmt.Errorf("%d fixes failed", len(fixErrors))
			}
			return nil
		},
	}
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	tc, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		quietLogger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}
	return tc, nil
}
