package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/config"
	"github.com/deusflow/newsbrief/internal/logger"
)

func runCmd(configPath *string) *cobra.Command {
	var (
		ov      app.Overrides
		preroll int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one briefing now and print the script",
		Long: `Run one briefing, deliver it to the configured targets and print the
script with the per-target outcomes.

Examples:
  newsbrief run
  newsbrief run --max-per-category 1 --player media_player.office`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("preroll-ms") {
				ov.PrerollMS = &preroll
			}
			return runOnce(cmd.OutOrStdout(), *configPath, ov, jsonOut)
		},
	}
	cmd.Flags().IntVarP(&ov.MaxPerCategory, "max-per-category", "n", 0, "articles per category for this run")
	cmd.Flags().StringSliceVarP(&ov.MediaPlayers, "player", "p", nil, "media player to speak on (repeatable)")
	cmd.Flags().IntVar(&preroll, "preroll-ms", 0, "pre-roll delay before delivery")
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "print the report as JSON")
	return cmd
}

func runOnce(out io.Writer, configPath string, ov app.Overrides, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Logs go to stderr so the script stays pipeable.
	logger.Configure(os.Stderr, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	pipeline, err := app.NewPipeline(ctx, config.NewHolder(cfg), store, app.NewBuilder(cfg))
	if err != nil {
		store.Close()
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer pipeline.Close()

	report, runErr := pipeline.Run(ctx, ov)
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	}

	printReport(out, report)
	return runErr
}

func printReport(out io.Writer, r *app.Report) {
	if r.Script != nil {
		fmt.Fprintln(out, r.Script.Body)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "source: %s", r.Script.Source)
		if r.Script.Backend != "" {
			fmt.Fprintf(out, " (%s)", r.Script.Backend)
		}
		fmt.Fprintln(out)
	}
	for _, c := range r.Payload.Categories {
		if c.Err != nil {
			fmt.Fprintf(out, "category %s: %v\n", c.Category, c.Err)
		}
	}
	for _, o := range r.Outcomes {
		if o.Reason != "" {
			fmt.Fprintf(out, "%-40s %s (%s)\n", o.Target, o.Status, o.Reason)
			continue
		}
		fmt.Fprintf(out, "%-40s %s\n", o.Target, o.Status)
	}
	fmt.Fprintf(out, "result: %s in %s\n", r.Result, r.Duration.Round(time.Millisecond))
}
