package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/config"
)

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and show the stored last briefing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cmd.Context(), cmd.OutOrStdout(), *configPath)
		},
	}
}

func check(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("❌ config: %w", err)
	}
	fmt.Fprintln(out, "✅ Config is valid")

	fmt.Fprintln(out, "\n📰 Sources:")
	for _, src := range cfg.Sources() {
		fmt.Fprintf(out, "  %s (max %d)\n", src, src.MaxArticles)
	}
	fmt.Fprintf(out, "\n🤖 AI mode: %s\n", cfg.AIMode)
	fmt.Fprintf(out, "🔊 Speech: %d entities x %d players\n", len(cfg.TTSEntities), len(cfg.MediaPlayers))
	if cfg.TelegramChatID != "" {
		fmt.Fprintf(out, "💬 Telegram chat: %s\n", cfg.TelegramChatID)
	}

	if cfg.DatabaseURL != "" {
		fmt.Fprintf(out, "\n🔌 Store: PostgreSQL %s\n", maskPassword(cfg.DatabaseURL))
	} else {
		fmt.Fprintf(out, "\n🔌 Store: file %s\n", cfg.StatePath)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("❌ store: %w", err)
	}
	defer store.Close()

	last, err := store.LoadLastSuccess(ctx)
	if err != nil {
		return fmt.Errorf("❌ store: %w", err)
	}
	if last == nil {
		fmt.Fprintln(out, "  (no briefing delivered yet)")
		return nil
	}
	fmt.Fprintf(out, "  Last briefing: %s at %s (%s)\n", last.RunID, last.GeneratedAt.Format("2006-01-02 15:04:05"), last.Script.Source)
	for _, o := range last.Outcomes {
		fmt.Fprintf(out, "    %s %s\n", o.Target, o.Status)
	}
	return nil
}

// maskPassword hides the password part of a connection URL.
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
