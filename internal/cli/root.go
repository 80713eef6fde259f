// Package cli implements the scanctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/app"
	"github.com/user/bookscan-service/pkg/config"
	"github.com/user/bookscan-service/pkg/logger"
)

// offline marks commands that need no database or cache connection.
const offline = "offline"

type appKey struct{}

var async bool

var rootCmd = &cobra.Command{
	Use:           "scanctl",
	Short:         "Operate the book discount scanner",
	Long:          `scanctl runs parse, credential refresh and discount sweep jobs inline or via the task queue, and inspects pending scrapes.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command. It is called once by main.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&async, "async", false, "Enqueue the job for the worker instead of running it here")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[offline] == "true" {
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.New(os.Stderr, cfg.LogLevel)
		a, err := app.New(cmd.Context(), cfg, log, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a := appFrom(cmd); a != nil {
			_ = a.Logger.Sync()
			a.Close()
		}
	}
}

func appFrom(cmd *cobra.Command) *app.App {
	a, _ := cmd.Context().Value(appKey{}).(*app.App)
	return a
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printQueued(cmd *cobra.Command, a *app.App, taskType, id string) error {
	a.Logger.Info("task queued", zap.String("type", taskType), zap.String("task_id", id))
	return printJSON(cmd, map[string]string{"status": "queued", "type": taskType, "task_id": id})
}
