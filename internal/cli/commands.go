package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/similarity"
)

var (
	fetchDetails bool
	author       string
	logLimit     int
)

var parseCmd = &cobra.Command{
	Use:   "parse <query>",
	Short: "Search the catalog for a query and store the results",
	Example: `  scanctl parse "Дюна Герберт"
  scanctl parse "Дюна Герберт" --details
  scanctl parse python --async`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		payload := entity.ParseQueryPayload{
			Query:        strings.Join(args, " "),
			Source:       entity.SourceChitaiGorod,
			FetchDetails: fetchDetails,
		}
		if async {
			id, err := a.Jobs.SubmitParse(cmd.Context(), payload)
			if err != nil {
				return err
			}
			return printQueued(cmd, a, entity.TaskParseQuery, id)
		}
		res, err := a.Orchestrator.Run(cmd.Context(), payload)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh-token",
	Short: "Pass the anti-bot challenge and store a fresh catalog token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		if async {
			id, err := a.Jobs.RequestRefresh(cmd.Context())
			if err != nil {
				return err
			}
			return printQueued(cmd, a, entity.TaskRefreshCredential, id)
		}
		cred, err := a.Refresher().Refresh(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"status":      "success",
			"cookies":     len(cred.Cookies),
			"acquired_at": cred.AcquiredAt,
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Scan popular queries for discounted books",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		if async {
			id, err := a.Jobs.RequestSweep(cmd.Context())
			if err != nil {
				return err
			}
			return printQueued(cmd, a, entity.TaskSweepDiscounts, id)
		}
		res, err := a.Sweep.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending <query>",
	Short: "Show the pending top-up entry for a query without consuming it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		entry, err := a.Pending.Peek(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if entry == nil {
			return printJSON(cmd, map[string]string{"status": "absent"})
		}
		return printJSON(cmd, entry)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List the most recent parse runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := appFrom(cmd).ParseLogs.Recent(cmd.Context(), logLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd, logs)
	},
}

var similarCmd = &cobra.Command{
	Use:         "similar <query> <title>",
	Short:       "Explain whether a title answers a query",
	Example:     `  scanctl similar "Дюна Герберт" "Дюна" --author "Фрэнк Герберт"`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{offline: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, reason := similarity.IsSimilar(args[0], args[1], author)
		return printJSON(cmd, map[string]any{
			"similar":     ok,
			"reason":      reason,
			"query_words": similarity.SignificantWords(args[0]),
			"title_words": similarity.SignificantWords(args[1]),
		})
	},
}

func init() {
	parseCmd.Flags().BoolVar(&fetchDetails, "details", false, "Fetch each product page for publisher, binding and ISBN")
	similarCmd.Flags().StringVar(&author, "author", "", "Author of the stored item")
	logsCmd.Flags().IntVar(&logLimit, "limit", 20, "Number of runs to show")

	rootCmd.AddCommand(parseCmd, refreshCmd, sweepCmd, pendingCmd, logsCmd, similarCmd)
}
