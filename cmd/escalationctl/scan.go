package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/spf13/cobra"
)

func scanCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one deadline scan and escalate overdue transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, logger, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll(container, logger)

			ctx := observability.WithRunCorrelation(cmd.Context())
			summary, err := container.Escalation.RunDeadlineScan(ctx, domain.TriggerSource{
				Name:     source,
				Metadata: map[string]any{"tool": "escalationctl"},
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cron log:   %s\n", summary.CronLogID)
			fmt.Fprintf(out, "processed:  %d\n", summary.Counts.Processed)
			fmt.Fprintf(out, "succeeded:  %d\n", summary.Counts.Succeeded)
			fmt.Fprintf(out, "failed:     %d\n", summary.Counts.Failed)
			fmt.Fprintf(out, "skipped:    %d\n", summary.Counts.Skipped)
			fmt.Fprintf(out, "flagged:    %d\n", summary.Problematic)
			fmt.Fprintf(out, "duration:   %s\n", summary.Duration.Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().StringVar(&source, "source", "manual", "trigger source recorded in the run log")
	return cmd
}

func escalateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "escalate <transfer-id>",
		Short: "Place the escalation call for one transfer now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, logger, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll(container, logger)

			ctx := observability.WithRunCorrelation(cmd.Context())
			outcome, err := container.Escalation.EscalateTransfer(ctx, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "transfer %s: %s\n", args[0], outcome)
			return err
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent deadline scan runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, logger, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll(container, logger)

			runs, err := container.CronLogs.ListRecent(cmd.Context(), domain.DeadlineJobName, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSOURCE\tSTATUS\tPROCESSED\tSUCCEEDED\tFAILED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					run.ID,
					run.StartedAt.Format(time.RFC3339),
					run.TriggeredBy,
					run.Status,
					run.ItemsProcessed,
					run.ItemsSucceeded,
					run.ItemsFailed,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}
