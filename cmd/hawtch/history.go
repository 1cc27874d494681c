package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/hawtch/internal/config"
	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		severity  string
		limit     int
		questions bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past interventions and question exchanges",
		Long: `Query the monitor's history database.

Examples:
  hawtch history                      # recent interventions
  hawtch history --severity critical  # critical interventions only
  hawtch history --questions          # question exchanges
  hawtch history --limit 50           # last 50 entries`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := config.GetPaths()
			h, err := store.Open(paths.HistoryDB, "")
			if err != nil {
				return err
			}
			defer h.Close()

			ctx := context.Background()
			if questions {
				return showExchanges(ctx, h, limit)
			}
			return showInterventions(ctx, h, domain.Severity(severity), limit)
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity (low, medium, high, critical)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&questions, "questions", false, "Show question exchanges instead of interventions")

	return cmd
}

func showInterventions(ctx context.Context, h *store.History, severity domain.Severity, limit int) error {
	records, err := h.ListInterventions(ctx, severity, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No interventions recorded")
		return nil
	}

	fmt.Printf("INTERVENTIONS (%d)\n\n", len(records))
	for _, r := range records {
		fmt.Printf("%s %s %s  %.1f%%\n",
			color.HiBlackString(r.CreatedAt.Format("2006-01-02 15:04:05")),
			severityLabel(r.Severity),
			color.HiBlackString("#"+fmt.Sprint(r.Seq)),
			r.Confidence*100,
		)
		fmt.Printf("  %s\n", r.Reasoning)
		for _, issue := range r.Issues {
			fmt.Printf("  - %s\n", issue)
		}
		fmt.Println()
	}
	return nil
}

func showExchanges(ctx context.Context, h *store.History, limit int) error {
	records, err := h.ListExchanges(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No question exchanges recorded")
		return nil
	}

	fmt.Printf("QUESTION EXCHANGES (%d)\n\n", len(records))
	for _, r := range records {
		fmt.Printf("%s %s\n",
			color.HiBlackString(r.OpenedAt.Format("2006-01-02 15:04:05")),
			color.CyanString("Q:")+" "+r.Question,
		)
		fmt.Printf("  %s %s %s\n",
			color.GreenString("A:"), r.Answer,
			color.HiBlackString("("+string(r.Source)+")"),
		)
		fmt.Println()
	}
	return nil
}

func severityLabel(s domain.Severity) string {
	label := strings.ToUpper(string(s))
	switch s {
	case domain.SeverityCritical:
		return color.New(color.Bold, color.FgHiRed).Sprint(label)
	case domain.SeverityHigh:
		return color.RedString(label)
	case domain.SeverityMedium:
		return color.YellowString(label)
	default:
		return color.HiBlackString(label)
	}
}
