package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/hawtch/internal/config"
	"github.com/joss/hawtch/internal/monitor"
)

func watchCmd() *cobra.Command {
	var (
		usePoll   bool
		interval  int
		window    int
		frequency int
		threshold float64
		history   string
		sideFile  string
	)

	cmd := &cobra.Command{
		Use:   "watch [task description]",
		Short: "Watch the agent's activity log and intervene when it drifts",
		Long: `Start monitoring the agent's history file. The optional task description
is what adherence is judged against; without it, the first observed event
is adopted as the task.

Examples:
  hawtch watch                               # infer the task from activity
  hawtch watch fix the failing login test    # explicit task
  hawtch watch --poll --interval 10          # force polling mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("interval") {
				cfg.PollInterval = time.Duration(interval) * time.Second
			}
			if cmd.Flags().Changed("window") {
				cfg.WindowSize = window
			}
			if cmd.Flags().Changed("frequency") {
				cfg.CheckFrequency = frequency
			}
			if cmd.Flags().Changed("threshold") {
				cfg.InterventionThreshold = threshold
			}
			if history != "" {
				cfg.HistoryPath = history
			}
			if sideFile != "" {
				cfg.InterventionPath = sideFile
			}

			task := strings.Join(args, " ")

			c := console()
			c.Banner(version)

			m, err := monitor.New(cfg, task, usePoll, c)
			if err != nil {
				return err
			}
			return m.Run(context.Background())
		},
	}

	cmd.Flags().BoolVar(&usePoll, "poll", false, "Poll on a fixed interval instead of watching for file changes")
	cmd.Flags().IntVar(&interval, "interval", 5, "Poll interval in seconds")
	cmd.Flags().IntVar(&window, "window", 10, "Number of recent events kept as context")
	cmd.Flags().IntVar(&frequency, "frequency", 3, "Run a check every Nth event")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "Minimum off-task confidence to intervene")
	cmd.Flags().StringVar(&history, "history", "", "Agent history file to tail (overrides HAWTCH_HISTORY_PATH)")
	cmd.Flags().StringVar(&sideFile, "intervention-file", "", "Side-channel file interventions are written to")

	return cmd
}
