// Package main provides the hawtch CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/hawtch/internal/render"
)

var (
	version = "0.1.0"
	pretty  = true
)

func console() *render.Console {
	return render.New(pretty)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hawtch",
		Short: "Task adherence watcher for autonomous coding agents",
		Long: `hawtch tails a coding agent's activity log, asks a local LLM whether the
agent is still on task, and injects corrective messages when it drifts.
Questions the agent asks its operator are answered automatically when
possible, or relayed to a human over Telegram.

Use 'hawtch watch' to start monitoring.
Use 'hawtch setup' to configure the Telegram relay.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.Version = version

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
