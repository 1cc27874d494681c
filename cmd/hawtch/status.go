package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/hawtch/internal/config"
	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/oracle"
	"github.com/joss/hawtch/internal/store"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			c := console()
			c.Banner(version)

			fmt.Printf("history file:     %s", cfg.HistoryPath)
			if _, err := os.Stat(cfg.HistoryPath); err != nil {
				fmt.Printf("  %s", "(missing)")
			}
			fmt.Println()
			fmt.Printf("side channel:     %s\n", cfg.InterventionPath)
			fmt.Printf("oracle:           %s (%s)\n", cfg.OracleBaseURL, cfg.OracleModel)
			fmt.Printf("check frequency:  every %d events\n", cfg.CheckFrequency)
			fmt.Printf("thresholds:       intervene >= %.2f, auto-answer >= %.2f\n",
				cfg.InterventionThreshold, cfg.AnswerThreshold)
			if cfg.RelayEnabled() {
				chatID := cfg.TelegramChatID
				if chatID == "" {
					chatID = "(detected on first /start)"
				}
				fmt.Printf("telegram relay:   enabled, chat %s\n", chatID)
			} else {
				fmt.Println("telegram relay:   disabled")
			}
			fmt.Println()

			log := logging.NewWithWriter("status", io.Discard)
			client := oracle.New(cfg.OracleBaseURL, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleTimeout, log)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Probe(ctx); err != nil {
				c.Errorf("oracle unreachable: %v", err)
			} else {
				c.Success("oracle responding")
			}

			paths := config.GetPaths()
			if h, err := store.Open(paths.HistoryDB, ""); err == nil {
				defer h.Close()
				if counts, err := h.CountBySeverity(ctx); err == nil && len(counts) > 0 {
					fmt.Println()
					fmt.Println("recorded interventions:")
					for severity, n := range counts {
						fmt.Printf("  %-8s %d\n", severity, n)
					}
				}
			}
			return nil
		},
	}
}
