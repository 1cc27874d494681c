package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/hawtch/internal/logging"
	"github.com/joss/hawtch/internal/relay"
)

func setupCmd() *cobra.Command {
	var timeout int

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Configure the Telegram relay",
		Long: `Interactive Telegram bot setup: validates your bot token and detects
your chat id from the first /start message.

Create a bot first:
  1. Open Telegram and search for @BotFather
  2. Send /newbot and follow the prompts
  3. Copy the bot token (looks like 123456:ABC-DEF...)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(time.Duration(timeout) * time.Second)
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", 60, "Seconds to wait for the /start message")
	return cmd
}

func runSetup(timeout time.Duration) error {
	c := console()
	c.Banner(version)
	c.Status("Telegram relay setup")

	token, err := readToken()
	if err != nil {
		return err
	}
	if token == "" || !strings.Contains(token, ":") {
		return fmt.Errorf("invalid bot token format")
	}

	log := logging.NewWithWriter("setup", io.Discard)
	bot := relay.NewBot(token, "", log)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	username, err := bot.Me(ctx)
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}
	c.Success("token valid, bot @" + username)

	detected := make(chan string, 1)
	bot.OnChatID = func(chatID string) {
		select {
		case detected <- chatID:
		default:
		}
	}
	bot.Start(ctx)
	defer bot.Stop()

	c.Status("waiting for you to send /start to @" + username + " ...")

	select {
	case chatID := <-detected:
		c.Success("chat id detected: " + chatID)
		fmt.Println()
		fmt.Println("Add these to your environment:")
		fmt.Printf("  export HAWTCH_TELEGRAM_TOKEN=%s\n", token)
		fmt.Printf("  export HAWTCH_TELEGRAM_CHAT_ID=%s\n", chatID)
		return nil
	case <-ctx.Done():
		c.Warn("no /start message received")
		fmt.Println()
		fmt.Println("You can set the chat id manually later:")
		fmt.Printf("  export HAWTCH_TELEGRAM_TOKEN=%s\n", token)
		fmt.Println("  export HAWTCH_TELEGRAM_CHAT_ID=<your chat id>")
		return nil
	}
}

// readToken reads the bot token without echoing when stdin is a terminal.
func readToken() (string, error) {
	fmt.Print("Paste your bot token: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
