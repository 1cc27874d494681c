// Package relay forwards agent questions to a human over Telegram and carries
// their replies back. It speaks the Bot API directly over HTTP: one
// long-polling goroutine receives updates, and a capacity-one channel hands
// exactly one answer to the waiting exchange.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joss/hawtch/internal/logging"
)

const (
	defaultAPIBase = "https://api.telegram.org"

	// longPollSeconds is the getUpdates server-side hold. The request
	// timeout must exceed it or every idle poll errors out.
	longPollSeconds = 25
)

// HTTPClient is the transport seam; *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

// Bot relays questions to a single Telegram chat. The chat id may be unknown
// at startup; it is captured from the first /start command.
type Bot struct {
	token   string
	apiBase string
	client  HTTPClient
	log     *logging.Logger

	// OnChatID fires once when the chat id is first discovered. Set it
	// before Start.
	OnChatID func(chatID string)

	mu     sync.Mutex
	chatID string

	answers    chan string
	awaiting   atomic.Bool
	questionID atomic.Uint64
	offset     int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewBot creates a relay against the public Bot API.
func NewBot(token, chatID string, log *logging.Logger) *Bot {
	return NewBotWithClient(token, chatID, defaultAPIBase, log, &http.Client{Timeout: (longPollSeconds + 10) * time.Second})
}

// NewBotWithClient injects the API base and HTTP client (used in tests).
func NewBotWithClient(token, chatID, apiBase string, log *logging.Logger, hc HTTPClient) *Bot {
	return &Bot{
		token:   token,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		client:  hc,
		log:     log,
		chatID:  chatID,
		answers: make(chan string, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ChatID returns the current recipient, empty until first contact.
func (b *Bot) ChatID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chatID
}

// Me verifies the token by calling getMe and returns the bot username.
func (b *Bot) Me(ctx context.Context) (string, error) {
	var result struct {
		Username string `json:"username"`
	}
	if err := b.call(ctx, "getMe", nil, &result); err != nil {
		return "", err
	}
	return result.Username, nil
}

// Start launches the update polling loop. It returns immediately; use Stop
// to shut the loop down.
func (b *Bot) Start(ctx context.Context) {
	go b.pollLoop(ctx)
}

// Stop terminates the polling loop and waits for it, bounded to avoid
// hanging shutdown on a stuck long poll.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	select {
	case <-b.done:
	case <-time.After(5 * time.Second):
		b.log.Warn("relay_stop_timeout", nil, nil)
	}
}

// SendQuestion forwards one question to the human. It requires a known chat
// id and arms the answer handoff; callers follow up with AwaitAnswer.
func (b *Bot) SendQuestion(ctx context.Context, question, task, suggestion string, confidence float64) error {
	chatID := b.ChatID()
	if chatID == "" {
		return fmt.Errorf("telegram chat id not configured; send /start to the bot")
	}

	id := b.questionID.Add(1)
	b.awaiting.Store(true)

	text := formatQuestion(id, question, task, suggestion, confidence)
	if err := b.sendMessage(ctx, chatID, text); err != nil {
		b.awaiting.Store(false)
		return err
	}
	b.log.Info("relay_question_sent", map[string]interface{}{"question": id})
	return nil
}

// AwaitAnswer blocks until a reply arrives, the timeout elapses, or ctx is
// cancelled. The second return is false on timeout or cancellation.
func (b *Bot) AwaitAnswer(ctx context.Context, timeout time.Duration) (string, bool) {
	defer b.awaiting.Store(false)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case answer := <-b.answers:
		return answer, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// DrainStale discards any answer left over from a previous exchange so a
// late reply cannot resolve the wrong question.
func (b *Bot) DrainStale() {
	for {
		select {
		case <-b.answers:
		default:
			return
		}
	}
}

// Notify sends a fire-and-forget message; it is a no-op until the chat id
// is known.
func (b *Bot) Notify(ctx context.Context, text string) {
	chatID := b.ChatID()
	if chatID == "" {
		return
	}
	if err := b.sendMessage(ctx, chatID, text); err != nil {
		b.log.Warn("relay_notify_failed", nil, err)
	}
}

func (b *Bot) pollLoop(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			b.log.Warn("relay_poll_failed", nil, err)
			select {
			case <-b.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, u.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *message) {
	from := strconv.FormatInt(msg.Chat.ID, 10)

	if strings.HasPrefix(msg.Text, "/start") {
		b.handleStart(ctx, from)
		return
	}

	b.mu.Lock()
	known := b.chatID
	b.mu.Unlock()
	if known != "" && from != known {
		// Only the configured chat may answer.
		return
	}

	if !b.awaiting.Load() {
		b.reply(ctx, from, "I'm not currently waiting for an answer. I'll send you a question when the agent needs input.")
		return
	}

	select {
	case b.answers <- msg.Text:
		b.reply(ctx, from, "Answer received! Sending it to the agent...")
	default:
		b.reply(ctx, from, "This question has already been answered.")
	}
}

func (b *Bot) handleStart(ctx context.Context, from string) {
	b.mu.Lock()
	first := b.chatID == ""
	if first {
		b.chatID = from
	}
	b.mu.Unlock()

	if first {
		b.log.Info("relay_chat_detected", map[string]interface{}{"chat_id": from})
		if b.OnChatID != nil {
			b.OnChatID(from)
		}
		b.reply(ctx, from, fmt.Sprintf("Hawtch connected!\n\nYour chat ID: %s\n\nI'll forward the agent's questions to you here.", from))
		return
	}
	b.reply(ctx, from, "Hawtch is already connected. I'll forward the agent's questions to you here.")
}

func (b *Bot) reply(ctx context.Context, chatID, text string) {
	if err := b.sendMessage(ctx, chatID, text); err != nil {
		b.log.Warn("relay_reply_failed", nil, err)
	}
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	params := map[string]interface{}{
		"timeout":         longPollSeconds,
		"allowed_updates": []string{"message"},
	}
	if b.offset > 0 {
		params["offset"] = b.offset
	}

	var updates []update
	if err := b.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (b *Bot) sendMessage(ctx context.Context, chatID, text string) error {
	return b.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// call performs one Bot API method invocation and decodes the result.
func (b *Bot) call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	endpoint, err := url.JoinPath(b.apiBase, "bot"+b.token, method)
	if err != nil {
		return fmt.Errorf("build %s url: %w", method, err)
	}

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram %s failed: %s", method, parsed.Description)
	}
	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// formatQuestion renders the human-facing question message.
func formatQuestion(id uint64, question, task, suggestion string, confidence float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent Question #%d\n", id)
	sb.WriteString(strings.Repeat("-", 21) + "\n")
	if task != "" {
		fmt.Fprintf(&sb, "Task: %s\n", clip(task, 100))
	}
	fmt.Fprintf(&sb, "\nQuestion:\n%s\n", question)
	if suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggested answer (%.0f%% confident):\n%s\n", confidence*100, clip(suggestion, 150))
	}
	sb.WriteString("\nReply with your answer.")
	return sb.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
