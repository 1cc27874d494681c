// Package oracle talks to the judgment model over any OpenAI-compatible
// chat completions endpoint (LM Studio, Ollama, a hosted API). It serves two
// request shapes: task-adherence analysis and question answering. Both
// degrade to safe defaults on any failure; the oracle never surfaces an
// error into the monitor loop.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
)

// Client is a minimal chat-completions client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  HTTPClient
	log     *logging.Logger
}

// New creates an oracle client. baseURL may be a bare host, a /v1 root, or a
// full /chat/completions URL; it is normalized to the latter.
func New(baseURL, apiKey, model string, timeout time.Duration, log *logging.Logger) *Client {
	return NewWithClient(baseURL, apiKey, model, timeout, log, &http.Client{})
}

// NewWithClient injects the HTTP client (used in tests).
func NewWithClient(baseURL, apiKey, model string, timeout time.Duration, log *logging.Logger, hc HTTPClient) *Client {
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		client:  hc,
		log:     log,
	}
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/chat/completions"
	}
	return baseURL + "/v1/chat/completions"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete performs one synchronous chat completion within the configured
// request timeout.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("oracle error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// AnalyzeAdherence asks whether the agent is still on task. Any failure
// degrades to the fail-open judgment; the caller never sees an error.
func (c *Client) AnalyzeAdherence(ctx context.Context, tc domain.TaskContext, activity string) domain.Judgment {
	start := time.Now()

	content, err := c.complete(ctx, analysisSystemPrompt, buildAnalysisPrompt(tc, activity))
	if err != nil {
		c.log.Warn("oracle_analysis_failed", nil, err)
		return domain.FailOpenJudgment(fmt.Sprintf("analysis failed: %v", err))
	}

	judgment, err := ParseJudgment(content)
	if err != nil {
		c.log.Warn("oracle_response_unparsable", map[string]interface{}{
			"response": truncate(content, 200),
		}, err)
		return domain.FailOpenJudgment(fmt.Sprintf("unparsable response: %v", err))
	}

	c.log.TimedEvent("oracle_analysis_done", start, map[string]interface{}{
		"on_task":    judgment.OnTask,
		"confidence": judgment.Confidence,
	})
	return judgment
}

// TryAnswer attempts to answer a question the agent asked the operator.
// answerThreshold decides whether the attempt must escalate to a human.
// Any failure yields a zero-confidence attempt that forces escalation.
func (c *Client) TryAnswer(ctx context.Context, question string, tc domain.TaskContext, extra string, answerThreshold float64) domain.AnswerAttempt {
	start := time.Now()

	content, err := c.complete(ctx, answerSystemPrompt, buildAnswerPrompt(question, tc, extra))
	if err != nil {
		c.log.Warn("oracle_answer_failed", nil, err)
		return domain.FailedAttempt(fmt.Sprintf("answer attempt failed: %v", err))
	}

	attempt, err := ParseAttempt(content)
	if err != nil {
		c.log.Warn("oracle_answer_unparsable", map[string]interface{}{
			"response": truncate(content, 200),
		}, err)
		return domain.FailedAttempt(fmt.Sprintf("unparsable answer: %v", err))
	}

	attempt.ShouldAskHuman = attempt.Confidence < answerThreshold
	c.log.TimedEvent("oracle_answer_done", start, map[string]interface{}{
		"confidence": attempt.Confidence,
		"escalate":   attempt.ShouldAskHuman,
	})
	return attempt
}

// Probe performs a lightweight round trip to verify the endpoint is up and
// the model responds. Used by startup and `hawtch status`.
func (c *Client) Probe(ctx context.Context) error {
	tc := domain.TaskContext{Instruction: "Connection test"}
	_, err := c.complete(ctx, analysisSystemPrompt, buildAnalysisPrompt(tc, "Testing connection"))
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
