package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const arbitrationSystemPrompt = `You arbitrate ambiguous UI commands. The user was shown a list of options and typed something that matches none of them exactly. Pick the option they meant, ask for more context, or ask them to clarify.

Respond with a single JSON object and nothing else:
{"decision":"select","choice_id":"<option id>","confidence":0.0,"reason":"<short justification>"}
or {"decision":"request_context","confidence":0.0,"needed_context":["<what you need>"]}
or {"decision":"clarify","confidence":0.0,"reason":"<why>"}`

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// HTTPClient implements Client against an OpenAI-compatible chat completions
// endpoint. The decision JSON is carried in the assistant message content.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *HTTPClient) Arbitrate(ctx context.Context, request Request) Result {
	started := time.Now()
	decision, err := c.call(ctx, request)
	latency := time.Since(started)
	if err != nil {
		return Result{Err: err.Error(), Latency: latency}
	}
	return Result{Success: true, Response: decision, Latency: latency}
}

func (c *HTTPClient) call(ctx context.Context, request Request) (Decision, error) {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": arbitrationSystemPrompt},
			{"role": "user", "content": buildUserPrompt(request)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, fmt.Errorf("marshal arbitration request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	if apiKey := strings.TrimSpace(c.cfg.APIKey); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Decision{}, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Decision{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Warn("arbitration completion failed", "status", res.StatusCode, "body", compact(string(respBody)))
		return Decision{}, fmt.Errorf("arbitration completion failed with status %d", res.StatusCode)
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return Decision{}, fmt.Errorf("decode arbitration response: %w", err)
	}
	if len(response.Choices) == 0 {
		return Decision{}, fmt.Errorf("arbitration response returned no choices")
	}
	return ParseDecision(response.Choices[0].Message.Content)
}

// ParseDecision extracts the decision JSON from assistant content, tolerating
// code fences and surrounding prose, and clamps confidence into [0,1].
func ParseDecision(content string) (Decision, error) {
	text := strings.TrimSpace(content)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	var decision Decision
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		return Decision{}, fmt.Errorf("decode arbitration decision: %w", err)
	}
	decision.Decision = strings.ToLower(strings.TrimSpace(decision.Decision))
	switch decision.Decision {
	case DecisionSelect, DecisionRequestContext, DecisionClarify:
	default:
		return Decision{}, fmt.Errorf("unknown arbitration decision %q", decision.Decision)
	}
	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}
	decision.Reason = strings.TrimSpace(decision.Reason)
	return decision, nil
}

func buildUserPrompt(request Request) string {
	lines := []string{
		"User input: " + strings.TrimSpace(request.Input),
		"Options:",
	}
	for index, option := range request.Options {
		lines = append(lines, fmt.Sprintf("%d. id=%s label=%s", index+1, option.ID, option.Label))
	}
	if len(request.Context) > 0 {
		lines = append(lines, "Context:")
		for _, entry := range request.Context {
			lines = append(lines, "- "+strings.TrimSpace(entry))
		}
	}
	return strings.Join(lines, "\n")
}

func compact(input string) string {
	text := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
