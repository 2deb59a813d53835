// Package adminclient is the HTTP client the CLI and console use against
// the runtime's admin API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dashwise/router-runtime/internal/config"
)

type Client struct {
	baseURL string
	http    *http.Client
}

type Widget struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Option struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Sublabel string `json:"sublabel,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

type TurnRequest struct {
	SessionID      string   `json:"session_id"`
	Input          string   `json:"input"`
	Widgets        []Widget `json:"widgets,omitempty"`
	ActiveWidgetID string   `json:"active_widget_id,omitempty"`
}

type TurnAction struct {
	Kind        string   `json:"kind"`
	Text        string   `json:"text,omitempty"`
	WidgetID    string   `json:"widget_id,omitempty"`
	WidgetLabel string   `json:"widget_label,omitempty"`
	Option      *Option  `json:"option,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

type RouteResult struct {
	Handled             bool   `json:"handled"`
	HandledByTier       int    `json:"handled_by_tier"`
	TierLabel           string `json:"tier_label,omitempty"`
	SemanticLanePending bool   `json:"semantic_lane_pending,omitempty"`
	Action              string `json:"action,omitempty"`
	Message             string `json:"message,omitempty"`
	WidgetID            string `json:"widget_id,omitempty"`
	WidgetLabel         string `json:"widget_label,omitempty"`
	OptionID            string `json:"option_id,omitempty"`
}

type TurnResponse struct {
	Result  RouteResult  `json:"result"`
	Actions []TurnAction `json:"actions,omitempty"`
}

type RoutingEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type ArbitrationAudit struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id"`
	Decision   string    `json:"decision,omitempty"`
	ChoiceID   string    `json:"choice_id,omitempty"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	ErrKind    string    `json:"err_kind,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Retried    bool      `json:"retried"`
	CreatedAt  time.Time `json:"created_at"`
}

type SessionSummary struct {
	ID             string    `json:"id"`
	Turns          int       `json:"turns"`
	PendingOptions int       `json:"pending_options"`
	FocusedWidget  string    `json:"focused_widget,omitempty"`
	LastActivity   time.Time `json:"last_activity"`
}

type NounRoute struct {
	Noun        string    `json:"noun"`
	Action      string    `json:"action"`
	TargetID    string    `json:"target_id"`
	TargetLabel string    `json:"target_label"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func New(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.AdminAPIURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Route(ctx context.Context, input TurnRequest) (TurnResponse, error) {
	input.Input = strings.TrimSpace(input.Input)
	if input.Input == "" {
		return TurnResponse{}, fmt.Errorf("input is required")
	}
	requestBody, err := json.Marshal(input)
	if err != nil {
		return TurnResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/route", bytes.NewReader(requestBody))
	if err != nil {
		return TurnResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var response TurnResponse
	if err := c.doJSON(req, &response); err != nil {
		return TurnResponse{}, err
	}
	return response, nil
}

func (c *Client) RegisterOptions(ctx context.Context, sessionID, originalIntent string, options []Option) error {
	if len(options) == 0 {
		return fmt.Errorf("options are required")
	}
	payload := map[string]any{
		"session_id":      sessionID,
		"original_intent": originalIntent,
		"options":         options,
	}
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/options", bytes.NewReader(requestBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, nil)
}

func (c *Client) ListEvents(ctx context.Context, sessionID string, limit int) ([]RoutingEvent, error) {
	query := url.Values{}
	if strings.TrimSpace(sessionID) != "" {
		query.Set("session_id", strings.TrimSpace(sessionID))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := c.baseURL + "/api/v1/events"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Events []RoutingEvent `json:"events"`
	}
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Events, nil
}

func (c *Client) ListArbitrations(ctx context.Context, limit int) ([]ArbitrationAudit, error) {
	endpoint := c.baseURL + "/api/v1/arbitrations"
	if limit > 0 {
		endpoint += "?limit=" + fmt.Sprintf("%d", limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Arbitrations []ArbitrationAudit `json:"arbitrations"`
	}
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Arbitrations, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/sessions", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Sessions, nil
}

func (c *Client) ListNounRoutes(ctx context.Context) ([]NounRoute, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/nouns", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Nouns []NounRoute `json:"nouns"`
	}
	if err := c.doJSON(req, &response); err != nil {
		return nil, err
	}
	return response.Nouns, nil
}

func (c *Client) UpsertNounRoute(ctx context.Context, route NounRoute) error {
	if strings.TrimSpace(route.Noun) == "" {
		return fmt.Errorf("noun is required")
	}
	requestBody, err := json.Marshal(route)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/nouns", bytes.NewReader(requestBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, nil)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var apiError struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiError)
		if strings.TrimSpace(apiError.Error) == "" {
			apiError.Error = res.Status
		}
		return fmt.Errorf("%s", apiError.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
