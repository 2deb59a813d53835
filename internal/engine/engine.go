// Package engine ties the routing ladder to the surfaces that drive it. It
// owns the session registry, converts a transport-level turn into a
// dispatch, and collects the UI actions the ladder emitted so transports
// can deliver them however they like.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dashwise/router-runtime/internal/dispatch"
	"github.com/dashwise/router-runtime/internal/lexicon"
	"github.com/dashwise/router-runtime/internal/session"
)

// TurnRequest is one inbound user turn from any transport.
type TurnRequest struct {
	SessionID      string            `json:"session_id"`
	Input          string            `json:"input"`
	Widgets        []dispatch.Widget `json:"widgets,omitempty"`
	ActiveWidgetID string            `json:"active_widget_id,omitempty"`
}

// TurnAction is one UI mutation the ladder requested, in emission order.
type TurnAction struct {
	Kind        string           `json:"kind"`
	Text        string           `json:"text,omitempty"`
	WidgetID    string           `json:"widget_id,omitempty"`
	WidgetLabel string           `json:"widget_label,omitempty"`
	Option      *session.Option  `json:"option,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	Options     []session.Option `json:"options,omitempty"`
}

// Action kinds.
const (
	ActionKindMessage      = "message"
	ActionKindOpenPanel    = "open_panel"
	ActionKindSelectOption = "select_option"
	ActionKindShowOptions  = "show_options"
)

// TurnResponse bundles the routing outcome with the collected actions.
type TurnResponse struct {
	Result  dispatch.Result `json:"result"`
	Actions []TurnAction    `json:"actions,omitempty"`
}

// Collector implements the dispatch UI by recording actions instead of
// performing them.
type Collector struct {
	Actions []TurnAction
}

func (c *Collector) AddMessage(text string) {
	c.Actions = append(c.Actions, TurnAction{Kind: ActionKindMessage, Text: text})
}

func (c *Collector) OpenPanelDrawer(widgetID, widgetLabel string) {
	c.Actions = append(c.Actions, TurnAction{
		Kind:        ActionKindOpenPanel,
		WidgetID:    widgetID,
		WidgetLabel: widgetLabel,
	})
}

func (c *Collector) SelectOption(option session.Option) {
	picked := option
	c.Actions = append(c.Actions, TurnAction{Kind: ActionKindSelectOption, Option: &picked})
}

func (c *Collector) ShowOptions(prompt string, options []session.Option) {
	c.Actions = append(c.Actions, TurnAction{
		Kind:    ActionKindShowOptions,
		Prompt:  prompt,
		Options: options,
	})
}

// Engine is the shared routing facade of every transport.
type Engine struct {
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	lexicon    *lexicon.Source
	gates      dispatch.Gates
	logger     *slog.Logger
}

type Dependencies struct {
	Registry   *session.Registry
	Dispatcher *dispatch.Dispatcher
	Lexicon    *lexicon.Source
	Gates      dispatch.Gates
	Logger     *slog.Logger
}

func New(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = session.NewRegistry()
	}
	return &Engine{
		registry:   registry,
		dispatcher: deps.Dispatcher,
		lexicon:    deps.Lexicon,
		gates:      deps.Gates,
		logger:     logger.With("component", "engine"),
	}
}

// RouteTurn runs one turn through the ladder and returns the outcome plus
// the actions to apply, in order. The session lock is held for the full
// dispatch; concurrent turns for the same session serialize here.
func (e *Engine) RouteTurn(ctx context.Context, request TurnRequest) (TurnResponse, error) {
	state := e.registry.Ensure(request.SessionID)
	state.Lock()
	defer state.Unlock()
	collector := &Collector{}
	turn := &dispatch.Turn{
		SessionID:      state.ID,
		Input:          request.Input,
		State:          state,
		Widgets:        request.Widgets,
		ActiveWidgetID: request.ActiveWidgetID,
		UI:             collector,
		Gates:          e.gates,
		Lexicon:        e.lexicon.Current(),
	}
	result, err := e.dispatcher.Route(ctx, turn)
	if err != nil {
		return TurnResponse{}, err
	}
	return TurnResponse{Result: result, Actions: collector.Actions}, nil
}

// ShowOptions records an option set the host UI presented on its own
// initiative, so follow-up turns can disambiguate against it.
func (e *Engine) ShowOptions(sessionID, kind, originalIntent string, options []session.Option) {
	state := e.registry.Ensure(sessionID)
	state.Lock()
	defer state.Unlock()
	state.SetClarification(kind, originalIntent, options)
	state.SetChatSnapshot(kind, originalIntent, options)
}

// SessionSummary is the registry view exposed over the API.
type SessionSummary struct {
	ID             string    `json:"id"`
	Turns          int       `json:"turns"`
	PendingOptions int       `json:"pending_options"`
	FocusedWidget  string    `json:"focused_widget,omitempty"`
	LastActivity   time.Time `json:"last_activity"`
}

// Sessions summarizes every live session.
func (e *Engine) Sessions() []SessionSummary {
	var summaries []SessionSummary
	for _, id := range e.registry.IDs() {
		state, ok := e.registry.Lookup(id)
		if !ok {
			continue
		}
		state.Lock()
		summary := SessionSummary{
			ID:             state.ID,
			Turns:          state.Turns,
			PendingOptions: len(state.PendingOptions),
			LastActivity:   state.LastActivity,
		}
		if state.Focus != nil {
			summary.FocusedWidget = state.Focus.WidgetLabel
		}
		state.Unlock()
		summaries = append(summaries, summary)
	}
	return summaries
}

// SweepIdle expires and removes sessions idle beyond the TTL.
func (e *Engine) SweepIdle(ttl time.Duration, now time.Time) int {
	swept := e.registry.SweepIdle(ttl, now)
	if swept > 0 {
		e.logger.Info("swept idle sessions", "count", swept)
	}
	return swept
}
