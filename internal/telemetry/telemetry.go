// Package telemetry is the single log(event) sink of the routing ladder.
// Every branch that changes behavior emits exactly one event; the action
// strings below are part of the observable contract and asserted in tests.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Stable action strings.
const (
	ActionQuestionEscape      = "clarification_unresolved_hook_question_escape"
	ActionArbitrationFailed   = "llm_arbitration_failed_fallback_clarifier"
	ActionRetryCalled         = "arbitration_retry_called"
	ActionLoopGuardSuppressed = "llm_arbitration_loop_guard_suppressed"
	ActionAutoExecuted        = "llm_arbitration_auto_executed"
	ActionReorderedClarifier  = "llm_arbitration_reordered_clarifier"
	ActionScopeCueNoOptions   = "scope_cue_no_options"
	ActionCommandEscape       = "clarification_command_escape"
	ActionSemanticLaneBypass  = "semantic_lane_bypass"
	ActionPanelOpened         = "panel_disambiguation_opened"
	ActionPanelOptionsShown   = "panel_disambiguation_options_shown"
)

// Event is one telemetry record.
type Event struct {
	Action    string
	SessionID string
	Metadata  map[string]any
	At        time.Time
}

// Recorder persists events. A nil recorder means log-only telemetry.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Sink fans an event out to structured logging and the optional recorder.
type Sink struct {
	logger   *slog.Logger
	recorder Recorder
}

func NewSink(logger *slog.Logger, recorder Recorder) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger, recorder: recorder}
}

// Log emits one event. Recorder failures are logged, never surfaced; the
// routing outcome must not depend on the journal.
func (s *Sink) Log(ctx context.Context, action, sessionID string, metadata map[string]any) {
	event := Event{Action: action, SessionID: sessionID, Metadata: metadata, At: time.Now().UTC()}
	attrs := []any{"action", action, "session_id", sessionID}
	for key, value := range metadata {
		attrs = append(attrs, key, value)
	}
	s.logger.Info("routing event", attrs...)
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record routing event", "action", action, "error", err)
	}
}
