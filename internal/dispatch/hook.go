package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dashwise/router-runtime/internal/arbiter"
	"github.com/dashwise/router-runtime/internal/session"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

// unresolvedHook arbitrates a selection-like input that no deterministic
// matcher resolved. The loop guard is noted before the call goes out, so a
// failed or unresolvable call still cannot repeat for the same option set.
func (d *Dispatcher) unresolvedHook(ctx context.Context, turn *Turn, universe optionUniverse) (*Result, error) {
	state := turn.State

	if state.Guard.Suppresses(universe.messageID) {
		d.sink.Log(ctx, telemetry.ActionLoopGuardSuppressed, turn.SessionID, map[string]any{
			"message_id": universe.messageID,
		})
		return d.reshow(turn, universe, universe.options), nil
	}

	if d.arbiter == nil || !turn.Gates.LLMFallback || !turn.Gates.SelectionArbitration {
		return d.reshow(turn, universe, universe.options), nil
	}

	state.Guard.Note(universe.messageID)

	request := arbiter.Request{
		Input:   turn.Input,
		Options: optionRefs(universe.options),
	}
	if universe.intent != "" {
		request.Context = []string{"original_intent: " + universe.intent}
	}

	result := d.arbiter.Arbitrate(ctx, request)
	if !result.Success {
		return d.arbitrationFailed(ctx, turn, universe, result), nil
	}
	return d.interpretDecision(ctx, turn, universe, request, result, false), nil
}

// interpretDecision applies one arbiter response. The retried flag caps
// context enrichment at a single extra call per turn.
func (d *Dispatcher) interpretDecision(ctx context.Context, turn *Turn, universe optionUniverse, request arbiter.Request, result arbiter.Result, retried bool) *Result {
	decision := result.Response
	d.recordArbitration(ctx, ArbitrationRecord{
		SessionID:  turn.SessionID,
		MessageID:  universe.messageID,
		Decision:   decision.Decision,
		ChoiceID:   decision.ChoiceID,
		Confidence: decision.Confidence,
		Reason:     decision.Reason,
		LatencyMs:  latencyMs(result.Latency),
		Retried:    retried,
	})

	switch decision.Decision {
	case arbiter.DecisionSelect:
		picked, found := optionByID(universe.options, decision.ChoiceID)
		if !found {
			d.logger.Warn("arbiter selected an unknown option",
				"session_id", turn.SessionID, "choice_id", decision.ChoiceID)
			return d.reshow(turn, universe, universe.options)
		}
		if decision.Confidence >= d.params.AutoExecuteConfidence &&
			turn.Gates.AutoExecute &&
			d.reasonAllowed(decision.Reason) {
			applied := d.applySelection(turn, universe, picked, TierArbitration, LabelArbitration)
			d.sink.Log(ctx, telemetry.ActionAutoExecuted, turn.SessionID, map[string]any{
				"message_id": universe.messageID,
				"option_id":  picked.ID,
				"confidence": decision.Confidence,
				"reason":     decision.Reason,
			})
			return applied
		}
		if decision.Confidence >= d.params.MinSelectConfidence {
			reordered := reorderFirst(universe.options, picked.ID)
			d.replaceUniverseOrder(turn, universe, reordered)
			d.sink.Log(ctx, telemetry.ActionReorderedClarifier, turn.SessionID, map[string]any{
				"message_id": universe.messageID,
				"option_id":  picked.ID,
				"confidence": decision.Confidence,
			})
			return d.reshow(turn, universe, reordered)
		}
		return d.reshow(turn, universe, universe.options)

	case arbiter.DecisionRequestContext:
		if turn.Gates.ContextRetry && !retried {
			d.sink.Log(ctx, telemetry.ActionRetryCalled, turn.SessionID, map[string]any{
				"message_id":     universe.messageID,
				"needed_context": decision.NeededContext,
			})
			enriched := arbiter.Request{
				Input:   request.Input,
				Options: request.Options,
				Context: append(append([]string{}, request.Context...), d.enrichedEvidence(turn)...),
			}
			second := d.arbiter.Arbitrate(ctx, enriched)
			if !second.Success {
				return d.arbitrationFailed(ctx, turn, universe, second)
			}
			return d.interpretDecision(ctx, turn, universe, enriched, second, true)
		}
		return d.reshow(turn, universe, universe.options)

	default:
		return d.reshow(turn, universe, universe.options)
	}
}

func (d *Dispatcher) arbitrationFailed(ctx context.Context, turn *Turn, universe optionUniverse, result arbiter.Result) *Result {
	kind := arbiter.ClassifyFailure(result.Err)
	d.recordArbitration(ctx, ArbitrationRecord{
		SessionID: turn.SessionID,
		MessageID: universe.messageID,
		ErrKind:   kind,
		LatencyMs: latencyMs(result.Latency),
	})
	d.sink.Log(ctx, telemetry.ActionArbitrationFailed, turn.SessionID, map[string]any{
		"message_id": universe.messageID,
		"error_kind": kind,
	})
	return d.reshow(turn, universe, universe.options)
}

// reshow re-presents an option set in the given order. It is the safe
// fallback of every inconclusive branch and never auto-executes. A
// scope-pinned widget universe lives nowhere in the session yet, so it is
// persisted as the pending clarification under its synthetic message ID;
// the follow-up turn then selects against it like any other pending set.
func (d *Dispatcher) reshow(turn *Turn, universe optionUniverse, options []session.Option) *Result {
	if universe.source == universeScopeWidget {
		turn.State.SetClarificationWithID("panel", universe.intent, universe.messageID, options)
	}
	turn.UI.ShowOptions(reshowPrompt, options)
	return &Result{
		Handled:       true,
		HandledByTier: TierArbitration,
		TierLabel:     LabelClarificationReshow,
		Action:        ActionShowOptions,
	}
}

// replaceUniverseOrder persists a reordered option set in place, keeping the
// same message ID so the loop guard still recognizes the set. The next
// turn's ordinal references then match what the user actually sees.
func (d *Dispatcher) replaceUniverseOrder(turn *Turn, universe optionUniverse, reordered []session.Option) {
	state := turn.State
	switch universe.source {
	case universePending:
		state.PendingOptions = reordered
		if state.Clarification != nil {
			state.Clarification.Options = reordered
		}
	case universeSnapshot, universeScopeChat:
		if state.ChatSnapshot != nil {
			state.ChatSnapshot.Options = reordered
		}
	}
}

// enrichedEvidence assembles the extra signals for the one context retry:
// the visible widget surface, the active widget, and the focus latch.
func (d *Dispatcher) enrichedEvidence(turn *Turn) []string {
	evidence := []string{"enriched_evidence: retry with session context"}
	if len(turn.Widgets) > 0 {
		titles := make([]string, len(turn.Widgets))
		for index, widget := range turn.Widgets {
			titles[index] = widget.Title
		}
		evidence = append(evidence, "visible_widgets: "+strings.Join(titles, ", "))
	}
	if turn.ActiveWidgetID != "" {
		evidence = append(evidence, "active_widget: "+turn.ActiveWidgetID)
	}
	if focus := turn.State.Focus; focus != nil {
		evidence = append(evidence, fmt.Sprintf("focused_widget: %s (%d turns ago)",
			focus.WidgetLabel, focus.TurnsSinceLatched))
	}
	if snapshot := turn.State.ChatSnapshot; snapshot != nil {
		evidence = append(evidence, fmt.Sprintf("chat_snapshot: %d options, intent %q",
			len(snapshot.Options), snapshot.OriginalIntent))
	}
	return evidence
}

// reasonAllowed admits only reasons matching the safe allow-list. Confidence
// alone never authorizes auto-execution.
func (d *Dispatcher) reasonAllowed(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return false
	}
	for _, safe := range d.params.SafeReasons {
		if strings.Contains(reason, strings.ToLower(safe)) {
			return true
		}
	}
	return false
}

func optionRefs(options []session.Option) []arbiter.OptionRef {
	refs := make([]arbiter.OptionRef, len(options))
	for index, option := range options {
		refs[index] = arbiter.OptionRef{ID: option.ID, Label: option.Label}
	}
	return refs
}

func optionByID(options []session.Option, id string) (session.Option, bool) {
	id = strings.TrimSpace(id)
	for _, option := range options {
		if option.ID == id {
			return option, true
		}
	}
	return session.Option{}, false
}

// reorderFirst moves the picked option to the front, keeping the rest in
// their original order.
func reorderFirst(options []session.Option, pickedID string) []session.Option {
	reordered := make([]session.Option, 0, len(options))
	for _, option := range options {
		if option.ID == pickedID {
			reordered = append(reordered, option)
		}
	}
	for _, option := range options {
		if option.ID != pickedID {
			reordered = append(reordered, option)
		}
	}
	return reordered
}
