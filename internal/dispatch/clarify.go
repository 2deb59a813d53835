package dispatch

import (
	"context"
	"strings"

	"github.com/dashwise/router-runtime/internal/match"
	"github.com/dashwise/router-runtime/internal/session"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

const reshowPrompt = "Which one did you mean?"

// optionUniverse is the one option set active for matching this turn,
// selected by the precedence rules below.
type optionUniverse struct {
	options   []session.Option
	messageID string
	intent    string
	source    string
}

const (
	universePending     = "pending"
	universeSnapshot    = "snapshot"
	universeScopeChat   = "scope_chat"
	universeScopeWidget = "scope_widgets"
)

// clarificationIntercept is tier 0/1. A scope cue takes precedence over a
// simultaneously pending option set; exactly one resolution path runs per
// turn, so the arbiter is called at most once.
func (d *Dispatcher) clarificationIntercept(ctx context.Context, turn *Turn) (*Result, error) {
	input := strings.TrimSpace(turn.Input)

	if scope, rest := match.DetectScopeCue(input, turn.Lexicon); scope != "" {
		return d.resolveScoped(ctx, turn, scope, rest)
	}

	universe, ok := d.activeUniverse(turn)
	if !ok {
		return nil, nil
	}

	labels := optionLabels(universe.options)
	picked, deterministic := deterministicPick(input, universe.options, turn.Lexicon)
	selectionLike := deterministic ||
		match.ParseOrdinal(input, turn.Lexicon) != 0 ||
		match.ExtractBadge(input) != "" ||
		len(match.FindExact(match.Strip(input, turn.Lexicon), labels)) == 1 ||
		match.LooksLikeSelection(input, labels, turn.Lexicon)

	if !selectionLike {
		// Command escape: stale option sets never block unrelated commands.
		// The clarification is bypassed for this turn, not cleared.
		if match.IsCommandLike(input, turn.Lexicon) {
			d.sink.Log(ctx, telemetry.ActionCommandEscape, turn.SessionID, map[string]any{
				"input":      input,
				"message_id": universe.messageID,
			})
		}
		return nil, nil
	}

	if match.IsQuestion(input) && !match.IsCommandLike(input, turn.Lexicon) {
		d.sink.Log(ctx, telemetry.ActionQuestionEscape, turn.SessionID, map[string]any{
			"input":      input,
			"message_id": universe.messageID,
		})
		return nil, nil
	}

	if deterministic {
		return d.applySelection(turn, universe, picked, TierClarification, LabelClarificationSelect), nil
	}

	return d.unresolvedHook(ctx, turn, universe)
}

// resolveScoped handles inputs carrying an explicit scope cue. The cue pins
// the option universe; a scope with nothing in it gets a scope-specific
// message and never reaches the arbiter.
func (d *Dispatcher) resolveScoped(ctx context.Context, turn *Turn, scope, rest string) (*Result, error) {
	var universe optionUniverse
	switch scope {
	case match.ScopeChat:
		if snapshot := turn.State.ChatSnapshot; snapshot != nil && len(snapshot.Options) > 0 {
			universe = optionUniverse{
				options:   snapshot.Options,
				messageID: snapshot.MessageID,
				intent:    snapshot.OriginalIntent,
				source:    universeScopeChat,
			}
		}
	default:
		options := make([]session.Option, 0, len(turn.Widgets))
		ids := make([]string, 0, len(turn.Widgets))
		for _, widget := range turn.Widgets {
			options = append(options, session.Option{ID: widget.ID, Label: widget.Title, Kind: "widget"})
			ids = append(ids, widget.ID)
		}
		universe = optionUniverse{
			options:   options,
			messageID: "scope:" + scope + ":" + strings.Join(ids, ","),
			intent:    rest,
			source:    universeScopeWidget,
		}
	}

	if len(universe.options) == 0 {
		turn.State.SetScopeRecovery(map[string]string{"scope": scope, "input": rest})
		message := "There are no options from the " + scope + " yet."
		turn.UI.AddMessage(message)
		d.sink.Log(ctx, telemetry.ActionScopeCueNoOptions, turn.SessionID, map[string]any{"scope": scope})
		return &Result{
			Handled:       true,
			HandledByTier: TierClarification,
			TierLabel:     LabelScopeCue,
			Action:        ActionMessage,
			Message:       message,
		}, nil
	}

	turn.State.ClearScopeRecovery()

	if picked, ok := deterministicPick(rest, universe.options, turn.Lexicon); ok {
		return d.applySelection(turn, universe, picked, TierClarification, LabelScopeCue), nil
	}

	return d.unresolvedHook(ctx, turn, universe)
}

// applySelection commits a resolved pick: widget options open their panel
// and latch focus, everything else goes through the selection callback. The
// active universe is cleared either way.
func (d *Dispatcher) applySelection(turn *Turn, universe optionUniverse, picked session.Option, tier int, label string) *Result {
	d.clearUniverse(turn, universe)
	if picked.Kind == "widget" {
		turn.UI.OpenPanelDrawer(picked.ID, picked.Label)
		turn.UI.AddMessage("Opening " + picked.Label + ".")
		turn.State.LatchFocus(picked.ID, picked.Label)
		turn.State.ClearWidgetSelection()
		return &Result{
			Handled:       true,
			HandledByTier: tier,
			TierLabel:     label,
			Action:        ActionOpenPanel,
			WidgetID:      picked.ID,
			WidgetLabel:   picked.Label,
			Message:       "Opening " + picked.Label + ".",
		}
	}
	turn.UI.SelectOption(picked)
	return &Result{
		Handled:       true,
		HandledByTier: tier,
		TierLabel:     label,
		Action:        ActionSelectOption,
		OptionID:      picked.ID,
	}
}

// activeUniverse picks the option set this turn disambiguates against:
// pending options first, otherwise a fresh chat snapshot. Stale snapshots
// are cleared lazily and ignored.
func (d *Dispatcher) activeUniverse(turn *Turn) (optionUniverse, bool) {
	state := turn.State
	if len(state.PendingOptions) > 0 && state.Clarification != nil {
		return optionUniverse{
			options:   state.PendingOptions,
			messageID: state.Clarification.MessageID,
			intent:    state.Clarification.OriginalIntent,
			source:    universePending,
		}, true
	}
	if snapshot := state.ChatSnapshot; snapshot != nil && len(snapshot.Options) > 0 {
		if snapshot.TurnsSinceSet > d.params.SnapshotMaxAgeTurns {
			state.ClearChatSnapshot()
			return optionUniverse{}, false
		}
		return optionUniverse{
			options:   snapshot.Options,
			messageID: snapshot.MessageID,
			intent:    snapshot.OriginalIntent,
			source:    universeSnapshot,
		}, true
	}
	return optionUniverse{}, false
}

func (d *Dispatcher) clearUniverse(turn *Turn, universe optionUniverse) {
	switch universe.source {
	case universePending:
		turn.State.ClearClarification()
	case universeSnapshot, universeScopeChat:
		turn.State.ClearChatSnapshot()
	}
}

// deterministicPick resolves ordinal, badge, and exact-label selections, in
// that order. Only these may select without arbitration.
func deterministicPick(input string, options []session.Option, lex match.Lexicon) (session.Option, bool) {
	if len(options) == 0 {
		return session.Option{}, false
	}

	if position := match.ParseOrdinal(input, lex); position != 0 {
		index := position - 1
		if position == -1 {
			index = len(options) - 1
		}
		if index >= 0 && index < len(options) {
			return options[index], true
		}
	}

	if badge := match.ExtractBadge(input); badge != "" {
		var hits []session.Option
		for _, option := range options {
			tokens := strings.Fields(strings.ToLower(option.Label))
			if len(tokens) > 0 && tokens[len(tokens)-1] == badge {
				hits = append(hits, option)
			}
		}
		if len(hits) == 1 {
			return hits[0], true
		}
	}

	canonical := match.Strip(input, lex)
	if exact := match.FindExact(canonical, optionLabels(options)); len(exact) == 1 {
		return options[exact[0]], true
	}
	return session.Option{}, false
}

func optionLabels(options []session.Option) []string {
	labels := make([]string, len(options))
	for index, option := range options {
		labels[index] = option.Label
	}
	return labels
}
