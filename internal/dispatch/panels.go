package dispatch

import (
	"context"
	"strings"

	"github.com/dashwise/router-runtime/internal/match"
	"github.com/dashwise/router-runtime/internal/session"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

// panelDisambiguation is tier 2: match the verb-stripped input against the
// titles of the currently visible widgets. One hit opens the panel; several
// become a fresh clarification; none falls through to retrieval.
func (d *Dispatcher) panelDisambiguation(ctx context.Context, turn *Turn) (*Result, error) {
	if len(turn.Widgets) == 0 {
		return nil, nil
	}
	if match.IsQuestion(turn.Input) && !match.IsCommandLike(turn.Input, turn.Lexicon) {
		return nil, nil
	}

	canonical := match.Strip(turn.Input, turn.Lexicon)
	if canonical == "" {
		return nil, nil
	}

	titles := make([]string, len(turn.Widgets))
	for index, widget := range turn.Widgets {
		titles[index] = widget.Title
	}

	hits := match.FindExact(canonical, titles)
	if len(hits) == 0 {
		hits = match.FindLoose(canonical, titles)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// A trailing badge letter narrows same-prefix panels down to one.
	if len(hits) > 1 {
		if badge := match.ExtractBadge(turn.Input); badge != "" {
			var narrowed []int
			for _, hit := range hits {
				tokens := strings.Fields(strings.ToLower(titles[hit]))
				if len(tokens) > 0 && tokens[len(tokens)-1] == badge {
					narrowed = append(narrowed, hit)
				}
			}
			if len(narrowed) > 0 {
				hits = narrowed
			}
		}
	}

	if len(hits) == 1 {
		widget := turn.Widgets[hits[0]]
		turn.UI.OpenPanelDrawer(widget.ID, widget.Title)
		turn.UI.AddMessage("Opening " + widget.Title + ".")
		turn.State.LatchFocus(widget.ID, widget.Title)
		d.sink.Log(ctx, telemetry.ActionPanelOpened, turn.SessionID, map[string]any{
			"widget_id":    widget.ID,
			"widget_title": widget.Title,
		})
		return &Result{
			Handled:       true,
			HandledByTier: TierPanel,
			TierLabel:     LabelPanel,
			Action:        ActionOpenPanel,
			WidgetID:      widget.ID,
			WidgetLabel:   widget.Title,
			Message:       "Opening " + widget.Title + ".",
		}, nil
	}

	options := make([]session.Option, len(hits))
	for index, hit := range hits {
		options[index] = session.Option{
			ID:    turn.Widgets[hit].ID,
			Label: turn.Widgets[hit].Title,
			Kind:  "widget",
		}
	}
	turn.State.SetClarification("panel", turn.Input, options)
	turn.State.SetWidgetSelection(map[string]string{"input": turn.Input})
	prompt := "Multiple panels match. Which one?"
	turn.UI.ShowOptions(prompt, options)
	d.sink.Log(ctx, telemetry.ActionPanelOptionsShown, turn.SessionID, map[string]any{
		"candidates": len(options),
	})
	return &Result{
		Handled:       true,
		HandledByTier: TierPanel,
		TierLabel:     LabelPanel,
		Action:        ActionShowOptions,
		Message:       prompt,
	}, nil
}
