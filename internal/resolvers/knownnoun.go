// Package resolvers holds the downstream collaborators the dispatcher calls
// once the disambiguation tiers decline a turn: known-noun routing against
// the persisted route table, and the retrieval tiers answering questions
// from a document corpus.
package resolvers

import (
	"context"
	"log/slog"

	"github.com/dashwise/router-runtime/internal/dispatch"
	"github.com/dashwise/router-runtime/internal/match"
	"github.com/dashwise/router-runtime/internal/store"
)

// NounLookup is the slice of the store the known-noun resolver needs.
type NounLookup interface {
	LookupNounRoute(ctx context.Context, noun string) (store.NounRoute, bool, error)
}

// KnownNoun routes recognized nouns straight to their configured UI action.
type KnownNoun struct {
	lookup NounLookup
	logger *slog.Logger
}

func NewKnownNoun(lookup NounLookup, logger *slog.Logger) *KnownNoun {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnownNoun{lookup: lookup, logger: logger.With("component", "known_noun")}
}

func (r *KnownNoun) Resolve(ctx context.Context, turn *dispatch.Turn) (dispatch.Result, error) {
	canonical := match.Strip(turn.Input, turn.Lexicon)
	if canonical == "" {
		return dispatch.Result{}, nil
	}
	route, found, err := r.lookup.LookupNounRoute(ctx, canonical)
	if err != nil {
		return dispatch.Result{}, err
	}
	if !found {
		return dispatch.Result{}, nil
	}

	label := route.TargetLabel
	if label == "" {
		label = route.Noun
	}
	switch route.Action {
	case dispatch.ActionOpenPanel:
		turn.UI.OpenPanelDrawer(route.TargetID, label)
		turn.UI.AddMessage("Opening " + label + ".")
		turn.State.LatchFocus(route.TargetID, label)
		return dispatch.Result{
			Handled:     true,
			Action:      dispatch.ActionOpenPanel,
			WidgetID:    route.TargetID,
			WidgetLabel: label,
			Message:     "Opening " + label + ".",
		}, nil
	default:
		message := "Taking you to " + label + "."
		turn.UI.AddMessage(message)
		return dispatch.Result{
			Handled: true,
			Action:  dispatch.ActionMessage,
			Message: message,
		}, nil
	}
}
