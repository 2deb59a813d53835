package dispatch

import (
	"context"

	"github.com/dashwise/router-runtime/internal/match"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

// semanticLane diverts self-referential meta questions ("what just
// happened?") away from the routing ladder entirely. The result is
// deliberately not-handled: the caller's conversational answerer owns it.
func (d *Dispatcher) semanticLane(ctx context.Context, turn *Turn) (*Result, error) {
	if !turn.Gates.SemanticLane {
		return nil, nil
	}
	if !match.IsMetaQuestion(turn.Input) {
		return nil, nil
	}
	d.sink.Log(ctx, telemetry.ActionSemanticLaneBypass, turn.SessionID, map[string]any{
		"input": turn.Input,
	})
	return &Result{
		Handled:             false,
		SemanticLanePending: true,
		HandledByTier:       TierSemanticLane,
		TierLabel:           LabelSemanticLane,
	}, nil
}

// crossCorpusRetrieval is the first retrieval tier. Command-like inputs skip
// retrieval entirely; they are bound for known-noun routing.
func (d *Dispatcher) crossCorpusRetrieval(ctx context.Context, turn *Turn) (*Result, error) {
	return d.runResolver(ctx, turn, d.crossCorpus, TierRetrieval, LabelCrossCorpus, true)
}

// docRetrieval is the second retrieval tier, same contract.
func (d *Dispatcher) docRetrieval(ctx context.Context, turn *Turn) (*Result, error) {
	return d.runResolver(ctx, turn, d.doc, TierRetrieval, LabelDocRetrieval, true)
}

// knownNounRouting is the last tier: direct routing on recognized nouns. It
// sees command-like inputs the retrieval tiers skipped.
func (d *Dispatcher) knownNounRouting(ctx context.Context, turn *Turn) (*Result, error) {
	return d.runResolver(ctx, turn, d.knownNoun, TierKnownNoun, LabelKnownNoun, false)
}

func (d *Dispatcher) runResolver(ctx context.Context, turn *Turn, resolver Resolver, tier int, label string, skipCommands bool) (*Result, error) {
	if resolver == nil {
		return nil, nil
	}
	if skipCommands && match.IsCommandLike(turn.Input, turn.Lexicon) {
		return nil, nil
	}
	result, err := resolver.Resolve(ctx, turn)
	if err != nil {
		d.logger.Warn("resolver failed", "tier_label", label, "session_id", turn.SessionID, "error", err)
		return nil, nil
	}
	if !result.Handled {
		return nil, nil
	}
	if result.HandledByTier == 0 {
		result.HandledByTier = tier
	}
	if result.TierLabel == "" {
		result.TierLabel = label
	}
	return &result, nil
}
