// Package dispatch implements the tiered routing ladder: deterministic
// clarification intercept first, panel disambiguation next, LLM arbitration
// only when deterministic strategies are inconclusive, downstream resolvers
// last. The ladder is an explicit ordered list of strategies; the dispatcher
// folds over it and stops at the first strategy that claims the turn.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dashwise/router-runtime/internal/arbiter"
	"github.com/dashwise/router-runtime/internal/match"
	"github.com/dashwise/router-runtime/internal/session"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

// Tier numbers reported in results. The ladder order is the strategy list,
// not these numbers; the semantic lane carries 5 yet runs before retrieval
// because it bypasses it.
const (
	TierClarification = 0
	TierArbitration   = 1
	TierPanel         = 2
	TierRetrieval     = 3
	TierKnownNoun     = 4
	TierSemanticLane  = 5
)

// Tier labels reported in results.
const (
	LabelClarificationSelect = "clarification_select"
	LabelClarificationReshow = "clarification_reshow"
	LabelScopeCue            = "scope_cue"
	LabelArbitration         = "llm_arbitration"
	LabelPanel               = "panel_disambiguation"
	LabelCrossCorpus         = "cross_corpus_retrieval"
	LabelDocRetrieval        = "doc_retrieval"
	LabelKnownNoun           = "known_noun_routing"
	LabelSemanticLane        = "semantic_answer_lane"
)

// Action kinds a handled result may carry.
const (
	ActionOpenPanel    = "open_panel"
	ActionSelectOption = "select_option"
	ActionShowOptions  = "show_options"
	ActionMessage      = "message"
)

var ErrTurnStateRequired = errors.New("turn state is required")

// Result is the single output contract of a dispatched turn, immutable once
// returned.
type Result struct {
	Handled             bool   `json:"handled"`
	HandledByTier       int    `json:"handled_by_tier,omitempty"`
	TierLabel           string `json:"tier_label,omitempty"`
	SemanticLanePending bool   `json:"semantic_lane_pending,omitempty"`
	Action              string `json:"action,omitempty"`
	Message             string `json:"message,omitempty"`
	WidgetID            string `json:"widget_id,omitempty"`
	WidgetLabel         string `json:"widget_label,omitempty"`
	OptionID            string `json:"option_id,omitempty"`
}

// Widget is one currently visible panel or widget.
type Widget struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// UI is the closed set of mutation callbacks a turn may invoke. The caller
// owns what selection and opening actually mean.
type UI interface {
	AddMessage(text string)
	OpenPanelDrawer(widgetID, widgetLabel string)
	SelectOption(option session.Option)
	ShowOptions(prompt string, options []session.Option)
}

// Gates is the feature-gate snapshot for one turn, constructed at the
// request boundary. The dispatcher never reads ambient configuration.
type Gates struct {
	LLMFallback          bool
	AutoExecute          bool
	ContextRetry         bool
	SemanticLane         bool
	SelectionArbitration bool
}

// Turn bundles everything one dispatch needs: input, session state, the
// live widget surface, the mutation callbacks, and the gate snapshot.
type Turn struct {
	SessionID      string
	Input          string
	State          *session.State
	Widgets        []Widget
	ActiveWidgetID string
	UI             UI
	Gates          Gates
	Lexicon        match.Lexicon
}

// Resolver is the opaque downstream collaborator contract. Anything beyond
// Handled is optional; errors degrade to not-handled.
type Resolver interface {
	Resolve(ctx context.Context, turn *Turn) (Result, error)
}

// ArbitrationRecord is the per-call audit row handed to the recorder.
type ArbitrationRecord struct {
	SessionID  string
	MessageID  string
	Decision   string
	ChoiceID   string
	Confidence float64
	Reason     string
	ErrKind    string
	LatencyMs  int64
	Retried    bool
}

// AuditRecorder persists arbitration calls. Nil disables the audit.
type AuditRecorder interface {
	RecordArbitration(ctx context.Context, record ArbitrationRecord) error
}

// Params are the arbitration thresholds and limits.
type Params struct {
	AutoExecuteConfidence float64
	MinSelectConfidence   float64
	SafeReasons           []string
	SnapshotMaxAgeTurns   int
}

func DefaultParams() Params {
	return Params{
		AutoExecuteConfidence: 0.85,
		MinSelectConfidence:   0.6,
		SafeReasons: []string{
			"exact label", "unique match", "only option", "badge match",
			"ordinal match", "unambiguous",
		},
		SnapshotMaxAgeTurns: 6,
	}
}

type strategy struct {
	name    string
	resolve func(ctx context.Context, turn *Turn) (*Result, error)
}

// Dispatcher runs the ladder. It holds collaborators and thresholds only;
// all per-session state arrives with the turn.
type Dispatcher struct {
	arbiter     arbiter.Client
	sink        *telemetry.Sink
	audit       AuditRecorder
	knownNoun   Resolver
	crossCorpus Resolver
	doc         Resolver
	params      Params
	logger      *slog.Logger
	strategies  []strategy
}

type Dependencies struct {
	Arbiter     arbiter.Client
	Telemetry   *telemetry.Sink
	Audit       AuditRecorder
	KnownNoun   Resolver
	CrossCorpus Resolver
	Doc         Resolver
	Params      Params
	Logger      *slog.Logger
}

func New(deps Dependencies) *Dispatcher {
	params := deps.Params
	if params.AutoExecuteConfidence <= 0 {
		params.AutoExecuteConfidence = DefaultParams().AutoExecuteConfidence
	}
	if params.MinSelectConfidence <= 0 {
		params.MinSelectConfidence = DefaultParams().MinSelectConfidence
	}
	if len(params.SafeReasons) == 0 {
		params.SafeReasons = DefaultParams().SafeReasons
	}
	if params.SnapshotMaxAgeTurns <= 0 {
		params.SnapshotMaxAgeTurns = DefaultParams().SnapshotMaxAgeTurns
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := deps.Telemetry
	if sink == nil {
		sink = telemetry.NewSink(logger, nil)
	}

	dispatcher := &Dispatcher{
		arbiter:     deps.Arbiter,
		sink:        sink,
		audit:       deps.Audit,
		knownNoun:   deps.KnownNoun,
		crossCorpus: deps.CrossCorpus,
		doc:         deps.Doc,
		params:      params,
		logger:      logger,
	}
	dispatcher.strategies = []strategy{
		{name: "clarification_intercept", resolve: dispatcher.clarificationIntercept},
		{name: "panel_disambiguation", resolve: dispatcher.panelDisambiguation},
		{name: "semantic_answer_lane", resolve: dispatcher.semanticLane},
		{name: "cross_corpus_retrieval", resolve: dispatcher.crossCorpusRetrieval},
		{name: "doc_retrieval", resolve: dispatcher.docRetrieval},
		{name: "known_noun_routing", resolve: dispatcher.knownNounRouting},
	}
	return dispatcher
}

// Route runs exactly one turn down the ladder. Later strategies never run
// once an earlier one claims the turn; a strategy error degrades to
// not-handled and the ladder continues.
func (d *Dispatcher) Route(ctx context.Context, turn *Turn) (Result, error) {
	if turn == nil || turn.State == nil {
		return Result{}, ErrTurnStateRequired
	}
	if strings.TrimSpace(turn.Input) == "" {
		return Result{}, nil
	}
	turn.State.AgeTurn()

	for _, entry := range d.strategies {
		result, err := entry.resolve(ctx, turn)
		if err != nil {
			d.logger.Warn("routing strategy failed", "strategy", entry.name, "session_id", turn.SessionID, "error", err)
			continue
		}
		if result != nil {
			return *result, nil
		}
	}
	return Result{}, nil
}

func (d *Dispatcher) recordArbitration(ctx context.Context, record ArbitrationRecord) {
	if d.audit == nil {
		return
	}
	if err := d.audit.RecordArbitration(ctx, record); err != nil {
		d.logger.Warn("failed to record arbitration audit", "session_id", record.SessionID, "error", err)
	}
}

func latencyMs(latency time.Duration) int64 {
	return latency.Milliseconds()
}
