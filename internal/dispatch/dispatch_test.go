package dispatch

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dashwise/router-runtime/internal/arbiter"
	"github.com/dashwise/router-runtime/internal/match"
	"github.com/dashwise/router-runtime/internal/session"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

type recordedShow struct {
	prompt  string
	options []session.Option
}

type fakeUI struct {
	messages []string
	opened   []string
	selected []session.Option
	shows    []recordedShow
}

func (u *fakeUI) AddMessage(text string) { u.messages = append(u.messages, text) }

func (u *fakeUI) OpenPanelDrawer(widgetID, widgetLabel string) {
	u.opened = append(u.opened, widgetID)
}

func (u *fakeUI) SelectOption(option session.Option) { u.selected = append(u.selected, option) }

func (u *fakeUI) ShowOptions(prompt string, options []session.Option) {
	u.shows = append(u.shows, recordedShow{prompt: prompt, options: options})
}

type eventLog struct {
	events []telemetry.Event
}

func (l *eventLog) Record(ctx context.Context, event telemetry.Event) error {
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) find(action string) (telemetry.Event, bool) {
	for _, event := range l.events {
		if event.Action == action {
			return event, true
		}
	}
	return telemetry.Event{}, false
}

func (l *eventLog) has(action string) bool {
	_, ok := l.find(action)
	return ok
}

type scriptedArbiter struct {
	results  []arbiter.Result
	requests []arbiter.Request
}

func (a *scriptedArbiter) Arbitrate(ctx context.Context, request arbiter.Request) arbiter.Result {
	a.requests = append(a.requests, request)
	if len(a.results) == 0 {
		return arbiter.Result{Err: "no scripted result"}
	}
	next := a.results[0]
	a.results = a.results[1:]
	return next
}

type fakeResolver struct {
	calls  int
	result Result
}

func (r *fakeResolver) Resolve(ctx context.Context, turn *Turn) (Result, error) {
	r.calls++
	return r.result, nil
}

func newTestDispatcher(arb arbiter.Client, events *eventLog, known, cross, doc Resolver) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Dependencies{
		Arbiter:     arb,
		Telemetry:   telemetry.NewSink(logger, events),
		KnownNoun:   known,
		CrossCorpus: cross,
		Doc:         doc,
		Logger:      logger,
	})
}

func allGates() Gates {
	return Gates{
		LLMFallback:          true,
		AutoExecute:          true,
		ContextRetry:         true,
		SemanticLane:         true,
		SelectionArbitration: true,
	}
}

func newTurn(state *session.State, input string, ui *fakeUI) *Turn {
	return &Turn{
		SessionID: "s1",
		Input:     input,
		State:     state,
		UI:        ui,
		Gates:     allGates(),
		Lexicon:   match.DefaultLexicon(),
	}
}

func revenueOptions() []session.Option {
	return []session.Option{
		{ID: "o1", Label: "Revenue Summary"},
		{ID: "o2", Label: "Revenue Summary 2024"},
	}
}

func selectDecision(choiceID string, confidence float64, reason string) arbiter.Result {
	return arbiter.Result{
		Success: true,
		Response: arbiter.Decision{
			Decision:   arbiter.DecisionSelect,
			ChoiceID:   choiceID,
			Confidence: confidence,
			Reason:     reason,
		},
	}
}

func clarifyDecision() arbiter.Result {
	return arbiter.Result{
		Success:  true,
		Response: arbiter.Decision{Decision: arbiter.DecisionClarify},
	}
}

func requestContextDecision(needed string) arbiter.Result {
	return arbiter.Result{
		Success: true,
		Response: arbiter.Decision{
			Decision:      arbiter.DecisionRequestContext,
			NeededContext: []string{needed},
		},
	}
}

func TestExactLabelSelectsWithoutArbitration(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "revenue summary", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !result.Handled || result.Action != ActionSelectOption || result.OptionID != "o1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.HandledByTier != TierClarification {
		t.Fatalf("expected tier %d, got %d", TierClarification, result.HandledByTier)
	}
	if len(arb.requests) != 0 {
		t.Fatalf("arbiter must not be called on an exact match, got %d calls", len(arb.requests))
	}
	if len(ui.selected) != 1 || ui.selected[0].ID != "o1" {
		t.Fatalf("expected o1 selected, got %+v", ui.selected)
	}
	if state.PendingOptions != nil || state.Clarification != nil {
		t.Fatal("pending options must be cleared after selection")
	}
}

func TestOrdinalSelectsByPosition(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"the second one", "o2"},
		{"open secone option", "o2"},
		{"first", "o1"},
		{"the last one", "o2"},
	}
	for _, testCase := range cases {
		state := session.NewState("s1")
		state.SetClarification("options", "show revenue", revenueOptions())
		ui := &fakeUI{}
		dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)

		result, err := dispatcher.Route(context.Background(), newTurn(state, testCase.input, ui))
		if err != nil {
			t.Fatalf("%q: route: %v", testCase.input, err)
		}
		if result.OptionID != testCase.want {
			t.Fatalf("%q: expected %s, got %+v", testCase.input, testCase.want, result)
		}
	}
}

func TestQuestionEscapesPendingOptions(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{}
	events := &eventLog{}
	cross := &fakeResolver{result: Result{Handled: true, Action: ActionMessage, Message: "found it"}}
	dispatcher := newTestDispatcher(arb, events, nil, cross, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "what is the second one", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !events.has(telemetry.ActionQuestionEscape) {
		t.Fatal("expected question escape event")
	}
	if len(arb.requests) != 0 {
		t.Fatal("a question must not reach the arbiter")
	}
	if cross.calls != 1 || result.TierLabel != LabelCrossCorpus {
		t.Fatalf("expected cross-corpus retrieval to handle, got %+v (calls %d)", result, cross.calls)
	}
	if state.PendingOptions == nil {
		t.Fatal("question escape must not clear the pending options")
	}
}

func TestCommandEscapeBypassesStaleOptions(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	events := &eventLog{}
	known := &fakeResolver{result: Result{Handled: true, Action: ActionOpenPanel, WidgetID: "settings"}}
	cross := &fakeResolver{}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, events, known, cross, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "open settings", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !events.has(telemetry.ActionCommandEscape) {
		t.Fatal("expected command escape event")
	}
	if cross.calls != 0 {
		t.Fatal("command-like input must skip retrieval")
	}
	if known.calls != 1 || result.TierLabel != LabelKnownNoun {
		t.Fatalf("expected known-noun routing, got %+v (calls %d)", result, known.calls)
	}
	if state.PendingOptions == nil {
		t.Fatal("command escape bypasses the options, it does not clear them")
	}
}

func TestLoopGuardSuppressesSecondCall(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{clarifyDecision(), clarifyDecision()}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "summary", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(arb.requests) != 1 {
		t.Fatalf("expected one arbitration call, got %d", len(arb.requests))
	}
	if result.TierLabel != LabelClarificationReshow {
		t.Fatalf("expected reshow, got %+v", result)
	}

	if _, err := dispatcher.Route(context.Background(), newTurn(state, "summary", ui)); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(arb.requests) != 1 {
		t.Fatalf("loop guard must suppress the second call, got %d", len(arb.requests))
	}
	if !events.has(telemetry.ActionLoopGuardSuppressed) {
		t.Fatal("expected loop guard suppression event")
	}

	// A fresh option set mints a new message ID and re-arms the guard.
	state.SetClarification("options", "show revenue", revenueOptions())
	if _, err := dispatcher.Route(context.Background(), newTurn(state, "summary", ui)); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(arb.requests) != 2 {
		t.Fatalf("new option set must re-arm the guard, got %d calls", len(arb.requests))
	}
}

func TestHighConfidenceSafeReasonAutoExecutes(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{selectDecision("o2", 0.9, "unique match on the year")}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "summary 2024", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionSelectOption || result.OptionID != "o2" {
		t.Fatalf("expected auto-executed selection of o2, got %+v", result)
	}
	if result.HandledByTier != TierArbitration {
		t.Fatalf("expected tier %d, got %d", TierArbitration, result.HandledByTier)
	}
	if !events.has(telemetry.ActionAutoExecuted) {
		t.Fatal("expected auto-execute event")
	}
	if len(ui.shows) != 0 {
		t.Fatal("auto-execute must not re-show options")
	}
	if state.PendingOptions != nil {
		t.Fatal("options must be cleared after auto-execution")
	}
}

func TestMidConfidenceReordersNeverExecutes(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	messageID := state.Clarification.MessageID
	arb := &scriptedArbiter{results: []arbiter.Result{selectDecision("o2", 0.7, "unique match on the year")}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "summary 2024", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionShowOptions {
		t.Fatalf("mid confidence must re-show, got %+v", result)
	}
	if len(ui.selected) != 0 {
		t.Fatal("mid confidence must never select")
	}
	if len(ui.shows) != 1 || ui.shows[0].options[0].ID != "o2" {
		t.Fatalf("expected o2 first in the re-shown order, got %+v", ui.shows)
	}
	if !events.has(telemetry.ActionReorderedClarifier) {
		t.Fatal("expected reordered clarifier event")
	}
	if state.PendingOptions[0].ID != "o2" {
		t.Fatal("reordered options must persist so the next ordinal matches the display")
	}
	if state.Clarification.MessageID != messageID {
		t.Fatal("reordering must keep the message ID stable")
	}
}

func TestUnsafeReasonBlocksAutoExecute(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{selectDecision("o2", 0.92, "sounds plausible")}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "summary 2024", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if events.has(telemetry.ActionAutoExecuted) {
		t.Fatal("a reason outside the allow-list must not auto-execute")
	}
	if result.Action != ActionShowOptions || len(ui.selected) != 0 {
		t.Fatalf("expected re-show, got %+v", result)
	}
}

func TestAutoExecuteGateOffReshows(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{selectDecision("o2", 0.9, "unique match")}}
	dispatcher := newTestDispatcher(arb, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "summary 2024", ui)
	turn.Gates.AutoExecute = false

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionShowOptions || len(ui.selected) != 0 {
		t.Fatalf("gate off must re-show instead of executing, got %+v", result)
	}
}

func TestLowConfidenceReshowsOriginalOrder(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{selectDecision("o2", 0.4, "unique match")}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	if _, err := dispatcher.Route(context.Background(), newTurn(state, "summary 2024", ui)); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(ui.shows) != 1 || ui.shows[0].options[0].ID != "o1" {
		t.Fatalf("low confidence must keep the original order, got %+v", ui.shows)
	}
	if events.has(telemetry.ActionReorderedClarifier) {
		t.Fatal("low confidence must not reorder")
	}
}

func TestRequestContextRetriesOnceWithEvidence(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{
		requestContextDecision("which widget is focused"),
		selectDecision("o1", 0.9, "exact label after context"),
	}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "summary", ui)
	turn.Widgets = []Widget{{ID: "w1", Title: "Links Panel"}}

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(arb.requests) != 2 {
		t.Fatalf("expected exactly two arbitration calls, got %d", len(arb.requests))
	}
	if !events.has(telemetry.ActionRetryCalled) {
		t.Fatal("expected retry event")
	}
	joined := strings.Join(arb.requests[1].Context, "\n")
	if !strings.Contains(joined, "visible_widgets: Links Panel") {
		t.Fatalf("retry must carry enriched evidence, got %q", joined)
	}
	if result.OptionID != "o1" || !events.has(telemetry.ActionAutoExecuted) {
		t.Fatalf("expected auto-executed o1 after retry, got %+v", result)
	}
}

func TestSecondRequestContextFallsBackToReshow(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{
		requestContextDecision("a"),
		requestContextDecision("b"),
	}}
	dispatcher := newTestDispatcher(arb, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "summary", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(arb.requests) != 2 {
		t.Fatalf("context retry is capped at one, got %d calls", len(arb.requests))
	}
	if result.Action != ActionShowOptions {
		t.Fatalf("expected re-show after the capped retry, got %+v", result)
	}
}

func TestRequestContextGateOffReshows(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{requestContextDecision("a")}}
	dispatcher := newTestDispatcher(arb, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "summary", ui)
	turn.Gates.ContextRetry = false

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(arb.requests) != 1 || result.Action != ActionShowOptions {
		t.Fatalf("gate off must re-show after one call, got %d calls, %+v", len(arb.requests), result)
	}
}

func TestArbitrationFailureClassifiedAndReshown(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	arb := &scriptedArbiter{results: []arbiter.Result{{Err: "upstream returned 429 too many requests"}}}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "summary", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	event, ok := events.find(telemetry.ActionArbitrationFailed)
	if !ok {
		t.Fatal("expected arbitration failure event")
	}
	if event.Metadata["error_kind"] != arbiter.FailureRateLimited {
		t.Fatalf("expected rate_limited, got %v", event.Metadata["error_kind"])
	}
	if result.Action != ActionShowOptions {
		t.Fatalf("failure must degrade to re-show, got %+v", result)
	}
}

func TestScopeCuePinsChatSnapshot(t *testing.T) {
	state := session.NewState("s1")
	state.SetChatSnapshot("options", "show summaries", revenueOptions())
	state.SetClarification("panel", "open links", []session.Option{
		{ID: "w1", Label: "Links Panel D", Kind: "widget"},
		{ID: "w2", Label: "Links Panel E", Kind: "widget"},
	})
	arb := &scriptedArbiter{}
	dispatcher := newTestDispatcher(arb, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "revenue summary from chat", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.OptionID != "o1" || result.TierLabel != LabelScopeCue {
		t.Fatalf("expected o1 via scope cue, got %+v", result)
	}
	if len(arb.requests) != 0 {
		t.Fatal("a deterministic scoped match must not call the arbiter")
	}
	if state.ChatSnapshot != nil {
		t.Fatal("snapshot must be cleared after a scoped selection")
	}
	if len(state.PendingOptions) != 2 {
		t.Fatal("the cue pins the universe without touching the other option set")
	}
}

func TestScopeCueEmptyUniverseNeverCallsArbiter(t *testing.T) {
	state := session.NewState("s1")
	arb := &scriptedArbiter{}
	events := &eventLog{}
	dispatcher := newTestDispatcher(arb, events, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "revenue summary from chat", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !result.Handled || result.Action != ActionMessage {
		t.Fatalf("expected a scope-specific message, got %+v", result)
	}
	if len(arb.requests) != 0 {
		t.Fatal("an empty scope universe must not reach the arbiter")
	}
	if !events.has(telemetry.ActionScopeCueNoOptions) {
		t.Fatal("expected scope cue telemetry")
	}
	if state.ScopeRecovery == nil {
		t.Fatal("expected scope recovery memory for the follow-up turn")
	}
	if len(ui.messages) != 1 {
		t.Fatalf("expected one message, got %v", ui.messages)
	}
}

func TestScopeCueDashboardOpensWidgetByBadge(t *testing.T) {
	state := session.NewState("s1")
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "the links panel d from dashboard", ui)
	turn.Widgets = []Widget{
		{ID: "w1", Title: "Links Panel D"},
		{ID: "w2", Title: "Links Panel E"},
	}

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionOpenPanel || result.WidgetID != "w1" {
		t.Fatalf("expected Links Panel D opened, got %+v", result)
	}
	if state.Focus == nil || state.Focus.WidgetID != "w1" {
		t.Fatal("opening a panel must latch focus")
	}
}

func TestScopeCueReshowPersistsWidgetUniverse(t *testing.T) {
	state := session.NewState("s1")
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}
	widgets := []Widget{
		{ID: "w1", Title: "Links Panel D"},
		{ID: "w2", Title: "Links Panel E"},
	}
	turn := newTurn(state, "the links one from dashboard", ui)
	turn.Widgets = widgets

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionShowOptions {
		t.Fatalf("expected the scoped universe re-shown, got %+v", result)
	}
	if len(state.PendingOptions) != 2 || state.Clarification == nil {
		t.Fatal("the re-shown scoped options must persist for the follow-up turn")
	}
	if !strings.HasPrefix(state.Clarification.MessageID, "scope:") {
		t.Fatalf("the persisted set must keep its scoped guard key, got %q", state.Clarification.MessageID)
	}

	followUp := newTurn(state, "the second one", ui)
	followUp.Widgets = widgets
	result, err = dispatcher.Route(context.Background(), followUp)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionOpenPanel || result.WidgetID != "w2" {
		t.Fatalf("expected the ordinal follow-up to open Links Panel E, got %+v", result)
	}
	if state.PendingOptions != nil {
		t.Fatal("selection must clear the persisted scoped options")
	}
}

func TestPanelSingleMatchOpens(t *testing.T) {
	state := session.NewState("s1")
	events := &eventLog{}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, events, nil, nil, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "open links panel", ui)
	turn.Widgets = []Widget{{ID: "w1", Title: "Links Panel"}}

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionOpenPanel || result.WidgetID != "w1" {
		t.Fatalf("expected panel opened, got %+v", result)
	}
	if result.HandledByTier != TierPanel {
		t.Fatalf("expected tier %d, got %d", TierPanel, result.HandledByTier)
	}
	if !events.has(telemetry.ActionPanelOpened) {
		t.Fatal("expected panel opened event")
	}
	if len(ui.opened) != 1 || ui.opened[0] != "w1" {
		t.Fatalf("expected drawer opened for w1, got %v", ui.opened)
	}
	if state.Focus == nil || state.Focus.WidgetLabel != "Links Panel" {
		t.Fatal("expected focus latched on the opened panel")
	}
}

func TestPanelBadgeNarrowsToOne(t *testing.T) {
	state := session.NewState("s1")
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "open links panel d", ui)
	turn.Widgets = []Widget{
		{ID: "w1", Title: "Links Panel D"},
		{ID: "w2", Title: "Links Panel E"},
	}

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionOpenPanel || result.WidgetID != "w1" {
		t.Fatalf("expected Links Panel D opened, got %+v", result)
	}
}

func TestPanelMultipleMatchesThenOrdinalFollowUp(t *testing.T) {
	state := session.NewState("s1")
	events := &eventLog{}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, events, nil, nil, nil)
	ui := &fakeUI{}
	widgets := []Widget{
		{ID: "w1", Title: "Links Panel D"},
		{ID: "w2", Title: "Links Panel E"},
	}
	turn := newTurn(state, "open links panel", ui)
	turn.Widgets = widgets

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionShowOptions || result.HandledByTier != TierPanel {
		t.Fatalf("expected panel options shown, got %+v", result)
	}
	if !events.has(telemetry.ActionPanelOptionsShown) {
		t.Fatal("expected panel options event")
	}
	if len(state.PendingOptions) != 2 {
		t.Fatalf("expected a pending clarification, got %+v", state.PendingOptions)
	}

	followUp := newTurn(state, "the first one", ui)
	followUp.Widgets = widgets
	result, err = dispatcher.Route(context.Background(), followUp)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Action != ActionOpenPanel || result.WidgetID != "w1" {
		t.Fatalf("expected ordinal follow-up to open Links Panel D, got %+v", result)
	}
	if state.PendingOptions != nil {
		t.Fatal("selection must clear the pending options")
	}
}

func TestSemanticLaneBypass(t *testing.T) {
	state := session.NewState("s1")
	events := &eventLog{}
	cross := &fakeResolver{result: Result{Handled: true}}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, events, nil, cross, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "what just happened?", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Handled || !result.SemanticLanePending {
		t.Fatalf("expected a pending semantic lane bypass, got %+v", result)
	}
	if cross.calls != 0 {
		t.Fatal("the bypass must stop the ladder before retrieval")
	}
	if !events.has(telemetry.ActionSemanticLaneBypass) {
		t.Fatal("expected bypass event")
	}
}

func TestSemanticLaneGateOffFallsThrough(t *testing.T) {
	state := session.NewState("s1")
	cross := &fakeResolver{result: Result{Handled: true, Message: "answered"}}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, cross, nil)
	ui := &fakeUI{}
	turn := newTurn(state, "what just happened?", ui)
	turn.Gates.SemanticLane = false

	result, err := dispatcher.Route(context.Background(), turn)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.SemanticLanePending {
		t.Fatal("gate off must not divert to the semantic lane")
	}
	if cross.calls != 1 || result.TierLabel != LabelCrossCorpus {
		t.Fatalf("expected retrieval to handle, got %+v", result)
	}
}

func TestKnownNounNeverInvokedWhenClarificationHandles(t *testing.T) {
	state := session.NewState("s1")
	state.SetClarification("options", "show revenue", revenueOptions())
	known := &fakeResolver{result: Result{Handled: true}}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, known, nil, nil)
	ui := &fakeUI{}

	if _, err := dispatcher.Route(context.Background(), newTurn(state, "revenue summary", ui)); err != nil {
		t.Fatalf("route: %v", err)
	}
	if known.calls != 0 {
		t.Fatal("an earlier tier claimed the turn; known-noun routing must not run")
	}
}

func TestStaleSnapshotIgnoredAndCleared(t *testing.T) {
	state := session.NewState("s1")
	state.SetChatSnapshot("options", "show summaries", revenueOptions())
	state.ChatSnapshot.TurnsSinceSet = 7
	known := &fakeResolver{result: Result{Handled: true}}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, known, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "revenue summary", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if state.ChatSnapshot != nil {
		t.Fatal("a stale snapshot must be cleared, not matched")
	}
	if known.calls != 1 || result.TierLabel != LabelKnownNoun {
		t.Fatalf("expected fall-through to known-noun routing, got %+v", result)
	}
}

func TestFreshSnapshotServesAsUniverse(t *testing.T) {
	state := session.NewState("s1")
	state.SetChatSnapshot("options", "show summaries", revenueOptions())
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)
	ui := &fakeUI{}

	result, err := dispatcher.Route(context.Background(), newTurn(state, "the second one", ui))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.OptionID != "o2" {
		t.Fatalf("expected snapshot ordinal selection, got %+v", result)
	}
	if state.ChatSnapshot != nil {
		t.Fatal("selection must consume the snapshot")
	}
}

func TestBlankInputIsNoOp(t *testing.T) {
	state := session.NewState("s1")
	known := &fakeResolver{result: Result{Handled: true}}
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, known, nil, nil)

	result, err := dispatcher.Route(context.Background(), newTurn(state, "   ", &fakeUI{}))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if result.Handled || known.calls != 0 {
		t.Fatalf("blank input must do nothing, got %+v", result)
	}
}

func TestBlankInputDoesNotAgeSession(t *testing.T) {
	state := session.NewState("s1")
	state.SetChatSnapshot("options", "show summaries", revenueOptions())
	state.SetScopeRecovery(map[string]string{"scope": "chat"})
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)

	if _, err := dispatcher.Route(context.Background(), newTurn(state, "   ", &fakeUI{})); err != nil {
		t.Fatalf("route: %v", err)
	}
	if state.Turns != 0 || state.ChatSnapshot.TurnsSinceSet != 0 {
		t.Fatalf("blank input must not age the session, got %d turns", state.Turns)
	}
	if state.ScopeRecovery == nil {
		t.Fatal("blank input must not expire the recovery memory")
	}

	if _, err := dispatcher.Route(context.Background(), newTurn(state, "hello there", &fakeUI{})); err != nil {
		t.Fatalf("route: %v", err)
	}
	if state.Turns != 1 || state.ChatSnapshot.TurnsSinceSet != 1 {
		t.Fatalf("a non-blank turn must age exactly once, got %d turns", state.Turns)
	}
}

func TestNilStateRejected(t *testing.T) {
	dispatcher := newTestDispatcher(&scriptedArbiter{}, &eventLog{}, nil, nil, nil)
	if _, err := dispatcher.Route(context.Background(), &Turn{Input: "x"}); err == nil {
		t.Fatal("expected an error for a turn without state")
	}
}
