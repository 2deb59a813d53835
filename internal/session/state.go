// Package session owns the volatile per-session UI state the dispatcher
// routes against. The dispatcher itself never retains any of this between
// turns; it reads and mutates the State handed to it with the turn.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Option is one selectable entry of a clarification option set. Identity is
// position plus ID; IDs are unique within a set.
type Option struct {
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Sublabel string            `json:"sublabel,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Clarification records the option set most recently offered to the user,
// with the message ID the loop guard keys on. Message IDs never repeat
// across distinct option sets within a session.
type Clarification struct {
	Kind           string
	OriginalIntent string
	MessageID      string
	ShownAt        time.Time
	Options        []Option
	MetaCount      int
}

// Snapshot is the independently tracked "what chat most recently offered"
// option universe, distinct from the pending set which may be scoped
// elsewhere. Both may be non-empty at once; precedence is the dispatcher's
// concern.
type Snapshot struct {
	Options        []Option
	OriginalIntent string
	Kind           string
	MessageID      string
	TurnsSinceSet  int
	Timestamp      time.Time
}

// FocusLatch marks the widget the user is implicitly "inside". It ages once
// per turn and clears on explicit navigation.
type FocusLatch struct {
	WidgetID          string
	WidgetLabel       string
	LatchedAt         time.Time
	TurnsSinceLatched int
}

// TurnMemory is the shared shape of the short-lived disambiguation bags
// (scope-cue recovery, widget selection, repair): a payload plus a turn
// counter, cleared on resolution or timeout.
type TurnMemory struct {
	Payload       map[string]string
	TurnsSinceSet int
}

// LoopGuard suppresses repeated arbitration calls for the same unresolved
// option set. It is plain state owned by the session, never module-level.
type LoopGuard struct {
	lastArbitratedMessageID string
}

// Note records that an arbitration call happened for the given message ID.
func (g *LoopGuard) Note(messageID string) {
	g.lastArbitratedMessageID = strings.TrimSpace(messageID)
}

// Suppresses reports whether another call for the same message ID must be
// skipped. A changed message ID re-arms the guard.
func (g *LoopGuard) Suppresses(messageID string) bool {
	messageID = strings.TrimSpace(messageID)
	return messageID != "" && messageID == g.lastArbitratedMessageID
}

// Reset clears the guard. Exposed so tests and session expiry can re-arm.
func (g *LoopGuard) Reset() {
	g.lastArbitratedMessageID = ""
}

// State is the complete mutable context of one UI session. The registry
// hands out shared pointers; callers hold the session lock across a whole
// dispatch so state transitions stay single-threaded per session.
type State struct {
	mu sync.Mutex

	ID              string
	PendingOptions  []Option
	Clarification   *Clarification
	ChatSnapshot    *Snapshot
	Focus           *FocusLatch
	ScopeRecovery   *TurnMemory
	WidgetSelection *TurnMemory
	Repair          *TurnMemory
	Guard           LoopGuard
	Turns           int
	LastActivity    time.Time
}

func NewState(id string) *State {
	return &State{ID: strings.TrimSpace(id), LastActivity: time.Now().UTC()}
}

// Lock takes the per-session turn lock. A dispatch holds it from Ensure to
// response; external readers and the sweeper hold it around every access.
func (s *State) Lock() { s.mu.Lock() }

func (s *State) Unlock() { s.mu.Unlock() }

// NewMessageID mints the stable identity for a freshly shown option set.
func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// SetClarification installs a new pending option set and its clarification
// record in one step, minting a fresh message ID.
func (s *State) SetClarification(kind, originalIntent string, options []Option) *Clarification {
	return s.SetClarificationWithID(kind, originalIntent, NewMessageID(), options)
}

// SetClarificationWithID installs a pending option set under a
// caller-supplied message ID. A re-shown set keeps its identity this way, so
// the loop guard still recognizes it on the follow-up turn.
func (s *State) SetClarificationWithID(kind, originalIntent, messageID string, options []Option) *Clarification {
	clarification := &Clarification{
		Kind:           kind,
		OriginalIntent: strings.TrimSpace(originalIntent),
		MessageID:      strings.TrimSpace(messageID),
		ShownAt:        time.Now().UTC(),
		Options:        options,
		MetaCount:      len(options),
	}
	s.PendingOptions = options
	s.Clarification = clarification
	return clarification
}

// ClearClarification drops the pending option set so it cannot be re-shown.
func (s *State) ClearClarification() {
	s.PendingOptions = nil
	s.Clarification = nil
}

// SetChatSnapshot replaces the chat-shown option universe.
func (s *State) SetChatSnapshot(kind, originalIntent string, options []Option) {
	s.ChatSnapshot = &Snapshot{
		Options:        options,
		OriginalIntent: strings.TrimSpace(originalIntent),
		Kind:           kind,
		MessageID:      NewMessageID(),
		Timestamp:      time.Now().UTC(),
	}
}

func (s *State) ClearChatSnapshot() {
	s.ChatSnapshot = nil
}

// LatchFocus marks the widget the user is now implicitly inside.
func (s *State) LatchFocus(widgetID, widgetLabel string) {
	s.Focus = &FocusLatch{
		WidgetID:    strings.TrimSpace(widgetID),
		WidgetLabel: strings.TrimSpace(widgetLabel),
		LatchedAt:   time.Now().UTC(),
	}
}

func (s *State) ClearFocus() {
	s.Focus = nil
}

func (s *State) SetScopeRecovery(payload map[string]string) {
	s.ScopeRecovery = &TurnMemory{Payload: payload}
}

func (s *State) ClearScopeRecovery() {
	s.ScopeRecovery = nil
}

func (s *State) SetWidgetSelection(payload map[string]string) {
	s.WidgetSelection = &TurnMemory{Payload: payload}
}

func (s *State) ClearWidgetSelection() {
	s.WidgetSelection = nil
}

func (s *State) SetRepair(payload map[string]string) {
	s.Repair = &TurnMemory{Payload: payload}
}

func (s *State) ClearRepair() {
	s.Repair = nil
}

// AgeTurn advances every turn counter by one and expires the one-extra-turn
// memories. Called exactly once per routed turn; blank input does not age.
func (s *State) AgeTurn() {
	s.Turns++
	s.LastActivity = time.Now().UTC()
	if s.ChatSnapshot != nil {
		s.ChatSnapshot.TurnsSinceSet++
	}
	if s.Focus != nil {
		s.Focus.TurnsSinceLatched++
	}
	s.ScopeRecovery = ageMemory(s.ScopeRecovery)
	s.WidgetSelection = ageMemory(s.WidgetSelection)
	s.Repair = ageMemory(s.Repair)
}

// The recovery bags remember a sub-flow across exactly one extra turn.
func ageMemory(memory *TurnMemory) *TurnMemory {
	if memory == nil {
		return nil
	}
	memory.TurnsSinceSet++
	if memory.TurnsSinceSet > 1 {
		return nil
	}
	return memory
}

// Expire clears everything a stale session may not carry into a new
// conversation: clarifications, snapshot, latches, and the loop guard.
func (s *State) Expire() {
	s.ClearClarification()
	s.ClearChatSnapshot()
	s.ClearFocus()
	s.ClearScopeRecovery()
	s.ClearWidgetSelection()
	s.ClearRepair()
	s.Guard.Reset()
}
