// Package lexicon owns the configurable word lists the matcher consults:
// fillers, command verbs, the verb typo allow-list, ordinals, and scope
// cues. Deployments override the built-ins through a JSON file which is
// hot-reloaded on change.
package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dashwise/router-runtime/internal/match"
)

// Source holds the current lexicon behind a read lock. Readers take a copy
// per turn; a reload never mutates a lexicon already handed out.
type Source struct {
	mu      sync.RWMutex
	path    string
	logger  *slog.Logger
	current match.Lexicon
}

// NewSource builds a source seeded with the built-in lexicon. When a path is
// given the file is loaded immediately; a missing file is not an error, the
// built-ins stay active until the file appears.
func NewSource(path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source := &Source{
		path:    path,
		logger:  logger.With("component", "lexicon"),
		current: match.DefaultLexicon(),
	}
	if path == "" {
		return source, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		source.logger.Info("lexicon file not present, using built-ins", "path", path)
		return source, nil
	}
	if err := source.Reload(context.Background()); err != nil {
		return nil, err
	}
	return source, nil
}

// Current returns the active lexicon. The maps inside are shared and must be
// treated as read-only; Reload replaces them wholesale instead of mutating.
func (s *Source) Current() match.Lexicon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the lexicon file and swaps it in. Fields absent from the
// file keep their built-in values; a malformed file leaves the previous
// lexicon active.
func (s *Source) Reload(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read lexicon file: %w", err)
	}

	var overlay match.Lexicon
	if err := json.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse lexicon file: %w", err)
	}

	merged := match.DefaultLexicon()
	if len(overlay.Fillers) > 0 {
		merged.Fillers = overlay.Fillers
	}
	if len(overlay.Verbs) > 0 {
		merged.Verbs = overlay.Verbs
	}
	if len(overlay.VerbTypos) > 0 {
		merged.VerbTypos = overlay.VerbTypos
	}
	if len(overlay.Ordinals) > 0 {
		merged.Ordinals = overlay.Ordinals
	}
	if len(overlay.ScopeCues) > 0 {
		merged.ScopeCues = overlay.ScopeCues
	}

	s.mu.Lock()
	s.current = merged
	s.mu.Unlock()
	s.logger.Info("lexicon reloaded",
		"path", s.path,
		"verbs", len(merged.Verbs),
		"ordinals", len(merged.Ordinals))
	return nil
}
