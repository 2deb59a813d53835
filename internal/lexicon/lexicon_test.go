package lexicon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSourceWithoutPathUsesBuiltins(t *testing.T) {
	source, err := NewSource("", discardLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	lex := source.Current()
	if len(lex.Verbs) == 0 || lex.Ordinals["second"] != 2 {
		t.Fatalf("expected built-in lexicon, got %+v", lex)
	}
}

func TestSourceLoadsOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.json")
	content := `{"verbs": ["open", "launch"], "verb_typos": {"lanch": "launch"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}

	source, err := NewSource(path, discardLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	lex := source.Current()
	if len(lex.Verbs) != 2 || lex.Verbs[1] != "launch" {
		t.Fatalf("expected verb override, got %v", lex.Verbs)
	}
	if lex.VerbTypos["lanch"] != "launch" {
		t.Fatalf("expected typo override, got %v", lex.VerbTypos)
	}
	if lex.Ordinals["second"] != 2 {
		t.Fatal("fields absent from the file must keep their built-in values")
	}
}

func TestReloadKeepsPreviousLexiconOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.json")
	if err := os.WriteFile(path, []byte(`{"verbs": ["open"]}`), 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	source, err := NewSource(path, discardLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("overwrite lexicon: %v", err)
	}
	if err := source.Reload(context.Background()); err == nil {
		t.Fatal("expected a parse error")
	}
	if verbs := source.Current().Verbs; len(verbs) != 1 || verbs[0] != "open" {
		t.Fatalf("a failed reload must keep the previous lexicon, got %v", verbs)
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	source, err := NewSource(path, discardLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if len(source.Current().Verbs) == 0 {
		t.Fatal("expected built-ins while the file is absent")
	}
}
