package match

import (
	"reflect"
	"testing"
)

func TestStripRemovesFillerAndKnownVerbs(t *testing.T) {
	lex := DefaultLexicon()
	cases := []struct {
		input string
		want  string
	}{
		{"open links panel", "links panel"},
		{"can you ope panel d pls", "ope panel d"},
		{"hey please show the dashboard", "the dashboard"},
		{"go to settings", "settings"},
		{"links panel", "links panel"},
		{"frobnicate the widget", "frobnicate the widget"},
		{"", ""},
	}
	for _, testCase := range cases {
		got := Strip(testCase.input, lex)
		if got != testCase.want {
			t.Fatalf("Strip(%q) = %q, want %q", testCase.input, got, testCase.want)
		}
	}
}

func TestStripLeavesUnknownVerbTyposAlone(t *testing.T) {
	lex := DefaultLexicon()
	if got := Strip("opn links panel", lex); got != "opn links panel" {
		t.Fatalf("unknown typo should pass through, got %q", got)
	}
	if got := Strip("ope links panel", lex); got != "ope links panel" {
		t.Fatalf("\"ope\" is not corrected by default, got %q", got)
	}
	if got := Strip("opne links panel", lex); got != "links panel" {
		t.Fatalf("allow-listed typo should be corrected and stripped, got %q", got)
	}
}

func TestExtractBadge(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"links panel d", "d"},
		{"Links Panel E", "e"},
		{"panel 4", ""},
		{"d", ""},
		{"links panel", ""},
	}
	for _, testCase := range cases {
		if got := ExtractBadge(testCase.input); got != testCase.want {
			t.Fatalf("ExtractBadge(%q) = %q, want %q", testCase.input, got, testCase.want)
		}
	}
}

func TestParseOrdinalSurvivesVerbTypos(t *testing.T) {
	lex := DefaultLexicon()
	cases := []struct {
		input string
		want  int
	}{
		{"second", 2},
		{"the second one", 2},
		{"open secone option", 2},
		{"pick the last one", -1},
		{"open links panel", 0},
	}
	for _, testCase := range cases {
		if got := ParseOrdinal(testCase.input, lex); got != testCase.want {
			t.Fatalf("ParseOrdinal(%q) = %d, want %d", testCase.input, got, testCase.want)
		}
	}
}

func TestFindExactRequiresTokenSetEquality(t *testing.T) {
	labels := []string{"Links Panels", "Links Panel D", "Links Panel E"}
	if got := FindExact("links panel d", labels); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected exact match on index 1, got %v", got)
	}
	if got := FindExact("links panel", labels); got != nil {
		t.Fatalf("partial phrase must not match exactly, got %v", got)
	}
	if got := FindExact("links panels", labels); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("expected exact match on index 0, got %v", got)
	}
}

func TestFindLooseMatchesPrefixedTokens(t *testing.T) {
	labels := []string{"Links Panels", "Links Panel D", "Summary View"}
	got := FindLoose("links panel", labels)
	if !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("expected loose matches on 0 and 1, got %v", got)
	}
	if got := FindLoose("summary", labels); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("expected loose match on 2, got %v", got)
	}
}

func TestOrderForReshowIsStableOverTies(t *testing.T) {
	labels := []string{"Alpha View", "Beta View", "Gamma View"}
	got := OrderForReshow("view", labels)
	if !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Fatalf("ties must preserve original order, got %v", got)
	}
	got = OrderForReshow("beta", labels)
	if got[0] != 1 {
		t.Fatalf("best match must come first, got %v", got)
	}
}

func TestIsCommandLikeIgnoresTrailingQuestionMark(t *testing.T) {
	lex := DefaultLexicon()
	if !IsCommandLike("open that summary144 now plssss?", lex) {
		t.Fatal("imperative with trailing punctuation must be command-like")
	}
	if IsCommandLike("what is summary144?", lex) {
		t.Fatal("genuine question must not be command-like")
	}
	if IsCommandLike("where is panel d located", lex) {
		t.Fatal("question without question mark must not be command-like")
	}
	if !IsCommandLike("please ope the links panel", lex) {
		t.Fatal("allow-listed typo verb must still read as a command")
	}
}

func TestDetectScopeCue(t *testing.T) {
	lex := DefaultLexicon()
	scope, rest := DetectScopeCue("open links panel from chat", lex)
	if scope != ScopeChat || rest != "open links panel" {
		t.Fatalf("got scope %q rest %q", scope, rest)
	}
	scope, rest = DetectScopeCue("the second one from the dashboard", lex)
	if scope != ScopeDashboard || rest != "the second one" {
		t.Fatalf("got scope %q rest %q", scope, rest)
	}
	scope, _ = DetectScopeCue("open links panel", lex)
	if scope != "" {
		t.Fatalf("expected no scope, got %q", scope)
	}
}

func TestLooksLikeSelection(t *testing.T) {
	lex := DefaultLexicon()
	labels := []string{"Links Panel D", "Links Panel E"}
	if !LooksLikeSelection("the links one", labels, lex) {
		t.Fatal("shared token phrase should resemble a selection")
	}
	if LooksLikeSelection("open recent", labels, lex) {
		t.Fatal("unrelated command must not resemble a selection")
	}
	if LooksLikeSelection("please summarize everything we discussed about panels today", labels, lex) {
		t.Fatal("long phrases must not resemble selections")
	}
}
