// Package match holds the pure text heuristics the routing ladder is built
// on: verb/politeness stripping, badge and ordinal extraction, label
// matching, command-likeness. Every function is total and consults no
// mutable state, so the whole package is testable by table.
package match

import (
	"regexp"
	"sort"
	"strings"
)

var nonAlphaNumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Strip removes leading filler ("can you", "please") and a closed set of
// command verbs from the input, preserving the remaining noun phrase. Known
// verb typos are corrected first; anything outside the verb allow-list is
// passed through unchanged.
func Strip(input string, lex Lexicon) string {
	text := normalize(input)
	if text == "" {
		return ""
	}

	for changed := true; changed; {
		changed = false
		for _, filler := range lex.Fillers {
			filler = normalize(filler)
			if filler == "" {
				continue
			}
			if trimmed, ok := trimPhrase(text, filler); ok {
				text = trimmed
				changed = true
			}
		}
	}

	if first, rest := splitFirstWord(text); first != "" {
		if corrected, ok := lex.VerbTypos[first]; ok {
			text = strings.TrimSpace(corrected + " " + rest)
		}
	}

	for _, verb := range lex.Verbs {
		verb = normalize(verb)
		if verb == "" {
			continue
		}
		if trimmed, ok := trimPhrase(text, verb); ok {
			text = trimmed
			break
		}
	}

	for _, filler := range lex.Fillers {
		filler = normalize(filler)
		if filler == "" {
			continue
		}
		if trimmed, ok := trimTrailingPhrase(text, filler); ok {
			text = trimmed
		}
	}
	return strings.TrimSpace(text)
}

// ExtractBadge returns the single-letter trailing token, if any. Badges
// disambiguate panels sharing a prefix ("Links Panel D" vs "Links Panel E").
func ExtractBadge(input string) string {
	words := strings.Fields(normalize(input))
	if len(words) < 2 {
		return ""
	}
	last := words[len(words)-1]
	if len(last) != 1 || last[0] < 'a' || last[0] > 'z' {
		return ""
	}
	return last
}

// ParseOrdinal recognizes ordinal words and phrases ("second", "the second
// one", "open secone option") and returns the 1-based position, -1 for
// "last", or 0 when no ordinal is present.
func ParseOrdinal(input string, lex Lexicon) int {
	for _, word := range strings.Fields(normalize(input)) {
		if position, ok := lex.Ordinals[word]; ok {
			return position
		}
	}
	return 0
}

// FindExact returns the indices of labels whose token set equals the
// canonical input's token set. Only this predicate may auto-select.
func FindExact(canonical string, labels []string) []int {
	want := tokenSet(canonical)
	if len(want) == 0 {
		return nil
	}
	var matches []int
	for index, label := range labels {
		if tokenSetEqual(want, tokenSet(label)) {
			matches = append(matches, index)
		}
	}
	return matches
}

// FindLoose returns the indices of labels that contain every canonical input
// token (as token prefix or full token). Used for panel disambiguation and
// for ordering a re-shown clarifier, never for auto-selection on its own.
func FindLoose(canonical string, labels []string) []int {
	want := tokens(canonical)
	if len(want) == 0 {
		return nil
	}
	var matches []int
	for index, label := range labels {
		if containsAllTokens(tokens(label), want) {
			matches = append(matches, index)
		}
	}
	return matches
}

// OrderForReshow returns a permutation of option indices ordered by how well
// each label matches the canonical input, stable over the original order.
func OrderForReshow(canonical string, labels []string) []int {
	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(labels))
	for index, label := range labels {
		ranked[index] = scored{index: index, score: looseScore(canonical, label)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	order := make([]int, len(ranked))
	for position, entry := range ranked {
		order[position] = entry.index
	}
	return order
}

// IsCommandLike reports whether the input is imperative phrasing, even with
// trailing punctuation ("open that summary144 now plssss?"). Genuine
// questions ("what is summary144?") are not command-like; this single
// predicate is what lets imperatives bypass the retrieval tiers.
func IsCommandLike(input string, lex Lexicon) bool {
	text := normalize(input)
	if text == "" {
		return false
	}
	if IsQuestion(input) {
		return false
	}
	stripped := text
	for changed := true; changed; {
		changed = false
		for _, filler := range lex.Fillers {
			if trimmed, ok := trimPhrase(stripped, normalize(filler)); ok {
				stripped = trimmed
				changed = true
			}
		}
	}
	first, rest := splitFirstWord(stripped)
	if corrected, ok := lex.VerbTypos[first]; ok {
		first, _ = splitFirstWord(normalize(corrected + " " + rest))
	}
	for _, verb := range lex.Verbs {
		verbFirst, _ := splitFirstWord(normalize(verb))
		if first == verbFirst {
			return true
		}
	}
	return false
}

// IsQuestion reports whether the input is structurally a question rather
// than an imperative with a trailing question mark.
func IsQuestion(input string) bool {
	text := normalize(input)
	if text == "" {
		return false
	}
	prefixes := []string{
		"what ", "what's ", "whats ", "where ", "where's ", "when ", "why ",
		"who ", "which ", "how ", "is ", "are ", "does ", "do ", "did ",
		"should ", "would it ", "could it ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// IsMetaQuestion reports whether the input is a self-referential question
// about the assistant's own last action ("explain what just happened").
func IsMetaQuestion(input string) bool {
	text := normalize(input)
	if text == "" {
		return false
	}
	phrases := []string{
		"what just happened",
		"what did you just",
		"why did you do that",
		"why did you just",
		"explain what you did",
		"what was that",
	}
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// DetectScopeCue finds a trailing scope cue ("... from chat") and returns
// the scope it names plus the input with the cue removed.
func DetectScopeCue(input string, lex Lexicon) (scope, rest string) {
	text := normalize(input)
	for cue, cueScope := range lex.ScopeCues {
		cue = normalize(cue)
		if cue == "" {
			continue
		}
		if trimmed, ok := trimTrailingPhrase(text, cue); ok {
			return cueScope, strings.TrimSpace(trimmed)
		}
	}
	return "", text
}

// LooksLikeSelection reports whether the input structurally resembles a
// selection from the given labels: a short noun phrase sharing at least one
// significant token with any label.
func LooksLikeSelection(input string, labels []string, lex Lexicon) bool {
	canonical := Strip(input, lex)
	words := tokens(canonical)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, label := range labels {
		labelTokens := tokenSet(label)
		for _, word := range words {
			if _, ok := labelTokens[word]; ok {
				return true
			}
		}
	}
	return false
}

func looseScore(canonical, label string) int {
	canonicalTokens := tokens(canonical)
	labelTokens := tokens(label)
	if len(canonicalTokens) == 0 || len(labelTokens) == 0 {
		return 0
	}
	score := 0
	for _, want := range canonicalTokens {
		for _, have := range labelTokens {
			switch {
			case want == have:
				score += 3
			case strings.HasPrefix(have, want) || strings.HasPrefix(want, have):
				score++
			}
		}
	}
	if strings.Contains(normalize(label), canonical) {
		score += 2
	}
	return score
}

func trimPhrase(text, phrase string) (string, bool) {
	if text == phrase {
		return "", true
	}
	if strings.HasPrefix(text, phrase+" ") {
		return strings.TrimSpace(text[len(phrase):]), true
	}
	return text, false
}

func trimTrailingPhrase(text, phrase string) (string, bool) {
	if text == phrase {
		return "", true
	}
	if strings.HasSuffix(text, " "+phrase) {
		return strings.TrimSpace(text[:len(text)-len(phrase)]), true
	}
	return text, false
}

func splitFirstWord(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
}

func tokens(input string) []string {
	return strings.Fields(normalize(input))
}

func tokenSet(input string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, token := range tokens(input) {
		set[token] = struct{}{}
	}
	return set
}

func tokenSetEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for token := range a {
		if _, ok := b[token]; !ok {
			return false
		}
	}
	return true
}

func containsAllTokens(have []string, want []string) bool {
	for _, token := range want {
		found := false
		for _, candidate := range have {
			if candidate == token || strings.HasPrefix(candidate, token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func normalize(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" {
		return ""
	}
	lower = nonAlphaNumPattern.ReplaceAllString(lower, " ")
	return strings.Join(strings.Fields(lower), " ")
}
