package match

// Lexicon carries the configurable word lists the matcher consults. The verb
// typo table is deliberately a closed allow-list: typos outside it are not
// corrected and the input passes through to badge/ordinal matching unchanged.
type Lexicon struct {
	Fillers   []string          `json:"fillers"`
	Verbs     []string          `json:"verbs"`
	VerbTypos map[string]string `json:"verb_typos"`
	Ordinals  map[string]int    `json:"ordinals"`
	ScopeCues map[string]string `json:"scope_cues"`
}

// DefaultLexicon returns the built-in word lists. Deployments override them
// through the lexicon file; see the lexicon package.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Fillers: []string{
			"can you", "could you", "would you", "hey", "hi", "please", "pls",
			"plz", "plss", "plsss", "plssss", "now", "for me", "just",
		},
		Verbs: []string{
			"open", "show", "go to", "goto", "display", "bring up", "switch to",
		},
		// "ope" and "opn" stay out of the table; inputs carrying them still
		// resolve through the badge and ordinal heuristics.
		VerbTypos: map[string]string{
			"opne": "open",
			"shw":  "show",
			"sho":  "show",
			"goto": "go to",
		},
		Ordinals: map[string]int{
			"first": 1, "1st": 1,
			"second": 2, "2nd": 2, "secone": 2, "secnd": 2,
			"third": 3, "3rd": 3, "thrid": 3,
			"fourth": 4, "4th": 4,
			"fifth": 5, "5th": 5,
			"sixth": 6, "6th": 6,
			"seventh": 7, "7th": 7,
			"eighth": 8, "8th": 8,
			"ninth": 9, "9th": 9,
			"last": -1,
		},
		ScopeCues: map[string]string{
			"from chat":          ScopeChat,
			"from the chat":      ScopeChat,
			"from dashboard":     ScopeDashboard,
			"from the dashboard": ScopeDashboard,
			"from workspace":     ScopeWorkspace,
			"from the workspace": ScopeWorkspace,
		},
	}
}

// Scope universes a cue can pin disambiguation to.
const (
	ScopeChat      = "chat"
	ScopeDashboard = "dashboard"
	ScopeWorkspace = "workspace"
)
