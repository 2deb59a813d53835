package resolvers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/dashwise/router-runtime/internal/dispatch"
	"github.com/dashwise/router-runtime/internal/match"
)

// Document is one retrievable entry. Source partitions the corpus; the doc
// tier only sees "doc" documents while the cross-corpus tier sees all.
type Document struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Source string `json:"source,omitempty"`
}

// Hit is a scored document.
type Hit struct {
	Document
	Score int `json:"score"`
}

// Corpus answers text queries with scored hits.
type Corpus interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

var retrievalTokenPattern = regexp.MustCompile(`[^a-z0-9]+`)

// StaticCorpus is the in-memory reference corpus: token overlap scoring,
// title matches weighted over body matches.
type StaticCorpus struct {
	documents []Document
}

func NewStaticCorpus(documents ...Document) *StaticCorpus {
	return &StaticCorpus{documents: documents}
}

// LoadDocuments reads a JSON document file. A missing path yields an empty
// corpus rather than an error.
func LoadDocuments(path string) ([]Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read documents file: %w", err)
	}
	var documents []Document
	if err := json.Unmarshal(raw, &documents); err != nil {
		return nil, fmt.Errorf("parse documents file %s: %w", path, err)
	}
	return documents, nil
}

func (c *StaticCorpus) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	queryTokens := retrievalTokens(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var hits []Hit
	for _, document := range c.documents {
		titleTokens := tokenIndex(document.Title)
		bodyTokens := tokenIndex(document.Body)
		score := 0
		for _, token := range queryTokens {
			if _, ok := titleTokens[token]; ok {
				score += 3
			}
			if _, ok := bodyTokens[token]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, Hit{Document: document, Score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Retrieval answers question inputs from a corpus. Non-questions are left
// for known-noun routing.
type Retrieval struct {
	corpus   Corpus
	source   string
	minScore int
	logger   *slog.Logger
}

func NewCrossCorpus(corpus Corpus, logger *slog.Logger) *Retrieval {
	return newRetrieval(corpus, "", "cross_corpus", logger)
}

func NewDocRetrieval(corpus Corpus, logger *slog.Logger) *Retrieval {
	return newRetrieval(corpus, "doc", "doc_retrieval", logger)
}

func newRetrieval(corpus Corpus, source, component string, logger *slog.Logger) *Retrieval {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrieval{
		corpus:   corpus,
		source:   source,
		minScore: 2,
		logger:   logger.With("component", component),
	}
}

func (r *Retrieval) Resolve(ctx context.Context, turn *dispatch.Turn) (dispatch.Result, error) {
	if r.corpus == nil {
		return dispatch.Result{}, nil
	}
	if !match.IsQuestion(turn.Input) {
		return dispatch.Result{}, nil
	}

	hits, err := r.corpus.Search(ctx, turn.Input, 5)
	if err != nil {
		return dispatch.Result{}, err
	}
	if r.source != "" {
		filtered := hits[:0]
		for _, hit := range hits {
			if hit.Source == r.source {
				filtered = append(filtered, hit)
			}
		}
		hits = filtered
	}
	if len(hits) == 0 || hits[0].Score < r.minScore {
		return dispatch.Result{}, nil
	}

	top := hits[0]
	message := top.Title + ": " + snippet(top.Body, 200)
	turn.UI.AddMessage(message)
	return dispatch.Result{
		Handled: true,
		Action:  dispatch.ActionMessage,
		Message: message,
	}, nil
}

func snippet(body string, max int) string {
	body = strings.Join(strings.Fields(body), " ")
	if len(body) <= max {
		return body
	}
	cut := body[:max]
	if space := strings.LastIndex(cut, " "); space > 0 {
		cut = cut[:space]
	}
	return cut + "..."
}

func retrievalTokens(text string) []string {
	lower := retrievalTokenPattern.ReplaceAllString(strings.ToLower(text), " ")
	return strings.Fields(lower)
}

func tokenIndex(text string) map[string]struct{} {
	index := map[string]struct{}{}
	for _, token := range retrievalTokens(text) {
		index[token] = struct{}{}
	}
	return index
}
