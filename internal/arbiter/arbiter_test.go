package arbiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		errText string
		want    string
	}{
		{"context deadline exceeded", FailureTimeout},
		{"request timed out after 12s", FailureTimeout},
		{"arbitration completion failed with status 429", FailureRateLimited},
		{"Too Many Requests", FailureRateLimited},
		{"connection refused", FailureGeneric},
		{"", FailureGeneric},
	}
	for _, testCase := range cases {
		if got := ClassifyFailure(testCase.errText); got != testCase.want {
			t.Fatalf("ClassifyFailure(%q) = %q, want %q", testCase.errText, got, testCase.want)
		}
	}
}

func TestParseDecisionToleratesFencesAndClampsConfidence(t *testing.T) {
	decision, err := ParseDecision("```json\n{\"decision\":\"select\",\"choice_id\":\"opt-2\",\"confidence\":1.4,\"reason\":\"exact label\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Decision != DecisionSelect || decision.ChoiceID != "opt-2" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if decision.Confidence != 1 {
		t.Fatalf("confidence must clamp to 1, got %f", decision.Confidence)
	}

	if _, err := ParseDecision("{\"decision\":\"execute\"}"); err == nil {
		t.Fatal("unknown decision kinds must be rejected")
	}
	if _, err := ParseDecision("no json here"); err == nil {
		t.Fatal("non-JSON content must be rejected")
	}
}

func TestHTTPClientArbitrate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"decision\":\"request_context\",\"confidence\":0.4,\"needed_context\":[\"visible widgets\"]}"}}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Timeout: 2 * time.Second}, nil)
	result := client.Arbitrate(context.Background(), Request{
		Input:   "the links one",
		Options: []OptionRef{{ID: "a", Label: "Links Panel D"}},
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Err)
	}
	if result.Response.Decision != DecisionRequestContext {
		t.Fatalf("unexpected decision %+v", result.Response)
	}
	if len(result.Response.NeededContext) != 1 {
		t.Fatalf("needed context lost: %+v", result.Response)
	}
}

func TestHTTPClientSurfacesTransportFailureAsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, Timeout: 2 * time.Second}, nil)
	result := client.Arbitrate(context.Background(), Request{Input: "x"})
	if result.Success {
		t.Fatal("expected failure result")
	}
	if ClassifyFailure(result.Err) != FailureRateLimited {
		t.Fatalf("429 must classify as rate limited, got %q from %q", ClassifyFailure(result.Err), result.Err)
	}
}
