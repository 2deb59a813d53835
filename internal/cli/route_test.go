package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/dashwise/router-runtime/internal/adminclient"
)

func captureCommand() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func TestPrintTurnResponseSelection(t *testing.T) {
	cmd, buf := captureCommand()
	printTurnResponse(cmd, adminclient.TurnResponse{
		Result: adminclient.RouteResult{Handled: true, HandledByTier: 0, TierLabel: "clarification_select"},
		Actions: []adminclient.TurnAction{
			{Kind: "select_option", Option: &adminclient.Option{ID: "o2", Label: "Revenue Summary 2024"}},
		},
	})
	output := buf.String()
	if !strings.Contains(output, "[selected] Revenue Summary 2024") {
		t.Fatalf("expected selection line, got %q", output)
	}
	if !strings.Contains(output, "tier 0, clarification_select") {
		t.Fatalf("expected tier line, got %q", output)
	}
}

func TestPrintTurnResponseShowOptions(t *testing.T) {
	cmd, buf := captureCommand()
	printTurnResponse(cmd, adminclient.TurnResponse{
		Result: adminclient.RouteResult{Handled: true, HandledByTier: 2, TierLabel: "panel_disambiguation"},
		Actions: []adminclient.TurnAction{
			{Kind: "show_options", Prompt: "Multiple panels match. Which one?", Options: []adminclient.Option{
				{ID: "w1", Label: "Links Panel D"},
				{ID: "w2", Label: "Links Panel E"},
			}},
		},
	})
	output := buf.String()
	if !strings.Contains(output, "1. Links Panel D") || !strings.Contains(output, "2. Links Panel E") {
		t.Fatalf("expected numbered options, got %q", output)
	}
}

func TestPrintTurnResponseUnhandled(t *testing.T) {
	cmd, buf := captureCommand()
	printTurnResponse(cmd, adminclient.TurnResponse{})
	if !strings.Contains(buf.String(), "(not handled)") {
		t.Fatalf("expected not handled line, got %q", buf.String())
	}
}

func TestBoundedTimeoutClamps(t *testing.T) {
	if boundedTimeout(0) != 30*time.Second {
		t.Fatalf("expected default 30s, got %v", boundedTimeout(0))
	}
	if boundedTimeout(10000) != 600*time.Second {
		t.Fatalf("expected cap 600s, got %v", boundedTimeout(10000))
	}
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := newVersionCommand()
	cmd.SetOut(buf)
	cmd.Run(cmd, nil)
	if strings.TrimSpace(buf.String()) != version {
		t.Fatalf("expected version output, got %q", buf.String())
	}
}
