package cli

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dashwise/router-runtime/internal/adminclient"
	"github.com/dashwise/router-runtime/internal/config"
)

func newRouteCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var (
		sessionID  string
		message    string
		timeoutSec int
	)

	cmd := &cobra.Command{
		Use:   "route [message]",
		Short: "Route a command through the runtime over the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			client := adminclient.New(cfg)

			text := strings.TrimSpace(message)
			if text == "" && len(args) > 0 {
				text = strings.TrimSpace(strings.Join(args, " "))
			}

			if text != "" {
				ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
				defer cancel()
				response, err := client.Route(ctx, adminclient.TurnRequest{SessionID: sessionID, Input: text})
				if err != nil {
					return err
				}
				printTurnResponse(cmd, response)
				return nil
			}

			cmd.Printf("Routing into session %s. Type /exit to quit.\n", sessionID)
			return runInteractiveRoute(cmd, client, sessionID, timeoutSec)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "cli", "session id for this routing conversation")
	cmd.Flags().StringVarP(&message, "message", "m", "", "single command to route (non-interactive mode)")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 30, "request timeout in seconds")

	return cmd
}

func runInteractiveRoute(cmd *cobra.Command, client *adminclient.Client, sessionID string, timeoutSec int) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/exit" || text == "/quit" {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
		response, err := client.Route(ctx, adminclient.TurnRequest{SessionID: sessionID, Input: text})
		cancel()
		if err != nil {
			cmd.PrintErrf("route request failed: %v\n", err)
			continue
		}
		printTurnResponse(cmd, response)
	}

	return scanner.Err()
}

func printTurnResponse(cmd *cobra.Command, response adminclient.TurnResponse) {
	if response.Result.SemanticLanePending {
		cmd.Println("router> (deferred to the semantic answer lane)")
		return
	}
	if !response.Result.Handled {
		cmd.Println("router> (not handled)")
		return
	}
	for _, action := range response.Actions {
		switch action.Kind {
		case "message":
			cmd.Printf("router> %s\n", action.Text)
		case "open_panel":
			cmd.Printf("router> [open panel] %s\n", action.WidgetLabel)
		case "select_option":
			if action.Option != nil {
				cmd.Printf("router> [selected] %s\n", action.Option.Label)
			}
		case "show_options":
			cmd.Printf("router> %s\n", action.Prompt)
			for index, option := range action.Options {
				cmd.Printf("        %d. %s\n", index+1, option.Label)
			}
		}
	}
	cmd.Printf("        (tier %d, %s)\n", response.Result.HandledByTier, response.Result.TierLabel)
}

func boundedTimeout(input int) time.Duration {
	if input < 1 {
		input = 30
	}
	if input > 600 {
		input = 600
	}
	return time.Duration(input) * time.Second
}
