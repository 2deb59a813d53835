package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dashwise/router-runtime/internal/app"
	"github.com/dashwise/router-runtime/internal/config"
	"github.com/dashwise/router-runtime/internal/mcpserver"
	"github.com/dashwise/router-runtime/internal/tui"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "router-runtime",
		Short: "Router Runtime arbitrates chat commands into UI actions",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newRouteCommand(logger))
	root.AddCommand(newConsoleCommand(logger))
	root.AddCommand(newMCPCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the routing runtime and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newConsoleCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the operator terminal console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(config.FromEnv(), logger)
		},
	}
}

func newMCPCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the routing engine as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return mcpserver.New(runtime.Engine(), logger).Run(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
