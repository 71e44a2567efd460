package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/traza/internal/api"
	"github.com/kalambet/traza/internal/config"
	"github.com/kalambet/traza/internal/storage"
)

// --- show ---

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <hash-prefix>",
		Short: "Print a stored log to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := args[0]
			warnIfNotFingerprint(prefix)

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Resolve(prefix)
			if errors.Is(err, storage.ErrNotFound) {
				printError("No log found with hash starting with '%s'", prefix)
				return nil
			}
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), rec.Log)
			return err
		},
	}
}

// --- serve ---

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse stored logs in a local web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")
			if port <= 0 {
				port = a.cfg.Server.Port
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr := fmt.Sprintf("127.0.0.1:%d", port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewBrowserHandler(api.BrowserDeps{Store: store, DefaultLimit: a.cfg.List.Limit}),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(_ net.Listener) context.Context {
					return ctx
				},
			}
			return serveUntilDone(ctx, srv)
		},
	}
	cmd.Flags().Int("port", 0, "port to listen on (default from config server.port)")
	return cmd
}

// serveUntilDone runs srv until ctx is cancelled or the listener fails, then
// shuts it down gracefully.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		printSuccess("traza browsing on http://%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// --- mcp ---

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the log store over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Version: version})
			stdioSrv := server.NewStdioServer(mcpSrv)
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		},
	}
}

// --- config ---

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.ShowAll(a.cfg) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(boldColor, k.Key), k.Value)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.ValidKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			if err := config.SetKey(key, value); err != nil {
				return err
			}

			printSuccess("Set %s = %s", key, value)
			return nil
		},
	}

	unsetCmd := &cobra.Command{
		Use:       "unset <key>",
		Short:     "Remove a configuration value so its default applies",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.ValidKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.UnsetKey(args[0]); err != nil {
				return err
			}
			printSuccess("Unset %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(showCmd, setCmd, unsetCmd)
	return cmd
}
