package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve appliance sessions as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout. The inventory file is watched and
reloaded on change; open sessions keep their settings.

Passwords must come from the environment or the keyring since stdin
carries the MCP protocol.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, err := newManager(cfg, false)
	if err != nil {
		return err
	}
	defer mgr.CloseAll()

	server := mcp.NewServer(mgr, version)

	path := resolvedConfigPath()
	watcher, err := config.NewWatcher(path, func(newCfg *config.Config) {
		if debug {
			newCfg.Logging.Level = "debug"
		}
		server.UpdateConfig(newCfg)
	})
	if err != nil {
		slog.Warn("config hot-reload disabled", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
		slog.Info("config hot-reload enabled", slog.String("path", path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting appliance-shell",
		slog.String("version", version),
		slog.Int("appliances", len(cfg.Appliances)),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("received shutdown signal")
		os.Stdin.Close()
		return nil
	}
}
