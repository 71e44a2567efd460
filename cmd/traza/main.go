package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/traza/internal/config"
	"github.com/kalambet/traza/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// app carries the per-invocation configuration shared by all commands.
type app struct {
	cfg config.Config
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	applyColorMode()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	return nil
}

func (a *app) openStore() (*storage.Store, error) {
	slog.Debug("opening log database", "data_dir", a.cfg.Storage.DataDir, "file", storage.DBFileName)
	store, err := storage.Open(a.cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	if versions, err := store.AppliedMigrations(); err == nil {
		slog.Debug("log database ready", "migrations", versions)
	}
	return store, nil
}

var errMissingProject = errors.New("missing required argument: --project")

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "traza",
		Short: "traza - FPGA (or whatever you want) build logger",
		Long: `traza captures a build's output from stdin and stores it in a local SQLite
database, tagged with a project name, a timestamp and optional tags.

Examples:
  make 2>&1 | traza --project fpga1 --tag ci,nightly
  traza --list
  traza --export a1b
  traza                 open the latest log in the browser
  traza serve           browse all logs on http://127.0.0.1:4100`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.setup,
		RunE:              a.runRoot,
	}

	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	f := cmd.Flags()
	f.String("project", "", "name of the project to tag the log with")
	f.StringSlice("tag", nil, "tags for the log (comma-separated or repeated)")
	f.Bool("list", false, "list stored logs, newest first")
	f.Int("limit", 0, "maximum number of logs to list (default from config list.limit)")
	f.String("export", "", "export the log whose hash starts with this prefix")
	f.String("out", "", "directory for --export (default from config export.dir)")
	f.Bool("gzip", false, "gzip-compress the exported file")
	f.String("db", "", `database action; "delete" removes all logs`)
	f.Bool("tee", false, "copy stdin to stdout while capturing")

	cmd.AddCommand(
		newShowCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func (a *app) runRoot(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()

	acting := false
	for _, name := range []string{"project", "tag", "list", "export", "db"} {
		if f.Changed(name) {
			acting = true
			break
		}
	}
	if !acting {
		for _, name := range []string{"limit", "out", "gzip", "tee"} {
			if f.Changed(name) {
				return fmt.Errorf("--%s needs --list, --export or --project", name)
			}
		}
		return a.openLatest()
	}

	if f.Changed("db") {
		action, _ := f.GetString("db")
		if action != "delete" {
			return fmt.Errorf("unknown --db action %q (supported: delete)", action)
		}
		return a.deleteAll()
	}

	if list, _ := f.GetBool("list"); list {
		limit, _ := f.GetInt("limit")
		if limit <= 0 {
			limit = a.cfg.List.Limit
		}
		return a.list(cmd, limit)
	}

	if f.Changed("export") {
		prefix, _ := f.GetString("export")
		dir, _ := f.GetString("out")
		if dir == "" {
			dir = a.cfg.Export.Dir
		}
		gz, _ := f.GetBool("gzip")
		return a.export(prefix, dir, gz || a.cfg.Export.Gzip)
	}

	project, _ := f.GetString("project")
	if project == "" {
		return errMissingProject
	}
	tags, _ := f.GetStringSlice("tag")
	tee, _ := f.GetBool("tee")
	return a.capture(cmd, project, normalizeTags(tags), tee)
}
