package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/razeghi71/dqflow/config"
	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/logging"
	"github.com/razeghi71/dqflow/remote"
	"github.com/razeghi71/dqflow/server"
	"github.com/razeghi71/dqflow/workflow"
	"github.com/razeghi71/dqflow/workspace"
)

var (
	configPath string
	dataDir    string
	engineURL  string
	addr       string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "dqflow",
	Short:         "Session-scoped tabular and spatial data engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding datasets")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging to stdout")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")

	runCmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a pipeline script",
		Long: "Run a pipeline script file, or an inline script with -e. Example:\n\n" +
			"  dqflow run -e 'dataset water_points | filter status == \"active\" | buffer 100 | save active_buffers'",
		Args: cobra.MaximumNArgs(1),
		RunE: runScript,
	}
	runCmd.Flags().StringP("expr", "e", "", "inline script")
	runCmd.Flags().StringVar(&engineURL, "engine-url", "", "run against a remote engine instead of in-process")

	datasetsCmd := &cobra.Command{
		Use:   "datasets [name]",
		Short: "List datasets, or the columns of one dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDatasets,
	}
	datasetsCmd.Flags().StringVar(&engineURL, "engine-url", "", "browse a remote engine instead of the local data dir")

	rootCmd.AddCommand(serveCmd, runCmd, datasetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration with command-line overrides and builds the
// logger.
func setup(cmd *cobra.Command) (config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Data.Dir = dataDir
	}
	if flags.Changed("engine-url") {
		cfg.Engine.URL = engineURL
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("debug") {
		cfg.Log.Debug = debug
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	log, err := logging.New(cfg.Log.Debug, cfg.Log.Level)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	ws, err := workspace.New(cfg.Workspace(), log)
	if err != nil {
		return err
	}
	defer ws.Close()

	guarded := engine.Guard(ws, nil)
	if err := guarded.Init(ctx); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	log.Infow("engine ready", "dataDir", cfg.Data.Dir, "workers", cfg.Workers.Max, "maxSessions", cfg.Sessions.Max)

	return server.New(guarded, guarded.Readiness(), log).Run(ctx, cfg.Server.Addr)
}

// engineBackend is what run and datasets need from an engine.
type engineBackend interface {
	engine.Engine
	engine.DatasetBrowser
}

// open returns the configured engine, initialised, and a func releasing it.
func open(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (engineBackend, func(), error) {
	if cfg.Engine.URL != "" {
		c, err := remote.New(cfg.Engine.URL, remote.WithTimeout(cfg.Engine.Timeout), remote.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		if err := c.Init(ctx); err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}

	ws, err := workspace.New(cfg.Workspace(), log)
	if err != nil {
		return nil, nil, err
	}
	if err := ws.Init(ctx); err != nil {
		_ = ws.Close()
		return nil, nil, err
	}
	return ws, func() { _ = ws.Close() }, nil
}

func runScript(cmd *cobra.Command, args []string) error {
	src, _ := cmd.Flags().GetString("expr")
	switch {
	case src != "" && len(args) > 0:
		return fmt.Errorf("give either a script file or -e, not both")
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		src = string(data)
	case src == "":
		return fmt.Errorf("a script file or -e is required")
	}

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	eng, release, err := open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	results, err := workflow.NewRunner(eng, log).RunSource(ctx, src)
	printResults(cmd.OutOrStdout(), results)
	return err
}

func runDatasets(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	eng, release, err := open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	if len(args) == 1 {
		schema, err := eng.DatasetColumns(ctx, args[0])
		if err != nil {
			return err
		}
		rows := make([][]string, len(schema.Columns))
		for i, c := range schema.Columns {
			rows[i] = []string{c.Name, string(c.Type)}
		}
		printTable(cmd.OutOrStdout(), []string{"column", "type"}, rows)
		return nil
	}

	datasets, err := eng.ListDatasets(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, len(datasets))
	for i, d := range datasets {
		rows[i] = []string{d.Name, d.Format, d.Path}
	}
	printTable(cmd.OutOrStdout(), []string{"name", "format", "path"}, rows)
	return nil
}
