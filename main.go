package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lexandro/volindex-mcp/metrics"
	"github.com/lexandro/volindex-mcp/register"
	"github.com/lexandro/volindex-mcp/search"
	"github.com/lexandro/volindex-mcp/server"
	"github.com/lexandro/volindex-mcp/tools"
)

const serveCommandName = "serve"

// app carries what every command needs once flags and config are parsed.
type app struct {
	v      *viper.Viper
	fs     afero.Fs
	cfg    Config
	logger *slog.Logger
	closer io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := newRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	a := &app{v: viper.New(), fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:           "volindex-mcp",
		Short:         "In-memory file name index for whole volumes, served over MCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "register" {
				return nil
			}
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closer != nil {
				a.closer.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	if err := bindFlags(root.PersistentFlags(), a.v); err != nil {
		return nil, err
	}

	root.AddCommand(
		&cobra.Command{
			Use:   serveCommandName,
			Short: "Run the MCP server on stdio (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		a.scanCommand(),
		a.searchCommand(),
		a.buildIndexCommand(),
		a.registerCommand(),
	)
	return root, nil
}

func (a *app) init(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(a.v, a.fs, configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger, a.closer = setupLogger(cfg.LogLevel, cfg.LogFile)
	return nil
}

// serve indexes every source and answers MCP requests on stdio until the
// client disconnects or the process is signalled.
func (a *app) serve(ctx context.Context) error {
	startTime := time.Now()
	logger := a.logger

	logger.Info("starting volindex-mcp",
		"sources", len(a.cfg.Sources),
		"dataDir", a.cfg.DataDir,
		"watch", a.cfg.Watch,
		"syncInterval", a.cfg.SyncInterval,
	)

	registry, sources, err := openRegistry(a.cfg, a.fs, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.MetricsAddr != "" {
		shutdown := serveMetrics(a.cfg.MetricsAddr, logger)
		defer shutdown()
	}

	// Serve the last snapshot while the fresh build runs
	restoreSnapshots(ctx, registry, logger)
	for _, task := range startBuilds(ctx, registry, logger) {
		defer task.Cancel()
	}

	if a.cfg.Watch {
		for _, w := range startWatchers(registry, sources, logger) {
			defer w.Close()
		}
	}
	if a.cfg.SyncInterval > 0 {
		go runPeriodicSync(ctx, a.cfg.SyncInterval, registry, logger)
	}

	mcpServer := server.Setup(server.Handlers{
		Search:  &tools.SearchHandler{Registry: registry, DefaultMaxResults: a.cfg.Search.MaxResults, Logger: logger},
		Scan:    &tools.ScanHandler{Registry: registry, Logger: logger},
		Build:   &tools.BuildIndexHandler{Registry: registry, Logger: logger},
		Status:  &tools.StatusHandler{Registry: registry, StartTime: startTime, Logger: logger},
		Largest: &tools.LargestHandler{Registry: registry, Logger: logger},
	})

	logger.Info("MCP server starting on stdio")
	if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("MCP server error", "error", err)
		return err
	}
	return nil
}

// serveMetrics exposes Prometheus metrics on addr and returns a shutdown func.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func (a *app) scanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [source]",
		Short: "Scan sources and print counts without building an index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, _, err := openRegistry(a.cfg, a.fs, a.logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			for _, id := range a.sourceIDs(args) {
				result, err := registry.Scan(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tools.FormatScanResult(result))
			}
			return nil
		},
	}
}

func (a *app) buildIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build-index [source]",
		Short: "Build the index of one or all sources and save snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, _, err := openRegistry(a.cfg, a.fs, a.logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			var sourceID string
			if len(args) == 1 {
				sourceID = args[0]
			}
			gens, err := registry.BuildIndex(cmd.Context(), sourceID)
			for _, gen := range gens {
				fmt.Fprintln(cmd.OutOrStdout(), tools.FormatGeneration(gen))
			}
			return err
		},
	}
}

func (a *app) searchCommand() *cobra.Command {
	var opts search.Options
	var fresh bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search file names from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, _, err := openRegistry(a.cfg, a.fs, a.logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			ctx := cmd.Context()
			if !fresh {
				restoreSnapshots(ctx, registry, a.logger)
			}
			var missing []string
			for _, c := range registry.Coordinators() {
				if c.Current() == nil && (opts.SourceID == "" || opts.SourceID == c.ID()) {
					missing = append(missing, c.ID())
				}
			}
			for _, id := range missing {
				if _, err := registry.BuildIndex(ctx, id); err != nil {
					return err
				}
			}

			if opts.MaxResults == 0 {
				opts.MaxResults = a.cfg.Search.MaxResults
			}
			results, err := registry.Search(ctx, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tools.FormatSearchResults(results))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.CaseSensitive, "case-sensitive", false, "Match case exactly")
	flags.BoolVar(&opts.UsePatternSet, "pattern-set", false, "Treat the query as shell-quoted alternatives")
	flags.IntVarP(&opts.MaxResults, "max-results", "n", 0, "Maximum number of results")
	flags.StringVar(&opts.PathGlob, "glob", "", "Glob filter on the full path")
	flags.StringVar(&opts.Extension, "ext", "", "Keep only files with this extension")
	flags.StringVar(&opts.SourceID, "source", "", "Search only this source")
	flags.BoolVar(&fresh, "fresh", false, "Ignore snapshots and rebuild before searching")
	return cmd
}

func (a *app) registerCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "register (project [directory] | user) [-- server flags]",
		Short: "Register this binary as an MCP server in a client config",
		Long: `Register this binary as an MCP server in a client config.

Flags after "--" are forwarded to the server. They are checked against the
config the server would load, and a server that would start without any
source is not registered. Relative paths are made absolute.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			positional, serverArgs := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional, serverArgs = args[:dash], args[dash:]
			}
			req, err := register.ParseRequest(positional, serverArgs)
			if err != nil {
				return err
			}
			req.ServerName = name
			if req.ServerName == "" {
				req.ServerName = register.DeriveServerName(os.Args[0])
			}

			var cfg Config
			result, err := register.Register(a.fs, req, func(serverArgs []string) ([]string, error) {
				var err error
				serverArgs, cfg, err = a.checkServerFlags(serverArgs)
				return serverArgs, err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			verb := "Registered"
			if result.Replaced {
				verb = "Updated"
			}
			fmt.Fprintf(out, "%s %q in %s\n", verb, req.ServerName, result.ConfigPath)
			for _, s := range cfg.Sources {
				fmt.Fprintf(out, "  source %s: %s\n", s.ID, s.Root)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Server name in the client config (default: derived from the binary name)")
	return cmd
}

// checkServerFlags loads the config a server started with args would see.
// When args name no config file and the default one exists, its path is
// appended so the server reads the same file regardless of environment.
func (a *app) checkServerFlags(args []string) ([]string, Config, error) {
	flags := pflag.NewFlagSet(serveCommandName, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	v := viper.New()
	if err := bindFlags(flags, v); err != nil {
		return nil, Config{}, err
	}
	if err := flags.Parse(args); err != nil {
		return nil, Config{}, fmt.Errorf("server flags: %w", err)
	}
	if flags.NArg() > 0 {
		return nil, Config{}, fmt.Errorf("unexpected server argument %q", flags.Arg(0))
	}

	configFile, _ := flags.GetString("config")
	cfg, err := loadConfig(v, a.fs, configFile)
	if err != nil {
		return nil, Config{}, err
	}
	if len(cfg.Sources) == 0 {
		return nil, Config{}, errNoSources
	}
	if configFile == "" {
		if used := v.ConfigFileUsed(); used != "" {
			if ok, _ := afero.Exists(a.fs, used); ok {
				args = append(args, "--config", used)
			}
		}
	}
	return args, cfg, nil
}

// sourceIDs returns args when given, otherwise every configured source id.
func (a *app) sourceIDs(args []string) []string {
	if len(args) > 0 {
		return args
	}
	ids := make([]string, 0, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		ids = append(ids, s.ID)
	}
	return ids
}
