package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"scenecraft/internal/collab"
	"scenecraft/internal/config"
	"scenecraft/internal/ledger"
	"scenecraft/internal/logging"
	"scenecraft/internal/scene"
	"scenecraft/internal/server"
	"scenecraft/internal/verification"
	"scenecraft/internal/workflow"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scenecraft",
	Short: "scenecraft - natural-language 3D scene editing backend",
	Long: `scenecraft processes natural-language commands ("add two chairs in front
of me") against a shared 3D scene: it classifies the command, resolves assets,
plans concrete placements, verifies them against the scene, and commits the
result. The scene is shared with a WebXR front end over HTTP and WebSocket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket server",
	RunE:  runServe,
}

var processCmd = &cobra.Command{
	Use:   "process [prompt]",
	Short: "Process a single command against the scene file and exit",
	Long: `Runs one command through the full workflow without starting the server.
Useful for scripting and for inspecting what a command would do:

  scenecraft process "add two chairs in front of me"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived sessions and their stats",
	RunE:  runSessions,
}

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export session history as JSON to stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultConfig()
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

var (
	serveAddr      string
	processSession string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".scenecraft/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	processCmd.Flags().StringVar(&processSession, "session", "", "session id (empty creates a new session)")

	rootCmd.AddCommand(serveCmd, processCmd, sessionsCmd, exportCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap wires the full stack from configuration: store, verifier,
// collaborators, ledger, and engine.
func bootstrap(cfg *config.Config) (*workflow.Engine, *scene.Store, *ledger.Ledger, error) {
	if err := logging.Initialize(".", logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("categorized logging disabled", zap.Error(err))
	}

	// The scene file is the shared source of truth with the front end; a
	// missing or corrupt file aborts startup rather than silently starting
	// from an empty scene.
	objects, err := scene.LoadFile(cfg.Scene.DataPath)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := scene.NewStoreFromObjects(objects)
	if err != nil {
		return nil, nil, nil, err
	}

	catalog, err := collab.LoadCatalog(cfg.Scene.CatalogPath)
	if err != nil {
		logger.Warn("no asset catalog, resolver runs with an empty one",
			zap.String("path", cfg.Scene.CatalogPath), zap.Error(err))
		catalog = &collab.Catalog{}
	}

	timeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		classifier collab.Classifier
		resolver   collab.AssetResolver
		planner    collab.SpatialPlanner
	)
	if cfg.LLM.APIKey == "" {
		return nil, nil, nil, fmt.Errorf("no LLM API key configured (set GEMINI_API_KEY)")
	}
	client, err := collab.NewGeminiClient(collab.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	classifier = collab.NewGeminiClassifier(client)
	resolver = collab.NewGeminiResolver(client, catalog)
	planner = collab.NewGeminiPlanner(client)

	var archive *ledger.Archive
	if cfg.Ledger.DatabasePath != "" {
		archive, err = ledger.OpenArchive(cfg.Ledger.DatabasePath)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	lgr := ledger.New(cfg.Ledger.MaxTurnsPerSession, archive)

	verifier := verification.NewVerifier(
		cfg.Scene.CollisionTolerance,
		cfg.Scene.DefaultFootprint,
		cfg.Scene.FloorY,
		cfg.Scene.CeilingY,
	)

	eng := workflow.New(store, verifier, classifier, resolver, planner, lgr, workflow.Config{
		MaxIterations: cfg.Workflow.MaxIterations,
		ContextTurns:  cfg.Workflow.ContextTurns,
		CallTimeout:   timeout,
		ScenePath:     cfg.Scene.DataPath,
	})
	return eng, store, lgr, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	eng, store, lgr, err := bootstrap(cfg)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server.Addr, eng, store, lgr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scene.WatchFile {
		watcher, err := scene.NewWatcher(store, cfg.Scene.DataPath, srv.BroadcastSnapshot)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
		eng.SetWatcher(watcher)
	}

	logger.Info("serving", zap.String("addr", cfg.Server.Addr))
	return srv.Run(ctx)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	eng, _, _, err := bootstrap(cfg)
	if err != nil {
		return err
	}

	prompt := ""
	for i, a := range args {
		if i > 0 {
			prompt += " "
		}
		prompt += a
	}

	result, err := eng.ProcessCommand(cmd.Context(), prompt, processSession)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Ledger.DatabasePath == "" {
		return fmt.Errorf("no ledger database configured")
	}

	archive, err := ledger.OpenArchive(cfg.Ledger.DatabasePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	ids, err := archive.Sessions()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, id := range ids {
		n, err := archive.SessionCount(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d turns\n", id, n)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Ledger.DatabasePath == "" {
		return fmt.Errorf("no ledger database configured")
	}

	archive, err := ledger.OpenArchive(cfg.Ledger.DatabasePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	var sessionIDs []string
	if len(args) == 1 {
		sessionIDs = args
	} else {
		sessionIDs, err = archive.Sessions()
		if err != nil {
			return err
		}
	}

	export := map[string][]interface{}{}
	for _, id := range sessionIDs {
		turns, err := archive.SessionTurns(id, 0)
		if err != nil {
			return err
		}
		items := make([]interface{}, len(turns))
		for i := range turns {
			items[i] = turns[i]
		}
		export[id] = items
	}

	out, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
