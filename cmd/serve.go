package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/browser"
	"github.com/xkilldash9x/franz/internal/capture"
	"github.com/xkilldash9x/franz/internal/config"
	"github.com/xkilldash9x/franz/internal/engine"
	"github.com/xkilldash9x/franz/internal/events"
	"github.com/xkilldash9x/franz/internal/humanoid"
	"github.com/xkilldash9x/franz/internal/llmclient"
	"github.com/xkilldash9x/franz/internal/observability"
	"github.com/xkilldash9x/franz/internal/server"
	"github.com/xkilldash9x/franz/internal/store"
	"github.com/xkilldash9x/franz/internal/turnstate"
	"github.com/xkilldash9x/franz/internal/worker"
)

const componentShutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the sync server and the turn engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, cfg); err != nil {
				return err
			}
			return runServe(ctx, cfg, getViperFromContext(ctx), observability.GetLogger())
		},
	}

	serveCmd.Flags().IntP("port", "p", 0, "Port for the sync server. (Overrides config/env)")
	serveCmd.Flags().String("target-url", "", "Page the browser opens. (Overrides config/env)")
	serveCmd.Flags().Bool("no-boot", false, "Wait for an injection instead of sending the boot text.")
	return serveCmd
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		port, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.ServerCfg.Port = port
	}
	if flags.Changed("target-url") {
		url, err := flags.GetString("target-url")
		if err != nil {
			return err
		}
		cfg.BrowserCfg.TargetURL = url
	}
	if flags.Changed("no-boot") {
		noBoot, err := flags.GetBool("no-boot")
		if err != nil {
			return err
		}
		cfg.EngineCfg.BootEnabled = !noBoot
	}
	return cfg.Validate()
}

// environment is the surface actions land on and captures come from.
type environment struct {
	Executor schemas.InputExecutor
	Capture  schemas.CaptureProvider
	// OpenPanel shows the annotation panel at url. Nil when the environment
	// has nowhere to show it.
	OpenPanel func(ctx context.Context, url string) error
	Shutdown  func(ctx context.Context) error
}

// newEnvironment launches the browser. Tests replace it.
var newEnvironment = launchBrowserEnvironment

func launchBrowserEnvironment(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*environment, error) {
	mgr, err := browser.NewManager(ctx, cfg.Browser(), logger)
	if err != nil {
		return nil, err
	}

	executor, err := humanoid.New(humanoid.NewConfig(cfg), humanoid.NewCDPExecutor(mgr.Run, logger), logger)
	if err != nil {
		_ = mgr.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create input executor: %w", err)
	}

	capturer, err := capture.NewCDPCapturer(mgr, capture.NewGeometry(cfg), cfg.Capture().Delay, logger)
	if err != nil {
		_ = mgr.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create capture provider: %w", err)
	}

	return &environment{
		Executor:  executor,
		Capture:   capturer,
		OpenPanel: mgr.OpenPanel,
		Shutdown:  mgr.Shutdown,
	}, nil
}

// serveComponents holds initialized services.
type serveComponents struct {
	State    *turnstate.State
	Pool     *worker.Pool
	Env      *environment
	LLM      schemas.LLMClient
	Bus      *events.Bus
	Recorder schemas.TurnRecorder
	Engine   *engine.TurnEngine
	Server   *server.Server
}

// Shutdown releases every component that was created.
func (sc *serveComponents) Shutdown(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), componentShutdownTimeout)
	defer cancel()

	if sc.Pool != nil {
		_ = sc.Pool.Drain(ctx)
	}
	if sc.Bus != nil {
		if err := sc.Bus.Close(); err != nil {
			logger.Warn("Error closing event bus", zap.Error(err))
		}
	}
	if sc.Recorder != nil {
		if err := sc.Recorder.Close(); err != nil {
			logger.Warn("Error closing turn recorder", zap.Error(err))
		}
	}
	if sc.LLM != nil {
		if err := sc.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client", zap.Error(err))
		}
	}
	if sc.Env != nil && sc.Env.Shutdown != nil {
		if err := sc.Env.Shutdown(ctx); err != nil {
			logger.Warn("Error during environment shutdown", zap.Error(err))
		}
	}
}

// initializeServeComponents handles dependency injection.
func initializeServeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*serveComponents, error) {
	sc := &serveComponents{State: turnstate.New(cfg.Server().MinImageB64Len)}

	var err error
	if sc.Pool, err = worker.NewPool(cfg.Engine().WorkerConcurrency, logger); err != nil {
		return sc, err
	}
	if sc.Env, err = newEnvironment(ctx, cfg, logger); err != nil {
		return sc, fmt.Errorf("failed to start environment: %w", err)
	}
	if sc.LLM, err = llmclient.NewClient(ctx, cfg.Inference(), logger); err != nil {
		return sc, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if sc.Bus, err = events.NewBus(logger); err != nil {
		return sc, err
	}
	if sc.Recorder, err = store.NewRecorder(ctx, cfg.Store(), logger); err != nil {
		return sc, fmt.Errorf("failed to create turn recorder: %w", err)
	}
	sc.Bus.Record("turn_recorder", sc.Recorder)

	inf := cfg.Inference()
	sc.Engine, err = engine.New(engine.Config{
		BootEnabled:          cfg.Engine().BootEnabled,
		BootText:             cfg.Engine().BootText,
		SystemPrompt:         inf.SystemPrompt,
		Options:              llmclient.OptionsFromConfig(inf),
		InferenceMinInterval: cfg.Engine().InferenceMinInterval,
	}, engine.Dependencies{
		State:    sc.State,
		Pool:     sc.Pool,
		Executor: sc.Env.Executor,
		Capture:  sc.Env.Capture,
		LLM:      sc.LLM,
		Events:   sc.Bus,
	}, logger)
	if err != nil {
		return sc, err
	}

	w, h := capture.NewGeometry(cfg).OutputSize()
	if sc.Server, err = server.New(cfg.Server(), w, h, cfg.UI(), sc.State, logger); err != nil {
		return sc, err
	}
	return sc, nil
}

// runServe wires the loop and blocks until ctx is cancelled or a component
// fails.
func runServe(ctx context.Context, cfg *config.Config, v *viper.Viper, logger *zap.Logger) error {
	logger.Info("Starting franz",
		zap.String("version", Version),
		zap.String("url", cfg.Server().BaseURL()),
		zap.String("target_url", cfg.Browser().TargetURL),
		zap.String("provider", string(cfg.Inference().Provider)),
	)

	sc, err := initializeServeComponents(ctx, cfg, logger)
	defer sc.Shutdown(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	watchUIConfig(v, sc.Server, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sc.Bus.Run(gctx)
	})
	g.Go(func() error {
		return sc.Server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		openPanel(gctx, cfg, sc, logger)
		return nil
	})
	g.Go(func() error {
		// Early events are lost if the engine starts before the recorder
		// has subscribed.
		select {
		case <-sc.Bus.Running():
		case <-gctx.Done():
			return nil
		}
		return sc.Engine.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("franz stopped.", zap.Int("turns", sc.State.Turn()))
	return nil
}

// openPanel shows the annotation panel once the sync server is listening. A
// failure only costs the automatic annotation, so it is logged.
func openPanel(ctx context.Context, cfg *config.Config, sc *serveComponents, logger *zap.Logger) {
	if !cfg.Browser().OpenPanel || sc.Env.OpenPanel == nil {
		return
	}
	select {
	case <-sc.Server.Ready():
	case <-ctx.Done():
		return
	}
	url := cfg.Server().BaseURL()
	if err := sc.Env.OpenPanel(ctx, url); err != nil && ctx.Err() == nil {
		logger.Warn("Could not open the annotation panel. Open it manually.", zap.String("url", url), zap.Error(err))
	}
}

// watchUIConfig refreshes the ui block served on /config when the config file
// changes. Other sections need a restart.
func watchUIConfig(v *viper.Viper, srv *server.Server, logger *zap.Logger) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		srv.SetUIConfig(v.GetStringMap("ui"))
		logger.Info("UI configuration reloaded.", zap.String("file", e.Name))
	})
	v.WatchConfig()
}
