package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/config"
	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/format"
	"github.com/pyhu26/post-woman/internal/history"
	httpclient "github.com/pyhu26/post-woman/internal/http"
	"github.com/pyhu26/post-woman/internal/logging"
	"github.com/pyhu26/post-woman/internal/mapping"
	"github.com/pyhu26/post-woman/internal/storage"
	"github.com/pyhu26/post-woman/internal/workspace"
)

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "postwoman",
		Short: "Run HTTP request chains and workflows from the command line",
		Long: `postwoman is a command-line HTTP client with request chaining.

Send single requests, organize them into collections, run them as linear
chains, or wire them into workflows where values from one response feed the
next request.

Examples:
  postwoman get https://api.example.com/users
  postwoman chain create smoke
  postwoman chain add-step smoke GET https://api.example.com/health
  postwoman chain run smoke
  postwoman workflow map login-flow "login->me" '$.token' header Authorization
  postwoman workflow run login-flow`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	defer closeApp()
	if err := rootCmd.Execute(); err != nil {
		closeApp()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./postwoman.yaml or ~/.postwoman/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show response headers and bodies")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		viper.AddConfigPath(cwd)
		viper.AddConfigPath(config.DefaultDataDir())
		viper.SetConfigType("yaml")
		viper.SetConfigName("postwoman")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer)
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configError(err)
		}
		// the home directory file is named config.yaml
		homeConfig := filepath.Join(config.DefaultDataDir(), "config.yaml")
		if _, statErr := os.Stat(homeConfig); statErr == nil {
			viper.SetConfigFile(homeConfig)
			if err := viper.ReadInConfig(); err != nil {
				configError(err)
			}
		}
	}
}

func configError(err error) {
	fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	os.Exit(1)
}

// app holds the process-wide collaborators, created on first use
var app struct {
	cfg   *config.Config
	log   *zap.Logger
	store storage.Storage
}

func appConfig() *config.Config {
	if app.cfg != nil {
		return app.cfg
	}
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		fatal("Invalid configuration", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	app.cfg = cfg
	return cfg
}

func appLogger() *zap.Logger {
	if app.log != nil {
		return app.log
	}
	log, err := logging.New(appConfig().Logging)
	if err != nil {
		fatal("Invalid logging configuration", err)
	}
	app.log = log
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using config file", zap.String("path", used))
	}
	return log
}

func openStore() storage.Storage {
	if app.store != nil {
		return app.store
	}
	cfg := appConfig()
	store, err := storage.Open(storage.Options{
		Type:         cfg.Storage.Type,
		Dir:          cfg.Storage.Path,
		HistoryLimit: cfg.History.Limit,
		Log:          appLogger(),
	})
	if err != nil {
		fatal("Failed to open storage", err)
	}
	app.store = store
	return store
}

func closeApp() {
	if app.store != nil {
		if err := app.store.Close(); err != nil && app.log != nil {
			app.log.Warn("Failed to close storage", zap.Error(err))
		}
		app.store = nil
	}
	if app.log != nil {
		_ = app.log.Sync()
	}
}

func newClient() *httpclient.Client {
	cfg := appConfig()
	return httpclient.NewClient(
		httpclient.WithTimeout(cfg.HTTP.Timeout),
		httpclient.WithMaxResponseSize(cfg.HTTP.MaxResponseBytes),
		httpclient.WithTransportErrorResponses(cfg.HTTP.TransportErrorResponse),
		httpclient.WithLogger(appLogger()),
	)
}

// newDispatcher returns the HTTP client, wrapped with history recording
// unless history is off in config or by flag
func newDispatcher(recordHistory bool) engine.Dispatcher {
	client := newClient()
	if !recordHistory || !appConfig().History.Enabled {
		return client
	}
	return history.NewRecorder(client, openStore(), appLogger())
}

func newOrchestrator(recordHistory bool) *engine.Orchestrator {
	log := appLogger()
	return engine.New(withAliases(newDispatcher(recordHistory)),
		engine.WithLogger(log),
		engine.WithEvaluator(mapping.NewEvaluator(log)),
		engine.WithRejectCycles(appConfig().Engine.RejectCycles),
	)
}

func chains() *workspace.Chains {
	return workspace.NewChains(openStore(), appLogger())
}

func workflows() *workspace.Workflows {
	return workspace.NewWorkflows(openStore(), appLogger())
}

func collections() *workspace.Collections {
	return workspace.NewCollections(openStore(), appLogger())
}

// fatal prints msg with err and exits 1
func fatal(msg string, err error) {
	if err != nil {
		format.PrintError(fmt.Sprintf("%s: %v", msg, err))
	} else {
		format.PrintError(msg)
	}
	closeApp()
	os.Exit(1)
}
