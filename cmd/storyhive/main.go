package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/storyhive/storyhive/internal/api"
	"github.com/storyhive/storyhive/internal/config"
	"github.com/storyhive/storyhive/internal/logging"
	"github.com/storyhive/storyhive/internal/netcache"
	"github.com/storyhive/storyhive/internal/session"
	"github.com/storyhive/storyhive/internal/storage"
	"github.com/storyhive/storyhive/internal/syncer"
)

// Version is set at build time.
var Version = "dev"

var (
	flagConfig string
	flagDB     string
)

func main() {
	_ = godotenv.Load()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storyhive",
		Short:         "Offline-first client for the StoryHive story service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to configuration file")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "path to favorites database (overrides config)")

	root.AddCommand(
		newGenerateConfigCmd(),
		newRegisterCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStoriesCmd(),
		newStoryCmd(),
		newAddCmd(),
		newFavCmd(),
		newPushCmd(),
		newSyncCmd(),
		newGatewayCmd(),
	)
	return root
}

func newGenerateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := os.UserHomeDir()
			path := filepath.Join(home, ".config", "storyhive", "config.toml")
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Printf("Generated default configuration at: %s\n", path)
			return nil
		},
	}
}

// app holds everything a command needs, built once per invocation.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	store     *storage.Store
	cache     *netcache.Cache
	transport *netcache.Transport
	client    *api.Client
	sessions  *session.Store
	monitor   *syncer.ManualMonitor
	coord     *syncer.Coordinator
}

// openApp wires the full stack: config, logging, local store, caching
// transport, API client, and a coordinator fed by a one-shot connectivity
// probe. CLI invocations are short-lived, so a single probe at startup
// stands in for the continuous signal the gateway runs.
func openApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	cache, err := netcache.Open(cfg.Database.CachePath)
	if err != nil {
		store.Close()
		return nil, err
	}

	manifest, err := netcache.DefaultManifest()
	if err != nil {
		log.Warn().Err(err).Msg("shell manifest unavailable, continuing without")
	}
	transport, err := netcache.NewTransport(cache, netcache.Config{
		APIBaseURL:    cfg.API.BaseURL,
		ShellBaseURL:  cfg.Gateway.ShellBaseURL,
		Manifest:      manifest,
		OfflineNotice: cfg.Gateway.OfflineNotice,
		Logger:        log,
	})
	if err != nil {
		store.Close()
		cache.Close()
		return nil, err
	}

	httpClient := &http.Client{Transport: transport, Timeout: cfg.API.HTTPTimeout}
	client, err := api.New(cfg.API.BaseURL, httpClient)
	if err != nil {
		store.Close()
		cache.Close()
		return nil, err
	}

	monitor := syncer.NewManualMonitor(probeOnce(cfg.API.BaseURL))
	coord := syncer.New(store, client, monitor,
		syncer.WithLogger(log),
		syncer.WithAlerter(consoleAlerter{}),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		cache:     cache,
		transport: transport,
		client:    client,
		sessions:  session.NewStore(""),
		monitor:   monitor,
		coord:     coord,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.cache.Close()
}

// probeOnce checks connectivity with a single short request, bypassing the
// cache layer so a cached response cannot fake an online state.
func probeOnce(baseURL string) bool {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Head(baseURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// consoleAlerter surfaces sync alerts on stdout.
type consoleAlerter struct{}

func (consoleAlerter) Alert(message, level string) {
	fmt.Printf("[%s] %s\n", level, message)
}
