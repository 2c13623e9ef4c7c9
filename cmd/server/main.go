// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/19mix/internal/api/connect"
	"github.com/osa030/19mix/internal/app/filter"
	"github.com/osa030/19mix/internal/app/library"
	"github.com/osa030/19mix/internal/app/mixer"
	"github.com/osa030/19mix/internal/app/notification"
	"github.com/osa030/19mix/internal/domain/mix"
	"github.com/osa030/19mix/internal/infra/auth"
	"github.com/osa030/19mix/internal/infra/config"
	"github.com/osa030/19mix/internal/infra/logger"
	"github.com/osa030/19mix/internal/infra/metrics"
	"github.com/osa030/19mix/internal/infra/spotify"
)

var (
	app        = kingpin.New("19mix-server", "19mix proportional playlist mixer")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := setupFilters(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	provider := auth.NewProvider(auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		TokenPath:    cfg.Spotify.TokenPath,
	})
	httpClient, err := provider.Client(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify credentials")
	}

	spotifyClient := spotify.New(httpClient, spotify.Config{
		Market:     cfg.Spotify.Market,
		DeviceID:   cfg.Spotify.DeviceID,
		DeviceName: cfg.Spotify.DeviceName,
	})
	if _, err := spotifyClient.ResolveDevice(ctx); err != nil {
		zlog.Warn().Msgf("No playback device resolved, queueing on the active device: %v", err)
	}

	met := metrics.New()
	notifier := notification.NewManager()
	defer notifier.Close()

	lib := library.New(spotifyClient, library.Config{Concurrency: cfg.Library.Concurrency})
	if cfg.Library.ShouldRefreshOnStart() {
		if _, err := lib.Refresh(ctx); err != nil {
			zlog.Warn().Msgf("Library refresh incomplete: cached=%d error=%v", lib.Len(), err)
		}
	}
	met.LibraryPlaylists.Set(float64(lib.Len()))

	mx := mixer.New(spotifyClient, lib, mixer.Config{
		Interval:          cfg.Scheduler.Interval(),
		DefaultRetryAfter: cfg.Scheduler.DefaultRetryAfter(),
		TickOnStart:       cfg.Scheduler.ShouldTickOnStart(),
	},
		mixer.WithFilterChain(chain),
		mixer.WithPublisher(notifier),
		mixer.WithObserver(met),
	)
	met.WatchMix(func() int { return len(mx.Status().Sources) })

	sources, err := initialMix(cfg, lib)
	if err != nil {
		return errors.Wrap(err, "invalid mix config")
	}
	if err := mx.SetActiveSources(sources); err != nil {
		return errors.Wrap(err, "invalid mix config")
	}

	// Streams end when done is closed so that Shutdown does not wait for them
	done := make(chan struct{})
	adminService := apiconnect.NewAdminService(mx, lib, notifier,
		apiconnect.WithDone(done),
		apiconnect.WithRefreshHook(func(total int) { met.LibraryPlaylists.Set(float64(total)) }),
	)

	mux := http.NewServeMux()
	adminPath, adminHandler := adminService.Handler(
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)
	mux.Handle(adminPath, adminHandler)
	if cfg.Server.MetricsPath != "" {
		mux.Handle(cfg.Server.MetricsPath, met.Handler())
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	mixerDone := make(chan struct{})
	go func() {
		defer close(mixerDone)
		if err := mx.Run(ctx); err != nil {
			zlog.Error().Msgf("Mixer stopped: %v", err)
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
		stop()
	}

	<-mixerDone
	close(done)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return runErr
}

// setupFilters builds the filter chain: the queue duplicate filter always,
// then every enabled filter from the config.
func setupFilters(cfg *config.Config) (*filter.Chain, error) {
	chain := filter.NewChain(filter.NewQueueDuplicateFilter())
	registry := filter.GetRegistered()

	for _, name := range filter.RegisteredNames() {
		if name == filter.QueueDuplicateName || !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.GetFilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("Filter enabled: %s", name)
	}

	for name, fc := range cfg.Filters {
		if _, ok := registry[name]; !ok && fc.Enabled {
			return nil, errors.Newf("unknown filter %s", name)
		}
	}
	return chain, nil
}

// initialMix converts the configured sources. Playlists may be given as
// IDs, URIs or URLs.
func initialMix(cfg *config.Config, lib *library.Cache) ([]mix.Source, error) {
	sources := make([]mix.Source, 0, len(cfg.Mix.Sources))
	for _, sc := range cfg.Mix.Sources {
		s, err := mix.NewSource(spotify.ExtractPlaylistID(sc.Playlist), sc.Weight)
		if err != nil {
			return nil, err
		}
		if _, ok := lib.Get(s.ID); !ok {
			// Evicted on its first selection unless a refresh adds it.
			zlog.Warn().Msgf("Mix source not in library: playlist_id=%s", s.ID)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	for _, name := range filter.RegisteredNames() {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
