package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/config"
	"github.com/remoteplay/rpctl/internal/engine"
	_ "github.com/remoteplay/rpctl/internal/engine/chiaki"
	_ "github.com/remoteplay/rpctl/internal/engine/replay"
	"github.com/remoteplay/rpctl/internal/history"
	"github.com/remoteplay/rpctl/internal/hostconfig"
	"github.com/remoteplay/rpctl/internal/logging"
	"github.com/remoteplay/rpctl/internal/relay"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
	"github.com/remoteplay/rpctl/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rpctld <host>",
		Short: "rpctl relay - serves one console session over HTTP and websocket",
		Long: `rpctld connects to a registered console and relays it: video frames go to
every websocket client on /ws, JSON controller messages from clients drive
the console, and /api/status, /api/hosts and /api/capture expose the session.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRelay,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.Flags().String("config", "", "Path to config.yaml (default ~/.rpctl/config.yaml)")
	rootCmd.Flags().String("listen", "", "HTTP listen address (default from config)")
	rootCmd.Flags().StringSlice("allowed-origin", nil, "Allowed websocket origins (repeatable)")
	rootCmd.Flags().String("engine", "", "Session engine (chiaki, replay:<file>)")
	rootCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Relay.Listen = v
	}
	if v, _ := cmd.Flags().GetStringSlice("allowed-origin"); len(v) > 0 {
		cfg.Relay.AllowedOrigins = v
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Engine = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, nil
}

// setupLogging writes to stderr and to logs/rpctld.log under the rpctl home.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	paths, err := config.EnsureDirs()
	if err != nil {
		logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		return nil, fmt.Errorf("initialise directories: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "rpctld.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if !logging.Setup(cfg.Log.Level, cfg.Log.Format, io.MultiWriter(os.Stderr, logFile)) {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
	}
	log.Info().Int("pid", os.Getpid()).Str("log_file", logPath).Str("version", version.String()).Msg("rpctld starting")
	return logFile, nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logFile, err := setupLogging(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("file logging disabled")
	} else {
		defer logFile.Close()
	}

	store := hostconfig.NewStore(cfg.Chiaki.ConfigPath)
	h, ok := store.Lookup(args[0])
	if !ok {
		return fmt.Errorf("host %q not found in %s", args[0], store.Path)
	}

	watcher, err := hostconfig.NewWatcher(store, func(hosts []hostconfig.Host) {
		if _, still := hostconfig.FindByName(hosts, h.Name); !still {
			log.Warn().Str("host", h.Name).Msg("connected host was removed from the credential store")
			return
		}
		log.Info().Int("hosts", len(hosts)).Msg("credential store reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("credential store watch unavailable")
	} else if err := watcher.Start(); err == nil {
		defer watcher.Stop()
	}

	sc := sessionConfig(cfg, store, h)
	eng, err := engine.Open(cfg.Engine)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID, hist := beginRun(ctx, cfg, sc)
	if hist != nil {
		defer hist.Close()
	}

	var srv *relay.Server
	err = session.With(ctx, sc, eng, func(s *session.Session) error {
		srv = relay.NewServer(s, relay.Options{
			Listen:         cfg.Relay.Listen,
			AllowedOrigins: cfg.Relay.AllowedOrigins,
			FFmpeg:         cfg.Tools.FFmpeg,
			Hosts:          store,
			Stream: stream.Options{
				IFrameTimeout: cfg.Stream.IFrameTimeout,
				PollInterval:  cfg.Stream.PollInterval,
			},
		})
		return srv.Run(ctx)
	})

	if hist != nil {
		res := history.Result{Err: err}
		if srv != nil {
			res.Sent, res.Bytes = srv.Hub().Stats()
		}
		if errors.Is(err, context.Canceled) {
			res.Outcome = history.OutcomeCancelled
		}
		if ferr := hist.Finish(context.Background(), runID, res); ferr != nil {
			log.Warn().Err(ferr).Msg("failed to finish history entry")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("relay stopped")
		return err
	}
	log.Info().Msg("relay stopped")
	return nil
}

func sessionConfig(cfg *config.Config, store *hostconfig.Store, h hostconfig.Host) session.Config {
	sc := session.ConfigFromHost(h)
	sc.Resolution = cfg.Session.Resolution
	sc.FPS = cfg.Session.FPS
	sc.RegistKeyEncoding = session.RegistKeyEncoding(cfg.Session.RegistKeyEncoding)
	sc.ConnectTimeout = cfg.Session.ConnectTimeout
	sc.StopTimeout = cfg.Session.StopTimeout
	sc.AccountID = cfg.Session.PSNAccountID
	if sc.AccountID == "" {
		sc.AccountID, _ = store.AccountID()
	}
	return sc
}

func beginRun(ctx context.Context, cfg *config.Config, sc session.Config) (string, *history.Store) {
	if !cfg.History.Enabled {
		return "", nil
	}
	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		log.Warn().Err(err).Msg("history disabled")
		return "", nil
	}
	id, err := hist.Begin(ctx, sc.Name, sc.Host, "relay")
	if err != nil {
		log.Warn().Err(err).Msg("history disabled")
		hist.Close()
		return "", nil
	}
	return id, hist
}
