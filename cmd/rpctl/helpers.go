package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/config"
	"github.com/remoteplay/rpctl/internal/engine"
	"github.com/remoteplay/rpctl/internal/history"
	"github.com/remoteplay/rpctl/internal/hostconfig"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
)

func hostStore() *hostconfig.Store {
	return hostconfig.NewStore(cfg.Chiaki.ConfigPath)
}

// addSessionFlags registers the flags shared by commands that connect.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "Console address (overrides the manual host entry)")
	cmd.Flags().String("resolution", "", "Stream resolution (360p, 540p, 720p, 1080p)")
	cmd.Flags().Int("fps", 0, "Stream frame rate (30 or 60)")
}

// sessionConfig resolves ref against the credential store and applies the
// configured and flag-provided session settings.
func sessionConfig(c *config.Config, store *hostconfig.Store, ref string) (session.Config, error) {
	h, ok := store.Lookup(ref)
	if !ok {
		names := make([]string, 0)
		for _, known := range store.Hosts() {
			names = append(names, known.Name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return session.Config{}, fmt.Errorf("host %q not found: no registered hosts in %s", ref, store.Path)
		}
		return session.Config{}, fmt.Errorf("host %q not found (known: %s)", ref, strings.Join(names, ", "))
	}

	sc := session.ConfigFromHost(h)
	sc.Resolution = c.Session.Resolution
	sc.FPS = c.Session.FPS
	sc.RegistKeyEncoding = session.RegistKeyEncoding(c.Session.RegistKeyEncoding)
	sc.ConnectTimeout = c.Session.ConnectTimeout
	sc.StopTimeout = c.Session.StopTimeout
	sc.AccountID = c.Session.PSNAccountID
	if sc.AccountID == "" {
		if id, ok := store.AccountID(); ok {
			sc.AccountID = id
		}
	}
	return sc, nil
}

func commandSessionConfig(cmd *cobra.Command, ref string) (session.Config, error) {
	sc, err := sessionConfig(cfg, hostStore(), ref)
	if err != nil {
		return sc, err
	}
	if v, _ := cmd.Flags().GetString("address"); v != "" {
		sc.Host = v
	}
	if v, _ := cmd.Flags().GetString("resolution"); v != "" {
		sc.Resolution = v
	}
	if v, _ := cmd.Flags().GetInt("fps"); v != 0 {
		sc.FPS = v
	}
	return sc, nil
}

func openEngine() (engine.Engine, error) {
	return engine.Open(cfg.Engine)
}

func streamOptions() stream.Options {
	return stream.Options{
		IFrameTimeout: cfg.Stream.IFrameTimeout,
		PollInterval:  cfg.Stream.PollInterval,
	}
}

// sessionFunc runs against a connected session. Its ctx is cancelled when
// the caller's ctx ends or the console ends the session.
type sessionFunc func(ctx context.Context, s *session.Session, t *runTracker) error

// withSession connects to ref, runs fn and always disconnects. The run is
// logged to the history database when enabled.
func withSession(ctx context.Context, cmd *cobra.Command, ref, kind string, fn sessionFunc) error {
	sc, err := commandSessionConfig(cmd, ref)
	if err != nil {
		return err
	}
	eng, err := openEngine()
	if err != nil {
		return err
	}

	tracker := beginRun(ctx, sc, kind)
	defer tracker.close()

	err = runSession(ctx, sc, eng, tracker, fn)
	tracker.finish(err)
	return err
}

// runSession is withSession after the config and engine are resolved. A
// console-initiated quit is reported as stream.ErrSessionEnded even when fn
// only saw its ctx cancelled.
func runSession(ctx context.Context, sc session.Config, eng engine.Engine, t *runTracker, fn sessionFunc) error {
	return session.With(ctx, sc, eng, func(s *session.Session) error {
		sessCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.Context(), cancel)
		defer stop()

		err := fn(sessCtx, s, t)
		if ctx.Err() == nil && s.Context().Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
			return stream.Ended(s)
		}
		return err
	})
}

// runTracker records one run in the history database. A nil tracker, or
// one whose database could not be opened, ignores every call.
type runTracker struct {
	store *history.Store
	id    string
	stats stream.Stats
}

func beginRun(ctx context.Context, sc session.Config, kind string) *runTracker {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		log.Warn().Err(err).Msg("history disabled for this run")
		return nil
	}
	id, err := store.Begin(ctx, sc.Name, sc.Host, kind)
	if err != nil {
		log.Warn().Err(err).Msg("history disabled for this run")
		store.Close()
		return nil
	}
	return &runTracker{store: store, id: id}
}

// record keeps the latest stream statistics for finish.
func (t *runTracker) record(stats stream.Stats) {
	if t == nil {
		return
	}
	t.stats = stats
}

func (t *runTracker) finish(err error) {
	if t == nil {
		return
	}
	res := history.Result{
		Sent:    t.stats.Sent,
		Missed:  t.stats.Missed,
		Bytes:   t.stats.Bytes,
		Outcome: outcomeFor(err),
		Err:     err,
	}
	if err := t.store.Finish(context.Background(), t.id, res); err != nil {
		log.Warn().Err(err).Str("run", t.id).Msg("failed to finish history entry")
	}
}

func (t *runTracker) close() {
	if t == nil {
		return
	}
	t.store.Close()
}

func outcomeFor(err error) history.Outcome {
	switch {
	case err == nil:
		return history.OutcomeCompleted
	case errors.Is(err, context.Canceled):
		return history.OutcomeCancelled
	default:
		return history.OutcomeFailed
	}
}

// closingSink gives a composite sink the lifetime of one of its members.
type closingSink struct {
	stream.Sink
	done <-chan struct{}
}

func (c closingSink) Done() <-chan struct{} { return c.done }

// endedNormally reports whether err only says the stream was stopped by the
// user or the player window was closed.
func endedNormally(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrSinkClosed)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
