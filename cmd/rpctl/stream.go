package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/config"
	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/engine"
	"github.com/remoteplay/rpctl/internal/present"
	"github.com/remoteplay/rpctl/internal/recording"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
)

func newStreamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <host>",
		Short: "Show the console's video in an ffplay window",
		Args:  cobra.ExactArgs(1),
		RunE:  runStream,
	}
	addSessionFlags(cmd)
	cmd.Flags().Bool("record", false, "Also record the stream")
	return cmd
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	doRecord, _ := cmd.Flags().GetBool("record")

	err := withSession(ctx, cmd, args[0], "stream", func(ctx context.Context, s *session.Session, t *runTracker) error {
		player, err := present.StartPlayer(present.PlayerOptions{
			Binary: cfg.Tools.FFplay,
			Title:  fmt.Sprintf("%s (%s)", s.Config().Name, s.Variant()),
		})
		if err != nil {
			return err
		}
		defer player.Close()

		var sink stream.Sink = player
		var rec *activeRecording
		if doRecord {
			rec, err = startRecording(s.Config())
			if err != nil {
				return err
			}
			sink = closingSink{Sink: stream.NewTee(player, rec.recorder), done: player.Done()}
		}

		stats, err := stream.Stream(ctx, s, sink, streamOptions())
		t.record(stats)
		if rec != nil {
			rec.finish(stats)
		}
		printStats(cmd, stats)
		return err
	})
	if endedNormally(err) {
		return nil
	}
	return err
}

func printStats(cmd *cobra.Command, stats stream.Stats) {
	out := newOutputFormatter(cmd)
	if out.jsonMode {
		_ = out.Print(stats)
		return
	}
	rate := 0.0
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		rate = float64(stats.Sent) / secs
	}
	fmt.Printf("Streamed %d frames (%s, %.1f fps, %d missed) in %s\n",
		stats.Sent, humanize.Bytes(stats.Bytes), rate, stats.Missed, stats.Elapsed.Round(time.Millisecond))
}

type activeRecording struct {
	id       string
	recorder *recording.Recorder
	store    *recording.Store
	meta     recording.Metadata
}

func startRecording(sc session.Config) (*activeRecording, error) {
	store, err := recording.NewStore(cfg.Recordings)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	path := store.PathFor(id)
	started := time.Now()
	rec, err := recording.Create(path, recording.Header{
		Host:       sc.Name,
		Resolution: sc.Resolution,
		FPS:        sc.FPS,
		Started:    started,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("recording stream")
	return &activeRecording{
		id:       id,
		recorder: rec,
		store:    store,
		meta: recording.Metadata{
			ID:            id,
			Host:          sc.Name,
			Filename:      filepath.Base(path),
			StartTime:     started,
			Resolution:    sc.Resolution,
			FPS:           sc.FPS,
			RecordingPath: path,
		},
	}, nil
}

// finish closes the file and indexes it.
func (r *activeRecording) finish(stats stream.Stats) {
	if err := r.recorder.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close recording")
	}
	frames, keys, bytes := r.recorder.Stats()
	r.meta.Duration = time.Since(r.meta.StartTime).Seconds()
	r.meta.Frames = frames
	r.meta.Keyframes = keys
	r.meta.Bytes = bytes
	r.meta.Missed = stats.Missed
	if err := r.store.Save(r.meta); err != nil {
		log.Warn().Err(err).Msg("failed to index recording")
		return
	}
	log.Info().Str("id", r.id).Uint64("frames", frames).Msg("recording saved")
}

func newRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <host>",
		Short: "Record the console's video without showing it",
		Long: `Record writes the stream to ~/.rpctl/recordings until the duration elapses
or the command is interrupted. Recordings can be played back with
--engine replay:<file>.`,
		Args: cobra.ExactArgs(1),
		RunE: runRecord,
	}
	addSessionFlags(cmd)
	cmd.Flags().Duration("duration", 0, "Stop after this long (0 records until interrupted)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved recordings",
		Args:  cobra.NoArgs,
		RunE:  recordList,
	}
	cmd.AddCommand(listCmd)
	return cmd
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d)
		defer stop()
	}

	err := withSession(ctx, cmd, args[0], "record", func(ctx context.Context, s *session.Session, t *runTracker) error {
		rec, err := startRecording(s.Config())
		if err != nil {
			return err
		}
		stats, err := stream.Stream(ctx, s, rec.recorder, streamOptions())
		t.record(stats)
		rec.finish(stats)
		if err == nil || errors.Is(err, stream.ErrSessionEnded) {
			fmt.Printf("Saved %s\n", rec.meta.RecordingPath)
		}
		printStats(cmd, stats)
		return err
	})
	if endedNormally(err) || ctxDeadline(ctx, err) {
		return nil
	}
	return err
}

func ctxDeadline(ctx context.Context, err error) bool {
	return ctx.Err() == context.DeadlineExceeded && err != nil
}

func recordList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	store, err := recording.NewStore(cfg.Recordings)
	if err != nil {
		return err
	}
	all, err := store.LoadAll()
	if err != nil {
		return err
	}
	if out.jsonMode {
		return out.Print(all)
	}
	if len(all) == 0 {
		fmt.Println("No recordings")
		return nil
	}
	for _, m := range all {
		fmt.Printf("%s  %-12s %s  %6.1fs  %d frames  %s\n",
			shortID(m.ID), m.Host, humanize.Time(m.StartTime), m.Duration, m.Frames, humanize.Bytes(uint64(m.Bytes)))
	}
	return nil
}

func newScreenshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screenshot <host>",
		Short: "Save the current screen as a PNG",
		Args:  cobra.ExactArgs(1),
		RunE:  runScreenshot,
	}
	addSessionFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Output file (.png, or .h264 for the raw I-frame)")
	cmd.Flags().Bool("wake", false, "Press PS first so a sleeping screen shows content")
	return cmd
}

func screenshotPath(sc session.Config, output string, now time.Time) string {
	if output != "" {
		return config.ExpandPath(output)
	}
	name := strings.NewReplacer(" ", "_", "/", "_").Replace(sc.Name)
	return filepath.Join(config.GetPaths().Screenshots, fmt.Sprintf("%s-%s.png", name, now.Format("20060102-150405")))
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	output, _ := cmd.Flags().GetString("output")
	wake, _ := cmd.Flags().GetBool("wake")

	return withSession(ctx, cmd, args[0], "screenshot", func(ctx context.Context, s *session.Session, t *runTracker) error {
		if wake {
			if err := s.Controller().PressButton(ctx, engine.ButtonPS); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(constants.ScreenshotWakeDelay):
			}
		}

		frame, err := stream.Capture(ctx, s, streamOptions())
		if err != nil {
			return err
		}
		t.record(stream.Stats{Sent: 1, Bytes: uint64(len(frame))})

		path := screenshotPath(s.Config(), output, time.Now())
		if strings.EqualFold(filepath.Ext(path), ".h264") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, frame, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		} else if err := present.DecodeStill(ctx, cfg.Tools.FFmpeg, frame, path); err != nil {
			return err
		}

		return newOutputFormatter(cmd).Success(fmt.Sprintf("Saved %s (%s I-frame)", path, humanize.Bytes(uint64(len(frame)))),
			map[string]interface{}{"path": path, "bytes": len(frame)})
	})
}
