package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/remoteplay/rpctl/internal/present"
	"github.com/remoteplay/rpctl/internal/script"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
)

func newScriptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script <host> <file>",
		Short: "Run a controller script (line format or .js)",
		Long: `Script runs a macro against the console's controller.

Line format:
  CROSS 0.5     press a button, optionally for N seconds
  R2 1          pull a trigger
  DELAY 2       wait
  # comment

Files ending in .js run as JavaScript with press(), down(), up(), delay(),
stick(), triggers(), reset() and log().`,
		Args: cobra.ExactArgs(2),
		RunE: runScriptCommand,
	}
	addSessionFlags(cmd)
	cmd.Flags().Bool("show", false, "Show the video in ffplay while the script runs")
	cmd.Flags().Bool("check", false, "Parse the script and exit without connecting")
	return cmd
}

func runScriptCommand(cmd *cobra.Command, args []string) error {
	sc, err := script.Load(args[1])
	if err != nil {
		return err
	}
	if check, _ := cmd.Flags().GetBool("check"); check {
		return printScript(cmd, sc)
	}
	show, _ := cmd.Flags().GetBool("show")

	ctx, cancel := signalContext()
	defer cancel()

	err = withSession(ctx, cmd, args[0], "script", func(ctx context.Context, s *session.Session, t *runTracker) error {
		if !show {
			return sc.Run(ctx, s.Controller())
		}
		return runScriptWithVideo(ctx, s, sc, t)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runScriptWithVideo streams to a player while the script runs. The stream
// stops when the script finishes; closing the player cancels the script.
func runScriptWithVideo(ctx context.Context, s *session.Session, sc script.Script, t *runTracker) error {
	player, err := present.StartPlayer(present.PlayerOptions{
		Binary: cfg.Tools.FFplay,
		Title:  fmt.Sprintf("%s - %s", s.Config().Name, sc.Name()),
	})
	if err != nil {
		return err
	}
	defer player.Close()

	g, gctx := errgroup.WithContext(ctx)
	streamCtx, stopStream := context.WithCancel(gctx)
	defer stopStream()

	g.Go(func() error {
		stats, err := stream.Stream(streamCtx, s, player, streamOptions())
		t.record(stats)
		return err
	})
	g.Go(func() error {
		defer stopStream()
		if err := sc.Run(gctx, s.Controller()); err != nil {
			return err
		}
		log.Info().Str("script", sc.Name()).Msg("script finished")
		return nil
	})
	return g.Wait()
}

func printScript(cmd *cobra.Command, sc script.Script) error {
	out := newOutputFormatter(cmd)
	lines, ok := sc.(*script.Lines)
	if !ok {
		return out.Success(fmt.Sprintf("%s: JavaScript, not checked", sc.Name()), nil)
	}
	if out.jsonMode {
		cmds := make([]string, 0, len(lines.Commands))
		for _, c := range lines.Commands {
			cmds = append(cmds, c.String())
		}
		return out.Print(map[string]interface{}{"name": sc.Name(), "commands": cmds})
	}
	for _, c := range lines.Commands {
		fmt.Printf("%4d  %s\n", c.Line, c)
	}
	return nil
}
