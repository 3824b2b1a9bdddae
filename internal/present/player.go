// Package present hands H.264 Annex B video to external ffmpeg tools: a
// live ffplay window and single-frame PNG decoding.
package present

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/procutil"
)

// ErrPlayerExited is returned by Write after the player went away.
var ErrPlayerExited = errors.New("present: player exited")

// PlayerOptions configures StartPlayer.
type PlayerOptions struct {
	// Binary defaults to "ffplay".
	Binary string
	Title  string
	// Args replaces the default low-latency ffplay arguments when non-nil.
	Args []string
}

// PlayerArgs returns the ffplay arguments for low-latency playback from
// stdin.
func PlayerArgs(title string) []string {
	args := []string{
		"-f", "h264",
		"-probesize", "32768",
		"-analyzeduration", "0",
		"-fflags", "nobuffer+fastseek+flush_packets",
		"-flags", "low_delay",
		"-framedrop",
		"-an",
	}
	if title != "" {
		args = append(args, "-window_title", title)
	}
	return append(args, "-i", "pipe:0")
}

// Player is a running ffplay process fed through its stdin. It implements
// the stream sink interfaces: Write and Done. The player owns the write end
// of the stdin pipe so waiting on the process never closes it under Write.
type Player struct {
	cmd   *exec.Cmd
	stdin *os.File
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	waitErr error
}

// StartPlayer launches the player.
func StartPlayer(opts PlayerOptions) (*Player, error) {
	bin := opts.Binary
	if bin == "" {
		bin = "ffplay"
	}
	args := opts.Args
	if args == nil {
		args = PlayerArgs(opts.Title)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("present: stdin pipe: %w", err)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdin = r
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("present: start %s: %w", bin, err)
	}
	// The child holds its own copy of the read end.
	r.Close()

	p := &Player{cmd: cmd, stdin: w, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
		log.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("player exited")
	}()
	log.Info().Str("binary", bin).Int("pid", cmd.Process.Pid).Msg("player started")
	return p, nil
}

// Write sends one frame to the player.
func (p *Player) Write(frame []byte) error {
	select {
	case <-p.done:
		return ErrPlayerExited
	default:
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPlayerExited
	}
	if _, err := p.stdin.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayerExited, err)
	}
	return nil
}

// Done is closed once the player process exits.
func (p *Player) Done() <-chan struct{} { return p.done }

// Err returns the process exit error once Done is closed.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Close ends input and stops the player, killing it if it does not exit
// within the grace period.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.stdin.Close()
	err := procutil.Stop(p.cmd.Process, p.done, constants.PlayerStopTimeout)
	if errors.Is(err, procutil.ErrKilled) {
		return nil
	}
	return err
}
