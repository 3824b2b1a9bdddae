// Package procutil stops helper processes (players, decoders, discovery
// tools) without leaving them behind.
package procutil

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrKilled reports that a process ignored the graceful request and was
// killed.
var ErrKilled = errors.New("procutil: process killed after grace period")

// Stop asks p to terminate and waits up to grace for exited to close. If the
// process is still running afterwards it is killed. exited must be closed by
// whoever owns the cmd.Wait call.
func Stop(p *os.Process, exited <-chan struct{}, grace time.Duration) error {
	if p == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}

	if err := GracefulTerminate(p); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Debug().Err(err).Int("pid", p.Pid).Msg("graceful terminate failed")
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
	}

	log.Warn().Int("pid", p.Pid).Dur("grace", grace).Msg("process did not exit, killing")
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-exited
	return ErrKilled
}
