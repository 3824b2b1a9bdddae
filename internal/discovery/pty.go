package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/procutil"
)

// RunPTY runs the tool under a pseudo-terminal so it line-buffers its log
// output, and collects everything it prints until it exits or ctx ends.
func RunPTY(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.Command(binary, args...)
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 200})
	if err != nil {
		return nil, fmt.Errorf("discovery: start %s: %w", binary, err)
	}
	defer f.Close()

	var out bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := io.Copy(&out, f)
		copied <- err
	}()

	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-ctx.Done():
		_ = procutil.Stop(cmd.Process, exited, constants.PlayerStopTimeout)
	}

	// The master side reports EIO once the child closed the terminal.
	copyErr := <-copied
	if copyErr != nil && !errors.Is(copyErr, syscall.EIO) {
		return out.Bytes(), fmt.Errorf("discovery: read output: %w", copyErr)
	}
	if ctx.Err() != nil {
		return out.Bytes(), ctx.Err()
	}
	if waitErr != nil {
		return out.Bytes(), fmt.Errorf("discovery: %s: %w", binary, waitErr)
	}
	return out.Bytes(), nil
}
