//go:build windows

package procutil

import (
	"os"
	"syscall"
)

const processQueryLimitedInformation = 0x1000

// GracefulTerminate ends the process. Windows has no SIGTERM, so this is
// TerminateProcess.
func GracefulTerminate(p *os.Process) error {
	return p.Kill()
}

// IsProcessAlive reports whether a handle to pid can still be opened.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	syscall.CloseHandle(h)
	return true
}
