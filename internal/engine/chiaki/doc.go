// Package chiaki binds the native Chiaki session wrapper (libchiaki with the
// chiaki_python_session_* entry points) as an engine named "chiaki".
//
// The binding needs cgo and is only compiled with the "chiaki" build tag:
//
//	go build -tags chiaki ./cmd/rpctl
//
// Without the tag the engine is still registered, and Create reports
// engine.ErrUnavailable.
package chiaki

import (
	"bytes"
	"encoding/hex"

	"github.com/remoteplay/rpctl/internal/engine"
)

// Name is the registry name of the native engine.
const Name = "chiaki"

func init() {
	engine.Register(Name, func(string) (engine.Engine, error) {
		return New(), nil
	})
}

// registKeyString is the registration key as the wrapper expects it: the
// bytes up to the first NUL, copied verbatim.
func registKeyString(key [16]byte) string {
	b := key[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// rpKeyString is the session key re-encoded as 32 hex characters.
func rpKeyString(key [16]byte) string {
	return hex.EncodeToString(key[:])
}
