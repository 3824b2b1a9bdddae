//go:build !chiaki || !cgo

package chiaki

import (
	"fmt"

	"github.com/remoteplay/rpctl/internal/engine"
)

// Engine is a placeholder used when the native binding is not compiled in.
type Engine struct{}

// New returns the placeholder engine.
func New() *Engine { return &Engine{} }

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// Create always fails with engine.ErrUnavailable.
func (e *Engine) Create(engine.ConnectInfo) (engine.Handle, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags chiaki", engine.ErrUnavailable)
}
