package stream

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tee fans frames out to several sinks. A sink whose Write fails is dropped;
// Tee itself fails only once no sink remains.
type Tee struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewTee returns a Tee over sinks.
func NewTee(sinks ...Sink) *Tee {
	return &Tee{sinks: append([]Sink(nil), sinks...)}
}

// Add attaches another sink.
func (t *Tee) Add(s Sink) {
	t.mu.Lock()
	t.sinks = append(t.sinks, s)
	t.mu.Unlock()
}

// Len returns the number of live sinks.
func (t *Tee) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// Write implements Sink.
func (t *Tee) Write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	live := t.sinks[:0]
	for _, s := range t.sinks {
		if err := s.Write(frame); err != nil {
			log.Warn().Err(err).Msg("dropping stream sink")
			errs = append(errs, err)
			continue
		}
		live = append(live, s)
	}
	for i := len(live); i < len(t.sinks); i++ {
		t.sinks[i] = nil
	}
	t.sinks = live
	if len(t.sinks) == 0 {
		if len(errs) == 0 {
			return errors.New("stream: no sinks")
		}
		return errors.Join(errs...)
	}
	return nil
}
