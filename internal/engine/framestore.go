package engine

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/h264"
)

// LargeFrameThreshold marks frames treated as I-frames even without an IDR
// NAL unit.
const LargeFrameThreshold = h264.LargeFrameThreshold

// FrameStore keeps the latest video sample delivered by an engine together
// with the most recent self-decodable I-frame. Engines feed it from their
// video callback and serve reads from it.
type FrameStore struct {
	mu sync.Mutex

	latest []byte
	seq    uint64

	header []byte
	iframe []byte
	haveI  bool

	received uint64
	maxSize  int
}

// NewFrameStore returns an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{}
}

// Push records one video sample. Every non-empty sample becomes the latest
// frame and bumps the sequence. SPS/PPS samples replace the cached header,
// and I-frames are stored with that header prepended when both fit within
// MaxFrameSize.
func (s *FrameStore) Push(buf []byte) {
	if len(buf) == 0 {
		return
	}
	nalType := h264.FirstNALType(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.received++
	if len(buf) > s.maxSize {
		s.maxSize = len(buf)
	}
	if s.received <= 20 || s.received%100 == 0 {
		log.Trace().Uint64("frame", s.received).Int("size", len(buf)).Int("nal", nalType).Msg("video sample")
	}

	s.latest = append(s.latest[:0], buf...)
	s.seq++

	if h264.IsHeader(nalType) {
		s.header = append(s.header[:0], buf...)
	}

	isIFrame := h264.IsIFrame(nalType, len(buf))
	if !isIFrame || len(s.header) == 0 {
		return
	}
	total := len(s.header) + len(buf)
	if total > MaxFrameSize {
		return
	}
	s.iframe = append(append(s.iframe[:0], s.header...), buf...)
	s.haveI = true
	log.Debug().Int("size", total).Msg("stored I-frame")
}

// Frame copies the latest frame into buf. It returns 0 when there is no
// frame yet or when buf is too small.
func (s *FrameStore) Frame(buf []byte) int {
	n, _ := s.FrameWithSequence(buf)
	return n
}

// FrameWithSequence is Frame plus the sequence of the copied frame. The
// sequence is only meaningful when n > 0.
func (s *FrameStore) FrameWithSequence(buf []byte) (int, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latest) == 0 || len(s.latest) > len(buf) {
		return 0, 0
	}
	return copy(buf, s.latest), s.seq
}

// Sequence returns the number of frames pushed so far.
func (s *FrameStore) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// HasIFrame reports whether an I-frame is cached.
func (s *FrameStore) HasIFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haveI
}

// IFrame copies the cached I-frame into buf, returning 0 when none is cached
// or buf is too small.
func (s *FrameStore) IFrame(buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveI || len(s.iframe) > len(buf) {
		return 0
	}
	return copy(buf, s.iframe)
}

// ClearIFrame marks the cached I-frame stale so the next one is awaited.
func (s *FrameStore) ClearIFrame() {
	s.mu.Lock()
	s.haveI = false
	s.mu.Unlock()
}

// Stats reports how many samples were seen and the largest one.
func (s *FrameStore) Stats() (received uint64, maxSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.maxSize
}
