package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	spsSample = []byte{0, 0, 0, 1, 0x67, 0x42, 0x00, 0x1f}
	idrSample = []byte{0, 0, 0, 1, 0x65, 0x88, 0x84, 0x00}
	pSample   = []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}
)

func TestFrameStoreSequenceAdvancesPerSample(t *testing.T) {
	s := NewFrameStore()
	buf := make([]byte, MaxFrameSize)

	n, seq := s.FrameWithSequence(buf)
	assert.Zero(t, n)
	assert.Zero(t, seq)

	s.Push(pSample)
	s.Push(nil)
	s.Push(pSample)
	n, seq = s.FrameWithSequence(buf)
	assert.Equal(t, len(pSample), n)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, pSample, buf[:n])
}

func TestFrameStoreBuildsIFrameFromHeader(t *testing.T) {
	s := NewFrameStore()
	buf := make([]byte, MaxFrameSize)

	s.Push(idrSample)
	assert.False(t, s.HasIFrame(), "IDR without a header is not self-decodable")

	s.Push(spsSample)
	s.Push(idrSample)
	require.True(t, s.HasIFrame())

	n := s.IFrame(buf)
	assert.Equal(t, append(append([]byte{}, spsSample...), idrSample...), buf[:n])

	s.ClearIFrame()
	assert.False(t, s.HasIFrame())
	assert.Zero(t, s.IFrame(buf))
}

func TestFrameStoreLargeFrameCountsAsIFrame(t *testing.T) {
	s := NewFrameStore()
	s.Push(spsSample)

	large := make([]byte, LargeFrameThreshold+1)
	copy(large, pSample)
	s.Push(large)
	assert.True(t, s.HasIFrame())
}

func TestFrameStoreShortBufferYieldsZero(t *testing.T) {
	s := NewFrameStore()
	s.Push(spsSample)
	s.Push(idrSample)

	small := make([]byte, 4)
	assert.Zero(t, s.Frame(small))
	assert.Zero(t, s.IFrame(small))

	received, maxSize := s.Stats()
	assert.Equal(t, uint64(2), received)
	assert.Equal(t, len(spsSample), maxSize)
}
