package recording

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/remoteplay/rpctl/internal/h264"
)

// Recorder writes frames to a recording file. It satisfies the stream sink
// contract (Write([]byte) error) so it can sit behind a stream.Tee.
type Recorder struct {
	mu sync.Mutex

	file   *os.File
	buf    *bufio.Writer
	zw     *zstd.Encoder
	enc    *cbor.Encoder
	start  time.Time
	seq    uint64
	bytes  int64
	keys   uint64
	closed bool
	path   string
}

// Create opens path and writes the header.
func Create(path string, header Header) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}
	r, err := newRecorder(file, header)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	r.path = path
	return r, nil
}

func newRecorder(w io.Writer, header Header) (*Recorder, error) {
	buf := bufio.NewWriterSize(w, 256*1024)
	zw, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if header.Started.IsZero() {
		header.Started = time.Now()
	}
	header.Version = FormatVersion
	r := &Recorder{
		buf:   buf,
		zw:    zw,
		enc:   encMode.NewEncoder(zw),
		start: header.Started,
	}
	if err := r.enc.Encode(header); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return r, nil
}

// Write records one frame. The recorder assigns its own sequence numbers
// and marks frames that begin with a header or IDR as keyframes.
func (r *Recorder) Write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.seq++
	nal := h264.FirstNALType(data)
	key := h264.IsHeader(nal) || h264.IsKeyframe(data)
	rec := Record{
		Seq:      r.seq,
		OffsetUS: time.Since(r.start).Microseconds(),
		Key:      key,
		Data:     data,
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	r.bytes += int64(len(data))
	if key {
		r.keys++
	}
	return nil
}

// Stats returns the number of frames, keyframes and payload bytes written.
func (r *Recorder) Stats() (frames, keyframes uint64, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq, r.keys, r.bytes
}

// Path returns the file the recorder writes to.
func (r *Recorder) Path() string { return r.path }

// Close flushes and closes the recording.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.zw.Close()
	if ferr := r.buf.Flush(); err == nil {
		err = ferr
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader iterates over a recording.
type Reader struct {
	Header Header

	zr   *zstd.Decoder
	dec  *cbor.Decoder
	file *os.File
}

// Open opens a recording for reading and decodes its header.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// NewReader reads a recording from src.
func NewReader(src io.Reader) (*Reader, error) {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	r := &Reader{zr: zr, dec: decMode.NewDecoder(zr)}
	if err := r.dec.Decode(&r.Header); err != nil {
		zr.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if r.Header.Version != FormatVersion {
		zr.Close()
		return nil, fmt.Errorf("unsupported recording version %d", r.Header.Version)
	}
	return r, nil
}

// Next returns the next record or io.EOF at the end of the recording.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close releases the reader.
func (r *Reader) Close() error {
	r.zr.Close()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
