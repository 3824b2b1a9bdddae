// Package recording stores captured video streams as zstd-compressed CBOR
// record sequences and keeps a JSON index of the recordings on disk.
package recording

import (
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is written into every header.
const FormatVersion = 1

// Extension is the file suffix used for recordings.
const Extension = ".rprec"

// ErrClosed is returned by writes to a closed recorder.
var ErrClosed = errors.New("recording: recorder closed")

// Header is the first value of every recording.
type Header struct {
	Version    int       `cbor:"1,keyasint"`
	Host       string    `cbor:"2,keyasint,omitempty"`
	Resolution string    `cbor:"3,keyasint,omitempty"`
	FPS        int       `cbor:"4,keyasint,omitempty"`
	Started    time.Time `cbor:"5,keyasint"`
}

// Record is one video sample.
type Record struct {
	Seq      uint64 `cbor:"1,keyasint"`
	OffsetUS int64  `cbor:"2,keyasint"`
	Key      bool   `cbor:"3,keyasint,omitempty"`
	Data     []byte `cbor:"4,keyasint"`
}

// Offset returns the record's position relative to the header start time.
func (r Record) Offset() time.Duration {
	return time.Duration(r.OffsetUS) * time.Microsecond
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic("recording: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("recording: CBOR decoder initialization failed: " + err.Error())
	}
}
