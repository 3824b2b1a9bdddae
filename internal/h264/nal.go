// Package h264 inspects Annex B byte streams just enough to classify the
// access units an engine hands out.
package h264

// NAL unit types used when classifying frames.
const (
	NALTypeSlice     uint8 = 1
	NALTypeIDR       uint8 = 5
	NALTypeSEI       uint8 = 6
	NALTypeSPS       uint8 = 7
	NALTypePPS       uint8 = 8
	NALTypeAUD       uint8 = 9
	NALTypeEndSeq    uint8 = 10
	NALTypeEndStream uint8 = 11
	NALTypeFiller    uint8 = 12
)

// NALUnit is one unit located in an Annex B buffer. Data excludes the start
// code and includes the one-byte header.
type NALUnit struct {
	Type uint8
	Data []byte
}

// FirstNALType returns the type of the NAL unit that begins buf, or -1 when
// buf does not start with a 3- or 4-byte start code.
func FirstNALType(buf []byte) int {
	if len(buf) < 5 {
		return -1
	}
	if buf[0] == 0 && buf[1] == 0 && buf[2] == 0 && buf[3] == 1 {
		return int(buf[4] & 0x1f)
	}
	if buf[0] == 0 && buf[1] == 0 && buf[2] == 1 {
		return int(buf[3] & 0x1f)
	}
	return -1
}

// IsHeader reports whether a NAL type carries codec parameters.
func IsHeader(t int) bool {
	return t == int(NALTypeSPS) || t == int(NALTypePPS)
}

// SplitAnnexB returns the NAL units of buf in order.
func SplitAnnexB(buf []byte) []NALUnit {
	var units []NALUnit
	start := -1
	i := 0
	for i+2 < len(buf) {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			if start >= 0 {
				units = appendUnit(units, trimTrailingZeros(buf[start:i]))
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(buf) {
		units = appendUnit(units, buf[start:])
	}
	return units
}

func appendUnit(units []NALUnit, data []byte) []NALUnit {
	if len(data) == 0 {
		return units
	}
	return append(units, NALUnit{Type: data[0] & 0x1f, Data: data})
}

// trimTrailingZeros drops the leading zero of a following 4-byte start code.
func trimTrailingZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// ContainsIDR reports whether any unit in buf is an IDR slice.
func ContainsIDR(buf []byte) bool {
	for _, u := range SplitAnnexB(buf) {
		if u.Type == NALTypeIDR {
			return true
		}
	}
	return false
}

// LargeFrameThreshold marks samples treated as I-frames even without an IDR
// NAL unit; consoles send non-IDR I-slices that are this large.
const LargeFrameThreshold = 50000

// IsIFrame classifies one engine sample by its first NAL type and size.
func IsIFrame(nalType, size int) bool {
	return nalType == int(NALTypeIDR) || size > LargeFrameThreshold
}

// IsKeyframe reports whether a decoder can start from buf: it carries an
// IDR slice or is large enough to be an I-slice.
func IsKeyframe(buf []byte) bool {
	return len(buf) > LargeFrameThreshold || ContainsIDR(buf)
}
