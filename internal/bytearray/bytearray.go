// Package bytearray decodes and encodes the Qt QSettings "@ByteArray(...)"
// text form used to store binary values inside INI files.
package bytearray

import "strings"

const (
	prefix       = "@ByteArray("
	quotedPrefix = `"` + prefix
)

// Unwrap returns the escaped body of a "@ByteArray(...)" value. The quoted
// form drops the leading quote and the trailing `)"`. ok is false when the
// value does not carry the marker.
func Unwrap(value string) (body string, ok bool) {
	switch {
	case strings.HasPrefix(value, quotedPrefix):
		if len(value) < len(quotedPrefix)+2 {
			return "", true
		}
		return value[len(quotedPrefix) : len(value)-2], true
	case strings.HasPrefix(value, prefix):
		if len(value) < len(prefix)+1 {
			return "", true
		}
		return value[len(prefix) : len(value)-1], true
	default:
		return "", false
	}
}

// Decode converts a "@ByteArray(...)" value into raw bytes. Values without
// the marker decode to an empty slice. Decode never fails: malformed escapes
// degrade to literal backslashes.
func Decode(value string) []byte {
	body, ok := Unwrap(value)
	if !ok {
		return []byte{}
	}
	return DecodeBody(body)
}

// DecodeBody unescapes the inside of a "@ByteArray(...)" value.
func DecodeBody(body string) []byte {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); {
		c := body[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		if i+1 >= len(body) {
			out = append(out, '\\')
			break
		}
		next := body[i+1]
		if next == 'x' {
			j := i + 2
			var v byte
			for j < len(body) && j < i+4 && isHex(body[j]) {
				v = v<<4 | hexValue(body[j])
				j++
			}
			if j == i+2 {
				// No digits: keep the backslash, resume at 'x'.
				out = append(out, '\\')
				i++
				continue
			}
			out = append(out, v)
			i = j
			continue
		}
		if b, ok := simpleEscapes[next]; ok {
			out = append(out, b)
			i += 2
			continue
		}
		out = append(out, '\\')
		i++
	}
	return out
}

var simpleEscapes = map[byte]byte{
	'0':  0x00,
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'f':  '\f',
	'v':  '\v',
	'a':  0x07,
	'b':  0x08,
	'\\': '\\',
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
