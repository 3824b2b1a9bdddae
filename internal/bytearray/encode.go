package bytearray

import (
	"strconv"
	"strings"
)

var controlEscapes = map[byte]string{
	0x00: `\0`,
	'\n': `\n`,
	'\r': `\r`,
	'\t': `\t`,
	'\f': `\f`,
	'\v': `\v`,
	0x07: `\a`,
	0x08: `\b`,
	'\\': `\\`,
}

// EncodeBody escapes raw bytes the way QSettings writes them. Hex escapes use
// the shortest form, so a hex digit that directly follows one is escaped too.
func EncodeBody(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	afterHex := false
	for _, b := range data {
		if esc, ok := controlEscapes[b]; ok {
			sb.WriteString(esc)
			afterHex = false
			continue
		}
		literal := b >= 0x20 && b < 0x7f && b != '"'
		if literal && !(afterHex && isHex(b)) {
			sb.WriteByte(b)
			afterHex = false
			continue
		}
		sb.WriteString(`\x`)
		sb.WriteString(strconv.FormatUint(uint64(b), 16))
		afterHex = true
	}
	return sb.String()
}

// Encode wraps data as a "@ByteArray(...)" value. The value is quoted when
// its body contains characters that INI readers treat specially.
func Encode(data []byte) string {
	body := EncodeBody(data)
	value := prefix + body + ")"
	if strings.ContainsAny(body, ";,=#") {
		return `"` + value + `"`
	}
	return value
}
