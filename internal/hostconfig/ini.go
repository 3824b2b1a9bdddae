package hostconfig

import (
	"bufio"
	"io"
	"strings"
)

// section holds the keys of one INI section. Keys are stored lower-cased.
type section map[string]string

// document is a parsed QSettings INI file keyed by section name.
type document map[string]section

// parseINI reads the subset of the QSettings INI dialect that Chiaki writes:
// "[name]" headers, "key=value" pairs and full-line ";" or "#" comments.
// Values are kept verbatim apart from surrounding whitespace because they may
// carry escaped key material. Keys before the first header land in "General".
func parseINI(r io.Reader) (document, error) {
	doc := document{}
	current := doc.section("General")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}
		if line[0] == '[' && line[len(line)-1] == ']' {
			current = doc.section(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		current[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return doc, scanner.Err()
}

func (d document) section(name string) section {
	s, ok := d[name]
	if !ok {
		s = section{}
		d[name] = s
	}
	return s
}

func (s section) lookup(key string) (string, bool) {
	v, ok := s[strings.ToLower(key)]
	return v, ok
}
