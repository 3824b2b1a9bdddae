package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringReflectsBuildVersion(t *testing.T) {
	t.Cleanup(ForTesting("1.2.3-test"))
	assert.Equal(t, "1.2.3-test", String())
	assert.Equal(t, "v1.2.3-test", Get().Version)
	assert.Equal(t, runtime.Version(), Get().Go)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v0.3.0", FormatVersion("0.3.0"))
	assert.Equal(t, "v0.3.0", FormatVersion("v0.3.0"))
	assert.Equal(t, "dev", FormatVersion("dev"))
	assert.Equal(t, "", FormatVersion(""))
}

func TestCheckVersionMismatch(t *testing.T) {
	tests := []struct {
		name   string
		client string
		relay  string
		warn   bool
	}{
		{"same", "0.3.0", "0.3.0", false},
		{"different", "0.3.0", "0.2.0", true},
		{"relay dev", "0.3.0", "dev", false},
		{"client dev", "dev", "0.3.0", false},
		{"relay empty", "0.3.0", "", false},
		{"prefix ignored", "v0.3.0", "0.3.0", false},
		{"describe suffix same base", "0.3.0-5-gabcdef", "0.3.0", false},
		{"describe suffix other base", "0.3.0-5-gabcdef", "0.2.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(ForTesting(tt.client))
			got := CheckVersionMismatch(tt.relay)
			if tt.warn {
				assert.Contains(t, got, "version mismatch")
				assert.Contains(t, got, "rpctld")
			} else {
				assert.Empty(t, got)
			}
		})
	}
}
