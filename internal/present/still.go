package present

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrEmptyFrame is returned when there is nothing to decode.
var ErrEmptyFrame = errors.New("present: empty frame")

// DecodeStill decodes the first picture of an Annex B buffer to an image
// file using ffmpeg. The output format follows the extension of out.
func DecodeStill(ctx context.Context, ffmpeg string, frame []byte, out string) error {
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	tmp, err := os.CreateTemp("", "rpctl-frame-*.h264")
	if err != nil {
		return fmt.Errorf("present: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(frame); err != nil {
		tmp.Close()
		return fmt.Errorf("present: write temp frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("present: close temp frame: %w", err)
	}

	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("present: output dir: %w", err)
		}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpeg, "-y", "-i", tmp.Name(), "-frames:v", "1", out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return fmt.Errorf("present: %s failed: %w: %s", ffmpeg, err, msg)
	}
	log.Info().Str("path", out).Int("frame_bytes", len(frame)).Msg("still decoded")
	return nil
}
