package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FFmpeg shells out to the ffmpeg binary for the three audio operations the
// clip stage needs: trim, watermark mix, and transcode.
type FFmpeg struct {
	// Path to the ffmpeg binary; "ffmpeg" resolves via PATH.
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %v: %w: %s", args, err, lastLine(stderr.Bytes()))
	}
	return nil
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(lines[len(lines)-1])
}

func tmpFile(ext string) string {
	return filepath.Join(os.TempDir(), uuid.NewString()+ext)
}

func withTempInput(data []byte, ext string, fn func(inPath string) error) error {
	in := tmpFile(ext)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return err
	}
	defer os.Remove(in)
	return fn(in)
}

// Trim cuts the given window out of an mp3 stream, re-encoding as mp3.
func (f *FFmpeg) Trim(ctx context.Context, in []byte, start, duration time.Duration) ([]byte, error) {
	var out []byte
	err := withTempInput(in, ".mp3", func(inPath string) error {
		outPath := tmpFile(".mp3")
		defer os.Remove(outPath)
		args := []string{
			"-y",
			"-i", inPath,
			"-ss", fmt.Sprintf("%.3f", start.Seconds()),
			"-t", fmt.Sprintf("%.3f", duration.Seconds()),
			outPath,
		}
		if err := f.run(ctx, args); err != nil {
			return err
		}
		var readErr error
		out, readErr = os.ReadFile(outPath)
		return readErr
	})
	return out, err
}

// MixOverlay mixes an overlay track on top of the base audio: the overlay
// starts after delayMs, plays at overlayVolume, and the output length
// follows the base track.
func (f *FFmpeg) MixOverlay(ctx context.Context, base, overlay []byte, delayMs int, overlayVolume float64) ([]byte, error) {
	var out []byte
	err := withTempInput(base, ".mp3", func(basePath string) error {
		return withTempInput(overlay, ".mp3", func(overlayPath string) error {
			outPath := tmpFile(".mp3")
			defer os.Remove(outPath)
			filter := fmt.Sprintf(
				"[1]adelay=%d|%d,volume=%g[wm];[0][wm]amix=inputs=2:duration=first",
				delayMs, delayMs, overlayVolume,
			)
			args := []string{
				"-y",
				"-i", basePath,
				"-i", overlayPath,
				"-filter_complex", filter,
				outPath,
			}
			if err := f.run(ctx, args); err != nil {
				return err
			}
			var readErr error
			out, readErr = os.ReadFile(outPath)
			return readErr
		})
	})
	return out, err
}

// Transcode re-encodes audio with the given codec into the given container
// extension (e.g. codec "aac", container "m4a").
func (f *FFmpeg) Transcode(ctx context.Context, in []byte, codec, container string) ([]byte, error) {
	var out []byte
	err := withTempInput(in, ".mp3", func(inPath string) error {
		outPath := tmpFile("." + container)
		defer os.Remove(outPath)
		args := []string{
			"-y",
			"-i", inPath,
			"-c:a", codec,
			"-vn",
			outPath,
		}
		if err := f.run(ctx, args); err != nil {
			return err
		}
		var readErr error
		out, readErr = os.ReadFile(outPath)
		return readErr
	})
	return out, err
}
