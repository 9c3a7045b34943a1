package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

const maxFrameBytes = 10 * 1024 * 1024

// Decoder probes and decodes a local media file.
type Decoder interface {
	// Probe returns the media duration in seconds; 0 for a still image.
	Probe(ctx context.Context, path string) (float64, error)
	// Frames returns one frame every interval seconds from t=0 up to limit.
	// A non-positive limit requests the single first frame.
	Frames(ctx context.Context, path string, interval, limit float64) ([]image.Image, error)
}

// FFmpegDecoder shells out to ffprobe and ffmpeg.
type FFmpegDecoder struct {
	Width int // output frame width; height keeps the aspect ratio
}

func (d FFmpegDecoder) Probe(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	raw := strings.TrimSpace(string(out))
	if raw == "" || raw == "N/A" {
		return 0, nil
	}
	dur, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return dur, nil
}

func (d FFmpegDecoder) Frames(ctx context.Context, path string, interval, limit float64) ([]image.Image, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", path}
	scale := fmt.Sprintf("scale=%d:-2", d.width())
	if limit <= 0 || interval <= 0 {
		args = append(args, "-frames:v", "1", "-vf", scale)
	} else {
		args = append(args,
			"-t", strconv.FormatFloat(limit, 'f', 3, 64),
			"-vf", fmt.Sprintf("fps=1/%s,%s", strconv.FormatFloat(interval, 'f', -1, 64), scale),
		)
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	var frames []image.Image
	readErr := readJPEGFrames(stdout, func(data []byte) error {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode frame %d: %w", len(frames), err)
		}
		frames = append(frames, img)
		return nil
	})
	if readErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if readErr != nil {
		return nil, fmt.Errorf("read frames: %w", readErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	return frames, nil
}

func (d FFmpegDecoder) width() int {
	if d.Width <= 0 {
		return 320
	}
	return d.Width
}

// readJPEGFrames splits a stream of concatenated JPEG images and calls fn for
// each one. EOF between frames ends the stream normally.
func readJPEGFrames(r io.Reader, fn func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	for {
		if err := findJPEGStart(reader); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		data, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
