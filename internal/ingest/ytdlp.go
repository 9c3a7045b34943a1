package ingest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Resolver maps a platform page URL to a directly downloadable media URL.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// YTDLPResolver uses yt-dlp, which covers every platform DetectPlatform knows.
type YTDLPResolver struct {
	Format string
}

func (y YTDLPResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	format := y.Format
	if format == "" {
		format = "best[height<=720]/best"
	}
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--get-url",
		"--format", format,
		"--no-playlist",
		pageURL,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// yt-dlp exits non-zero for removed, private and geo-blocked videos.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: yt-dlp: %s", ErrUnavailable, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	// yt-dlp may print separate video and audio URLs; the first is video.
	mediaURL := strings.TrimSpace(strings.SplitN(strings.TrimSpace(string(output)), "\n", 2)[0])
	if mediaURL == "" {
		return "", fmt.Errorf("%w: yt-dlp returned empty URL", ErrUnavailable)
	}
	return mediaURL, nil
}
