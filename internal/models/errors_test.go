package models_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/creatorhub/copyscan/internal/models"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		min, max time.Duration
	}{
		{"empty", "", 0, 0},
		{"seconds", "30", 30 * time.Second, 30 * time.Second},
		{"padded seconds", " 7 ", 7 * time.Second, 7 * time.Second},
		{"zero seconds", "0", 0, 0},
		{"negative seconds", "-5", 0, 0},
		{"garbage", "soon", 0, 0},
		{"future date", time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat), time.Minute, 2 * time.Minute},
		{"past date", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := models.ParseRetryAfter(tt.header)
			if got < tt.min || got > tt.max {
				t.Fatalf("ParseRetryAfter(%q) = %s, want within [%s, %s]", tt.header, got, tt.min, tt.max)
			}
		})
	}
}

func TestRateLimitErrorMatchesSentinel(t *testing.T) {
	err := error(&models.RateLimitError{Service: "ocr", RetryAfter: time.Second})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("expected %v to match ErrRateLimited", err)
	}
}
