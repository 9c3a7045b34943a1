package models

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrRateLimited matches any RateLimitError via errors.Is.
var ErrRateLimited = errors.New("upstream rate limited")

// RateLimitError is returned by networked collaborators that answered with a
// rate-limit response. RetryAfter is zero when the upstream gave no hint.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (retry after %s)", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Service)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ParseRetryAfter reads a Retry-After header in delta-seconds or HTTP-date
// form. Missing, malformed and past values give 0.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
