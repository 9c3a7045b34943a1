package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scheduler"
)

// JobKind is the scheduler kind of scan jobs.
const JobKind = "scan"

// ValidateRequest checks a scan request before it is queued or run.
func ValidateRequest(req models.ScanRequest) error {
	if strings.TrimSpace(req.OriginalRef) == "" {
		return errors.New("original_ref is required")
	}
	u, err := url.Parse(req.CandidateURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("candidate_url %q is not an http(s) URL", req.CandidateURL)
	}
	for _, iv := range req.Intervals {
		if !(iv > 0) {
			return fmt.Errorf("interval %v must be positive", iv)
		}
	}
	return nil
}

// HandleJob runs a queued scan. Unavailable media completes the job with an
// "unavailable" result; other failures are returned for retry.
func (e *Engine) HandleJob(ctx context.Context, job scheduler.Job) (json.RawMessage, error) {
	var req models.ScanRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return nil, scheduler.Permanent(fmt.Errorf("decode scan request: %w", err))
	}
	if err := ValidateRequest(req); err != nil {
		return nil, scheduler.Permanent(err)
	}

	m, err := e.Scan(ctx, req)
	if errors.Is(err, ErrUnavailable) {
		return json.Marshal(models.ScanResult{Status: models.ScanStatusUnavailable, Reason: err.Error()})
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.ScanResult{Status: models.ScanStatusMatched, MatchID: &m.ID})
}
