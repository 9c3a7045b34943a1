package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/creatorhub/copyscan/internal/models"
)

// NormalizeTokens splits recognized text into the canonical token set:
// NFKC-normalized, case-folded, split on anything that is not a letter or
// digit, de-duplicated and sorted.
func NormalizeTokens(texts ...string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{})
	for _, text := range texts {
		folded := fold.String(norm.NFKC.String(text))
		for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			seen[tok] = struct{}{}
		}
	}

	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// HTTPTextRecognizer sends frames to a remote OCR service.
//
// The service accepts a JPEG body and answers {"text": "..."} or
// {"lines": ["...", ...]}. A 429 response is surfaced as
// *models.RateLimitError so the caller can reschedule the whole scan.
type HTTPTextRecognizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPTextRecognizer(endpoint, apiKey string, timeout time.Duration) *HTTPTextRecognizer {
	return &HTTPTextRecognizer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type ocrResponse struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines"`
}

func (r *HTTPTextRecognizer) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	body, err := encodeJPEG(img, 90)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &models.RateLimitError{
			Service:    "ocr",
			RetryAfter: models.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	return NormalizeTokens(append(out.Lines, out.Text)...), nil
}

// NoopTextRecognizer is used when no OCR service is configured. Every frame
// yields an empty token set.
type NoopTextRecognizer struct{}

func (NoopTextRecognizer) Recognize(context.Context, image.Image) ([]string, error) {
	return nil, nil
}
