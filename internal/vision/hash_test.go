package vision_test

import (
	"strings"
	"testing"

	"github.com/creatorhub/copyscan/internal/matching"
	"github.com/creatorhub/copyscan/internal/vision"
)

func TestDifferenceHasherFormat(t *testing.T) {
	h, err := vision.DifferenceHasher{}.Hash(gradient(64, 48, false))
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if len(h) != vision.HashBits {
		t.Fatalf("expected %d chars, got %d", vision.HashBits, len(h))
	}
	if strings.Trim(h, "01") != "" {
		t.Fatalf("hash contains non-binary characters: %q", h)
	}
}

func TestDifferenceHasherIdenticalFrames(t *testing.T) {
	hasher := vision.DifferenceHasher{}
	a, err := hasher.Hash(gradient(64, 48, false))
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	b, err := hasher.Hash(gradient(64, 48, false))
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if got := matching.HashScore(a, b); got != 1 {
		t.Fatalf("expected identical frames to score 1, got %v", got)
	}
}

func TestDifferenceHasherDistinguishesFrames(t *testing.T) {
	hasher := vision.DifferenceHasher{}
	a, _ := hasher.Hash(gradient(64, 48, false))
	b, _ := hasher.Hash(gradient(64, 48, true))
	if got := matching.HashScore(a, b); got >= 0.5 {
		t.Fatalf("expected mirrored gradients to differ, score %v", got)
	}
}

func TestDifferenceHasherNilImage(t *testing.T) {
	if _, err := (vision.DifferenceHasher{}).Hash(nil); err == nil {
		t.Fatal("expected error for nil image")
	}
}
