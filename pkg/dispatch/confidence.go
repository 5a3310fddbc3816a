package dispatch

import (
	"time"

	"github.com/zen-systems/quorum/pkg/schema"
)

// Confidence heuristic constants, kept in one place so the bands stay
// easy to audit against the scoring doc below.
const (
	confidenceBase = 0.8
	confidenceMin  = 0.1
	confidenceMax  = 1.0

	longTextChars  = 100
	shortTextChars = 20

	normalLatencyMin = 100 * time.Millisecond
	normalLatencyMax = 2000 * time.Millisecond
	slowLatency      = 5000 * time.Millisecond
)

// deriveConfidence scores one response at dispatch time. Downstream
// consumers never recompute it.
//
// Base 0.8; +0.1 above 100 chars, -0.1 below 20; +0.05 for a natural
// stop, -0.05 for a truncated or filtered finish; +0.05 for latency in
// the normal band, -0.1 beyond the slow threshold; clamped to [0.1, 1.0].
func deriveConfidence(text string, finish schema.FinishReason, latency time.Duration) float64 {
	confidence := confidenceBase

	if n := len(text); n > longTextChars {
		confidence += 0.1
	} else if n < shortTextChars {
		confidence -= 0.1
	}

	switch finish {
	case schema.FinishStop:
		confidence += 0.05
	case schema.FinishLength, schema.FinishFiltered:
		confidence -= 0.05
	}

	if latency >= normalLatencyMin && latency <= normalLatencyMax {
		confidence += 0.05
	} else if latency > slowLatency {
		confidence -= 0.1
	}

	if confidence < confidenceMin {
		return confidenceMin
	}
	if confidence > confidenceMax {
		return confidenceMax
	}
	return confidence
}
