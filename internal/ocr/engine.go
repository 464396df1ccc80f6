package ocr

import (
	"context"
)

// Hints steer an engine. Engines ignore hints they do not support.
type Hints struct {
	Languages []string
	MIMEType  string
}

// Transcript is the text an engine read from one image. Confidence is the
// engine's own mean score in [0,1], or nil when it reports none.
type Transcript struct {
	Text       string
	Confidence *float64
}

// Engine recognizes text in a single page image. Implementations must be
// safe for concurrent use. Errors are returned raw; retryable ones should
// satisfy common.IsTransient.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, hints Hints) (Transcript, error)
}

func meanConfidence(scores []float64) *float64 {
	var sum float64
	n := 0
	for _, s := range scores {
		if s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}
