// Package recognition turns gallery search results into a single identity for a
// capture, under a deadline and an explicit tie-break policy.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/metrics"
)

// ErrNoMatch means no frame produced a gallery match before frames ran out or the
// deadline passed. Callers should ask the student to try again.
var ErrNoMatch = errors.New("face not recognized")

// Policy selects one identity when several gallery entries match a frame.
type Policy string

const (
	// PolicyFirstMatch takes the first candidate at or above the threshold, in the
	// order the gallery enumerates them.
	PolicyFirstMatch Policy = "first-match"
	// PolicyBestMatch takes the candidate with the highest similarity at or above the
	// threshold. Equal scores keep enumeration order.
	PolicyBestMatch Policy = "best-match"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFirstMatch, PolicyBestMatch:
		return Policy(s), nil
	case "":
		return PolicyFirstMatch, nil
	}
	return "", fmt.Errorf("unknown match policy %q", s)
}

// Gallery is the face service surface the recognizer needs.
type Gallery interface {
	Search(ctx context.Context, imageURL string, topK int, threshold float64) (*faceclient.SearchResult, error)
	Enroll(ctx context.Context, userID, imageURL, name string, metadata map[string]any) (*faceclient.EnrollResult, error)
}

// Match is the identity chosen for a capture.
type Match struct {
	StudentID  string  `json:"student_id"`
	Similarity float64 `json:"similarity"`
	Frame      string  `json:"frame"`
}

// Options tune a Recognizer.
type Options struct {
	Policy    Policy
	Threshold float64
	Timeout   time.Duration
	TopK      int
}

// Recognizer identifies students from captured frames.
type Recognizer struct {
	gallery Gallery
	opts    Options
}

// New creates a recognizer with defaults for zero options.
func New(gallery Gallery, opts Options) *Recognizer {
	if opts.Policy == "" {
		opts.Policy = PolicyFirstMatch
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Recognizer{gallery: gallery, opts: opts}
}

// Identify searches each frame in order until one yields a match. The whole attempt is
// bounded by the configured timeout; exhausting frames or the deadline gives
// ErrNoMatch. If every frame failed with a service error, the last error is returned.
func (r *Recognizer) Identify(ctx context.Context, frames []string) (Match, error) {
	start := time.Now()
	defer func() { metrics.RecognitionDuration.Observe(time.Since(start).Seconds()) }()

	if len(frames) == 0 {
		return Match{}, fmt.Errorf("%w: no frames captured", ErrNoMatch)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var lastErr error
	searched := 0
	for _, frame := range frames {
		if ctx.Err() != nil {
			break
		}
		res, err := r.gallery.Search(ctx, frame, r.opts.TopK, r.opts.Threshold)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			lastErr = err
			continue
		}
		searched++
		if m, ok := r.pick(res.Matches); ok {
			m.Frame = frame
			metrics.RecognitionAttempts.WithLabelValues("match").Inc()
			return m, nil
		}
	}

	if ctx.Err() != nil {
		metrics.RecognitionAttempts.WithLabelValues("timeout").Inc()
		return Match{}, fmt.Errorf("%w: gave up after %s", ErrNoMatch, r.opts.Timeout)
	}
	if searched == 0 && lastErr != nil {
		metrics.RecognitionAttempts.WithLabelValues("error").Inc()
		return Match{}, lastErr
	}
	metrics.RecognitionAttempts.WithLabelValues("miss").Inc()
	return Match{}, ErrNoMatch
}

func (r *Recognizer) pick(candidates []faceclient.SearchMatch) (Match, bool) {
	var best *faceclient.SearchMatch
	for i := range candidates {
		c := &candidates[i]
		if c.UserID == "" || c.Similarity < r.opts.Threshold {
			continue
		}
		if r.opts.Policy == PolicyFirstMatch {
			return Match{StudentID: c.UserID, Similarity: c.Similarity}, true
		}
		if best == nil || c.Similarity > best.Similarity {
			best = c
		}
	}
	if best == nil {
		return Match{}, false
	}
	return Match{StudentID: best.UserID, Similarity: best.Similarity}, true
}

// Enroll adds each image to the gallery under studentID and returns how many were
// accepted. It fails only when none were.
func (r *Recognizer) Enroll(ctx context.Context, studentID, name string, images []string) (int, error) {
	if len(images) == 0 {
		return 0, errors.New("no images to enroll")
	}
	enrolled := 0
	var lastErr error
	for _, img := range images {
		res, err := r.gallery.Enroll(ctx, studentID, img, name, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if !res.Success {
			lastErr = fmt.Errorf("enroll rejected: %s", res.Message)
			continue
		}
		enrolled++
	}
	if enrolled == 0 {
		return 0, fmt.Errorf("enroll %s: %w", studentID, lastErr)
	}
	return enrolled, nil
}
