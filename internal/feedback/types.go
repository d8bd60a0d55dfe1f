// Package feedback records user ratings of search results in an append-only
// log and derives a bounded quality multiplier per chunk or document from
// them.
package feedback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// Rating is a normalized rating label.
type Rating string

const (
	RatingHelpful    Rating = "helpful"
	RatingNotHelpful Rating = "not_helpful"
	RatingIncorrect  Rating = "incorrect"
)

// scaleSignals maps the 1..5 scale onto [-1, 1].
var scaleSignals = [...]float64{-1, -0.5, 0, 0.5, 1}

// ParseRating validates a rating and returns its canonical form and signal.
// Labels are case-insensitive and accept "not-helpful" and "not helpful".
// Numeric ratings must be an integer from 1 to 5.
func ParseRating(s string) (Rating, float64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)

	switch Rating(v) {
	case RatingHelpful:
		return RatingHelpful, 1, nil
	case RatingNotHelpful:
		return RatingNotHelpful, -1, nil
	case RatingIncorrect:
		return RatingIncorrect, -1, nil
	}

	if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 5 {
		return Rating(v), scaleSignals[n-1], nil
	}
	return "", 0, kberrors.New(kberrors.ErrCodeInvalidRating, fmt.Sprintf("invalid rating %q", s), nil).
		WithSuggestion("Use helpful, not_helpful, incorrect, or a number from 1 to 5")
}

// Record is one appended rating.
type Record struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id"`
	Rating    Rating    `json:"rating"`
	Signal    float64   `json:"signal"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Quality is the cached multiplier of one target.
type Quality struct {
	TargetID   string    `json:"target_id"`
	Multiplier float64   `json:"multiplier"`
	Samples    int       `json:"samples"`
	ComputedAt time.Time `json:"computed_at"`
}

// Summary aggregates a target's history.
type Summary struct {
	TargetID string
	Samples  int
	Mean     float64
}

// Log persists feedback records and the derived quality cache.
type Log interface {
	// Append adds a record. Records are never updated or deleted.
	Append(ctx context.Context, r *Record) error

	// Summarize aggregates the history of one target.
	Summarize(ctx context.Context, targetID string) (Summary, error)

	// SummarizeAll aggregates every target with at least one record.
	SummarizeAll(ctx context.Context) ([]Summary, error)

	// History returns the newest records of a target, newest first.
	History(ctx context.Context, targetID string, limit int) ([]*Record, error)

	PutQuality(ctx context.Context, q Quality) error

	// ReplaceQualities swaps the whole cache for qs in one transaction.
	ReplaceQualities(ctx context.Context, qs []Quality) error

	// Qualities returns cached entries for ids; missing ids are absent.
	Qualities(ctx context.Context, ids []string) (map[string]Quality, error)
}
