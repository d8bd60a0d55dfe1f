package feedback

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amankb/internal/config"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/telemetry"
)

// MaxCommentLength bounds stored comments, in bytes.
const MaxCommentLength = 2000

// Service records feedback and maintains the quality cache.
type Service struct {
	log     Log
	bounds  Bounds
	metrics *telemetry.Metrics
	now     func() time.Time

	// mu orders cache writes so a full recompute never interleaves with a
	// single-target update.
	mu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics counts recorded feedback and recompute runs.
func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a service over log.
func NewService(log Log, bounds Bounds, opts ...ServiceOption) *Service {
	s := &Service{
		log:    log,
		bounds: bounds.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BoundsFromConfig maps the feedback config section.
func BoundsFromConfig(cfg config.FeedbackConfig) Bounds {
	return Bounds{
		MinSamples:    cfg.MinSamples,
		MinMultiplier: cfg.MinMultiplier,
		MaxMultiplier: cfg.MaxMultiplier,
	}
}

// Bounds returns the effective parameters.
func (s *Service) Bounds() Bounds { return s.bounds }

// RecordFeedback appends a rating for a chunk or document and synchronously
// refreshes that target's cached quality. An invalid rating returns
// ERR_406_INVALID_RATING and writes nothing.
func (s *Service) RecordFeedback(ctx context.Context, targetID, rating, comment string) (*Record, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, kberrors.ValidationError("feedback target is required", nil)
	}
	r, signal, err := ParseRating(rating)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > MaxCommentLength {
		comment = strings.ToValidUTF8(comment[:MaxCommentLength], "")
	}

	rec := &Record{
		ID:        uuid.NewString(),
		TargetID:  targetID,
		Rating:    r,
		Signal:    signal,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	if err := s.log.Append(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.ObserveFeedback(string(r))

	if _, err := s.refresh(ctx, targetID); err != nil {
		// the record is durable; the next full recompute repairs the cache
		slog.Warn("quality_refresh_failed",
			slog.String("target", targetID),
			slog.String("error", err.Error()))
	}

	slog.Debug("feedback_recorded",
		slog.String("id", rec.ID),
		slog.String("target", targetID),
		slog.String("rating", string(r)))
	return rec, nil
}

// ComputeQuality derives targetID's multiplier from its full history. The
// result depends only on the recorded signals.
func (s *Service) ComputeQuality(ctx context.Context, targetID string) (float64, error) {
	q, err := s.Quality(ctx, targetID)
	if err != nil {
		return 0, err
	}
	return q.Multiplier, nil
}

// Quality computes targetID's multiplier with its sample count without
// touching the cache.
func (s *Service) Quality(ctx context.Context, targetID string) (Quality, error) {
	sum, err := s.log.Summarize(ctx, targetID)
	if err != nil {
		return Quality{}, err
	}
	return s.quality(sum), nil
}

func (s *Service) quality(sum Summary) Quality {
	return Quality{
		TargetID:   sum.TargetID,
		Multiplier: s.bounds.Multiplier(sum),
		Samples:    sum.Samples,
		ComputedAt: s.now(),
	}
}

func (s *Service) refresh(ctx context.Context, targetID string) (Quality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.Quality(ctx, targetID)
	if err != nil {
		return q, err
	}
	return q, s.log.PutQuality(ctx, q)
}

// QualityFor returns the cached multiplier of each id, 1.0 when none is
// cached.
func (s *Service) QualityFor(ctx context.Context, ids []string) (map[string]float64, error) {
	cached, err := s.log.Qualities(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if q, ok := cached[id]; ok {
			out[id] = q.Multiplier
		} else {
			out[id] = 1.0
		}
	}
	return out, nil
}

// History returns the newest records of targetID.
func (s *Service) History(ctx context.Context, targetID string, limit int) ([]*Record, error) {
	return s.log.History(ctx, targetID, limit)
}

// RecomputeAll rebuilds the whole cache from the log and returns the number
// of targets written.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sums, err := s.log.SummarizeAll(ctx)
	if err != nil {
		return 0, err
	}
	qs := make([]Quality, len(sums))
	for i, sum := range sums {
		qs[i] = s.quality(sum)
	}
	if err := s.log.ReplaceQualities(ctx, qs); err != nil {
		return 0, err
	}
	s.metrics.ObserveRecompute()

	slog.Info("quality_recomputed",
		slog.Int("targets", len(qs)),
		slog.Duration("took", time.Since(start)))
	return len(qs), nil
}
