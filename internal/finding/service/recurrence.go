package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"conforma/internal/finding/models"
	pstrings "conforma/pkg/platform/strings"
)

// RecurrenceScanner is the read-only scan the detector runs: analyzed,
// non-archived findings created at or after the cutoff.
type RecurrenceScanner interface {
	ListAnalyzedSince(ctx context.Context, since time.Time) ([]*models.Finding, error)
}

// RecurrencePolicy bounds the scan. Lookback is how far back candidates are
// considered; Threshold is the minimum number of matched prior findings for a
// recurrent verdict.
type RecurrencePolicy struct {
	Lookback  time.Duration
	Threshold int
}

// DefaultRecurrencePolicy looks back one year and flags on a single prior
// match.
func DefaultRecurrencePolicy() RecurrencePolicy {
	return RecurrencePolicy{Lookback: 365 * 24 * time.Hour, Threshold: 1}
}

// RecurrenceDetector decides, at root-cause time, whether a finding is a
// repeat of earlier analyzed findings. A prior finding matches when it shares
// the category, the source origin id, and the normalized root-cause text.
// The scan never mutates the matched findings.
type RecurrenceDetector struct {
	scanner RecurrenceScanner
	policy  RecurrencePolicy
	tracer  trace.Tracer
}

func NewRecurrenceDetector(scanner RecurrenceScanner, policy RecurrencePolicy) *RecurrenceDetector {
	if policy.Threshold < 1 {
		policy.Threshold = 1
	}
	return &RecurrenceDetector{
		scanner: scanner,
		policy:  policy,
		tracer:  otel.Tracer("conforma/recurrence"),
	}
}

// Evaluate scans the lookback window and returns the verdict for the subject
// finding given the root cause about to be recorded on it. The subject itself
// is never counted as its own prior occurrence. OccurrenceCount is the total
// occurrences including the subject.
func (d *RecurrenceDetector) Evaluate(ctx context.Context, subject *models.Finding, rootCause string, now time.Time) (models.Recurrence, error) {
	ctx, span := d.tracer.Start(ctx, "recurrence.evaluate")
	defer span.End()

	since := now.Add(-d.policy.Lookback)
	candidates, err := d.scanner.ListAnalyzedSince(ctx, since)
	if err != nil {
		return models.Recurrence{}, err
	}

	key := matchKey(subject.Category, subject.Source.OriginID, rootCause)
	matched := models.Recurrence{}
	for _, c := range candidates {
		if c.ID == subject.ID {
			continue
		}
		if matchKey(c.Category, c.Source.OriginID, c.RootCauseAnalysis.RootCause) == key {
			matched.MatchedFindingIDs = append(matched.MatchedFindingIDs, c.ID)
		}
	}
	matched.IsRecurrent = len(matched.MatchedFindingIDs) >= d.policy.Threshold
	matched.OccurrenceCount = len(matched.MatchedFindingIDs) + 1
	return matched, nil
}

// matchKey joins the fields a prior finding must share, with the root-cause
// text canonicalized so cosmetic differences in wording do not defeat the
// match.
func matchKey(category, originID, rootCause string) string {
	return category + "\x00" + originID + "\x00" + pstrings.Canonicalize(rootCause)
}
