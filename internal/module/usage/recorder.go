package usage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder appends usage records.
type Recorder struct {
	repo   Repository
	logger *zap.Logger
}

// NewRecorder creates a new usage recorder.
func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Attempt describes one completed search attempt.
type Attempt struct {
	AccountID      string
	Query          string
	Engines        []string
	ResultsCount   int
	Status         Status
	ResponseTimeMs int64
	CreditsCharged int64
}

// Record appends one immutable usage row for the attempt.
func (r *Recorder) Record(ctx context.Context, a Attempt) error {
	label := "default"
	if len(a.Engines) > 0 {
		label = strings.Join(a.Engines, ",")
	}

	rec := &Record{
		ID:             uuid.New(),
		AccountID:      a.AccountID,
		EngineLabel:    label,
		Engines:        a.Engines,
		Query:          a.Query,
		ResultsCount:   a.ResultsCount,
		Status:         a.Status,
		ResponseTimeMs: a.ResponseTimeMs,
		CreditsCharged: a.CreditsCharged,
		CreatedAt:      time.Now().UTC(),
	}
	return r.repo.Create(ctx, rec)
}

// ListRecent returns the most recent records for an account.
func (r *Recorder) ListRecent(ctx context.Context, accountID string, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.repo.ListRecent(ctx, accountID, limit)
}

// Stats aggregates an account's usage over a period.
func (r *Recorder) Stats(ctx context.Context, accountID string, start, end time.Time) (*Stats, error) {
	return r.repo.GetStats(ctx, accountID, start, end)
}

// RunRetentionSweep periodically prunes records older than retention. It
// returns when ctx is canceled.
func (r *Recorder) RunRetentionSweep(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			deleted, err := r.repo.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				r.logger.Error("usage retention sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				r.logger.Info("pruned usage records",
					zap.Int64("deleted", deleted),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}
}
