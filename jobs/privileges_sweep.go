package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridianops/meridian/internal/jobs"
	"github.com/meridianops/meridian/internal/shared"
)

// PrivilegesSweepJob reports on the temporary privilege ledger. Expiry is
// derived from valid_until, so the sweep never mutates grant rows; it only
// surfaces how many are effective and how many lapsed without an explicit
// revocation.
type PrivilegesSweepJob struct {
	Pool    *pgxpool.Pool
	Audit   *shared.AuditLogger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPrivilegesSweepJob initialises the sweep handler.
func NewPrivilegesSweepJob(pool *pgxpool.Pool, audit *shared.AuditLogger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PrivilegesSweepJob {
	return &PrivilegesSweepJob{
		Pool:    pool,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type sweepStats struct {
	Active      int64
	Lapsed      int64
	OldestLapse time.Time
}

// Handle executes the ledger sweep.
func (j *PrivilegesSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("privileges sweep: handler not configured")
	}

	tracker := j.metrics().Track(TaskPrivilegesSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	logger := j.logger()
	logger.Info("starting privilege sweep")

	stats, err := j.sweep(ctx, now)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}

	j.metrics().SetActiveGrants(stats.Active)
	j.metrics().SetLapsedUnrevoked(stats.Lapsed)

	if stats.Lapsed > 0 {
		logger.Warn("lapsed grants awaiting revocation",
			slog.Int64("count", stats.Lapsed),
			slog.Duration("oldest_lapse", now.Sub(stats.OldestLapse)),
		)
		if j.Audit != nil {
			err := j.Audit.Record(ctx, shared.AuditLog{
				ActorID: 0,
				Action:  "GRANT_SWEEP",
				Entity:  "temporary_privilege",
				Meta: map[string]any{
					"active":       stats.Active,
					"lapsed":       stats.Lapsed,
					"oldest_lapse": stats.OldestLapse.Format(time.RFC3339),
				},
			})
			if err != nil {
				resultErr = err
				logger.Error("record sweep summary", slog.Any("error", err))
				return resultErr
			}
		}
	}
	logger.Info("completed privilege sweep",
		slog.Int64("active", stats.Active),
		slog.Int64("lapsed", stats.Lapsed),
	)
	return resultErr
}

func (j *PrivilegesSweepJob) sweep(ctx context.Context, now time.Time) (sweepStats, error) {
	if j.Pool == nil {
		return sweepStats{}, errors.New("privileges sweep: pool not configured")
	}
	var stats sweepStats
	var oldest pgtype.Timestamptz
	err := j.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE valid_until > $1),
			COUNT(*) FILTER (WHERE valid_until <= $1),
			MIN(valid_until) FILTER (WHERE valid_until <= $1)
		FROM temporary_privileges
		WHERE is_active`, now).Scan(&stats.Active, &stats.Lapsed, &oldest)
	if err != nil {
		return sweepStats{}, err
	}
	if oldest.Valid {
		stats.OldestLapse = oldest.Time
	}
	return stats, nil
}

func (j *PrivilegesSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPrivilegesSweep))
	}
	return slog.Default().With(slog.String("job", TaskPrivilegesSweep))
}

func (j *PrivilegesSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PrivilegesSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
