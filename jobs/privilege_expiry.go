package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridianops/meridian/internal/jobs"
	"github.com/meridianops/meridian/internal/shared"
)

// PrivilegeExpiryJob handles the notice scheduled for the instant a grant's
// window closes. It writes the expiry into the audit trail; a grant revoked
// before its window ended needs no notice.
type PrivilegeExpiryJob struct {
	Pool    *pgxpool.Pool
	Audit   *shared.AuditLogger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPrivilegeExpiryJob initialises the expiry notice handler.
func NewPrivilegeExpiryJob(pool *pgxpool.Pool, audit *shared.AuditLogger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PrivilegeExpiryJob {
	return &PrivilegeExpiryJob{
		Pool:    pool,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes one expiry notice.
func (j *PrivilegeExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("privilege expiry: handler not configured")
	}
	var payload PrivilegeExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	ref, err := uuid.Parse(payload.Ref)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPrivilegeExpiry)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("ref", ref.String()))

	grant, err := j.loadGrant(ctx, ref)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("expiry notice for unknown grant")
		return nil
	}
	if err != nil {
		resultErr = err
		logger.Error("load grant", slog.Any("error", err))
		return resultErr
	}

	now := j.now()
	if !grant.IsActive {
		logger.Info("grant already revoked, no notice needed")
		return nil
	}
	if now.Before(grant.ValidUntil) {
		logger.Info("grant still effective, skipping notice")
		return nil
	}

	if j.Audit != nil {
		err := j.Audit.Record(ctx, shared.AuditLog{
			ActorID:  0,
			Action:   "GRANT_EXPIRE",
			Entity:   "temporary_privilege",
			EntityID: ref.String(),
			Meta: map[string]any{
				"user_id": grant.UserID,
				"role_id": grant.RoleID,
			},
		})
		if err != nil {
			resultErr = err
			logger.Error("record expiry", slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("temporary privilege expired",
		slog.Int64("user_id", grant.UserID),
		slog.Int64("role_id", grant.RoleID),
	)
	return resultErr
}

type expiringGrant struct {
	UserID     int64
	RoleID     int64
	IsActive   bool
	ValidUntil time.Time
}

func (j *PrivilegeExpiryJob) loadGrant(ctx context.Context, ref uuid.UUID) (expiringGrant, error) {
	if j.Pool == nil {
		return expiringGrant{}, errors.New("privilege expiry: pool not configured")
	}
	var g expiringGrant
	err := j.Pool.QueryRow(ctx, `SELECT user_id, role_id, is_active, valid_until FROM temporary_privileges WHERE ref = $1`, ref).
		Scan(&g.UserID, &g.RoleID, &g.IsActive, &g.ValidUntil)
	return g, err
}

func (j *PrivilegeExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPrivilegeExpiry))
	}
	return slog.Default().With(slog.String("job", TaskPrivilegeExpiry))
}

func (j *PrivilegeExpiryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PrivilegeExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
