package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/meridian/internal/hierarchy"
	jobmetrics "github.com/meridianops/meridian/internal/jobs"
)

// HierarchyIntegrityJob re-verifies that the stored role graph is acyclic.
// The write path already rejects cycle-forming edges, so a hit here means
// the table was changed outside the API.
type HierarchyIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewHierarchyIntegrityJob initialises the verification handler.
func NewHierarchyIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *HierarchyIntegrityJob {
	return &HierarchyIntegrityJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the graph verification.
func (j *HierarchyIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("hierarchy integrity: handler not configured")
	}

	tracker := j.metrics().Track(TaskHierarchyIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	logger.Info("starting hierarchy verification")

	edges, err := j.loadEdges(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load role graph", slog.Any("error", err))
		return resultErr
	}

	graph := hierarchy.BuildGraph(edges)
	if cycle := graph.FindCycle(); cycle != nil {
		j.metrics().AddIntegrityFailures(1)
		logger.Error("role hierarchy holds a cycle",
			slog.Any("path", cycle),
			slog.Int("edges", len(edges)),
		)
		resultErr = fmt.Errorf("hierarchy integrity: cycle through %d roles", len(cycle)-1)
		return resultErr
	}

	logger.Info("hierarchy verified",
		slog.Int("edges", len(edges)),
		slog.Int("roles", len(graph)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *HierarchyIntegrityJob) loadEdges(ctx context.Context) ([]hierarchy.Edge, error) {
	if j.Pool == nil {
		return nil, errors.New("hierarchy integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id, parent_role_id, child_role_id, inherit_permissions FROM role_hierarchy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []hierarchy.Edge
	for rows.Next() {
		var e hierarchy.Edge
		if err := rows.Scan(&e.ID, &e.ParentRoleID, &e.ChildRoleID, &e.InheritPermissions); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (j *HierarchyIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskHierarchyIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskHierarchyIntegrity))
}

func (j *HierarchyIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *HierarchyIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
