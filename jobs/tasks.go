package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridianops/meridian/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPrivilegesSweep reports on the temporary privilege ledger.
	TaskPrivilegesSweep = "privileges:sweep"
	// TaskHierarchyIntegrity verifies the stored role graph is acyclic.
	TaskHierarchyIntegrity = "hierarchy:integrity"
	// TaskPrivilegeExpiry fires when a single grant's window closes.
	TaskPrivilegeExpiry = "privileges:expiry"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PrivilegeExpiryPayload identifies the grant whose window closed.
type PrivilegeExpiryPayload struct {
	Ref string `json:"ref"`
}

// NewPrivilegesSweepTask constructs the periodic ledger sweep task.
func NewPrivilegesSweepTask() *asynq.Task {
	return asynq.NewTask(TaskPrivilegesSweep, nil)
}

// NewHierarchyIntegrityTask constructs the periodic graph verification task.
func NewHierarchyIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskHierarchyIntegrity, nil)
}

// NewPrivilegeExpiryTask constructs an expiry notice for one grant.
func NewPrivilegeExpiryTask(payload PrivilegeExpiryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrivilegeExpiry, data), nil
}
