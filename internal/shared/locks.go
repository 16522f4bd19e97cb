package shared

// HierarchyLockID is the advisory lock identifier serialising writers of the
// role hierarchy graph. Taken with pg_advisory_xact_lock so concurrent edge
// inserts cannot weave a cycle past each other's validation.
const HierarchyLockID int64 = 7421001
