package privileges

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridianops/meridian/internal/shared"
)

type memoryGrantRepo struct {
	grants map[uuid.UUID]*TemporaryPrivilege
	order  []uuid.UUID
	users  map[int64]struct{}
	roles  map[int64]struct{}
	nextID int64
}

func newMemoryGrantRepo() *memoryGrantRepo {
	return &memoryGrantRepo{
		grants: make(map[uuid.UUID]*TemporaryPrivilege),
		users:  make(map[int64]struct{}),
		roles:  make(map[int64]struct{}),
	}
}

func (m *memoryGrantRepo) Insert(ctx context.Context, grant TemporaryPrivilege) (TemporaryPrivilege, error) {
	m.nextID++
	grant.ID = m.nextID
	grant.Ref = uuid.New()
	stored := grant
	m.grants[grant.Ref] = &stored
	m.order = append(m.order, grant.Ref)
	return grant, nil
}

func (m *memoryGrantRepo) GetByRef(ctx context.Context, ref uuid.UUID) (TemporaryPrivilege, error) {
	grant, ok := m.grants[ref]
	if !ok {
		return TemporaryPrivilege{}, ErrNotFound
	}
	return *grant, nil
}

func (m *memoryGrantRepo) ListForUser(ctx context.Context, userID int64) ([]TemporaryPrivilege, error) {
	var out []TemporaryPrivilege
	for i := len(m.order) - 1; i >= 0; i-- {
		if g := m.grants[m.order[i]]; g.UserID == userID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memoryGrantRepo) Revoke(ctx context.Context, ref uuid.UUID, revokedBy int64, revokedAt time.Time) (TemporaryPrivilege, error) {
	grant, ok := m.grants[ref]
	if !ok {
		return TemporaryPrivilege{}, ErrNotFound
	}
	if !grant.IsActive {
		return TemporaryPrivilege{}, ErrAlreadyRevoked
	}
	grant.IsActive = false
	grant.RevokedBy = &revokedBy
	grant.RevokedAt = &revokedAt
	return *grant, nil
}

func (m *memoryGrantRepo) ListLapsed(ctx context.Context, asOf time.Time) ([]TemporaryPrivilege, error) {
	var out []TemporaryPrivilege
	for _, ref := range m.order {
		if g := m.grants[ref]; g.IsActive && !g.ValidUntil.After(asOf) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memoryGrantRepo) ActiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, ref := range m.order {
		g := m.grants[ref]
		if g.UserID != userID || !g.IsActive || !g.ValidUntil.After(at) {
			continue
		}
		if _, ok := seen[g.RoleID]; ok {
			continue
		}
		seen[g.RoleID] = struct{}{}
		ids = append(ids, g.RoleID)
	}
	return ids, nil
}

func (m *memoryGrantRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := m.users[userID]
	return ok, nil
}

func (m *memoryGrantRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := m.roles[roleID]
	return ok, nil
}

type auditRec struct {
	actions []string
}

func (a *auditRec) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type notifierRec struct {
	refs []uuid.UUID
	ats  []time.Time
}

func (n *notifierRec) ScheduleExpiryNotice(ctx context.Context, ref uuid.UUID, at time.Time) error {
	n.refs = append(n.refs, ref)
	n.ats = append(n.ats, at)
	return nil
}

var testLimits = Limits{MinDuration: time.Hour, MaxDuration: 168 * time.Hour}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestGrantValidations(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.users[7] = struct{}{}
	repo.roles[3] = struct{}{}
	svc := NewService(repo, nil, nil, nil, testLimits, nil)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "  ", Duration: 2 * time.Hour})
	require.ErrorIs(t, err, ErrReasonRequired)

	_, err = svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "oncall", Duration: 30 * time.Minute})
	require.ErrorIs(t, err, ErrDurationOutOfRange)

	_, err = svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "oncall", Duration: 169 * time.Hour})
	require.ErrorIs(t, err, ErrDurationOutOfRange)

	_, err = svc.Grant(ctx, 1, GrantInput{UserID: 99, RoleID: 3, Reason: "oncall", Duration: 2 * time.Hour})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 99, Reason: "oncall", Duration: 2 * time.Hour})
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestGrantWindowAndEffectiveRoles(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newMemoryGrantRepo()
	repo.users[7] = struct{}{}
	repo.roles[3] = struct{}{}
	audit := &auditRec{}
	notifier := &notifierRec{}
	svc := NewService(repo, audit, notifier, nil, testLimits, nil)
	svc.now = fixedClock(start)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "incident escalation", Duration: 2 * time.Hour})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, grant.Ref)
	require.True(t, grant.ValidUntil.Equal(start.Add(2*time.Hour)))
	require.Equal(t, int64(1), grant.GrantedBy)

	ids, err := svc.EffectiveRoleIDs(ctx, 7, start.Add(2*time.Hour-time.Second))
	require.NoError(t, err)
	require.Equal(t, []int64{3}, ids)

	ids, err = svc.EffectiveRoleIDs(ctx, 7, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, ids)

	require.Equal(t, []string{"GRANT_CREATE"}, audit.actions)
	require.Len(t, notifier.refs, 1)
	require.True(t, notifier.ats[0].Equal(grant.ValidUntil))
}

func TestRevokeOnceOnly(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newMemoryGrantRepo()
	repo.users[7] = struct{}{}
	repo.roles[3] = struct{}{}
	audit := &auditRec{}
	svc := NewService(repo, audit, nil, nil, testLimits, nil)
	svc.now = fixedClock(start)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "oncall", Duration: 4 * time.Hour})
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, 2, grant.Ref)
	require.NoError(t, err)
	require.False(t, revoked.IsActive)
	require.NotNil(t, revoked.RevokedBy)
	require.Equal(t, int64(2), *revoked.RevokedBy)
	require.Equal(t, StatusRevoked, revoked.StatusLabel(start))

	_, err = svc.Revoke(ctx, 2, grant.Ref)
	require.ErrorIs(t, err, ErrAlreadyRevoked)
	_, err = svc.Revoke(ctx, 2, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	var revokes int
	for _, action := range audit.actions {
		if action == "GRANT_REVOKE" {
			revokes++
		}
	}
	require.Equal(t, 1, revokes)

	ids, err := svc.EffectiveRoleIDs(ctx, 7, start.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRevokeAfterExpiryStillRecorded(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newMemoryGrantRepo()
	repo.users[7] = struct{}{}
	repo.roles[3] = struct{}{}
	svc := NewService(repo, nil, nil, nil, testLimits, nil)
	svc.now = fixedClock(start)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "oncall", Duration: time.Hour})
	require.NoError(t, err)

	svc.now = fixedClock(start.Add(3 * time.Hour))
	revoked, err := svc.Revoke(ctx, 2, grant.Ref)
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, revoked.StatusLabel(svc.now()))
}

func TestListLapsedReportsOverdueGrants(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	repo := newMemoryGrantRepo()
	repo.users[7] = struct{}{}
	repo.roles[3] = struct{}{}
	svc := NewService(repo, nil, nil, nil, testLimits, nil)
	svc.now = fixedClock(start)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, 1, GrantInput{UserID: 7, RoleID: 3, Reason: "oncall", Duration: time.Hour})
	require.NoError(t, err)

	lapsed, err := svc.ListLapsed(ctx, start.Add(30*time.Minute))
	require.NoError(t, err)
	require.Empty(t, lapsed)

	lapsed, err = svc.ListLapsed(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	require.Equal(t, grant.Ref, lapsed[0].Ref)

	_, err = svc.Revoke(ctx, 1, grant.Ref)
	require.NoError(t, err)
	lapsed, err = svc.ListLapsed(ctx, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, lapsed)
}

func TestListForUserRequiresKnownUser(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc := NewService(repo, nil, nil, nil, testLimits, nil)

	_, err := svc.ListForUser(context.Background(), 42)
	require.ErrorIs(t, err, ErrUserNotFound)
}
