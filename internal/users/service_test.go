package users

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridianops/meridian/internal/shared"
)

type memoryUserRepo struct {
	users  map[int64]*User
	hashes map[int64]string
	nextID int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]*User), hashes: make(map[int64]string)}
}

func (m *memoryUserRepo) List(_ context.Context, limit, offset int) ([]User, error) {
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []User
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, *m.users[id])
	}
	return out, nil
}

func (m *memoryUserRepo) Count(_ context.Context) (int, error) {
	return len(m.users), nil
}

func (m *memoryUserRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (m *memoryUserRepo) Insert(_ context.Context, email, name, passwordHash string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return User{}, ErrDuplicateEmail
		}
	}
	m.nextID++
	u := &User{ID: m.nextID, Email: email, Name: name, IsActive: true}
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	return *u, nil
}

func (m *memoryUserRepo) Update(_ context.Context, id int64, email, name string) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	for otherID, other := range m.users {
		if otherID != id && other.Email == email {
			return User{}, ErrDuplicateEmail
		}
	}
	u.Email = email
	u.Name = name
	return *u, nil
}

func (m *memoryUserRepo) SetActive(_ context.Context, id int64, active bool) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsActive = active
	return *u, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	out := make([]string, len(a.logs))
	for i, l := range a.logs {
		out[i] = l.Action
	}
	return out
}

func TestCreateUserHashesAndNormalises(t *testing.T) {
	repo := newMemoryUserRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)

	user, err := svc.Create(context.Background(), 1, CreateInput{
		Email:    " Ops@Example.COM ",
		Name:     "  Dana Reyes ",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", user.Email)
	require.Equal(t, "Dana Reyes", user.Name)
	require.True(t, user.IsActive)

	hash := repo.hashes[user.ID]
	require.NotEqual(t, "s3cret-pass", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
	require.Equal(t, []string{"USER_CREATE"}, audit.actions())
}

func TestCreateUserValidations(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), 1, CreateInput{Email: "  ", Name: "Dana", Password: "longenough"})
	require.ErrorIs(t, err, ErrEmailRequired)

	_, err = svc.Create(context.Background(), 1, CreateInput{Email: "a@b.test", Name: " ", Password: "longenough"})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(context.Background(), 1, CreateInput{Email: "a@b.test", Name: "Dana", Password: "short"})
	require.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.Create(context.Background(), 1, CreateInput{Email: "a@b.test", Name: "Dana", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 1, CreateInput{Email: "A@B.test", Name: "Other", Password: "longenough"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUpdateUserProfile(t *testing.T) {
	repo := newMemoryUserRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)

	created, err := svc.Create(context.Background(), 1, CreateInput{Email: "a@b.test", Name: "Dana", Password: "longenough"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), 1, created.ID, UpdateInput{Email: "dana@b.test", Name: "Dana R."})
	require.NoError(t, err)
	require.Equal(t, "dana@b.test", updated.Email)
	require.Equal(t, "Dana R.", updated.Name)

	_, err = svc.Update(context.Background(), 1, 404, UpdateInput{Email: "x@b.test", Name: "X"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{"USER_CREATE", "USER_UPDATE"}, audit.actions())
}

func TestSetActiveLifecycle(t *testing.T) {
	repo := newMemoryUserRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)

	created, err := svc.Create(context.Background(), 1, CreateInput{Email: "a@b.test", Name: "Dana", Password: "longenough"})
	require.NoError(t, err)

	off, err := svc.SetActive(context.Background(), 1, created.ID, false)
	require.NoError(t, err)
	require.False(t, off.IsActive)

	on, err := svc.SetActive(context.Background(), 1, created.ID, true)
	require.NoError(t, err)
	require.True(t, on.IsActive)

	_, err = svc.SetActive(context.Background(), 1, 404, false)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{"USER_CREATE", "USER_DEACTIVATE", "USER_ACTIVATE"}, audit.actions())
}

func TestListPaginates(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, nil, nil)

	emails := []string{"a@t.test", "b@t.test", "c@t.test", "d@t.test", "e@t.test"}
	for _, email := range emails {
		_, err := svc.Create(context.Background(), 1, CreateInput{Email: email, Name: "User", Password: "longenough"})
		require.NoError(t, err)
	}

	page, pagination, err := svc.List(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "c@t.test", page[0].Email)
	require.Equal(t, "d@t.test", page[1].Email)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)
}
