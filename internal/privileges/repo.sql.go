package privileges

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const grantColumns = `tp.id, tp.ref, tp.user_id, tp.role_id, r.name, tp.reason,
	tp.granted_by, tp.granted_at, tp.valid_until, tp.is_active, tp.revoked_by, tp.revoked_at`

// Repository provides PostgreSQL backed persistence for temporary privileges.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new grant and returns it with ID and reference set.
func (r *Repository) Insert(ctx context.Context, grant TemporaryPrivilege) (TemporaryPrivilege, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO temporary_privileges (user_id, role_id, reason, granted_by, granted_at, valid_until, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING id, ref`,
		grant.UserID, grant.RoleID, grant.Reason, grant.GrantedBy, grant.GrantedAt, grant.ValidUntil,
	).Scan(&grant.ID, &grant.Ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			if strings.Contains(pgErr.ConstraintName, "role_id") {
				return TemporaryPrivilege{}, ErrRoleNotFound
			}
			return TemporaryPrivilege{}, ErrUserNotFound
		}
		return TemporaryPrivilege{}, err
	}
	return grant, nil
}

// GetByRef fetches a grant with its role name by reference.
func (r *Repository) GetByRef(ctx context.Context, ref uuid.UUID) (TemporaryPrivilege, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+grantColumns+`
		 FROM temporary_privileges tp
		 JOIN roles r ON r.id = tp.role_id
		 WHERE tp.ref = $1`,
		ref)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TemporaryPrivilege{}, ErrNotFound
		}
		return TemporaryPrivilege{}, err
	}
	return grant, nil
}

// ListForUser returns a user's grants, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]TemporaryPrivilege, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+`
		 FROM temporary_privileges tp
		 JOIN roles r ON r.id = tp.role_id
		 WHERE tp.user_id = $1
		 ORDER BY tp.granted_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// Revoke deactivates an active grant. It distinguishes a grant that was
// already revoked from one that never existed.
func (r *Repository) Revoke(ctx context.Context, ref uuid.UUID, revokedBy int64, revokedAt time.Time) (TemporaryPrivilege, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE temporary_privileges tp
		 SET is_active = FALSE, revoked_by = $2, revoked_at = $3
		 FROM roles r
		 WHERE tp.ref = $1 AND tp.is_active AND r.id = tp.role_id
		 RETURNING `+grantColumns,
		ref, revokedBy, revokedAt)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := r.pool.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM temporary_privileges WHERE ref=$1)`, ref).Scan(&exists); err != nil {
				return TemporaryPrivilege{}, err
			}
			if exists {
				return TemporaryPrivilege{}, ErrAlreadyRevoked
			}
			return TemporaryPrivilege{}, ErrNotFound
		}
		return TemporaryPrivilege{}, err
	}
	return grant, nil
}

// ListLapsed returns grants still flagged active whose window has passed.
func (r *Repository) ListLapsed(ctx context.Context, asOf time.Time) ([]TemporaryPrivilege, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+`
		 FROM temporary_privileges tp
		 JOIN roles r ON r.id = tp.role_id
		 WHERE tp.is_active AND tp.valid_until <= $1
		 ORDER BY tp.valid_until`,
		asOf)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ActiveRoleIDs returns the distinct roles conferred by grants effective at
// the given instant.
func (r *Repository) ActiveRoleIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT role_id FROM temporary_privileges
		 WHERE user_id = $1 AND is_active AND valid_until > $2
		 ORDER BY role_id`,
		userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// UserExists reports whether the user ID is known.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists)
	return exists, err
}

// RoleExists reports whether the role ID is known.
func (r *Repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE id=$1)`, roleID).Scan(&exists)
	return exists, err
}

func scanGrant(row pgx.Row) (TemporaryPrivilege, error) {
	var g TemporaryPrivilege
	err := row.Scan(&g.ID, &g.Ref, &g.UserID, &g.RoleID, &g.RoleName, &g.Reason,
		&g.GrantedBy, &g.GrantedAt, &g.ValidUntil, &g.IsActive, &g.RevokedBy, &g.RevokedAt)
	if err != nil {
		return TemporaryPrivilege{}, err
	}
	return g, nil
}

func scanGrants(rows pgx.Rows) ([]TemporaryPrivilege, error) {
	defer rows.Close()
	var grants []TemporaryPrivilege
	for rows.Next() {
		var g TemporaryPrivilege
		if err := rows.Scan(&g.ID, &g.Ref, &g.UserID, &g.RoleID, &g.RoleName, &g.Reason,
			&g.GrantedBy, &g.GrantedAt, &g.ValidUntil, &g.IsActive, &g.RevokedBy, &g.RevokedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
