package hierarchy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianops/meridian/internal/platform/db"
	"github.com/meridianops/meridian/internal/shared"
)

const edgeColumns = `id, parent_role_id, child_role_id, inherit_permissions, created_by, created_at`

// Repository provides PostgreSQL backed persistence for hierarchy edges.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithGraphTx wraps fn in a repeatable-read transaction. Callers take the
// graph lock first so concurrent writers validate one at a time.
func (r *Repository) WithGraphTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetEdge fetches a single edge by ID.
func (r *Repository) GetEdge(ctx context.Context, id int64) (Edge, error) {
	var e Edge
	err := r.pool.QueryRow(ctx,
		`SELECT `+edgeColumns+` FROM role_hierarchy WHERE id=$1`, id,
	).Scan(&e.ID, &e.ParentRoleID, &e.ChildRoleID, &e.InheritPermissions, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Edge{}, ErrEdgeNotFound
		}
		return Edge{}, err
	}
	return e, nil
}

// ListEdges returns every edge ordered by ID.
func (r *Repository) ListEdges(ctx context.Context) ([]Edge, error) {
	return listEdges(ctx, r.pool)
}

// EdgesFrom returns edges whose parent is the given role.
func (r *Repository) EdgesFrom(ctx context.Context, parentRoleID int64) ([]Edge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+edgeColumns+` FROM role_hierarchy WHERE parent_role_id=$1 ORDER BY id`,
		parentRoleID)
	if err != nil {
		return nil, err
	}
	return scanEdges(rows)
}

// EdgesTo returns edges whose child is the given role.
func (r *Repository) EdgesTo(ctx context.Context, childRoleID int64) ([]Edge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+edgeColumns+` FROM role_hierarchy WHERE child_role_id=$1 ORDER BY id`,
		childRoleID)
	if err != nil {
		return nil, err
	}
	return scanEdges(rows)
}

// RoleExists reports whether the role ID is known.
func (r *Repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	return roleExists(ctx, r.pool, roleID)
}

// RolePermissions returns the direct permission names of each given role.
func (r *Repository) RolePermissions(ctx context.Context, roleIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT rp.role_id, p.name
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ANY($1)`,
		roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		var name string
		if err := rows.Scan(&roleID, &name); err != nil {
			return nil, err
		}
		out[roleID] = append(out[roleID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LockGraph takes the transaction scoped advisory lock that serializes
// hierarchy writers. Released automatically at commit or rollback.
func (t *txRepo) LockGraph(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.HierarchyLockID)
	return err
}

// RoleExists reports whether the role ID is known, inside the transaction.
func (t *txRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	return roleExists(ctx, t.tx, roleID)
}

// ListEdges returns every edge, inside the transaction.
func (t *txRepo) ListEdges(ctx context.Context) ([]Edge, error) {
	return listEdges(ctx, t.tx)
}

// InsertEdge stores a new edge and returns it with ID and timestamp set.
func (t *txRepo) InsertEdge(ctx context.Context, parentRoleID, childRoleID int64, inherit bool, createdBy int64) (Edge, error) {
	edge := Edge{ParentRoleID: parentRoleID, ChildRoleID: childRoleID, InheritPermissions: inherit, CreatedBy: createdBy}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO role_hierarchy (parent_role_id, child_role_id, inherit_permissions, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		parentRoleID, childRoleID, inherit, createdBy,
	).Scan(&edge.ID, &edge.CreatedAt)
	if err != nil {
		return Edge{}, mapEdgeError(err)
	}
	return edge, nil
}

// DeleteEdge removes an edge by ID and returns the deleted row.
func (t *txRepo) DeleteEdge(ctx context.Context, id int64) (Edge, error) {
	var e Edge
	err := t.tx.QueryRow(ctx,
		`DELETE FROM role_hierarchy WHERE id=$1 RETURNING `+edgeColumns, id,
	).Scan(&e.ID, &e.ParentRoleID, &e.ChildRoleID, &e.InheritPermissions, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Edge{}, ErrEdgeNotFound
		}
		return Edge{}, err
	}
	return e, nil
}

func listEdges(ctx context.Context, q querier) ([]Edge, error) {
	rows, err := q.Query(ctx, `SELECT `+edgeColumns+` FROM role_hierarchy ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanEdges(rows)
}

func roleExists(ctx context.Context, q querier, roleID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id=$1)`, roleID).Scan(&exists)
	return exists, err
}

func scanEdges(rows pgx.Rows) ([]Edge, error) {
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.ParentRoleID, &e.ChildRoleID, &e.InheritPermissions, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func mapEdgeError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateEdge
		case "23503":
			return ErrRoleNotFound
		case "23514":
			return ErrSelfLoop
		}
	}
	return err
}
