package privileges

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status labels surfaced to the API. Derived from the row at read time,
// never stored.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

// TemporaryPrivilege grants a user a role for a bounded window without
// touching permanent assignments. Revocation flips IsActive and keeps the
// row for the audit trail.
type TemporaryPrivilege struct {
	ID         int64
	Ref        uuid.UUID
	UserID     int64
	RoleID     int64
	RoleName   string
	Reason     string
	GrantedBy  int64
	GrantedAt  time.Time
	ValidUntil time.Time
	IsActive   bool
	RevokedBy  *int64
	RevokedAt  *time.Time
}

// EffectiveAt reports whether the grant confers its role at the given
// instant. Expiry is exclusive: the grant stops working exactly at
// ValidUntil.
func (p TemporaryPrivilege) EffectiveAt(at time.Time) bool {
	return p.IsActive && at.Before(p.ValidUntil)
}

// StatusLabel derives the display status at the given instant. A revoked
// grant stays revoked even after its window has passed.
func (p TemporaryPrivilege) StatusLabel(at time.Time) string {
	switch {
	case !p.IsActive:
		return StatusRevoked
	case !at.Before(p.ValidUntil):
		return StatusExpired
	default:
		return StatusActive
	}
}

var (
	// ErrNotFound signals an unknown grant reference.
	ErrNotFound = errors.New("privileges: grant not found")
	// ErrUserNotFound signals an unknown grantee.
	ErrUserNotFound = errors.New("privileges: user not found")
	// ErrRoleNotFound signals an unknown role.
	ErrRoleNotFound = errors.New("privileges: role not found")
	// ErrReasonRequired rejects a grant without a justification.
	ErrReasonRequired = errors.New("privileges: reason required")
	// ErrDurationOutOfRange rejects a grant window outside the configured bounds.
	ErrDurationOutOfRange = errors.New("privileges: duration out of range")
	// ErrAlreadyRevoked rejects a second revocation of the same grant.
	ErrAlreadyRevoked = errors.New("privileges: grant already revoked")
)
