package authz

import "time"

// Decision reason codes.
const (
	// ReasonUnknownCredential means the credential resolved to no
	// principal, or its secret did not verify.
	ReasonUnknownCredential = "unknown-credential"

	// ReasonCredentialExpired means the credential or principal has
	// passed its expiry time.
	ReasonCredentialExpired = "credential-expired"

	// ReasonCredentialDisabled means the credential or principal has
	// been disabled.
	ReasonCredentialDisabled = "credential-disabled"

	// ReasonInsufficientPermissions means no resolved role grants the
	// requested (action, resource) pair.
	ReasonInsufficientPermissions = "insufficient-permissions"

	// ReasonResolutionFailure means the identity or role lookup could
	// not complete. The gate fails closed unless configured otherwise.
	ReasonResolutionFailure = "resolution-failure"
)

// Principal is the resolved identity behind a credential. It is an
// immutable snapshot: a refreshed lookup replaces it wholesale.
type Principal struct {
	// ID is the principal identifier.
	ID string `json:"id"`

	// Roles is the set of role names assigned to the principal.
	Roles []string `json:"roles,omitempty"`

	// Disabled marks a revoked principal.
	Disabled bool `json:"disabled,omitempty"`

	// ExpiresAt is when the principal's access lapses, if ever.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the principal has passed its expiry time.
func (p *Principal) IsExpired() bool {
	if p.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*p.ExpiresAt)
}

// Grant is a single (action, resource type) permission entry.
type Grant struct {
	// Action is the operation identifier, e.g. "write".
	Action string `json:"action"`

	// Resource is the resource type the action applies to, e.g.
	// "Series".
	Resource string `json:"resource"`
}

// Role is a named bundle of grants, loaded from the store as
// read-mostly reference data.
type Role struct {
	// Name is the role name.
	Name string `json:"name"`

	// Grants is the set of permissions the role carries.
	Grants []Grant `json:"grants,omitempty"`
}

// Allows reports whether the role grants exactly (action, resource).
func (r *Role) Allows(action, resource string) bool {
	for _, g := range r.Grants {
		if g.Action == action && g.Resource == resource {
			return true
		}
	}
	return false
}

// Decision is the result of one authorization check. It is ephemeral
// and never persisted.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Reason is the reason code for a denial, empty on allow.
	Reason string

	// PrincipalID identifies the resolved principal, when resolution
	// succeeded.
	PrincipalID string
}
