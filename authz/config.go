package authz

import "time"

// Credential scheme constants.
const (
	// SchemeSHA256 hashes the whole token with SHA-256; the digest is
	// the credential record key.
	SchemeSHA256 = "sha256"

	// SchemeBcrypt expects "id.secret" tokens; the id is the record
	// key and the secret verifies against a stored bcrypt hash.
	SchemeBcrypt = "bcrypt"
)

// Default configuration values.
const (
	// DefaultPrincipalTTL bounds how long a resolved principal may be
	// served from cache.
	DefaultPrincipalTTL = 30 * time.Second

	// DefaultRoleTTL bounds how long a role definition may be served
	// from cache. Roles change far less often than principals.
	DefaultRoleTTL = 5 * time.Minute
)

// Default store resource types for identity records.
const (
	DefaultCredentialType = "credentials"
	DefaultPrincipalType  = "principals"
	DefaultRoleType       = "roles"
)

// Config configures the authorizer. The zero value is usable.
type Config struct {
	// Scheme is the credential scheme: "sha256" (default) or
	// "bcrypt".
	Scheme string `yaml:"scheme"`

	// PrincipalTTL bounds the credential-to-principal cache.
	PrincipalTTL time.Duration `yaml:"principalTTL"`

	// RoleTTL bounds the role definition cache.
	RoleTTL time.Duration `yaml:"roleTTL"`

	// FailOpen allows requests when identity resolution is
	// unavailable. It flips ONLY the unavailable case; unknown,
	// expired, and disabled credentials always deny. Default false:
	// an authorization gate fails closed.
	FailOpen bool `yaml:"failOpen"`

	// AuditEnabled emits a structured audit event per decision.
	AuditEnabled bool `yaml:"auditEnabled"`

	// CredentialType, PrincipalType, and RoleType override the store
	// resource types holding identity records.
	CredentialType string `yaml:"credentialType"`
	PrincipalType  string `yaml:"principalType"`
	RoleType       string `yaml:"roleType"`
}

// GetScheme returns the credential scheme, defaulting to sha256.
func (c *Config) GetScheme() string {
	if c == nil || c.Scheme == "" {
		return SchemeSHA256
	}
	return c.Scheme
}

// GetPrincipalTTL returns the principal cache TTL.
func (c *Config) GetPrincipalTTL() time.Duration {
	if c == nil || c.PrincipalTTL <= 0 {
		return DefaultPrincipalTTL
	}
	return c.PrincipalTTL
}

// GetRoleTTL returns the role cache TTL.
func (c *Config) GetRoleTTL() time.Duration {
	if c == nil || c.RoleTTL <= 0 {
		return DefaultRoleTTL
	}
	return c.RoleTTL
}

// GetFailOpen returns the fail-open flag.
func (c *Config) GetFailOpen() bool {
	return c != nil && c.FailOpen
}

// GetAuditEnabled returns the audit flag.
func (c *Config) GetAuditEnabled() bool {
	return c != nil && c.AuditEnabled
}

// GetCredentialType returns the credential resource type.
func (c *Config) GetCredentialType() string {
	if c == nil || c.CredentialType == "" {
		return DefaultCredentialType
	}
	return c.CredentialType
}

// GetPrincipalType returns the principal resource type.
func (c *Config) GetPrincipalType() string {
	if c == nil || c.PrincipalType == "" {
		return DefaultPrincipalType
	}
	return c.PrincipalType
}

// GetRoleType returns the role resource type.
func (c *Config) GetRoleType() string {
	if c == nil || c.RoleType == "" {
		return DefaultRoleType
	}
	return c.RoleType
}
