// Package authz decides whether a caller, identified by an opaque
// API-key credential, may perform an action on a resource type.
//
// Resolution runs in two hops: the credential maps to a stored
// credential record, which names a principal; the principal's role
// names map to role definitions carrying (action, resource) grants.
// Both hops are cached with bounded TTLs, and InvalidatePrincipal /
// InvalidateRole drop cached entries immediately so revocations do
// not wait out the TTL.
//
// Denials are normal results, not errors. A non-nil error accompanies
// only resolution-failure denials, letting callers distinguish a
// forbidden request from one the gate could not evaluate. By default
// the gate fails closed when the identity store is unavailable;
// Config.FailOpen inverts that single case.
package authz
