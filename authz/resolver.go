package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/corefabric/gatekit/cache"
	"github.com/corefabric/gatekit/observability"
	"github.com/corefabric/gatekit/store"
)

// Resolver resolves credentials to principals and role names to role
// definitions, caching both with bounded TTLs. Cached entries are
// immutable snapshots; a refreshed lookup replaces the whole entry.
type Resolver struct {
	store  *store.Store
	config *Config
	logger observability.Logger

	principals cache.Cache
	roles      cache.Cache

	// mu guards cache writes and the reverse index so invalidation
	// and population cannot interleave: once InvalidatePrincipal
	// returns, no authorize call sees the stale entry.
	mu       sync.Mutex
	credKeys map[string]map[string]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over the given store and caches.
func NewResolver(st *store.Store, principals, roles cache.Cache, cfg *Config, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:      st,
		config:     cfg,
		logger:     observability.NopLogger(),
		principals: principals,
		roles:      roles,
		credKeys:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolvePrincipal resolves a raw credential to its principal. It
// serves from the principal cache when possible; otherwise it loads
// and verifies the credential and principal records from the store.
func (r *Resolver) ResolvePrincipal(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrEmptyCredential
	}

	scheme := r.config.GetScheme()
	key, secret, err := lookupKey(scheme, token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		GetAuthzMetrics().resolutionDuration.WithLabelValues("principal").
			Observe(time.Since(start).Seconds())
	}()

	// The cache key digests the whole presented token, not the store
	// lookup key: under the bcrypt scheme the lookup key is only the id
	// half, and a hit keyed on it would skip secret verification.
	cacheKey := "principal:" + HashToken(token)
	if data, err := r.principals.Get(ctx, cacheKey); err == nil {
		var p Principal
		if err := json.Unmarshal(data, &p); err == nil {
			GetAuthzMetrics().cacheTotal.WithLabelValues("principal", "hit").Inc()
			return &p, nil
		}
		// Undecodable entry: drop it and fall through to the store.
		_ = r.principals.Delete(ctx, cacheKey)
	}
	GetAuthzMetrics().cacheTotal.WithLabelValues("principal", "miss").Inc()

	principal, err := r.loadPrincipal(ctx, scheme, token, secret, key)
	if err != nil {
		return nil, err
	}

	r.cachePrincipal(ctx, cacheKey, principal)
	return principal, nil
}

// loadPrincipal performs the store lookups behind a cache miss.
func (r *Resolver) loadPrincipal(ctx context.Context, scheme, token, secret, key string) (*Principal, error) {
	rec, err := r.store.Get(ctx, r.config.GetCredentialType(), key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrUnknownCredential
		}
		return nil, fmt.Errorf("credential lookup: %w", err)
	}

	var cred credentialRecord
	if err := json.Unmarshal(rec.Payload, &cred); err != nil {
		return nil, fmt.Errorf("%w: credential %s", ErrMalformedRecord, key)
	}

	if err := verifySecret(scheme, token, secret, &cred); err != nil {
		return nil, err
	}
	if cred.Disabled {
		return nil, ErrCredentialDisabled
	}
	if cred.isExpired() {
		return nil, ErrCredentialExpired
	}

	prec, err := r.store.Get(ctx, r.config.GetPrincipalType(), cred.PrincipalID)
	if err != nil {
		if store.IsNotFound(err) {
			// A credential bound to a deleted principal is as good as
			// unknown.
			return nil, ErrUnknownCredential
		}
		return nil, fmt.Errorf("principal lookup: %w", err)
	}

	var principal Principal
	if err := json.Unmarshal(prec.Payload, &principal); err != nil {
		return nil, fmt.Errorf("%w: principal %s", ErrMalformedRecord, cred.PrincipalID)
	}
	principal.ID = cred.PrincipalID

	if principal.Disabled {
		return nil, ErrCredentialDisabled
	}
	if principal.IsExpired() {
		return nil, ErrCredentialExpired
	}

	return &principal, nil
}

// cachePrincipal stores a resolved principal and records the reverse
// index entry used by InvalidatePrincipal.
func (r *Resolver) cachePrincipal(ctx context.Context, cacheKey string, principal *Principal) {
	data, err := json.Marshal(principal)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.principals.Set(ctx, cacheKey, data, r.config.GetPrincipalTTL()); err != nil {
		if !errors.Is(err, cache.ErrCacheDisabled) {
			r.logger.Warn("principal cache set failed", observability.Err(err))
		}
		return
	}

	keys := r.credKeys[principal.ID]
	if keys == nil {
		keys = make(map[string]struct{})
		r.credKeys[principal.ID] = keys
	}
	keys[cacheKey] = struct{}{}
}

// ResolveRoles resolves role names to role definitions. Names with no
// role record resolve to nothing: a dangling role name grants no
// permissions.
func (r *Resolver) ResolveRoles(ctx context.Context, names []string) ([]*Role, error) {
	start := time.Now()
	defer func() {
		GetAuthzMetrics().resolutionDuration.WithLabelValues("role").
			Observe(time.Since(start).Seconds())
	}()

	roles := make([]*Role, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		role, err := r.resolveRole(ctx, name)
		if err != nil {
			return nil, err
		}
		if role != nil {
			roles = append(roles, role)
		}
	}

	return roles, nil
}

func (r *Resolver) resolveRole(ctx context.Context, name string) (*Role, error) {
	cacheKey := "role:" + name
	if data, err := r.roles.Get(ctx, cacheKey); err == nil {
		var role Role
		if err := json.Unmarshal(data, &role); err == nil {
			GetAuthzMetrics().cacheTotal.WithLabelValues("role", "hit").Inc()
			return &role, nil
		}
		_ = r.roles.Delete(ctx, cacheKey)
	}
	GetAuthzMetrics().cacheTotal.WithLabelValues("role", "miss").Inc()

	rec, err := r.store.Get(ctx, r.config.GetRoleType(), name)
	if err != nil {
		if store.IsNotFound(err) {
			r.logger.Debug("role not found",
				observability.String("role", name))
			return nil, nil
		}
		return nil, fmt.Errorf("role lookup: %w", err)
	}

	var role Role
	if err := json.Unmarshal(rec.Payload, &role); err != nil {
		return nil, fmt.Errorf("%w: role %s", ErrMalformedRecord, name)
	}
	role.Name = name

	data, err := json.Marshal(&role)
	if err == nil {
		r.mu.Lock()
		if err := r.roles.Set(ctx, cacheKey, data, r.config.GetRoleTTL()); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			r.logger.Warn("role cache set failed", observability.Err(err))
		}
		r.mu.Unlock()
	}

	return &role, nil
}

// InvalidatePrincipal drops every cached resolution for the given
// principal. When it returns, subsequent authorize calls resolve
// freshly from the store.
func (r *Resolver) InvalidatePrincipal(ctx context.Context, principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for cacheKey := range r.credKeys[principalID] {
		if err := r.principals.Delete(ctx, cacheKey); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	delete(r.credKeys, principalID)

	r.logger.Info("principal invalidated",
		observability.String("principal", principalID))
	return firstErr
}

// InvalidateRole drops the cached definition for the given role.
func (r *Resolver) InvalidateRole(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.roles.Delete(ctx, "role:"+name)
	if err != nil && errors.Is(err, cache.ErrCacheDisabled) {
		err = nil
	}

	r.logger.Info("role invalidated", observability.String("role", name))
	return err
}
