package authz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/corefabric/gatekit/observability"
	"github.com/corefabric/gatekit/store"
)

// Authorizer gates operations by caller identity and role. It never
// fails open unless explicitly configured to, and only for store
// unavailability.
type Authorizer struct {
	resolver *Resolver
	config   *Config
	logger   observability.Logger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// New creates an Authorizer over the given resolver.
func New(resolver *Resolver, cfg *Config, opts ...Option) *Authorizer {
	a := &Authorizer{
		resolver: resolver,
		config:   cfg,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize decides whether the caller identified by credential may
// perform action on the given resource type. Denial is a normal
// result with a nil error; a non-nil error accompanies only
// resolution-failure denials so callers can distinguish "forbidden"
// from "cannot currently tell".
func (a *Authorizer) Authorize(ctx context.Context, credential, action, resource string) (*Decision, error) {
	start := time.Now()

	principal, err := a.resolver.ResolvePrincipal(ctx, credential)
	if err != nil {
		decision, err := a.denyForResolution(err)
		a.finish(decision, action, resource, start, err)
		return decision, err
	}

	roles, err := a.resolver.ResolveRoles(ctx, principal.Roles)
	if err != nil {
		decision, err := a.denyForResolution(err)
		decision.PrincipalID = principal.ID
		a.finish(decision, action, resource, start, err)
		return decision, err
	}

	decision := &Decision{PrincipalID: principal.ID}
	for _, role := range roles {
		if role.Allows(action, resource) {
			decision.Allowed = true
			break
		}
	}
	if !decision.Allowed {
		decision.Reason = ReasonInsufficientPermissions
	}

	a.finish(decision, action, resource, start, nil)
	return decision, nil
}

// denyForResolution maps a resolution error to a denial. Credential
// problems are normal denials; anything else is a resolution failure
// carrying the underlying error.
func (a *Authorizer) denyForResolution(err error) (*Decision, error) {
	switch {
	case errors.Is(err, ErrEmptyCredential),
		errors.Is(err, ErrMalformedCredential),
		errors.Is(err, ErrUnknownCredential):
		return &Decision{Reason: ReasonUnknownCredential}, nil
	case errors.Is(err, ErrCredentialExpired):
		return &Decision{Reason: ReasonCredentialExpired}, nil
	case errors.Is(err, ErrCredentialDisabled):
		return &Decision{Reason: ReasonCredentialDisabled}, nil
	}

	if a.config.GetFailOpen() && store.IsUnavailable(err) {
		a.logger.Warn("identity store unavailable, failing open",
			observability.Err(err))
		return &Decision{Allowed: true, Reason: ReasonResolutionFailure}, nil
	}

	return &Decision{Reason: ReasonResolutionFailure}, err
}

// finish records metrics, audit, and logging for a decision.
func (a *Authorizer) finish(decision *Decision, action, resource string, start time.Time, err error) {
	result := "denied"
	if decision.Allowed {
		result = "allowed"
	}
	reason := decision.Reason
	if reason == "" {
		reason = "granted"
	}
	GetAuthzMetrics().decisionsTotal.WithLabelValues(result, reason).Inc()
	GetAuthzMetrics().decisionDuration.Observe(time.Since(start).Seconds())

	if a.config.GetAuditEnabled() {
		fields := []observability.Field{
			observability.String("event_id", uuid.NewString()),
			observability.String("action", action),
			observability.String("resource", resource),
			observability.Bool("allowed", decision.Allowed),
		}
		if decision.Reason != "" {
			fields = append(fields, observability.String("reason", decision.Reason))
		}
		if decision.PrincipalID != "" {
			fields = append(fields, observability.String("principal", decision.PrincipalID))
		}
		if err != nil {
			fields = append(fields, observability.Err(err))
		}
		a.logger.Info("authorization decision", fields...)
	}
}

// InvalidatePrincipal drops cached resolutions for a principal so
// revocations take effect without waiting for TTL expiry.
func (a *Authorizer) InvalidatePrincipal(ctx context.Context, principalID string) error {
	return a.resolver.InvalidatePrincipal(ctx, principalID)
}

// InvalidateRole drops the cached definition for a role.
func (a *Authorizer) InvalidateRole(ctx context.Context, name string) error {
	return a.resolver.InvalidateRole(ctx, name)
}
