package config

import (
	"fmt"
	"strings"

	"github.com/corefabric/gatekit/authz"
	"github.com/corefabric/gatekit/cache"
)

// ValidationError is one configuration validation failure.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks a configuration for invalid or inconsistent values.
// It returns all problems at once so they can be fixed in one pass.
func Validate(config *Config) error {
	v := &validator{}

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateLogging(&config.Logging)
	v.validateTracing(&config.Tracing)
	v.validateStore(&config.Store)
	v.validateAuthz(&config.Authz)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

type validator struct {
	errors ValidationErrors
}

func (v *validator) addError(path, format string, args ...any) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) validateLogging(cfg *LoggingConfig) {
	if !oneOf(cfg.Level, "", "debug", "info", "warn", "error") {
		v.addError("logging.level", "invalid level %q", cfg.Level)
	}
	if !oneOf(cfg.Format, "", "json", "console") {
		v.addError("logging.format", "invalid format %q", cfg.Format)
	}
	if !oneOf(cfg.Output, "", "stdout", "stderr") {
		v.addError("logging.output", "invalid output %q", cfg.Output)
	}
}

func (v *validator) validateTracing(cfg *TracingConfig) {
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0.0 and 1.0, got %v", cfg.SamplingRate)
	}
	if cfg.Enabled && cfg.OTLPEndpoint == "" {
		v.addError("tracing.otlpEndpoint", "required when tracing is enabled")
	}
}

func (v *validator) validateStore(cfg *StoreConfig) {
	switch cfg.Backend {
	case "", BackendMemory:
	case BackendDynamoDB:
		if cfg.DynamoDB == nil || cfg.DynamoDB.Table == "" {
			v.addError("store.dynamodb.table", "required for the dynamodb backend")
		}
	default:
		v.addError("store.backend", "unknown backend %q", cfg.Backend)
	}

	if cfg.MaxAttempts < 0 {
		v.addError("store.maxAttempts", "must not be negative")
	}
	if cfg.JitterFactor < 0 || cfg.JitterFactor > 1 {
		v.addError("store.jitterFactor", "must be between 0.0 and 1.0, got %v", cfg.JitterFactor)
	}
	if cfg.RateLimit < 0 {
		v.addError("store.rateLimit", "must not be negative")
	}
	if cfg.InitialBackoff > 0 && cfg.MaxBackoff > 0 && cfg.MaxBackoff < cfg.InitialBackoff {
		v.addError("store.maxBackoff", "must not be below initialBackoff")
	}

	if cfg.Breaker != nil && cfg.Breaker.Enabled {
		if cfg.Breaker.FailureRatio < 0 || cfg.Breaker.FailureRatio > 1 {
			v.addError("store.breaker.failureRatio", "must be between 0.0 and 1.0, got %v", cfg.Breaker.FailureRatio)
		}
	}
}

func (v *validator) validateAuthz(cfg *AuthzConfig) {
	if !oneOf(cfg.Scheme, "", authz.SchemeSHA256, authz.SchemeBcrypt) {
		v.addError("authz.scheme", "unknown scheme %q", cfg.Scheme)
	}
	if cfg.PrincipalTTL < 0 {
		v.addError("authz.principalTTL", "must not be negative")
	}
	if cfg.RoleTTL < 0 {
		v.addError("authz.roleTTL", "must not be negative")
	}

	v.validateCache("authz.principalCache", cfg.PrincipalCache)
	v.validateCache("authz.roleCache", cfg.RoleCache)
}

func (v *validator) validateCache(path string, cfg *CacheConfig) {
	if cfg == nil || !cfg.Enabled {
		return
	}

	switch cfg.Type {
	case "", cache.TypeMemory:
	case cache.TypeRedis:
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			v.addError(path+".redis.url", "required for the redis cache")
		}
		if cfg.Redis != nil && (cfg.Redis.TTLJitter < 0 || cfg.Redis.TTLJitter > 1) {
			v.addError(path+".redis.ttlJitter", "must be between 0.0 and 1.0, got %v", cfg.Redis.TTLJitter)
		}
	default:
		v.addError(path+".type", "unknown cache type %q", cfg.Type)
	}

	if cfg.MaxEntries < 0 {
		v.addError(path+".maxEntries", "must not be negative")
	}
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
