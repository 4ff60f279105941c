// Package config implements the SDK's layered configuration: sensible
// defaults, optional YAML overlays, environment variables, and validation,
// following the same pattern the teacher codebase uses for its own
// configuration management.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the complete, validated SDK configuration (spec §6.4). It is
// passed into every client constructor and never mutated in place after
// Validate succeeds — reloads replace it wholesale.
type Settings struct {
	Cache               CacheSettings         `yaml:"cache" json:"cache" validate:"dive"`
	TaskScheduler       TaskSchedulerSettings `yaml:"task_scheduler" json:"task_scheduler" validate:"dive"`
	Network             NetworkSettings       `yaml:"network" json:"network" validate:"dive"`
	Proxy               ProxySettings         `yaml:"proxy" json:"proxy" validate:"dive"`
	Retry               RetrySettings         `yaml:"retry" json:"retry" validate:"required,dive"`
	DefaultCacheExpiration time.Duration      `yaml:"default_cache_expiration" json:"default_cache_expiration" validate:"min=0"`
	PropagateAllCacheErrors bool              `yaml:"propagate_all_cache_errors" json:"propagate_all_cache_errors"`
	APILookup           APILookupSettings     `yaml:"api_lookup" json:"api_lookup" validate:"dive"`
	Authentication      AuthenticationSettings `yaml:"authentication_settings" json:"authentication_settings" validate:"dive"`

	// LoadedFrom records which sources contributed to this Settings value
	// (defaults, file paths, "environment"), for diagnostics only.
	LoadedFrom []string `yaml:"-" json:"-"`
}

// CacheSettings configures the in-memory key/value cache facade.
type CacheSettings struct {
	MaxItems int           `yaml:"max_items" json:"max_items" validate:"min=1,max=10000000"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" validate:"min=1s"`
}

// TaskSchedulerSettings configures the task sink's worker pool. Workers <= 0
// is treated by NewTaskSink as a single worker goroutine; there is no mode in
// which tasks run synchronously on the calling goroutine.
type TaskSchedulerSettings struct {
	Workers   int `yaml:"workers" json:"workers" validate:"min=0,max=256"`
	QueueSize int `yaml:"queue_size" json:"queue_size" validate:"min=0,max=100000"`
}

// NetworkSettings configures the default HTTP transport.
type NetworkSettings struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" validate:"min=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" validate:"min=0"`
	MaxIdleConns   int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"min=0"`
}

// ProxySettings configures an optional HTTP/SOCKS proxy for outbound calls.
type ProxySettings struct {
	Type     string `yaml:"type" json:"type" validate:"omitempty,oneof=http https socks5"`
	Host     string `yaml:"host" json:"host" validate:"omitempty,hostname|ip"`
	Port     int    `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

// Enabled reports whether a proxy is configured.
func (p ProxySettings) Enabled() bool {
	return p.Host != ""
}

// RetrySettings configures the transport's retry/backoff behavior.
type RetrySettings struct {
	TimeoutSeconds int     `yaml:"timeout_s" json:"timeout_s" validate:"min=1,max=600"`
	MaxAttempts    int     `yaml:"max_attempts" json:"max_attempts" validate:"min=1,max=10"`
	BackoffBase    float64 `yaml:"backoff" json:"backoff" validate:"min=1,max=10"`
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (r RetrySettings) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// APILookupSettings optionally overrides the API-lookup client's own
// endpoint discovery, for test fixtures or private deployments.
type APILookupSettings struct {
	LookupEndpointProvider  string `yaml:"lookup_endpoint_provider" json:"lookup_endpoint_provider" validate:"omitempty,url"`
	CatalogEndpointProvider string `yaml:"catalog_endpoint_provider" json:"catalog_endpoint_provider" validate:"omitempty,url"`
}

// AuthenticationSettings selects and configures the default TokenProvider.
// "gotrue" exchanges ClientID/ClientSecret for a bearer token against
// TokenEndpointURL (auth/gotrueauth.Adapter); "static" attaches StaticToken
// verbatim to every request; "none" (the zero value) attaches no
// Authorization header at all.
type AuthenticationSettings struct {
	TokenProvider    string `yaml:"token_provider" json:"token_provider" validate:"omitempty,oneof=gotrue static none"`
	TokenEndpointURL string `yaml:"token_endpoint_url" json:"token_endpoint_url" validate:"required_if=TokenProvider gotrue,omitempty,url"`
	ClientID         string `yaml:"client_id" json:"client_id"`
	ClientSecret     string `yaml:"client_secret" json:"client_secret"`
	StaticToken      string `yaml:"static_token" json:"static_token" validate:"required_if=TokenProvider static"`
}

// Validate runs struct-tag validation plus the cross-field business rules
// that validator tags alone can't express.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, formatValidationError(e))
			}
			return fmt.Errorf("config: validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return fmt.Errorf("config: validation failed: %w", err)
	}

	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1")
	}
	if s.Authentication.TokenProvider == "gotrue" && s.Authentication.TokenEndpointURL == "" {
		return fmt.Errorf("config: authentication_settings.token_endpoint_url is required when token_provider is \"gotrue\"")
	}

	return nil
}

func formatValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

// Default returns a Settings with the SDK's built-in defaults: in-memory
// cache, a small local worker pool, no proxy, three retry attempts, and no
// authentication provider configured (the caller must opt in).
func Default() Settings {
	return Settings{
		Cache: CacheSettings{
			MaxItems: 10000,
			TTL:      1 * time.Hour,
		},
		TaskScheduler: TaskSchedulerSettings{
			Workers:   4,
			QueueSize: 256,
		},
		Network: NetworkSettings{
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxIdleConns:   32,
		},
		Retry: RetrySettings{
			TimeoutSeconds: 30,
			MaxAttempts:    3,
			BackoffBase:    2.0,
		},
		DefaultCacheExpiration:  1 * time.Hour,
		PropagateAllCacheErrors: false,
	}
}
