package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/config"
)

func TestDefault_Validates(t *testing.T) {
	s := config.Default()
	require.NoError(t, s.Validate())
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Settings)
		wantErr bool
	}{
		{
			name:   "valid defaults",
			mutate: func(s *config.Settings) {},
		},
		{
			name: "retry max_attempts zero",
			mutate: func(s *config.Settings) {
				s.Retry.MaxAttempts = 0
			},
			wantErr: true,
		},
		{
			name: "gotrue provider requires token endpoint",
			mutate: func(s *config.Settings) {
				s.Authentication.TokenProvider = "gotrue"
				s.Authentication.TokenEndpointURL = ""
			},
			wantErr: true,
		},
		{
			name: "gotrue provider with endpoint is valid",
			mutate: func(s *config.Settings) {
				s.Authentication.TokenProvider = "gotrue"
				s.Authentication.TokenEndpointURL = "https://example.com/token"
			},
			wantErr: false,
		},
		{
			name: "static provider requires a token value",
			mutate: func(s *config.Settings) {
				s.Authentication.TokenProvider = "static"
				s.Authentication.StaticToken = ""
			},
			wantErr: true,
		},
		{
			name: "static provider with token is valid",
			mutate: func(s *config.Settings) {
				s.Authentication.TokenProvider = "static"
				s.Authentication.StaticToken = "fixed-token"
			},
			wantErr: false,
		},
		{
			name: "unknown token provider rejected",
			mutate: func(s *config.Settings) {
				s.Authentication.TokenProvider = "unknown"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.Default()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_LoadsBaseYAML(t *testing.T) {
	dir := t.TempDir()
	base := []byte("default_cache_expiration: 2h\npropagate_all_cache_errors: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), base, 0o644))

	loader := config.NewLoader(dir, "")
	settings, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, settings.DefaultCacheExpiration)
	assert.True(t, settings.PropagateAllCacheErrors)
	assert.Contains(t, settings.LoadedFrom, filepath.Join(dir, "base.yaml"))
}

func TestLoader_MissingFilesFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	loader := config.NewLoader(dir, "production")
	settings, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, config.Default().Cache.MaxItems, settings.Cache.MaxItems)
}

func TestProxySettings_Enabled(t *testing.T) {
	var p config.ProxySettings
	assert.False(t, p.Enabled())
	p.Host = "proxy.example.com"
	assert.True(t, p.Enabled())
}

func TestRetrySettings_Timeout(t *testing.T) {
	r := config.RetrySettings{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, r.Timeout())
}
