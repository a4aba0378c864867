package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", settings.LogLevel)
	assert.Equal(t, 8090, settings.Server.Port)
	assert.Equal(t, "sqlite", settings.Database.Driver)
	assert.Equal(t, 4, settings.Dispatch.Workers)
	assert.Equal(t, time.Second, settings.Dispatch.PollInterval.Std())
	assert.Equal(t, 2*time.Minute, settings.Dispatch.ClaimLease.Std())
	assert.Equal(t, 90, settings.Retention.RecordDays)
}

func TestLoad_ConfigFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engage.yaml")
	content := `
loglevel: debug
server:
  port: 9000
dispatch:
  workers: 8
  pollinterval: 250ms
channel:
  gatewayurl: http://gateway.local
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", settings.LogLevel)
	assert.Equal(t, 9000, settings.Server.Port)
	assert.Equal(t, 8, settings.Dispatch.Workers)
	assert.Equal(t, 250*time.Millisecond, settings.Dispatch.PollInterval.Std())
	assert.Equal(t, "http://gateway.local", settings.Channel.GatewayURL)
	assert.Equal(t, 3*time.Second, settings.Channel.Timeout.Std())
	// Unset values keep defaults.
	assert.Equal(t, "sqlite", settings.Database.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/no/such/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Settings {
		settings, err := Load("")
		require.NoError(t, err)
		return settings
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults are valid", func(s *Settings) {}, false},
		{"sqlite without path", func(s *Settings) { s.Database.Path = "" }, true},
		{"mysql without dsn", func(s *Settings) { s.Database.Driver = "mysql" }, true},
		{"mysql with dsn", func(s *Settings) {
			s.Database.Driver = "mysql"
			s.Database.DSN = "user:pass@tcp(localhost:3306)/engage"
		}, false},
		{"unknown driver", func(s *Settings) { s.Database.Driver = "oracle" }, true},
		{"zero workers", func(s *Settings) { s.Dispatch.Workers = 0 }, true},
		{"zero attempts", func(s *Settings) { s.Dispatch.MaxAttempts = 0 }, true},
		{"bad port", func(s *Settings) { s.Server.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := base()
			tt.mutate(settings)
			err := settings.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
