package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roxyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
channel:
  cert: /etc/roxy/server.crt
  key: /etc/roxy/server.key
  ca_cert: /etc/roxy/ca.crt
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, "0.0.0.0:38390", cfg.Channel.Listen)
	require.Equal(t, 5*time.Minute, cfg.Channel.IdleTimeout.Std())
	require.Equal(t, 30*time.Second, cfg.Exec.Timeout.Std())
	require.Equal(t, "/etc/netplan", cfg.Netplan.Dir)
	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
channel:
  cert: a
  key: b
  ca_cert: c
  idle_timeout: 90s
exec:
  timeout: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.Channel.IdleTimeout.Std())
	require.Equal(t, 10*time.Second, cfg.Exec.Timeout.Std())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
channel:
  cert: a
  key: b
  ca_cert: c
exec:
  timeout: soon
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresCertMaterial(t *testing.T) {
	path := writeConfig(t, `
channel:
  listen: 0.0.0.0:38390
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "ca_cert")
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	path := writeConfig(t, `
logging:
  format: xml
channel:
  cert: a
  key: b
  ca_cert: c
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "logging format")
}

func TestEnvOverridesCertPaths(t *testing.T) {
	path := writeConfig(t, `
channel:
  cert: /old/server.crt
  key: /old/server.key
  ca_cert: /old/ca.crt
`)

	t.Setenv("ROXYD_CERT", "/new/server.crt")
	t.Setenv("ROXYD_KEY", "/new/server.key")
	t.Setenv("ROXYD_CA", "/new/ca.crt")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/new/server.crt", cfg.Channel.Cert)
	require.Equal(t, "/new/server.key", cfg.Channel.Key)
	require.Equal(t, "/new/ca.crt", cfg.Channel.CACert)
}
