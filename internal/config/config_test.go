package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpclient"
)

const sample = `
default: mirror
profiles:
  mirror:
    url: ftp://ftp.example.com:2121/
    mode: active
  backup:
    host: backup.example.com
    username: bob
    password: secret
    tls: full
    verify_cert: false
    timeout: 2m
    bandwidth_limit: 1048576
  secure:
    url: ftps://alice:pw@vault.example.com/
    username: ignored
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NamedProfile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "ftp.yaml", sample)

	p, err := Load(path, "backup")
	require.NoError(t, err)
	assert.Equal(t, "backup", p.Name)

	cfg, err := p.Config()
	require.NoError(t, err)
	assert.Equal(t, "backup.example.com", cfg.Host)
	assert.Equal(t, 21, cfg.Port)
	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, ftpclient.TLSFull, cfg.TLS)
	assert.False(t, cfg.VerifyCert)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, int64(1048576), cfg.BandwidthLimit)
	assert.Equal(t, ftpclient.DefaultConfig().BufferSize, cfg.BufferSize)
}

func TestLoad_DefaultProfileFromURL(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "ftp.yaml", sample)

	p, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "mirror", p.Name)

	cfg, err := p.Config()
	require.NoError(t, err)
	assert.Equal(t, "ftp.example.com", cfg.Host)
	assert.Equal(t, 2121, cfg.Port)
	assert.Equal(t, ftpclient.ModeActive, cfg.Mode)
	assert.Equal(t, "anonymous", cfg.Username)
}

func TestLoad_URLCredentialsWin(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "ftp.yaml", sample)

	p, err := Load(path, "secure")
	require.NoError(t, err)
	cfg, err := p.Config()
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, 990, cfg.Port)
	assert.True(t, cfg.ImplicitTLS)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "ftp.yaml", sample)
	t.Setenv("FTPCLIENT_PASSWORD", "from-env")
	t.Setenv("FTPCLIENT_TIMEOUT", "45s")
	t.Setenv("FTPCLIENT_DISABLE_EPSV", "true")

	p, err := Load(path, "backup")
	require.NoError(t, err)
	cfg, err := p.Config()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.True(t, cfg.DisableEPSV)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FTPCLIENT_HOST", "10.0.0.9")
	t.Setenv("FTPCLIENT_PORT", "2121")

	p, err := Load("", "")
	require.NoError(t, err)
	assert.Empty(t, p.Name)

	cfg, err := p.Config()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Host)
	assert.Equal(t, 2121, cfg.Port)
	assert.True(t, cfg.VerifyCert)
}

func TestLoad_DefaultDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeConfig(t, xdg, filepath.Join("ftpclient", "config.yaml"), sample)

	p, err := Load("", "backup")
	require.NoError(t, err)
	assert.Equal(t, "backup.example.com", p.Host)
}

func TestLoad_HomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	writeConfig(t, home, "ftp.yaml", sample)

	p, err := Load("~/ftp.yaml", "backup")
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Username)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "ftp.yaml", sample)

	_, err := Load(path, "nope")
	assert.ErrorContains(t, err, `profile "nope" not found`)

	_, err = Load(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)

	bad := writeConfig(t, dir, "bad.yaml", "profiles: [unterminated")
	_, err = Load(bad, "")
	assert.Error(t, err)
}

func TestProfile_ConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
	}{
		{"bad mode", Profile{Host: "h", Port: 21, Username: "u", Mode: "sideways", BufferSize: 1, MaxListSize: 1}},
		{"bad tls", Profile{Host: "h", Port: 21, Username: "u", TLS: "maybe", BufferSize: 1, MaxListSize: 1}},
		{"missing host", Profile{Port: 21, Username: "u", BufferSize: 1, MaxListSize: 1}},
		{"bad url", Profile{URL: "http://x", Port: 21, Username: "u", BufferSize: 1, MaxListSize: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Config()
			assert.Error(t, err)
		})
	}
}
