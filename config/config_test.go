package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "always", cfg.Signature.Policy)
	assert.Equal(t, 10*time.Second, cfg.Signature.Timeout.Duration)
	assert.True(t, cfg.Signature.AnonymousFetch)
	assert.Equal(t, "eformity.TaskpaneButton", cfg.Signature.CommandID)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[remote]
url = "https://sig.example.com"
timeout = "5s"

[storage]
backend = "pebble"
path = "/var/lib/autosig"

[signature]
policy = "stale"
timeout = "2500ms"
anonymous_fetch = false
sanitize = true

[devserver]
enabled = true
source = "dir"
dir = "/srv/signatures"

[devserver.credentials]
jane = "$2a$10$hash"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://sig.example.com", cfg.Remote.URL)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout.Duration)
	assert.Equal(t, "pebble", cfg.Storage.Backend)
	assert.Equal(t, "stale", cfg.Signature.Policy)
	assert.Equal(t, 2500*time.Millisecond, cfg.Signature.Timeout.Duration)
	assert.False(t, cfg.Signature.AnonymousFetch)
	assert.True(t, cfg.Signature.Sanitize)
	assert.Equal(t, map[string]string{"jane": "$2a$10$hash"}, cfg.DevServer.Credentials)
	// untouched sections keep their defaults
	assert.Equal(t, 100, cfg.RateLimit.Requests)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[server\nport = 1"},
		{"duration", "[signature]\ntimeout = \"soon\""},
		{"backend", "[storage]\nbackend = \"redis\""},
		{"policy", "[signature]\npolicy = \"never\""},
		{"port", "[server]\nport = 70000"},
		{"devserver source", "[devserver]\nenabled = true\nsource = \"ftp\""},
		{"imap server", "[devserver]\nenabled = true\nsource = \"imap\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AUTOSIG_PORT":              "9000",
		"AUTOSIG_REMOTE_URL":        "https://remote.example.com",
		"AUTOSIG_SIGNATURE_TIMEOUT": "1s",
		"AUTOSIG_SANITIZE":          "true",
		"AUTOSIG_STORAGE_BACKEND":   "bbolt",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://remote.example.com", cfg.Remote.URL)
	assert.Equal(t, time.Second, cfg.Signature.Timeout.Duration)
	assert.True(t, cfg.Signature.Sanitize)
	assert.Equal(t, "bbolt", cfg.Storage.Backend)
}

func TestApplyEnv_Malformed(t *testing.T) {
	for _, key := range []string{"AUTOSIG_PORT", "AUTOSIG_SANITIZE", "AUTOSIG_REMOTE_TIMEOUT"} {
		lookup := func(k string) (string, bool) {
			if k == key {
				return "not-a-value", true
			}
			return "", false
		}
		assert.Error(t, Default().applyEnv(lookup), key)
	}
}
