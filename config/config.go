package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "AUTOSIG_"

// Duration is a time.Duration read from strings like "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	Port int `toml:"port"`
	// PublicURL is where hosts and signature images reach the daemon
	PublicURL string `toml:"public_url"`
}

type LogConfig struct {
	Level    string `toml:"level"`
	Requests bool   `toml:"requests"` // log every HTTP request
}

type RemoteConfig struct {
	URL           string   `toml:"url"`
	SignaturePath string   `toml:"signature_path"`
	StatusPath    string   `toml:"status_path"`
	ExchangePath  string   `toml:"exchange_path"`
	Timeout       Duration `toml:"timeout"` // per HTTP request
}

type StorageConfig struct {
	Backend string `toml:"backend"` // memory, bbolt or pebble
	Path    string `toml:"path"`
	// Sweep is the cron schedule purging expired entries
	Sweep string `toml:"sweep"`
}

type SignatureConfig struct {
	Policy         string   `toml:"policy"`  // always or stale
	Timeout        Duration `toml:"timeout"` // per resolution round
	AnonymousFetch bool     `toml:"anonymous_fetch"`
	Sanitize       bool     `toml:"sanitize"`
	MaxImageWidth  uint     `toml:"max_image_width"`
	Icon           string   `toml:"icon"`
	CommandID      string   `toml:"command_id"`
}

type RateLimitConfig struct {
	Enabled  bool     `toml:"enabled"`
	Requests int      `toml:"requests"`
	Window   Duration `toml:"window"`
}

type IMAPConfig struct {
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Folder   string `toml:"folder"`
}

type DevServerConfig struct {
	Enabled bool `toml:"enabled"`
	// Source is "dir" or "imap"
	Source    string `toml:"source"`
	Dir       string `toml:"dir"`
	JWTSecret string `toml:"jwt_secret"`
	// Credentials maps user names to bcrypt hashes of action tokens
	Credentials map[string]string `toml:"credentials"`
	IMAP        IMAPConfig        `toml:"imap"`
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Remote    RemoteConfig    `toml:"remote"`
	Storage   StorageConfig   `toml:"storage"`
	Signature SignatureConfig `toml:"signature"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	DevServer DevServerConfig `toml:"devserver"`
}

// Default returns the configuration used for anything a file leaves out
func Default() *Config {
	var config Config

	config.Server.Port = 3000
	config.Server.PublicURL = "http://localhost:3000"
	config.Log.Level = "info"

	config.Remote.URL = "http://localhost:3000"
	config.Remote.Timeout = Duration{30 * time.Second}

	config.Storage.Backend = "memory"
	config.Storage.Path = "./data"
	config.Storage.Sweep = "0 * * * *"

	config.Signature.Policy = "always"
	config.Signature.Timeout = Duration{10 * time.Second}
	config.Signature.AnonymousFetch = true
	config.Signature.MaxImageWidth = 600
	config.Signature.Icon = "eformity.tpicon_32x32"
	config.Signature.CommandID = "eformity.TaskpaneButton"

	config.RateLimit.Enabled = true
	config.RateLimit.Requests = 100
	config.RateLimit.Window = Duration{time.Minute}

	config.DevServer.Source = "dir"
	config.DevServer.Dir = "./signatures"
	config.DevServer.IMAP.Port = 993
	config.DevServer.IMAP.Folder = "Signatures"

	return &config
}

// LoadConfig reads filepath over the defaults, then applies .env and
// AUTOSIG_* environment overrides. A missing file is not an error.
func LoadConfig(filepath string) (*Config, error) {
	config := Default()

	if filepath != "" {
		_, err := toml.DecodeFile(filepath, config)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("parse %s: %w", filepath, err)
		}
	}

	_ = godotenv.Load(".env")
	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"PUBLIC_URL":        &c.Server.PublicURL,
		"LOG_LEVEL":         &c.Log.Level,
		"REMOTE_URL":        &c.Remote.URL,
		"STORAGE_BACKEND":   &c.Storage.Backend,
		"STORAGE_PATH":      &c.Storage.Path,
		"STORAGE_SWEEP":     &c.Storage.Sweep,
		"SIGNATURE_POLICY":  &c.Signature.Policy,
		"DEVSERVER_DIR":     &c.DevServer.Dir,
		"DEVSERVER_SECRET":  &c.DevServer.JWTSecret,
		"IMAP_PASSWORD":     &c.DevServer.IMAP.Password,
		"DEVSERVER_SOURCE":  &c.DevServer.Source,
		"SIGNATURE_ICON":    &c.Signature.Icon,
		"SIGNATURE_COMMAND": &c.Signature.CommandID,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		c.Server.Port = port
	}

	bools := map[string]*bool{
		"ANONYMOUS_FETCH":   &c.Signature.AnonymousFetch,
		"SANITIZE":          &c.Signature.Sanitize,
		"RATE_LIMIT":        &c.RateLimit.Enabled,
		"DEVSERVER_ENABLED": &c.DevServer.Enabled,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	durations := map[string]*Duration{
		"REMOTE_TIMEOUT":    &c.Remote.Timeout,
		"SIGNATURE_TIMEOUT": &c.Signature.Timeout,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
		}
	}
	return nil
}

// Validate rejects settings the daemon cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "", "memory", "bbolt", "bolt", "pebble":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.Signature.Policy) {
	case "", "always", "stale":
	default:
		return fmt.Errorf("unknown signature policy %q", c.Signature.Policy)
	}

	if c.DevServer.Enabled {
		switch c.DevServer.Source {
		case "dir":
			if c.DevServer.Dir == "" {
				return fmt.Errorf("devserver dir is required")
			}
		case "imap":
			if c.DevServer.IMAP.Server == "" {
				return fmt.Errorf("devserver imap server is required")
			}
		default:
			return fmt.Errorf("unknown devserver source %q", c.DevServer.Source)
		}
	}
	return nil
}
