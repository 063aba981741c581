package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SecretEnvVar is the environment variable consulted first when resolving
// the shared secret.
const SecretEnvVar = "HOOKSINK_SECRET"

// DefaultMaxBodySize caps the accepted request body at 1 MB unless configured.
const DefaultMaxBodySize = int64(1048576)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config represents the complete hooksink configuration.
type Config struct {
	// Listen is the bind address, e.g. ":8000" or "127.0.0.1:8000".
	Listen string `yaml:"listen"`

	// Secret is the shared HMAC secret. Prefer SecretEnv or the
	// HOOKSINK_SECRET environment variable over an inline value.
	Secret string `yaml:"secret,omitempty"`

	// SecretEnv names an environment variable holding the secret.
	SecretEnv string `yaml:"secret_env,omitempty"`

	// SignatureHeader is the HTTP header carrying the hex HMAC digest.
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize is the maximum accepted body size, e.g. "1MB" or "2048".
	MaxBodySize string `yaml:"max_body_size,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// EventBuffer is the ring capacity of the in-memory delivery stream.
	EventBuffer int `yaml:"event_buffer,omitempty"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Listen:          ":8000",
		SignatureHeader: "X-HMAC-Signature",
		LogLevel:        "INFO",
		LogFormat:       "text",
		EventBuffer:     100,
	}
}

// Load reads and parses configuration from a YAML file. Values of the form
// ${VAR} are expanded from the environment before parsing; referencing an
// unset variable is an error so that a missing secret fails loudly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", path)
	}

	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func expandEnv(s string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unset environment variable(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Validate checks field values that would otherwise fail at serve time.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.SignatureHeader == "" {
		return fmt.Errorf("signature_header must not be empty")
	}
	if _, err := c.MaxBodyBytes(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must not be negative")
	}
	return nil
}

// ResolveSecret returns the shared secret, preferring HOOKSINK_SECRET, then
// secret_env, then the inline secret value.
func (c *Config) ResolveSecret() (string, error) {
	if v := os.Getenv(SecretEnvVar); v != "" {
		return v, nil
	}
	if c.SecretEnv != "" {
		v := os.Getenv(c.SecretEnv)
		if v == "" {
			return "", fmt.Errorf("secret_env %q is not set in the environment", c.SecretEnv)
		}
		return v, nil
	}
	if c.Secret != "" {
		return c.Secret, nil
	}
	return "", fmt.Errorf("no shared secret configured (set %s, secret_env, or secret)", SecretEnvVar)
}

// MaxBodyBytes parses MaxBodySize ("1MB", "512KB", "2048") into bytes.
// Returns DefaultMaxBodySize when unset.
func (c *Config) MaxBodyBytes() (int64, error) {
	size := c.MaxBodySize
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid max_body_size %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("max_body_size must be positive, got %q", size)
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("max_body_size %q overflows", size)
	}
	return result, nil
}
