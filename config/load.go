package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Duration wraps time.Duration so YAML files can say "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}

// Load reads a YAML config file on top of Defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Defaults
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// ConfigBuilder assembles a Config for tests and embedded use.
type ConfigBuilder struct {
	cfg Config
}

// NewConfigBuilder starts from Defaults.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: Defaults}
}

func (b *ConfigBuilder) WithDBPath(path string) *ConfigBuilder {
	b.cfg.DB.DBPath = path
	return b
}

func (b *ConfigBuilder) WithDBFile(file string) *ConfigBuilder {
	b.cfg.DB.DBFile = file
	return b
}

func (b *ConfigBuilder) WithBucket(bucket string) *ConfigBuilder {
	b.cfg.DB.Bucket = bucket
	return b
}

func (b *ConfigBuilder) WithDataDir(dir string) *ConfigBuilder {
	b.cfg.Minecraft.DataDir = dir
	return b
}

func (b *ConfigBuilder) WithPort(port string) *ConfigBuilder {
	b.cfg.HTTP.Port = port
	return b
}

func (b *ConfigBuilder) WithPublicURL(url string) *ConfigBuilder {
	b.cfg.HTTP.PublicURL = url
	return b
}

func (b *ConfigBuilder) WithRCON(host string, port int, password string) *ConfigBuilder {
	b.cfg.RCON.Host = host
	b.cfg.RCON.Port = port
	b.cfg.RCON.Password = password
	return b
}

func (b *ConfigBuilder) WithAdmin(username, password string) *ConfigBuilder {
	b.cfg.Auth.Username = username
	b.cfg.Auth.Password = password
	return b
}

// Build validates and returns the assembled Config.
func (b *ConfigBuilder) Build() (*Config, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
