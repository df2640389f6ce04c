package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	DB        DBConfig        `yaml:"db"`
	Minecraft MinecraftConfig `yaml:"minecraft"`
	Docker    DockerConfig    `yaml:"docker"`
	RCON      RCONConfig      `yaml:"rcon"`
	Modrinth  ModrinthConfig  `yaml:"modrinth"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Events    EventsConfig    `yaml:"events"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type HTTPConfig struct {
	Port      string `yaml:"port"`       // Port to listen on
	PublicURL string `yaml:"public_url"` // Prefix for URLs handed to game clients
}

type DBConfig struct {
	DBPath string `yaml:"path"`   // Path to store db file
	DBFile string `yaml:"file"`   // Name of database file
	Bucket string `yaml:"bucket"` // Prefix for bucket names
}

type MinecraftConfig struct {
	DataDir        string `yaml:"data_dir"`        // Server data volume
	PropertiesPath string `yaml:"properties_path"` // Defaults to <data_dir>/server.properties
	WhitelistPath  string `yaml:"whitelist_path"`  // Defaults to <data_dir>/whitelist.json
	Version        string `yaml:"version"`         // Game version used for Modrinth lookups
	Loader         string `yaml:"loader"`          // forge, fabric, neoforge ...
}

type DockerConfig struct {
	Host          string   `yaml:"host"`           // unix:///var/run/docker.sock or tcp://host:port
	APIVersion    string   `yaml:"api_version"`    // Engine API version prefix
	ContainerName string   `yaml:"container_name"` // Minecraft container
	Timeout       Duration `yaml:"timeout"`        // Timeout for non-streaming calls
}

type RCONConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

type ModrinthConfig struct {
	BaseURL   string   `yaml:"base_url"`
	UserAgent string   `yaml:"user_agent"`
	CacheSize int      `yaml:"cache_size"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

type AuthConfig struct {
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	SessionTTL Duration `yaml:"session_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type EventsConfig struct {
	RedisURL string `yaml:"redis_url"` // Empty disables event publishing
	Prefix   string `yaml:"prefix"`
}

type MirrorConfig struct {
	Bucket       string `yaml:"bucket"` // Empty disables the S3 mirror
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	Prefix       string `yaml:"prefix"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Serve /metrics
}

// Defaults holds the default configuration values which can be overridden by environment variables
var Defaults = Config{
	HTTP: HTTPConfig{
		Port:      getEnv("HTTP_PORT", "8080"),
		PublicURL: getEnv("HTTP_PUBLIC_URL", ""),
	},
	DB: DBConfig{
		DBPath: getEnv("DB_PATH", "./"),
		DBFile: getEnv("DB_FILE", "mcpanel.db"),
		Bucket: getEnv("DB_BUCKET", "mcpanel"),
	},
	Minecraft: MinecraftConfig{
		DataDir:        getEnv("MC_DATA_PATH", "/minecraft-data"),
		PropertiesPath: getEnv("MC_PROPERTIES_PATH", ""),
		WhitelistPath:  getEnv("MC_WHITELIST_PATH", ""),
		Version:        getEnv("MC_VERSION", "1.20.1"),
		Loader:         getEnv("MC_LOADER", "forge"),
	},
	Docker: DockerConfig{
		Host:          getEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),
		APIVersion:    getEnv("DOCKER_API_VERSION", "v1.43"),
		ContainerName: getEnv("MC_CONTAINER_NAME", "minecraft-forge"),
		Timeout:       Duration{30 * time.Second},
	},
	RCON: RCONConfig{
		Host:     getEnv("RCON_HOST", "localhost"),
		Port:     getEnvInt("RCON_PORT", 25575),
		Password: getEnv("RCON_PASSWORD", ""),
		Timeout:  Duration{10 * time.Second},
	},
	Modrinth: ModrinthConfig{
		BaseURL:   getEnv("MODRINTH_API", "https://api.modrinth.com/v2"),
		UserAgent: getEnv("MODRINTH_USER_AGENT", "mcpanel/1.0.0"),
		CacheSize: 256,
		CacheTTL:  Duration{5 * time.Minute},
	},
	Auth: AuthConfig{
		Username:   getEnv("ADMIN_USERNAME", "admin"),
		Password:   getEnv("ADMIN_PASSWORD", ""),
		SessionTTL: Duration{24 * time.Hour},
	},
	Log: LogConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	},
	Events: EventsConfig{
		RedisURL: getEnv("EVENTS_REDIS_URL", ""),
		Prefix:   getEnv("EVENTS_PREFIX", "mcpanel:events"),
	},
	Mirror: MirrorConfig{
		Bucket:       getEnv("MIRROR_S3_BUCKET", ""),
		Region:       getEnv("MIRROR_S3_REGION", "us-east-1"),
		Endpoint:     getEnv("MIRROR_S3_ENDPOINT", ""),
		Prefix:       getEnv("MIRROR_S3_PREFIX", "resourcepacks/"),
		UsePathStyle: getEnvBool("MIRROR_S3_PATH_STYLE", false),
	},
	Metrics: MetricsConfig{
		Enabled: getEnvBool("METRICS_ENABLED", true),
	},
}

// LoadDefault returns a copy of Defaults after validation.
func LoadDefault() (*Config, error) {
	cfg := Defaults
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.HTTP.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("http.port: invalid port %q", c.HTTP.Port)
	}
	if c.RCON.Port <= 0 || c.RCON.Port > 65535 {
		return fmt.Errorf("rcon.port: invalid port %d", c.RCON.Port)
	}
	if strings.TrimSpace(c.Minecraft.DataDir) == "" {
		return fmt.Errorf("minecraft.data_dir is required")
	}
	if c.DB.DBFile == "" {
		return fmt.Errorf("db.file is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if c.Mirror.Bucket != "" && c.Mirror.Region == "" {
		return fmt.Errorf("mirror.region is required when mirror.bucket is set")
	}
	return nil
}

// DatabasePath returns the full path of the bbolt file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DB.DBPath, c.DB.DBFile)
}

func (c *Config) ModsDir() string { return filepath.Join(c.Minecraft.DataDir, "mods") }

func (c *Config) ShadersDir() string { return filepath.Join(c.Minecraft.DataDir, "shaderpacks") }

func (c *Config) ResourcePacksDir() string { return filepath.Join(c.Minecraft.DataDir, "resourcepacks") }

func (c *Config) CustomPacksDir() string {
	return filepath.Join(c.Minecraft.DataDir, "resourcepacks-custom")
}

func (c *Config) IconPath() string { return filepath.Join(c.Minecraft.DataDir, "server-icon.png") }

// PropertiesPath returns the server.properties location.
func (c *Config) PropertiesPath() string {
	if c.Minecraft.PropertiesPath != "" {
		return c.Minecraft.PropertiesPath
	}
	return filepath.Join(c.Minecraft.DataDir, "server.properties")
}

// WhitelistPath returns the whitelist.json location.
func (c *Config) WhitelistPath() string {
	if c.Minecraft.WhitelistPath != "" {
		return c.Minecraft.WhitelistPath
	}
	return filepath.Join(c.Minecraft.DataDir, "whitelist.json")
}

// getEnv returns the value of the environment variable key if it exists, otherwise it returns the fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
