// Package config provides configuration management for realmgate.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with RG_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.realmgate/config.yaml, /etc/realmgate/config.yaml)
//  3. .env files
//  4. Environment variables (RG_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("GraphQL: %s:%d\n", cfg.Server.Host, cfg.GraphQL.Port)
//
// # Environment Variables
//
// Use RG_ prefix and underscores for nested keys:
//   - RG_NEO4J_URI=bolt://localhost:7687
//   - RG_DISCORD_CLIENT_SECRET=...
//   - RG_SESSION_SECRET=...
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	StorageNeo4j  = "neo4j"
	StorageMemory = "memory"
)

// Session store backends
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config is the root configuration structure for realmgate.
type Config struct {
	// Server contains settings shared by every HTTP listener
	Server ServerConfig `mapstructure:"server"`

	// GraphQL contains the graph API gateway settings
	GraphQL GraphQLConfig `mapstructure:"graphql"`

	// Auth contains the auth gateway listener settings
	Auth AuthConfig `mapstructure:"auth"`

	// Chat contains the realtime channel settings
	Chat ChatConfig `mapstructure:"chat"`

	// Storage selects the graph store backend
	Storage StorageConfig `mapstructure:"storage"`

	// Neo4j contains database connection settings
	Neo4j Neo4jConfig `mapstructure:"neo4j"`

	// Discord contains the OAuth2 application credentials
	Discord DiscordConfig `mapstructure:"discord"`

	// Session contains login session settings
	Session SessionConfig `mapstructure:"session"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging"`

	// Security contains CORS and rate limiting settings
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration shared by all components.
type ServerConfig struct {
	// Host is the bind address for every listener (default: 0.0.0.0)
	Host string `mapstructure:"host" validate:"required"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug exposes internal error details in responses
	Debug bool `mapstructure:"debug"`
}

// GraphQLConfig contains the graph API gateway configuration.
type GraphQLConfig struct {
	// Port is the listen port (default: 3002)
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// Path is the GraphQL endpoint path (default: /graphql)
	Path string `mapstructure:"path" validate:"required,startswith=/"`

	// Playground serves the GraphQL playground at /
	Playground bool `mapstructure:"playground"`

	// SchemaFile overrides the embedded schema definition
	SchemaFile string `mapstructure:"schema_file"`
}

// AuthConfig contains the auth gateway configuration.
type AuthConfig struct {
	// Port is the listen port (default: 3003)
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// ChatConfig contains the realtime channel configuration.
type ChatConfig struct {
	// Port is the listen port (default: 3000)
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// Path is the WebSocket endpoint path (default: /socket)
	Path string `mapstructure:"path" validate:"required,startswith=/"`

	// SendBuffer is the per-client outbound queue length
	SendBuffer int `mapstructure:"send_buffer" validate:"min=1"`
}

// StorageConfig selects the graph store backend.
type StorageConfig struct {
	// Driver is neo4j or memory
	Driver string `mapstructure:"driver" validate:"oneof=neo4j memory"`
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	// URI is the Bolt/Neo4j URI (e.g., bolt://localhost:7687)
	URI string `mapstructure:"uri"`

	// Username for Neo4j authentication
	Username string `mapstructure:"username"`

	// Password for Neo4j authentication
	Password string `mapstructure:"password"`

	// Database is the database name to use
	Database string `mapstructure:"database"`
}

// DiscordConfig contains the Discord OAuth2 application settings.
type DiscordConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	CallbackURL  string   `mapstructure:"callback_url" validate:"omitempty,url"`
	Scopes       []string `mapstructure:"scopes"`

	// AuthURL is the authorize page (default: https://discord.com/oauth2/authorize)
	AuthURL string `mapstructure:"auth_url" validate:"required,url"`

	// APIBaseURL is the REST API root used for the token exchange and the profile (default: https://discord.com/api)
	APIBaseURL string `mapstructure:"api_base_url" validate:"required,url"`
}

// SessionConfig contains login session settings.
type SessionConfig struct {
	// Secret signs session tokens
	Secret string `mapstructure:"secret" validate:"required"`

	// TTL is the session lifetime (default: 24h)
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`

	// StateTTL is how long an OAuth state value stays valid (default: 10m)
	StateTTL time.Duration `mapstructure:"state_ttl" validate:"gt=0"`

	// CookieName is the session cookie name
	CookieName string `mapstructure:"cookie_name" validate:"required"`

	// CookieSecure sets the Secure flag on the session cookie
	CookieSecure bool `mapstructure:"cookie_secure"`

	// Store is memory or redis
	Store string `mapstructure:"store" validate:"oneof=memory redis"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`

	// Format is the log format (console, json)
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SecurityConfig contains CORS and rate limiting settings.
type SecurityConfig struct {
	// AllowedOrigins are the origins allowed for cross-origin HTTP and WebSocket requests
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// RateLimit is the maximum requests per second per client (0 disables)
	RateLimit int `mapstructure:"rate_limit" validate:"min=0"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.realmgate")
		v.AddConfigPath("/etc/realmgate")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("RG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("graphql.port", 3002)
	v.SetDefault("graphql.path", "/graphql")
	v.SetDefault("graphql.playground", true)

	v.SetDefault("auth.port", 3003)

	v.SetDefault("chat.port", 3000)
	v.SetDefault("chat.path", "/socket")
	v.SetDefault("chat.send_buffer", 256)

	v.SetDefault("storage.driver", StorageNeo4j)

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("discord.client_id", "")
	v.SetDefault("discord.client_secret", "")
	v.SetDefault("discord.callback_url", "http://localhost:3003/auth/discord/callback")
	v.SetDefault("discord.scopes", []string{"identify"})
	v.SetDefault("discord.auth_url", "https://discord.com/oauth2/authorize")
	v.SetDefault("discord.api_base_url", "https://discord.com/api")

	v.SetDefault("session.secret", "change-me-in-production")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.state_ttl", "10m")
	v.SetDefault("session.cookie_name", "realmgate_session")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.store", SessionStoreMemory)
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("security.allowed_origins", []string{"http://localhost:3001"})
	v.SetDefault("security.rate_limit", 100)
}

var structValidator = validator.New()

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	if cfg.Storage.Driver == StorageNeo4j && cfg.Neo4j.URI == "" {
		return fmt.Errorf("neo4j uri is required")
	}

	if cfg.Session.Store == SessionStoreRedis && cfg.Session.RedisAddr == "" {
		return fmt.Errorf("session redis_addr is required for the redis store")
	}

	ports := map[int]string{}
	for name, port := range map[string]int{
		"graphql": cfg.GraphQL.Port,
		"auth":    cfg.Auth.Port,
		"chat":    cfg.Chat.Port,
	} {
		if other, ok := ports[port]; ok {
			return fmt.Errorf("%s and %s both listen on port %d", name, other, port)
		}
		ports[port] = name
	}

	return nil
}

// Get returns the configuration from the last successful Load.
func Get() *Config {
	return cfg
}

// Address returns host:port for a component listener.
func (c *ServerConfig) Address(port int) string {
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
