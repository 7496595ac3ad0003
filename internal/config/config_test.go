package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults tests that default configuration values are loaded correctly.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default server host '0.0.0.0', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}

	if cfg.GraphQL.Port != 3002 {
		t.Errorf("Expected default graphql port 3002, got %d", cfg.GraphQL.Port)
	}
	if cfg.GraphQL.Path != "/graphql" {
		t.Errorf("Expected default graphql path '/graphql', got '%s'", cfg.GraphQL.Path)
	}
	if cfg.Auth.Port != 3003 {
		t.Errorf("Expected default auth port 3003, got %d", cfg.Auth.Port)
	}
	if cfg.Chat.Port != 3000 {
		t.Errorf("Expected default chat port 3000, got %d", cfg.Chat.Port)
	}
	if cfg.Chat.Path != "/socket" {
		t.Errorf("Expected default chat path '/socket', got '%s'", cfg.Chat.Path)
	}

	if cfg.Storage.Driver != StorageNeo4j {
		t.Errorf("Expected default storage driver neo4j, got '%s'", cfg.Storage.Driver)
	}
	if cfg.Neo4j.URI != "bolt://localhost:7687" {
		t.Errorf("Expected default neo4j uri, got '%s'", cfg.Neo4j.URI)
	}

	if len(cfg.Discord.Scopes) != 1 || cfg.Discord.Scopes[0] != "identify" {
		t.Errorf("Expected default discord scopes [identify], got %v", cfg.Discord.Scopes)
	}
	if cfg.Discord.APIBaseURL != "https://discord.com/api" {
		t.Errorf("Expected default discord api base url, got '%s'", cfg.Discord.APIBaseURL)
	}

	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("Expected default session ttl 24h, got %v", cfg.Session.TTL)
	}
	if cfg.Session.StateTTL != 10*time.Minute {
		t.Errorf("Expected default state ttl 10m, got %v", cfg.Session.StateTTL)
	}
	if cfg.Session.Store != SessionStoreMemory {
		t.Errorf("Expected default session store memory, got '%s'", cfg.Session.Store)
	}

	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "http://localhost:3001" {
		t.Errorf("Expected default allowed origins [http://localhost:3001], got %v", cfg.Security.AllowedOrigins)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default logging level 'info', got '%s'", cfg.Logging.Level)
	}
	if Get() != cfg {
		t.Errorf("Expected Get() to return the loaded config")
	}
}

// TestLoadFromFile tests loading a YAML file over the defaults.
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
graphql:
  port: 4002
storage:
  driver: memory
security:
  allowed_origins:
    - https://play.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GraphQL.Port != 4002 {
		t.Errorf("Expected graphql port 4002, got %d", cfg.GraphQL.Port)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("Expected storage driver memory, got '%s'", cfg.Storage.Driver)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "https://play.example.com" {
		t.Errorf("Unexpected allowed origins %v", cfg.Security.AllowedOrigins)
	}
	// untouched keys keep their defaults
	if cfg.Chat.Port != 3000 {
		t.Errorf("Expected default chat port 3000, got %d", cfg.Chat.Port)
	}
}

// TestEnvironmentOverride tests that RG_ environment variables win over defaults.
func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("RG_CHAT_PORT", "4000")
	t.Setenv("RG_SESSION_SECRET", "from-env")

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Chat.Port != 4000 {
		t.Errorf("Expected chat port 4000 from env, got %d", cfg.Chat.Port)
	}
	if cfg.Session.Secret != "from-env" {
		t.Errorf("Expected session secret from env, got '%s'", cfg.Session.Secret)
	}
}

// TestEnvironmentOnlyCredentials loads credentials that appear in no config file.
func TestEnvironmentOnlyCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RG_DISCORD_CLIENT_ID", "1234")
	t.Setenv("RG_DISCORD_CLIENT_SECRET", "shh")
	t.Setenv("RG_SESSION_REDIS_PASSWORD", "redis-pass")
	t.Setenv("RG_NEO4J_PASSWORD", "neo-pass")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"discord client id", cfg.Discord.ClientID, "1234"},
		{"discord client secret", cfg.Discord.ClientSecret, "shh"},
		{"redis password", cfg.Session.RedisPassword, "redis-pass"},
		{"neo4j password", cfg.Neo4j.Password, "neo-pass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %q from env, got %q", tt.want, tt.got)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Host: "localhost"},
		GraphQL: GraphQLConfig{Port: 3002, Path: "/graphql"},
		Auth:    AuthConfig{Port: 3003},
		Chat:    ChatConfig{Port: 3000, Path: "/socket", SendBuffer: 16},
		Storage: StorageConfig{Driver: StorageMemory},
		Discord: DiscordConfig{
			AuthURL:    "https://discord.com/oauth2/authorize",
			APIBaseURL: "https://discord.com/api",
		},
		Session: SessionConfig{
			Secret:     "secret",
			TTL:        time.Hour,
			StateTTL:   time.Minute,
			CookieName: "session",
			Store:      SessionStoreMemory,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// TestValidation tests the configuration validation logic.
func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
		errMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:      "invalid port - too high",
			mutate:    func(c *Config) { c.GraphQL.Port = 70000 },
			expectErr: true,
			errMsg:    "Port",
		},
		{
			name:      "unknown storage driver",
			mutate:    func(c *Config) { c.Storage.Driver = "couchdb" },
			expectErr: true,
			errMsg:    "Driver",
		},
		{
			name: "neo4j without uri",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageNeo4j
				c.Neo4j.URI = ""
			},
			expectErr: true,
			errMsg:    "neo4j uri is required",
		},
		{
			name: "redis store without address",
			mutate: func(c *Config) {
				c.Session.Store = SessionStoreRedis
				c.Session.RedisAddr = ""
			},
			expectErr: true,
			errMsg:    "redis_addr is required",
		},
		{
			name:      "missing session secret",
			mutate:    func(c *Config) { c.Session.Secret = "" },
			expectErr: true,
			errMsg:    "Secret",
		},
		{
			name:      "port collision",
			mutate:    func(c *Config) { c.Auth.Port = c.Chat.Port },
			expectErr: true,
			errMsg:    "both listen on port 3000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1"}
	if got := s.Address(3002); got != "127.0.0.1:3002" {
		t.Errorf("Address() = %s, want 127.0.0.1:3002", got)
	}
}
