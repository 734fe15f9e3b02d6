package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrConfiguration marks a missing or malformed setting. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

const (
	DriverSnowflake = "snowflake"
	DriverMySQL     = "mysql"
	DriverSQLite    = "sqlite3"

	DefaultFilesTable     = "snowbotium_files"
	DefaultResponsesTable = "snowbotium_responses"
	DefaultWarehouse      = "COMPUTE_WH"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

var defaultModels = map[string]string{
	"openai": "gpt-3.5-turbo",
	"claude": "claude-3-5-haiku-latest",
	"gemini": "gemini-2.0-flash",
}

// Config represents runtime configuration for the service.
type Config struct {
	App       AppConfig                 `toml:"app"`
	Snowflake SnowflakeConfig           `toml:"snowflake"`
	MySQL     MySQLConfig               `toml:"mysql"`
	SQLite    SQLiteConfig              `toml:"sqlite"`
	LLM       LLMConfig                 `toml:"llm"`
	Providers map[string]ProviderConfig `toml:"providers"`
	Redis     RedisConfig               `toml:"redis"`
}

type AppConfig struct {
	ServerAddress         string `toml:"server_address"`
	Driver                string `toml:"driver"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	Candidates            int    `toml:"candidates"`
	SessionIdleMinutes    int    `toml:"session_idle_minutes"`
	GinMode               string `toml:"gin_mode"`
}

// SnowflakeConfig mirrors the [snowflake] block of the secrets file.
type SnowflakeConfig struct {
	User           string `toml:"user"`
	Password       string `toml:"password"`
	Account        string `toml:"account"`
	Warehouse      string `toml:"warehouse"`
	Database       string `toml:"database"`
	Schema         string `toml:"schema"`
	Role           string `toml:"role"`
	TableFiles     string `toml:"table_files"`
	TableResponses string `toml:"table_responses"`
}

type MySQLConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	Params   string `toml:"params"`
}

type SQLiteConfig struct {
	DSN string `toml:"dsn"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
}

type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type RedisConfig struct {
	Addr              string `toml:"addr"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	DB                int    `toml:"db"`
	HistoryTTLSeconds int    `toml:"history_ttl_seconds"`
}

// TableNames holds the two warehouse tables the record store writes to.
type TableNames struct {
	Files     string
	Responses string
}

// Tables returns the configured table names.
func (c *Config) Tables() TableNames {
	return TableNames{Files: c.Snowflake.TableFiles, Responses: c.Snowflake.TableResponses}
}

// Provider returns the settings of the active LLM provider.
func (c *Config) Provider() ProviderConfig {
	return c.Providers[c.LLM.Provider]
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.App.RequestTimeoutSeconds) * time.Second
}

func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.App.SessionIdleMinutes) * time.Minute
}

func (c *Config) HistoryTTL() time.Duration {
	return time.Duration(c.Redis.HistoryTTLSeconds) * time.Second
}

// RedisEnabled reports whether a history cache should be connected.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// Load reads the TOML secrets file at path (defaults to secrets.toml), applies
// environment overrides and validates the result. A missing file is not an
// error as long as the environment supplies every required value.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "secrets.toml"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve config path: %v", ErrConfiguration, err)
	}

	var cfg Config
	if _, err := os.Stat(absPath); err == nil {
		if _, err := toml.DecodeFile(absPath, &cfg); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrConfiguration, absPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrConfiguration, absPath, err)
	}

	overrideByEnv(&cfg)
	applyDefaults(&cfg)

	if cfg.App.Driver == DriverSQLite && cfg.SQLite.DSN != ":memory:" && !filepath.IsAbs(cfg.SQLite.DSN) && !strings.HasPrefix(cfg.SQLite.DSN, "file:") {
		cfg.SQLite.DSN = filepath.Join(filepath.Dir(absPath), cfg.SQLite.DSN)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideByEnv(cfg *Config) {
	cfg.App.ServerAddress = getEnv("SNOWBOTIUM_ADDR", cfg.App.ServerAddress)
	cfg.App.Driver = getEnv("SNOWBOTIUM_DB", cfg.App.Driver)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("SNOWBOTIUM_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)
	cfg.App.Candidates = getEnvAsInt("SNOWBOTIUM_CANDIDATES", cfg.App.Candidates)
	cfg.App.SessionIdleMinutes = getEnvAsInt("SNOWBOTIUM_SESSION_IDLE_MINUTES", cfg.App.SessionIdleMinutes)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Snowflake.User = getEnv("SNOWFLAKE_USER", cfg.Snowflake.User)
	cfg.Snowflake.Password = getEnv("SNOWFLAKE_PASSWORD", cfg.Snowflake.Password)
	cfg.Snowflake.Account = getEnv("SNOWFLAKE_ACCOUNT", cfg.Snowflake.Account)
	cfg.Snowflake.Warehouse = getEnv("SNOWFLAKE_WAREHOUSE", cfg.Snowflake.Warehouse)
	cfg.Snowflake.Database = getEnv("SNOWFLAKE_DATABASE", cfg.Snowflake.Database)
	cfg.Snowflake.Schema = getEnv("SNOWFLAKE_SCHEMA", cfg.Snowflake.Schema)
	cfg.Snowflake.Role = getEnv("SNOWFLAKE_ROLE", cfg.Snowflake.Role)
	cfg.Snowflake.TableFiles = getEnv("SNOWFLAKE_TABLE_FILES", cfg.Snowflake.TableFiles)
	cfg.Snowflake.TableResponses = getEnv("SNOWFLAKE_TABLE_RESPONSES", cfg.Snowflake.TableResponses)

	cfg.MySQL.Host = getEnv("MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Port = getEnvAsInt("MYSQL_PORT", cfg.MySQL.Port)
	cfg.MySQL.User = getEnv("MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.MySQL.Database)
	cfg.MySQL.Params = getEnv("MYSQL_PARAMS", cfg.MySQL.Params)

	cfg.SQLite.DSN = getEnv("SQLITE_DSN", cfg.SQLite.DSN)

	cfg.LLM.Provider = getEnv("SNOWBOTIUM_LLM_PROVIDER", cfg.LLM.Provider)
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	overrideProvider(cfg, "openai", "OPENAI")
	overrideProvider(cfg, "claude", "ANTHROPIC")
	overrideProvider(cfg, "gemini", "GEMINI")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Username = getEnv("REDIS_USERNAME", cfg.Redis.Username)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
}

func overrideProvider(cfg *Config, name, prefix string) {
	p := cfg.Providers[name]
	p.APIKey = getEnv(prefix+"_API_KEY", p.APIKey)
	p.BaseURL = getEnv(prefix+"_BASE_URL", p.BaseURL)
	p.Model = getEnv(prefix+"_MODEL", p.Model)
	if p == (ProviderConfig{}) {
		return
	}
	cfg.Providers[name] = p
}

func applyDefaults(cfg *Config) {
	if cfg.App.ServerAddress == "" {
		cfg.App.ServerAddress = ":8090"
	}
	cfg.App.Driver = strings.ToLower(strings.TrimSpace(cfg.App.Driver))
	switch cfg.App.Driver {
	case "":
		cfg.App.Driver = DriverSnowflake
	case "sqlite":
		cfg.App.Driver = DriverSQLite
	}
	if cfg.App.RequestTimeoutSeconds <= 0 {
		cfg.App.RequestTimeoutSeconds = 30
	}
	if cfg.App.Candidates <= 0 {
		cfg.App.Candidates = 1
	}
	if cfg.App.SessionIdleMinutes <= 0 {
		cfg.App.SessionIdleMinutes = 60
	}
	if cfg.Snowflake.Warehouse == "" {
		cfg.Snowflake.Warehouse = DefaultWarehouse
	}
	if cfg.Snowflake.TableFiles == "" {
		cfg.Snowflake.TableFiles = DefaultFilesTable
	}
	if cfg.Snowflake.TableResponses == "" {
		cfg.Snowflake.TableResponses = DefaultResponsesTable
	}
	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.MySQL.Params == "" {
		cfg.MySQL.Params = "charset=utf8mb4&parseTime=true"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	if p, ok := cfg.Providers[cfg.LLM.Provider]; ok && p.Model == "" {
		p.Model = defaultModels[cfg.LLM.Provider]
		cfg.Providers[cfg.LLM.Provider] = p
	}
	if cfg.Redis.HistoryTTLSeconds <= 0 {
		cfg.Redis.HistoryTTLSeconds = 60
	}
}

// Validate checks that every value required by the selected driver is present
// and that the provider is known. The provider key is checked by
// ValidateProvider, since only the server talks to the model.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	switch c.App.Driver {
	case DriverSnowflake:
		require("snowflake.user", c.Snowflake.User)
		require("snowflake.password", c.Snowflake.Password)
		require("snowflake.account", c.Snowflake.Account)
		require("snowflake.database", c.Snowflake.Database)
		require("snowflake.schema", c.Snowflake.Schema)
	case DriverMySQL:
		require("mysql.host", c.MySQL.Host)
		require("mysql.user", c.MySQL.User)
		require("mysql.database", c.MySQL.Database)
	case DriverSQLite:
		require("sqlite.dsn", c.SQLite.DSN)
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrConfiguration, c.App.Driver)
	}
	require("snowflake.table_files", c.Snowflake.TableFiles)
	require("snowflake.table_responses", c.Snowflake.TableResponses)

	if _, ok := defaultModels[c.LLM.Provider]; !ok {
		return fmt.Errorf("%w: unsupported llm provider %q", ErrConfiguration, c.LLM.Provider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	for _, name := range []string{c.Snowflake.TableFiles, c.Snowflake.TableResponses} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: invalid table name %q", ErrConfiguration, name)
		}
	}
	if c.Snowflake.TableFiles == c.Snowflake.TableResponses {
		return fmt.Errorf("%w: files and responses tables must differ", ErrConfiguration)
	}
	return nil
}

// ValidateProvider checks that the active provider can be called.
func (c *Config) ValidateProvider() error {
	if strings.TrimSpace(c.Provider().APIKey) == "" {
		return fmt.Errorf("%w: missing providers.%s.api_key", ErrConfiguration, c.LLM.Provider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
