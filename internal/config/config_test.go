package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const snowflakeSecrets = `
[app]
candidates = 2

[snowflake]
user = "analyst"
password = "s3cret"
account = "xy12345.eu-central-1"
database = "SNOWBOTIUM"
schema = "PUBLIC"
table_files = "snowbotium_files"
table_responses = "snowbotium_responses"

[providers.openai]
api_key = "sk-file"
`

func writeSecrets(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	return path
}

func TestLoadSnowflakeSecrets(t *testing.T) {
	cfg, err := Load(writeSecrets(t, snowflakeSecrets))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Driver != DriverSnowflake {
		t.Fatalf("expected snowflake driver, got %q", cfg.App.Driver)
	}
	if cfg.Snowflake.Warehouse != DefaultWarehouse {
		t.Fatalf("expected default warehouse, got %q", cfg.Snowflake.Warehouse)
	}
	if cfg.App.Candidates != 2 {
		t.Fatalf("expected 2 candidates, got %d", cfg.App.Candidates)
	}
	if cfg.RequestTimeout().Seconds() != 30 {
		t.Fatalf("expected 30s timeout, got %s", cfg.RequestTimeout())
	}
	if got := cfg.Provider().Model; got != "gpt-3.5-turbo" {
		t.Fatalf("expected default openai model, got %q", got)
	}
	tables := cfg.Tables()
	if tables.Files != "snowbotium_files" || tables.Responses != "snowbotium_responses" {
		t.Fatalf("unexpected tables %+v", tables)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "env-user")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SNOWBOTIUM_TIMEOUT_SECONDS", "5")

	cfg, err := Load(writeSecrets(t, snowflakeSecrets))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Snowflake.User != "env-user" {
		t.Fatalf("env override ignored: %q", cfg.Snowflake.User)
	}
	if cfg.Provider().APIKey != "sk-env" {
		t.Fatalf("api key override ignored: %q", cfg.Provider().APIKey)
	}
	if cfg.App.RequestTimeoutSeconds != 5 {
		t.Fatalf("timeout override ignored: %d", cfg.App.RequestTimeoutSeconds)
	}
}

func TestMissingSnowflakeValuesFailStartup(t *testing.T) {
	t.Setenv("SNOWFLAKE_PASSWORD", "")
	t.Setenv("SNOWFLAKE_DATABASE", "")
	t.Setenv("SNOWFLAKE_SCHEMA", "")
	path := writeSecrets(t, `
[snowflake]
user = "analyst"
account = "xy12345"

[providers.openai]
api_key = "sk"
`)
	_, err := Load(path)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestMissingAPIKeyOnlyFailsProviderCheck(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeSecrets(t, `
[app]
driver = "sqlite"

[sqlite]
dsn = ":memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load without api key: %v", err)
	}
	if err := cfg.ValidateProvider(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestProviderCheckPassesWithKey(t *testing.T) {
	cfg, err := Load(writeSecrets(t, snowflakeSecrets))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ValidateProvider(); err != nil {
		t.Fatalf("validate provider: %v", err)
	}
}

func TestSnowflakeUsesDefaultTables(t *testing.T) {
	t.Setenv("SNOWFLAKE_TABLE_FILES", "")
	t.Setenv("SNOWFLAKE_TABLE_RESPONSES", "")
	path := writeSecrets(t, `
[snowflake]
user = "analyst"
password = "s3cret"
account = "xy12345"
database = "SNOWBOTIUM"
schema = "PUBLIC"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Driver != DriverSnowflake {
		t.Fatalf("expected snowflake driver, got %q", cfg.App.Driver)
	}
	if cfg.Tables().Files != DefaultFilesTable || cfg.Tables().Responses != DefaultResponsesTable {
		t.Fatalf("unexpected default tables %+v", cfg.Tables())
	}
}

func TestSQLiteUsesDefaultTables(t *testing.T) {
	path := writeSecrets(t, `
[app]
driver = "sqlite"

[sqlite]
dsn = ":memory:"

[providers.openai]
api_key = "sk"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Driver != DriverSQLite {
		t.Fatalf("expected sqlite3 driver, got %q", cfg.App.Driver)
	}
	if cfg.Tables().Files != DefaultFilesTable || cfg.Tables().Responses != DefaultResponsesTable {
		t.Fatalf("unexpected default tables %+v", cfg.Tables())
	}
}

func TestInvalidTableNameRejected(t *testing.T) {
	t.Setenv("SNOWFLAKE_TABLE_RESPONSES", "responses; DROP TABLE files")
	_, err := Load(writeSecrets(t, snowflakeSecrets))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestQualifiedTableNameAccepted(t *testing.T) {
	t.Setenv("SNOWFLAKE_TABLE_FILES", "SNOWBOTIUM.PUBLIC.FILES")
	if _, err := Load(writeSecrets(t, snowflakeSecrets)); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	t.Setenv("SNOWBOTIUM_LLM_PROVIDER", "huggingchat")
	_, err := Load(writeSecrets(t, snowflakeSecrets))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
