package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"snowbotium/internal/config"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/snowflakedb/gosnowflake"
)

var (
	// ErrConnection means the warehouse could not be reached or rejected the session.
	ErrConnection = errors.New("warehouse connection error")
	// ErrStorage means a single insert or scan failed.
	ErrStorage = errors.New("warehouse storage error")
)

const connectTimeout = 30 * time.Second

// Open connects to the warehouse selected by driver.
func Open(driver string, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config required", ErrConnection)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(driver) {
	case "sqlite", config.DriverSQLite:
		if cfg.SQLite.DSN == "" {
			return nil, fmt.Errorf("%w: sqlite dsn must be provided", ErrConnection)
		}
		db, err = sql.Open("sqlite3", cfg.SQLite.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite database: %v", ErrConnection, err)
		}
		// every pooled connection to :memory: would see its own empty database
		db.SetMaxOpenConns(1)
	case config.DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			cfg.MySQL.User,
			cfg.MySQL.Password,
			cfg.MySQL.Host,
			cfg.MySQL.Port,
			cfg.MySQL.Database,
			cfg.MySQL.Params,
		)
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, fmt.Errorf("%w: invalid mysql dsn: %v", ErrConnection, err)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: open mysql database: %v", ErrConnection, err)
		}
	case config.DriverSnowflake:
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   cfg.Snowflake.Account,
			User:      cfg.Snowflake.User,
			Password:  cfg.Snowflake.Password,
			Database:  cfg.Snowflake.Database,
			Schema:    cfg.Snowflake.Schema,
			Warehouse: cfg.Snowflake.Warehouse,
			Role:      cfg.Snowflake.Role,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: build snowflake dsn: %v", ErrConnection, err)
		}
		db, err = sql.Open("snowflake", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: open snowflake database: %v", ErrConnection, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported driver: %s", ErrConnection, driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrConnection, err)
	}
	return db, nil
}

// Migrate ensures the files and responses tables are present. It is safe to
// run on every start.
func Migrate(ctx context.Context, db *sql.DB, driver string, tables config.TableNames) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", config.DriverSQLite:
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT,
				filename TEXT,
				filedata TEXT
			)`, tables.Files),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT,
				prompt TEXT,
				response TEXT
			)`, tables.Responses),
		}
	case config.DriverMySQL:
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(64),
				filename VARCHAR(1024),
				filedata LONGTEXT
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, tables.Files),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(64),
				prompt TEXT,
				response LONGTEXT
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, tables.Responses),
		}
	case config.DriverSnowflake:
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id STRING,
				filename STRING,
				filedata VARCHAR
			)`, tables.Files),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id STRING,
				prompt STRING,
				response STRING
			)`, tables.Responses),
		}
	default:
		return fmt.Errorf("%w: unsupported driver for migration: %s", ErrConnection, driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate (%s): %v", ErrConnection, driver, err)
		}
	}
	return nil
}
