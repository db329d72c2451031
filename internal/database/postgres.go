package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

var db *sql.DB

// DBConfig holds database configuration. LockTimeout bounds how long an award or
// redemption waits on a locked user or counter row before the attempt fails.
type DBConfig struct {
	Host             string
	Port             string
	User             string
	Password         string
	Name             string
	SSLMode          string
	AppName          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "loyalty_points")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)
	viper.SetDefault("database.conn_max_idle_time", time.Minute)
	viper.SetDefault("database.application_name", "rewardloop-points")
	viper.SetDefault("database.lock_timeout", 3*time.Second)
	viper.SetDefault("database.statement_timeout", 15*time.Second)
	viper.SetDefault("database.auto_migrate", true)

	return &DBConfig{
		Host:             viper.GetString("database.host"),
		Port:             viper.GetString("database.port"),
		User:             viper.GetString("database.user"),
		Password:         viper.GetString("database.password"),
		Name:             viper.GetString("database.name"),
		SSLMode:          viper.GetString("database.ssl_mode"),
		AppName:          viper.GetString("database.application_name"),
		MaxOpenConns:     viper.GetInt("database.max_open_conns"),
		MaxIdleConns:     viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime:  viper.GetDuration("database.conn_max_lifetime"),
		ConnMaxIdleTime:  viper.GetDuration("database.conn_max_idle_time"),
		LockTimeout:      viper.GetDuration("database.lock_timeout"),
		StatementTimeout: viper.GetDuration("database.statement_timeout"),
	}
}

// DSN builds the lib/pq connection string. Timeouts are sent as session settings in
// milliseconds; zero leaves the server default.
func (c *DBConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
	if c.AppName != "" {
		dsn += " application_name=" + c.AppName
	}
	if c.LockTimeout > 0 {
		dsn += fmt.Sprintf(" lock_timeout=%d", c.LockTimeout.Milliseconds())
	}
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return dsn
}

// InitDB initializes the database connection
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	var err error
	db, err = sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	log.Println("[DATABASE] Connection established")
	return db, nil
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// InitDatabase initializes the database and applies the schema, exiting on failure
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if viper.GetBool("database.auto_migrate") {
		if err := Migrate(context.Background(), db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}
	return db
}
