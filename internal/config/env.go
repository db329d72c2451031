package config

import (
	"log"

	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"app.env":                    "APP_ENV",
	"server.port":                "PORT",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.lock_timeout":      "DATABASE_LOCK_TIMEOUT",
	"database.statement_timeout": "DATABASE_STATEMENT_TIMEOUT",
	"redis.enabled":              "REDIS_ENABLED",
	"redis.host":                 "REDIS_HOST",
	"redis.port":                 "REDIS_PORT",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"jwt.secret_key":             "JWT_SECRET_KEY",
	"points.timezone":            "POINTS_TIMEZONE",
	"points.tx_timeout":          "POINTS_TX_TIMEOUT",
	"ranking.enabled":            "RANKING_ENABLED",
	"ranking.interval":           "RANKING_INTERVAL",
	"ranking.winners":            "RANKING_WINNERS",
	"ranking.lock_ttl":           "RANKING_LOCK_TTL",
}

// Init reads an optional .env file and binds the environment variables that override it.
func Init(file string) {
	if file == "" {
		file = ".env"
	}
	viper.SetConfigFile(file)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] Config file not found, using defaults: %v", err)
	}
}
