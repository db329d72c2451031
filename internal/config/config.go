package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type PointsConfig struct {
	Location  *time.Location
	TxTimeout time.Duration
	// StrictConfig panics on configuration errors instead of only logging them.
	StrictConfig bool
}

type RankingConfig struct {
	Enabled  bool
	Interval time.Duration
	Winners  int
	LockTTL  time.Duration
}

type Config struct {
	Port      string
	JWTSecret string
	Points    PointsConfig
	Ranking   RankingConfig
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("points.timezone", "Local")
	viper.SetDefault("points.tx_timeout", 10*time.Second)
	viper.SetDefault("ranking.enabled", true)
	viper.SetDefault("ranking.interval", time.Hour)
	viper.SetDefault("ranking.winners", 2)
	viper.SetDefault("ranking.lock_ttl", 10*time.Minute)
}

// Load reads the service configuration from viper, applying defaults.
func Load() *Config {
	setDefaults()

	tz := viper.GetString("points.timezone")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("[CONFIG] Unknown points.timezone %q, falling back to local time: %v", tz, err)
		loc = time.Local
	}

	winners := viper.GetInt("ranking.winners")
	if winners <= 0 {
		winners = 2
	}

	return &Config{
		Port:      viper.GetString("server.port"),
		JWTSecret: viper.GetString("jwt.secret_key"),
		Points: PointsConfig{
			Location:     loc,
			TxTimeout:    viper.GetDuration("points.tx_timeout"),
			StrictConfig: viper.GetString("app.env") != "production",
		},
		Ranking: RankingConfig{
			Enabled:  viper.GetBool("ranking.enabled"),
			Interval: viper.GetDuration("ranking.interval"),
			Winners:  winners,
			LockTTL:  viper.GetDuration("ranking.lock_ttl"),
		},
	}
}
