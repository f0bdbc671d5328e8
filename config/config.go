package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger    `mapstructure:"logger"`
	DB        Database  `mapstructure:"database"`
	API       API       `mapstructure:"api"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Billing   Billing   `mapstructure:"billing"`
	Cache     Cache     `mapstructure:"cache"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type Scheduler struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	TickTimeout    time.Duration `mapstructure:"tick_timeout"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Billing struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	APIToken         string        `mapstructure:"api_token"`
	MaxRequestPerSec int           `mapstructure:"max_request_per_sec"`
	Burst            int           `mapstructure:"burst"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

func Load() (*Config, error) {
	// .env entries behave like the environment so local runs match deploys.
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("scheduler.max_concurrency", 5)
	viper.SetDefault("scheduler.tick_timeout", "5m")
	viper.SetDefault("billing.timeout", "30s")
	viper.SetDefault("billing.max_request_per_sec", 5)
	viper.SetDefault("billing.burst", 10)
	viper.SetDefault("cache.default_expiration", "24h")
	viper.SetDefault("cache.cleanup_interval", "1h")
}
