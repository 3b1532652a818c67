package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Upload    UploadConfig   `mapstructure:"upload"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	APIKey    string         `mapstructure:"api_key"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type UploadConfig struct {
	MaxFileSize     int64         `mapstructure:"max_file_size"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		// _time_format makes the driver bind time.Time values in SQLite's
		// own text format, so they can be parsed back on read.
		return d.Path + "/" + d.Name + ".db?_time_format=sqlite"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 3000)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.path", "./data")
	viper.SetDefault("database.name", "imgbed")
	viper.SetDefault("jwt_secret", "changeme-secret")
	viper.SetDefault("api_key", "")
	viper.SetDefault("upload.max_file_size", 104857600) // 100 MiB
	viper.SetDefault("upload.upstream_timeout", 30*time.Second)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env cover a fresh checkout.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
