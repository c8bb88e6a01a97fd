package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Signing  SigningConfig  `mapstructure:"signing"`
	Session  SessionConfig  `mapstructure:"session"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Rules    RulesConfig    `mapstructure:"rules"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
	// BaseURL prefixes the URL of every session created on this node.
	BaseURL   string        `mapstructure:"base_url"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	// PlacementRate is the sustained number of placements per second a
	// single client may submit over HTTP.
	PlacementRate  float64 `mapstructure:"placement_rate"`
	PlacementBurst int     `mapstructure:"placement_burst"`
}

type DatabaseConfig struct {
	// Driver is one of "gorm", "pq" or "memory".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type SigningConfig struct {
	// Algorithm is "pbkdf2" or "argon2".
	Algorithm  string       `mapstructure:"algorithm"`
	Iterations int          `mapstructure:"iterations"`
	KeyLength  int          `mapstructure:"key_length"`
	Argon2     Argon2Config `mapstructure:"argon2"`
}

type Argon2Config struct {
	Time    uint32 `mapstructure:"time"`
	Memory  uint32 `mapstructure:"memory"`
	Threads uint8  `mapstructure:"threads"`
}

type SessionConfig struct {
	// JoinPolicy is "pre-start" or "any-time".
	JoinPolicy   string        `mapstructure:"join_policy"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type RulesConfig struct {
	// ScriptsDir holds *.lua rule sets registered next to the built-in
	// ones. Empty disables scripted rules.
	ScriptsDir    string        `mapstructure:"scripts_dir"`
	ScriptTimeout time.Duration `mapstructure:"script_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.placement_rate", 5.0)
	v.SetDefault("server.placement_burst", 10)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "playerhook")
	v.SetDefault("signing.algorithm", "pbkdf2")
	v.SetDefault("signing.iterations", 20000)
	v.SetDefault("signing.key_length", 8)
	v.SetDefault("signing.argon2.time", 1)
	v.SetDefault("signing.argon2.memory", 64*1024)
	v.SetDefault("signing.argon2.threads", 2)
	v.SetDefault("session.join_policy", "pre-start")
	v.SetDefault("session.sync_interval", 30*time.Second)
	v.SetDefault("webhook.timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.namespace", "playerhook")
	v.SetDefault("rules.script_timeout", time.Second)
}

// LoadConfig reads config.yaml from path, overlaid with PLAYERHOOK_*
// environment variables (a .env file in path is loaded first). A missing
// config file is not an error; defaults apply.
func LoadConfig(path string) (config *Config, err error) {
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("playerhook")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	return
}
