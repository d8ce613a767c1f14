package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultMaxRoomMembers is the membership cap used when MAX_ROOM_MEMBERS is not set.
const DefaultMaxRoomMembers = 50

type Config struct {
	Port    string `mapstructure:"PORT"`
	GinMode string `mapstructure:"GIN_MODE"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBLogLevel        string        `mapstructure:"DB_LOG_LEVEL"`

	RedisURL      string `mapstructure:"REDIS_URL"`
	EventsChannel string `mapstructure:"EVENTS_CHANNEL"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	MaxRoomMembers int `mapstructure:"MAX_ROOM_MEMBERS"`
	TxMaxRetries   int `mapstructure:"TX_MAX_RETRIES"`

	CORSAllowedOrigins []string `mapstructure:"-"`
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"GIN_MODE":             "debug",
	"DB_MAX_IDLE_CONNS":    10,
	"DB_MAX_OPEN_CONNS":    100,
	"DB_CONN_MAX_LIFETIME": time.Hour,
	"DB_LOG_LEVEL":         "warn",
	"EVENTS_CHANNEL":       "taskrooms:events",
	"JWT_TTL":              24 * time.Hour,
	"MAX_ROOM_MEMBERS":     DefaultMaxRoomMembers,
	"TX_MAX_RETRIES":       3,
	"CORS_ALLOWED_ORIGINS": "http://localhost:3000,http://localhost:5173",
}

// Load reads .env.local / .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.MaxRoomMembers <= 0 {
		errs = append(errs, errors.New("MAX_ROOM_MEMBERS must be positive"))
	}
	if c.TxMaxRetries < 0 {
		errs = append(errs, errors.New("TX_MAX_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
