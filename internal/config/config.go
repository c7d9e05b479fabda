package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const DevJWTSecret = "dev-secret-change-me"

type Config struct {
	Port        string `yaml:"port" env:"APP_PORT" env-default:"8080"`
	DatabaseDSN string `yaml:"database_dsn" env:"DATABASE_DSN" env-default:"host=localhost user=postgres password=postgres dbname=socialchat port=5432 sslmode=disable TimeZone=UTC"`
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"dev-secret-change-me"`
	Env         string `yaml:"env" env:"APP_ENV" env-default:"dev"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	AccessTokenTTL     time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	TokenSweepInterval time.Duration `yaml:"token_sweep_interval" env:"TOKEN_SWEEP_INTERVAL" env-default:"6h"`

	WSAllowedOrigins []string `yaml:"ws_allowed_origins" env:"WS_ALLOWED_ORIGINS" env-separator:","`
	WSFrameRate      float64  `yaml:"ws_frame_rate" env:"WS_FRAME_RATE" env-default:"20"`
	WSFrameBurst     int      `yaml:"ws_frame_burst" env:"WS_FRAME_BURST" env-default:"40"`
	HTTPRate         float64  `yaml:"http_rate" env:"HTTP_RATE" env-default:"20"`
	HTTPBurst        int      `yaml:"http_burst" env:"HTTP_BURST" env-default:"40"`
}

// Load 在设置了 CONFIG_PATH 时先读取 YAML 文件，再由环境变量覆盖；
// 否则只使用环境变量与默认值。
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("APP_PORT must not be empty")
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == DevJWTSecret {
		return errors.New("JWT_SECRET must be changed outside dev")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if cfg.TokenSweepInterval <= 0 {
		return errors.New("TOKEN_SWEEP_INTERVAL must be positive")
	}
	return nil
}
