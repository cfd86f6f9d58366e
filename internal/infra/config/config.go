package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL       string
	DBEcho            bool
	DBPoolPrePing     bool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBPrepareStmt     bool
	DBAutoMigrate     bool

	SecretKey       string
	JWTAlgorithm    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	PasswordHasher string
	PasswordPepper string

	HTTPAddress      string
	APIPrefix        string
	AllowedOrigins   []string
	AllowCredentials bool

	RedisAddress  string
	RedisPassword string
	RedisDB       int
	UserCacheTTL  time.Duration

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "sqlite://users.db")
	v.SetDefault("DB_ECHO", false)
	v.SetDefault("DB_POOL_PRE_PING", true)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_PREPARE_STMT", false)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("ACCESS_TOKEN_TTL", "120m")
	v.SetDefault("REFRESH_TOKEN_TTL", "48h")

	v.SetDefault("PASSWORD_HASHER", "argon2id")

	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("ALLOW_CREDENTIALS", false)

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("USER_CACHE_TTL", "5m")

	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads the configuration from the environment, falling back to an
// optional .env file in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("DATABASE_URL"),
		DBEcho:            v.GetBool("DB_ECHO"),
		DBPoolPrePing:     v.GetBool("DB_POOL_PRE_PING"),
		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DBPrepareStmt:     v.GetBool("DB_PREPARE_STMT"),
		DBAutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),

		SecretKey:       v.GetString("SECRET_KEY"),
		JWTAlgorithm:    strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		AccessTokenTTL:  v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL: v.GetDuration("REFRESH_TOKEN_TTL"),

		PasswordHasher: strings.ToLower(v.GetString("PASSWORD_HASHER")),
		PasswordPepper: v.GetString("PASSWORD_PEPPER"),

		HTTPAddress:      v.GetString("HTTP_ADDRESS"),
		APIPrefix:        v.GetString("API_PREFIX"),
		AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
		AllowCredentials: v.GetBool("ALLOW_CREDENTIALS"),

		RedisAddress:  v.GetString("REDIS_ADDRESS"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		UserCacheTTL:  v.GetDuration("USER_CACHE_TTL"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("DATABASE_URL is required")
	case c.SecretKey == "":
		return errors.New("SECRET_KEY is required")
	case c.AccessTokenTTL <= 0:
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	case c.RefreshTokenTTL <= 0:
		return errors.New("REFRESH_TOKEN_TTL must be positive")
	}

	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm)
	}

	switch c.PasswordHasher {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("PASSWORD_HASHER %q is not supported", c.PasswordHasher)
	}
	return nil
}

// splitList accepts both "a,b" and the JSON-ish `["a","b"]` form.
func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
