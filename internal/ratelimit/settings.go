package ratelimit

import (
	"strings"

	"github.com/router-for-me/mealtracker/internal/config"
)

// SettingsConfig captures the rate limit settings in effect.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig converts the rate-limit section of the service config.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	settings := SettingsConfig{
		Limit:         cfg.Limit,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: strings.TrimSpace(cfg.Redis.Password),
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if settings.RedisPrefix == "" {
		settings.RedisPrefix = config.DefaultRateLimitRedisPrefix
	}
	if settings.RedisDB < 0 {
		settings.RedisDB = 0
	}
	if settings.Limit < 0 {
		settings.Limit = 0
	}
	return settings
}

// StaticSettings returns a provider that always yields settings.
func StaticSettings(settings SettingsConfig) SettingsProvider {
	return func() SettingsConfig {
		return settings
	}
}
