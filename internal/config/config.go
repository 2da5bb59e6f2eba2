package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvDBConnection      = "DB_CONNECTION"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiry         = "JWT_EXPIRY"
	EnvNutritionixAppID  = "NUTRITIONIX_APP_ID"
	EnvNutritionixAppKey = "NUTRITIONIX_APP_KEY"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 48 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// RolesConfig names the seed roles and registration defaults.
type RolesConfig struct {
	Administrator        string `yaml:"administrator"`
	DataManager          string `yaml:"data-manager"`
	UserManager          string `yaml:"user-manager"`
	User                 string `yaml:"user"`
	DefaultRoleID        uint64 `yaml:"default-role-id"`
	DefaultDailyCalories int    `yaml:"default-daily-calories"`
}

// AccessConfig lists, per collection, the role names allowed to call it.
// "Admins" lists may also act on other users' rows.
type AccessConfig struct {
	MealAdmins string `yaml:"meal-admins"`
	MealUsers  string `yaml:"meal-users"`
	UserAdmins string `yaml:"user-admins"`
	UserUsers  string `yaml:"user-users"`
	RoleAdmins string `yaml:"role-admins"`
}

// PagingConfig holds default page sizes per collection.
type PagingConfig struct {
	MealPageSize int `yaml:"meal-page-size"`
	UserPageSize int `yaml:"user-page-size"`
	RolePageSize int `yaml:"role-page-size"`
}

// NutritionixConfig holds calorie lookup credentials.
type NutritionixConfig struct {
	AppID   string        `yaml:"app-id"`
	AppKey  string        `yaml:"app-key"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig holds optional Redis settings for the rate limiter.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds the per-user request limit.
type RateLimitConfig struct {
	Limit int         `yaml:"limit"`
	Redis RedisConfig `yaml:"redis"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ServiceConfig holds the service settings read from the YAML config file.
type ServiceConfig struct {
	Roles               RolesConfig       `yaml:"roles"`
	Access              AccessConfig      `yaml:"access"`
	Paging              PagingConfig      `yaml:"paging"`
	AllowModifyUserName bool              `yaml:"allow-modify-user-name"`
	Nutritionix         NutritionixConfig `yaml:"nutritionix"`
	RateLimit           RateLimitConfig   `yaml:"rate-limit"`
	Metrics             MetricsConfig     `yaml:"metrics"`
}

// Default role names and limits.
const (
	DefaultAdministratorRole    = "Administrator"
	DefaultDataManagerRole      = "DataManager"
	DefaultUserManagerRole      = "UserManager"
	DefaultUserRole             = "User"
	DefaultRoleID               = 4
	DefaultDailyCalories        = 2000
	DefaultMealPageSize         = 10
	DefaultUserPageSize         = 10
	DefaultRolePageSize         = 5
	DefaultNutritionixURL       = "https://trackapi.nutritionix.com/v2/natural/nutrients/"
	DefaultNutritionixTimeout   = 15 * time.Second
	DefaultRateLimitRedisPrefix = "meals:rl"
	DefaultMetricsNamespace     = "mealtracker"
)

// DefaultServiceConfig returns the settings used when the config file is silent.
func DefaultServiceConfig() ServiceConfig {
	admins := strings.Join([]string{DefaultAdministratorRole, DefaultDataManagerRole}, ",")
	userAdmins := strings.Join([]string{DefaultAdministratorRole, DefaultUserManagerRole}, ",")
	everyone := strings.Join([]string{DefaultAdministratorRole, DefaultDataManagerRole, DefaultUserManagerRole, DefaultUserRole}, ",")
	return ServiceConfig{
		Roles: RolesConfig{
			Administrator:        DefaultAdministratorRole,
			DataManager:          DefaultDataManagerRole,
			UserManager:          DefaultUserManagerRole,
			User:                 DefaultUserRole,
			DefaultRoleID:        DefaultRoleID,
			DefaultDailyCalories: DefaultDailyCalories,
		},
		Access: AccessConfig{
			MealAdmins: admins,
			MealUsers:  everyone,
			UserAdmins: userAdmins,
			UserUsers:  everyone,
			RoleAdmins: DefaultAdministratorRole,
		},
		Paging: PagingConfig{
			MealPageSize: DefaultMealPageSize,
			UserPageSize: DefaultUserPageSize,
			RolePageSize: DefaultRolePageSize,
		},
		Nutritionix: NutritionixConfig{
			URL:     DefaultNutritionixURL,
			Timeout: DefaultNutritionixTimeout,
		},
		RateLimit: RateLimitConfig{
			Redis: RedisConfig{Prefix: DefaultRateLimitRedisPrefix},
		},
		Metrics: MetricsConfig{Namespace: DefaultMetricsNamespace},
	}
}

// LoadServiceConfig loads service settings from the YAML config file.
// A missing file yields the defaults; a malformed file is an error.
func LoadServiceConfig(configPath string) (ServiceConfig, error) {
	result := DefaultServiceConfig()

	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return ServiceConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
			return ServiceConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	if appID := strings.TrimSpace(os.Getenv(EnvNutritionixAppID)); appID != "" {
		result.Nutritionix.AppID = appID
	}
	if appKey := strings.TrimSpace(os.Getenv(EnvNutritionixAppKey)); appKey != "" {
		result.Nutritionix.AppKey = appKey
	}

	result.normalize()
	return result, nil
}

func (c *ServiceConfig) normalize() {
	defaults := DefaultServiceConfig()

	trimOr := func(v *string, fallback string) {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			*v = fallback
		}
	}
	trimOr(&c.Roles.Administrator, defaults.Roles.Administrator)
	trimOr(&c.Roles.DataManager, defaults.Roles.DataManager)
	trimOr(&c.Roles.UserManager, defaults.Roles.UserManager)
	trimOr(&c.Roles.User, defaults.Roles.User)
	trimOr(&c.Access.MealAdmins, defaults.Access.MealAdmins)
	trimOr(&c.Access.MealUsers, defaults.Access.MealUsers)
	trimOr(&c.Access.UserAdmins, defaults.Access.UserAdmins)
	trimOr(&c.Access.UserUsers, defaults.Access.UserUsers)
	trimOr(&c.Access.RoleAdmins, defaults.Access.RoleAdmins)
	trimOr(&c.Nutritionix.URL, defaults.Nutritionix.URL)
	trimOr(&c.RateLimit.Redis.Prefix, defaults.RateLimit.Redis.Prefix)
	trimOr(&c.Metrics.Namespace, defaults.Metrics.Namespace)

	if c.Roles.DefaultRoleID == 0 {
		c.Roles.DefaultRoleID = defaults.Roles.DefaultRoleID
	}
	if c.Roles.DefaultDailyCalories <= 0 {
		c.Roles.DefaultDailyCalories = defaults.Roles.DefaultDailyCalories
	}
	if c.Paging.MealPageSize <= 0 {
		c.Paging.MealPageSize = defaults.Paging.MealPageSize
	}
	if c.Paging.UserPageSize <= 0 {
		c.Paging.UserPageSize = defaults.Paging.UserPageSize
	}
	if c.Paging.RolePageSize <= 0 {
		c.Paging.RolePageSize = defaults.Paging.RolePageSize
	}
	if c.Nutritionix.Timeout <= 0 {
		c.Nutritionix.Timeout = defaults.Nutritionix.Timeout
	}
	if c.RateLimit.Limit < 0 {
		c.RateLimit.Limit = 0
	}
	if c.RateLimit.Redis.DB < 0 {
		c.RateLimit.Redis.DB = 0
	}
	c.RateLimit.Redis.Addr = strings.TrimSpace(c.RateLimit.Redis.Addr)
	c.RateLimit.Redis.Password = strings.TrimSpace(c.RateLimit.Redis.Password)
}

// SplitRoles parses a comma separated role list, dropping blanks.
func SplitRoles(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
