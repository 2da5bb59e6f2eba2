package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/calories"
	"github.com/router-for-me/mealtracker/internal/config"
	"github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/http/api"
	"github.com/router-for-me/mealtracker/internal/metrics"
	"github.com/router-for-me/mealtracker/internal/models"
	"github.com/router-for-me/mealtracker/internal/nutrition"
	"github.com/router-for-me/mealtracker/internal/ratelimit"
	"github.com/router-for-me/mealtracker/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultSQLitePath is the database file used when no DSN is configured.
const defaultSQLitePath = "mealtracker.db"

// Settings bundles the resolved configuration of a server.
type Settings struct {
	DSN     string
	JWT     config.JWTConfig
	Service config.ServiceConfig
}

// LoadSettings resolves the database DSN, JWT and service settings for cfg.
// A missing DSN falls back to a local SQLite file.
func LoadSettings(cfg config.AppConfig) (Settings, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		if !errors.Is(errDSN, config.ErrMissingDatabaseDSN) && !errors.Is(errDSN, os.ErrNotExist) {
			return Settings{}, errDSN
		}
		dsn = buildSQLiteDSN(defaultSQLitePath)
		log.Warnf("no database configured, using %s", dsn)
	}
	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return Settings{}, errJWT
	}
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		secret, errSecret := security.GenerateRandomString(32)
		if errSecret != nil {
			return Settings{}, fmt.Errorf("generate jwt secret: %w", errSecret)
		}
		jwtCfg.Secret = secret
		log.Warn("jwt secret not configured, tokens will not survive a restart")
	}
	svcCfg, errSvc := config.LoadServiceConfig(configPath)
	if errSvc != nil {
		return Settings{}, errSvc
	}
	return Settings{DSN: dsn, JWT: jwtCfg, Service: svcCfg}, nil
}

// SeedRoles returns the seed roles named after the configured role names.
func SeedRoles(roles config.RolesConfig) []models.Role {
	seeds := db.DefaultRoles()
	for i := range seeds {
		switch seeds[i].ID {
		case models.RoleIDAdministrator:
			seeds[i].Name = roles.Administrator
		case models.RoleIDDataManager:
			seeds[i].Name = roles.DataManager
		case models.RoleIDUserManager:
			seeds[i].Name = roles.UserManager
		case models.RoleIDUser:
			seeds[i].Name = roles.User
		}
	}
	return seeds
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return err
	}
	conn, err := db.Open(settings.DSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx), SeedRoles(settings.Service.Roles)...)
}

// Server is the assembled HTTP service.
type Server struct {
	Engine    *gin.Engine
	Meals     *calories.Service
	Estimator *nutrition.CachedEstimator
	Limiter   *ratelimit.Manager
	Metrics   *metrics.Metrics
}

// NewServer wires the meal service, its collaborators and the routes onto a gin engine.
func NewServer(conn *gorm.DB, jwtCfg config.JWTConfig, svcCfg config.ServiceConfig) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	srv := &Server{Engine: engine}
	var observer calories.Observer
	if svcCfg.Metrics.Enabled {
		srv.Metrics = metrics.New(svcCfg.Metrics)
		observer = srv.Metrics
		engine.Use(srv.Metrics.Middleware())
		engine.GET("/metrics", gin.WrapH(srv.Metrics.Handler()))
	}

	var estimator calories.Estimator
	client := nutrition.NewClient(svcCfg.Nutritionix)
	if client.Configured() {
		srv.Estimator = nutrition.NewCachedEstimator(conn, client)
		estimator = srv.Estimator
	} else {
		log.Warn("nutritionix credentials not configured, meals need explicit calories")
	}

	srv.Limiter = ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(svcCfg.RateLimit)), nil, nil)
	srv.Meals = calories.NewService(conn, estimator, observer, nil)

	api.RegisterRoutes(engine, conn, jwtCfg, svcCfg, srv.Meals, srv.Limiter, srv.Metrics)
	registerInitRoutes(engine, conn, svcCfg.Roles.Administrator)
	return srv
}

// RunServer boots the HTTP API and blocks until ctx is done.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return err
	}
	conn, err := db.Open(settings.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn, SeedRoles(settings.Service.Roles)...); errMigrate != nil {
		return errMigrate
	}

	initialized, errInit := HasAdministrator(conn, settings.Service.Roles.Administrator)
	if errInit != nil {
		return errInit
	}
	if !initialized {
		log.Warn("no administrator account exists yet, POST /api/init/setup to create one")
	}

	gin.SetMode(gin.ReleaseMode)
	server := NewServer(conn, settings.JWT, settings.Service)
	defer func() {
		if errClose := server.Limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter")
		}
	}()
	if server.Estimator != nil {
		server.Estimator.Start(ctx)
	}

	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting meal tracker on %s (config=%s, db=%s)", addr, config.ResolveConfigPath(cfg.ConfigPath), db.DialectName(conn))
	if errListen := httpServer.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	log.Info("server stopped")
	return nil
}

// buildSQLiteDSN constructs a SQLite DSN with default pragmas.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
	}, "&")
}
