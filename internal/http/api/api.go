package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/calories"
	"github.com/router-for-me/mealtracker/internal/config"
	"github.com/router-for-me/mealtracker/internal/http/api/handlers"
	"github.com/router-for-me/mealtracker/internal/http/api/permissions"
	"github.com/router-for-me/mealtracker/internal/metrics"
	"github.com/router-for-me/mealtracker/internal/models"
	"github.com/router-for-me/mealtracker/internal/ratelimit"
	"github.com/router-for-me/mealtracker/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RegisterRoutes registers the API routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, cfg config.ServiceConfig, meals *calories.Service, limiter *ratelimit.Manager, m *metrics.Metrics) {
	if r == nil || db == nil || meals == nil {
		return
	}
	access := permissions.FromConfig(cfg)

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	apiGroup := r.Group("/api")
	apiGroup.GET("/meal/help", handlers.MealHelp)
	apiGroup.GET("/user/help", handlers.UserHelp)
	apiGroup.GET("/role/help", handlers.RoleHelp)

	authHandler := handlers.NewAuthHandler(db, jwtCfg, cfg.Roles)
	authGroup := apiGroup.Group("/auth")
	authGroup.Use(rateLimitMiddleware(limiter, m))
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	authed := apiGroup.Group("")
	authed.Use(authMiddleware(db, jwtCfg))
	authed.Use(rateLimitMiddleware(limiter, m))

	mealHandler := handlers.NewMealHandler(db, meals, access.Meals, cfg.Paging.MealPageSize)
	mealGroup := authed.Group("/meal")
	mealGroup.Use(requireRoles(access.Meals.Users))
	mealGroup.GET("", mealHandler.List)
	mealGroup.GET("/filter/:filter", mealHandler.List)
	mealGroup.GET("/user/:userId", mealHandler.List)
	mealGroup.GET("/user/:userId/filter/:filter", mealHandler.List)
	mealGroup.GET("/remaining", mealHandler.Remaining)
	mealGroup.GET("/remaining/:userId", mealHandler.Remaining)
	mealGroup.GET("/:id", mealHandler.Get)
	mealGroup.POST("", mealHandler.Create)
	mealGroup.POST("/quick/:value", mealHandler.QuickCreate)
	mealGroup.POST("/quick/:value/:description", mealHandler.QuickCreate)
	mealGroup.PUT("/:id", mealHandler.Update)
	mealGroup.PUT("/:id/calories/:calories", mealHandler.UpdateCalories)
	mealGroup.DELETE("/:id", mealHandler.Delete)
	mealGroup.DELETE("/alluser/:userId", mealHandler.DeleteAllForUser)

	userHandler := handlers.NewUserHandler(db, meals, access, cfg)
	userGroup := authed.Group("/user")
	userGroup.GET("", requireRoles(access.Users.Users), userHandler.List)
	userGroup.GET("/filter/:filter", requireRoles(access.Users.Users), userHandler.List)
	userGroup.GET("/:id", requireRoles(access.Users.Users), userHandler.Get)
	userGroup.PUT("/:id", requireRoles(access.Users.Users), userHandler.Update)
	userGroup.POST("", requireRoles(access.Users.Admins), userHandler.Create)
	userGroup.DELETE("/:id", requireRoles(access.Users.Admins), userHandler.Delete)

	roleHandler := handlers.NewRoleHandler(db, cfg.Paging.RolePageSize)
	roleGroup := authed.Group("/role")
	roleGroup.Use(requireRoles(access.Roles.Admins))
	roleGroup.GET("", roleHandler.List)
	roleGroup.GET("/filter/:filter", roleHandler.List)
	roleGroup.GET("/:id", roleHandler.Get)
	roleGroup.POST("", roleHandler.Create)
	roleGroup.POST("/name/:name", roleHandler.CreateByName)
	roleGroup.PUT("/:id", roleHandler.Update)
	roleGroup.DELETE("/:id", roleHandler.Delete)
}

// authMiddleware validates user JWTs and loads the caller and role into the context.
func authMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).Preload("Role").First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid User %s - please contact your administrator", claims.Username)})
			return
		}
		if user.Role == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid RoleId %d - please contact your administrator", user.RoleID)})
			return
		}

		c.Set(permissions.ContextUserID, user.ID)
		c.Set(permissions.ContextUserName, user.Name)
		c.Set(permissions.ContextRoleID, user.RoleID)
		c.Set(permissions.ContextRoleName, user.Role.Name)
		c.Next()
	}
}

// requireRoles rejects callers whose role is outside allowed.
func requireRoles(allowed permissions.RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(permissions.ContextRoleName)
		if !allowed.Contains(role) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": permissions.NotAuthorized(role, allowed)})
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware enforces the per-second limit for the caller or client address.
func rateLimitMiddleware(limiter *ratelimit.Manager, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		decision := ratelimit.Resolve(limiter.Limit(), c.GetUint64(permissions.ContextUserID), c.ClientIP())
		if decision.Scope == ratelimit.ScopeNone {
			c.Next()
			return
		}
		result, errLimit := limiter.Check(c.Request.Context(), decision)
		if errLimit != nil {
			log.WithError(errLimit).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			m.RateLimited(decision.Scope.String())
			if !result.Reset.IsZero() {
				wait := time.Until(result.Reset)
				if wait < time.Second {
					wait = time.Second
				}
				c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
