package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/config"
	"github.com/router-for-me/mealtracker/internal/models"
	"github.com/router-for-me/mealtracker/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InitRequest contains parameters for the first administrator account.
type InitRequest struct {
	AdminUsername string `json:"admin_username" binding:"required"`
	AdminPassword string `json:"admin_password" binding:"required"`
	DailyCalories int    `json:"daily_calories"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ErrAlreadyInitialized signals that an administrator account already exists.
var ErrAlreadyInitialized = errors.New("System already initialized")

// CreateAdministrator creates a user holding the administrator role.
func CreateAdministrator(conn *gorm.DB, username, password, administratorRole string, dailyCalories int) (*models.User, error) {
	if conn == nil {
		return nil, fmt.Errorf("open database: nil connection")
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("Admin username is required")
	}
	if len(password) < 4 {
		return nil, fmt.Errorf("Password must be at least 4 characters")
	}
	if dailyCalories <= 0 {
		dailyCalories = config.DefaultDailyCalories
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, fmt.Errorf("hash password: %w", errHash)
	}

	var admin models.User
	errTx := conn.Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if errRole := tx.Where("name = ?", administratorRole).First(&role).Error; errRole != nil {
			if errors.Is(errRole, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s role not set up", administratorRole)
			}
			return fmt.Errorf("query administrator role: %w", errRole)
		}
		admin = models.User{
			Name:          username,
			Password:      hashedPassword,
			RoleID:        role.ID,
			DailyCalories: dailyCalories,
		}
		if errCreate := tx.Create(&admin).Error; errCreate != nil {
			return fmt.Errorf("create administrator: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &admin, nil
}

// registerInitRoutes exposes the one-time administrator setup.
func registerInitRoutes(engine *gin.Engine, conn *gorm.DB, administratorRole string) {
	var mu sync.Mutex

	engine.GET("/api/init/status", func(c *gin.Context) {
		initialized, errInit := HasAdministrator(conn.WithContext(c.Request.Context()), administratorRole)
		if errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		}
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initialized})
	})

	engine.POST("/api/init/setup", func(c *gin.Context) {
		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}

		mu.Lock()
		defer mu.Unlock()
		ctxConn := conn.WithContext(c.Request.Context())
		if ok, errInit := HasAdministrator(ctxConn, administratorRole); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrAlreadyInitialized.Error()})
			return
		}

		admin, errAdmin := CreateAdministrator(ctxConn, req.AdminUsername, req.AdminPassword, administratorRole, req.DailyCalories)
		if errAdmin != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		log.Infof("administrator %s created", admin.Name)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful", "id": admin.ID})
	})
}
