package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/config"
	"github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/models"
	"github.com/router-for-me/mealtracker/internal/security"
	"gorm.io/gorm"
)

func openMigrated(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "meals-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestCreateAdministrator_AssignsAdministratorRole(t *testing.T) {
	conn := openMigrated(t)

	admin, errCreate := CreateAdministrator(conn, " Admin ", "password", config.DefaultAdministratorRole, 0)
	if errCreate != nil {
		t.Fatalf("CreateAdministrator: %v", errCreate)
	}
	if admin.Name != "admin" {
		t.Fatalf("expected lower-cased name, got %q", admin.Name)
	}

	var stored models.User
	if errFind := conn.Preload("Role").First(&stored, admin.ID).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if stored.Role == nil || stored.Role.Name != config.DefaultAdministratorRole {
		t.Fatalf("expected administrator role, got %+v", stored.Role)
	}
	if stored.DailyCalories != config.DefaultDailyCalories {
		t.Fatalf("expected default budget, got %d", stored.DailyCalories)
	}
	if !security.CheckPassword(stored.Password, "password") {
		t.Fatalf("expected stored password hash to match")
	}

	if _, errMissing := CreateAdministrator(conn, "other", "password", "NoSuchRole", 0); errMissing == nil {
		t.Fatalf("expected error for unknown administrator role")
	}
}

func TestInitSetupRunsOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn := openMigrated(t)
	engine := gin.New()
	registerInitRoutes(engine, conn, config.DefaultAdministratorRole)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/init/status", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"initialized":false`) {
		t.Fatalf("unexpected status response %d %s", w.Code, w.Body.String())
	}

	body := `{"admin_username":"root","admin_password":"secret"}`
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/init/setup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected setup to succeed, got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/init/setup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected second setup to be rejected, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/init/status", nil))
	if !strings.Contains(w.Body.String(), `"initialized":true`) {
		t.Fatalf("expected initialized after setup, got %s", w.Body.String())
	}
}
