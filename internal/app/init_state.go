package app

import (
	"fmt"

	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/gorm"
)

// HasAdministrator reports whether at least one user holds the administrator role.
func HasAdministrator(conn *gorm.DB, administratorRole string) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) || !conn.Migrator().HasTable(&models.Role{}) {
		return false, nil
	}
	var count int64
	errCount := conn.Model(&models.User{}).
		Joins("JOIN roles ON roles.id = users.role_id").
		Where("roles.name = ?", administratorRole).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
