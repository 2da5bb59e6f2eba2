package models

// Seed role identifiers.
const (
	RoleIDAdministrator uint64 = 1
	RoleIDDataManager   uint64 = 2
	RoleIDUserManager   uint64 = 3
	RoleIDUser          uint64 = 4
)

// Role names a permission group users are assigned to.
type Role struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`              // Primary key.
	Name string `gorm:"type:varchar(50);not null;uniqueIndex"` // Role name.
}
