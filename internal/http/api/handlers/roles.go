package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dbutil "github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/filter"
	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/gorm"
)

// RoleColumns lists the role fields accepted in filters.
var RoleColumns = filter.Columns{
	"id":   {Name: "id", Kind: filter.KindNumber},
	"name": {Name: "name", Kind: filter.KindText},
}

var errRoleInUse = errors.New("role still assigned")

// RoleHandler manages role endpoints.
type RoleHandler struct {
	db       *gorm.DB
	pageSize int
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(db *gorm.DB, pageSize int) *RoleHandler {
	return &RoleHandler{db: db, pageSize: pageSize}
}

func roleJSON(role models.Role) gin.H {
	return gin.H{"id": role.ID, "name": role.Name}
}

// List returns roles matching the optional filter.
func (h *RoleHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Role{})
	q, errText := listQuery(c, q, RoleColumns, h.pageSize)
	if errText != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errText})
		return
	}
	var rows []models.Role
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list roles failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, roleJSON(row))
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

// Get returns a role by ID.
func (h *RoleHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var role models.Role
	if errFind := h.db.WithContext(c.Request.Context()).First(&role, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, roleJSON(role))
}

// roleRequest defines the request body for role writes.
type roleRequest struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Create creates a role from a JSON body.
func (h *RoleHandler) Create(c *gin.Context) {
	var body roleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.create(c, body.Name)
}

// CreateByName creates a role named by the path.
func (h *RoleHandler) CreateByName(c *gin.Context) {
	h.create(c, c.Param("name"))
}

func (h *RoleHandler) create(c *gin.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role Name must be supplied"})
		return
	}
	role := models.Role{Name: name}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&role).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create role failed"})
		return
	}
	c.JSON(http.StatusCreated, roleJSON(role))
}

// Update renames a role. The body id must match the path.
func (h *RoleHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body roleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Id=%d not equal to role.Id=%d", id, body.ID)})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role Name must be supplied"})
		return
	}
	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.Role{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		if dbutil.IsUniqueViolation(res.Error) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update role failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, roleJSON(models.Role{ID: id, Name: name}))
}

// Delete removes a role no user is assigned to.
func (h *RoleHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var role models.Role
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errFind := dbutil.ForUpdate(tx).Where("id = ?", id).Take(&role).Error; errFind != nil {
			return errFind
		}
		var users int64
		if errCount := tx.Model(&models.User{}).Where("role_id = ?", id).Count(&users).Error; errCount != nil {
			return errCount
		}
		if users > 0 {
			return errRoleInUse
		}
		return tx.Delete(&models.Role{}, id).Error
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errTx, errRoleInUse):
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Cannot delete Role with Id %d - Some Users are still assigned this RoleId", id)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete role failed"})
		}
		return
	}
	c.JSON(http.StatusOK, roleJSON(role))
}
