package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/calories"
	"github.com/router-for-me/mealtracker/internal/config"
	dbutil "github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/filter"
	"github.com/router-for-me/mealtracker/internal/http/api/permissions"
	"github.com/router-for-me/mealtracker/internal/models"
	"github.com/router-for-me/mealtracker/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UserColumns lists the user fields accepted in filters.
var UserColumns = filter.Columns{
	"id":             {Name: "id", Kind: filter.KindNumber},
	"name":           {Name: "name", Kind: filter.KindText},
	"roleid":         {Name: "role_id", Kind: filter.KindNumber},
	"role_id":        {Name: "role_id", Kind: filter.KindNumber},
	"dailycalories":  {Name: "daily_calories", Kind: filter.KindNumber},
	"daily_calories": {Name: "daily_calories", Kind: filter.KindNumber},
}

var (
	errNameLength     = errors.New("Username must be between 3 and 50 characters")
	errPasswordLength = errors.New("Password must be between 4 and 50 characters")
)

// UserHandler manages user account endpoints.
type UserHandler struct {
	db          *gorm.DB
	meals       *calories.Service
	access      permissions.Access
	roles       config.RolesConfig
	pageSize    int
	allowRename bool
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, meals *calories.Service, access permissions.Access, cfg config.ServiceConfig) *UserHandler {
	return &UserHandler{
		db:          db,
		meals:       meals,
		access:      access,
		roles:       cfg.Roles,
		pageSize:    cfg.Paging.UserPageSize,
		allowRename: cfg.AllowModifyUserName,
	}
}

func userJSON(user models.User) gin.H {
	return gin.H{
		"id":             user.ID,
		"name":           user.Name,
		"role_id":        user.RoleID,
		"daily_calories": user.DailyCalories,
		"created_at":     user.CreatedAt,
		"updated_at":     user.UpdatedAt,
	}
}

// normalizeUserName lower-cases name and checks its length.
func normalizeUserName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 || len(name) > 50 {
		return "", errNameLength
	}
	return name, nil
}

func validatePassword(password string) error {
	if len(password) < 4 || len(password) > 50 {
		return errPasswordLength
	}
	return nil
}

// List returns users. Callers outside the admin roles only see themselves.
func (h *UserHandler) List(c *gin.Context) {
	caller := permissions.CallerFrom(c)
	var userID uint64
	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		userID = id
	}
	if !h.access.Users.IsAdmin(caller) {
		if userID != 0 && userID != caller.UserID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You are not authorized to view other users details"})
			return
		}
		userID = caller.UserID
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if userID != 0 {
		q = q.Where("id = ?", userID)
	}
	if searchQ := strings.TrimSpace(c.Query("search")); searchQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+searchQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}
	q, errText := listQuery(c, q, UserColumns, h.pageSize)
	if errText != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errText})
		return
	}

	var rows []models.User
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, userJSON(row))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get returns a user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	caller := permissions.CallerFrom(c)
	if id != caller.UserID && !h.access.Users.IsAdmin(caller) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are not authorized to view other users details"})
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Name          string `json:"name"`
	Password      string `json:"password"`
	RoleID        uint64 `json:"role_id"`
	DailyCalories int    `json:"daily_calories"`
}

// Create creates a new user account.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User Name must be supplied"})
		return
	}
	name, errName := normalizeUserName(body.Name)
	if errName != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errName.Error()})
		return
	}
	if errPassword := validatePassword(body.Password); errPassword != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPassword.Error()})
		return
	}

	ctx := c.Request.Context()
	var defaultRole models.Role
	if errRole := h.db.WithContext(ctx).Where("name = ?", h.access.DefaultRole).First(&defaultRole).Error; errRole != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s role not set up", h.access.DefaultRole)})
		return
	}
	roleID := body.RoleID
	if roleID == 0 {
		roleID = defaultRole.ID
	}
	caller := permissions.CallerFrom(c)
	if roleID != defaultRole.ID && !h.access.IsAdministrator(caller) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Only Administrators can add users with Roles other than <%s>", defaultRole.Name)})
		return
	}
	if roleID != defaultRole.ID {
		if errExists := h.roleExists(c, roleID); errExists != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errExists.Error()})
			return
		}
	}
	dailyCalories := body.DailyCalories
	if dailyCalories <= 0 {
		dailyCalories = h.roles.DefaultDailyCalories
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	user := models.User{
		Name:          name,
		Password:      hash,
		RoleID:        roleID,
		DailyCalories: dailyCalories,
	}
	if errCreate := h.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username is already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	c.JSON(http.StatusCreated, userJSON(user))
}

// updateUserRequest defines the request body for user updates.
type updateUserRequest struct {
	ID            uint64  `json:"id"`
	Name          *string `json:"name"`
	Password      *string `json:"password"`
	RoleID        uint64  `json:"role_id"`
	DailyCalories *int    `json:"daily_calories"`
}

// Update modifies a user account. A budget change re-flags the user's meals.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Id=%d not equal to user.Id=%d", id, body.ID)})
		return
	}

	ctx := c.Request.Context()
	var old models.User
	if errFind := h.db.WithContext(ctx).First(&old, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	caller := permissions.CallerFrom(c)
	if id != caller.UserID && !h.access.Users.IsAdmin(caller) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are not authorized to modify other users details"})
		return
	}

	updates := map[string]any{}
	if body.RoleID != 0 && body.RoleID != old.RoleID {
		if !h.access.IsAdministrator(caller) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only Administrators can modify RoleId"})
			return
		}
		if errExists := h.roleExists(c, body.RoleID); errExists != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errExists.Error()})
			return
		}
		updates["role_id"] = body.RoleID
	}
	if body.Name != nil && strings.TrimSpace(*body.Name) != "" {
		name, errName := normalizeUserName(*body.Name)
		if errName != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errName.Error()})
			return
		}
		if name != old.Name {
			if !h.allowRename {
				c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot modify User Names"})
				return
			}
			var taken int64
			if errCount := h.db.WithContext(ctx).Model(&models.User{}).Where("name = ? AND id <> ?", name, id).Count(&taken).Error; errCount != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
				return
			}
			if taken > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("UserName <%s> Already taken, please choose another name", name)})
				return
			}
			updates["name"] = name
		}
	}
	if body.Password != nil && *body.Password != "" {
		if errPassword := validatePassword(*body.Password); errPassword != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errPassword.Error()})
			return
		}
		hash, errHash := security.HashPassword(*body.Password)
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		updates["password"] = hash
	}
	if body.DailyCalories != nil {
		if *body.DailyCalories < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "daily calories must not be negative"})
			return
		}
		updates["daily_calories"] = *body.DailyCalories
	}

	user, flipped, errUpdate := h.meals.UpdateUser(ctx, id, updates)
	if errUpdate != nil {
		if dbutil.IsUniqueViolation(errUpdate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username is already taken"})
			return
		}
		if errors.Is(errUpdate, calories.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		log.WithError(errUpdate).Error("update user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}
	out := userJSON(*user)
	out["meals_reflagged"] = flipped
	c.JSON(http.StatusOK, out)
}

// Delete removes a user that no longer owns meals.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var user models.User
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errFind := dbutil.ForUpdate(tx).Where("id = ?", id).Take(&user).Error; errFind != nil {
			return errFind
		}
		var meals int64
		if errCount := tx.Model(&models.Meal{}).Where("user_id = ?", id).Count(&meals).Error; errCount != nil {
			return errCount
		}
		if meals > 0 {
			return errUserHasMeals
		}
		if errBuckets := tx.Where("user_id = ?", id).Delete(&models.DailyUserCalories{}).Error; errBuckets != nil {
			return errBuckets
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errTx, errUserHasMeals):
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Cannot delete User <%s> with Id <%d> until all their meals have been deleted", user.Name, id)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		}
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

var errUserHasMeals = errors.New("user still has meals")

func (h *UserHandler) roleExists(c *gin.Context, roleID uint64) error {
	var count int64
	if errCount := h.db.WithContext(c.Request.Context()).Model(&models.Role{}).Where("id = ?", roleID).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count == 0 {
		return fmt.Errorf("Invalid RoleId <%d>", roleID)
	}
	return nil
}
