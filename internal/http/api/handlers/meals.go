package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/calories"
	"github.com/router-for-me/mealtracker/internal/filter"
	"github.com/router-for-me/mealtracker/internal/http/api/permissions"
	"github.com/router-for-me/mealtracker/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MealColumns lists the meal fields accepted in filters.
var MealColumns = filter.Columns{
	"id":           {Name: "id", Kind: filter.KindNumber},
	"userid":       {Name: "user_id", Kind: filter.KindNumber},
	"user_id":      {Name: "user_id", Kind: filter.KindNumber},
	"date":         {Name: "date", Kind: filter.KindDate},
	"time":         {Name: "time", Kind: filter.KindTimestamp},
	"calories":     {Name: "calories", Kind: filter.KindNumber},
	"description":  {Name: "description", Kind: filter.KindText},
	"withinlimit":  {Name: "within_limit", Kind: filter.KindBool},
	"within_limit": {Name: "within_limit", Kind: filter.KindBool},
}

const timeLayout = "2006-01-02T15:04:05"

// MealHandler manages meal endpoints.
type MealHandler struct {
	db       *gorm.DB
	meals    *calories.Service
	policy   permissions.Policy
	pageSize int
}

// NewMealHandler constructs a MealHandler.
func NewMealHandler(db *gorm.DB, meals *calories.Service, policy permissions.Policy, pageSize int) *MealHandler {
	return &MealHandler{db: db, meals: meals, policy: policy, pageSize: pageSize}
}

// mealRequest defines the request body for meal writes.
type mealRequest struct {
	ID          uint64  `json:"id"`
	UserID      uint64  `json:"user_id"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Calories    int     `json:"calories"`
	Description *string `json:"description"`
}

func (r mealRequest) input() (calories.MealInput, error) {
	in := calories.MealInput{
		ID:          r.ID,
		UserID:      r.UserID,
		Calories:    r.Calories,
		Description: r.Description,
	}
	if strings.TrimSpace(r.Date) != "" {
		date, errDate := filter.ParseTime(r.Date)
		if errDate != nil {
			return in, fmt.Errorf("invalid date")
		}
		in.Date = date
	}
	if strings.TrimSpace(r.Time) != "" {
		at, errTime := filter.ParseTime(r.Time)
		if errTime != nil {
			return in, fmt.Errorf("invalid time")
		}
		in.Time = at
	}
	return in, nil
}

func mealJSON(meal models.Meal) gin.H {
	return gin.H{
		"id":           meal.ID,
		"user_id":      meal.UserID,
		"date":         meal.Date.UTC().Format(time.DateOnly),
		"time":         meal.Time.UTC().Format(timeLayout),
		"calories":     meal.Calories,
		"description":  meal.Description,
		"within_limit": meal.WithinLimit,
	}
}

func (h *MealHandler) actor(caller permissions.Caller) calories.Actor {
	return calories.Actor{UserID: caller.UserID, ManageOthers: h.policy.IsAdmin(caller)}
}

// List returns meals, optionally restricted to one user and a filter.
func (h *MealHandler) List(c *gin.Context) {
	caller := permissions.CallerFrom(c)
	var userID uint64
	if raw := strings.TrimSpace(c.Param("userId")); raw != "" {
		id, ok := parseIDParam(c, "userId")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		userID = id
	}
	if !h.policy.IsAdmin(caller) {
		if userID != 0 && userID != caller.UserID {
			c.JSON(http.StatusBadRequest, gin.H{"error": permissions.OtherUsersDenied(caller.RoleName)})
			return
		}
		userID = caller.UserID
	}

	ctx := c.Request.Context()
	q := h.db.WithContext(ctx).Model(&models.Meal{})
	if userID != 0 {
		var count int64
		if errCount := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if count == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown UserId <%d>", userID)})
			return
		}
		q = q.Where("user_id = ?", userID)
	}
	q, errText := listQuery(c, q, MealColumns, h.pageSize)
	if errText != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errText})
		return
	}

	var rows []models.Meal
	if errFind := q.Order("date DESC, time DESC, id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list meals failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, mealJSON(row))
	}
	c.JSON(http.StatusOK, gin.H{"meals": out})
}

// Get returns a meal by ID.
func (h *MealHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var meal models.Meal
	if errFind := h.db.WithContext(c.Request.Context()).First(&meal, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	caller := permissions.CallerFrom(c)
	if meal.UserID != caller.UserID && !h.policy.IsAdmin(caller) {
		c.JSON(http.StatusBadRequest, gin.H{"error": permissions.OtherUsersDenied(caller.RoleName)})
		return
	}
	c.JSON(http.StatusOK, mealJSON(meal))
}

// Remaining returns today's remaining calories of the caller or of userId.
func (h *MealHandler) Remaining(c *gin.Context) {
	caller := permissions.CallerFrom(c)
	userID := caller.UserID
	if raw := strings.TrimSpace(c.Param("userId")); raw != "" {
		id, ok := parseIDParam(c, "userId")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if id != caller.UserID && !h.policy.IsAdmin(caller) {
			c.JSON(http.StatusBadRequest, gin.H{"error": permissions.OtherUsersDenied(caller.RoleName)})
			return
		}
		userID = id
	}
	remaining, errRemaining := h.meals.Remaining(c.Request.Context(), userID)
	if errRemaining != nil {
		writeMealError(c, errRemaining)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "remaining": remaining})
}

// Create records a meal from a JSON body.
func (h *MealHandler) Create(c *gin.Context) {
	var body mealRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in, errInput := body.input()
	if errInput != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInput.Error()})
		return
	}
	h.insert(c, in)
}

// QuickCreate records a meal from path values. With a description segment
// the value must be calories; alone, a numeric value is taken as calories and
// anything else as the description.
func (h *MealHandler) QuickCreate(c *gin.Context) {
	var in calories.MealInput
	value := c.Param("value")
	n, errParse := strconv.Atoi(strings.TrimSpace(value))
	if description, ok := c.Params.Get("description"); ok {
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid calories"})
			return
		}
		in.Calories = n
		in.Description = &description
	} else if errParse == nil {
		in.Calories = n
	} else {
		in.Description = &value
	}
	h.insert(c, in)
}

func (h *MealHandler) insert(c *gin.Context, in calories.MealInput) {
	caller := permissions.CallerFrom(c)
	meal, errInsert := h.meals.Insert(c.Request.Context(), h.actor(caller), in)
	if errInsert != nil {
		writeMealError(c, errInsert)
		return
	}
	c.JSON(http.StatusCreated, mealJSON(*meal))
}

// Update replaces a meal from a JSON body whose id must match the path.
func (h *MealHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body mealRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in, errInput := body.input()
	if errInput != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInput.Error()})
		return
	}
	h.update(c, id, in)
}

// UpdateCalories changes only the calories of a meal.
func (h *MealHandler) UpdateCalories(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	n, errParse := strconv.Atoi(strings.TrimSpace(c.Param("calories")))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid calories"})
		return
	}
	h.update(c, id, calories.MealInput{ID: id, Calories: n})
}

func (h *MealHandler) update(c *gin.Context, id uint64, in calories.MealInput) {
	caller := permissions.CallerFrom(c)
	meal, errUpdate := h.meals.Update(c.Request.Context(), h.actor(caller), id, in)
	if errUpdate != nil {
		writeMealError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, mealJSON(*meal))
}

// Delete removes a meal and returns it.
func (h *MealHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	caller := permissions.CallerFrom(c)
	meal, errDelete := h.meals.Delete(c.Request.Context(), h.actor(caller), id)
	if errDelete != nil {
		writeMealError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, mealJSON(*meal))
}

// DeleteAllForUser removes every meal of userId.
func (h *MealHandler) DeleteAllForUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if count == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown UserId <%d>", userID)})
		return
	}
	caller := permissions.CallerFrom(c)
	removed, errDelete := h.meals.DeleteAllForUser(ctx, h.actor(caller), userID)
	if errDelete != nil {
		writeMealError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted": removed,
		"message": fmt.Sprintf("Deleted %d meals for UserId %d", removed, userID),
	})
}

// writeMealError maps meal service errors to responses.
func writeMealError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calories.ErrMealNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, calories.ErrForbidden):
		caller := permissions.CallerFrom(c)
		c.JSON(http.StatusBadRequest, gin.H{"error": permissions.OtherUsersDenied(caller.RoleName)})
	case errors.Is(err, calories.ErrUnknownUser),
		errors.Is(err, calories.ErrMealIDMismatch),
		errors.Is(err, calories.ErrDescriptionRequired),
		errors.Is(err, calories.ErrCaloriesUnresolved):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calories.ErrMealConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("meal request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "meal request failed"})
	}
}
