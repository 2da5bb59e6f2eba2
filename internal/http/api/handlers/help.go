package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/filter"
)

var mealRoutes = []string{
	"GET /api/meal",
	"GET /api/meal/filter/{filter}",
	"GET /api/meal/user/{userId}",
	"GET /api/meal/user/{userId}/filter/{filter}",
	"GET /api/meal/{id}",
	"GET /api/meal/remaining",
	"GET /api/meal/remaining/{userId}",
	"GET /api/meal/help",
	"POST /api/meal/quick/{description}",
	"POST /api/meal/quick/{calories}",
	"POST /api/meal/quick/{calories}/{description}",
	"POST /api/meal [Meal]",
	"PUT /api/meal/{id}/calories/{calories}",
	"PUT /api/meal/{id} [Meal]",
	"DELETE /api/meal/{id}",
	"DELETE /api/meal/alluser/{userId}",
}

var userRoutes = []string{
	"GET /api/user",
	"GET /api/user/filter/{filter}",
	"GET /api/user/{id}",
	"GET /api/user/help",
	"POST /api/user [User]",
	"PUT /api/user/{id} [User]",
	"DELETE /api/user/{id}",
}

var roleRoutes = []string{
	"GET /api/role",
	"GET /api/role/filter/{filter}",
	"GET /api/role/{id}",
	"GET /api/role/help",
	"POST /api/role/name/{name}",
	"POST /api/role [Role]",
	"PUT /api/role/{id} [Role]",
	"DELETE /api/role/{id}",
}

func helpText(routes []string, label string, columns filter.Columns) string {
	return strings.Join(routes, "\n") + "\n\n" + label + " Columns: " + strings.Join(columns.Names(), ", ") +
		"\n\nPaging: ?page=N&pageSize=M" +
		"\nFilter operators: lt gt le ge eq ne && ||"
}

// MealHelp lists the meal routes and filter columns.
func MealHelp(c *gin.Context) {
	c.String(http.StatusOK, helpText(mealRoutes, "Meal", MealColumns))
}

// UserHelp lists the user routes and filter columns.
func UserHelp(c *gin.Context) {
	c.String(http.StatusOK, helpText(userRoutes, "User", UserColumns))
}

// RoleHelp lists the role routes and filter columns.
func RoleHelp(c *gin.Context) {
	c.String(http.StatusOK, helpText(roleRoutes, "Role", RoleColumns))
}
