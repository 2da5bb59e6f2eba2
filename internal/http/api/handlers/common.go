package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/mealtracker/internal/filter"
	"gorm.io/gorm"
)

// parseIDParam reads a positive uint64 path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// listQuery applies the optional path filter and page query to q.
// It returns the error text to report with a 400, or "" on success.
func listQuery(c *gin.Context, q *gorm.DB, columns filter.Columns, defaultPageSize int) (*gorm.DB, string) {
	page, errPage := filter.ParsePage(c.Query("page"), c.Query("pageSize"), defaultPageSize)
	if errPage != nil {
		return nil, errPage.Error()
	}
	cond, args, errFilter := filter.Translate(c.Param("filter"), columns)
	if errFilter != nil {
		return nil, errFilter.Error() + ". Columns: " + strings.Join(columns.Names(), ", ")
	}
	if cond != "" {
		q = q.Where("("+cond+")", args...)
	}
	if page.Paged() {
		q = q.Offset(page.Offset()).Limit(page.Size)
	}
	return q, ""
}
