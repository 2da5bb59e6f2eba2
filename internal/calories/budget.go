package calories

import (
	"fmt"

	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/gorm"
)

// ApplyBudgetChange re-flags the meals of userID after its budget moved from oldBudget to newBudget.
// Only days whose totals sit between the two budgets change side, and every meal of such a day is updated.
func ApplyBudgetChange(tx *gorm.DB, userID uint64, oldBudget, newBudget int) (int64, error) {
	if oldBudget == newBudget {
		return 0, nil
	}
	low, high := oldBudget, newBudget
	withinLimit := true
	if newBudget < oldBudget {
		low, high = newBudget, oldBudget
		withinLimit = false
	}

	days := tx.Model(&models.DailyUserCalories{}).
		Select("date").
		Where("user_id = ? AND calories >= ? AND calories < ?", userID, low, high)
	res := tx.Model(&models.Meal{}).
		Where("user_id = ? AND date IN (?)", userID, days).
		Update("within_limit", withinLimit)
	if res.Error != nil {
		return 0, fmt.Errorf("calories: apply budget change: %w", res.Error)
	}
	return res.RowsAffected, nil
}
