package calories

import (
	"fmt"
	"time"

	"github.com/router-for-me/mealtracker/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Crossing describes how a bucket moved relative to the budget.
type Crossing int

const (
	// CrossingNone means the bucket stayed on the same side of the budget.
	CrossingNone Crossing = iota
	// CrossingUp means the bucket went from below the budget to at or above it.
	CrossingUp
	// CrossingDown means the bucket went from at or above the budget to below it.
	CrossingDown
)

// String returns the metric label for c.
func (c Crossing) String() string {
	switch c {
	case CrossingUp:
		return "up"
	case CrossingDown:
		return "down"
	default:
		return "none"
	}
}

// WithinLimit reports whether a day total is below the budget.
func WithinLimit(total int64, budget int) bool {
	return total < int64(budget)
}

// Cross classifies the move from before to after against budget.
func Cross(before, after int64, budget int) Crossing {
	wasWithin := WithinLimit(before, budget)
	isWithin := WithinLimit(after, budget)
	switch {
	case wasWithin && !isWithin:
		return CrossingUp
	case !wasWithin && isWithin:
		return CrossingDown
	default:
		return CrossingNone
	}
}

// RecomputeSiblings sets within_limit on every meal of (userID, day) except excludeMealID.
// Pass excludeMealID 0 to update all of them.
func RecomputeSiblings(tx *gorm.DB, userID uint64, day time.Time, excludeMealID uint64, withinLimit bool) (int64, error) {
	query := tx.Model(&models.Meal{}).Where("user_id = ? AND date = ?", userID, Day(day))
	if excludeMealID != 0 {
		query = query.Where("id <> ?", excludeMealID)
	}
	res := query.Update("within_limit", withinLimit)
	if res.Error != nil {
		return 0, fmt.Errorf("calories: recompute siblings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// applyCrossing re-flags siblings when the bucket crossed the budget.
func applyCrossing(tx *gorm.DB, crossing Crossing, userID uint64, day time.Time, excludeMealID uint64) error {
	if crossing == CrossingNone {
		return nil
	}
	withinLimit := crossing == CrossingDown
	updated, errRecompute := RecomputeSiblings(tx, userID, day, excludeMealID, withinLimit)
	if errRecompute != nil {
		return errRecompute
	}
	log.WithFields(log.Fields{
		"user_id":   userID,
		"date":      Day(day).Format(time.DateOnly),
		"direction": crossing.String(),
		"meals":     updated,
	}).Debug("daily bucket crossed budget")
	return nil
}
