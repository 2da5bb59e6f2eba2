package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreEstimate upserts the estimate for its query.
func StoreEstimate(ctx context.Context, db *gorm.DB, estimate Estimate, seenAt time.Time) error {
	if db == nil {
		return fmt.Errorf("store calorie estimate: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}
	seenAt = seenAt.UTC()

	foods, err := json.Marshal(estimate.Foods)
	if err != nil {
		return fmt.Errorf("store calorie estimate: encode foods: %w", err)
	}
	row := models.CalorieEstimate{
		Query:      estimate.Query,
		Calories:   estimate.Calories,
		Foods:      datatypes.JSON(foods),
		LastSeenAt: seenAt,
		CreatedAt:  seenAt,
		UpdatedAt:  seenAt,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query"}},
		DoUpdates: clause.AssignmentColumns([]string{"calories", "foods", "last_seen_at", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("store calorie estimate: upsert: %w", err)
	}
	return nil
}

// LoadEstimate returns the cached estimate for query, or nil when absent.
func LoadEstimate(ctx context.Context, db *gorm.DB, query string) (*Estimate, error) {
	if db == nil {
		return nil, fmt.Errorf("load calorie estimate: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var row models.CalorieEstimate
	if err := db.WithContext(ctx).Where("query = ?", query).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load calorie estimate: %w", err)
	}
	estimate := &Estimate{Query: row.Query, Calories: row.Calories}
	if len(row.Foods) > 0 {
		if err := json.Unmarshal(row.Foods, &estimate.Foods); err != nil {
			return nil, fmt.Errorf("load calorie estimate: decode foods: %w", err)
		}
	}
	return estimate, nil
}

// TouchEstimate refreshes last_seen_at for query.
func TouchEstimate(ctx context.Context, db *gorm.DB, query string, seenAt time.Time) error {
	if err := db.WithContext(ctx).Model(&models.CalorieEstimate{}).
		Where("query = ?", query).
		Update("last_seen_at", seenAt.UTC()).Error; err != nil {
		return fmt.Errorf("touch calorie estimate: %w", err)
	}
	return nil
}

// PruneEstimates deletes estimates not used since before.
func PruneEstimates(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("last_seen_at < ?", before.UTC()).Delete(&models.CalorieEstimate{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune calorie estimates: %w", res.Error)
	}
	return res.RowsAffected, nil
}
