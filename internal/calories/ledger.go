package calories

import (
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/gorm"
)

// Ledger reads and adjusts daily calorie buckets inside one transaction.
type Ledger struct {
	tx *gorm.DB
}

// NewLedger binds a ledger to tx.
func NewLedger(tx *gorm.DB) *Ledger {
	return &Ledger{tx: tx}
}

// Get loads and locks the bucket for (userID, day). A missing bucket returns nil, nil.
func (l *Ledger) Get(userID uint64, day time.Time) (*models.DailyUserCalories, error) {
	var bucket models.DailyUserCalories
	errFind := db.ForUpdate(l.tx).
		Where("user_id = ? AND date = ?", userID, Day(day)).
		Take(&bucket).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("calories: load bucket: %w", errFind)
	}
	return &bucket, nil
}

// Create inserts a new bucket. It fails with ErrBucketExists when the key is taken.
func (l *Ledger) Create(userID uint64, day time.Time, initial int64) (*models.DailyUserCalories, error) {
	bucket := models.DailyUserCalories{UserID: userID, Date: Day(day), Calories: initial}
	// Savepoint so a duplicate key does not abort the outer Postgres transaction.
	errCreate := l.tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&bucket).Error
	})
	if errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, ErrBucketExists
		}
		return nil, fmt.Errorf("calories: create bucket: %w", errCreate)
	}
	return &bucket, nil
}

// Acquire returns the locked bucket for (userID, day), creating it with initial
// calories when absent. created reports whether the bucket was new.
func (l *Ledger) Acquire(userID uint64, day time.Time, initial int64) (bucket *models.DailyUserCalories, created bool, err error) {
	bucket, err = l.Get(userID, day)
	if err != nil || bucket != nil {
		return bucket, false, err
	}
	bucket, err = l.Create(userID, day, initial)
	if err == nil {
		return bucket, true, nil
	}
	if !errors.Is(err, ErrBucketExists) {
		return nil, false, err
	}
	// Lost the creation race; the winner's row is visible now.
	bucket, err = l.Get(userID, day)
	if err != nil {
		return nil, false, err
	}
	if bucket == nil {
		return nil, false, ErrBucketMissing
	}
	return bucket, false, nil
}

// Adjust adds delta to the bucket in SQL and returns the totals around the change.
func (l *Ledger) Adjust(bucket *models.DailyUserCalories, delta int64) (before, after int64, err error) {
	if bucket == nil {
		return 0, 0, ErrBucketMissing
	}
	before = bucket.Calories
	if delta == 0 {
		return before, before, nil
	}
	res := l.tx.Model(&models.DailyUserCalories{}).
		Where("user_id = ? AND date = ?", bucket.UserID, Day(bucket.Date)).
		Update("calories", gorm.Expr("calories + ?", delta))
	if res.Error != nil {
		return 0, 0, fmt.Errorf("calories: adjust bucket: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, 0, ErrBucketMissing
	}
	after = before + delta
	bucket.Calories = after
	return before, after, nil
}

// Total returns the calories recorded for (userID, day) without locking.
func Total(conn *gorm.DB, userID uint64, day time.Time) (int64, error) {
	var total int64
	if errSum := conn.Model(&models.DailyUserCalories{}).
		Where("user_id = ? AND date = ?", userID, Day(day)).
		Select("COALESCE(SUM(calories), 0)").
		Scan(&total).Error; errSum != nil {
		return 0, fmt.Errorf("calories: load total: %w", errSum)
	}
	return total, nil
}
