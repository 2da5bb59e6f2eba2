package models

import "time"

// DailyUserCalories is the running calorie total for one user on one day.
//
// Grain: (user_id, date). Rows are derived from meals and are kept at zero
// rather than deleted once a day empties.
type DailyUserCalories struct {
	UserID   uint64    `gorm:"primaryKey;autoIncrement:false"` // Owning user ID.
	Date     time.Time `gorm:"primaryKey;type:date"`           // Calendar day (midnight UTC).
	Calories int64     `gorm:"not null;default:0"`             // Sum of meal calories.
}

// TableName overrides the default table name.
func (DailyUserCalories) TableName() string {
	return "daily_user_calories"
}
