package calories

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Estimator resolves calories for a free-text meal description.
type Estimator interface {
	Calories(ctx context.Context, description string) (int, error)
}

// Observer receives one call per committed mutation and touched bucket.
type Observer interface {
	ObserveMutation(op string, crossing Crossing)
}

// mealLockAttempts bounds the retries of a meal whose key changes while it is locked.
const mealLockAttempts = 3

// Mutation names reported to the Observer.
const (
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpMove      = "move"
	OpDelete    = "delete"
	OpDeleteAll = "delete_all"
	OpBudget    = "budget"
)

// Actor is the authenticated caller of a mutation.
type Actor struct {
	UserID       uint64 // Acting user ID.
	ManageOthers bool   // May write meals owned by other users.
}

func (a Actor) mayWrite(userID uint64) bool {
	return a.ManageOthers || a.UserID == userID
}

// MealInput carries caller supplied meal fields. Zero values mean "unset".
type MealInput struct {
	ID          uint64
	UserID      uint64
	Date        time.Time
	Time        time.Time
	Calories    int
	Description *string
}

// Service keeps daily buckets and meal flags consistent with meal writes.
type Service struct {
	db        *gorm.DB
	estimator Estimator
	observer  Observer
	nowFn     func() time.Time
}

// NewService constructs a Service. estimator and observer may be nil.
func NewService(conn *gorm.DB, estimator Estimator, observer Observer, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{db: conn, estimator: estimator, observer: observer, nowFn: nowFn}
}

// Insert records a new meal and updates its daily bucket.
func (s *Service) Insert(ctx context.Context, actor Actor, in MealInput) (*models.Meal, error) {
	userID := in.UserID
	if userID == 0 {
		userID = actor.UserID
	}
	if !actor.mayWrite(userID) {
		return nil, ErrForbidden
	}
	if _, errUser := loadUser(s.db.WithContext(ctx), userID); errUser != nil {
		return nil, errUser
	}

	day, at := resolveSchedule(in.Date, in.Time, s.nowFn())
	description := normalizeDescription(in.Description)
	calories, errCalories := s.resolveCalories(ctx, in.Calories, description)
	if errCalories != nil {
		return nil, errCalories
	}

	meal := models.Meal{
		UserID:      userID,
		Date:        day,
		Time:        at,
		Calories:    calories,
		Description: description,
	}
	var crossings []Crossing
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, errUser := loadUser(db.ForShare(tx), userID)
		if errUser != nil {
			return errUser
		}
		ledger := NewLedger(tx)
		bucket, created, errBucket := ledger.Acquire(userID, day, int64(calories))
		if errBucket != nil {
			return errBucket
		}
		after := bucket.Calories
		if !created {
			before, adjusted, errAdjust := ledger.Adjust(bucket, int64(calories))
			if errAdjust != nil {
				return errAdjust
			}
			after = adjusted
			crossing := Cross(before, after, user.DailyCalories)
			if errCross := applyCrossing(tx, crossing, userID, day, 0); errCross != nil {
				return errCross
			}
			crossings = append(crossings, crossing)
		}
		meal.WithinLimit = WithinLimit(after, user.DailyCalories)
		if errCreate := tx.Create(&meal).Error; errCreate != nil {
			return fmt.Errorf("calories: create meal: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	s.observe(OpInsert, crossings)
	return &meal, nil
}

// Update merges in onto meal id and rebalances the buckets it touches.
func (s *Service) Update(ctx context.Context, actor Actor, id uint64, in MealInput) (*models.Meal, error) {
	if in.ID != id {
		return nil, ErrMealIDMismatch
	}
	current, errFind := loadMeal(s.db.WithContext(ctx), id, false)
	if errFind != nil {
		return nil, errFind
	}
	if !actor.mayWrite(current.UserID) {
		return nil, ErrForbidden
	}
	preview := mergeMeal(*current, in)
	if !actor.mayWrite(preview.UserID) {
		return nil, ErrForbidden
	}
	if preview.UserID != current.UserID {
		if _, errUser := loadUser(s.db.WithContext(ctx), preview.UserID); errUser != nil {
			return nil, errUser
		}
	}
	resolved := preview.Calories
	if resolved < 1 {
		var errCalories error
		if resolved, errCalories = s.resolveCalories(ctx, resolved, preview.Description); errCalories != nil {
			return nil, errCalories
		}
	}

	var next models.Meal
	var crossings []Crossing
	var op string
	errTx := s.mealTransaction(ctx, func(tx *gorm.DB) error {
		crossings, op = nil, OpUpdate
		// Ownership is checked again here; the meal may have changed hands since the read above.
		seen, errSeen := loadMeal(tx, id, false)
		if errSeen != nil {
			return errSeen
		}
		target := mergeMeal(*seen, in)
		if !actor.mayWrite(seen.UserID) || !actor.mayWrite(target.UserID) {
			return ErrForbidden
		}
		users, errUsers := lockUsers(tx, seen.UserID, target.UserID)
		if errUsers != nil {
			return errUsers
		}

		ledger := NewLedger(tx)
		sameBucket := seen.UserID == target.UserID && seen.Date.Equal(target.Date)
		var (
			oldBucket *models.DailyUserCalories
			newBucket *models.DailyUserCalories
			created   bool
			errLock   error
		)
		if sameBucket {
			oldBucket, errLock = lockExisting(ledger, seen.UserID, seen.Date)
		} else {
			if target.Calories < 1 {
				target.Calories = resolved
			}
			oldBucket, newBucket, created, errLock = lockMoveBuckets(ledger, seen, &target)
		}
		if errLock != nil {
			return errLock
		}

		old, errOld := loadMeal(tx, id, true)
		if errOld != nil {
			return errOld
		}
		if old.UserID != seen.UserID || !old.Date.Equal(seen.Date) || old.Calories != seen.Calories {
			return errMealChanged
		}
		next = mergeMeal(*old, in)
		if next.Calories < 1 {
			next.Calories = resolved
		}
		if next.Calories < 1 {
			return ErrCaloriesUnresolved
		}

		switch {
		case sameBucket && old.Calories == next.Calories:
			next.WithinLimit = old.WithinLimit
		case sameBucket:
			crossing, errAdjust := rebalanceSameBucket(tx, users[next.UserID], oldBucket, old, &next)
			if errAdjust != nil {
				return errAdjust
			}
			crossings = append(crossings, crossing)
		default:
			op = OpMove
			moved, errMove := move(tx, users[old.UserID], users[next.UserID], oldBucket, newBucket, created, old, &next)
			if errMove != nil {
				return errMove
			}
			crossings = append(crossings, moved...)
		}

		if errSave := tx.Model(&models.Meal{}).Where("id = ?", id).Updates(map[string]any{
			"user_id":      next.UserID,
			"date":         next.Date,
			"time":         next.Time,
			"calories":     next.Calories,
			"description":  next.Description,
			"within_limit": next.WithinLimit,
		}).Error; errSave != nil {
			return fmt.Errorf("calories: update meal: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	s.observe(op, crossings)
	return &next, nil
}

// rebalanceSameBucket applies a calorie change that stays on one (user, day).
func rebalanceSameBucket(tx *gorm.DB, user *models.User, bucket *models.DailyUserCalories, old *models.Meal, next *models.Meal) (Crossing, error) {
	ledger := NewLedger(tx)
	before, after, errAdjust := ledger.Adjust(bucket, int64(next.Calories-old.Calories))
	if errAdjust != nil {
		return CrossingNone, errAdjust
	}
	// Both directions re-flag siblings so a decrease below budget clears stale false flags.
	crossing := Cross(before, after, user.DailyCalories)
	if errCross := applyCrossing(tx, crossing, next.UserID, next.Date, old.ID); errCross != nil {
		return CrossingNone, errCross
	}
	next.WithinLimit = WithinLimit(after, user.DailyCalories)
	return crossing, nil
}

// lockMoveBuckets locks the bucket of from and acquires the bucket of to,
// in key order so opposite moves between two days cannot deadlock. A new
// destination bucket starts with to.Calories.
func lockMoveBuckets(ledger *Ledger, from *models.Meal, to *models.Meal) (oldBucket, newBucket *models.DailyUserCalories, created bool, err error) {
	lockOld := func() error {
		bucket, errGet := lockExisting(ledger, from.UserID, from.Date)
		oldBucket = bucket
		return errGet
	}
	lockNew := func() error {
		bucket, isNew, errAcquire := ledger.Acquire(to.UserID, to.Date, int64(to.Calories))
		newBucket, created = bucket, isNew
		return errAcquire
	}
	first, second := lockOld, lockNew
	if bucketKeyLess(to.UserID, to.Date, from.UserID, from.Date) {
		first, second = lockNew, lockOld
	}
	if err = first(); err != nil {
		return nil, nil, false, err
	}
	if err = second(); err != nil {
		return nil, nil, false, err
	}
	return oldBucket, newBucket, created, nil
}

// move takes the meal out of oldBucket and adds it to newBucket.
func move(tx *gorm.DB, oldUser, newUser *models.User, oldBucket, newBucket *models.DailyUserCalories, created bool, old *models.Meal, next *models.Meal) ([]Crossing, error) {
	ledger := NewLedger(tx)
	crossings := make([]Crossing, 0, 2)
	oldBefore, oldAfter, errAdjust := ledger.Adjust(oldBucket, -int64(old.Calories))
	if errAdjust != nil {
		return nil, errAdjust
	}
	oldCrossing := Cross(oldBefore, oldAfter, oldUser.DailyCalories)
	if errCross := applyCrossing(tx, oldCrossing, old.UserID, old.Date, old.ID); errCross != nil {
		return nil, errCross
	}
	crossings = append(crossings, oldCrossing)

	newAfter := newBucket.Calories
	if !created {
		newBefore, adjusted, errAdd := ledger.Adjust(newBucket, int64(next.Calories))
		if errAdd != nil {
			return nil, errAdd
		}
		newAfter = adjusted
		newCrossing := Cross(newBefore, newAfter, newUser.DailyCalories)
		if errCross := applyCrossing(tx, newCrossing, next.UserID, next.Date, old.ID); errCross != nil {
			return nil, errCross
		}
		crossings = append(crossings, newCrossing)
	}
	next.WithinLimit = WithinLimit(newAfter, newUser.DailyCalories)
	return crossings, nil
}

// Delete removes meal id and returns it with the flag of its bucket after removal.
func (s *Service) Delete(ctx context.Context, actor Actor, id uint64) (*models.Meal, error) {
	var meal *models.Meal
	var crossing Crossing
	errTx := s.mealTransaction(ctx, func(tx *gorm.DB) error {
		seen, errSeen := loadMeal(tx, id, false)
		if errSeen != nil {
			return errSeen
		}
		if !actor.mayWrite(seen.UserID) {
			return ErrForbidden
		}
		users, errUsers := lockUsers(tx, seen.UserID)
		if errUsers != nil {
			return errUsers
		}
		user := users[seen.UserID]
		ledger := NewLedger(tx)
		bucket, errBucket := lockExisting(ledger, seen.UserID, seen.Date)
		if errBucket != nil {
			return errBucket
		}
		var errFind error
		if meal, errFind = loadMeal(tx, id, true); errFind != nil {
			return errFind
		}
		if meal.UserID != seen.UserID || !meal.Date.Equal(seen.Date) || meal.Calories != seen.Calories {
			return errMealChanged
		}
		before, after, errAdjust := ledger.Adjust(bucket, -int64(meal.Calories))
		if errAdjust != nil {
			return errAdjust
		}
		crossing = Cross(before, after, user.DailyCalories)
		if errCross := applyCrossing(tx, crossing, meal.UserID, meal.Date, meal.ID); errCross != nil {
			return errCross
		}
		meal.WithinLimit = WithinLimit(after, user.DailyCalories)
		if errDelete := tx.Delete(&models.Meal{}, meal.ID).Error; errDelete != nil {
			return fmt.Errorf("calories: delete meal: %w", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	s.observe(OpDelete, []Crossing{crossing})
	return meal, nil
}

// DeleteAllForUser removes every meal and bucket of userID and returns the meal count.
func (s *Service) DeleteAllForUser(ctx context.Context, actor Actor, userID uint64) (int64, error) {
	if !actor.mayWrite(userID) {
		return 0, ErrForbidden
	}
	var removed int64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The exclusive user lock waits out every meal mutation of this user.
		if _, errUser := loadUser(db.ForUpdate(tx), userID); errUser != nil {
			return errUser
		}
		res := tx.Where("user_id = ?", userID).Delete(&models.Meal{})
		if res.Error != nil {
			return fmt.Errorf("calories: delete meals: %w", res.Error)
		}
		removed = res.RowsAffected
		if errBuckets := tx.Where("user_id = ?", userID).Delete(&models.DailyUserCalories{}).Error; errBuckets != nil {
			return fmt.Errorf("calories: delete buckets: %w", errBuckets)
		}
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	s.observe(OpDeleteAll, nil)
	return removed, nil
}

// Remaining returns how many calories userID may still eat today.
func (s *Service) Remaining(ctx context.Context, userID uint64) (int64, error) {
	conn := s.db.WithContext(ctx)
	user, errUser := loadUser(conn, userID)
	if errUser != nil {
		return 0, errUser
	}
	total, errTotal := Total(conn, userID, s.nowFn())
	if errTotal != nil {
		return 0, errTotal
	}
	remaining := int64(user.DailyCalories) - total
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ChangeBudget sets the daily budget of userID and re-flags affected meals.
func (s *Service) ChangeBudget(ctx context.Context, userID uint64, budget int) (int64, error) {
	_, flipped, err := s.UpdateUser(ctx, userID, map[string]any{"daily_calories": budget})
	return flipped, err
}

// UpdateUser applies column updates to userID in one transaction. When
// daily_calories changes, meals of the buckets between the old and the new
// budget are re-flagged. It returns the stored user and the flipped meal count.
func (s *Service) UpdateUser(ctx context.Context, userID uint64, updates map[string]any) (*models.User, int64, error) {
	var user models.User
	var flipped int64
	budgetChanged := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The exclusive lock waits for meal mutations holding the user's shared lock.
		locked, errFind := loadUser(db.ForUpdate(tx), userID)
		if errFind != nil {
			return errFind
		}
		user = *locked
		oldBudget := user.DailyCalories
		if len(updates) > 0 {
			if errUpdate := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; errUpdate != nil {
				return fmt.Errorf("calories: update user: %w", errUpdate)
			}
		}
		if errReload := tx.Where("id = ?", userID).Take(&user).Error; errReload != nil {
			return fmt.Errorf("calories: reload user: %w", errReload)
		}
		if user.DailyCalories == oldBudget {
			return nil
		}
		budgetChanged = true
		var errApply error
		flipped, errApply = ApplyBudgetChange(tx, userID, oldBudget, user.DailyCalories)
		return errApply
	})
	if errTx != nil {
		return nil, 0, errTx
	}
	if budgetChanged {
		s.observe(OpBudget, nil)
	}
	return &user, flipped, nil
}

func (s *Service) resolveCalories(ctx context.Context, calories int, description *string) (int, error) {
	if calories < 0 {
		calories = 0
	}
	if calories >= 1 {
		return calories, nil
	}
	if description == nil {
		return 0, ErrDescriptionRequired
	}
	if s.estimator == nil {
		return 0, ErrCaloriesUnresolved
	}
	estimate, errEstimate := s.estimator.Calories(ctx, *description)
	if errEstimate != nil {
		log.WithError(errEstimate).Warn("calorie estimate failed")
		return 0, fmt.Errorf("%w: %v", ErrCaloriesUnresolved, errEstimate)
	}
	if estimate < 1 {
		return 0, ErrCaloriesUnresolved
	}
	return estimate, nil
}

func (s *Service) observe(op string, crossings []Crossing) {
	if s.observer == nil {
		return
	}
	if len(crossings) == 0 {
		s.observer.ObserveMutation(op, CrossingNone)
		return
	}
	for _, crossing := range crossings {
		s.observer.ObserveMutation(op, crossing)
	}
}

// mergeMeal applies update input onto the stored meal. Unset fields keep their old value.
func mergeMeal(old models.Meal, in MealInput) models.Meal {
	next := old
	if in.UserID != 0 {
		next.UserID = in.UserID
	}
	next.Date, next.Time = mergeSchedule(in.Date, in.Time, old.Date, old.Time)
	if description := normalizeDescription(in.Description); description != nil {
		next.Description = description
	}
	if in.Calories > 0 {
		next.Calories = in.Calories
	}
	return next
}

// mealTransaction runs fn in a transaction, retrying while fn reports that its
// meal changed before the buckets were locked.
func (s *Service) mealTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	for attempt := 0; attempt < mealLockAttempts; attempt++ {
		errTx := s.db.WithContext(ctx).Transaction(fn)
		if !errors.Is(errTx, errMealChanged) {
			return errTx
		}
		log.WithField("attempt", attempt+1).Debug("meal changed before lock, retrying")
	}
	return ErrMealConflict
}

// lockUsers share-locks the distinct users in ascending id order. Mutations
// lock users, then buckets, then meal rows.
func lockUsers(tx *gorm.DB, ids ...uint64) (map[uint64]*models.User, error) {
	ordered := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(ordered, id) {
			ordered = append(ordered, id)
		}
	}
	slices.Sort(ordered)
	users := make(map[uint64]*models.User, len(ordered))
	for _, id := range ordered {
		user, errUser := loadUser(db.ForShare(tx), id)
		if errUser != nil {
			return nil, errUser
		}
		users[id] = user
	}
	return users, nil
}

// lockExisting locks the bucket of a stored meal, which must exist.
func lockExisting(ledger *Ledger, userID uint64, day time.Time) (*models.DailyUserCalories, error) {
	bucket, errBucket := ledger.Get(userID, day)
	if errBucket != nil {
		return nil, errBucket
	}
	if bucket == nil {
		return nil, fmt.Errorf("%w: user %d on %s", ErrBucketMissing, userID, Day(day).Format(time.DateOnly))
	}
	return bucket, nil
}

func loadUser(conn *gorm.DB, userID uint64) (*models.User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w=%d", ErrUnknownUser, userID)
	}
	var user models.User
	if errFind := conn.Where("id = ?", userID).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w=%d", ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("calories: load user: %w", errFind)
	}
	return &user, nil
}

func loadMeal(conn *gorm.DB, id uint64, lock bool) (*models.Meal, error) {
	query := conn
	if lock {
		query = db.ForUpdate(conn)
	}
	var meal models.Meal
	if errFind := query.Where("id = ?", id).Take(&meal).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, fmt.Errorf("calories: load meal: %w", errFind)
	}
	meal.Date = Day(meal.Date)
	meal.Time = WallClock(meal.Time)
	return &meal, nil
}

func bucketKeyLess(userA uint64, dayA time.Time, userB uint64, dayB time.Time) bool {
	if userA != userB {
		return userA < userB
	}
	return Day(dayA).Before(Day(dayB))
}
