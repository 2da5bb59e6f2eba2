package calories

import "errors"

var (
	// ErrUnknownUser is returned when a meal targets a user that does not exist.
	ErrUnknownUser = errors.New("invalid user id")
	// ErrMealNotFound is returned when the meal id does not exist.
	ErrMealNotFound = errors.New("meal not found")
	// ErrMealIDMismatch is returned when the path id and the body id differ.
	ErrMealIDMismatch = errors.New("id not equal to meal id")
	// ErrDescriptionRequired is returned when neither calories nor a description are given.
	ErrDescriptionRequired = errors.New("description must be set if calories are unset")
	// ErrCaloriesUnresolved is returned when the estimator cannot price a description.
	ErrCaloriesUnresolved = errors.New("calorie service request failed, please enter calories or simplify description")
	// ErrForbidden is returned when the actor may not write another user's meals.
	ErrForbidden = errors.New("not allowed to modify meals of another user")
	// ErrMealConflict is returned when a meal kept changing while its buckets were being locked.
	ErrMealConflict = errors.New("meal was modified concurrently, please retry")
	// ErrBucketMissing signals a meal whose daily bucket does not exist.
	ErrBucketMissing = errors.New("daily calorie bucket missing")
	// ErrBucketExists is returned when creating a bucket that already exists.
	ErrBucketExists = errors.New("daily calorie bucket already exists")

	// errMealChanged aborts a transaction whose meal moved before its buckets were locked.
	errMealChanged = errors.New("meal changed before lock")
)
