package nutrition

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPruneInterval = 6 * time.Hour
	defaultMaxAge        = 30 * 24 * time.Hour
	maxQueryLength       = 255
)

// Lookuper fetches a fresh estimate for a query.
type Lookuper interface {
	Lookup(ctx context.Context, query string) (Estimate, error)
}

// CachedEstimator serves estimates from the calorie_estimates table and falls back to a Lookuper.
type CachedEstimator struct {
	db       *gorm.DB
	source   Lookuper
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCachedEstimator constructs a cache in front of source.
func NewCachedEstimator(db *gorm.DB, source Lookuper) *CachedEstimator {
	return &CachedEstimator{
		db:       db,
		source:   source,
		maxAge:   defaultMaxAge,
		interval: defaultPruneInterval,
		now:      time.Now,
	}
}

// NormalizeQuery folds case and whitespace so equivalent descriptions share a cache row.
func NormalizeQuery(description string) string {
	query := strings.ToLower(strings.Join(strings.Fields(description), " "))
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	return query
}

// Calories returns the cached or freshly looked up calories for description.
func (e *CachedEstimator) Calories(ctx context.Context, description string) (int, error) {
	if e == nil || e.source == nil {
		return 0, fmt.Errorf("nutrition: estimator not configured")
	}
	query := NormalizeQuery(description)
	if query == "" {
		return 0, fmt.Errorf("nutrition: empty query")
	}
	now := e.now().UTC()

	if e.db != nil {
		cached, err := LoadEstimate(ctx, e.db, query)
		if err != nil {
			log.WithError(err).Warn("nutrition: cache read failed")
		} else if cached != nil {
			if errTouch := TouchEstimate(ctx, e.db, query, now); errTouch != nil {
				log.WithError(errTouch).Warn("nutrition: cache touch failed")
			}
			return cached.Calories, nil
		}
	}

	estimate, err := e.source.Lookup(ctx, query)
	if err != nil {
		return 0, err
	}
	estimate.Query = query
	if e.db != nil {
		if errStore := StoreEstimate(ctx, e.db, estimate, now); errStore != nil {
			log.WithError(errStore).Warn("nutrition: cache write failed")
		}
	}
	return estimate.Calories, nil
}

// Start prunes stale cache rows in the background until ctx is done.
func (e *CachedEstimator) Start(ctx context.Context) {
	if e == nil || e.db == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go e.run(ctx)
	log.Infof("calorie estimate pruner started (interval=%s, max-age=%s)", e.interval, e.maxAge)
}

func (e *CachedEstimator) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.PruneOnce(ctx); err != nil {
				log.WithError(err).Warn("calorie estimate pruner: prune failed")
			}
		}
	}
}

// PruneOnce removes estimates unused for longer than the max age.
func (e *CachedEstimator) PruneOnce(ctx context.Context) (int64, error) {
	return PruneEstimates(ctx, e.db, e.now().Add(-e.maxAge))
}
