package nutrition

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/mealtracker/internal/db"
	"github.com/router-for-me/mealtracker/internal/models"
	"gorm.io/gorm"
)

type countingLookuper struct {
	calls    int
	calories int
	err      error
}

func (c *countingLookuper) Lookup(_ context.Context, query string) (Estimate, error) {
	c.calls++
	if c.err != nil {
		return Estimate{}, c.err
	}
	return Estimate{Query: query, Calories: c.calories, Foods: []Food{{Name: query, Calories: float64(c.calories)}}}, nil
}

func openCacheDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "nutrition.db")
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestCachedEstimator_HitsCache(t *testing.T) {
	conn := openCacheDB(t)
	source := &countingLookuper{calories: 52}
	estimator := NewCachedEstimator(conn, source)

	first, errFirst := estimator.Calories(context.Background(), "One  Apple")
	if errFirst != nil {
		t.Fatalf("first lookup: %v", errFirst)
	}
	second, errSecond := estimator.Calories(context.Background(), "one apple")
	if errSecond != nil {
		t.Fatalf("second lookup: %v", errSecond)
	}
	if first != 52 || second != 52 {
		t.Fatalf("expected 52 twice, got %d and %d", first, second)
	}
	if source.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", source.calls)
	}

	cached, errLoad := LoadEstimate(context.Background(), conn, "one apple")
	if errLoad != nil || cached == nil {
		t.Fatalf("expected cached row, got %v (%v)", cached, errLoad)
	}
	if len(cached.Foods) != 1 || cached.Foods[0].Name != "one apple" {
		t.Fatalf("unexpected cached foods: %+v", cached.Foods)
	}
}

func TestCachedEstimator_PropagatesErrors(t *testing.T) {
	conn := openCacheDB(t)
	source := &countingLookuper{err: errors.New("upstream down")}
	estimator := NewCachedEstimator(conn, source)

	if _, errLookup := estimator.Calories(context.Background(), "pizza"); errLookup == nil {
		t.Fatalf("expected error from source")
	}
	if _, errLookup := estimator.Calories(context.Background(), "   "); errLookup == nil {
		t.Fatalf("expected error for blank description")
	}
	var count int64
	if errCount := conn.Model(&models.CalorieEstimate{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected failed lookups to not be cached, got %d rows", count)
	}
}

func TestStoreEstimate_UpsertAndPrune(t *testing.T) {
	conn := openCacheDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if errStore := StoreEstimate(ctx, conn, Estimate{Query: "rice", Calories: 200}, now); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}
	if errStore := StoreEstimate(ctx, conn, Estimate{Query: "rice", Calories: 210}, now.Add(time.Minute)); errStore != nil {
		t.Fatalf("store again: %v", errStore)
	}
	if errStore := StoreEstimate(ctx, conn, Estimate{Query: "old", Calories: 1}, now.Add(-48*time.Hour)); errStore != nil {
		t.Fatalf("store old: %v", errStore)
	}

	var row models.CalorieEstimate
	if errFind := conn.Where("query = ?", "rice").First(&row).Error; errFind != nil {
		t.Fatalf("find row: %v", errFind)
	}
	if row.Calories != 210 || !row.LastSeenAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected upserted row, got calories=%d last_seen_at=%s", row.Calories, row.LastSeenAt)
	}

	estimator := NewCachedEstimator(conn, &countingLookuper{})
	estimator.maxAge = 24 * time.Hour
	estimator.now = func() time.Time { return now }
	pruned, errPrune := estimator.PruneOnce(ctx)
	if errPrune != nil {
		t.Fatalf("prune: %v", errPrune)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned row, got %d", pruned)
	}
}
