package params

import (
	"testing"
	"time"

	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupCache creates a cache over a seeded in-memory store.
func setupCache(t *testing.T, interval time.Duration) (*Cache, *database.Store, *gorm.DB) {
	t.Helper()

	db, err := database.NewDatabase("file::memory:")
	assert.NoError(t, err)
	shadowDB, err := database.NewShadowDatabase("file::memory:")
	assert.NoError(t, err)

	store := database.NewStore(db, shadowDB, zap.NewNop())
	assert.NoError(t, store.SeedParameters())

	return NewCache(store, zap.NewNop(), interval), store, db
}

func TestCache_GetFallsBackWhenUnloaded(t *testing.T) {
	cache, _, _ := setupCache(t, time.Minute)

	// Nothing loaded yet, so the caller-supplied fallback wins.
	assert.Equal(t, 0.42, cache.Get("MIN_SPREAD_PERCENT", 0.42))

	assert.True(t, cache.Reload())
	assert.Equal(t, 0.3, cache.Get("MIN_SPREAD_PERCENT", 0.42))
	// Unknown names always fall back.
	assert.Equal(t, 7.0, cache.Get("NO_SUCH_PARAMETER", 7.0))
}

func TestCache_ReloadPicksUpStoreChanges(t *testing.T) {
	cache, store, _ := setupCache(t, time.Minute)
	assert.True(t, cache.Reload())

	assert.NoError(t, store.UpdateParameter("MIN_SPREAD_PERCENT", 0.5))
	// Stale until the next reload.
	assert.Equal(t, 0.3, cache.Get("MIN_SPREAD_PERCENT", 0))

	assert.True(t, cache.Reload())
	assert.Equal(t, 0.5, cache.Get("MIN_SPREAD_PERCENT", 0))
}

func TestCache_FailedReloadKeepsOldSnapshot(t *testing.T) {
	cache, _, db := setupCache(t, time.Minute)
	assert.True(t, cache.Reload())
	before := cache.LastReload()

	// Empty the parameters table so the next reload has nothing to offer.
	assert.NoError(t, db.Where("1 = 1").Delete(&models.Parameter{}).Error)

	assert.False(t, cache.Reload())
	// The previous snapshot stays usable.
	assert.Equal(t, 0.3, cache.Get("MIN_SPREAD_PERCENT", 0))
	assert.Equal(t, before, cache.LastReload())
}

func TestCache_FetchLooksUpUncachedParameter(t *testing.T) {
	cache, _, _ := setupCache(t, time.Minute)

	// Not reloaded yet, Fetch goes to the store directly.
	value, ok := cache.Fetch("MAX_DAILY_LOSS_USD")
	assert.True(t, ok)
	assert.Equal(t, 1000.0, value)

	// And the result is now cached for Get.
	assert.Equal(t, 1000.0, cache.Get("MAX_DAILY_LOSS_USD", 0))

	_, ok = cache.Fetch("NO_SUCH_PARAMETER")
	assert.False(t, ok)
}

func TestCache_MaybeReloadHonorsInterval(t *testing.T) {
	cache, store, _ := setupCache(t, time.Hour)
	assert.True(t, cache.Reload())

	assert.NoError(t, store.UpdateParameter("MIN_SPREAD_PERCENT", 0.5))

	// Interval has not elapsed, so the stale value survives.
	cache.MaybeReload()
	assert.Equal(t, 0.3, cache.Get("MIN_SPREAD_PERCENT", 0))

	// A zero-interval cache reloads on every call.
	eager, _, _ := setupCache(t, 0)
	assert.NoError(t, eager.store.UpdateParameter("MIN_SPREAD_PERCENT", 0.7))
	eager.MaybeReload()
	assert.Equal(t, 0.7, eager.Get("MIN_SPREAD_PERCENT", 0))
}
