package redisinv_test

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/resources/redisinv"
)

var redisContainer *tcredis.RedisContainer

func setupTestInventory(t *testing.T) (*redisinv.Inventory, goredis.UniversalClient, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if redisContainer == nil || !redisContainer.IsRunning() {
		var err error

		redisContainer, err = tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
	}

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	require.NoError(t, client.FlushAll(ctx).Err())

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	inv := redisinv.NewInventoryWithClient(client, logger)

	t.Cleanup(func() {
		require.NoError(t, client.FlushAll(context.Background()).Err())
		require.NoError(t, inv.Close())
		cancel()
	})

	return inv, client, ctx
}

func stockValue(ctx context.Context, t *testing.T, client goredis.UniversalClient, key string) float64 {
	t.Helper()

	value, err := client.Get(ctx, "stepline:stock:"+key).Result()
	require.NoError(t, err)

	quantity, err := strconv.ParseFloat(value, 64)
	require.NoError(t, err)

	return quantity
}

func TestRedisInventory_ReserveAndRelease(t *testing.T) {
	inv, client, ctx := setupTestInventory(t)

	require.NoError(t, inv.SetStock(ctx, "material:steel-sheet", 3))
	require.NoError(t, inv.SetStock(ctx, "tool:plasma-cutter", 1))

	reqs := []*models.ResourceRequirement{
		{Type: models.ResourceTypeMaterial, Reference: "steel-sheet", Quantity: 2},
		{Type: models.ResourceTypeTool, Reference: "plasma-cutter", Quantity: 1},
		{Type: models.ResourceTypeTool, Reference: "buffer", Quantity: 1, IsOptional: true},
	}

	result, err := inv.Reserve(ctx, "exec-1", reqs)
	require.NoError(t, err)
	assert.Len(t, result.Reserved, 2)
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, 1.0, stockValue(ctx, t, client, "material:steel-sheet"))
	assert.Equal(t, 0.0, stockValue(ctx, t, client, "tool:plasma-cutter"))

	// Release restores stock and drops the reservation hash; a second
	// release finds nothing and restores nothing.
	require.NoError(t, inv.Release(ctx, "exec-1"))
	assert.Equal(t, 3.0, stockValue(ctx, t, client, "material:steel-sheet"))
	assert.Equal(t, 1.0, stockValue(ctx, t, client, "tool:plasma-cutter"))

	require.NoError(t, inv.Release(ctx, "exec-1"))
	assert.Equal(t, 3.0, stockValue(ctx, t, client, "material:steel-sheet"))

	held, err := client.Exists(ctx, "stepline:reservation:exec-1").Result()
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestRedisInventory_MandatoryAllOrNothing(t *testing.T) {
	inv, client, ctx := setupTestInventory(t)

	require.NoError(t, inv.SetStock(ctx, "material:steel-sheet", 2))
	// plasma-cutter missing entirely

	reqs := []*models.ResourceRequirement{
		{Type: models.ResourceTypeMaterial, Reference: "steel-sheet", Quantity: 2},
		{Type: models.ResourceTypeTool, Reference: "plasma-cutter", Quantity: 1},
	}

	_, err := inv.Reserve(ctx, "exec-1", reqs)
	require.Error(t, err)
	assert.ErrorIs(t, err, resources.ErrMandatoryUnavailable)

	// Nothing was taken and no reservation was recorded.
	assert.Equal(t, 2.0, stockValue(ctx, t, client, "material:steel-sheet"))

	held, err := client.Exists(ctx, "stepline:reservation:exec-1").Result()
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestRedisInventory_CheckAvailabilityReportsShortfall(t *testing.T) {
	inv, _, ctx := setupTestInventory(t)

	require.NoError(t, inv.SetStock(ctx, "material:flour", 1))

	reqs := []*models.ResourceRequirement{
		{Type: models.ResourceTypeMaterial, Reference: "flour", Quantity: 3, Unit: "kg"},
		{Type: models.ResourceTypeTool, Reference: "scale", Quantity: 1},
	}

	availabilities, err := inv.CheckAvailability(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, availabilities, 2)

	assert.False(t, availabilities[0].Available)
	assert.Equal(t, 2.0, availabilities[0].Shortfall)

	// Unknown keys count as zero stock.
	assert.False(t, availabilities[1].Available)
	assert.Equal(t, 1.0, availabilities[1].Shortfall)
}

func TestRedisInventory_ConcurrentReserveSingleWinner(t *testing.T) {
	inv, client, ctx := setupTestInventory(t)

	require.NoError(t, inv.SetStock(ctx, "tool:press", 1))

	reqs := []*models.ResourceRequirement{
		{Type: models.ResourceTypeTool, Reference: "press", Quantity: 1},
	}

	const contenders = 4

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)

	for i := range contenders {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_, err := inv.Reserve(ctx, "exec-"+strconv.Itoa(n), reqs)
			if err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, resources.ErrMandatoryUnavailable)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, 0.0, stockValue(ctx, t, client, "tool:press"))
}
