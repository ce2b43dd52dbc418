// Package redisinv provides a redis-backed inventory so stock and
// reservations survive engine restarts and are shared between instances.
package redisinv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	redis "github.com/redis/go-redis/v9"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/resources"
)

const (
	stockKeyPrefix       = "stepline:stock:"
	reservationKeyPrefix = "stepline:reservation:"

	// reserve retries the WATCH transaction this many times before giving
	// up when concurrent executions race on the same stock keys.
	maxReserveAttempts = 5
)

// Inventory implements resources.Inventory on top of redis. Stock levels
// live in plain string keys, reservations in one hash per execution.
type Inventory struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewInventory(ctx context.Context, redisURL string, logger *slog.Logger) (*Inventory, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Inventory{
		client: client,
		logger: logger.With("module", "redis_inventory"),
	}, nil
}

// NewInventoryWithClient wraps an existing client, mainly for tests.
func NewInventoryWithClient(client redis.UniversalClient, logger *slog.Logger) *Inventory {
	return &Inventory{client: client, logger: logger.With("module", "redis_inventory")}
}

func (inv *Inventory) Close() error {
	return inv.client.Close()
}

// SetStock sets the available quantity for a resource key.
func (inv *Inventory) SetStock(ctx context.Context, key string, quantity float64) error {
	return inv.client.Set(ctx, stockKeyPrefix+key, quantity, 0).Err()
}

func (inv *Inventory) stock(ctx context.Context, tx redis.Cmdable, key string) (float64, error) {
	value, err := tx.Get(ctx, stockKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	quantity, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt stock value for %s: %w", key, err)
	}

	return quantity, nil
}

func (inv *Inventory) CheckAvailability(ctx context.Context, requirements []*models.ResourceRequirement) ([]resources.Availability, error) {
	result := make([]resources.Availability, 0, len(requirements))

	for _, req := range requirements {
		have, err := inv.stock(ctx, inv.client, req.Key())
		if err != nil {
			return nil, err
		}

		availability := resources.Availability{Requirement: req, Available: have >= req.Quantity}
		if !availability.Available {
			availability.Shortfall = req.Quantity - have
		}

		result = append(result, availability)
	}

	return result, nil
}

// Reserve runs inside a WATCH transaction over the affected stock keys so
// concurrent executions cannot double-reserve. Mandatory requirements are
// all-or-nothing; optional shortfalls become warnings.
func (inv *Inventory) Reserve(ctx context.Context, executionID string, requirements []*models.ResourceRequirement) (*resources.ReservationResult, error) {
	watched := make([]string, 0, len(requirements))
	for _, req := range requirements {
		watched = append(watched, stockKeyPrefix+req.Key())
	}

	var result *resources.ReservationResult

	txn := func(tx *redis.Tx) error {
		stocks := make(map[string]float64, len(requirements))

		for _, req := range requirements {
			if _, seen := stocks[req.Key()]; seen {
				continue
			}

			have, err := inv.stock(ctx, tx, req.Key())
			if err != nil {
				return err
			}

			stocks[req.Key()] = have
		}

		needed := make(map[string]float64)

		for _, req := range requirements {
			if !req.IsOptional {
				needed[req.Key()] += req.Quantity
			}
		}

		for key, qty := range needed {
			if stocks[key] < qty {
				return fmt.Errorf("%w: %s short by %g", resources.ErrMandatoryUnavailable, key, qty-stocks[key])
			}
		}

		result = &resources.ReservationResult{ExecutionID: executionID}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, req := range requirements {
				key := req.Key()

				if req.IsOptional && stocks[key] < req.Quantity {
					result.Warnings = append(result.Warnings, fmt.Sprintf("optional resource %s not reserved", key))

					continue
				}

				stocks[key] -= req.Quantity

				pipe.IncrByFloat(ctx, stockKeyPrefix+key, -req.Quantity)
				pipe.HIncrByFloat(ctx, reservationKeyPrefix+executionID, key, req.Quantity)
				result.Reserved = append(result.Reserved, req)
			}

			return nil
		})

		return err
	}

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		err := inv.client.Watch(ctx, txn, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return nil, err
		}

		return result, nil
	}

	return nil, fmt.Errorf("reservation for execution %s kept conflicting after %d attempts", executionID, maxReserveAttempts)
}

// Release restocks whatever the execution holds and removes the reservation
// hash. A second call finds no hash and does nothing.
func (inv *Inventory) Release(ctx context.Context, executionID string) error {
	reservationKey := reservationKeyPrefix + executionID

	txn := func(tx *redis.Tx) error {
		held, err := tx.HGetAll(ctx, reservationKey).Result()
		if err != nil {
			return err
		}

		if len(held) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, value := range held {
				qty, parseErr := strconv.ParseFloat(value, 64)
				if parseErr != nil {
					inv.logger.Error("Corrupt reservation entry, skipping restock", "execution_id", executionID, "key", key, "value", value)

					continue
				}

				pipe.IncrByFloat(ctx, stockKeyPrefix+key, qty)
			}

			pipe.Del(ctx, reservationKey)

			return nil
		})

		return err
	}

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		err := inv.client.Watch(ctx, txn, reservationKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("release for execution %s kept conflicting after %d attempts", executionID, maxReserveAttempts)
}
