// Package memory provides an in-process inventory for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/resources"
)

// Inventory keeps stock levels in a mutex-guarded map. Reservations are
// tracked per execution so release can restock exactly what was taken.
type Inventory struct {
	mu           sync.Mutex
	stock        map[string]float64
	reservations map[string]map[string]float64
}

func NewInventory() *Inventory {
	return &Inventory{
		stock:        make(map[string]float64),
		reservations: make(map[string]map[string]float64),
	}
}

// SetStock sets the available quantity for a resource key.
func (inv *Inventory) SetStock(key string, quantity float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.stock[key] = quantity
}

// Stock returns the current available quantity for a resource key.
func (inv *Inventory) Stock(key string) float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.stock[key]
}

func (inv *Inventory) CheckAvailability(_ context.Context, requirements []*models.ResourceRequirement) ([]resources.Availability, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	result := make([]resources.Availability, 0, len(requirements))

	for _, req := range requirements {
		have := inv.stock[req.Key()]
		availability := resources.Availability{Requirement: req, Available: have >= req.Quantity}

		if !availability.Available {
			availability.Shortfall = req.Quantity - have
		}

		result = append(result, availability)
	}

	return result, nil
}

// Reserve is atomic per call: either every mandatory requirement is taken
// from stock or nothing is. Optional requirements that cannot be satisfied
// are skipped and reported as warnings.
func (inv *Inventory) Reserve(_ context.Context, executionID string, requirements []*models.ResourceRequirement) (*resources.ReservationResult, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	needed := make(map[string]float64)

	for _, req := range requirements {
		if !req.IsOptional {
			needed[req.Key()] += req.Quantity
		}
	}

	for key, qty := range needed {
		if inv.stock[key] < qty {
			return nil, fmt.Errorf("%w: %s short by %g", resources.ErrMandatoryUnavailable, key, qty-inv.stock[key])
		}
	}

	result := &resources.ReservationResult{ExecutionID: executionID}
	reserved := inv.reservations[executionID]

	if reserved == nil {
		reserved = make(map[string]float64)
		inv.reservations[executionID] = reserved
	}

	for _, req := range requirements {
		key := req.Key()

		if req.IsOptional && inv.stock[key] < req.Quantity {
			result.Warnings = append(result.Warnings, fmt.Sprintf("optional resource %s not reserved", key))

			continue
		}

		inv.stock[key] -= req.Quantity
		reserved[key] += req.Quantity
		result.Reserved = append(result.Reserved, req)
	}

	return result, nil
}

// Release restores everything the execution reserved. Calling it again is a
// no-op.
func (inv *Inventory) Release(_ context.Context, executionID string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for key, qty := range inv.reservations[executionID] {
		inv.stock[key] += qty
	}

	delete(inv.reservations, executionID)

	return nil
}
