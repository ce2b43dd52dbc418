package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/resources/memory"
	"github.com/stepline/stepline/pkg/resources/redisinv"
)

// NewInventory picks the resource inventory backend: a redis:// URL opens a
// shared redis inventory, an empty URL falls back to the in-process one.
func NewInventory(ctx context.Context, logger *slog.Logger, inventoryURL string) (resources.Inventory, error) {
	if strings.HasPrefix(inventoryURL, "redis://") || strings.HasPrefix(inventoryURL, "rediss://") {
		return redisinv.NewInventory(ctx, inventoryURL, logger)
	}

	return memory.NewInventory(), nil
}
