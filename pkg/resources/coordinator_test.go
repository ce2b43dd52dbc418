package resources_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/resources/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func definitionWithResources() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:   "def-1",
		Name: "Resourceful",
		Steps: []*models.Step{
			{
				ID: "s1", Name: "Cut", Type: models.StepTypeMaterial, DisplayOrder: 1,
				Resources: []*models.ResourceRequirement{
					{Type: models.ResourceTypeMaterial, Reference: "steel-sheet", Quantity: 2, Unit: "pcs"},
					{Type: models.ResourceTypeTool, Reference: "plasma-cutter", Quantity: 1, Unit: "pcs"},
				},
			},
			{
				ID: "s2", Name: "Polish", Type: models.StepTypeTool, DisplayOrder: 2,
				Resources: []*models.ResourceRequirement{
					{Type: models.ResourceTypeTool, Reference: "buffer", Quantity: 1, Unit: "pcs", IsOptional: true},
				},
			},
		},
		Connections: []*models.Connection{
			{ID: "c1", SourceStepID: "s1", TargetStepID: "s2", Type: models.ConnectionTypeSequential},
		},
	}
}

func TestCoordinator_CheckStart_AllAvailable(t *testing.T) {
	inv := memory.NewInventory()
	inv.SetStock("material:steel-sheet", 10)
	inv.SetStock("tool:plasma-cutter", 1)
	inv.SetStock("tool:buffer", 1)

	coordinator := resources.NewCoordinator(inv, testLogger())

	warnings, err := coordinator.CheckStart(context.Background(), definitionWithResources())
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestCoordinator_CheckStart_MandatoryShortfall(t *testing.T) {
	inv := memory.NewInventory()
	inv.SetStock("material:steel-sheet", 1) // needs 2
	inv.SetStock("tool:plasma-cutter", 1)

	coordinator := resources.NewCoordinator(inv, testLogger())

	_, err := coordinator.CheckStart(context.Background(), definitionWithResources())
	require.Error(t, err)
	assert.ErrorIs(t, err, resources.ErrMandatoryUnavailable)
}

func TestCoordinator_CheckStart_OptionalShortfallIsWarning(t *testing.T) {
	inv := memory.NewInventory()
	inv.SetStock("material:steel-sheet", 2)
	inv.SetStock("tool:plasma-cutter", 1)
	// tool:buffer missing, but optional

	coordinator := resources.NewCoordinator(inv, testLogger())

	warnings, err := coordinator.CheckStart(context.Background(), definitionWithResources())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "tool:buffer")
}

func TestCoordinator_ReadinessScore_Weighted(t *testing.T) {
	inv := memory.NewInventory()
	// Both mandatory requirements available, the optional one missing:
	// (1 + 1) / (1 + 1 + 0.5) = 80%.
	inv.SetStock("material:steel-sheet", 2)
	inv.SetStock("tool:plasma-cutter", 1)

	coordinator := resources.NewCoordinator(inv, testLogger())

	score, err := coordinator.ReadinessScore(context.Background(), definitionWithResources())
	require.NoError(t, err)
	assert.InDelta(t, 80.0, score, 0.001)
}

func TestCoordinator_ReadinessScore_NoRequirements(t *testing.T) {
	coordinator := resources.NewCoordinator(memory.NewInventory(), testLogger())

	score, err := coordinator.ReadinessScore(context.Background(), &models.WorkflowDefinition{ID: "empty", Name: "Empty"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestMemoryInventory_ReserveAndRelease(t *testing.T) {
	inv := memory.NewInventory()
	inv.SetStock("material:steel-sheet", 3)
	inv.SetStock("tool:plasma-cutter", 1)

	reqs := []*models.ResourceRequirement{
		{Type: models.ResourceTypeMaterial, Reference: "steel-sheet", Quantity: 2},
		{Type: models.ResourceTypeTool, Reference: "plasma-cutter", Quantity: 1},
		{Type: models.ResourceTypeTool, Reference: "buffer", Quantity: 1, IsOptional: true},
	}

	result, err := inv.Reserve(context.Background(), "exec-1", reqs)
	require.NoError(t, err)
	assert.Len(t, result.Reserved, 2)
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, 1.0, inv.Stock("material:steel-sheet"))
	assert.Equal(t, 0.0, inv.Stock("tool:plasma-cutter"))

	// Release restores stock; a second release changes nothing.
	require.NoError(t, inv.Release(context.Background(), "exec-1"))
	assert.Equal(t, 3.0, inv.Stock("material:steel-sheet"))

	require.NoError(t, inv.Release(context.Background(), "exec-1"))
	assert.Equal(t, 3.0, inv.Stock("material:steel-sheet"))
}

func TestMemoryInventory_MandatoryAllOrNothing(t *testing.T) {
	inv := memory.NewInventory()
	inv.SetStock("material:steel-sheet", 2)
	// plasma-cutter missing entirely

	reqs := []*models.ResourceRequirement{
		{Type: models.ResourceTypeMaterial, Reference: "steel-sheet", Quantity: 2},
		{Type: models.ResourceTypeTool, Reference: "plasma-cutter", Quantity: 1},
	}

	_, err := inv.Reserve(context.Background(), "exec-1", reqs)
	require.Error(t, err)
	assert.ErrorIs(t, err, resources.ErrMandatoryUnavailable)

	// Nothing was taken.
	assert.Equal(t, 2.0, inv.Stock("material:steel-sheet"))
}
