package services_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/guidance"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/resources/memory"
	"github.com/stepline/stepline/pkg/services"
	"github.com/stepline/stepline/pkg/testutil"
)

type nullPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *nullPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

type testServices struct {
	definitions *services.Definition
	engine      *services.Engine
	inventory   *memory.Inventory
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	inventory := memory.NewInventory()
	coordinator := resources.NewCoordinator(inventory, logger)
	controller := execution.NewController(logger, store, coordinator, &nullPublisher{})

	return &testServices{
		definitions: services.NewDefinition(store),
		engine:      services.NewEngine(store, controller, coordinator, nil),
		inventory:   inventory,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))

	return len(p), nil
}

func TestDefinitionCreateAssignsIdentity(t *testing.T) {
	svc := newTestServices(t)

	def := testutil.CreateTestDefinition()
	def.ID = ""
	def.Visibility = ""

	created, err := svc.definitions.Create(context.Background(), def)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.VisibilityPrivate, created.Visibility)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
}

func TestDefinitionCreateRejectsBrokenGraph(t *testing.T) {
	svc := newTestServices(t)

	def := testutil.CreateTestDefinition(func(def *models.WorkflowDefinition) {
		def.Connections = append(def.Connections,
			testutil.CreateTestConnection("bad", "s1", "ghost"))
	})

	_, err := svc.definitions.Create(context.Background(), def)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	var invalid *execution.DefinitionInvalidError

	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Issues)
}

func TestDefinitionCreateRejectsNil(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.definitions.Create(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrDefinitionNil)
	assert.True(t, services.IsValidationError(err))
}

func TestDefinitionUpdatePreservesCreationTime(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	edited := created.Clone()
	edited.Description = "now with more detail"

	updated, err := svc.definitions.Update(ctx, created.ID, edited)
	require.NoError(t, err)

	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "now with more detail", updated.Description)
}

func TestDefinitionStructuralUpdateBlockedWhileRunning(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	_, err = svc.engine.Start(ctx, services.StartRequest{
		WorkflowID:  created.ID,
		InitiatorID: "user-1",
	})
	require.NoError(t, err)

	structural := created.Clone()
	structural.Steps = append(structural.Steps,
		testutil.CreateTestStep("s4", testutil.WithDisplayOrder(4)))
	structural.Connections = append(structural.Connections,
		testutil.CreateTestConnection("c3", "s3", "s4"))

	_, err = svc.definitions.Update(ctx, created.ID, structural)
	require.ErrorIs(t, err, services.ErrDefinitionInUse)
	assert.True(t, services.IsConflictError(err))

	// Metadata edits stay allowed while the execution runs.
	renamed := created.Clone()
	renamed.Name = "renamed"

	_, err = svc.definitions.Update(ctx, created.ID, renamed)
	require.NoError(t, err)
}

func TestDefinitionStructuralUpdateAllowedAfterTerminal(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	exec, err := svc.engine.Start(ctx, services.StartRequest{
		WorkflowID:  created.ID,
		InitiatorID: "user-1",
	})
	require.NoError(t, err)

	_, err = svc.engine.Cancel(ctx, exec.ID, "changed plans")
	require.NoError(t, err)

	structural := created.Clone()
	structural.Steps = append(structural.Steps,
		testutil.CreateTestStep("s4", testutil.WithDisplayOrder(4)))
	structural.Connections = append(structural.Connections,
		testutil.CreateTestConnection("c3", "s3", "s4"))

	_, err = svc.definitions.Update(ctx, created.ID, structural)
	require.NoError(t, err)
}

func TestDefinitionRetireBlocksStartAndUpdate(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	require.NoError(t, svc.definitions.Retire(ctx, created.ID))

	_, err = svc.engine.Start(ctx, services.StartRequest{
		WorkflowID:  created.ID,
		InitiatorID: "user-1",
	})
	require.ErrorIs(t, err, services.ErrDefinitionRetired)
	assert.True(t, services.IsConflictError(err))

	_, err = svc.definitions.Update(ctx, created.ID, created.Clone())
	require.ErrorIs(t, err, services.ErrDefinitionRetired)
}

func TestEngineStartUnknownWorkflow(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.engine.Start(context.Background(), services.StartRequest{
		WorkflowID:  "missing",
		InitiatorID: "user-1",
	})
	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}

func TestEngineDrivesExecutionToCompletion(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	exec, err := svc.engine.Start(ctx, services.StartRequest{
		WorkflowID:  created.ID,
		InitiatorID: "user-1",
	})
	require.NoError(t, err)

	for _, stepID := range []string{"s1", "s2", "s3"} {
		exec, err = svc.engine.Navigate(ctx, exec.ID, stepID)
		require.NoError(t, err)

		exec, err = svc.engine.Complete(ctx, exec.ID, stepID, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)

	progress, err := svc.engine.Progress(ctx, exec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, progress.Percent, 0.001)
}

func TestEngineGuidanceQueries(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	exec, err := svc.engine.Start(ctx, services.StartRequest{
		WorkflowID:  created.ID,
		InitiatorID: "user-1",
	})
	require.NoError(t, err)

	actions, err := svc.engine.AvailableActions(ctx, exec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, actions)

	suggestion, err := svc.engine.SuggestNextAction(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, guidance.ActionNavigate, suggestion.Action.Kind)

	path, err := svc.engine.FindOptimalPath(ctx, exec.ID, "")
	require.NoError(t, err)
	assert.True(t, path.Found)
	assert.Equal(t, "s3", path.StepIDs[len(path.StepIDs)-1])
}

func TestEngineReadinessScore(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	def := testutil.CreateTestDefinition(func(def *models.WorkflowDefinition) {
		def.Steps[0].Resources = []*models.ResourceRequirement{
			{Type: models.ResourceTypeMaterial, Reference: "flour", Quantity: 500, Unit: "g"},
			{Type: models.ResourceTypeTool, Reference: "mixer", Quantity: 1, IsOptional: true},
		}
	})

	created, err := svc.definitions.Create(ctx, def)
	require.NoError(t, err)

	svc.inventory.SetStock("material:flour", 1000)

	score, err := svc.engine.Readiness(ctx, created.ID)
	require.NoError(t, err)

	// The mandatory requirement is covered, the optional one is not.
	assert.InDelta(t, 100.0/1.5, score, 0.001)
}

func TestEngineExportImportRoundTrip(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	doc, err := svc.engine.Export(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, doc.Metadata.OriginalID)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	imported, err := svc.engine.Import(ctx, data, "importer-1")
	require.NoError(t, err)

	assert.NotEqual(t, created.ID, imported.ID)
	assert.Equal(t, "importer-1", imported.Owner)
	assert.Len(t, imported.Steps, len(created.Steps))

	stored, err := svc.definitions.FetchByID(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, imported.ID, stored.ID)
}

func TestEngineImportRejectsGarbage(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.engine.Import(context.Background(), []byte(`{"preset_info":{"name":"x"}}`), "importer-1")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestEngineListExecutions(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	created, err := svc.definitions.Create(ctx, testutil.CreateTestDefinition())
	require.NoError(t, err)

	for range 2 {
		_, err = svc.engine.Start(ctx, services.StartRequest{
			WorkflowID:  created.ID,
			InitiatorID: "user-1",
		})
		require.NoError(t, err)
	}

	execs, err := svc.engine.List(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, execs, 2)

	// Pausing through the facade keeps reading its own writes.
	exec, err := svc.engine.Pause(ctx, execs[0].ID, "lunch")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, exec.Status)

	exec, err = svc.engine.Resume(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusActive, exec.Status)
}
