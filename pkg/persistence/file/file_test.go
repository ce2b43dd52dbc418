package file_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/testutil"
)

func setupStore(t *testing.T) (*file.Persistence, context.Context) {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p, context.Background()
}

func TestNewPersistence_StripsFileScheme(t *testing.T) {
	dir := t.TempDir()

	p, err := file.NewPersistence("file://" + dir)
	require.NoError(t, err)

	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestPersistence_DefinitionRoundTrip(t *testing.T) {
	p, ctx := setupStore(t)

	def := testutil.CreateTestDefinition()

	err := p.SaveDefinition(ctx, def)
	require.NoError(t, err)

	retrieved, err := p.DefinitionByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, retrieved.Name)
	assert.Len(t, retrieved.Steps, 3)
	assert.Len(t, retrieved.Connections, 2)

	defs, err := p.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestPersistence_DefinitionNotFound(t *testing.T) {
	p, ctx := setupStore(t)

	_, err := p.DefinitionByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestPersistence_RetireDefinition(t *testing.T) {
	p, ctx := setupStore(t)

	def := testutil.CreateTestDefinition()
	require.NoError(t, p.SaveDefinition(ctx, def))

	err := p.RetireDefinition(ctx, def.ID)
	require.NoError(t, err)

	retrieved, err := p.DefinitionByID(ctx, def.ID)
	require.NoError(t, err)
	assert.NotNil(t, retrieved.RetiredAt)

	err = p.RetireDefinition(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestPersistence_ExecutionRoundTrip(t *testing.T) {
	p, ctx := setupStore(t)

	def := testutil.CreateTestDefinition()
	exec := testutil.CreateTestExecution(def)

	err := p.SaveExecution(ctx, exec)
	require.NoError(t, err)

	retrieved, err := p.ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.WorkflowID, retrieved.WorkflowID)
	assert.Equal(t, models.ExecutionStatusActive, retrieved.Status)
	require.NotNil(t, retrieved.Definition)
	assert.Len(t, retrieved.Definition.Steps, 3)

	_, err = p.ExecutionByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestPersistence_ExecutionsByWorkflow(t *testing.T) {
	p, ctx := setupStore(t)

	defA := testutil.CreateTestDefinition()
	defB := testutil.CreateTestDefinition()

	require.NoError(t, p.SaveExecution(ctx, testutil.CreateTestExecution(defA)))
	require.NoError(t, p.SaveExecution(ctx, testutil.CreateTestExecution(defA)))
	require.NoError(t, p.SaveExecution(ctx, testutil.CreateTestExecution(defB)))

	all, err := p.Executions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forA, err := p.ExecutionsByWorkflow(ctx, defA.ID)
	require.NoError(t, err)
	assert.Len(t, forA, 2)
}
