package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/persistence/postgresql"
	"github.com/stepline/stepline/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "workflow_definitions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("stepline_test"),
			postgres.WithUsername("stepline"),
			postgres.WithPassword("stepline"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'workflow_definitions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "workflow_definitions table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'executions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "executions table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_SaveAndRetrieveDefinition(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := testutil.CreateTestDefinition(func(d *models.WorkflowDefinition) {
		d.Steps[0].Resources = []*models.ResourceRequirement{
			{Type: models.ResourceTypeMaterial, Reference: "flour", Quantity: 2, Unit: "kg"},
		}
	})

	err := p.SaveDefinition(ctx, def)
	require.NoError(t, err)
	assert.False(t, def.CreatedAt.IsZero())
	assert.False(t, def.UpdatedAt.IsZero())

	retrieved, err := p.DefinitionByID(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, def.ID, retrieved.ID)
	assert.Equal(t, def.Name, retrieved.Name)
	assert.Equal(t, def.Visibility, retrieved.Visibility)
	assert.Len(t, retrieved.Steps, 3)
	assert.Len(t, retrieved.Connections, 2)
	assert.Len(t, retrieved.Outcomes, 1)

	require.Len(t, retrieved.Steps[0].Resources, 1)
	assert.Equal(t, "flour", retrieved.Steps[0].Resources[0].Reference)
	assert.InEpsilon(t, 2.0, retrieved.Steps[0].Resources[0].Quantity, 0.0001)

	_, err = p.DefinitionByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestNewPersistence_UpdateDefinition(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := testutil.CreateTestDefinition()

	err := p.SaveDefinition(ctx, def)
	require.NoError(t, err)

	initialUpdatedAt := def.UpdatedAt

	time.Sleep(10 * time.Millisecond)

	def.Name = "Updated Workflow"
	def.Visibility = models.VisibilityShared

	err = p.SaveDefinition(ctx, def)
	require.NoError(t, err)

	retrieved, err := p.DefinitionByID(ctx, def.ID)
	require.NoError(t, err)

	assert.Equal(t, "Updated Workflow", retrieved.Name)
	assert.Equal(t, models.VisibilityShared, retrieved.Visibility)
	assert.True(t, retrieved.UpdatedAt.After(initialUpdatedAt))
}

func TestNewPersistence_RetireDefinition(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := testutil.CreateTestDefinition()

	err := p.SaveDefinition(ctx, def)
	require.NoError(t, err)

	err = p.RetireDefinition(ctx, def.ID)
	require.NoError(t, err)

	// Retired definitions are excluded from listings but still loadable by ID
	// because frozen executions may reference them.
	defs, err := p.Definitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)

	retrieved, err := p.DefinitionByID(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved.RetiredAt)

	// Retiring twice is a no-op.
	err = p.RetireDefinition(ctx, def.ID)
	require.NoError(t, err)

	// Retiring an unknown definition reports not found.
	err = p.RetireDefinition(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestNewPersistence_ListDefinitions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	for range 3 {
		err := p.SaveDefinition(ctx, testutil.CreateTestDefinition())
		require.NoError(t, err)
	}

	defs, err := p.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 3)
}

func TestNewPersistence_SaveAndRetrieveExecution(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := testutil.CreateTestDefinition()
	err := p.SaveDefinition(ctx, def)
	require.NoError(t, err)

	exec := testutil.CreateTestExecution(def, func(e *models.Execution) {
		e.Variables = map[string]any{"batch": "b-42"}
		e.Warnings = []string{"low stock for material:flour"}
	})

	err = p.SaveExecution(ctx, exec)
	require.NoError(t, err)

	retrieved, err := p.ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, exec.ID, retrieved.ID)
	assert.Equal(t, exec.WorkflowID, retrieved.WorkflowID)
	assert.Equal(t, models.ExecutionStatusActive, retrieved.Status)
	assert.Equal(t, "s1", retrieved.CurrentStepID)
	assert.Equal(t, "b-42", retrieved.Variables["batch"])
	assert.Equal(t, []string{"low stock for material:flour"}, retrieved.Warnings)

	// The frozen definition travels with the execution.
	require.NotNil(t, retrieved.Definition)
	assert.Equal(t, def.ID, retrieved.Definition.ID)
	assert.Len(t, retrieved.Definition.Steps, 3)

	require.Contains(t, retrieved.Steps, "s1")
	assert.Equal(t, models.StepExecutionStatusReady, retrieved.Steps["s1"].Status)

	_, err = p.ExecutionByID(ctx, uuid.NewString())
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestNewPersistence_UpdateExecution(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := testutil.CreateTestDefinition()
	exec := testutil.CreateTestExecution(def)

	err := p.SaveExecution(ctx, exec)
	require.NoError(t, err)

	now := time.Now().UTC()
	exec.Status = models.ExecutionStatusCompleted
	exec.CompletedAt = &now
	exec.SelectedOutcomeID = "o1"
	exec.Steps["s1"].Status = models.StepExecutionStatusCompleted
	exec.History = append(exec.History, &models.NavigationEntry{
		StepID:    "s1",
		Action:    models.NavigationActionCompleted,
		Timestamp: now,
	})

	err = p.SaveExecution(ctx, exec)
	require.NoError(t, err)

	retrieved, err := p.ExecutionByID(ctx, exec.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, retrieved.Status)
	assert.Equal(t, "o1", retrieved.SelectedOutcomeID)
	require.NotNil(t, retrieved.CompletedAt)
	assert.Equal(t, models.StepExecutionStatusCompleted, retrieved.Steps["s1"].Status)
	require.Len(t, retrieved.History, 1)
	assert.Equal(t, models.NavigationActionCompleted, retrieved.History[0].Action)
}

func TestNewPersistence_ExecutionsByWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	defA := testutil.CreateTestDefinition()
	defB := testutil.CreateTestDefinition()

	for range 2 {
		err := p.SaveExecution(ctx, testutil.CreateTestExecution(defA))
		require.NoError(t, err)
	}

	err := p.SaveExecution(ctx, testutil.CreateTestExecution(defB))
	require.NoError(t, err)

	all, err := p.Executions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forA, err := p.ExecutionsByWorkflow(ctx, defA.ID)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	forB, err := p.ExecutionsByWorkflow(ctx, defB.ID)
	require.NoError(t, err)
	assert.Len(t, forB, 1)
}
