// Package file provides file-based persistence for definitions and
// executions, one JSON document per entity. Suited to development and small
// deployments.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

const (
	definitionsDir = "definitions"
	executionsDir  = "executions"

	fileMode = 0o644
	dirMode  = 0o755
)

// Persistence implements persistence.Persistence on the local filesystem.
type Persistence struct {
	root string
}

// NewPersistence creates the storage rooted at the given directory,
// accepting both a plain path and a file:// URL.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{definitionsDir, executionsDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), dirMode); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) definitionPath(id string) string {
	return filepath.Join(p.root, definitionsDir, id+".json")
}

func (p *Persistence) executionPath(id string) string {
	return filepath.Join(p.root, executionsDir, id+".json")
}

func (p *Persistence) Definitions(_ context.Context) ([]*models.WorkflowDefinition, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, definitionsDir))
	if err != nil {
		return nil, persistence.NewStoreError("Definitions", "", err)
	}

	defs := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		def, err := readJSON[models.WorkflowDefinition](filepath.Join(p.root, definitionsDir, entry.Name()))
		if err != nil {
			return nil, persistence.NewStoreError("Definitions", entry.Name(), err)
		}

		defs = append(defs, def)
	}

	return defs, nil
}

func (p *Persistence) DefinitionByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	def, err := readJSON[models.WorkflowDefinition](p.definitionPath(id))
	if os.IsNotExist(err) {
		return nil, persistence.NewStoreError("DefinitionByID", id, persistence.ErrDefinitionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("DefinitionByID", id, err)
	}

	return def, nil
}

func (p *Persistence) SaveDefinition(_ context.Context, def *models.WorkflowDefinition) error {
	if err := writeJSON(p.definitionPath(def.ID), def); err != nil {
		return persistence.NewStoreError("SaveDefinition", def.ID, err)
	}

	return nil
}

func (p *Persistence) RetireDefinition(ctx context.Context, id string) error {
	def, err := p.DefinitionByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	def.RetiredAt = &now

	return p.SaveDefinition(ctx, def)
}

func (p *Persistence) Executions(_ context.Context) ([]*models.Execution, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, executionsDir))
	if err != nil {
		return nil, persistence.NewStoreError("Executions", "", err)
	}

	execs := make([]*models.Execution, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		exec, err := readJSON[models.Execution](filepath.Join(p.root, executionsDir, entry.Name()))
		if err != nil {
			return nil, persistence.NewStoreError("Executions", entry.Name(), err)
		}

		execs = append(execs, exec)
	}

	return execs, nil
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	all, err := p.Executions(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Execution, 0)

	for _, exec := range all {
		if exec.WorkflowID == workflowID {
			matched = append(matched, exec)
		}
	}

	return matched, nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	exec, err := readJSON[models.Execution](p.executionPath(id))
	if os.IsNotExist(err) {
		return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return exec, nil
}

func (p *Persistence) SaveExecution(_ context.Context, exec *models.Execution) error {
	if err := writeJSON(p.executionPath(exec.ID), exec); err != nil {
		return persistence.NewStoreError("SaveExecution", exec.ID, err)
	}

	return nil
}

func readJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &value, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, fileMode)
}
