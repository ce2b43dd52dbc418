package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions with the step graph stored as JSONB documents
			CREATE TABLE workflow_definitions (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_template BOOLEAN NOT NULL DEFAULT FALSE,
				visibility VARCHAR(50) NOT NULL CHECK (visibility IN ('private', 'shared', 'public')),
				has_multiple_outcomes BOOLEAN NOT NULL DEFAULT FALSE,
				owner VARCHAR(255),
				steps JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				outcomes JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				retired_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_definitions_visibility ON workflow_definitions(visibility);
			CREATE INDEX idx_workflow_definitions_owner ON workflow_definitions(owner);
			CREATE INDEX idx_workflow_definitions_retired_at ON workflow_definitions(retired_at);
		`,
		2: `
			-- Executions carry a frozen copy of their definition so later edits
			-- never affect runs already in flight
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id UUID NOT NULL,
				definition JSONB NOT NULL,
				initiator_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				selected_outcome_id VARCHAR(255),
				current_step_id VARCHAR(255),
				variables JSONB NOT NULL DEFAULT '{}',
				steps JSONB NOT NULL DEFAULT '{}',
				history JSONB NOT NULL DEFAULT '[]',
				cancel_reason TEXT,
				warnings JSONB
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
		`,
	}
}
