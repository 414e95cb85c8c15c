package postgresql

// migrations returns the versioned schema statements applied by the
// migration manager on startup.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS automations (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(64) NOT NULL,
				trigger_rules JSONB NOT NULL DEFAULT '{}',
				conditions JSONB NOT NULL DEFAULT '[]',
				actions JSONB NOT NULL DEFAULT '[]',
				priority INTEGER NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_automations_trigger
				ON automations (trigger_type, is_active)
				WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(128) NOT NULL DEFAULT '',
				trigger_type VARCHAR(64) NOT NULL,
				trigger_rules JSONB NOT NULL DEFAULT '{}',
				workflow_steps JSONB NOT NULL DEFAULT '[]',
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_trigger
				ON workflows (trigger_type, is_active)
				WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS sequence_enrollments (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				entity_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				steps_completed INTEGER NOT NULL DEFAULT 0,
				status VARCHAR(32) NOT NULL DEFAULT 'active',
				next_step_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_active_unique
				ON sequence_enrollments (workflow_id, entity_id)
				WHERE status = 'active';

			CREATE INDEX IF NOT EXISTS idx_enrollments_due
				ON sequence_enrollments (next_step_at)
				WHERE status = 'active';

			CREATE TABLE IF NOT EXISTS execution_records (
				id UUID PRIMARY KEY,
				automation_id UUID,
				workflow_id UUID,
				enrollment_id UUID,
				entity_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				trigger_type VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				action_results JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				duration_ms BIGINT NOT NULL DEFAULT 0,
				CHECK (automation_id IS NOT NULL OR workflow_id IS NOT NULL)
			);

			CREATE INDEX IF NOT EXISTS idx_executions_automation
				ON execution_records (automation_id, started_at DESC);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow
				ON execution_records (workflow_id, started_at DESC);

			CREATE INDEX IF NOT EXISTS idx_executions_entity
				ON execution_records (entity_id, started_at DESC);

			CREATE TABLE IF NOT EXISTS schedules (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL UNIQUE REFERENCES automations(id) ON DELETE CASCADE,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_schedules_due
				ON schedules (next_due_at)
				WHERE active = TRUE;
		`,
	}
}
