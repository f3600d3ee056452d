package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT false,
				trigger_type VARCHAR(64) NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_tenant ON workflows(tenant_id);
			CREATE INDEX idx_workflows_trigger ON workflows(trigger_type) WHERE is_active;
		`,
		2: `
			CREATE TABLE workflow_executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				status VARCHAR(16) NOT NULL CHECK (status IN ('running', 'waiting', 'success', 'failed')),
				action_origin VARCHAR(16) NOT NULL,
				wait_kind VARCHAR(16),
				resume_at TIMESTAMP WITH TIME ZONE,
				match_field VARCHAR(32),
				match_value TEXT,
				deadline TIMESTAMP WITH TIME ZONE,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow ON workflow_executions(workflow_id, created_at DESC);
			CREATE INDEX idx_executions_timers ON workflow_executions(resume_at)
				WHERE status = 'waiting' AND wait_kind = 'timer';
			CREATE INDEX idx_executions_deadlines ON workflow_executions(deadline)
				WHERE status = 'waiting' AND wait_kind = 'webhook';
			CREATE INDEX idx_executions_correlation ON workflow_executions(tenant_id, match_field, match_value)
				WHERE status = 'waiting';
		`,
	}
}
