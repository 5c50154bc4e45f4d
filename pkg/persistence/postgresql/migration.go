package postgresql

// migrations returns the schema migrations for the version store. The only
// durable state this service owns is the append-only workflow_versions
// table; "trigger" is a reserved word, hence backup_trigger.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_versions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				version_number INTEGER NOT NULL,
				workflow_name TEXT NOT NULL,
				backup_trigger TEXT NOT NULL,
				snapshot JSONB NOT NULL,
				operations JSONB,
				fix_types JSONB,
				metadata JSONB,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (workflow_id, version_number)
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_versions_workflow
				ON workflow_versions (workflow_id, version_number DESC);
		`,
	}
}
