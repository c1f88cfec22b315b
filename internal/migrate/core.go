package migrate

// CoreSchema is the scope name of the canonical store.
const CoreSchema = "main"

// CoreSteps returns the declared migration history of the canonical store.
// Append-only: released versions are never edited, schema changes get a new
// version. Views over these tables are rebuilt by the store after every run,
// not inside the steps, so the view definitions live in one place.
func CoreSteps() []Step {
	return []Step{
		{
			Version: 1,
			Name:    "create_accounts",
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS {{schema}}.sys_accounts (
					id                  UUID PRIMARY KEY,
					name                VARCHAR NOT NULL,
					nickname            VARCHAR,
					account_type        VARCHAR,
					classification      VARCHAR NOT NULL DEFAULT 'asset',
					currency            VARCHAR NOT NULL DEFAULT 'USD',
					is_manual           BOOLEAN NOT NULL DEFAULT FALSE,
					institution_name    VARCHAR,
					institution_url     VARCHAR,
					institution_domain  VARCHAR,

					sf_id                VARCHAR,
					sf_name              VARCHAR,
					sf_currency          VARCHAR,
					sf_balance           VARCHAR,
					sf_available_balance VARCHAR,
					sf_balance_date      BIGINT,
					sf_org_name          VARCHAR,
					sf_org_url           VARCHAR,
					sf_org_domain        VARCHAR,
					sf_extra             VARCHAR,

					lf_id               VARCHAR,
					lf_name             VARCHAR,
					lf_institution_name VARCHAR,
					lf_institution_logo VARCHAR,
					lf_provider         VARCHAR,
					lf_currency         VARCHAR,
					lf_status           VARCHAR,

					created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
					updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
				)`,
			},
		},
		{
			Version: 2,
			Name:    "create_transactions",
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS {{schema}}.sys_transactions (
					id                    UUID PRIMARY KEY,
					account_id            UUID NOT NULL,
					amount                DECIMAL(15,2) NOT NULL,
					description           VARCHAR,
					transaction_date      DATE NOT NULL,
					posted_date           DATE,
					tags                  VARCHAR[],
					parent_transaction_id UUID,
					deleted_at            TIMESTAMP,
					is_manual             BOOLEAN NOT NULL DEFAULT FALSE,
					csv_fingerprint       VARCHAR,
					csv_batch_id          VARCHAR,

					sf_id            VARCHAR,
					sf_posted        BIGINT,
					sf_amount        VARCHAR,
					sf_description   VARCHAR,
					sf_transacted_at BIGINT,
					sf_pending       BOOLEAN,
					sf_extra         VARCHAR,

					lf_id          VARCHAR,
					lf_account_id  VARCHAR,
					lf_amount      DECIMAL(15,2),
					lf_currency    VARCHAR,
					lf_date        DATE,
					lf_merchant    VARCHAR,
					lf_description VARCHAR,
					lf_is_pending  BOOLEAN,

					created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
					updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
				)`,
				`CREATE INDEX IF NOT EXISTS idx_sys_transactions_account ON {{schema}}.sys_transactions (account_id)`,
				`CREATE INDEX IF NOT EXISTS idx_sys_transactions_date ON {{schema}}.sys_transactions (transaction_date)`,
				`CREATE INDEX IF NOT EXISTS idx_sys_transactions_sf_id ON {{schema}}.sys_transactions (sf_id)`,
				`CREATE INDEX IF NOT EXISTS idx_sys_transactions_lf_id ON {{schema}}.sys_transactions (lf_id)`,
				`CREATE INDEX IF NOT EXISTS idx_sys_transactions_csv ON {{schema}}.sys_transactions (csv_fingerprint, csv_batch_id)`,
			},
		},
		{
			Version: 3,
			Name:    "create_balance_snapshots",
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS {{schema}}.sys_balance_snapshots (
					id                UUID PRIMARY KEY,
					account_id        UUID NOT NULL,
					balance           DECIMAL(15,2) NOT NULL,
					available_balance DECIMAL(15,2),
					snapshot_time     TIMESTAMP NOT NULL,
					source            VARCHAR NOT NULL,
					created_at        TIMESTAMP NOT NULL DEFAULT current_timestamp,
					updated_at        TIMESTAMP NOT NULL DEFAULT current_timestamp
				)`,
				`CREATE INDEX IF NOT EXISTS idx_sys_snapshots_account ON {{schema}}.sys_balance_snapshots (account_id, snapshot_time)`,
			},
		},
		{
			Version: 4,
			Name:    "create_sys_logs",
			Statements: []string{`
				CREATE TABLE IF NOT EXISTS {{schema}}.sys_logs (
					id         UUID PRIMARY KEY,
					level      VARCHAR NOT NULL,
					event      VARCHAR NOT NULL,
					message    VARCHAR,
					context    VARCHAR,
					created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
				)`,
			},
		},
		{
			Version: 5,
			Name:    "add_auto_tagged",
			Statements: []string{
				// DuckDB cannot add a column with a NOT NULL constraint;
				// the default plus the backfill keeps the column
				// effectively non-null.
				`ALTER TABLE {{schema}}.sys_transactions ADD COLUMN IF NOT EXISTS auto_tagged BOOLEAN DEFAULT FALSE`,
				`UPDATE {{schema}}.sys_transactions SET auto_tagged = FALSE WHERE auto_tagged IS NULL`,
			},
		},
	}
}
