package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
//
// The schema is shared by SQLite and Postgres: timestamps are unix
// milliseconds (BIGINT) except activities.ts, which holds microseconds;
// booleans are 0/1 integers and JSON is TEXT.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS activities (
	id             TEXT PRIMARY KEY,
	org_id         TEXT NOT NULL,
	source         TEXT NOT NULL,
	activity_type  TEXT NOT NULL,
	actor_email    TEXT NOT NULL,
	actor_id       TEXT NOT NULL DEFAULT '',
	project_alias  TEXT NOT NULL DEFAULT '',
	project_id     TEXT NOT NULL DEFAULT '',
	ts             BIGINT NOT NULL,
	metadata       TEXT NOT NULL DEFAULT '{}',
	source_ref_id  TEXT NOT NULL,
	created_at     BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_source_ref
	ON activities(source, source_ref_id);
CREATE INDEX IF NOT EXISTS idx_activities_actor_ts ON activities(actor_email, ts);
CREATE INDEX IF NOT EXISTS idx_activities_project_ts ON activities(project_id, ts);
CREATE INDEX IF NOT EXISTS idx_activities_alias_ts ON activities(project_alias, ts);

CREATE TABLE IF NOT EXISTS identities (
	id                 TEXT PRIMARY KEY,
	org_id             TEXT NOT NULL,
	primary_email      TEXT NOT NULL UNIQUE,
	github_login       TEXT NOT NULL DEFAULT '',
	github_id          TEXT NOT NULL DEFAULT '',
	slack_user_id      TEXT NOT NULL DEFAULT '',
	slack_team_id      TEXT NOT NULL DEFAULT '',
	jira_account_id    TEXT NOT NULL DEFAULT '',
	display_name       TEXT NOT NULL DEFAULT '',
	default_project_id TEXT NOT NULL DEFAULT '',
	created_at         BIGINT NOT NULL,
	updated_at         BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_identities_github_login ON identities(github_login);
CREATE INDEX IF NOT EXISTS idx_identities_slack_user ON identities(slack_user_id);
CREATE INDEX IF NOT EXISTS idx_identities_jira_account ON identities(jira_account_id);

CREATE TABLE IF NOT EXISTS identity_emails (
	identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
	email       TEXT NOT NULL,
	PRIMARY KEY (identity_id, email)
);

CREATE INDEX IF NOT EXISTS idx_identity_emails_email ON identity_emails(email);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1 CHECK(is_active IN (0, 1)),
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_aliases (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	source     TEXT NOT NULL,
	alias      TEXT NOT NULL,
	PRIMARY KEY (project_id, source, alias)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_project_aliases_source_alias
	ON project_aliases(source, alias);

CREATE TABLE IF NOT EXISTS transform_state (
	source          TEXT PRIMARY KEY,
	last_run_at     BIGINT,
	last_success_at BIGINT,
	last_error      TEXT NOT NULL DEFAULT '',
	is_running      INTEGER NOT NULL DEFAULT 0 CHECK(is_running IN (0, 1)),
	run_started_at  BIGINT,
	last_processed  INTEGER NOT NULL DEFAULT 0,
	last_created    INTEGER NOT NULL DEFAULT 0,
	last_skipped    INTEGER NOT NULL DEFAULT 0,
	last_errors     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS raw_records (
	source      TEXT NOT NULL,
	ref         TEXT NOT NULL,
	org_id      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	received_at BIGINT NOT NULL,
	PRIMARY KEY (source, ref)
);

CREATE INDEX IF NOT EXISTS idx_raw_records_received ON raw_records(source, received_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		// Activity timestamps move to microseconds so Slack ts values
		// keep their full precision.
		version: 2,
		sql: `
UPDATE activities SET ts = ts * 1000;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
