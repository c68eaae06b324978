package store

// SchemaVersion identifies the on-disk layout. Bump it whenever CreateSchema
// changes in a way that is not purely additive, so a datastore opened with
// an older binary can be detected instead of silently misread.
const SchemaVersion = 72

// sqliteSchema and postgresSchema hold the DDL for each backend. The two
// dialects diverge only in autoincrement/blob syntax; table and column names
// are kept identical so query code can be shared between backends wherever
// possible.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY NOT NULL,
		size INTEGER NOT NULL,
		mime_essence TEXT,
		charset TEXT,
		truncated INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		pattern TEXT NOT NULL,
		structural_id TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS commits (
		hash TEXT PRIMARY KEY NOT NULL,
		author_name TEXT,
		author_email TEXT,
		author_timestamp TEXT,
		committer_name TEXT,
		committer_email TEXT,
		committer_timestamp TEXT,
		message TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS provenance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blob_id TEXT NOT NULL REFERENCES blobs(id),
		type TEXT NOT NULL,
		path TEXT,
		repo_path TEXT,
		commit_hash TEXT REFERENCES commits(hash),
		archive_path TEXT,
		UNIQUE(blob_id, type, path, repo_path, commit_hash, archive_path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provenance_blob_id ON provenance(blob_id)`,

	`CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY NOT NULL,
		rule_id TEXT NOT NULL,
		groups_json TEXT,
		comment TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blob_id TEXT NOT NULL REFERENCES blobs(id),
		rule_id TEXT NOT NULL REFERENCES rules(id),
		finding_id TEXT REFERENCES findings(id),
		structural_id TEXT NOT NULL UNIQUE,
		offset_start INTEGER NOT NULL,
		offset_end INTEGER NOT NULL,
		start_line INTEGER,
		start_column INTEGER,
		end_line INTEGER,
		end_column INTEGER,
		snippet_before BLOB,
		snippet_matching BLOB,
		snippet_after BLOB,
		groups_json TEXT,
		named_groups_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_finding_id ON matches(finding_id)`,

	`CREATE TABLE IF NOT EXISTS statuses (
		finding_id TEXT NOT NULL REFERENCES findings(id),
		status TEXT NOT NULL,
		UNIQUE(finding_id, status)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY NOT NULL,
		size BIGINT NOT NULL,
		mime_essence TEXT,
		charset TEXT,
		truncated BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		pattern TEXT NOT NULL,
		structural_id TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS commits (
		hash TEXT PRIMARY KEY NOT NULL,
		author_name TEXT,
		author_email TEXT,
		author_timestamp TEXT,
		committer_name TEXT,
		committer_email TEXT,
		committer_timestamp TEXT,
		message TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS provenance (
		id BIGSERIAL PRIMARY KEY,
		blob_id TEXT NOT NULL REFERENCES blobs(id),
		type TEXT NOT NULL,
		path TEXT,
		repo_path TEXT,
		commit_hash TEXT REFERENCES commits(hash),
		archive_path TEXT,
		UNIQUE(blob_id, type, path, repo_path, commit_hash, archive_path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provenance_blob_id ON provenance(blob_id)`,

	`CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY NOT NULL,
		rule_id TEXT NOT NULL,
		groups_json TEXT,
		comment TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS matches (
		id BIGSERIAL PRIMARY KEY,
		blob_id TEXT NOT NULL REFERENCES blobs(id),
		rule_id TEXT NOT NULL REFERENCES rules(id),
		finding_id TEXT REFERENCES findings(id),
		structural_id TEXT NOT NULL UNIQUE,
		offset_start BIGINT NOT NULL,
		offset_end BIGINT NOT NULL,
		start_line INTEGER,
		start_column INTEGER,
		end_line INTEGER,
		end_column INTEGER,
		snippet_before BYTEA,
		snippet_matching BYTEA,
		snippet_after BYTEA,
		groups_json TEXT,
		named_groups_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_finding_id ON matches(finding_id)`,

	`CREATE TABLE IF NOT EXISTS statuses (
		finding_id TEXT NOT NULL REFERENCES findings(id),
		status TEXT NOT NULL,
		UNIQUE(finding_id, status)
	)`,
}
