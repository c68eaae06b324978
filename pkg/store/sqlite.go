//go:build !wasm

package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// sqliteStore is the default Store backend: a single WAL-mode SQLite file,
// using the pure-Go modernc.org/sqlite driver so the scanner needs no cgo
// toolchain to build or run.
type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		db.Close()
		return nil, err
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) WithTx(fn func(Tx) error) error {
	sqlTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &sqliteTx{tx: sqlTx}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *sqliteStore) BlobExists(id types.BlobID) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM blobs WHERE id = ?", id.Hex()).Scan(&count)
	return count > 0, err
}

func (s *sqliteStore) GetBlobMetadata(id types.BlobID) (*types.BlobMetadata, bool, error) {
	var size int64
	var mime, charset sql.NullString
	var truncated bool
	err := s.db.QueryRow("SELECT size, mime_essence, charset, truncated FROM blobs WHERE id = ?", id.Hex()).
		Scan(&size, &mime, &charset, &truncated)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &types.BlobMetadata{ID: id, NumBytes: size, MimeEssence: mime.String, Charset: charset.String, Truncated: truncated}, true, nil
}

const matchColumns = `blob_id, rule_id, finding_id, structural_id, offset_start, offset_end,
	start_line, start_column, end_line, end_column,
	snippet_before, snippet_matching, snippet_after, groups_json, named_groups_json`

func (s *sqliteStore) GetMatches(blobID types.BlobID) ([]*types.Match, error) {
	rows, err := s.db.Query("SELECT "+matchColumns+" FROM matches WHERE blob_id = ?", blobID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatchRows(rows)
}

func (s *sqliteStore) GetAllMatches() ([]*types.Match, error) {
	rows, err := s.db.Query("SELECT " + matchColumns + " FROM matches")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatchRows(rows)
}

func scanMatchRows(rows *sql.Rows) ([]*types.Match, error) {
	var result []*types.Match
	for rows.Next() {
		var m types.Match
		var blobIDHex string
		var findingID sql.NullString
		var startLine, startColumn, endLine, endColumn sql.NullInt64
		var groupsJSON, namedGroupsJSON sql.NullString
		err := rows.Scan(&blobIDHex, &m.RuleID, &findingID, &m.StructuralID, &m.Location.Offset.Start, &m.Location.Offset.End,
			&startLine, &startColumn, &endLine, &endColumn,
			&m.Snippet.Before, &m.Snippet.Matching, &m.Snippet.After, &groupsJSON, &namedGroupsJSON)
		if err != nil {
			return nil, err
		}
		m.BlobID, _ = types.ParseBlobID(blobIDHex)
		m.FindingID = findingID.String
		m.Location.Source.Start.Line = int(startLine.Int64)
		m.Location.Source.Start.Column = int(startColumn.Int64)
		m.Location.Source.End.Line = int(endLine.Int64)
		m.Location.Source.End.Column = int(endColumn.Int64)
		m.Groups = deserializeGroups(groupsJSON.String)
		m.NamedGroups = deserializeNamedGroups(namedGroupsJSON.String)
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (s *sqliteStore) GetFindings() ([]*types.Finding, error) {
	rows, err := s.db.Query("SELECT id, rule_id, groups_json FROM findings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*types.Finding
	for rows.Next() {
		var f types.Finding
		var groupsJSON sql.NullString
		if err := rows.Scan(&f.ID, &f.RuleID, &groupsJSON); err != nil {
			return nil, err
		}
		f.Groups = deserializeGroups(groupsJSON.String)
		result = append(result, &f)
	}
	return result, rows.Err()
}

func (s *sqliteStore) FindingExists(id string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM findings WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

func (s *sqliteStore) GetStatuses(findingID string) (types.Statuses, error) {
	rows, err := s.db.Query("SELECT status FROM statuses WHERE finding_id = ?", findingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result types.Statuses
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		result = result.Add(types.Status(status))
	}
	return result, rows.Err()
}

func (s *sqliteStore) Summarize() (map[string]RuleSummary, error) {
	summary := make(map[string]RuleSummary)

	matchRows, err := s.db.Query("SELECT rule_id, COUNT(*) FROM matches GROUP BY rule_id")
	if err != nil {
		return nil, err
	}
	defer matchRows.Close()
	for matchRows.Next() {
		var ruleID string
		var total int
		if err := matchRows.Scan(&ruleID, &total); err != nil {
			return nil, err
		}
		rs := summary[ruleID]
		rs.TotalMatches = total
		summary[ruleID] = rs
	}
	if err := matchRows.Err(); err != nil {
		return nil, err
	}

	findingRows, err := s.db.Query("SELECT rule_id, COUNT(*) FROM findings GROUP BY rule_id")
	if err != nil {
		return nil, err
	}
	defer findingRows.Close()
	for findingRows.Next() {
		var ruleID string
		var distinct int
		if err := findingRows.Scan(&ruleID, &distinct); err != nil {
			return nil, err
		}
		rs := summary[ruleID]
		rs.DistinctFindings = distinct
		summary[ruleID] = rs
	}
	return summary, findingRows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements Tx against an open *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) AddBlob(id types.BlobID, size int64) error {
	_, err := t.tx.Exec("INSERT OR IGNORE INTO blobs (id, size) VALUES (?, ?)", id.Hex(), size)
	return err
}

func (t *sqliteTx) AddBlobMetadata(m *types.BlobMetadata) error {
	_, err := t.tx.Exec("UPDATE blobs SET mime_essence = ?, charset = ?, truncated = ? WHERE id = ?",
		m.MimeEssence, m.Charset, m.Truncated, m.ID.Hex())
	return err
}

func (t *sqliteTx) AddRule(r *types.Rule) error {
	_, err := t.tx.Exec("INSERT OR IGNORE INTO rules (id, name, pattern, structural_id) VALUES (?, ?, ?, ?)",
		r.ID, r.Name, r.Pattern, r.StructuralID)
	return err
}

func (t *sqliteTx) AddCommit(c *types.CommitMetadata) error {
	_, err := t.tx.Exec(`INSERT OR IGNORE INTO commits
		(hash, author_name, author_email, author_timestamp, committer_name, committer_email, committer_timestamp, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CommitID, c.AuthorName, c.AuthorEmail, c.AuthorTimestamp.Format(timeLayout),
		c.CommitterName, c.CommitterEmail, c.CommitterTimestamp.Format(timeLayout), c.Message)
	return err
}

func (t *sqliteTx) AddProvenance(blobID types.BlobID, prov types.Provenance) error {
	row, err := encodeProvenance(prov)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`INSERT OR IGNORE INTO provenance (blob_id, type, path, repo_path, commit_hash, archive_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		blobID.Hex(), row.Type, row.Path, row.RepoPath, nullIfEmpty(row.CommitHash), row.ArchivePath)
	return err
}

func (t *sqliteTx) AddMatch(m *types.Match) error {
	_, err := t.tx.Exec(`INSERT OR IGNORE INTO matches
		(blob_id, rule_id, structural_id, offset_start, offset_end,
		 start_line, start_column, end_line, end_column,
		 snippet_before, snippet_matching, snippet_after, groups_json, named_groups_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.BlobID.Hex(), m.RuleID, m.StructuralID, m.Location.Offset.Start, m.Location.Offset.End,
		nullIfZero(m.Location.Source.Start.Line), nullIfZero(m.Location.Source.Start.Column),
		nullIfZero(m.Location.Source.End.Line), nullIfZero(m.Location.Source.End.Column),
		m.Snippet.Before, m.Snippet.Matching, m.Snippet.After,
		serializeGroups(m.Groups), serializeNamedGroups(m.NamedGroups))
	return err
}

func (t *sqliteTx) AddFinding(f *types.Finding) error {
	_, err := t.tx.Exec("INSERT OR IGNORE INTO findings (id, rule_id, groups_json) VALUES (?, ?, ?)",
		f.ID, f.RuleID, serializeGroups(f.Groups))
	if err != nil {
		return err
	}
	for _, m := range f.Matches {
		if _, err := t.tx.Exec("UPDATE matches SET finding_id = ? WHERE structural_id = ?", f.ID, m.StructuralID); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) SetStatus(findingID string, status types.Status) error {
	_, err := t.tx.Exec("INSERT OR IGNORE INTO statuses (finding_id, status) VALUES (?, ?)", findingID, string(status))
	return err
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func nullIfZero(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
