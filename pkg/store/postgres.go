//go:build !wasm

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// postgresStore is the shared-team backend: a PostgreSQL database reachable
// by every host running a scan, so results from many concurrent scans land
// in one place instead of one SQLite file per host.
type postgresStore struct {
	pool *pgxpool.Pool
}

func newPostgresStore(dsn string) (*postgresStore, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		pool.Close()
		return nil, err
	}
	if count == 0 {
		if _, err := pool.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", SchemaVersion); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) WithTx(fn func(Tx) error) error {
	ctx := context.Background()
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &postgresTx{ctx: ctx, tx: pgxTx}
	if err := fn(tx); err != nil {
		pgxTx.Rollback(ctx)
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *postgresStore) BlobExists(id types.BlobID) (bool, error) {
	var count int
	err := s.pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM blobs WHERE id = $1", id.Hex()).Scan(&count)
	return count > 0, err
}

func (s *postgresStore) GetBlobMetadata(id types.BlobID) (*types.BlobMetadata, bool, error) {
	var size int64
	var mime, charset *string
	var truncated bool
	err := s.pool.QueryRow(context.Background(),
		"SELECT size, mime_essence, charset, truncated FROM blobs WHERE id = $1", id.Hex()).
		Scan(&size, &mime, &charset, &truncated)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	meta := &types.BlobMetadata{ID: id, NumBytes: size, Truncated: truncated}
	if mime != nil {
		meta.MimeEssence = *mime
	}
	if charset != nil {
		meta.Charset = *charset
	}
	return meta, true, nil
}

func (s *postgresStore) GetMatches(blobID types.BlobID) ([]*types.Match, error) {
	rows, err := s.pool.Query(context.Background(), "SELECT "+matchColumns+" FROM matches WHERE blob_id = $1", blobID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgxMatchRows(rows)
}

func (s *postgresStore) GetAllMatches() ([]*types.Match, error) {
	rows, err := s.pool.Query(context.Background(), "SELECT "+matchColumns+" FROM matches")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgxMatchRows(rows)
}

func scanPgxMatchRows(rows pgx.Rows) ([]*types.Match, error) {
	var result []*types.Match
	for rows.Next() {
		var m types.Match
		var blobIDHex string
		var findingID *string
		var startLine, startColumn, endLine, endColumn *int
		var groupsJSON, namedGroupsJSON *string
		err := rows.Scan(&blobIDHex, &m.RuleID, &findingID, &m.StructuralID, &m.Location.Offset.Start, &m.Location.Offset.End,
			&startLine, &startColumn, &endLine, &endColumn,
			&m.Snippet.Before, &m.Snippet.Matching, &m.Snippet.After, &groupsJSON, &namedGroupsJSON)
		if err != nil {
			return nil, err
		}
		m.BlobID, _ = types.ParseBlobID(blobIDHex)
		if findingID != nil {
			m.FindingID = *findingID
		}
		if startLine != nil {
			m.Location.Source.Start.Line = *startLine
		}
		if startColumn != nil {
			m.Location.Source.Start.Column = *startColumn
		}
		if endLine != nil {
			m.Location.Source.End.Line = *endLine
		}
		if endColumn != nil {
			m.Location.Source.End.Column = *endColumn
		}
		if groupsJSON != nil {
			m.Groups = deserializeGroups(*groupsJSON)
		}
		if namedGroupsJSON != nil {
			m.NamedGroups = deserializeNamedGroups(*namedGroupsJSON)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (s *postgresStore) GetFindings() ([]*types.Finding, error) {
	rows, err := s.pool.Query(context.Background(), "SELECT id, rule_id, groups_json FROM findings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*types.Finding
	for rows.Next() {
		var f types.Finding
		var groupsJSON *string
		if err := rows.Scan(&f.ID, &f.RuleID, &groupsJSON); err != nil {
			return nil, err
		}
		if groupsJSON != nil {
			f.Groups = deserializeGroups(*groupsJSON)
		}
		result = append(result, &f)
	}
	return result, rows.Err()
}

func (s *postgresStore) FindingExists(id string) (bool, error) {
	var count int
	err := s.pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM findings WHERE id = $1", id).Scan(&count)
	return count > 0, err
}

func (s *postgresStore) GetStatuses(findingID string) (types.Statuses, error) {
	rows, err := s.pool.Query(context.Background(), "SELECT status FROM statuses WHERE finding_id = $1", findingID)
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

func (s *postgresStore) Summarize() (map[string]RuleSummary, error) {
	ctx := context.Background()
	summary := make(map[string]RuleSummary)

	matchRows, err := s.pool.Query(ctx, "SELECT rule_id, COUNT(*) FROM matches GROUP BY rule_id")
	if err != nil {
		return nil, err
	}
	for matchRows.Next() {
		var ruleID string
		var total int
		if err := matchRows.Scan(&ruleID, &total); err != nil {
			matchRows.Close()
			return nil, err
		}
		rs := summary[ruleID]
		rs.TotalMatches = total
		summary[ruleID] = rs
	}
	matchRows.Close()
	if err := matchRows.Err(); err != nil {
		return nil, err
	}

	findingRows, err := s.pool.Query(ctx, "SELECT rule_id, COUNT(*) FROM findings GROUP BY rule_id")
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

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

// postgresTx implements Tx against an open pgx.Tx.
type postgresTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *postgresTx) AddBlob(id types.BlobID, size int64) error {
	_, err := t.tx.Exec(t.ctx, "INSERT INTO blobs (id, size) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING", id.Hex(), size)
	return err
}

func (t *postgresTx) AddBlobMetadata(m *types.BlobMetadata) error {
	_, err := t.tx.Exec(t.ctx, "UPDATE blobs SET mime_essence = $1, charset = $2, truncated = $3 WHERE id = $4",
		m.MimeEssence, m.Charset, m.Truncated, m.ID.Hex())
	return err
}

func (t *postgresTx) AddRule(r *types.Rule) error {
	_, err := t.tx.Exec(t.ctx,
		"INSERT INTO rules (id, name, pattern, structural_id) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
		r.ID, r.Name, r.Pattern, r.StructuralID)
	return err
}

func (t *postgresTx) AddCommit(c *types.CommitMetadata) error {
	_, err := t.tx.Exec(t.ctx, `INSERT INTO commits
		(hash, author_name, author_email, author_timestamp, committer_name, committer_email, committer_timestamp, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (hash) DO NOTHING`,
		c.CommitID, c.AuthorName, c.AuthorEmail, c.AuthorTimestamp.Format(timeLayout),
		c.CommitterName, c.CommitterEmail, c.CommitterTimestamp.Format(timeLayout), c.Message)
	return err
}

func (t *postgresTx) AddProvenance(blobID types.BlobID, prov types.Provenance) error {
	row, err := encodeProvenance(prov)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(t.ctx, `INSERT INTO provenance (blob_id, type, path, repo_path, commit_hash, archive_path)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (blob_id, type, path, repo_path, commit_hash, archive_path) DO NOTHING`,
		blobID.Hex(), row.Type, row.Path, row.RepoPath, nullableString(row.CommitHash), row.ArchivePath)
	return err
}

func (t *postgresTx) AddMatch(m *types.Match) error {
	_, err := t.tx.Exec(t.ctx, `INSERT INTO matches
		(blob_id, rule_id, structural_id, offset_start, offset_end,
		 start_line, start_column, end_line, end_column,
		 snippet_before, snippet_matching, snippet_after, groups_json, named_groups_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (structural_id) DO NOTHING`,
		m.BlobID.Hex(), m.RuleID, m.StructuralID, m.Location.Offset.Start, m.Location.Offset.End,
		nullableInt(m.Location.Source.Start.Line), nullableInt(m.Location.Source.Start.Column),
		nullableInt(m.Location.Source.End.Line), nullableInt(m.Location.Source.End.Column),
		m.Snippet.Before, m.Snippet.Matching, m.Snippet.After,
		serializeGroups(m.Groups), serializeNamedGroups(m.NamedGroups))
	return err
}

func (t *postgresTx) AddFinding(f *types.Finding) error {
	_, err := t.tx.Exec(t.ctx, "INSERT INTO findings (id, rule_id, groups_json) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
		f.ID, f.RuleID, serializeGroups(f.Groups))
	if err != nil {
		return err
	}
	for _, m := range f.Matches {
		if _, err := t.tx.Exec(t.ctx, "UPDATE matches SET finding_id = $1 WHERE structural_id = $2", f.ID, m.StructuralID); err != nil {
			return err
		}
	}
	return nil
}

func (t *postgresTx) SetStatus(findingID string, status types.Status) error {
	_, err := t.tx.Exec(t.ctx, "INSERT INTO statuses (finding_id, status) VALUES ($1, $2) ON CONFLICT (finding_id, status) DO NOTHING",
		findingID, string(status))
	return err
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
