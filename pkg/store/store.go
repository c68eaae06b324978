// Package store persists scan results transactionally into a
// content-addressed, schema-versioned datastore. Two backends are
// supported behind a single Store interface: SQLite (the default, a single
// file, no server required) and PostgreSQL (for teams sharing one
// datastore across multiple scan hosts).
package store

import (
	"fmt"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// Store is the persistence interface a ScanDriver commits batches of scan
// results through. All mutation happens inside a Tx so a batch of matches
// discovered together lands atomically: a crash mid-batch leaves the
// datastore at the previous commit boundary, never half-written.
type Store interface {
	// WithTx runs fn inside a single transaction, committing on success
	// and rolling back if fn returns an error.
	WithTx(fn func(Tx) error) error

	BlobExists(id types.BlobID) (bool, error)
	GetBlobMetadata(id types.BlobID) (*types.BlobMetadata, bool, error)
	GetMatches(blobID types.BlobID) ([]*types.Match, error)
	GetAllMatches() ([]*types.Match, error)
	GetFindings() ([]*types.Finding, error)
	FindingExists(id string) (bool, error)
	GetStatuses(findingID string) (types.Statuses, error)

	// Summarize aggregates every rule that has produced at least one match,
	// keyed by rule ID.
	Summarize() (map[string]RuleSummary, error)

	Close() error
}

// RuleSummary is the per-rule aggregate Summarize reports.
type RuleSummary struct {
	DistinctFindings int
	TotalMatches     int
}

// Tx is the write surface available within a single committed batch.
type Tx interface {
	AddBlob(id types.BlobID, size int64) error
	AddBlobMetadata(m *types.BlobMetadata) error
	AddRule(r *types.Rule) error
	AddCommit(c *types.CommitMetadata) error
	AddProvenance(blobID types.BlobID, prov types.Provenance) error
	AddMatch(m *types.Match) error
	AddFinding(f *types.Finding) error
	SetStatus(findingID string, status types.Status) error
}

// Config selects and configures a backend.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string

	// DSN is the SQLite file path (":memory:" for in-memory) or the
	// PostgreSQL connection string, depending on Driver.
	DSN string
}

// Open creates or opens a Store per cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite driver requires a DSN (path or \":memory:\")")
		}
		return newSQLiteStore(cfg.DSN)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return newPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
