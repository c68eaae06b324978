// Package scandriver wires an enumerator and a matcher into a running scan:
// it pulls blobs (possibly from several enumerator goroutines at once),
// matches each one against a pool of per-goroutine Scanners, and funnels the
// results through a single committer goroutine that batches writes into the
// store. Batching exists because a single-row transaction per blob makes
// SQLite, the default backend, the bottleneck long before Hyperscan is.
package scandriver

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noseyparker-go/noseyparker/pkg/content"
	"github.com/noseyparker-go/noseyparker/pkg/enum"
	"github.com/noseyparker-go/noseyparker/pkg/logging"
	"github.com/noseyparker-go/noseyparker/pkg/matcher"
	"github.com/noseyparker-go/noseyparker/pkg/store"
	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// Options configures a Driver's concurrency and commit batching.
type Options struct {
	// Workers bounds how many Scanners (and therefore how much concurrent
	// Hyperscan scratch space) are alive at once. Zero means one per CPU.
	Workers int

	// BatchSize is how many scanned blobs accumulate before the committer
	// flushes a transaction early, ahead of BatchInterval.
	BatchSize int

	// BatchInterval is the longest a blob can sit uncommitted once the
	// committer has anything buffered at all.
	BatchInterval time.Duration

	// Incremental, when true, skips blobs already present in the store
	// instead of rescanning and recommitting them.
	Incremental bool
}

// DefaultOptions returns sensible defaults: one worker per CPU, batches of
// 256 blobs or every second, whichever comes first.
func DefaultOptions() Options {
	return Options{
		Workers:       0,
		BatchSize:     256,
		BatchInterval: time.Second,
	}
}

// Stats summarizes one Run.
type Stats struct {
	BlobCount    int64
	SkippedCount int64
	TotalBytes   int64
	MatchCount   int64
	FindingCount int64
	Duration     time.Duration
}

// Driver runs an enumerator's blobs through a Matcher and commits the
// results to a Store in batches.
type Driver struct {
	m            *matcher.Matcher
	s            store.Store
	opts         Options
	guesser      *content.Guesser
	structuralID map[string]string // rule ID -> rule structural ID, for finding dedup
	log          *logging.Logger
	blobs        BlobWriter
}

// New builds a Driver from an already-compiled Matcher, the same rule set
// the Matcher was compiled from, and a Store. rules is needed separately
// from the Matcher because finding dedup keys on each rule's structural ID,
// which the Matcher does not expose.
func New(m *matcher.Matcher, rules []*types.Rule, s store.Store, opts Options) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = time.Second
	}
	structuralID := make(map[string]string, len(rules))
	for _, r := range rules {
		structuralID[r.ID] = r.StructuralID
	}
	return &Driver{m: m, s: s, opts: opts, guesser: content.NewGuesser(), structuralID: structuralID, log: logging.Discard}
}

// SetLogger attaches a logger the driver uses to report batch commits and
// per-blob scan errors. Defaults to a discarding logger.
func (d *Driver) SetLogger(l *logging.Logger) {
	if l != nil {
		d.log = l
	}
}

// BlobWriter persists raw blob content addressed by its BlobID. pkg/datastore's
// BlobStore satisfies this.
type BlobWriter interface {
	Store(content []byte) (types.BlobID, error)
}

// SetBlobWriter enables writing scanned blob content to bw in addition to
// committing matches and metadata to the store. Left unset, raw content is
// not retained anywhere once scanning finishes.
func (d *Driver) SetBlobWriter(bw BlobWriter) {
	d.blobs = bw
}

// scanResult is what a worker hands to the committer for one blob.
type scanResult struct {
	blobID  types.BlobID
	size    int64
	meta    *types.BlobMetadata
	prov    types.Provenance
	matches []*types.Match
}

// Run enumerates src and scans every yielded blob, committing results to
// the store in batches. It returns aggregate stats once the enumerator is
// exhausted or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, src enum.Enumerator) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	scanners := make(chan *matcher.Scanner, d.opts.Workers)
	for i := 0; i < d.opts.Workers; i++ {
		sc, err := d.m.NewScanner()
		if err != nil {
			close(scanners)
			for sc := range scanners {
				sc.Close()
			}
			return nil, fmt.Errorf("allocating scanner %d: %w", i, err)
		}
		scanners <- sc
	}
	defer func() {
		close(scanners)
		for sc := range scanners {
			sc.Close()
		}
	}()

	results := make(chan *scanResult, d.opts.Workers*2)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(results)
		return src.Enumerate(gctx, func(c []byte, blobID types.BlobID, prov types.Provenance) error {
			return d.scanOne(gctx, scanners, results, stats, c, blobID, prov)
		})
	})

	g.Go(func() error {
		return d.commit(gctx, results, stats)
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// scanOne checks for incremental skip, matches one blob, and publishes the
// result. It may run concurrently with other calls from enumerator reader
// goroutines, so it borrows a Scanner from the pool rather than sharing one.
func (d *Driver) scanOne(ctx context.Context, scanners chan *matcher.Scanner, results chan<- *scanResult, stats *Stats, c []byte, blobID types.BlobID, prov types.Provenance) error {
	atomic.AddInt64(&stats.TotalBytes, int64(len(c)))
	atomic.AddInt64(&stats.BlobCount, 1)

	if d.opts.Incremental {
		exists, err := d.s.BlobExists(blobID)
		if err != nil {
			return fmt.Errorf("checking blob %s: %w", blobID, err)
		}
		if exists {
			atomic.AddInt64(&stats.SkippedCount, 1)
			d.log.Debug("skipping already-scanned blob %s", blobID)
			return nil
		}
	}

	var sc *matcher.Scanner
	select {
	case sc = <-scanners:
	case <-ctx.Done():
		return ctx.Err()
	}
	matches, truncated, err := sc.ScanWithBlobID(c, blobID)
	scanners <- sc
	if err != nil {
		return fmt.Errorf("scanning blob %s: %w", blobID, err)
	}

	if d.blobs != nil {
		if _, err := d.blobs.Store(c); err != nil {
			return fmt.Errorf("storing blob content %s: %w", blobID, err)
		}
	}

	out := d.guesser.Guess(content.Input{Path: prov.Path(), Content: c, Full: true})
	meta := &types.BlobMetadata{
		ID:          blobID,
		NumBytes:    int64(len(c)),
		MimeEssence: out.BestGuess(),
		Charset:     content.Charset(c),
		Truncated:   truncated,
	}

	res := &scanResult{blobID: blobID, size: int64(len(c)), meta: meta, prov: prov, matches: matches}
	select {
	case results <- res:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// commit drains results into batches and writes each batch in its own
// transaction, flushing on BatchSize or BatchInterval, whichever is first.
func (d *Driver) commit(ctx context.Context, results <-chan *scanResult, stats *Stats) error {
	batch := make([]*scanResult, 0, d.opts.BatchSize)
	ticker := time.NewTicker(d.opts.BatchInterval)
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.writeBatch(batch, stats); err != nil {
			return err
		}
		d.log.Debug("committed batch of %d blobs", len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case res, ok := <-results:
			if !ok {
				return flush()
			}
			batch = append(batch, res)
			if len(batch) >= d.opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()
		}
	}
}

func (d *Driver) writeBatch(batch []*scanResult, stats *Stats) error {
	return d.s.WithTx(func(tx store.Tx) error {
		for _, res := range batch {
			if err := tx.AddBlob(res.blobID, res.size); err != nil {
				return fmt.Errorf("storing blob %s: %w", res.blobID, err)
			}
			if err := tx.AddBlobMetadata(res.meta); err != nil {
				return fmt.Errorf("storing blob metadata %s: %w", res.blobID, err)
			}
			if err := d.addProvenance(tx, res); err != nil {
				return err
			}

			// Group matches by finding within the batch so AddFinding is
			// called once per distinct finding with every one of its
			// matches attached, which is what links matches.finding_id
			// back to the finding it was deduplicated into.
			findings := make(map[string]*types.Finding)
			var findingOrder []string
			for _, m := range res.matches {
				if err := tx.AddMatch(m); err != nil {
					return fmt.Errorf("storing match: %w", err)
				}
				atomic.AddInt64(&stats.MatchCount, 1)

				findingID := types.ComputeFindingID(d.structuralID[m.RuleID], m.Groups)
				m.FindingID = findingID

				f, ok := findings[findingID]
				if !ok {
					existed, err := d.s.FindingExists(findingID)
					if err != nil {
						return fmt.Errorf("checking finding: %w", err)
					}
					f = &types.Finding{ID: findingID, RuleID: m.RuleID, Groups: m.Groups}
					findings[findingID] = f
					findingOrder = append(findingOrder, findingID)
					if !existed {
						atomic.AddInt64(&stats.FindingCount, 1)
					}
				}
				f.Matches = append(f.Matches, m)
			}
			for _, id := range findingOrder {
				if err := tx.AddFinding(findings[id]); err != nil {
					return fmt.Errorf("storing finding: %w", err)
				}
			}
		}
		return nil
	})
}

// addProvenance stores res's provenance, and for git-repo blobs every
// (commit, path) first-seen appearance as its own provenance row. Each
// appearance's commit is stored first so the provenance row's commit_hash
// foreign key is satisfied within the same transaction.
func (d *Driver) addProvenance(tx store.Tx, res *scanResult) error {
	gp, ok := res.prov.(types.GitProvenance)
	if !ok || len(gp.Appearances) == 0 {
		if err := tx.AddProvenance(res.blobID, res.prov); err != nil {
			return fmt.Errorf("storing provenance %s: %w", res.blobID, err)
		}
		return nil
	}

	for _, a := range gp.Appearances {
		if a.Commit != nil {
			if err := tx.AddCommit(a.Commit); err != nil {
				return fmt.Errorf("storing commit %s: %w", a.Commit.CommitID, err)
			}
		}
		row := types.GitProvenance{RepoPath: gp.RepoPath, Commit: a.Commit, BlobPath: a.Path}
		if err := tx.AddProvenance(res.blobID, row); err != nil {
			return fmt.Errorf("storing provenance %s: %w", res.blobID, err)
		}
	}
	return nil
}

