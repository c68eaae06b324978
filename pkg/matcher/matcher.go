//go:build !wasm

package matcher

import (
	"errors"
	"fmt"

	"github.com/flier/gohs/hyperscan"

	"github.com/noseyparker-go/noseyparker/pkg/prefilter"
	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// errMatchCapExceeded is returned from the Hyperscan match callback once a
// blob's MaxMatchesPerBlob is hit. Hyperscan's C API terminates a scan as
// soon as its callback returns non-zero, and gohs surfaces that return
// value as the error from Scan, so this is how the prelude requests early
// termination rather than running to the end of an adversarial blob.
var errMatchCapExceeded = errors.New("matcher: per-blob match cap exceeded")

// Matcher holds a compiled RulesDatabase plus the literal-keyword prefilter
// built from the same rules. It is immutable after construction and safe
// to share across goroutines; per-goroutine scanning state lives in Scanner.
type Matcher struct {
	db      *RulesDatabase
	prefilt *prefilter.Prefilter
	opts    Options
	stats   Stats
}

// New builds a Matcher from an already-compiled RulesDatabase.
func New(db *RulesDatabase, opts Options) *Matcher {
	return &Matcher{
		db:      db,
		prefilt: prefilter.New(db.Rules()),
		opts:    opts,
	}
}

// Stats returns a snapshot of aggregate counters accumulated across every
// Scanner created from this Matcher.
func (m *Matcher) Stats() Snapshot {
	return m.stats.Snapshot()
}

// Scanner is the per-goroutine handle used to scan blobs. Hyperscan scratch
// space is not safe for concurrent use, so every worker in a concurrent
// scan driver must allocate its own Scanner from the shared Matcher.
type Scanner struct {
	m       *Matcher
	scratch *hyperscan.Scratch
}

// NewScanner allocates a fresh Hyperscan scratch space bound to m's
// compiled database.
func (m *Matcher) NewScanner() (*Scanner, error) {
	scratch, err := hyperscan.NewScratch(m.db.hsdb)
	if err != nil {
		return nil, fmt.Errorf("allocating hyperscan scratch: %w", err)
	}
	return &Scanner{m: m, scratch: scratch}, nil
}

// Close releases the scanner's Hyperscan scratch space. It does not affect
// the shared Matcher or its RulesDatabase.
func (s *Scanner) Close() error {
	if s.scratch == nil {
		return nil
	}
	err := s.scratch.Free()
	s.scratch = nil
	return err
}

// preludeHit is a raw signal from the Hyperscan block scan: rule index and
// the byte offset where the match ended. Block-mode Hyperscan scanning
// without SOM tracking does not report a reliable start offset, which is
// exactly why stage two (the anchored validator) exists.
type preludeHit struct {
	ruleIdx int
	end     int
}

// Scan runs content through the prefilter, the Hyperscan prelude, and each
// surviving rule's anchored validator, returning deduplicated matches. The
// bool result reports whether the blob's scan was truncated, either
// because it exceeded MaxScanBytes or because its match cap was hit.
func (s *Scanner) Scan(content []byte) ([]*types.Match, bool, error) {
	blobID := types.ComputeBlobID(content)
	return s.ScanWithBlobID(content, blobID)
}

// ScanWithBlobID is Scan for a caller that has already computed the blob's
// content hash, avoiding a redundant SHA-1 pass over large blobs.
func (s *Scanner) ScanWithBlobID(content []byte, blobID types.BlobID) ([]*types.Match, bool, error) {
	s.m.stats.RecordSeen(int64(len(content)))

	scanContent := content
	truncated := false
	if s.m.opts.MaxScanBytes > 0 && int64(len(content)) > s.m.opts.MaxScanBytes {
		scanContent = content[:s.m.opts.MaxScanBytes]
		truncated = true
	}

	candidates := s.m.prefilt.Filter(scanContent)
	if len(candidates) == 0 {
		if truncated {
			s.m.stats.RecordTruncated()
		}
		return nil, truncated, nil
	}
	allowed := make(map[int]bool, len(candidates))
	for _, r := range candidates {
		allowed[ruleIndex(s.m.db.rules, r)] = true
	}

	var hits []preludeHit
	onMatch := func(id uint, from, to uint64, flags uint, context interface{}) error {
		idx := int(id)
		if idx >= len(s.m.db.rules) || !allowed[idx] {
			return nil
		}
		hits = append(hits, preludeHit{ruleIdx: idx, end: int(to)})
		if s.m.opts.MaxMatchesPerBlob > 0 && len(hits) >= s.m.opts.MaxMatchesPerBlob {
			return errMatchCapExceeded
		}
		return nil
	}

	if err := s.m.db.hsdb.Scan(scanContent, s.scratch, onMatch, nil); err != nil {
		if errors.Is(err, errMatchCapExceeded) {
			truncated = true
		} else {
			return nil, false, fmt.Errorf("hyperscan scan: %w", err)
		}
	}

	dedup := newDeduplicator()
	var matches []*types.Match

	for _, hit := range hits {
		rule := s.m.db.rules[hit.ruleIdx]
		v := s.m.db.validators[hit.ruleIdx]
		w := s.m.db.widths[hit.ruleIdx]

		winStart := 0
		if w > 0 {
			winStart = hit.end - w
			if winStart < 0 {
				winStart = 0
			}
		}
		winEnd := hit.end
		if winEnd > len(scanContent) {
			winEnd = len(scanContent)
		}
		window := scanContent[winStart:winEnd]
		localEnd := hit.end - winStart

		vm, ok, err := v.findNear(window, localEnd)
		if err != nil {
			if s.m.opts.Tolerant {
				continue
			}
			return nil, false, fmt.Errorf("rule %s validator: %w", rule.ID, err)
		}
		if !ok {
			continue
		}

		start := winStart + vm.start
		end := winStart + vm.end

		before, after := ExtractSnippet(scanContent, start, end, s.m.opts.SnippetBytes)

		match := &types.Match{
			BlobID:   blobID,
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Location: types.Location{
				Offset: types.OffsetSpan{Start: int64(start), End: int64(end)},
			},
			Groups:      vm.groups,
			NamedGroups: vm.named,
			Snippet: types.Snippet{
				Before:   before,
				Matching: append([]byte{}, scanContent[start:end]...),
				After:    after,
			},
		}
		match.StructuralID = match.ComputeStructuralID(rule.StructuralID)

		if dedup.isDuplicate(match) {
			continue
		}
		dedup.add(match)
		matches = append(matches, match)
	}

	s.m.stats.RecordScanned(int64(len(scanContent)), len(matches))
	if truncated {
		s.m.stats.RecordTruncated()
	}
	return matches, truncated, nil
}

func ruleIndex(rules []*types.Rule, target *types.Rule) int {
	for i, r := range rules {
		if r == target {
			return i
		}
	}
	return -1
}
