package enum

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/noseyparker-go/noseyparker/pkg/dedup"
	"github.com/noseyparker-go/noseyparker/pkg/gitgraph"
	"github.com/noseyparker-go/noseyparker/pkg/logging"
	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// GitEnumerator enumerates every blob ever introduced across a git
// repository's full commit history, not just the blobs present at HEAD. A
// secret added and later removed is still scanned; its provenance records
// the commit(s) and path(s) where it was first seen.
type GitEnumerator struct {
	config Config
	log    *logging.Logger
}

// NewGitEnumerator creates a new git enumerator.
func NewGitEnumerator(config Config) *GitEnumerator {
	return &GitEnumerator{config: config, log: logging.Discard}
}

// SetLogger attaches a logger used to report skipped commits and blobs
// (corrupt or missing git objects) without aborting the whole enumeration.
func (e *GitEnumerator) SetLogger(l *logging.Logger) {
	if l != nil {
		e.log = l
	}
}

// Enumerate walks the full commit graph and yields each unique blob once,
// tagged with GitProvenance carrying the earliest (commit, path) location
// the blob was found at.
func (e *GitEnumerator) Enumerate(ctx context.Context, callback func(content []byte, blobID types.BlobID, prov types.Provenance) error) error {
	repo, err := git.PlainOpen(e.config.Root)
	if err != nil {
		return fmt.Errorf("failed to open git repository: %w", err)
	}

	graph, err := gitgraph.Build(repo, e.log)
	if err != nil {
		return fmt.Errorf("failed to build commit graph: %w", err)
	}

	seen := dedup.NewBlobIDSet()

	for blobID, appearances := range graph.FirstSeen {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if len(appearances) == 0 || !seen.Insert(blobID) {
			continue
		}

		blob, err := repo.BlobObject(plumbing.Hash(blobID))
		if err != nil {
			e.log.Warn("skipping blob %s: %v", blobID, err)
			continue
		}
		if e.config.MaxFileSize > 0 && blob.Size > e.config.MaxFileSize {
			continue
		}

		content, err := readBlob(blob)
		if err != nil {
			e.log.Warn("skipping blob %s: failed to read contents: %v", blobID, err)
			continue
		}

		if isBinary(content) {
			continue
		}

		gitAppearances := make([]types.GitAppearance, len(appearances))
		for i, a := range appearances {
			gitAppearances[i] = types.GitAppearance{Commit: a.Commit, Path: a.Path}
		}
		prov := types.NewGitProvenance(e.config.Root, gitAppearances)

		if err := callback(content, blobID, prov); err != nil {
			return err
		}
	}

	return nil
}

func readBlob(blob *object.Blob) ([]byte, error) {
	reader, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	content := make([]byte, 0, blob.Size)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := reader.Read(buf)
		if n > 0 {
			content = append(content, buf[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	return content, nil
}
