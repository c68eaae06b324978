package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/noseyparker-go/noseyparker/pkg/store"
)

// Datastore manages a directory-based datastore (NoseyParker-style).
type Datastore struct {
	Path       string       // Directory path (e.g., "noseyparker.ds")
	Store      store.Store  // SQLite store for metadata
	BlobStore  *BlobStore   // Optional blob storage (nil if StoreBlobs not set)
	CloneCache *CloneCache  // Git clone cache manager
}

// Options configures datastore behavior.
type Options struct {
	StoreBlobs bool // Enable blob storage (--store-blobs flag)

	// StoreDriver and StoreDSN override the default embedded SQLite
	// store. Set StoreDriver to "postgres" to point a scan at a shared
	// team datastore instead of a local directory's own database file.
	StoreDriver string
	StoreDSN    string
}

// BlobStore manages content-addressable blob storage.
// Stub type - implementation in blobs.go.
type BlobStore struct {
	Root string
}

// CloneCache manages cached bare git clones.
// Implementation in clones.go.
type CloneCache struct {
	Root string

	// TokenSource, when non-nil, authenticates clone/fetch of remote
	// HTTPS repos (e.g. a personal access token sourced from an
	// operator-named environment variable). Left nil, clones are
	// unauthenticated.
	TokenSource oauth2.TokenSource
}

// Open opens or creates a datastore directory.
func Open(path string, opts Options) (*Datastore, error) {
	if path == "" {
		return nil, fmt.Errorf("datastore path is required")
	}

	// Create main directory
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating datastore directory: %w", err)
	}

	// Create subdirectories
	subdirs := []string{"clones", "scratch"}
	if opts.StoreBlobs {
		subdirs = append(subdirs, "blobs")
	}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(filepath.Join(path, subdir), 0755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", subdir, err)
		}
	}

	// Write .gitignore
	gitignorePath := filepath.Join(path, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("*\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing .gitignore: %w", err)
	}

	// Open the metadata store. By default this is an embedded SQLite file
	// inside the datastore directory; StoreDriver/StoreDSN let a scan
	// point at a shared PostgreSQL datastore instead.
	storeCfg := store.Config{Driver: opts.StoreDriver, DSN: opts.StoreDSN}
	if storeCfg.Driver == "" || storeCfg.Driver == "sqlite" {
		if storeCfg.DSN == "" {
			storeCfg.DSN = filepath.Join(path, "datastore.db")
		}
	}
	s, err := store.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	ds := &Datastore{
		Path:  path,
		Store: s,
		CloneCache: &CloneCache{
			Root:        filepath.Join(path, "clones"),
			TokenSource: tokenSourceFromEnv(),
		},
	}

	if opts.StoreBlobs {
		ds.BlobStore = &BlobStore{Root: filepath.Join(path, "blobs")}
	}

	return ds, nil
}

// tokenEnvVar names the environment variable an operator sets to enable
// authenticated clones of private remotes. Absence means unauthenticated,
// best-effort access for public repos only.
const tokenEnvVar = "NP_GITHUB_TOKEN"

func tokenSourceFromEnv() oauth2.TokenSource {
	tok := os.Getenv(tokenEnvVar)
	if tok == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
}

// Close closes the datastore and releases resources.
func (d *Datastore) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
