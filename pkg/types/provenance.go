package types

import "time"

// Provenance tracks where a blob was discovered.
type Provenance interface {
	Kind() string
	// Path returns displayable path (if applicable)
	Path() string
}

// FileProvenance for filesystem files.
type FileProvenance struct {
	FilePath string
}

// Kind returns "file".
func (f FileProvenance) Kind() string {
	return "file"
}

// Path returns the file path.
func (f FileProvenance) Path() string {
	return f.FilePath
}

// GitAppearance is a single (commit, path) pair where a blob was observed
// in history.
type GitAppearance struct {
	Commit *CommitMetadata
	Path   string
}

// GitProvenance for git repository blobs. A blob can be introduced at more
// than one path within the same commit, or be reachable from more than one
// first-seen commit; Appearances carries every such location up to the
// enumerator's cap, with Commit/BlobPath mirroring Appearances[0] so callers
// that only care about "the" location don't need to know about the slice.
type GitProvenance struct {
	RepoPath    string
	Commit      *CommitMetadata // Appearances[0].Commit; nil if not tracking commit info
	BlobPath    string          // Appearances[0].Path
	Appearances []GitAppearance
}

// NewGitProvenance builds a GitProvenance from its full set of first-seen
// appearances, keeping Commit/BlobPath in sync with the first one.
func NewGitProvenance(repoPath string, appearances []GitAppearance) GitProvenance {
	prov := GitProvenance{RepoPath: repoPath, Appearances: appearances}
	if len(appearances) > 0 {
		prov.Commit = appearances[0].Commit
		prov.BlobPath = appearances[0].Path
	}
	return prov
}

// Kind returns "git".
func (g GitProvenance) Kind() string {
	return "git"
}

// Path returns the blob's first-seen path within the repository.
func (g GitProvenance) Path() string {
	return g.BlobPath
}

// CommitMetadata holds git commit information.
type CommitMetadata struct {
	CommitID           string
	AuthorName         string
	AuthorEmail        string
	AuthorTimestamp    time.Time
	CommitterName      string
	CommitterEmail     string
	CommitterTimestamp time.Time
	Message            string
}

// ExtendedProvenance for custom sources (S3, HTTP, etc.).
type ExtendedProvenance struct {
	Payload map[string]interface{}
}

// Kind returns "extended".
func (e ExtendedProvenance) Kind() string {
	return "extended"
}

// Path returns empty string as extended provenance has no standard path.
func (e ExtendedProvenance) Path() string {
	return ""
}
