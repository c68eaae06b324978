// Package gitgraph walks a git repository's full commit history to
// determine, for every blob ever introduced, the earliest commit(s) and
// path(s) under which it first appeared. A single commit enumerator (walk
// HEAD's tree once) only sees the files present at one point in time; a
// secret that was added and later deleted from HEAD would never be found.
// Full-history traversal is what lets the scanner find it anyway, while
// still recording provenance a human can act on ("this was introduced in
// commit abc123 at path config/secrets.yml").
package gitgraph

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/noseyparker-go/noseyparker/pkg/intern"
	"github.com/noseyparker-go/noseyparker/pkg/logging"
	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// maxAppearancesPerBlob bounds how many (commit, path) first-seen pairs are
// recorded per blob. A vendored dependency's lockfile blob might otherwise
// appear first-seen at thousands of paths across a long history; capping
// keeps memory bounded while still giving a human reviewer somewhere to
// start looking.
const maxAppearancesPerBlob = 2

// Appearance is a single (commit, path) pair recording where a blob was
// first observed in history.
type Appearance struct {
	Commit *types.CommitMetadata
	Path   string
}

// Graph is the result of walking a repository's history: for every blob
// hash introduced anywhere in the DAG, up to maxAppearancesPerBlob
// locations where it was first seen.
type Graph struct {
	FirstSeen map[types.BlobID][]Appearance
}

// treeEntries maps each blob hash reachable from a commit's tree to every
// interned path it appears at within that tree. A blob checked in at two
// paths in the same tree (a deliberate copy, or the same file vendored
// twice) keeps both paths rather than collapsing to whichever was walked
// last; Paths are interned rather than stored as plain strings since the
// same path recurs across almost every tree in a history with few changes
// per commit, and flattenTree runs single-threaded during Build, matching
// the interner's sole-writer requirement.
type treeEntries map[plumbing.Hash][]intern.Symbol

// Build walks every commit reachable from repo's HEAD in oldest-first
// topological order (ties broken by commit hex ID, for determinism across
// runs) and returns the first-seen graph. Each commit's tree is diffed
// against the union of its parents' trees; blobs present in a parent are
// not "newly seen" again in the child even if the child's tree still
// contains them unchanged. A commit or tree that fails to load (a corrupt
// or missing object, e.g. from a shallow clone or a damaged repository) is
// skipped with a warning rather than aborting the whole walk; log may be
// nil, in which case warnings are discarded.
func Build(repo *git.Repository, log *logging.Logger) (*Graph, error) {
	if log == nil {
		log = logging.Discard
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	order, err := topoOrder(repo, head.Hash(), log)
	if err != nil {
		return nil, err
	}

	g := &Graph{FirstSeen: make(map[types.BlobID][]Appearance)}
	treeCache := make(map[plumbing.Hash]treeEntries)
	paths := intern.New()

	for _, hash := range order {
		commit, err := repo.CommitObject(hash)
		if err != nil {
			log.Warn("skipping commit %s: %v", hash, err)
			continue
		}

		entries, err := flattenTree(commit, treeCache, paths)
		if err != nil {
			log.Warn("skipping commit %s: failed to read tree: %v", hash, err)
			continue
		}

		union := make(treeEntries)
		skipCommit := false
		if err := commit.Parents().ForEach(func(parent *object.Commit) error {
			parentEntries, err := flattenTree(parent, treeCache, paths)
			if err != nil {
				return err
			}
			for h, p := range parentEntries {
				union[h] = p
			}
			return nil
		}); err != nil {
			log.Warn("skipping commit %s: failed to read a parent tree: %v", hash, err)
			skipCommit = true
		}
		if skipCommit {
			continue
		}

		meta := commitMetadata(commit)

		for blobHash, pathSyms := range entries {
			if _, inParent := union[blobHash]; inParent {
				continue
			}
			id := types.BlobID(blobHash)
			existing := g.FirstSeen[id]
			for _, pathSym := range pathSyms {
				if len(existing) >= maxAppearancesPerBlob {
					break
				}
				existing = append(existing, Appearance{Commit: meta, Path: paths.Resolve(pathSym)})
			}
			if len(existing) > 0 {
				g.FirstSeen[id] = existing
			}
		}
	}

	return g, nil
}

// flattenTree returns a cache-backed map of blob hash -> every interned
// path it appears at, for every blob object reachable from commit's tree.
func flattenTree(commit *object.Commit, cache map[plumbing.Hash]treeEntries, paths *intern.StringInterner) (treeEntries, error) {
	if entries, ok := cache[commit.TreeHash]; ok {
		return entries, nil
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	entries := make(treeEntries)
	err = tree.Files().ForEach(func(f *object.File) error {
		entries[f.Hash] = append(entries[f.Hash], paths.GetOrIntern(f.Name))
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache[commit.TreeHash] = entries
	return entries, nil
}

func commitMetadata(commit *object.Commit) *types.CommitMetadata {
	return &types.CommitMetadata{
		CommitID:           commit.Hash.String(),
		AuthorName:         commit.Author.Name,
		AuthorEmail:        commit.Author.Email,
		AuthorTimestamp:    commit.Author.When,
		CommitterName:      commit.Committer.Name,
		CommitterEmail:     commit.Committer.Email,
		CommitterTimestamp: commit.Committer.When,
		Message:            commit.Message,
	}
}

// topoOrder returns every commit reachable from head in oldest-first
// topological order using Kahn's algorithm: a commit is emitted once every
// parent has already been emitted. Ties (multiple commits simultaneously
// eligible) are broken by ascending hex hash so the result is deterministic
// across repeated runs over the same repository. A commit object that fails
// to load is treated as having no parents and a warning is logged; its
// ancestry is lost but the rest of the graph still walks.
func topoOrder(repo *git.Repository, head plumbing.Hash, log *logging.Logger) ([]plumbing.Hash, error) {
	parentsOf := make(map[plumbing.Hash][]plumbing.Hash)
	childrenOf := make(map[plumbing.Hash][]plumbing.Hash)

	visited := make(map[plumbing.Hash]bool)
	queue := []plumbing.Hash{head}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if visited[h] {
			continue
		}
		visited[h] = true

		commit, err := repo.CommitObject(h)
		if err != nil {
			log.Warn("skipping commit %s: %v", h, err)
			continue
		}
		for _, p := range commit.ParentHashes {
			parentsOf[h] = append(parentsOf[h], p)
			childrenOf[p] = append(childrenOf[p], h)
			if !visited[p] {
				queue = append(queue, p)
			}
		}
	}

	inDegree := make(map[plumbing.Hash]int, len(visited))
	for h := range visited {
		inDegree[h] = len(parentsOf[h])
	}

	var ready []plumbing.Hash
	for h, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, h)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })

	var order []plumbing.Hash
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		order = append(order, h)

		var newlyReady []plumbing.Hash
		for _, child := range childrenOf[h] {
			inDegree[child]--
			if inDegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return newlyReady[i].String() < newlyReady[j].String() })

		merged := make([]plumbing.Hash, 0, len(ready)+len(newlyReady))
		merged = append(merged, ready...)
		merged = append(merged, newlyReady...)
		sort.Slice(merged, func(i, j int) bool { return merged[i].String() < merged[j].String() })
		ready = merged
	}

	if len(order) != len(visited) {
		return nil, fmt.Errorf("cycle detected in commit graph (got %d of %d commits)", len(order), len(visited))
	}

	return order, nil
}
