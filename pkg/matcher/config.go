package matcher

import "time"

// Options configures matching behavior.
type Options struct {
	// Tolerant, when true, keeps scanning remaining rules after a
	// validator error or timeout instead of aborting the whole blob.
	Tolerant bool

	// RuleTimeout bounds how long a single rule's anchored validator may
	// run against one candidate window. Zero disables the timeout.
	RuleTimeout time.Duration

	// SnippetBytes is how many bytes of surrounding context to capture
	// before and after a match for Snippet.Before/Snippet.After.
	SnippetBytes int

	// MaxScanBytes caps how much of a blob is handed to the prefilter and
	// Hyperscan prelude. A blob larger than this is scanned only up to the
	// prefix; the remainder is counted as seen but not scanned. Zero means
	// unbounded.
	MaxScanBytes int64

	// MaxMatchesPerBlob caps how many raw prelude hits a single blob may
	// produce before the scan is terminated early and the blob's results
	// are marked truncated. Zero means unbounded.
	MaxMatchesPerBlob int
}

// DefaultOptions returns the default matching options.
func DefaultOptions() Options {
	return Options{
		Tolerant:          false,
		RuleTimeout:       5 * time.Second,
		SnippetBytes:      128,
		MaxScanBytes:      10 * 1024 * 1024,
		MaxMatchesPerBlob: 10_000,
	}
}
