package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noseyparker-go/noseyparker/pkg/datastore"
	"github.com/noseyparker-go/noseyparker/pkg/enum"
	"github.com/noseyparker-go/noseyparker/pkg/logging"
	"github.com/noseyparker-go/noseyparker/pkg/matcher"
	"github.com/noseyparker-go/noseyparker/pkg/rule"
	"github.com/noseyparker-go/noseyparker/pkg/scandriver"
	"github.com/noseyparker-go/noseyparker/pkg/store"
	"github.com/noseyparker-go/noseyparker/pkg/types"
)

var (
	scanRulesPath     string
	scanRulesInclude  string
	scanRulesExclude  string
	scanDatastorePath string
	scanStoreDriver   string
	scanStoreDSN      string
	scanStoreBlobs    bool
	scanGit           bool
	scanNoGit         bool
	scanMaxFileSize   int64
	scanIncludeHidden bool
	scanWorkers       int
	scanIncremental   bool
	scanMaxScanBytes  int64
	scanMaxMatches    int
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a target for secrets",
	Long:  "Scan a file, directory, or git repository for secrets using detection rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRulesPath, "rules", "", "Path to a custom rule file (builtin rules otherwise)")
	scanCmd.Flags().StringVar(&scanRulesInclude, "rules-include", "", "Include only rules whose ID matches one of these comma-separated regexes")
	scanCmd.Flags().StringVar(&scanRulesExclude, "rules-exclude", "", "Exclude rules whose ID matches one of these comma-separated regexes")
	scanCmd.Flags().StringVar(&scanDatastorePath, "datastore", "noseyparker.ds", "Path to the datastore directory")
	scanCmd.Flags().StringVar(&scanStoreDriver, "store-driver", "", "Override the datastore's metadata backend: sqlite (default) or postgres")
	scanCmd.Flags().StringVar(&scanStoreDSN, "store-dsn", "", "Override the metadata store's DSN (required with --store-driver postgres)")
	scanCmd.Flags().BoolVar(&scanStoreBlobs, "store-blobs", false, "Retain a content-addressed copy of every scanned blob in the datastore")
	scanCmd.Flags().BoolVar(&scanGit, "git", false, "Treat target as a git repository and scan its full history")
	scanCmd.Flags().BoolVar(&scanNoGit, "no-git", false, "Disable git history scanning even if target contains a .git directory")
	scanCmd.Flags().Int64Var(&scanMaxFileSize, "max-file-size", 10*1024*1024, "Maximum file size to scan, in bytes")
	scanCmd.Flags().BoolVar(&scanIncludeHidden, "include-hidden", false, "Include hidden files and directories")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Number of concurrent scan workers (0 = one per CPU)")
	scanCmd.Flags().BoolVar(&scanIncremental, "incremental", false, "Skip blobs already present in the datastore")
	scanCmd.Flags().Int64Var(&scanMaxScanBytes, "max-scan-bytes", matcher.DefaultOptions().MaxScanBytes, "Maximum prefix of a blob's content to run through the matcher, in bytes (0 = unbounded)")
	scanCmd.Flags().IntVar(&scanMaxMatches, "max-matches-per-blob", matcher.DefaultOptions().MaxMatchesPerBlob, "Maximum raw prelude hits per blob before the scan is terminated early (0 = unbounded)")
}

func runScan(cmd *cobra.Command, args []string) error {
	target := args[0]
	log := logging.NewStderr(verboseLevel())

	if !isObjectStorageTarget(target) {
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("target does not exist: %s", target)
		}
	}

	if !scanGit && !scanNoGit {
		if info, err := os.Stat(filepath.Join(target, ".git")); err == nil && info.IsDir() {
			scanGit = true
			log.Info("detected git repository at %s, scanning history", target)
		}
	}

	rules, err := loadRules(scanRulesPath, scanRulesInclude, scanRulesExclude)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	log.Info("loaded %d rules", len(rules))

	db, err := matcher.NewRulesDatabase(rules, 5*time.Second)
	if err != nil {
		return fmt.Errorf("compiling rules: %w", err)
	}
	defer db.Close()

	matchOpts := matcher.DefaultOptions()
	matchOpts.MaxScanBytes = scanMaxScanBytes
	matchOpts.MaxMatchesPerBlob = scanMaxMatches
	m := matcher.New(db, matchOpts)

	ds, err := datastore.Open(scanDatastorePath, datastore.Options{
		StoreBlobs:  scanStoreBlobs,
		StoreDriver: scanStoreDriver,
		StoreDSN:    scanStoreDSN,
	})
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer ds.Close()

	enumerator, err := createEnumerator(target, scanGit)
	if err != nil {
		return fmt.Errorf("creating enumerator: %w", err)
	}
	if g, ok := enumerator.(*enum.GitEnumerator); ok {
		g.SetLogger(log)
	}

	driver := scandriver.New(m, rules, ds.Store, scandriver.Options{
		Workers:     scanWorkers,
		Incremental: scanIncremental,
	})
	driver.SetLogger(log)
	if ds.BlobStore != nil {
		driver.SetBlobWriter(ds.BlobStore)
	}

	ctx := context.Background()
	stats, err := driver.Run(ctx, enumerator)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	return printSummary(cmd, ds.Store, rules, stats)
}

func printSummary(cmd *cobra.Command, s store.Store, rules []*types.Rule, stats *scandriver.Stats) error {
	out := cmd.OutOrStdout()
	durationSeconds := stats.Duration.Seconds()
	if durationSeconds == 0 {
		durationSeconds = 0.001
	}
	totalMiB := float64(stats.TotalBytes) / (1024 * 1024)
	mibPerSecond := totalMiB / durationSeconds

	bold := color.New(color.Bold)
	bold.Fprintf(out, "Scanned %.2f MiB from %d blobs in %.1fs (%.2f MiB/s)\n", totalMiB, stats.BlobCount, durationSeconds, mibPerSecond)
	if stats.SkippedCount > 0 {
		fmt.Fprintf(out, "Skipped %d already-scanned blobs\n", stats.SkippedCount)
	}

	summary, err := s.Summarize()
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}

	var totalFindings, totalMatches int
	for _, rs := range summary {
		totalFindings += rs.DistinctFindings
		totalMatches += rs.TotalMatches
	}

	if totalFindings == 0 {
		color.New(color.FgGreen).Fprintln(out, "No findings.")
		return nil
	}

	color.New(color.FgYellow, color.Bold).Fprintf(out, "%d findings across %d matches\n\n", totalFindings, totalMatches)

	ruleNames := make(map[string]string, len(rules))
	for _, r := range rules {
		ruleNames[r.ID] = r.Name
	}

	type row struct {
		ruleID string
		rs     store.RuleSummary
	}
	var rows []row
	for id, rs := range summary {
		rows = append(rows, row{ruleID: id, rs: rs})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].rs.DistinctFindings > rows[j].rs.DistinctFindings })

	fmt.Fprintf(out, " %-50s %10s %10s\n", "Rule", "Findings", "Matches")
	fmt.Fprintf(out, " %s\n", "--------------------------------------------------------------------------")
	for _, r := range rows {
		fmt.Fprintf(out, " %-50s %10d %10d\n", ruleNames[r.ruleID], r.rs.DistinctFindings, r.rs.TotalMatches)
	}

	return nil
}

func verboseLevel() logging.Level {
	switch {
	case quiet:
		return logging.LevelError
	case verbose:
		return logging.LevelDebug
	default:
		return logging.LevelInfo
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func loadRules(path, include, exclude string) ([]*types.Rule, error) {
	loader := rule.NewLoader()

	var rules []*types.Rule
	var err error

	if path != "" {
		r, err := loader.LoadRuleFile(path)
		if err != nil {
			return nil, err
		}
		rules = []*types.Rule{r}
	} else {
		rules, err = loader.LoadBuiltinRules()
		if err != nil {
			return nil, err
		}
	}

	if include != "" || exclude != "" {
		config := rule.FilterConfig{
			Include: rule.ParsePatterns(include),
			Exclude: rule.ParsePatterns(exclude),
		}
		rules, err = rule.Filter(rules, config)
		if err != nil {
			return nil, fmt.Errorf("filtering rules: %w", err)
		}
	}

	return rules, nil
}

func createEnumerator(target string, useGit bool) (enum.Enumerator, error) {
	if cfg, ok := parseObjectStorageTarget(target); ok {
		cfg.MaxObjectSize = scanMaxFileSize
		return enum.NewObjectStorageEnumerator(cfg), nil
	}

	config := enum.Config{
		Root:           target,
		IncludeHidden:  scanIncludeHidden,
		MaxFileSize:    scanMaxFileSize,
		FollowSymlinks: false,
	}

	if useGit {
		return enum.NewGitEnumerator(config), nil
	}

	return enum.NewFilesystemEnumerator(config), nil
}

// isObjectStorageTarget reports whether target names an S3 or Azure Blob
// location rather than a local path.
func isObjectStorageTarget(target string) bool {
	_, ok := parseObjectStorageTarget(target)
	return ok
}

// parseObjectStorageTarget parses "s3://bucket/prefix" and
// "azblob://account.blob.core.windows.net/container/prefix" target forms.
func parseObjectStorageTarget(target string) (enum.ObjectStorageConfig, bool) {
	switch {
	case strings.HasPrefix(target, "s3://"):
		rest := strings.TrimPrefix(target, "s3://")
		bucket, prefix, _ := strings.Cut(rest, "/")
		return enum.ObjectStorageConfig{Bucket: bucket, Prefix: prefix, Region: os.Getenv("AWS_REGION")}, true

	case strings.HasPrefix(target, "azblob://"):
		rest := strings.TrimPrefix(target, "azblob://")
		host, rest, _ := strings.Cut(rest, "/")
		container, prefix, _ := strings.Cut(rest, "/")
		return enum.ObjectStorageConfig{
			AccountURL: "https://" + host,
			Container:  container,
			Prefix:     prefix,
		}, true

	default:
		return enum.ObjectStorageConfig{}, false
	}
}
