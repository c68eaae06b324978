//go:build !wasm

package matcher

import (
	"fmt"
	"time"

	"github.com/flier/gohs/hyperscan"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// RulesDatabase is the compiled form of a rule set: a single multi-pattern
// Hyperscan block database used as a fast "might this rule fire at all"
// prelude, paired with one anchored regexp2 validator per rule used to
// recover the exact match span and capture groups once the prelude reports
// a hit. Compiling once and reusing across every scanned blob is what
// makes the two-stage design pay for itself.
type RulesDatabase struct {
	rules      []*types.Rule
	hsdb       hyperscan.BlockDatabase
	validators []*validator

	// widths[i] bounds, in bytes, how far rule i's validator window needs
	// to reach back from a prelude hit's end offset; 0 means unbounded
	// (search from the blob's start instead), see maxWidth.
	widths []int
}

// NewRulesDatabase compiles rules into a RulesDatabase. It refuses an empty
// rule set: a matcher with nothing to match is almost certainly a
// configuration mistake, not an intentional no-op scan.
func NewRulesDatabase(rules []*types.Rule, ruleTimeout time.Duration) (*RulesDatabase, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("no rules to compile")
	}

	patterns := make([]*hyperscan.Pattern, len(rules))
	validators := make([]*validator, len(rules))
	widths := make([]int, len(rules))

	for i, rule := range rules {
		processed := stripExtendedMode(rule.Pattern)

		p := hyperscan.NewPattern(processed, hyperscan.DotAll|hyperscan.MultiLine)
		p.Id = i
		patterns[i] = p

		v, err := newValidator(rule.Pattern, ruleTimeout)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		validators[i] = v
		widths[i] = maxWidth(rule.Pattern)
	}

	hsdb, err := hyperscan.NewBlockDatabase(patterns...)
	if err != nil {
		return nil, fmt.Errorf("compiling hyperscan database: %w", err)
	}

	return &RulesDatabase{
		rules:      rules,
		hsdb:       hsdb,
		validators: validators,
		widths:     widths,
	}, nil
}

// Rules returns the rule set this database was compiled from, in the same
// order as their Hyperscan pattern IDs.
func (db *RulesDatabase) Rules() []*types.Rule {
	return db.rules
}

// Close releases the underlying Hyperscan database.
func (db *RulesDatabase) Close() error {
	if db.hsdb == nil {
		return nil
	}
	err := db.hsdb.Close()
	db.hsdb = nil
	return err
}
