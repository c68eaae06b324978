package matcher

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
)

// stripExtendedMode removes the inline (?x) extended-mode flag along with
// the whitespace and '#' comments it licenses, so the resulting pattern is
// accepted by engines (Hyperscan, regexp2) that don't understand (?x)
// themselves. Rule authors are still allowed to write readable, commented
// patterns in rule YAML.
var extendedModeRe = regexp.MustCompile(`\(\?x\)`)

func stripExtendedMode(pattern string) string {
	if !extendedModeRe.MatchString(pattern) {
		return pattern
	}
	out := make([]byte, 0, len(pattern))
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			out = append(out, c, pattern[i+1])
			i++
			continue
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		}
		if inClass {
			out = append(out, c)
			continue
		}
		if c == '#' {
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
			continue
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		out = append(out, c)
	}
	return extendedModeRe.ReplaceAllString(string(out), "")
}

// validator wraps a compiled regexp2.Regexp used to recover the precise
// match span and capture groups for one rule, within a bounded window
// around a hit reported by the prelude. regexp2 (rather than stdlib
// regexp/RE2) is used here because rule patterns are free to use
// lookaround and backreferences, which RE2's guaranteed-linear-time engine
// cannot express but which several real-world credential formats rely on
// (e.g. a trailing checksum referencing an earlier capture group).
type validator struct {
	re *regexp2.Regexp
}

func newValidator(pattern string, timeout time.Duration) (*validator, error) {
	processed := stripExtendedMode(pattern)
	re, err := regexp2.Compile(processed, regexp2.RE2|regexp2.Singleline)
	if err != nil {
		// Fall back without the RE2 compatibility restriction: some rule
		// patterns intentionally use backreferences/lookaround that the
		// RE2 subset option rejects outright.
		re, err = regexp2.Compile(processed, regexp2.Singleline)
		if err != nil {
			return nil, fmt.Errorf("compiling validator regex: %w", err)
		}
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return &validator{re: re}, nil
}

// validatorMatch is the outcome of running a validator against a window:
// the exact byte offsets of the match within the window, and the captured
// groups (index 0 unused, named groups collected separately).
type validatorMatch struct {
	start, end int
	groups     [][]byte
	named      map[string][]byte
}

// findNear runs the validator against window (a byte slice local to some
// larger content buffer) and returns the match whose end offset is closest
// to the prelude's reported end, which is the match the prelude actually
// found. Hyperscan reports only a pattern ID and an end offset in block
// mode; recovering the true start and any capture groups is exactly what
// this second stage exists to do.
func (v *validator) findNear(window []byte, preludeEnd int) (*validatorMatch, bool, error) {
	runes := byteRunes(window)
	m, err := v.re.FindRunesMatch(runes)
	if err != nil {
		return nil, false, err
	}

	var best *validatorMatch
	bestDist := -1
	for m != nil {
		start := m.Index
		end := m.Index + m.Length
		dist := abs(end - preludeEnd)
		if best == nil || dist < bestDist {
			best = matchToValidatorMatch(m, window)
			bestDist = dist
		}
		m, err = v.re.FindNextMatch(m)
		if err != nil {
			return nil, false, err
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

func matchToValidatorMatch(m *regexp2.Match, window []byte) *validatorMatch {
	groups := m.Groups()
	var positional [][]byte
	named := make(map[string][]byte)
	for i, g := range groups {
		if i == 0 || len(g.Captures) == 0 {
			continue
		}
		val := []byte(g.Captures[len(g.Captures)-1].String())
		if isNumericGroupName(g.Name) {
			positional = append(positional, val)
		} else {
			named[g.Name] = val
		}
	}
	return &validatorMatch{
		start:  m.Index,
		end:    m.Index + m.Length,
		groups: positional,
		named:  named,
	}
}

func isNumericGroupName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
