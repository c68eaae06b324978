package matcher

import (
	"regexp/syntax"
	"unicode/utf8"
)

// maxWidth bounds, in bytes, how far a pattern's match can extend from its
// start. It returns 0 when no such bound exists: an unbounded repetition
// anywhere in the pattern, or a pattern this stdlib parser rejects outright
// (rule patterns may use regexp2-only backreferences or lookaround). The
// validator window treats 0 as "search from the start of the blob" rather
// than a fixed distance back from the prelude's reported end offset.
func maxWidth(pattern string) int {
	re, err := syntax.Parse(stripExtendedMode(pattern), syntax.Perl)
	if err != nil {
		return 0
	}
	w, bounded := widthOf(re)
	if !bounded {
		return 0
	}
	return w
}

func widthOf(re *syntax.Regexp) (int, bool) {
	switch re.Op {
	case syntax.OpLiteral:
		n := 0
		for _, r := range re.Rune {
			n += utf8.RuneLen(r)
		}
		return n, true

	case syntax.OpCharClass, syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		return utf8.UTFMax, true

	case syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary, syntax.OpEmptyMatch:
		return 0, true

	case syntax.OpCapture:
		return widthOf(re.Sub[0])

	case syntax.OpStar, syntax.OpPlus:
		return 0, false

	case syntax.OpQuest:
		return widthOf(re.Sub[0])

	case syntax.OpRepeat:
		if re.Max < 0 {
			return 0, false
		}
		sub, ok := widthOf(re.Sub[0])
		if !ok {
			return 0, false
		}
		return sub * re.Max, true

	case syntax.OpConcat:
		total := 0
		for _, sub := range re.Sub {
			w, ok := widthOf(sub)
			if !ok {
				return 0, false
			}
			total += w
		}
		return total, true

	case syntax.OpAlternate:
		max := 0
		for _, sub := range re.Sub {
			w, ok := widthOf(sub)
			if !ok {
				return 0, false
			}
			if w > max {
				max = w
			}
		}
		return max, true

	default:
		return 0, false
	}
}
