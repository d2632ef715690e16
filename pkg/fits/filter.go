package fits

import (
	"regexp"
	"regexp/syntax"
	"strings"
)

// SyntaxFlag selects how a Filter pattern is interpreted.
type SyntaxFlag uint

const (
	// SyntaxExtended interprets the pattern as a POSIX extended expression.
	// It is the default when neither SyntaxExtended nor SyntaxBasic is set.
	SyntaxExtended SyntaxFlag = 1 << iota
	// SyntaxBasic interprets the pattern as a POSIX basic expression.
	SyntaxBasic
	// SyntaxIgnoreCase matches without regard to case.
	SyntaxIgnoreCase
	// SyntaxNewline stops '.' at newlines and lets '^' and '$' match at
	// line boundaries.
	SyntaxNewline
)

// Filter decides whether a header record passes. It is immutable and may be
// shared by any number of merges.
type Filter struct {
	pattern string
	flags   SyntaxFlag
	negated bool
	re      *regexp.Regexp
}

// NewFilter compiles pattern. A negated filter passes the records that do not
// match.
func NewFilter(pattern string, negated bool, flags SyntaxFlag) (*Filter, error) {
	const op = "fits.NewFilter"

	if flags&SyntaxBasic != 0 && flags&SyntaxExtended != 0 {
		return nil, NewError(IllegalInput, op, "basic and extended syntax are mutually exclusive")
	}

	expr := pattern
	if flags&SyntaxBasic != 0 {
		expr = basicToExtended(pattern)
	}
	if _, err := syntax.Parse(expr, syntax.POSIX); err != nil {
		return nil, WrapError(IllegalInput, op, err, "invalid pattern %q", pattern)
	}

	mode := "s"
	if flags&SyntaxNewline != 0 {
		mode = "m"
	}
	if flags&SyntaxIgnoreCase != 0 {
		mode += "i"
	}
	re, err := regexp.Compile("(?" + mode + ")" + expr)
	if err != nil {
		return nil, WrapError(IllegalInput, op, err, "invalid pattern %q", pattern)
	}
	re.Longest()

	return &Filter{
		pattern: pattern,
		flags:   flags,
		negated: negated,
		re:      re,
	}, nil
}

// MustFilter is like NewFilter but panics if the pattern does not compile.
func MustFilter(pattern string, negated bool, flags SyntaxFlag) *Filter {
	f, err := NewFilter(pattern, negated, flags)
	if err != nil {
		panic(err)
	}
	return f
}

// Apply reports whether text passes the filter. A nil filter passes
// everything.
func (f *Filter) Apply(text string) bool {
	if f == nil {
		return true
	}
	return f.re.MatchString(text) != f.negated
}

// Negate returns a filter with the same pattern and the opposite sense.
func (f *Filter) Negate() *Filter {
	if f == nil {
		return nil
	}
	g := *f
	g.negated = !f.negated
	return &g
}

// Pattern returns the source pattern.
func (f *Filter) Pattern() string { return f.pattern }

// Negated reports whether the filter passes non-matching records.
func (f *Filter) Negated() bool { return f.negated }

// basicToExtended rewrites a POSIX basic expression in extended syntax:
// \( \) \{ \} \| \+ \? become operators, their bare forms become literals,
// and a leading '*' is literal.
func basicToExtended(bre string) string {
	var b strings.Builder
	b.Grow(len(bre) + 8)

	atStart := true
	for i := 0; i < len(bre); i++ {
		c := bre[i]
		switch {
		case c == '\\' && i+1 < len(bre):
			i++
			next := bre[i]
			if strings.IndexByte("(){}|+?", next) >= 0 {
				b.WriteByte(next)
				atStart = next == '(' || next == '|'
				continue
			}
			b.WriteByte('\\')
			b.WriteByte(next)
		case c == '[':
			end := bracketEnd(bre, i)
			b.WriteString(bre[i:end])
			i = end - 1
		case strings.IndexByte("(){}|+?", c) >= 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '*' && atStart:
			b.WriteString(`\*`)
		case c == '^' && atStart:
			b.WriteByte(c)
			continue
		default:
			b.WriteByte(c)
		}
		atStart = false
	}
	return b.String()
}

// bracketEnd returns the index just past the bracket expression starting at
// i, or len(s) if it is unterminated.
func bracketEnd(s string, i int) int {
	j := i + 1
	if j < len(s) && s[j] == '^' {
		j++
	}
	if j < len(s) && s[j] == ']' {
		j++
	}
	for ; j < len(s); j++ {
		if s[j] == '[' && j+1 < len(s) && (s[j+1] == ':' || s[j+1] == '.' || s[j+1] == '=') {
			if k := strings.Index(s[j+2:], string(s[j+1])+"]"); k >= 0 {
				j += k + 3
				continue
			}
		}
		if s[j] == ']' {
			return j + 1
		}
	}
	return len(s)
}
