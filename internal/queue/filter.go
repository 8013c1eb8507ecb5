package queue

import (
	"regexp"
	"strings"
)

// WordFilter rejects track names containing configured banned words,
// matched case-insensitively on word boundaries.
type WordFilter struct {
	re *regexp.Regexp
}

// NewWordFilter builds a filter from the given words. An empty list matches
// nothing.
func NewWordFilter(words []string) *WordFilter {
	if len(words) == 0 {
		return &WordFilter{}
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return &WordFilter{
		re: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Match reports whether the name contains a banned word.
func (f *WordFilter) Match(name string) bool {
	if f == nil || f.re == nil {
		return false
	}
	return f.re.MatchString(name)
}
