// Package cache is the semantic answer cache: answered (stem, choices)
// pairs indexed by MD5 of their normalized content. The cache is strictly
// best-effort; a failing backend degrades every lookup to a miss and every
// write to a logged warning, never to a job failure.
package cache

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/hashutil"
)

// stemPrefix matches the numbering labels stripped off a stem before
// hashing: "câu 3.", "12.", "b)".
var stemPrefix = regexp.MustCompile(`^\s*(?:câu\s*\d+|\d+|[a-z])\s*[.)]\s*`)

// NormalizeStem canonicalizes a question stem for cache keying: lowercase,
// strip numbering prefixes, then keep only Unicode letters and digits. The
// result is invariant under whitespace, case, and punctuation changes, and
// normalizing twice is a no-op.
func NormalizeStem(stem string) string {
	s := strings.ToLower(stem)
	for {
		t := stemPrefix.ReplaceAllString(s, "")
		if t == s {
			break
		}
		s = t
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeChoices canonicalizes a choice list: sort by key, lowercase each
// text and drop its whitespace, join with "|". Reordering the input by key
// yields the same output.
func NormalizeChoices(choices []domain.Choice) string {
	sorted := make([]domain.Choice, len(choices))
	copy(sorted, choices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = strings.Map(dropSpace, strings.ToLower(c.Text))
	}
	return strings.Join(parts, "|")
}

func dropSpace(r rune) rune {
	if unicode.IsSpace(r) {
		return -1
	}
	return r
}

// Keys returns the (stemHash, choicesHash) cache key for a question.
func Keys(stem string, choices []domain.Choice) (stemHash, choicesHash string) {
	return hashutil.HashString(NormalizeStem(stem)), hashutil.HashString(NormalizeChoices(choices))
}
