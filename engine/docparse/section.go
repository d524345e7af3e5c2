package docparse

import (
	"regexp"
	"strings"
)

// DefaultSection is the section label used until a heading appears, and
// the substitute when sanitization empties a label.
const DefaultSection = "Nội dung chung"

// sectionHeading matches a section heading keyword followed by a dotted
// number, e.g. "Chương 2.1", "CLO 1.2.3", "Section 4".
var sectionHeading = regexp.MustCompile(`(?i)(Chương|Bài|Phần|Mục|CLO|Chapter|Section|Part)\s*([\d.]*\d)`)

// romanHeading matches a roman-numeral heading at the start of a block.
var romanHeading = regexp.MustCompile(`^\s*([IVXLCDM]{1,5})\s*[.):]`)

// parenMarker matches a parenthesized CLO/Chương/Bài marker anywhere in a
// block, used when the block head is not itself a heading.
var parenMarker = regexp.MustCompile(`(?i)\(\s*(CLO|Chương|Bài)\s*([\d.]*\d)\s*\)`)

// majorPrefix captures the letters and first integer of a section label:
// "CLO 1.2.3" → ("CLO", "1").
var majorPrefix = regexp.MustCompile(`^\s*(\p{L}+)\s*(\d+)`)

// SectionTracker implements the sticky-section rule: the current section
// persists from the heading that introduced it until the next heading.
type SectionTracker struct {
	current string
}

// NewSectionTracker starts a tracker at the default section.
func NewSectionTracker() *SectionTracker {
	return &SectionTracker{current: DefaultSection}
}

// Current returns the active section label.
func (t *SectionTracker) Current() string { return t.current }

// Observe inspects a block's leading text for a section heading and, if
// found, updates the current section to its major portion. When the head
// is not a heading, a parenthesized CLO/Chương/Bài marker anywhere in the
// block counts too.
func (t *SectionTracker) Observe(block string) {
	head := blockHead(block)

	if loc := sectionHeading.FindStringIndex(head); loc != nil && loc[0] <= 2 {
		t.current = SanitizeSection(head[loc[0]:loc[1]])
		return
	}
	if m := romanHeading.FindStringSubmatch(head); m != nil {
		t.current = strings.ToUpper(m[1])
		return
	}
	if m := parenMarker.FindStringSubmatch(block); m != nil {
		t.current = SanitizeSection(m[1] + " " + m[2])
	}
}

// blockHead returns the first line of a block with tags stripped.
func blockHead(block string) string {
	head := block
	if idx := strings.IndexByte(head, '\n'); idx >= 0 {
		head = head[:idx]
	}
	return strings.TrimSpace(stripHTML(head))
}

// SanitizeSection normalizes a raw section label: trim and uppercase,
// collapse duplicated prefixes ("CLCLO", "CLO CLO" → "CLO"), keep only the
// major portion (letters plus the first integer) with a single separating
// space. An empty result becomes the default section.
func SanitizeSection(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	// Collapse stuttered CLO prefixes produced by sloppy documents.
	for _, dup := range []string{"CLO CLO", "CLOCLO", "CLCLO", "CCLO"} {
		for strings.Contains(s, dup) {
			s = strings.ReplaceAll(s, dup, "CLO")
		}
	}

	if m := majorPrefix.FindStringSubmatch(s); m != nil {
		return m[1] + " " + m[2]
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSection
	}
	return s
}
