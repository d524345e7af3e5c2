package docparse

import (
	"html"
	"regexp"
	"strings"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// minBlockLen is the shortest question block worth keeping.
const minBlockLen = 10

// questionBoundary marks the start of a question block: a "(CLO d.d)"
// marker, a "Câu n:" / "Câu n." label (tolerant of a stray space between
// "C" and "âu"), or a line-leading "n." / "n)".
var questionBoundary = regexp.MustCompile(`(?im)\(\s*CLO\s*\d+\.\d+\s*\)|c\s?âu\s*\d+\s*[:.]|^[ \t]*\d+\s*[.)]`)

// choiceMarker locates "X." choice keys preceded by start-of-block or
// whitespace. Keys are uppercased after capture.
var choiceMarker = regexp.MustCompile(`(^|[\s>])([A-Fa-f])\.`)

// markedHTML detects a visually marked choice on the DOCX HTML path: the
// style-mapped "marked" class, an emphasis tag, or a literal check mark.
var markedHTML = regexp.MustCompile(`(?i)class="marked"|<(?:b|strong|u|em|i)[\s>]|✓`)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

var spaceRun = regexp.MustCompile(`\s+`)

// stemDecorations are the leading labels stripped off a stem, applied
// repeatedly until none match.
var stemDecorations = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\(?\s*(?:Chương|Bài|Phần|Mục|CLO|Chapter|Section|Part)\s*[\d.]+\s*\)?\s*[:.]?\s*`),
	regexp.MustCompile(`(?i)^c\s?âu\s*\d+\s*[:.]?\s*`),
	regexp.MustCompile(`^\d+\s*[.)]\s*`),
}

// ExtractQuestions splits text (or DOCX-derived HTML when isHTML is true)
// into question blocks and extracts a question from each. Sections are
// sticky: a block that opens with a section heading updates the current
// section, which every following question inherits until the next heading.
func ExtractQuestions(text string, isHTML bool) []ParsedQuestion {
	tracker := NewSectionTracker()
	blocks := splitBlocks(text)

	var questions []ParsedQuestion
	for _, block := range blocks {
		tracker.Observe(block)
		q, ok := extractQuestion(block, isHTML)
		if !ok {
			continue
		}
		q.Index = len(questions) + 1
		q.Section = tracker.Current()
		questions = append(questions, q)
	}
	return questions
}

// splitBlocks segments text into question blocks at boundary markers.
// Blocks shorter than minBlockLen are discarded.
func splitBlocks(text string) []string {
	starts := questionBoundary.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return nil
	}

	var blocks []string
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		block := strings.TrimSpace(text[loc[0]:end])
		if len(block) < minBlockLen {
			continue
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// extractQuestion parses one block into stem + choices. The first " A."
// anchors the choice list; everything before it is the stem. A question
// needs a non-empty stem and at least two choices.
func extractQuestion(block string, isHTML bool) (ParsedQuestion, bool) {
	anchor := findChoicesAnchor(block)
	if anchor < 0 {
		return ParsedQuestion{}, false
	}

	stem := cleanStem(block[:anchor], isHTML)
	if stem == "" {
		return ParsedQuestion{}, false
	}

	choices := scanChoices(block[anchor:], isHTML)
	if len(choices) < 2 {
		return ParsedQuestion{}, false
	}

	q := ParsedQuestion{
		Stem:    stem,
		Choices: choices,
		Source:  domain.SourceAIGenerated,
	}

	if isHTML {
		marked := -1
		markedCount := 0
		for i, c := range choices {
			if c.IsVisuallyMarked {
				marked = i
				markedCount++
			}
		}
		// Exactly one marked choice is an author-designated answer;
		// zero or several leaves the key for the orchestrator.
		if markedCount == 1 {
			q.CorrectAnswerKey = choices[marked].Key
			q.Source = domain.SourceStyleDetected
		}
	}
	return q, true
}

// findChoicesAnchor returns the offset of the first "A." choice marker,
// or -1 when the block has no choice list.
func findChoicesAnchor(block string) int {
	for _, m := range choiceMarker.FindAllStringSubmatchIndex(block, -1) {
		key := block[m[4]:m[5]]
		if key == "A" || key == "a" {
			return m[4]
		}
	}
	return -1
}

// scanChoices walks the choice region from the "A." anchor, slicing the
// text between consecutive key markers. Only keys that continue the
// contiguous A, B, C… sequence start a new choice; anything else (a stray
// "B." inside a sentence, a non-successor letter) stays part of the
// current choice's text. Markup immediately preceding a marker (an opening
// <b> or marked span wrapping "B. …") belongs to the new choice, so the
// span boundary retreats over it.
func scanChoices(region string, isHTML bool) []ParsedChoice {
	markers := choiceMarker.FindAllStringSubmatchIndex(region, -1)

	type span struct {
		key       string
		rawStart  int // includes markup attached to the marker
		textStart int // after "X."
		end       int
	}
	var spans []span
	next := byte('A')
	for _, m := range markers {
		key := strings.ToUpper(region[m[4]:m[5]])
		if key[0] != next {
			continue
		}
		boundary := retreatOverTags(region, m[4])
		if len(spans) > 0 {
			spans[len(spans)-1].end = boundary
		}
		spans = append(spans, span{key: key, rawStart: boundary, textStart: m[5] + 1, end: len(region)})
		next++
		if next > 'F' {
			break
		}
	}

	choices := make([]ParsedChoice, 0, len(spans))
	for _, s := range spans {
		text := region[s.textStart:s.end]
		marked := false
		if isHTML {
			marked = markedHTML.MatchString(region[s.rawStart:s.end])
			text = stripHTML(text)
			text = strings.ReplaceAll(text, "✓", "")
		}
		text = strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
		if text == "" {
			continue
		}
		choices = append(choices, ParsedChoice{Key: s.key, Text: text, IsVisuallyMarked: marked})
	}
	return choices
}

// retreatOverTags moves pos left across whitespace and complete tags so
// that styling wrapped around a choice marker stays with that choice.
func retreatOverTags(s string, pos int) int {
	for {
		i := pos
		for i > 0 && (s[i-1] == ' ' || s[i-1] == '\t' || s[i-1] == '\n') {
			i--
		}
		if i == 0 || s[i-1] != '>' {
			return pos
		}
		open := strings.LastIndexByte(s[:i-1], '<')
		if open < 0 || strings.IndexByte(s[open:i-1], '>') >= 0 {
			return pos
		}
		pos = open
	}
}

// cleanStem strips section/number decorations from the head of a stem and
// collapses whitespace.
func cleanStem(raw string, isHTML bool) string {
	s := raw
	if isHTML {
		s = stripHTML(s)
	}
	s = strings.TrimSpace(s)
	for {
		before := s
		for _, re := range stemDecorations {
			s = re.ReplaceAllString(s, "")
		}
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// stripHTML removes tags and unescapes entities.
func stripHTML(s string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(s, " "))
}
