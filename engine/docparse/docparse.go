// Package docparse extracts ordered multiple-choice questions from uploaded
// documents (PDF, DOCX, plain text). It assigns sticky section labels from
// the nearest preceding heading and, on the DOCX path, detects visually
// marked answers (bold, underline, color, highlight, check marks).
package docparse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// ParsedChoice is one answer option extracted from a question block.
type ParsedChoice struct {
	Key              string
	Text             string
	IsVisuallyMarked bool
}

// ParsedQuestion is one extracted question with its sticky section.
type ParsedQuestion struct {
	Index            int // 1-based, document order
	Stem             string
	Choices          []ParsedChoice
	CorrectAnswerKey string // empty unless exactly one choice was visually marked
	Section          string
	Source           domain.AnswerSource
}

// ParsedDocument is the parser output for one document.
type ParsedDocument struct {
	Title     string
	Questions []ParsedQuestion
}

// Parse reads the document at path and extracts its questions. A document
// that cannot be read, has an unsupported format, or yields zero questions
// is a parser error (fatal to the processing job).
func Parse(path string, typ domain.DocumentType) (ParsedDocument, error) {
	var doc ParsedDocument
	var err error

	switch typ {
	case domain.DocPDF:
		doc, err = parsePDF(path)
	case domain.DocDOCX:
		doc, err = parseDOCX(path)
	case domain.DocText:
		doc, err = parseText(path)
	default:
		return ParsedDocument{}, domain.ParserError(string(typ), domain.ErrUnsupportedFormat)
	}
	if err != nil {
		return ParsedDocument{}, err
	}

	if doc.Title == "" {
		doc.Title = titleFromPath(path)
	}
	if len(doc.Questions) == 0 {
		return ParsedDocument{}, domain.ParserError(path, domain.ErrNoQuestions)
	}
	return doc, nil
}

// parseText reads a UTF-8 text-like file (txt, rtf, odt-as-text) and
// normalizes line endings before extraction.
func parseText(path string) (ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParsedDocument{}, domain.ParserError(path, fmt.Errorf("read text: %w", err))
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	questions := ExtractQuestions(text, false)
	return ParsedDocument{Questions: questions}, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
