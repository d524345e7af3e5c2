package docparse

import (
	"fmt"
	"strings"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/ledongthuc/pdf"
)

// parsePDF extracts a flat text stream page by page, joining text items
// with spaces and pages with newlines, then extracts questions.
func parsePDF(path string) (ParsedDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return ParsedDocument{}, domain.ParserError(path, fmt.Errorf("open pdf: %w", err))
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single unreadable page degrades to a gap, not a failure.
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	if len(pages) == 0 {
		return ParsedDocument{}, domain.ParserError(path, fmt.Errorf("pdf has no extractable text"))
	}

	questions := ExtractQuestions(strings.Join(pages, "\n"), false)
	return ParsedDocument{Questions: questions}, nil
}
