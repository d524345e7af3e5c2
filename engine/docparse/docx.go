package docparse

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// parseDOCX converts the document to HTML with a style map that tags runs
// carrying color, highlight, underline, or strikethrough as "marked", then
// extracts questions from the HTML. If the HTML path yields zero questions
// the raw text is tried before giving up.
func parseDOCX(path string) (ParsedDocument, error) {
	html, text, err := docxToHTML(path)
	if err != nil {
		return ParsedDocument{}, domain.ParserError(path, err)
	}

	questions := ExtractQuestions(html, true)
	if len(questions) == 0 {
		questions = ExtractQuestions(text, false)
	}
	return ParsedDocument{Questions: questions}, nil
}

// docxToHTML walks word/document.xml inside the .docx zip and renders each
// paragraph as one line of minimal HTML. Run properties map to tags:
// bold → <b>, italic → <i>, underline → <u>; color, highlight, shading and
// strikethrough map to <span class="marked">. It returns both the HTML and
// a plain-text rendition for the fallback path.
func docxToHTML(path string) (html string, text string, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", "", fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", "", fmt.Errorf("docx missing word/document.xml")
	}
	defer docXML.Close()

	return renderDocumentXML(docXML)
}

// runStyle accumulates the rPr properties of the current run.
type runStyle struct {
	bold      bool
	italic    bool
	underline bool
	marked    bool // color / highlight / shading / strikethrough
}

func (s runStyle) open() string {
	var b strings.Builder
	if s.marked {
		b.WriteString(`<span class="marked">`)
	}
	if s.bold {
		b.WriteString("<b>")
	}
	if s.italic {
		b.WriteString("<i>")
	}
	if s.underline {
		b.WriteString("<u>")
	}
	return b.String()
}

func (s runStyle) close() string {
	var b strings.Builder
	if s.underline {
		b.WriteString("</u>")
	}
	if s.italic {
		b.WriteString("</i>")
	}
	if s.bold {
		b.WriteString("</b>")
	}
	if s.marked {
		b.WriteString("</span>")
	}
	return b.String()
}

func renderDocumentXML(r io.Reader) (string, string, error) {
	dec := xml.NewDecoder(r)

	var htmlOut, textOut strings.Builder
	var style runStyle
	var inRPr bool
	var runText strings.Builder

	flushRun := func() {
		if runText.Len() == 0 {
			return
		}
		t := runText.String()
		htmlOut.WriteString(style.open())
		htmlOut.WriteString(escapeHTML(t))
		htmlOut.WriteString(style.close())
		textOut.WriteString(t)
		runText.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("decode document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "r":
				style = runStyle{}
			case "rPr":
				inRPr = true
			case "b":
				if inRPr && !valIsOff(el) {
					style.bold = true
				}
			case "i":
				if inRPr && !valIsOff(el) {
					style.italic = true
				}
			case "u":
				if inRPr && !valIs(el, "none") {
					style.underline = true
					style.marked = true
				}
			case "strike", "dstrike":
				if inRPr && !valIsOff(el) {
					style.marked = true
				}
			case "color":
				// Automatic/black text is the document default, not a mark.
				if inRPr {
					if v := attrVal(el); v != "" && !strings.EqualFold(v, "auto") && v != "000000" {
						style.marked = true
					}
				}
			case "highlight":
				if inRPr && !valIs(el, "none") {
					style.marked = true
				}
			case "shd":
				if inRPr {
					if f := attrNamed(el, "fill"); f != "" && !strings.EqualFold(f, "auto") && !strings.EqualFold(f, "FFFFFF") {
						style.marked = true
					}
				}
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &el); err != nil {
					return "", "", fmt.Errorf("decode w:t: %w", err)
				}
				runText.WriteString(s)
			case "tab":
				runText.WriteString("\t")
			case "br":
				runText.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "rPr":
				inRPr = false
			case "r":
				flushRun()
			case "p":
				flushRun()
				htmlOut.WriteString("\n")
				textOut.WriteString("\n")
			}
		}
	}
	flushRun()
	return htmlOut.String(), textOut.String(), nil
}

// attrVal returns the w:val attribute of an element.
func attrVal(el xml.StartElement) string {
	return attrNamed(el, "val")
}

func attrNamed(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func valIs(el xml.StartElement, v string) bool {
	return strings.EqualFold(attrVal(el), v)
}

// valIsOff reports a toggle property explicitly disabled (w:val="0"/"false").
func valIsOff(el xml.StartElement) bool {
	v := attrVal(el)
	return v == "0" || strings.EqualFold(v, "false")
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
