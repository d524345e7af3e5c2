package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxPromptLen caps the total prompt size sent to any provider.
const MaxPromptLen = 50_000

// injectionPatterns are instruction-override attempts replaced with
// "[FILTERED]" before a stem or choice reaches a provider.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|above|prior)`),
	regexp.MustCompile(`(?i)forget (everything|all|instructions)`),
	regexp.MustCompile(`(?i)disregard (all|previous)`),
	regexp.MustCompile(`(?i)new instructions:`),
	regexp.MustCompile(`(?i)system:`),
}

// SanitizeText neutralizes prompt-injection phrases in document text.
func SanitizeText(s string) string {
	for _, re := range injectionPatterns {
		s = re.ReplaceAllString(s, "[FILTERED]")
	}
	return s
}

// SystemInstruction is the shared answer-format contract sent to every
// provider.
const SystemInstruction = `You are grading multiple-choice questions. For every numbered question, pick the single correct choice letter. Return ONLY a JSON object mapping the question number to the letter, e.g. {"1":"A","2":"C"}. No prose, no markdown.`

// BuildPrompt renders the questions as numbered blocks:
//
//	[3] (CLO 2) What is ...?
//	  A. first
//	  B. second
//
// Text is injection-filtered and the total length is capped at maxLen
// (MaxPromptLen when maxLen <= 0); questions that would overflow the cap
// are dropped from the prompt and simply go unanswered.
func BuildPrompt(questions []Question, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxPromptLen
	}

	var b strings.Builder
	for _, q := range questions {
		var qb strings.Builder
		qb.WriteString("[")
		qb.WriteString(fmt.Sprint(q.Index))
		qb.WriteString("] ")
		if q.Section != "" {
			qb.WriteString("(" + SanitizeText(q.Section) + ") ")
		}
		qb.WriteString(SanitizeText(q.Stem))
		qb.WriteString("\n")
		for _, c := range q.Choices {
			qb.WriteString("  " + c.Key + ". " + SanitizeText(c.Text) + "\n")
		}
		if b.Len()+qb.Len() > maxLen {
			break
		}
		b.WriteString(qb.String())
	}
	return b.String()
}
