package domain

import (
	"fmt"
	"strings"
)

// ValidateQuestion checks the structural invariants of a parsed question:
// non-empty stem, 2-6 choices keyed contiguously from A, and a correct
// answer key that (when set) matches one of the choices.
func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Stem) == "" {
		return NewValidationError("stem", q.Stem, ErrEmptyStem)
	}
	if len(q.Choices) < 2 {
		return NewValidationError("choices", fmt.Sprintf("%d", len(q.Choices)), ErrTooFewChoices)
	}
	if len(q.Choices) > len(ChoiceKeys) {
		return NewValidationError("choices", fmt.Sprintf("%d", len(q.Choices)), ErrTooManyChoices)
	}
	for i, c := range q.Choices {
		want := string(ChoiceKeys[i])
		if c.Key != want {
			return NewValidationError("choices", c.Key, ErrChoiceKeyOrder)
		}
	}
	if q.CorrectAnswerKey != "" {
		found := false
		for _, c := range q.Choices {
			if c.Key == q.CorrectAnswerKey {
				found = true
				break
			}
		}
		if !found {
			return NewValidationError("correctAnswerKey", q.CorrectAnswerKey, ErrAnswerKeyUnknown)
		}
	}
	return nil
}

// ValidateQuiz checks the cross-field invariants of a quiz record.
func ValidateQuiz(q Quiz) error {
	if q.ProcessedQuestions > q.TotalQuestions {
		return NewValidationError("processedQuestions",
			fmt.Sprintf("%d>%d", q.ProcessedQuestions, q.TotalQuestions), ErrCountMismatch)
	}
	if q.Status == StatusCompleted && q.ProcessedQuestions != q.TotalQuestions {
		return NewValidationError("processedQuestions",
			fmt.Sprintf("%d!=%d", q.ProcessedQuestions, q.TotalQuestions),
			fmt.Errorf("completed quiz not fully processed"))
	}
	known := make(map[string]bool, len(q.Sections))
	for _, s := range q.Sections {
		known[s] = true
	}
	sum := 0
	for _, sc := range q.SectionCounts {
		if !known[sc.Name] {
			return NewValidationError("sectionCounts", sc.Name,
				fmt.Errorf("section count for undiscovered section"))
		}
		sum += sc.Count
	}
	if len(q.SectionCounts) > 0 && sum != q.TotalQuestions {
		return NewValidationError("sectionCounts", fmt.Sprintf("%d", sum),
			fmt.Errorf("section counts do not sum to totalQuestions"))
	}
	return nil
}
