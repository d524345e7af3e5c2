// Package domain defines the core quiz types, state machine, and validation
// for the document-to-quiz pipeline. It acts as the validation gate at
// pipeline entry points.
package domain

import "time"

// DocumentType is the inferred format of an uploaded document.
type DocumentType string

const (
	DocPDF  DocumentType = "pdf"
	DocDOCX DocumentType = "docx"
	DocText DocumentType = "text"
)

// QuizStatus is the lifecycle state of a quiz.
type QuizStatus string

const (
	StatusPending    QuizStatus = "Pending"
	StatusProcessing QuizStatus = "Processing"
	StatusCompleted  QuizStatus = "Completed"
	// StatusNeedsReview is declared for future policy and never emitted
	// by the pipeline today.
	StatusNeedsReview QuizStatus = "Needs_Review"
	StatusWaitingAI   QuizStatus = "Waiting_AI"
	StatusFailed      QuizStatus = "Failed"
)

// AnswerSource records how a question's correct answer was determined.
type AnswerSource string

const (
	// SourceStyleDetected means the author marked the answer visually
	// (bold, underline, color, highlight, check mark) in the document.
	SourceStyleDetected AnswerSource = "StyleDetected"
	// SourceAIGenerated covers provider answers and the literal "A"
	// fallback when every provider failed.
	SourceAIGenerated AnswerSource = "AI_Generated"
	SourceManual      AnswerSource = "Manual"
)

// ChoiceKeys is the ordered alphabet of permitted choice keys.
const ChoiceKeys = "ABCDEF"

// Choice is a single answer option of a question.
type Choice struct {
	Key              string `json:"key"`
	Text             string `json:"text"`
	IsVisuallyMarked bool   `json:"isVisuallyMarked,omitempty"`
}

// Question is a multiple-choice question with 2-6 choices keyed A..F.
type Question struct {
	Stem             string       `json:"stem"`
	Choices          []Choice     `json:"choices"`
	CorrectAnswerKey string       `json:"correctAnswerKey"`
	Explanation      string       `json:"explanation,omitempty"`
	Source           AnswerSource `json:"source"`
	Section          string       `json:"section"`
}

// SectionCount is one (section, question count) pair. Counts are a pair
// list rather than a map because discovered section names may contain
// dots, which collide with dotted-path update semantics in document
// stores.
type SectionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Quiz is the persisted result of processing one uploaded document.
type Quiz struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	DocumentURL        string         `json:"documentUrl"`
	DocumentType       DocumentType   `json:"documentType"`
	FileHash           string         `json:"fileHash"` // hex MD5 of the source file
	Status             QuizStatus     `json:"status"`
	TotalQuestions     int            `json:"totalQuestions"`
	ProcessedQuestions int            `json:"processedQuestions"`
	Questions          []Question     `json:"questions"`
	Sections           []string       `json:"sections"` // unique, insertion-ordered
	SectionCounts      []SectionCount `json:"sectionCounts"`
	CreatedBy          string         `json:"createdBy,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Deleted            bool           `json:"deleted,omitempty"`
}

// CachedAnswer is one answered (stem, choices) pair in the semantic cache.
// (StemHash, ChoicesHash) is the primary key; CorrectKey, Explanation and
// Provider are written once on first insert and never reassigned.
type CachedAnswer struct {
	StemHash    string    `json:"stemHash"`
	ChoicesHash string    `json:"choicesHash"`
	CorrectKey  string    `json:"correctKey"`
	Explanation string    `json:"explanation,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"` // 0..1, 0 = unknown
	Provider    string    `json:"provider"`
	HitCount    int64     `json:"hitCount"`
	LastHitAt   time.Time `json:"lastHitAt"`
}

// Job is one unit of work on the processing queue.
type Job struct {
	ID           string       `json:"jobId"`
	QuizID       string       `json:"quizId"`
	DocumentURL  string       `json:"documentUrl"`
	DocumentType DocumentType `json:"documentType"`
	Retries      int          `json:"retries"`
	NotBefore    time.Time    `json:"notBefore,omitempty"`
}
