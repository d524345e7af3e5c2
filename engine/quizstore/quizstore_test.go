package quizstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:                 "quiz-1",
		Title:              "giua-ky",
		DocumentURL:        "/uploads/giua-ky.docx",
		DocumentType:       domain.DocDOCX,
		FileHash:           "d41d8cd98f00b204e9800998ecf8427e",
		Status:             domain.StatusCompleted,
		TotalQuestions:     2,
		ProcessedQuestions: 2,
		Questions: []domain.Question{
			{
				Stem:             "What is 2+2?",
				Choices:          []domain.Choice{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}},
				CorrectAnswerKey: "B",
				Source:           domain.SourceAIGenerated,
				Section:          "CLO 1",
			},
			{
				Stem:             "Thủ đô của Việt Nam?",
				Choices:          []domain.Choice{{Key: "A", Text: "Hà Nội", IsVisuallyMarked: true}, {Key: "B", Text: "Huế"}},
				CorrectAnswerKey: "A",
				Source:           domain.SourceStyleDetected,
				Section:          "CLO 1",
			},
		},
		Sections:      []string{"CLO 1"},
		SectionCounts: []domain.SectionCount{{Name: "CLO 1", Count: 2}},
		CreatedBy:     "user-9",
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
	}
}

func TestQuizPropsRoundTrip(t *testing.T) {
	quiz := sampleQuiz()
	props, err := quizToProps(quiz)
	if err != nil {
		t.Fatal(err)
	}

	record := &neo4j.Record{Keys: []string{"q"}, Values: []any{neo4j.Node{Props: props}}}
	got, err := quizFromRecord(record)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CreatedAt.Equal(quiz.CreatedAt) || !got.UpdatedAt.Equal(quiz.UpdatedAt) {
		t.Errorf("timestamps drifted: %v %v", got.CreatedAt, got.UpdatedAt)
	}
	got.CreatedAt, got.UpdatedAt = quiz.CreatedAt, quiz.UpdatedAt
	if !reflect.DeepEqual(got, quiz) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, quiz)
	}
}

// fakeResult and fakeRunner script one query's outcome.
type fakeResult struct {
	records []*neo4j.Record
	pos     int
}

func (r *fakeResult) Next(ctx context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.pos-1] }

type fakeRunner struct {
	cypher  string
	params  map[string]any
	records []*neo4j.Record
	err     error
	closed  bool
}

func (f *fakeRunner) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	f.cypher = cypher
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &fakeResult{records: f.records}, nil
}

func (f *fakeRunner) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func storeWith(f *fakeRunner) *Neo4jStore {
	s := &Neo4jStore{}
	s.newSession = func(ctx context.Context) runner { return f }
	return s
}

func TestNeo4jStore_GetNotFound(t *testing.T) {
	f := &fakeRunner{}
	s := storeWith(f)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("err = %v, want ErrQuizNotFound", err)
	}
	if !strings.Contains(f.cypher, "MATCH (q:Quiz {id: $v})") {
		t.Errorf("cypher = %q", f.cypher)
	}
	if !f.closed {
		t.Error("session not closed")
	}
}

func TestNeo4jStore_FindByHashSkipsDeleted(t *testing.T) {
	f := &fakeRunner{}
	s := storeWith(f)

	if _, err := s.FindByHash(context.Background(), "abc"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(f.cypher, "NOT coalesce(q.deleted, false)") {
		t.Errorf("cypher does not exclude deleted quizzes: %q", f.cypher)
	}
}

func TestNeo4jStore_Save(t *testing.T) {
	quiz := sampleQuiz()
	props, err := quizToProps(quiz)
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeRunner{records: []*neo4j.Record{
		{Keys: []string{"q"}, Values: []any{neo4j.Node{Props: props}}},
	}}
	s := storeWith(f)

	got, err := s.Save(context.Background(), quiz)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got.ID != quiz.ID || got.Status != domain.StatusCompleted {
		t.Errorf("saved quiz = %+v", got)
	}
	if !strings.Contains(f.cypher, "SET q = $props") {
		t.Errorf("save must replace the whole node, cypher = %q", f.cypher)
	}
}

func TestNeo4jStore_SetStatus(t *testing.T) {
	f := &fakeRunner{records: []*neo4j.Record{
		{Keys: []string{"q"}, Values: []any{neo4j.Node{Props: map[string]any{"id": "quiz-1"}}}},
	}}
	s := storeWith(f)

	if err := s.SetStatus(context.Background(), "quiz-1", domain.StatusProcessing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if f.params["status"] != string(domain.StatusProcessing) {
		t.Errorf("params = %v", f.params)
	}
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	quiz := sampleQuiz()
	quiz.Status = domain.StatusPending

	created, err := s.Create(ctx, quiz)
	if err != nil {
		t.Fatal(err)
	}
	if created.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	byHash, err := s.FindByHash(ctx, quiz.FileHash)
	if err != nil || byHash.ID != quiz.ID {
		t.Fatalf("FindByHash: %v %+v", err, byHash)
	}

	if err := s.SetStatus(ctx, quiz.ID, domain.StatusProcessing); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, quiz.ID)
	if got.Status != domain.StatusProcessing {
		t.Errorf("status = %s", got.Status)
	}

	got.Status = domain.StatusCompleted
	if _, err := s.Save(ctx, got); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, quiz.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("after delete: %v", err)
	}
	if _, err := s.FindByHash(ctx, quiz.FileHash); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("hash after delete: %v", err)
	}
}

func TestMemoryStore_SaveUnknownQuiz(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Save(context.Background(), sampleQuiz()); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("err = %v, want ErrQuizNotFound", err)
	}
}
