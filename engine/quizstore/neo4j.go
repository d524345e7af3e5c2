package quizstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Neo4jStore keeps each quiz as one :Quiz node. Nested structures
// (questions, section counts) are stored as JSON string properties since
// node properties cannot nest; saves always write the whole record.
type Neo4jStore struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
}

func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

var _ Store = (*Neo4jStore)(nil)

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

func (s *Neo4jStore) Create(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	props, err := quizToProps(quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	res, err := sess.Run(ctx, "CREATE (q:Quiz $props) RETURN q", map[string]any{"props": props})
	if err != nil {
		return domain.Quiz{}, err
	}
	if !res.Next(ctx) {
		return domain.Quiz{}, fmt.Errorf("failed to create quiz")
	}
	return quizFromRecord(res.Record())
}

func (s *Neo4jStore) Get(ctx context.Context, id string) (domain.Quiz, error) {
	return s.findOne(ctx, "MATCH (q:Quiz {id: $v}) RETURN q", id)
}

func (s *Neo4jStore) FindByHash(ctx context.Context, fileHash string) (domain.Quiz, error) {
	return s.findOne(ctx, "MATCH (q:Quiz {fileHash: $v}) WHERE NOT coalesce(q.deleted, false) RETURN q LIMIT 1", fileHash)
}

func (s *Neo4jStore) findOne(ctx context.Context, cypher, value string) (domain.Quiz, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, map[string]any{"v": value})
	if err != nil {
		return domain.Quiz{}, err
	}
	if !res.Next(ctx) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quizFromRecord(res.Record())
}

func (s *Neo4jStore) ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]domain.Quiz, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	cypher := "MATCH (q:Quiz {createdBy: $owner}) WHERE NOT coalesce(q.deleted, false) " +
		"RETURN q ORDER BY q.createdAt DESC SKIP $offset LIMIT $limit"
	res, err := sess.Run(ctx, cypher, map[string]any{"owner": owner, "offset": opts.Offset, "limit": limit})
	if err != nil {
		return nil, err
	}

	var quizzes []domain.Quiz
	for res.Next(ctx) {
		quiz, err := quizFromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}

func (s *Neo4jStore) Save(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	quiz.UpdatedAt = time.Now().UTC()
	props, err := quizToProps(quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	res, err := sess.Run(ctx, "MATCH (q:Quiz {id: $id}) SET q = $props RETURN q",
		map[string]any{"id": quiz.ID, "props": props})
	if err != nil {
		return domain.Quiz{}, err
	}
	if !res.Next(ctx) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quizFromRecord(res.Record())
}

func (s *Neo4jStore) SetStatus(ctx context.Context, id string, status domain.QuizStatus) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		"MATCH (q:Quiz {id: $id}) SET q.status = $status, q.updatedAt = $now RETURN q",
		map[string]any{"id": id, "status": string(status), "now": time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}
	if !res.Next(ctx) {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Neo4jStore) Delete(ctx context.Context, id string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, "MATCH (q:Quiz {id: $id}) DETACH DELETE q", map[string]any{"id": id})
	return err
}

func quizToProps(quiz domain.Quiz) (map[string]any, error) {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	counts, err := json.Marshal(quiz.SectionCounts)
	if err != nil {
		return nil, fmt.Errorf("marshal section counts: %w", err)
	}

	sections := make([]any, len(quiz.Sections))
	for i, sec := range quiz.Sections {
		sections[i] = sec
	}
	return map[string]any{
		"id":                 quiz.ID,
		"title":              quiz.Title,
		"documentUrl":        quiz.DocumentURL,
		"documentType":       string(quiz.DocumentType),
		"fileHash":           quiz.FileHash,
		"status":             string(quiz.Status),
		"totalQuestions":     int64(quiz.TotalQuestions),
		"processedQuestions": int64(quiz.ProcessedQuestions),
		"questions":          string(questions),
		"sections":           sections,
		"sectionCounts":      string(counts),
		"createdBy":          quiz.CreatedBy,
		"createdAt":          quiz.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":          quiz.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"deleted":            quiz.Deleted,
	}, nil
}

func quizFromRecord(record *neo4j.Record) (domain.Quiz, error) {
	raw, ok := record.Get("q")
	if !ok {
		return domain.Quiz{}, fmt.Errorf("record has no quiz node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.Quiz{}, fmt.Errorf("unexpected record type %T", raw)
	}
	props := node.Props

	quiz := domain.Quiz{
		ID:                 stringProp(props, "id"),
		Title:              stringProp(props, "title"),
		DocumentURL:        stringProp(props, "documentUrl"),
		DocumentType:       domain.DocumentType(stringProp(props, "documentType")),
		FileHash:           stringProp(props, "fileHash"),
		Status:             domain.QuizStatus(stringProp(props, "status")),
		TotalQuestions:     intProp(props, "totalQuestions"),
		ProcessedQuestions: intProp(props, "processedQuestions"),
		CreatedBy:          stringProp(props, "createdBy"),
		Deleted:            boolProp(props, "deleted"),
	}
	if raw := stringProp(props, "questions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &quiz.Questions); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	if raw := stringProp(props, "sectionCounts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &quiz.SectionCounts); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal section counts: %w", err)
		}
	}
	if raw, ok := props["sections"].([]any); ok {
		for _, sec := range raw {
			if s, ok := sec.(string); ok {
				quiz.Sections = append(quiz.Sections, s)
			}
		}
	}
	quiz.CreatedAt, _ = time.Parse(time.RFC3339Nano, stringProp(props, "createdAt"))
	quiz.UpdatedAt, _ = time.Parse(time.RFC3339Nano, stringProp(props, "updatedAt"))
	return quiz, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProp(props map[string]any, key string) int {
	n, _ := props[key].(int64)
	return int(n)
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}
