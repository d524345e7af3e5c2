package quizstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	quizzes map[string]domain.Quiz
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quizzes: make(map[string]domain.Quiz)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now
	s.quizzes[quiz.ID] = quiz
	return quiz, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *MemoryStore) FindByHash(ctx context.Context, fileHash string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, quiz := range s.quizzes {
		if quiz.FileHash == fileHash && !quiz.Deleted {
			return quiz, nil
		}
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *MemoryStore) ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Quiz
	for _, quiz := range s.quizzes {
		if quiz.CreatedBy == owner && !quiz.Deleted {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quiz.ID]; !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.UpdatedAt = time.Now().UTC()
	s.quizzes[quiz.ID] = quiz
	return quiz, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status domain.QuizStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Status = status
	quiz.UpdatedAt = time.Now().UTC()
	s.quizzes[id] = quiz
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quizzes, id)
	return nil
}
