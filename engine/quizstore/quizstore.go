// Package quizstore persists quizzes. The primary implementation is
// Neo4j-backed; a memory implementation serves tests and single-node
// setups. Saves are whole-record (read-modify-write at the caller) so
// question sub-documents keep stable identities.
package quizstore

import (
	"context"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// ListOpts pages list queries.
type ListOpts struct {
	Offset int
	Limit  int
}

// Store is the quiz persistence interface. Get and FindByHash return
// domain.ErrQuizNotFound when nothing matches; FindByHash ignores
// soft-deleted quizzes so a re-upload after deletion is not treated as a
// duplicate.
type Store interface {
	Create(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	Get(ctx context.Context, id string) (domain.Quiz, error)
	FindByHash(ctx context.Context, fileHash string) (domain.Quiz, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]domain.Quiz, error)
	Save(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	SetStatus(ctx context.Context, id string, status domain.QuizStatus) error
	Delete(ctx context.Context, id string) error
}
