// Package upload is the intake service behind the upload handler: it
// validates the saved file by magic bytes and size, deduplicates by
// content hash, creates the Pending quiz record, and enqueues the
// processing job.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/engine/pipeline"
	"github.com/SILVESTRIKE/document-to-quiz/engine/quizstore"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/hashutil"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/natsutil"
)

// MaxUploadSize is the upload size limit in bytes.
const MaxUploadSize = 50 << 20

// Request describes one saved upload. Path is where the handler wrote
// the file; OriginalName keeps the user's filename for type detection
// and the quiz title.
type Request struct {
	Path         string
	OriginalName string
	Owner        string
}

// Outcome reports what the intake did with an upload. Exactly one case
// holds: a new Pending quiz was created and enqueued, or the content
// matched an existing quiz and ExistingID names it.
type Outcome struct {
	Quiz       domain.Quiz
	Duplicate  bool
	ExistingID string
}

// Deps holds the intake's collaborators. Enqueue publishes the job;
// NATSEnqueue builds the production implementation.
type Deps struct {
	Quizzes quizstore.Store
	Enqueue func(ctx context.Context, job domain.Job) error
	Logger  *slog.Logger
}

// NATSEnqueue returns an Enqueue func publishing to the job subject.
func NATSEnqueue(nc *nats.Conn) func(ctx context.Context, job domain.Job) error {
	return func(ctx context.Context, job domain.Job) error {
		return natsutil.Publish(ctx, nc, pipeline.JobSubject, job)
	}
}

// Service is the upload intake.
type Service struct {
	deps Deps
	log  *slog.Logger
}

func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: deps, log: log.With("component", "upload")}
}

// Intake validates, deduplicates, records, and enqueues one upload. On a
// duplicate the freshly saved file is removed and the existing quiz id
// returned; the caller serves the existing quiz.
func (s *Service) Intake(ctx context.Context, req Request) (Outcome, error) {
	info, err := os.Stat(req.Path)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() > MaxUploadSize {
		return Outcome{}, domain.NewAppError(domain.KindBadRequest,
			fmt.Sprintf("%d bytes", info.Size()), domain.ErrFileTooLarge)
	}

	docType, err := DetectType(req.Path, req.OriginalName)
	if err != nil {
		return Outcome{}, err
	}

	hash, err := hashutil.HashFile(req.Path)
	if err != nil {
		return Outcome{}, err
	}

	if existing, err := s.deps.Quizzes.FindByHash(ctx, hash); err == nil {
		s.log.Info("duplicate upload", "existing_quiz", existing.ID, "hash", hash)
		if rmErr := os.Remove(req.Path); rmErr != nil {
			s.log.Warn("duplicate file cleanup failed", "path", req.Path, "error", rmErr)
		}
		return Outcome{Duplicate: true, ExistingID: existing.ID}, nil
	}

	quiz := domain.Quiz{
		ID:           uuid.NewString(),
		Title:        titleFrom(req.OriginalName),
		DocumentURL:  "file://" + req.Path,
		DocumentType: docType,
		FileHash:     hash,
		Status:       domain.StatusPending,
		CreatedBy:    req.Owner,
	}
	quiz, err = s.deps.Quizzes.Create(ctx, quiz)
	if err != nil {
		return Outcome{}, fmt.Errorf("create quiz: %w", err)
	}

	job := domain.Job{
		ID:           uuid.NewString(),
		QuizID:       quiz.ID,
		DocumentURL:  quiz.DocumentURL,
		DocumentType: quiz.DocumentType,
	}
	if err := s.deps.Enqueue(ctx, job); err != nil {
		// Without a job the Pending record would never progress.
		if delErr := s.deps.Quizzes.Delete(ctx, quiz.ID); delErr != nil {
			s.log.Warn("orphan quiz cleanup failed", "quiz_id", quiz.ID, "error", delErr)
		}
		return Outcome{}, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info("upload accepted", "quiz_id", quiz.ID, "type", docType, "hash", hash)
	return Outcome{Quiz: quiz}, nil
}

func titleFrom(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
