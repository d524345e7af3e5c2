// Package pipeline processes quiz jobs end to end: mark the quiz as
// processing, parse the document, resolve answers through the
// orchestrator, merge by precedence, persist the completed quiz, and
// opportunistically archive the source file. Stages compose with fn.Then
// so each step short-circuits on error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/docparse"
	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/engine/orchestrate"
	"github.com/SILVESTRIKE/document-to-quiz/engine/provider"
	"github.com/SILVESTRIKE/document-to-quiz/engine/quizstore"
	"github.com/SILVESTRIKE/document-to-quiz/engine/storage"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/fn"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/metrics"
)

// Deps holds the pipeline's external dependencies. Archive is optional;
// when nil the completed document stays where it was uploaded.
type Deps struct {
	Quizzes      quizstore.Store
	Orchestrator *orchestrate.Orchestrator
	Archive      storage.Storage
	Logger       *slog.Logger
	Metrics      *metrics.Registry
}

// Processor runs jobs through the stage chain.
type Processor struct {
	deps Deps
	run  fn.Stage[domain.Job, domain.Quiz]
	log  *slog.Logger
}

// jobState carries a job through the stages.
type jobState struct {
	Job  domain.Job
	Quiz domain.Quiz
	Path string
	Doc  docparse.ParsedDocument
	Res  orchestrate.Result
}

func New(deps Deps) *Processor {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pipeline")

	p := &Processor{deps: deps, log: log}

	begin := fn.TracedStage("pipeline.begin", p.beginStage())
	parse := fn.TracedStage("pipeline.parse", p.parseStage())
	solve := fn.TracedStage("pipeline.solve", p.solveStage())
	persist := fn.TracedStage("pipeline.persist", p.persistStage())

	p.run = fn.Then(fn.Then(fn.Then(begin, parse), solve), persist)
	return p
}

// ProcessJob runs one job. A parser failure deletes the quiz and the
// local file and returns the parser error; domain.ErrPostponed signals
// the worker to reschedule without burning a retry.
func (p *Processor) ProcessJob(ctx context.Context, job domain.Job) error {
	start := time.Now()
	res := p.run(ctx, job)
	if p.deps.Metrics != nil {
		p.deps.Metrics.Histogram("quiz_pipeline_duration_seconds", "Per-job pipeline time.", nil).Since(start)
	}
	quiz, err := res.Unwrap()
	if err != nil {
		return p.failJob(ctx, job, err)
	}

	p.log.Info("quiz completed",
		"quiz_id", quiz.ID,
		"questions", quiz.TotalQuestions,
		"sections", len(quiz.Sections))
	if p.deps.Metrics != nil {
		p.deps.Metrics.Counter("quiz_jobs_completed_total", "Jobs that produced a completed quiz.").Inc()
	}
	return nil
}

// beginStage transitions the quiz to Processing and resolves the local
// document path.
func (p *Processor) beginStage() fn.Stage[domain.Job, jobState] {
	return func(ctx context.Context, job domain.Job) fn.Result[jobState] {
		quiz, err := p.deps.Quizzes.Get(ctx, job.QuizID)
		if err != nil {
			return fn.Err[jobState](fmt.Errorf("load quiz %s: %w", job.QuizID, err))
		}
		if err := p.deps.Quizzes.SetStatus(ctx, job.QuizID, domain.StatusProcessing); err != nil {
			return fn.Err[jobState](fmt.Errorf("mark processing: %w", err))
		}
		quiz.Status = domain.StatusProcessing

		return fn.Ok(jobState{
			Job:  job,
			Quiz: quiz,
			Path: strings.TrimPrefix(job.DocumentURL, "file://"),
		})
	}
}

func (p *Processor) parseStage() fn.Stage[jobState, jobState] {
	return func(ctx context.Context, st jobState) fn.Result[jobState] {
		doc, err := docparse.Parse(st.Path, st.Job.DocumentType)
		if err != nil {
			return fn.Err[jobState](err)
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.Counter("quiz_questions_parsed_total", "Questions extracted from documents.").Add(int64(len(doc.Questions)))
		}
		st.Doc = doc
		return fn.Ok(st)
	}
}

// solveStage sends every question without a visually marked answer
// through the orchestrator. When providers answered nothing and at least
// one was rate limited, the whole job is postponed instead of degrading
// every answer to the fallback.
func (p *Processor) solveStage() fn.Stage[jobState, jobState] {
	return func(ctx context.Context, st jobState) fn.Result[jobState] {
		var unanswered []provider.Question
		for _, q := range st.Doc.Questions {
			if q.CorrectAnswerKey != "" {
				continue
			}
			unanswered = append(unanswered, provider.Question{
				Index:   q.Index,
				Stem:    q.Stem,
				Choices: parsedChoices(q),
				Section: q.Section,
			})
		}
		if len(unanswered) == 0 {
			return fn.Ok(st)
		}

		st.Res = p.deps.Orchestrator.SolveQuestions(ctx, unanswered, orchestrate.Options{})

		providerAnswers := len(st.Res.Responses) - st.Res.CacheHits
		if st.Res.RateLimited && providerAnswers == 0 && st.Res.FailedQuestions > 0 {
			return fn.Err[jobState](domain.ErrPostponed)
		}

		if p.deps.Metrics != nil {
			p.deps.Metrics.Counter("quiz_cache_hits_total", "Answer cache hits.").Add(int64(st.Res.CacheHits))
			p.deps.Metrics.Counter("quiz_cache_misses_total", "Answer cache misses.").Add(int64(st.Res.CacheMisses))
			p.deps.Metrics.Counter("quiz_provider_tokens_total", "Tokens spent on provider calls.").Add(int64(st.Res.TotalTokens))
		}
		return fn.Ok(st)
	}
}

// persistStage merges answers by precedence, computes section stats, and
// saves the completed quiz read-modify-write. Archiving the source file
// afterwards is best-effort.
func (p *Processor) persistStage() fn.Stage[jobState, domain.Quiz] {
	return func(ctx context.Context, st jobState) fn.Result[domain.Quiz] {
		questions := mergeAnswers(st.Doc.Questions, st.Res.Responses, p.log)
		sections, counts := sectionStats(questions)

		quiz, err := p.deps.Quizzes.Get(ctx, st.Quiz.ID)
		if err != nil {
			return fn.Err[domain.Quiz](fmt.Errorf("reload quiz %s: %w", st.Quiz.ID, err))
		}
		if quiz.Title == "" {
			quiz.Title = st.Doc.Title
		}
		quiz.Questions = questions
		quiz.TotalQuestions = len(questions)
		quiz.ProcessedQuestions = len(questions)
		quiz.Sections = sections
		quiz.SectionCounts = counts
		quiz.Status = domain.StatusCompleted

		if err := domain.ValidateQuiz(quiz); err != nil {
			return fn.Err[domain.Quiz](fmt.Errorf("completed quiz invalid: %w", err))
		}
		saved, err := p.deps.Quizzes.Save(ctx, quiz)
		if err != nil {
			return fn.Err[domain.Quiz](fmt.Errorf("save quiz %s: %w", quiz.ID, err))
		}

		p.archive(ctx, &saved, st.Path)
		return fn.Ok(saved)
	}
}

// archive moves the source file to long-term storage, updating the quiz
// URL on success and keeping the local file on failure.
func (p *Processor) archive(ctx context.Context, quiz *domain.Quiz, path string) {
	if p.deps.Archive == nil {
		return
	}
	stored, err := p.deps.Archive.UploadFile(ctx, path, quiz.ID+"-"+quiz.Title, mimeFor(quiz.DocumentType))
	if err != nil {
		p.log.Warn("archive upload failed, keeping local file", "quiz_id", quiz.ID, "error", err)
		return
	}
	quiz.DocumentURL = stored.URL
	if _, err := p.deps.Quizzes.Save(ctx, *quiz); err != nil {
		p.log.Warn("archive url update failed", "quiz_id", quiz.ID, "error", err)
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.log.Warn("local file cleanup failed", "path", path, "error", err)
	}
}

// failJob handles the error paths: parser errors delete the quiz and the
// file so the user can re-upload; postponement parks the quiz in
// Waiting_AI; anything else leaves the quiz in Processing for the queue's
// retry machinery.
func (p *Processor) failJob(ctx context.Context, job domain.Job, err error) error {
	switch {
	case domain.IsParser(err):
		p.log.Error("parser failure, cleaning up", "quiz_id", job.QuizID, "error", err)
		if delErr := p.deps.Quizzes.Delete(ctx, job.QuizID); delErr != nil {
			p.log.Warn("quiz cleanup failed", "quiz_id", job.QuizID, "error", delErr)
		}
		path := strings.TrimPrefix(job.DocumentURL, "file://")
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			p.log.Warn("file cleanup failed", "path", path, "error", rmErr)
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.Counter("quiz_jobs_parser_failed_total", "Jobs dropped on parser errors.").Inc()
		}
		return err

	case errors.Is(err, domain.ErrPostponed):
		p.log.Warn("providers rate limited, postponing job", "quiz_id", job.QuizID)
		if stErr := p.deps.Quizzes.SetStatus(ctx, job.QuizID, domain.StatusWaitingAI); stErr != nil {
			p.log.Warn("waiting status update failed", "quiz_id", job.QuizID, "error", stErr)
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.Counter("quiz_jobs_postponed_total", "Jobs parked on provider rate limits.").Inc()
		}
		return err

	default:
		p.log.Error("job failed", "quiz_id", job.QuizID, "error", err)
		if p.deps.Metrics != nil {
			p.deps.Metrics.Counter("quiz_jobs_failed_total", "Jobs that errored.").Inc()
		}
		return err
	}
}

// mergeAnswers selects each question's final answer by precedence:
// visual mark, then orchestrator answer, then the literal "A" fallback
// with a warning.
func mergeAnswers(parsed []docparse.ParsedQuestion, answers []provider.Answer, log *slog.Logger) []domain.Question {
	byIndex := make(map[int]provider.Answer, len(answers))
	for _, a := range answers {
		byIndex[a.Index] = a
	}

	questions := make([]domain.Question, len(parsed))
	for i, q := range parsed {
		out := domain.Question{
			Stem:    q.Stem,
			Choices: parsedChoices(q),
			Section: q.Section,
		}
		switch {
		case q.CorrectAnswerKey != "":
			out.CorrectAnswerKey = q.CorrectAnswerKey
			out.Source = domain.SourceStyleDetected
		case byIndex[q.Index].CorrectKey != "":
			ans := byIndex[q.Index]
			out.CorrectAnswerKey = ans.CorrectKey
			out.Explanation = ans.Explanation
			out.Source = domain.SourceAIGenerated
		default:
			log.Warn("no answer resolved, falling back to A", "question", q.Index)
			out.CorrectAnswerKey = "A"
			out.Source = domain.SourceAIGenerated
		}
		questions[i] = out
	}
	return questions
}

// sectionStats computes the insertion-ordered section list and per-section
// counts. The map is a scratch structure; counts are persisted as a pair
// list because section names may contain dots.
func sectionStats(questions []domain.Question) ([]string, []domain.SectionCount) {
	byName := make(map[string]int)
	var order []string
	for _, q := range questions {
		if _, seen := byName[q.Section]; !seen {
			order = append(order, q.Section)
		}
		byName[q.Section]++
	}

	counts := make([]domain.SectionCount, len(order))
	for i, name := range order {
		counts[i] = domain.SectionCount{Name: name, Count: byName[name]}
	}
	return order, counts
}

func parsedChoices(q docparse.ParsedQuestion) []domain.Choice {
	return fn.Map(q.Choices, func(c docparse.ParsedChoice) domain.Choice {
		return domain.Choice{Key: c.Key, Text: c.Text, IsVisuallyMarked: c.IsVisuallyMarked}
	})
}

func mimeFor(typ domain.DocumentType) string {
	switch typ {
	case domain.DocPDF:
		return "application/pdf"
	case domain.DocDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/plain"
	}
}
