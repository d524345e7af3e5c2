package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
	"github.com/SILVESTRIKE/document-to-quiz/engine/quizstore"
)

func writeUpload(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    domain.DocumentType
		wantErr bool
	}{
		{"quiz.pdf", []byte("%PDF-1.7 rest"), domain.DocPDF, false},
		{"quiz.docx", []byte("PK\x03\x04zipzip"), domain.DocDOCX, false},
		{"quiz.odt", []byte("PK\x03\x04zipzip"), domain.DocText, false},
		{"quiz.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00}, domain.DocText, false},
		{"quiz.rtf", []byte(`{\rtf1\ansi text}`), domain.DocText, false},
		{"quiz.txt", []byte("Câu 1. Nội dung tiếng Việt"), domain.DocText, false},
		// Extension lies about the content.
		{"quiz.txt", []byte("%PDF-1.7"), "", true},
		{"quiz.pdf", []byte("plain text, no magic"), "", true},
		// Binary junk with a text extension.
		{"quiz.txt", []byte{0x00, 0x01, 0x02}, "", true},
		{"quiz.exe", []byte("MZ binary"), "", true},
	}
	for _, tt := range tests {
		path := writeUpload(t, "saved.bin", tt.content)
		got, err := DetectType(path, tt.name)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrUnsupportedFormat) {
				t.Errorf("%s %q: err = %v, want ErrUnsupportedFormat", tt.name, tt.content[:min(8, len(tt.content))], err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: got (%s, %v), want %s", tt.name, got, err, tt.want)
		}
	}
}

func newService(t *testing.T) (*Service, *quizstore.MemoryStore, *[]domain.Job) {
	t.Helper()
	quizzes := quizstore.NewMemoryStore()
	var jobs []domain.Job
	svc := NewService(Deps{
		Quizzes: quizzes,
		Enqueue: func(ctx context.Context, job domain.Job) error {
			jobs = append(jobs, job)
			return nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, quizzes, &jobs
}

func TestIntake_NewUpload(t *testing.T) {
	ctx := context.Background()
	svc, quizzes, jobs := newService(t)
	path := writeUpload(t, "de-thi.txt", []byte("Câu 1. Một câu hỏi?\nA. x\nB. y\n"))

	out, err := svc.Intake(ctx, Request{Path: path, OriginalName: "de-thi.txt", Owner: "user-1"})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	if out.Duplicate {
		t.Fatal("unexpected duplicate")
	}
	if out.Quiz.Status != domain.StatusPending || out.Quiz.Title != "de-thi" {
		t.Errorf("quiz = %+v", out.Quiz)
	}
	if out.Quiz.FileHash == "" || out.Quiz.DocumentURL != "file://"+path {
		t.Errorf("quiz refs = hash %q url %q", out.Quiz.FileHash, out.Quiz.DocumentURL)
	}

	stored, err := quizzes.Get(ctx, out.Quiz.ID)
	if err != nil || stored.Status != domain.StatusPending {
		t.Errorf("stored quiz: %+v, %v", stored, err)
	}
	if len(*jobs) != 1 || (*jobs)[0].QuizID != out.Quiz.ID || (*jobs)[0].DocumentType != domain.DocText {
		t.Errorf("jobs = %+v", *jobs)
	}
}

func TestIntake_DuplicateContent(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs := newService(t)
	content := []byte("Câu 1. Một câu hỏi?\nA. x\nB. y\n")

	first := writeUpload(t, "a.txt", content)
	out1, err := svc.Intake(ctx, Request{Path: first, OriginalName: "a.txt"})
	if err != nil {
		t.Fatal(err)
	}

	second := writeUpload(t, "b.txt", content)
	out2, err := svc.Intake(ctx, Request{Path: second, OriginalName: "b.txt"})
	if err != nil {
		t.Fatalf("duplicate intake: %v", err)
	}
	if !out2.Duplicate || out2.ExistingID != out1.Quiz.ID {
		t.Errorf("outcome = %+v, want duplicate of %s", out2, out1.Quiz.ID)
	}
	if len(*jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(*jobs))
	}
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Error("duplicate file not removed")
	}
}

func TestIntake_TooLarge(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	big := make([]byte, MaxUploadSize+1)
	copy(big, "Câu 1.")
	path := writeUpload(t, "big.txt", big)

	_, err := svc.Intake(ctx, Request{Path: path, OriginalName: "big.txt"})
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestIntake_EnqueueFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	quizzes := quizstore.NewMemoryStore()
	svc := NewService(Deps{
		Quizzes: quizzes,
		Enqueue: func(ctx context.Context, job domain.Job) error { return errors.New("nats down") },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	path := writeUpload(t, "c.txt", []byte("Câu 1. X?\nA. a\nB. b\n"))

	_, err := svc.Intake(ctx, Request{Path: path, OriginalName: "c.txt"})
	if err == nil {
		t.Fatal("expected error")
	}
	if list, _ := quizzes.ListByOwner(ctx, "", quizstore.ListOpts{}); len(list) != 0 {
		t.Errorf("quiz left behind: %+v", list)
	}
}
