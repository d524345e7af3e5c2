// Command enqueue submits a local document through the upload intake:
// it copies the file into the uploads directory, creates the Pending
// quiz in Neo4j, and publishes the processing job to NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/SILVESTRIKE/document-to-quiz/engine/quizstore"
	"github.com/SILVESTRIKE/document-to-quiz/engine/upload"
)

func main() {
	_ = godotenv.Load()

	var (
		natsURL    = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		neo4jURL   = flag.String("neo4j", envOr("NEO4J_URI", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser  = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", envOr("NEO4J_PASSWORD", ""), "Neo4j password")
		uploadsDir = flag.String("uploads", envOr("UPLOADS_DIR", "/tmp/quiz-uploads"), "directory holding uploaded documents")
		owner      = flag.String("owner", "", "quiz owner id")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: enqueue [flags] <document>")
		os.Exit(2)
	}
	source := flag.Arg(0)

	log := slog.Default()
	ctx := context.Background()

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}

	saved, err := stageUpload(source, *uploadsDir)
	if err != nil {
		log.Error("staging upload failed", "error", err)
		os.Exit(1)
	}

	svc := upload.NewService(upload.Deps{
		Quizzes: quizstore.NewNeo4jStore(driver),
		Enqueue: upload.NATSEnqueue(nc),
		Logger:  log,
	})

	out, err := svc.Intake(ctx, upload.Request{
		Path:         saved,
		OriginalName: filepath.Base(source),
		Owner:        *owner,
	})
	if err != nil {
		log.Error("intake failed", "error", err)
		os.Exit(1)
	}
	if out.Duplicate {
		fmt.Printf("duplicate of quiz %s\n", out.ExistingID)
		return
	}
	fmt.Printf("enqueued quiz %s (%s)\n", out.Quiz.ID, out.Quiz.DocumentType)
}

// stageUpload copies the document into the uploads directory under a
// unique name, like the HTTP handler does for multipart uploads.
func stageUpload(source, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dstPath := filepath.Join(dir, uuid.NewString()+filepath.Ext(source))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", err
	}
	return dstPath, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
