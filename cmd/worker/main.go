// Command worker consumes quiz processing jobs from NATS, parses the
// uploaded documents, resolves answers through the cache and the provider
// cascade, and persists completed quizzes into Neo4j.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/SILVESTRIKE/document-to-quiz/engine/cache"
	"github.com/SILVESTRIKE/document-to-quiz/engine/orchestrate"
	"github.com/SILVESTRIKE/document-to-quiz/engine/pipeline"
	"github.com/SILVESTRIKE/document-to-quiz/engine/provider"
	"github.com/SILVESTRIKE/document-to-quiz/engine/quizstore"
	"github.com/SILVESTRIKE/document-to-quiz/engine/storage"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/fn"
	"github.com/SILVESTRIKE/document-to-quiz/pkg/metrics"
)

var met = metrics.New()

func main() {
	// A missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	var (
		natsURL     = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		neo4jURL    = flag.String("neo4j", envOr("NEO4J_URI", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", envOr("NEO4J_PASSWORD", ""), "Neo4j password")
		archiveDir  = flag.String("archive", os.Getenv("ARCHIVE_DIR"), "local archive directory (empty disables archiving)")
		metricsPort = flag.Int("metrics-port", 9092, "Prometheus metrics port")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.ServeAsync(*metricsPort)

	nc, err := connectNATS(ctx, *natsURL, log)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	log.Info("connected to NATS", "url", *natsURL)

	driver, err := connectNeo4j(ctx, *neo4jURL, *neo4jUser, *neo4jPass, log)
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	log.Info("connected to Neo4j", "url", *neo4jURL)

	rdb := redis.NewClient(&redis.Options{
		Addr: envOr("REDIS_HOST", "localhost") + ":" + envOr("REDIS_PORT", "6379"),
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache degrades to miss-only behind its breaker; keep going.
		log.Warn("redis unreachable, answer cache degraded", "error", err)
	} else {
		log.Info("connected to Redis")
	}

	providers := buildProviders(log)
	if len(providers) == 0 {
		log.Warn("no provider configured, only cached and visually marked answers will resolve")
	}

	var archive storage.Storage
	switch {
	case os.Getenv("BLOB_URL") != "":
		archive = storage.NewBlob(os.Getenv("BLOB_URL"), os.Getenv("BLOB_TOKEN"))
		log.Info("archiving to blob storage", "url", os.Getenv("BLOB_URL"))
	case *archiveDir != "":
		archive, err = storage.NewLocal(*archiveDir)
		if err != nil {
			log.Error("archive dir unusable", "dir", *archiveDir, "error", err)
			os.Exit(1)
		}
		log.Info("archiving to local directory", "dir", *archiveDir)
	}

	proc := pipeline.New(pipeline.Deps{
		Quizzes:      quizstore.NewNeo4jStore(driver),
		Orchestrator: orchestrate.New(cache.New(cache.NewRedisStore(rdb), log), providers, log),
		Archive:      archive,
		Logger:       log,
		Metrics:      met,
	})

	concurrency, _ := strconv.Atoi(os.Getenv("BULLMQ_QUIZ_CONCURRENCY"))
	worker := pipeline.NewWorker(nc, proc, log, pipeline.WorkerOpts{Concurrency: concurrency, Metrics: met})
	sub, err := worker.Start()
	if err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("worker running", "subject", pipeline.JobSubject, "concurrency", max(concurrency, 1))
	<-ctx.Done()
	log.Info("shutting down")
}

// buildProviders assembles the fallback cascade from the environment.
// Unconfigured adapters are left out entirely.
func buildProviders(log *slog.Logger) []provider.Provider {
	var out []provider.Provider

	geminiKeys := os.Getenv("GEMINI_API_KEYS")
	if geminiKeys == "" {
		geminiKeys = os.Getenv("GEMINI_API_KEY")
	}
	if geminiKeys != "" {
		out = append(out, provider.NewGemini(provider.GeminiConfig{Keys: geminiKeys}, log))
	}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		out = append(out, provider.NewGitHubModels(provider.GitHubConfig{
			Token: tok,
			Model: os.Getenv("GITHUB_MODEL"),
		}, log))
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		out = append(out, provider.NewGroq(provider.GroqConfig{Key: key}, log))
	}
	if tok := os.Getenv("HF_ACCESS_TOKEN"); tok != "" {
		out = append(out, provider.NewHuggingFace(provider.HuggingFaceConfig{Token: tok}, log))
	}
	return out
}

func connectNATS(ctx context.Context, url string, log *slog.Logger) (*nats.Conn, error) {
	var nc *nats.Conn
	err := retryConnect(ctx, "nats", log, func() error {
		var err error
		nc, err = nats.Connect(url, nats.MaxReconnects(-1))
		return err
	})
	return nc, err
}

func connectNeo4j(ctx context.Context, url, user, pass string, log *slog.Logger) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, err
	}
	err = retryConnect(ctx, "neo4j", log, func() error {
		return driver.VerifyConnectivity(ctx)
	})
	return driver, err
}

// retryConnect attempts f with linear backoff until it succeeds, the
// context ends, or the attempts run out.
func retryConnect(ctx context.Context, name string, log *slog.Logger, f func() error) error {
	opts := fn.RetryOpts{MaxAttempts: 10, InitialWait: time.Second, Backoff: fn.BackoffLinear}
	attempt := 0
	res := fn.Retry(ctx, opts, func(context.Context) fn.Result[struct{}] {
		attempt++
		if err := f(); err != nil {
			log.Warn("connect failed", "target", name, "attempt", attempt, "error", err)
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	_, err := res.Unwrap()
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
