// Command queryd is the query-pipeline worker (spec.md §4.5): it consumes
// QueryJob envelopes off the JobBus and drives internal/query.Orchestrator
// .Answer for each one, following the wiring idiom of the teacher's
// cmd/orchestrator/main.go (env-driven config, tuned HTTP transport,
// best-effort OTel, graceful shutdown).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vertigo15/docengine/internal/adapters/chat/anthropic"
	"github.com/vertigo15/docengine/internal/adapters/chat/openai"
	"github.com/vertigo15/docengine/internal/adapters/dedupe"
	embedopenai "github.com/vertigo15/docengine/internal/adapters/embed/openai"
	"github.com/vertigo15/docengine/internal/adapters/jobbus"
	"github.com/vertigo15/docengine/internal/adapters/pgmeta"
	"github.com/vertigo15/docengine/internal/adapters/pgsearch"
	"github.com/vertigo15/docengine/internal/adapters/qdrant"
	"github.com/vertigo15/docengine/internal/answer"
	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/evaluator"
	"github.com/vertigo15/docengine/internal/observability"
	"github.com/vertigo15/docengine/internal/query"
	"github.com/vertigo15/docengine/internal/retrieve"
	"github.com/vertigo15/docengine/internal/settings"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("queryd")
	}
}

func run() error {
	// Load .env deterministically over the process environment, in dev,
	// matching the teacher's config loader idiom; a missing file is fine.
	_ = godotenv.Overload()

	observability.InitLogger(getenv("LOG_PATH", ""), getenv("LOG_LEVEL", "info"))

	baseCtx := context.Background()

	cfg, err := settings.Load(getenv("SETTINGS_PATH", "settings.yaml"))
	if err != nil {
		log.Warn().Err(err).Msg("settings_load_failed_using_defaults")
	}

	shutdown, err := observability.InitOTel(baseCtx, observability.OTelConfig{
		OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:    "docengine-queryd",
		ServiceVersion: getenv("SERVICE_VERSION", "dev"),
		Environment:    getenv("ENVIRONMENT", "development"),
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel_init_failed_continuing_without_observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	httpClient := observability.NewHTTPClient(&http.Client{Transport: tr})

	pool, err := pgxpool.New(baseCtx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	meta, err := pgmeta.New(baseCtx, pool)
	if err != nil {
		return fmt.Errorf("init meta store: %w", err)
	}

	embedDimension := getenvInt("EMBEDDING_DIMENSION", 1536)
	embedder := embedopenai.New(
		getenv("EMBEDDING_BASE_URL", "https://api.openai.com/v1/embeddings"),
		os.Getenv("OPENAI_API_KEY"),
		getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
		embedDimension,
		getenvInt("EMBEDDING_CONCURRENCY", 5),
		httpClient,
	)

	chatProvider := getenv("CHAT_PROVIDER", "openai")
	var chat capabilities.Chat
	switch chatProvider {
	case "anthropic":
		chat = anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), getenv("ANTHROPIC_BASE_URL", ""), getenv("CHAT_MODEL", ""), httpClient)
	default:
		chat = openai.New(os.Getenv("OPENAI_API_KEY"), getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"), getenv("CHAT_MODEL", "gpt-4o-mini"), httpClient)
	}

	chunksLexical, err := pgsearch.New(baseCtx, pool, docmodel.CollectionChunks)
	if err != nil {
		return fmt.Errorf("init lexical index (chunks): %w", err)
	}
	summariesLexical, err := pgsearch.New(baseCtx, pool, docmodel.CollectionSummaries)
	if err != nil {
		return fmt.Errorf("init lexical index (summaries): %w", err)
	}
	qaLexical, err := pgsearch.New(baseCtx, pool, docmodel.CollectionQA)
	if err != nil {
		return fmt.Errorf("init lexical index (qa): %w", err)
	}

	qdrantMetric := getenv("QDRANT_METRIC", "cosine")
	chunksIdx, err := qdrant.New(baseCtx, cfg.QdrantAddr, docmodel.CollectionChunks, embedDimension, qdrantMetric, chunksLexical)
	if err != nil {
		return fmt.Errorf("init vector index (chunks): %w", err)
	}
	summariesIdx, err := qdrant.New(baseCtx, cfg.QdrantAddr, docmodel.CollectionSummaries, embedDimension, qdrantMetric, summariesLexical)
	if err != nil {
		return fmt.Errorf("init vector index (summaries): %w", err)
	}
	qaIdx, err := qdrant.New(baseCtx, cfg.QdrantAddr, docmodel.CollectionQA, embedDimension, qdrantMetric, qaLexical)
	if err != nil {
		return fmt.Errorf("init vector index (qa): %w", err)
	}
	indexes := map[string]capabilities.VectorIndex{
		docmodel.CollectionChunks:    chunksIdx,
		docmodel.CollectionSummaries: summariesIdx,
		docmodel.CollectionQA:        qaIdx,
	}

	retriever := retrieve.NewRetriever(indexes, cfg.RRFK)

	// No reranking adapter is configured by default (SPEC_FULL.md Open
	// Question #3): the reranker model family is left to the adapter and
	// NoopReranker is the documented zero-value default.
	var reranker retrieve.Reranker = retrieve.NoopReranker{}

	// No settings key names a dedicated evaluator/answer prompt (spec.md
	// §6 only documents prompt_summary/prompt_qa, both ingestion-time); an
	// empty prompt makes both collaborators fall back to their built-in
	// defaults.
	eval := evaluator.New(chat, "")
	gen := answer.New(chat, "")

	orch := query.New(embedder, retriever, reranker, eval, gen, meta, query.Config{
		MaxAgentIterations: cfg.MaxAgentIterations,
		DefaultTopK:        cfg.DefaultTopK,
		DefaultRerankTop:   cfg.DefaultRerankTop,
	})

	dedupeTTL := getenvDuration("DEDUPE_TTL", time.Hour)
	dedupeStore, err := dedupe.New(cfg.RedisAddr, dedupeTTL)
	if err != nil {
		return fmt.Errorf("init dedupe store: %w", err)
	}
	defer func() {
		if cerr := dedupeStore.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("dedupe_close_failed")
		}
	}()

	bus := jobbus.New(jobbus.Config{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     getenv("KAFKA_GROUP_ID", "docengine-queryd"),
		IngestTopic: getenv("KAFKA_INGEST_TOPIC", "docengine.ingest"),
		QueryTopic:  getenv("KAFKA_QUERY_TOPIC", "docengine.query"),
		DLQTopic:    getenv("KAFKA_DLQ_TOPIC", "docengine.dlq"),
		WorkerCount: getenvInt("WORKER_COUNT", 4),
	})

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("queryd_starting")
	return bus.SubscribeQuery(ctx, func(ctx context.Context, payload []byte) error {
		var job docmodel.QueryJob
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Error().Err(err).Msg("queryd_malformed_job_skipping")
			return nil
		}

		seen, err := dedupeStore.Seen(ctx, "query:"+job.QueryID)
		if err != nil {
			log.Warn().Err(err).Str("query_id", job.QueryID).Msg("queryd_dedupe_check_failed_processing_anyway")
		} else if seen {
			log.Info().Str("query_id", job.QueryID).Msg("queryd_duplicate_delivery_skipped")
			return nil
		}

		_, err = orch.Answer(ctx, job)
		return err
	})
}
