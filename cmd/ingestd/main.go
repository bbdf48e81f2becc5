// Command ingestd is the ingestion-pipeline worker (spec.md §4.1): it
// consumes IngestJob envelopes off the JobBus and drives
// internal/ingestion.Orchestrator.Process for each one, following the
// wiring idiom of the teacher's cmd/orchestrator/main.go (env-driven
// config, tuned HTTP transport, best-effort OTel, graceful shutdown).
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

	"github.com/vertigo15/docengine/internal/adapters/blobstore"
	"github.com/vertigo15/docengine/internal/adapters/chat/anthropic"
	"github.com/vertigo15/docengine/internal/adapters/chat/openai"
	"github.com/vertigo15/docengine/internal/adapters/dedupe"
	embedopenai "github.com/vertigo15/docengine/internal/adapters/embed/openai"
	"github.com/vertigo15/docengine/internal/adapters/extract"
	"github.com/vertigo15/docengine/internal/adapters/jobbus"
	"github.com/vertigo15/docengine/internal/adapters/langtag"
	"github.com/vertigo15/docengine/internal/adapters/pgmeta"
	"github.com/vertigo15/docengine/internal/adapters/pgsearch"
	"github.com/vertigo15/docengine/internal/adapters/qdrant"
	"github.com/vertigo15/docengine/internal/adapters/vision"
	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/chunker"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/ingestion"
	"github.com/vertigo15/docengine/internal/metrics"
	"github.com/vertigo15/docengine/internal/observability"
	"github.com/vertigo15/docengine/internal/settings"
	"github.com/vertigo15/docengine/internal/summarizer"
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
		log.Fatal().Err(err).Msg("ingestd")
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
		ServiceName:    "docengine-ingestd",
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

	blob, err := blobstore.New(baseCtx, blobstore.Config{
		Bucket:       cfg.S3Bucket,
		Region:       getenv("S3_REGION", "us-east-1"),
		Endpoint:     cfg.S3Endpoint,
		AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		SecretKey:    os.Getenv("S3_SECRET_KEY"),
		UsePathStyle: getenv("S3_PATH_STYLE", "true") == "true",
	})
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
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

	chatModel := getenv("CHAT_PROVIDER", "openai")
	var chat capabilities.Chat
	switch chatModel {
	case "anthropic":
		chat = anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), getenv("ANTHROPIC_BASE_URL", ""), getenv("CHAT_MODEL", ""), httpClient)
	default:
		chat = openai.New(os.Getenv("OPENAI_API_KEY"), getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"), getenv("CHAT_MODEL", "gpt-4o-mini"), httpClient)
	}

	var visionDescriber capabilities.VisionDescriber
	if getenv("VISION_ENABLED", "true") == "true" {
		visionDescriber = vision.New(
			os.Getenv("OPENAI_API_KEY"),
			getenv("VISION_BASE_URL", "https://api.openai.com/v1"),
			getenv("VISION_MODEL", "gpt-4o-mini"),
			getenv("VISION_PROMPT", "Describe this image for a document index, focusing on any text and data it contains."),
			httpClient,
		)
	}

	metricIndex, err := pgsearch.New(baseCtx, pool, docmodel.CollectionChunks)
	if err != nil {
		return fmt.Errorf("init lexical index (chunks): %w", err)
	}
	summaryLexical, err := pgsearch.New(baseCtx, pool, docmodel.CollectionSummaries)
	if err != nil {
		return fmt.Errorf("init lexical index (summaries): %w", err)
	}
	qaLexical, err := pgsearch.New(baseCtx, pool, docmodel.CollectionQA)
	if err != nil {
		return fmt.Errorf("init lexical index (qa): %w", err)
	}

	qdrantMetric := getenv("QDRANT_METRIC", "cosine")
	chunksIdx, err := qdrant.New(baseCtx, cfg.QdrantAddr, docmodel.CollectionChunks, embedDimension, qdrantMetric, metricIndex)
	if err != nil {
		return fmt.Errorf("init vector index (chunks): %w", err)
	}
	summariesIdx, err := qdrant.New(baseCtx, cfg.QdrantAddr, docmodel.CollectionSummaries, embedDimension, qdrantMetric, summaryLexical)
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

	promptSummary := cfg.PromptSummary
	promptQA := cfg.PromptQA
	// prompt_summary / prompt_qa stored in the MetaStore settings table take
	// precedence over the YAML values.
	if v, ok, err := meta.GetSetting(baseCtx, "prompt_summary"); err == nil && ok && v != "" {
		promptSummary = v
	}
	if v, ok, err := meta.GetSetting(baseCtx, "prompt_qa"); err == nil && ok && v != "" {
		promptQA = v
	}

	summ := summarizer.New(chat, summarizer.Config{
		ShortDocThreshold: cfg.SummarizerShortDocThreshold,
		MaxSectionSize:    cfg.SummarizerMaxSectionSize,
		MinSectionSize:    cfg.SummarizerMinSectionSize,
		MaxConcurrent:     cfg.SummarizerMaxConcurrent,
		PromptSummary:     promptSummary,
		PromptQA:          promptQA,
	})
	qaGen := summarizer.NewQAGenerator(chat, promptQA)
	chunk := chunker.New(langtag.New(), chat, chunker.Config{
		ChunkSize:                  cfg.ChunkSize,
		ChunkOverlap:               cfg.ChunkOverlap,
		HierarchicalThresholdChars: cfg.HierarchicalThresholdChars,
		MinHeadersForSemantic:      cfg.MinHeadersForSemantic,
		ParentSummaryMaxLength:     cfg.ParentSummaryMaxLength,
		ParentChunkMultiplier:      cfg.ParentChunkMultiplier,
	})

	var m metrics.Metrics = metrics.NewOtelMetrics()

	orch := ingestion.New(blob, extract.New(), visionDescriber, summ, qaGen, chunk, embedder, indexes, meta, m,
		ingestion.Config{NumQAPairs: getenvInt("NUM_QA_PAIRS", 5)})

	dedupeTTL := getenvDuration("DEDUPE_TTL", 24*time.Hour)
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
		GroupID:     getenv("KAFKA_GROUP_ID", "docengine-ingestd"),
		IngestTopic: getenv("KAFKA_INGEST_TOPIC", "docengine.ingest"),
		QueryTopic:  getenv("KAFKA_QUERY_TOPIC", "docengine.query"),
		DLQTopic:    getenv("KAFKA_DLQ_TOPIC", "docengine.dlq"),
		WorkerCount: getenvInt("WORKER_COUNT", 4),
	})

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("ingestd_starting")
	return bus.SubscribeIngest(ctx, func(ctx context.Context, payload []byte) error {
		var job docmodel.IngestJob
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Error().Err(err).Msg("ingestd_malformed_job_skipping")
			return nil
		}

		seen, err := dedupeStore.Seen(ctx, "ingest:"+job.DocumentID)
		if err != nil {
			log.Warn().Err(err).Str("document_id", job.DocumentID).Msg("ingestd_dedupe_check_failed_processing_anyway")
		} else if seen {
			log.Info().Str("document_id", job.DocumentID).Msg("ingestd_duplicate_delivery_skipped")
			return nil
		}

		return orch.Process(ctx, job)
	})
}
