// Package settings loads the Settings keys named in spec.md §6 from a YAML
// file, applying the documented defaults, in the style of the teacher's
// internal/config.LoadConfig (read file -> yaml.Unmarshal -> defaults ->
// log) but via zerolog instead of pterm, and using gopkg.in/yaml.v3 — the
// version actually pinned in go.mod.
package settings

import (
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Settings is the core's tunable configuration, read once at startup by
// Load; no read-through cache sits over it.
type Settings struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	DefaultTopK      int `yaml:"default_top_k"`
	DefaultRerankTop int `yaml:"default_rerank_top"`

	MaxAgentIterations int `yaml:"max_agent_iterations"`
	RRFK               int `yaml:"rrf_k"`

	SummarizerShortDocThreshold int `yaml:"summarizer_short_doc_threshold"`
	SummarizerMaxSectionSize    int `yaml:"summarizer_max_section_size"`
	SummarizerMinSectionSize    int `yaml:"summarizer_min_section_size"`
	SummarizerMaxConcurrent     int `yaml:"summarizer_max_concurrent"`

	HierarchicalThresholdChars int `yaml:"hierarchical_threshold_chars"`
	MinHeadersForSemantic      int `yaml:"min_headers_for_semantic"`
	ParentSummaryMaxLength     int `yaml:"parent_summary_max_length"`
	ParentChunkMultiplier      int `yaml:"parent_chunk_multiplier"`

	PromptSummary string `yaml:"prompt_summary"`
	PromptQA      string `yaml:"prompt_qa"`

	// Adapter DSNs — domain-stack wiring (SPEC_FULL.md §11), not named by
	// spec.md's core Settings list but required to construct the adapters.
	QdrantAddr    string `yaml:"qdrant_addr"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	RedisAddr     string `yaml:"redis_addr"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Endpoint    string `yaml:"s3_endpoint"`
}

// Defaults mirrors spec.md §6's documented defaults exactly.
func Defaults() Settings {
	return Settings{
		ChunkSize:    512,
		ChunkOverlap: 50,

		DefaultTopK:      10,
		DefaultRerankTop: 5,

		MaxAgentIterations: 3,
		RRFK:               60,

		SummarizerShortDocThreshold: 12000,
		SummarizerMaxSectionSize:    15000,
		SummarizerMinSectionSize:    500,
		SummarizerMaxConcurrent:     5,

		HierarchicalThresholdChars: 60000,
		MinHeadersForSemantic:      3,
		ParentSummaryMaxLength:     300,
		ParentChunkMultiplier:      4,
	}
}

// Load reads path, merges it over Defaults(), and logs the outcome via
// zerolog (replacing the teacher's pterm.Success/Warning calls, which are a
// CLI-presentation concern out of place in a service core).
func Load(path string) (Settings, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("settings_file_unreadable_using_defaults")
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Error().Err(err).Str("path", path).Msg("settings_unmarshal_error")
		return cfg, err
	}
	log.Info().Str("path", path).Msg("settings_loaded")
	return cfg, nil
}
