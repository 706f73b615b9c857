package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Shared secret presented by the answer orchestrator. Empty disables the
	// check (local development only).
	ServiceToken string `envconfig:"SERVICE_TOKEN"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-large"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"3072"`
	GenerationModel     string `envconfig:"GENERATION_MODEL" default:"gpt-4o-mini"`

	RerankEndpoint string `envconfig:"RERANK_ENDPOINT"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`
	RerankModel    string `envconfig:"RERANK_MODEL" default:"rerank-english-v3.0"`

	Retrieval RetrievalConfig
}

// RetrievalConfig carries the stage budgets and thresholds for the retrieval
// pipeline. Defaults match the production tuning; every knob is overridable
// so operators can adjust without a deploy.
type RetrievalConfig struct {
	DualRead         bool    `envconfig:"DUAL_READ" default:"true"`
	TopK             int     `envconfig:"TOP_K" default:"20"`
	MaxResults       int     `envconfig:"MAX_RESULTS" default:"5"`
	MaxContextTokens int     `envconfig:"MAX_CONTEXT_TOKENS" default:"2000"`
	EnableRerank     bool    `envconfig:"ENABLE_RERANK" default:"true"`
	ConfidenceFloor  float64 `envconfig:"CONFIDENCE_FLOOR" default:"0.0"`

	VerifiedSimilarity float64 `envconfig:"VERIFIED_SIMILARITY" default:"0.92"`

	// Rerank score sanity floor. The historical 0.001 default is suspect and
	// depends on the rerank model's score scale, hence configurable.
	RerankScoreFloor float64 `envconfig:"RERANK_SCORE_FLOOR" default:"0.001"`

	VerifiedTimeout   time.Duration `envconfig:"VERIFIED_TIMEOUT" default:"2s"`
	FanoutTimeout     time.Duration `envconfig:"FANOUT_TIMEOUT" default:"5s"`
	RerankTimeout     time.Duration `envconfig:"RERANK_TIMEOUT" default:"3s"`
	NamespaceCacheTTL time.Duration `envconfig:"NAMESPACE_CACHE_TTL" default:"5m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("ECHOSELF", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRerank() bool {
	return c.RerankEndpoint != ""
}
