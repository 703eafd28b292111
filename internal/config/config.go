package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Embedding   EmbeddingConfig
	Measurement MeasurementConfig
	Vision      VisionConfig
	Narrative   NarrativeConfig
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Ollama      OllamaConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Matching    MatchingConfig
	Web         WebConfig
	Log         LogConfig
	Prices      PricesConfig
}

type EmbeddingConfig struct {
	URL         string        // defaults to http://localhost:8000
	Dim         int           // defaults to 768
	Timeout     time.Duration // per-call deadline for the mandatory signal
	HealthCheck bool          // probe /health before each analysis
}

type MeasurementConfig struct {
	URL     string // empty disables the measurement signal
	Timeout time.Duration
}

type VisionConfig struct {
	Provider string // openai, gemini, ollama or none
	Timeout  time.Duration
}

type NarrativeConfig struct {
	Provider string // openai, gemini or none (template only)
	Timeout  time.Duration
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the reference HNSW index (optional, rebuilt on startup if empty)
}

type StorageConfig struct {
	Backend     string // local or s3
	Dir         string // upload directory for the local backend
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // custom endpoint for S3-compatible stores (MinIO, LocalStack)
	S3AccessKey string
	S3SecretKey string
}

type MatchingConfig struct {
	TopN       int // number of fused matches kept in the result
	Candidates int // nearest neighbours fetched from the vector index
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // localhost is always allowed
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

// ModelPricing holds input/output prices per 1M tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration parses values like "30s" or "1500ms". Non-positive or invalid
// values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			URL:         os.Getenv("EMBEDDING_URL"),
			Dim:         envInt("EMBEDDING_DIM", 768),
			Timeout:     envDuration("EMBEDDING_TIMEOUT", constants.DefaultEmbeddingTimeout),
			HealthCheck: envBool("EMBEDDING_HEALTH_CHECK", true),
		},
		Measurement: MeasurementConfig{
			URL:     os.Getenv("MEASUREMENT_URL"),
			Timeout: envDuration("MEASUREMENT_TIMEOUT", constants.DefaultMeasurementTimeout),
		},
		Vision: VisionConfig{
			Provider: strings.ToLower(envString("VISION_PROVIDER", "none")),
			Timeout:  envDuration("VISION_TIMEOUT", constants.DefaultVisionTimeout),
		},
		Narrative: NarrativeConfig{
			Provider: strings.ToLower(envString("NARRATIVE_PROVIDER", "none")),
			Timeout:  envDuration("NARRATIVE_TIMEOUT", constants.DefaultNarrativeTimeout),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(envString("STORAGE_BACKEND", "local")),
			Dir:         envString("STORAGE_DIR", "./uploads"),
			S3Bucket:    os.Getenv("S3_BUCKET"),
			S3Region:    envString("S3_REGION", "us-east-1"),
			S3Endpoint:  os.Getenv("S3_ENDPOINT"),
			S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
			S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
		Matching: MatchingConfig{
			TopN:       envInt("MATCH_TOP_N", constants.DefaultTopN),
			Candidates: envInt("MATCH_CANDIDATES", constants.DefaultCandidates),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, zero if unknown.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
