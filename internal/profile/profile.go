package profile

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// DSN points to the catalog database
	DSN string
	// Driver is the database driver (postgres only)
	Driver string
	// Version is the current version of server
	Version string

	// Embeddings configuration
	EmbeddingProvider   string // LIKEWISE_EMBEDDING_PROVIDER (default: local)
	EmbeddingModel      string // LIKEWISE_EMBEDDING_MODEL (default: nomic-embed-text)
	EmbeddingDimensions int    // LIKEWISE_EMBEDDING_DIMENSIONS (default: 768)
	EmbeddingAPIKey     string // LIKEWISE_EMBEDDING_API_KEY
	EmbeddingBaseURL    string // LIKEWISE_EMBEDDING_BASE_URL

	// Reranking configuration
	RerankEnabled       bool   // LIKEWISE_RERANK_ENABLED (default: false)
	CrossEncoderAPIKey  string // LIKEWISE_RERANK_CROSS_ENCODER_API_KEY
	CrossEncoderBaseURL string // LIKEWISE_RERANK_CROSS_ENCODER_BASE_URL (default: https://api.siliconflow.cn)
	CrossEncoderModel   string // LIKEWISE_RERANK_CROSS_ENCODER_MODEL (default: BAAI/bge-reranker-v2-m3)
	HTTPRerankerURL     string // LIKEWISE_RERANK_HTTP_URL
	HTTPRerankerAPIKey  string // LIKEWISE_RERANK_HTTP_API_KEY
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsRemoteEmbedding returns true when embeddings are produced by an HTTP provider.
func (p *Profile) IsRemoteEmbedding() bool {
	return p.EmbeddingProvider != "" && p.EmbeddingProvider != "local"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads the AI related settings from LIKEWISE_* environment variables.
// Server settings (mode, addr, port, dsn) come from flags bound in cmd.
func (p *Profile) FromEnv() {
	getBoolEnv := func(key string) bool {
		return strings.EqualFold(os.Getenv(key), "true")
	}
	getIntEnv := func(key string, defaultValue int) int {
		raw := os.Getenv(key)
		if raw == "" {
			return defaultValue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			slog.Warn("ignoring non-numeric environment value", slog.String("key", key), slog.String("value", raw))
			return defaultValue
		}
		return v
	}

	p.EmbeddingProvider = getEnvOrDefault("LIKEWISE_EMBEDDING_PROVIDER", "local")
	p.EmbeddingModel = getEnvOrDefault("LIKEWISE_EMBEDDING_MODEL", "nomic-embed-text")
	p.EmbeddingDimensions = getIntEnv("LIKEWISE_EMBEDDING_DIMENSIONS", 768)
	p.EmbeddingAPIKey = os.Getenv("LIKEWISE_EMBEDDING_API_KEY")
	p.EmbeddingBaseURL = os.Getenv("LIKEWISE_EMBEDDING_BASE_URL")

	p.RerankEnabled = getBoolEnv("LIKEWISE_RERANK_ENABLED")
	p.CrossEncoderAPIKey = os.Getenv("LIKEWISE_RERANK_CROSS_ENCODER_API_KEY")
	p.CrossEncoderBaseURL = getEnvOrDefault("LIKEWISE_RERANK_CROSS_ENCODER_BASE_URL", "https://api.siliconflow.cn")
	p.CrossEncoderModel = getEnvOrDefault("LIKEWISE_RERANK_CROSS_ENCODER_MODEL", "BAAI/bge-reranker-v2-m3")
	p.HTTPRerankerURL = os.Getenv("LIKEWISE_RERANK_HTTP_URL")
	p.HTTPRerankerAPIKey = os.Getenv("LIKEWISE_RERANK_HTTP_API_KEY")
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "postgres"
	}
	if p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only postgres is supported", p.Driver)
	}
	if p.DSN == "" {
		slog.Error("missing dsn", slog.String("driver", p.Driver))
		return errors.New("dsn is required")
	}
	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 768
	}
	return nil
}
