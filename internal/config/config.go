package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string

	Gemini   GeminiConfig
	Blob     BlobConfig
	Cache    CacheConfig
	Deadline DeadlineConfig
}

type GeminiConfig struct {
	APIKey     string
	TextModel  string
	EmbedModel string
	ImageModel string
}

type BlobConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type CacheConfig struct {
	RetrievalTTL   time.Duration
	RetrievalSize  int
	PageFreshness  time.Duration
	PageLookupSize int
}

// DeadlineConfig carries explicit per-call deadlines, overridable via env.
type DeadlineConfig struct {
	Generate time.Duration
	Embed    time.Duration
	Search   time.Duration
	Persist  time.Duration
	Request  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Gemini: GeminiConfig{
			APIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			TextModel:  firstNonEmpty(os.Getenv("GEMINI_TEXT_MODEL"), "gemini-2.5-flash"),
			EmbedModel: firstNonEmpty(os.Getenv("GEMINI_EMBED_MODEL"), "gemini-embedding-001"),
			ImageModel: firstNonEmpty(os.Getenv("GEMINI_IMAGE_MODEL"), "imagen-3.0-generate-002"),
		},
		Blob:     loadBlobConfig(env),
		Cache:    loadCacheConfig(),
		Deadline: loadDeadlineConfig(),
	}, nil
}

func loadBlobConfig(env string) BlobConfig {
	endpoint := resolveBlobEndpoint(env)
	return BlobConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(os.Getenv("BLOB_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(os.Getenv("BLOB_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(os.Getenv("BLOB_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(os.Getenv("BLOB_S3_BUCKET"), "pageforge-images"),
		UseSSL:    resolveBlobUseSSL(env),
		PublicURL: strings.TrimSpace(os.Getenv("BLOB_PUBLIC_URL")),
	}
}

func resolveBlobEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(os.Getenv("BLOB_MINIO_ENDPOINT"), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("BLOB_S3_ENDPOINT"))
}

func resolveBlobUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("BLOB_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		RetrievalTTL:   durationEnv("RETRIEVAL_CACHE_TTL", time.Hour),
		RetrievalSize:  intEnv("RETRIEVAL_CACHE_SIZE", 512),
		PageFreshness:  durationEnv("PAGE_FRESHNESS_WINDOW", 24*time.Hour),
		PageLookupSize: intEnv("PAGE_LOOKUP_CACHE_SIZE", 1024),
	}
}

func loadDeadlineConfig() DeadlineConfig {
	return DeadlineConfig{
		Generate: durationEnv("LLM_TIMEOUT", 60*time.Second),
		Embed:    durationEnv("EMBED_TIMEOUT", 15*time.Second),
		Search:   durationEnv("SEARCH_TIMEOUT", 10*time.Second),
		Persist:  durationEnv("PERSIST_TIMEOUT", 10*time.Second),
		Request:  durationEnv("REQUEST_TIMEOUT", 180*time.Second),
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
