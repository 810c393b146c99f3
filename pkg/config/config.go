package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// EmbedderProvider defines the embedding backend type
type EmbedderProvider string

const (
	EmbedderNone  EmbedderProvider = "none"  // No embeddings, rule/behavioral stages only
	EmbedderLocal EmbedderProvider = "local" // Local ONNX model via Hugot
	EmbedderHTTP  EmbedderProvider = "http"  // OpenAI-compatible embedding API
)

// StoreBackend defines where learned threats are persisted
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"     // JSON file (default, single node)
	StoreRedis    StoreBackend = "redis"    // Redis hash (multi-instance)
	StorePostgres StoreBackend = "postgres" // Postgres table (multi-instance, audited)
)

// Config holds global settings for the CogniGuard gateway.
// All settings can be configured via environment variables or programmatically
type Config struct {
	// === Server ===
	ListenAddr string // HTTP listen address (default: ":8080")

	// === Embedding Configuration ===
	// The semantic stage and the learner share one embedding backend
	EmbedderProvider EmbedderProvider // "local", "http", "none"
	EmbedderAPIKey   string           // API key for the HTTP provider (env: COGNIGUARD_EMBED_API_KEY)
	EmbedderModel    string           // Model identifier for the HTTP provider
	EmbedderBaseURL  string           // Base URL for custom OpenAI-compatible endpoints
	EmbedderDim      int              // Embedding dimension (default: 1024)

	// === Feature Flags ===
	EnableSemantics    bool // Enable embedding similarity detection
	EnableConversation bool // Enable multi-turn conversation tracking
	EnableLearning     bool // Enable the operator feedback loop

	// === Request Limits ===
	MaxMessageBytes int           // Largest accepted message text in bytes (default: 100KB)
	RequestTimeout  time.Duration // HTTP read/write timeout (default: 30s)

	// === Detection Tuning ===
	// Semantic similarity bands; at or above each band the match is rated
	// CRITICAL / HIGH / MEDIUM. Below the medium band the stage stays silent.
	SemanticCriticalBand float64
	SemanticHighBand     float64
	SemanticMediumBand   float64
	LearnerThreshold     float64 // Minimum similarity for a semantic learned-threat match

	// === Conversation Tracking ===
	ConversationWindow int           // Messages kept per conversation (default: 50)
	ConversationTTL    time.Duration // Idle conversation retention (default: 24h)
	CleanupInterval    time.Duration // Expired conversation sweep period (default: 10m)

	// === Learned Threat Store ===
	StoreBackend StoreBackend // "file", "redis", "postgres"
	StorePath    string       // File path for the file backend
	RedisAddr    string       // host:port for the redis backend
	RedisPass    string
	RedisDB      int
	PostgresURL  string // Connection string for the postgres backend
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		ListenAddr: GetEnv("COGNIGUARD_LISTEN_ADDR", ":8080"),

		EmbedderProvider: detectEmbedderProvider(),
		EmbedderAPIKey:   GetEnv("COGNIGUARD_EMBED_API_KEY", ""),
		EmbedderModel:    GetEnv("COGNIGUARD_EMBED_MODEL", "qwen/qwen3-embedding-4b"),
		EmbedderBaseURL:  GetEnv("COGNIGUARD_EMBED_BASE_URL", ""),
		EmbedderDim:      GetEnvInt("COGNIGUARD_EMBED_DIM", 1024),

		EnableSemantics:    GetEnvBool("COGNIGUARD_ENABLE_SEMANTICS", true),
		EnableConversation: GetEnvBool("COGNIGUARD_ENABLE_CONVERSATION", true),
		EnableLearning:     GetEnvBool("COGNIGUARD_ENABLE_LEARNING", true),

		MaxMessageBytes: GetEnvInt("COGNIGUARD_MAX_MESSAGE_BYTES", 100*1024),
		RequestTimeout:  time.Duration(GetEnvInt("COGNIGUARD_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,

		SemanticCriticalBand: GetEnvFloat("COGNIGUARD_SEMANTIC_CRITICAL_BAND", 0.85),
		SemanticHighBand:     GetEnvFloat("COGNIGUARD_SEMANTIC_HIGH_BAND", 0.75),
		SemanticMediumBand:   GetEnvFloat("COGNIGUARD_SEMANTIC_MEDIUM_BAND", 0.65),
		LearnerThreshold:     GetEnvFloat("COGNIGUARD_LEARNER_THRESHOLD", 0.70),

		ConversationWindow: clampInt(GetEnvInt("COGNIGUARD_CONVERSATION_WINDOW", 50), 1, 1000),
		ConversationTTL:    time.Duration(GetEnvInt("COGNIGUARD_CONVERSATION_TTL_SECONDS", 86400)) * time.Second,
		CleanupInterval:    time.Duration(GetEnvInt("COGNIGUARD_CLEANUP_INTERVAL_SECONDS", 600)) * time.Second,

		StoreBackend: StoreBackend(GetEnv("COGNIGUARD_STORE", string(detectStoreBackend()))),
		StorePath:    GetEnv("COGNIGUARD_STORE_PATH", "learned_threats.json"),
		RedisAddr:    GetEnv("COGNIGUARD_REDIS_ADDR", ""),
		RedisPass:    GetEnv("COGNIGUARD_REDIS_PASSWORD", ""),
		RedisDB:      GetEnvInt("COGNIGUARD_REDIS_DB", 0),
		PostgresURL:  GetEnv("COGNIGUARD_POSTGRES_URL", ""),
	}

	return cfg
}

// NewStrictConfig creates a Config for maximum detection (more false
// positives). Everything on, lowered similarity bars, aggressive retention.
func NewStrictConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EnableSemantics = true
	cfg.EnableConversation = true
	cfg.EnableLearning = true
	cfg.ConversationTTL = 72 * time.Hour
	cfg.SemanticCriticalBand = 0.80
	cfg.SemanticHighBand = 0.70
	cfg.SemanticMediumBand = 0.60
	cfg.LearnerThreshold = 0.65
	return cfg
}

// NewPermissiveConfig creates a Config that minimizes false positives and
// overhead: rule and behavioral stages only, raised similarity bars in case
// the optional stages are re-enabled at runtime.
func NewPermissiveConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EnableSemantics = false
	cfg.EnableConversation = false
	cfg.EnableLearning = false
	cfg.SemanticCriticalBand = 0.90
	cfg.SemanticHighBand = 0.82
	cfg.SemanticMediumBand = 0.72
	cfg.LearnerThreshold = 0.80
	return cfg
}

// NewLocalConfig creates a Config for air-gapped operation (no API calls).
func NewLocalConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EmbedderProvider = EmbedderLocal
	cfg.EmbedderAPIKey = ""
	cfg.StoreBackend = StoreFile
	return cfg
}

// Profile returns the named configuration profile.
func Profile(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "", "balanced":
		return NewDefaultConfig(), nil
	case "strict":
		return NewStrictConfig(), nil
	case "permissive":
		return NewPermissiveConfig(), nil
	case "local":
		return NewLocalConfig(), nil
	default:
		return nil, fmt.Errorf("unknown profile %q (want strict, balanced, permissive or local)", name)
	}
}

func detectEmbedderProvider() EmbedderProvider {
	if p := os.Getenv("COGNIGUARD_EMBEDDER"); p != "" {
		return EmbedderProvider(p)
	}
	if os.Getenv("COGNIGUARD_EMBED_API_KEY") != "" {
		return EmbedderHTTP
	}
	// Local model if present or auto-download enabled, else none
	return EmbedderLocal
}

func detectStoreBackend() StoreBackend {
	if os.Getenv("COGNIGUARD_POSTGRES_URL") != "" {
		return StorePostgres
	}
	if os.Getenv("COGNIGUARD_REDIS_ADDR") != "" {
		return StoreRedis
	}
	return StoreFile
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.EmbedderProvider {
	case EmbedderNone, EmbedderLocal, EmbedderHTTP:
	default:
		return fmt.Errorf("unknown embedder provider %q", c.EmbedderProvider)
	}

	switch c.StoreBackend {
	case StoreFile:
		if c.EnableLearning && c.StorePath == "" {
			return fmt.Errorf("COGNIGUARD_STORE_PATH is required for the file store")
		}
	case StoreRedis:
		if c.EnableLearning && c.RedisAddr == "" {
			return fmt.Errorf("COGNIGUARD_REDIS_ADDR is required for the redis store")
		}
	case StorePostgres:
		if c.EnableLearning && c.PostgresURL == "" {
			return fmt.Errorf("COGNIGUARD_POSTGRES_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.ConversationWindow < 1 {
		return fmt.Errorf("conversation window must be positive")
	}
	if c.ConversationTTL <= 0 {
		return fmt.Errorf("conversation TTL must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}
	if c.MaxMessageBytes < 1 {
		return fmt.Errorf("max message bytes must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	for _, band := range []float64{c.SemanticCriticalBand, c.SemanticHighBand, c.SemanticMediumBand, c.LearnerThreshold} {
		if band <= 0 || band > 1 {
			return fmt.Errorf("similarity bands must be in (0, 1], got %.2f", band)
		}
	}
	if c.SemanticCriticalBand < c.SemanticHighBand || c.SemanticHighBand < c.SemanticMediumBand {
		return fmt.Errorf("semantic bands must be ordered critical >= high >= medium")
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}
