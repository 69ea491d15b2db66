package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultCategoryLabels is the closed label set every transaction ends up in.
// "Uncategorized" is reserved for transactions neither the classifier nor the
// keyword rules could place.
var DefaultCategoryLabels = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Bills & Utilities",
	"Entertainment",
	"Health & Medical",
	"Travel",
	"Education",
	"Insurance",
	"Investment",
	"Income",
	"Transfer",
	"Uncategorized",
}

const LabelUncategorized = "Uncategorized"

type Config struct {
	GeminiAPIKey        string
	DatabaseURL         string
	HTTPPort            string
	LogLevel            string
	ConfidenceThreshold float64  // minimum zero-shot score to accept a model label
	RetrievalTopK       int      // max results per similarity query
	EmbeddingDim        int      // fixed vector width for the index
	IndexWorkers        int      // bounded pool size for batch categorize/index
	CategoryLabels      []string // closed label set, must include "Uncategorized"
}

// ConfigurationError reports an invalid startup setting. It is fatal: the
// service refuses to start rather than run with a broken threshold or label set.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

var AppConfig Config

func LoadConfig() error {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:         getEnv("DATABASE_URL", "finquery.db"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		RetrievalTopK:       getEnvAsInt("RETRIEVAL_TOP_K", 10),
		EmbeddingDim:        getEnvAsInt("EMBEDDING_DIM", 768),
		IndexWorkers:        getEnvAsInt("INDEX_WORKERS", 4),
		CategoryLabels:      getEnvAsList("CATEGORY_LABELS", DefaultCategoryLabels),
	}

	return Validate(AppConfig)
}

// Validate checks the invariants every component downstream relies on.
func Validate(cfg Config) error {
	if cfg.GeminiAPIKey == "" {
		return &ConfigurationError{Field: "GEMINI_API_KEY", Reason: "must be set"}
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return &ConfigurationError{Field: "CONFIDENCE_THRESHOLD", Reason: "must be in [0,1]"}
	}
	if cfg.RetrievalTopK <= 0 {
		return &ConfigurationError{Field: "RETRIEVAL_TOP_K", Reason: "must be positive"}
	}
	if cfg.EmbeddingDim <= 0 {
		return &ConfigurationError{Field: "EMBEDDING_DIM", Reason: "must be positive"}
	}
	if cfg.IndexWorkers <= 0 {
		return &ConfigurationError{Field: "INDEX_WORKERS", Reason: "must be positive"}
	}
	if len(cfg.CategoryLabels) == 0 {
		return &ConfigurationError{Field: "CATEGORY_LABELS", Reason: "must not be empty"}
	}
	seen := make(map[string]bool, len(cfg.CategoryLabels))
	hasUncategorized := false
	for _, label := range cfg.CategoryLabels {
		if strings.TrimSpace(label) == "" {
			return &ConfigurationError{Field: "CATEGORY_LABELS", Reason: "labels must not be blank"}
		}
		if seen[label] {
			return &ConfigurationError{Field: "CATEGORY_LABELS", Reason: "duplicate label: " + label}
		}
		seen[label] = true
		if label == LabelUncategorized {
			hasUncategorized = true
		}
	}
	if !hasUncategorized {
		return &ConfigurationError{Field: "CATEGORY_LABELS", Reason: "must include " + LabelUncategorized}
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
