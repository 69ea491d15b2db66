package config

import (
	"errors"
	"testing"
)

func validConfig() Config {
	return Config{
		GeminiAPIKey:        "key",
		ConfidenceThreshold: 0.5,
		RetrievalTopK:       10,
		EmbeddingDim:        768,
		IndexWorkers:        4,
		CategoryLabels:      DefaultCategoryLabels,
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing api key", func(c *Config) { c.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"threshold below zero", func(c *Config) { c.ConfidenceThreshold = -0.1 }, "CONFIDENCE_THRESHOLD"},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "CONFIDENCE_THRESHOLD"},
		{"zero top k", func(c *Config) { c.RetrievalTopK = 0 }, "RETRIEVAL_TOP_K"},
		{"negative embedding dim", func(c *Config) { c.EmbeddingDim = -1 }, "EMBEDDING_DIM"},
		{"zero workers", func(c *Config) { c.IndexWorkers = 0 }, "INDEX_WORKERS"},
		{"empty labels", func(c *Config) { c.CategoryLabels = nil }, "CATEGORY_LABELS"},
		{"blank label", func(c *Config) { c.CategoryLabels = []string{"Income", " ", "Uncategorized"} }, "CATEGORY_LABELS"},
		{"duplicate label", func(c *Config) { c.CategoryLabels = []string{"Income", "Income", "Uncategorized"} }, "CATEGORY_LABELS"},
		{"missing uncategorized", func(c *Config) { c.CategoryLabels = []string{"Income", "Transfer"} }, "CATEGORY_LABELS"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := Validate(cfg)
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cerr.Field != tc.field {
				t.Fatalf("field = %q, want %q", cerr.Field, tc.field)
			}
		})
	}
}

func TestDefaultCategoryLabels(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("default labels invalid: %v", err)
	}
	found := false
	for _, l := range DefaultCategoryLabels {
		if l == LabelUncategorized {
			found = true
		}
	}
	if !found {
		t.Fatal("default labels must include the uncategorized label")
	}
}
