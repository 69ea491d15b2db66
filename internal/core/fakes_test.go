package core

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"finquery/internal/config"
	"finquery/internal/store"
)

// fakeEmbedder produces a deterministic bag-of-words vector: identical text
// always embeds to the identical vector, so self-retrieval scores 1.
type fakeEmbedder struct {
	dim   int
	fail  bool
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, &ModelUnavailableError{Capability: "embedding", Err: errors.New("embedder down")}
	}
	dim := f.dim
	if dim == 0 {
		dim = 16
	}
	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(dim)]++
	}
	return vec, nil
}

// fakeClassifier returns canned scores, optionally failing for specific
// descriptions.
type fakeClassifier struct {
	scores  []LabelScore
	err     error
	failFor map[string]bool

	mu    sync.Mutex
	calls int
}

func (f *fakeClassifier) ClassifyZeroShot(_ context.Context, text string, _ []string) ([]LabelScore, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.failFor[text] {
		return nil, &ModelUnavailableError{Capability: "classification", Err: errors.New("classifier down")}
	}
	return f.scores, nil
}

// fakeGenerator records what it was asked to ground on.
type fakeGenerator struct {
	response string
	err      error

	mu          sync.Mutex
	calls       int
	lastContext string
}

func (f *fakeGenerator) Generate(_ context.Context, _, groundingContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastContext = groundingContext
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) context() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastContext
}

func testConfig() config.Config {
	return config.Config{
		GeminiAPIKey:        "test-key",
		ConfidenceThreshold: 0.5,
		RetrievalTopK:       10,
		EmbeddingDim:        0, // fixed by first insert
		IndexWorkers:        2,
		CategoryLabels:      config.DefaultCategoryLabels,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustDate(t string) time.Time {
	parsed, err := time.Parse("2006-01-02", t)
	if err != nil {
		panic(err)
	}
	return parsed
}

func tx(id, date, description, amount, category string) store.Transaction {
	return store.Transaction{
		ID:          id,
		Date:        mustDate(date),
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
	}
}
