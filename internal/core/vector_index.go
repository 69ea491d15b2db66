package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finquery/internal/store"
	"finquery/internal/utils"
)

// EmbeddingMeta is the metadata snapshot stored alongside a vector, used for
// pre-filtering without touching the transaction table.
type EmbeddingMeta struct {
	Date     time.Time
	Category string
	Amount   decimal.Decimal
}

// EmbeddingRecord pairs a transaction id with its vector. Records are created
// on index, never mutated, and removed only by re-index overwrite or Clear.
type EmbeddingRecord struct {
	TransactionID string
	Vector        []float32
	Meta          EmbeddingMeta
}

// SearchHit is one similarity result.
type SearchHit struct {
	TransactionID string  `json:"transaction_id"`
	Score         float32 `json:"score"`
}

// VectorIndex holds one session's embeddings in memory and answers top-k
// cosine-similarity queries. Filters are applied before ranking, so k always
// means the k best matching results. Embedding-model failure is fatal to
// Index and Query and surfaces as a ModelUnavailableError so the caller can
// fall back to structured-only answering.
type VectorIndex struct {
	embedder Embedder
	log      zerolog.Logger

	mu      sync.RWMutex
	dim     int // fixed at construction, or by the first insert when 0
	records map[string]EmbeddingRecord
}

func NewVectorIndex(embedder Embedder, dim int, log zerolog.Logger) *VectorIndex {
	return &VectorIndex{
		embedder: embedder,
		log:      log,
		dim:      dim,
		records:  make(map[string]EmbeddingRecord),
	}
}

// documentText builds the text that gets embedded: the description enriched
// with date, amount and category so temporal and categorical phrasings
// ("coffee in January") land near the right transactions.
func documentText(t store.Transaction) string {
	kind := "income"
	if t.Amount.IsNegative() {
		kind = "expense"
	}
	category := t.Category
	if category == "" {
		category = "Uncategorized"
	}
	return fmt.Sprintf("Transaction on %s\nAmount: $%s\nCategory: %s\nDescription: %s\nType: %s",
		t.Date.Format("2006-01-02 January"), t.Amount.Abs().StringFixed(2), category, t.Description, kind)
}

// Index embeds the transaction and stores its record. Indexing the same id
// again overwrites the prior vector.
func (ix *VectorIndex) Index(ctx context.Context, t store.Transaction) error {
	vector, err := ix.embedder.Embed(ctx, documentText(t))
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	} else if len(vector) != ix.dim {
		return &DimensionError{Want: ix.dim, Got: len(vector)}
	}

	ix.records[t.ID] = EmbeddingRecord{
		TransactionID: t.ID,
		Vector:        vector,
		Meta: EmbeddingMeta{
			Date:     t.Date,
			Category: t.Category,
			Amount:   t.Amount,
		},
	}
	return nil
}

// Query embeds the text and returns up to k hits ordered by descending
// similarity. Equal scores tie-break on ascending transaction id so results
// are reproducible.
func (ix *VectorIndex) Query(ctx context.Context, text string, k int, filters Filters) ([]SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryVector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]SearchHit, 0, len(ix.records))
	for _, rec := range ix.records {
		if !filters.Match(rec.Meta.Date, rec.Meta.Category, rec.Meta.Amount) {
			continue
		}
		score, err := utils.CosineSimilarity(queryVector, rec.Vector)
		if err != nil {
			ix.log.Warn().Err(err).Str("transaction_id", rec.TransactionID).Msg("skipping record in similarity scan")
			continue
		}
		hits = append(hits, SearchHit{TransactionID: rec.TransactionID, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return strings.Compare(hits[i].TransactionID, hits[j].TransactionID) < 0
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove drops one transaction's record, if present.
func (ix *VectorIndex) Remove(transactionID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.records, transactionID)
}

// Clear drops all records. Used when a new file replaces the session's data.
func (ix *VectorIndex) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records = make(map[string]EmbeddingRecord)
}

func (ix *VectorIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}
