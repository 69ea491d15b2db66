package core

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finquery/internal/config"
	"finquery/internal/store"
)

// FallbackConfidence is the fixed confidence assigned to keyword-rule matches.
// It sits above the default acceptance threshold and below a confident model
// score, so stored confidences reveal which path labeled a transaction.
const FallbackConfidence = 0.6

// Categorizer assigns each transaction exactly one label from the closed set.
// It prefers the zero-shot classifier when its top score clears the threshold
// and otherwise falls back to the deterministic keyword rules. A nil or
// failing classifier is never fatal: categorization always completes.
type Categorizer struct {
	classifier ZeroShotClassifier // nil disables model-backed classification
	labels     []string
	labelSet   map[string]bool
	threshold  float64
	workers    int
	log        zerolog.Logger
}

func NewCategorizer(classifier ZeroShotClassifier, cfg config.Config, log zerolog.Logger) *Categorizer {
	labelSet := make(map[string]bool, len(cfg.CategoryLabels))
	for _, l := range cfg.CategoryLabels {
		labelSet[l] = true
	}
	return &Categorizer{
		classifier: classifier,
		labels:     cfg.CategoryLabels,
		labelSet:   labelSet,
		threshold:  cfg.ConfidenceThreshold,
		workers:    cfg.IndexWorkers,
		log:        log,
	}
}

// Categorize returns a label from the configured set plus a confidence in
// [0,1]. Classification failures degrade to the keyword fallback; no keyword
// match yields "Uncategorized" with confidence 0.
func (c *Categorizer) Categorize(ctx context.Context, description string, amount decimal.Decimal) (string, float64) {
	if c.classifier != nil {
		scores, err := c.classifier.ClassifyZeroShot(ctx, description, c.labels)
		if err != nil {
			c.log.Debug().Err(err).Str("description", description).Msg("classification skipped, using fallback")
		} else if len(scores) > 0 && scores[0].Score >= c.threshold && c.labelSet[scores[0].Label] {
			return scores[0].Label, scores[0].Score
		}
	}

	if label, ok := matchKeywords(description, amount); ok && c.labelSet[label] {
		return label, FallbackConfidence
	}
	return config.LabelUncategorized, 0
}

// CategorizeBatch labels every transaction in place, preserving order. Items
// are independent, so the work runs on a bounded pool; a per-item model
// failure only affects that item, which falls back like any other.
func (c *Categorizer) CategorizeBatch(ctx context.Context, txs []store.Transaction) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i := range txs {
		g.Go(func() error {
			label, confidence := c.Categorize(gctx, txs[i].Description, txs[i].Amount)
			txs[i].Category = label
			txs[i].Confidence = confidence
			return nil
		})
	}
	// Workers never return errors; Wait is just the completion barrier.
	_ = g.Wait()
}
