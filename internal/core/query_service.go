package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finquery/internal/config"
	"finquery/internal/store"
)

// Context caps: however large the dataset, at most this many retrieved
// transactions plus one aggregate block reach the generative model. This
// bounds both hallucination surface and prompt size.
const maxContextTransactions = 5

const (
	noteSemanticUnavailable   = "semantic search unavailable"
	noteGenerationUnavailable = "generated answer unavailable; showing computed summary"
)

// Answer is the router's terminal output: the answer text plus the ids of the
// transactions actually used, so callers can display provenance.
type Answer struct {
	Text           string     `json:"answer"`
	TransactionIDs []string   `json:"transaction_ids,omitempty"`
	Intent         IntentKind `json:"intent"`
	Note           string     `json:"note,omitempty"`
	NoMatch        bool       `json:"no_match,omitempty"`
}

// QueryService routes one question through parse → intent → gather →
// synthesize → respond. It owns no data; it only reads the session.
type QueryService struct {
	generator Generator
	labels    []string
	topK      int
	now       func() time.Time
	log       zerolog.Logger
}

func NewQueryService(generator Generator, cfg config.Config, log zerolog.Logger) *QueryService {
	return &QueryService{
		generator: generator,
		labels:    cfg.CategoryLabels,
		topK:      cfg.RetrievalTopK,
		now:       time.Now,
		log:       log,
	}
}

func (s *QueryService) Answer(ctx context.Context, sess *Session, question string) (*Answer, error) {
	intent := ParseQuestion(question, s.labels, s.now())
	transactions := sess.Transactions()
	filtered := FilterTransactions(transactions, intent.Filters)

	// Nothing matches: report directly, never call the generative model for
	// data that does not exist.
	if len(filtered) == 0 {
		return &Answer{
			Text:    "No transactions match your question.",
			Intent:  intent.Kind,
			NoMatch: true,
		}, nil
	}

	answer := &Answer{Intent: intent.Kind}
	var contextParts []string
	var aggregate *AggregateResult

	switch intent.Kind {
	case IntentAggregate:
		agg := Aggregate(filtered, intent.Aggregation)
		aggregate = &agg
		contextParts = append(contextParts, transactionContext(filtered), agg.ContextBlock())
		answer.TransactionIDs = agg.TransactionIDs

	case IntentSemantic, IntentHybrid:
		retrieved, err := s.retrieve(ctx, sess, intent, transactions)
		if err != nil {
			// Degrade to structured-only answering rather than failing the
			// whole question.
			s.log.Warn().Err(err).Msg("vector index query failed, degrading to aggregate context")
			answer.Note = noteSemanticUnavailable
			agg := Aggregate(filtered, intent.Aggregation)
			aggregate = &agg
			contextParts = append(contextParts, transactionContext(filtered), agg.ContextBlock())
			answer.TransactionIDs = agg.TransactionIDs
			break
		}

		contextParts = append(contextParts, transactionContext(retrieved))
		for _, t := range retrieved {
			answer.TransactionIDs = append(answer.TransactionIDs, t.ID)
		}
		if intent.Kind == IntentHybrid {
			agg := Aggregate(filtered, intent.Aggregation)
			aggregate = &agg
			contextParts = append(contextParts, agg.ContextBlock())
		}
	}

	groundingContext := strings.Join(contextParts, "\n\n")
	text, err := s.generator.Generate(ctx, question, groundingContext)
	if err != nil {
		if aggregate != nil {
			// The facts are already computed; answer deterministically.
			s.log.Warn().Err(err).Msg("generation failed, returning rule-based answer")
			answer.Text = aggregate.FallbackAnswer()
			answer.Note = joinNotes(answer.Note, noteGenerationUnavailable)
			return answer, nil
		}
		return nil, err
	}

	answer.Text = text
	return answer, nil
}

// retrieve runs the similarity query and resolves hits back to transactions,
// keeping at most maxContextTransactions for the grounding context.
func (s *QueryService) retrieve(ctx context.Context, sess *Session, intent QueryIntent, transactions []store.Transaction) ([]store.Transaction, error) {
	text := intent.SemanticText
	if text == "" {
		text = intent.Filters.describe()
	}

	hits, err := sess.Index().Query(ctx, text, s.topK, intent.Filters)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]store.Transaction, len(transactions))
	for _, t := range transactions {
		byID[t.ID] = t
	}

	var retrieved []store.Transaction
	for _, hit := range hits {
		if len(retrieved) == maxContextTransactions {
			break
		}
		if t, ok := byID[hit.TransactionID]; ok {
			retrieved = append(retrieved, t)
		}
	}
	return retrieved, nil
}

// transactionContext renders up to maxContextTransactions transactions as
// grounding lines, oldest first for a stable reading order.
func transactionContext(txs []store.Transaction) string {
	ordered := make([]store.Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})
	if len(ordered) > maxContextTransactions {
		ordered = ordered[:maxContextTransactions]
	}

	var sb strings.Builder
	sb.WriteString("Relevant transactions:\n")
	for _, t := range ordered {
		fmt.Fprintf(&sb, "- %s: %s $%s (%s)\n",
			t.Date.Format("2006-01-02"), t.Description, t.Amount.Abs().StringFixed(2), t.Category)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// describe gives the index something to embed when a question was pure
// structure ("transactions in January 2024") and left no free text.
func (f Filters) describe() string {
	var parts []string
	if len(f.Categories) > 0 {
		parts = append(parts, strings.Join(f.Categories, " "))
	}
	if f.DateFrom != nil {
		parts = append(parts, "transactions around "+f.DateFrom.Format("January 2006"))
	}
	if len(parts) == 0 {
		return "financial transactions"
	}
	return strings.Join(parts, " ")
}

func joinNotes(existing, added string) string {
	if existing == "" {
		return added
	}
	return existing + "; " + added
}
