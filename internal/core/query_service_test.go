package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"finquery/internal/store"
)

func newTestQueryService(gen *fakeGenerator) *QueryService {
	svc := NewQueryService(gen, testConfig(), zerolog.Nop())
	svc.now = func() time.Time { return mustDate("2024-06-15") }
	return svc
}

func newTestSession(t *testing.T, emb *fakeEmbedder, txs []store.Transaction) *Session {
	t.Helper()
	sess := &Session{ID: "test-session", index: NewVectorIndex(emb, 0, zerolog.Nop())}
	for _, transaction := range txs {
		if err := sess.index.Index(context.Background(), transaction); err != nil && !emb.fail {
			t.Fatalf("index %s: %v", transaction.ID, err)
		}
	}
	sess.transactions = txs
	sess.ready.Store(true)
	return sess
}

func TestAnswer_NoMatchSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{response: "should not be used"}
	svc := newTestQueryService(gen)
	sess := newTestSession(t, &fakeEmbedder{}, []store.Transaction{
		tx("1", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
	})

	answer, err := svc.Answer(context.Background(), sess, "How much did I spend in March 2023?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answer.NoMatch {
		t.Fatal("expected a no-match answer")
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator called %d times for empty result set", gen.callCount())
	}
	if len(answer.TransactionIDs) != 0 {
		t.Fatalf("no-match answer cited ids: %v", answer.TransactionIDs)
	}
}

func TestAnswer_AggregateQuestion(t *testing.T) {
	gen := &fakeGenerator{response: "You spent $5.75 on dining in January 2024."}
	svc := newTestQueryService(gen)
	sess := newTestSession(t, &fakeEmbedder{}, []store.Transaction{
		tx("1", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
		tx("2", "2024-02-10", "SHELL GAS", "-40.00", "Transportation"),
	})

	answer, err := svc.Answer(context.Background(), sess, "How much did I spend on dining in January 2024?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Intent != IntentAggregate {
		t.Fatalf("intent = %s, want %s", answer.Intent, IntentAggregate)
	}
	if answer.Text != gen.response {
		t.Fatalf("answer text = %q", answer.Text)
	}
	if len(answer.TransactionIDs) != 1 || answer.TransactionIDs[0] != "1" {
		t.Fatalf("cited ids = %v, want [1]", answer.TransactionIDs)
	}

	grounding := gen.context()
	if !strings.Contains(grounding, "STARBUCKS #123") {
		t.Fatalf("grounding context missing transaction line:\n%s", grounding)
	}
	if !strings.Contains(grounding, "Total expenses: $5.75") {
		t.Fatalf("grounding context missing computed summary:\n%s", grounding)
	}
	if strings.Contains(grounding, "SHELL GAS") {
		t.Fatalf("out-of-filter transaction leaked into context:\n%s", grounding)
	}
}

func TestAnswer_SemanticCitesRetrieved(t *testing.T) {
	gen := &fakeGenerator{response: "You bought coffee at Starbucks."}
	svc := newTestQueryService(gen)
	sess := newTestSession(t, &fakeEmbedder{}, []store.Transaction{
		tx("1", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
		tx("2", "2024-02-10", "SHELL GAS", "-40.00", "Transportation"),
	})

	answer, err := svc.Answer(context.Background(), sess, "What did I buy similar to Starbucks?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Intent != IntentSemantic {
		t.Fatalf("intent = %s, want %s", answer.Intent, IntentSemantic)
	}
	if len(answer.TransactionIDs) == 0 || answer.TransactionIDs[0] != "1" {
		t.Fatalf("cited ids = %v, want the starbucks transaction first", answer.TransactionIDs)
	}
}

func TestAnswer_DegradesWhenEmbeddingFails(t *testing.T) {
	gen := &fakeGenerator{response: "Based on the summary, you bought coffee."}
	svc := newTestQueryService(gen)
	sess := newTestSession(t, &fakeEmbedder{fail: true}, []store.Transaction{
		tx("1", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
	})

	answer, err := svc.Answer(context.Background(), sess, "What did I buy similar to Starbucks?")
	if err != nil {
		t.Fatalf("expected degraded answer, got error: %v", err)
	}
	if answer.Note != "semantic search unavailable" {
		t.Fatalf("note = %q", answer.Note)
	}
	if answer.Text != gen.response {
		t.Fatalf("answer text = %q", answer.Text)
	}
	if !strings.Contains(gen.context(), "Computed summary:") {
		t.Fatalf("degraded context should carry the aggregate block:\n%s", gen.context())
	}
}

func TestAnswer_GenerationFailureFallsBackToComputed(t *testing.T) {
	gen := &fakeGenerator{err: &ModelUnavailableError{Capability: "generation"}}
	svc := newTestQueryService(gen)
	sess := newTestSession(t, &fakeEmbedder{}, []store.Transaction{
		tx("1", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
	})

	answer, err := svc.Answer(context.Background(), sess, "How much did I spend in January 2024?")
	if err != nil {
		t.Fatalf("expected fallback answer, got error: %v", err)
	}
	if answer.Text != "You spent $5.75 across 1 matching transactions." {
		t.Fatalf("fallback text = %q", answer.Text)
	}
	if !strings.Contains(answer.Note, "generated answer unavailable") {
		t.Fatalf("note = %q", answer.Note)
	}
	if len(answer.TransactionIDs) != 1 || answer.TransactionIDs[0] != "1" {
		t.Fatalf("cited ids = %v", answer.TransactionIDs)
	}
}

func TestAnswer_HybridCombinesRetrievalAndAggregate(t *testing.T) {
	gen := &fakeGenerator{response: "Your average coffee purchase was about $6."}
	svc := newTestQueryService(gen)
	sess := newTestSession(t, &fakeEmbedder{}, []store.Transaction{
		tx("1", "2024-01-05", "STARBUCKS #123", "-5.75", "Food & Dining"),
		tx("2", "2024-03-02", "STARBUCKS #978", "-6.25", "Food & Dining"),
	})

	answer, err := svc.Answer(context.Background(), sess, "average spent on coffee this year")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Intent != IntentHybrid {
		t.Fatalf("intent = %s, want %s", answer.Intent, IntentHybrid)
	}

	grounding := gen.context()
	if !strings.Contains(grounding, "Relevant transactions:") || !strings.Contains(grounding, "Computed summary:") {
		t.Fatalf("hybrid context should carry retrieval and summary:\n%s", grounding)
	}
	if !strings.Contains(grounding, "Average transaction: $6.00") {
		t.Fatalf("average missing from context:\n%s", grounding)
	}
}

func TestAnswer_ContextCappedAtFive(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	svc := newTestQueryService(gen)

	txs := []store.Transaction{
		tx("1", "2024-01-01", "COFFEE A", "-1.00", "Food & Dining"),
		tx("2", "2024-01-02", "COFFEE B", "-2.00", "Food & Dining"),
		tx("3", "2024-01-03", "COFFEE C", "-3.00", "Food & Dining"),
		tx("4", "2024-01-04", "COFFEE D", "-4.00", "Food & Dining"),
		tx("5", "2024-01-05", "COFFEE E", "-5.00", "Food & Dining"),
		tx("6", "2024-01-06", "COFFEE F", "-6.00", "Food & Dining"),
		tx("7", "2024-01-07", "COFFEE G", "-7.00", "Food & Dining"),
	}
	sess := newTestSession(t, &fakeEmbedder{}, txs)

	answer, err := svc.Answer(context.Background(), sess, "How much did I spend in January 2024?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// All transactions are cited for the computed total, but only the first
	// five lines reach the model.
	if len(answer.TransactionIDs) != 7 {
		t.Fatalf("cited ids = %v", answer.TransactionIDs)
	}
	lines := 0
	for _, line := range strings.Split(gen.context(), "\n") {
		if strings.HasPrefix(line, "- 2024-") {
			lines++
		}
	}
	if lines != 5 {
		t.Fatalf("context carried %d transaction lines, want 5:\n%s", lines, gen.context())
	}
	if strings.Contains(gen.context(), "COFFEE G") {
		t.Fatalf("newest transaction should fall outside the capped context:\n%s", gen.context())
	}
}
