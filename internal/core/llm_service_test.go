package core

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetry_SecondAttemptSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestWithRetry_SurfacesAfterSecondFailure(t *testing.T) {
	calls := 0
	wantErr := errors.New("still down")
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want exactly one retry", calls)
	}
}

func TestWithRetry_NoRetryAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, canceled context must not retry", calls)
	}
}

func TestWithRetry_AttemptsGetTheirOwnDeadline(t *testing.T) {
	err := withRetry(context.Background(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLabelScores(t *testing.T) {
	labels := []string{"Food & Dining", "Transportation", "Uncategorized"}
	raw := `[
		{"label": "Transportation", "score": 0.4},
		{"label": "Food & Dining", "score": 1.7},
		{"label": "Pets", "score": 0.9},
		{"label": "Uncategorized", "score": -0.2}
	]`

	scores, err := parseLabelScores(raw, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected the unknown label dropped, got %v", scores)
	}
	if scores[0].Label != "Food & Dining" || scores[0].Score != 1 {
		t.Fatalf("top score not clamped and sorted: %+v", scores[0])
	}
	if scores[2].Label != "Uncategorized" || scores[2].Score != 0 {
		t.Fatalf("negative score not clamped: %+v", scores[2])
	}
}

func TestParseLabelScores_Rejections(t *testing.T) {
	labels := []string{"Food & Dining"}

	if _, err := parseLabelScores("not json", labels); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := parseLabelScores(`[{"label": "Pets", "score": 0.9}]`, labels); err == nil {
		t.Fatal("expected error when no returned label is usable")
	}
}
