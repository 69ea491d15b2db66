package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	// Every capability call gets this timeout per attempt, and one retry.
	capabilityTimeout = 20 * time.Second

	answerSystemInstruction = "You are a personal finance assistant. Answer the user's question using ONLY the " +
		"transaction data provided in the context. Cite specific amounts, dates and categories from the context. " +
		"If the context does not contain the information needed, clearly state that the data does not cover it. " +
		"Never invent transactions, amounts or dates that are not in the context."

	classifySystemInstruction = "You classify bank transaction descriptions into spending categories. " +
		"Given a description and a list of allowed category labels, score every label between 0 and 1 by how well " +
		"it fits. Respond with a JSON array of objects {\"label\": string, \"score\": number}, nothing else. " +
		"Only use labels from the provided list."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for financial analysis " +
		"sessions. The title should be 3-5 words maximum. Just return the title itself, nothing else."
)

// LLMService is the Gemini-backed implementation of the Embedder,
// ZeroShotClassifier and Generator capabilities.
type LLMService struct {
	client *genai.Client
	log    zerolog.Logger
}

func NewLLMService(ctx context.Context, apiKey string, log zerolog.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, log: log}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn().Err(err).Msg("error closing GenAI client")
		}
	}
}

// withRetry runs fn with a per-attempt timeout and retries once. Repeated
// failure surfaces to the caller instead of retrying indefinitely.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, capabilityTimeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

// Embed implements the Embedder capability.
func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	var values []float32
	err := withRetry(ctx, func(ctx context.Context) error {
		em := s.client.EmbeddingModel(defaultEmbeddingModelName)
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return fmt.Errorf("no embedding data received")
		}
		values = res.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, &ModelUnavailableError{Capability: "embedding", Err: err}
	}
	return values, nil
}

// ClassifyZeroShot implements the ZeroShotClassifier capability by asking the
// generative model for a JSON-ranked score per label.
func (s *LLMService) ClassifyZeroShot(ctx context.Context, text string, labels []string) ([]LabelScore, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(classifySystemInstruction)},
	}

	temp := float32(0.0)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}

	prompt := fmt.Sprintf("Description: %q\nAllowed labels: %s", text, strings.Join(labels, ", "))

	var scores []LabelScore
	err := withRetry(ctx, func(ctx context.Context) error {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return err
		}
		raw := responseText(resp)
		if raw == "" {
			return fmt.Errorf("empty classification response")
		}
		parsed, err := parseLabelScores(raw, labels)
		if err != nil {
			return err
		}
		scores = parsed
		return nil
	})
	if err != nil {
		return nil, &ModelUnavailableError{Capability: "classification", Err: err}
	}
	return scores, nil
}

// parseLabelScores decodes the model's JSON output, drops labels outside the
// allowed set, clamps scores into [0,1] and sorts descending.
func parseLabelScores(raw string, labels []string) ([]LabelScore, error) {
	var scores []LabelScore
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &scores); err != nil {
		return nil, fmt.Errorf("malformed classification JSON: %w", err)
	}

	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}

	valid := scores[:0]
	for _, ls := range scores {
		if !allowed[ls.Label] {
			continue
		}
		if ls.Score < 0 {
			ls.Score = 0
		}
		if ls.Score > 1 {
			ls.Score = 1
		}
		valid = append(valid, ls)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("classification returned no usable labels")
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Score > valid[j].Score })
	return valid, nil
}

// Generate implements the Generator capability. The grounding context is the
// only data the model is allowed to answer from.
func (s *LLMService) Generate(ctx context.Context, question, groundingContext string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(answerSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(500)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nQuestion: %s", groundingContext, question)

	var answer string
	err := withRetry(ctx, func(ctx context.Context) error {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return err
		}
		answer = responseText(resp)
		if answer == "" {
			return fmt.Errorf("empty generation response")
		}
		return nil
	})
	if err != nil {
		return "", &ModelUnavailableError{Capability: "generation", Err: err}
	}
	return answer, nil
}

// GenerateSessionTitle produces a short display title from the first question
// asked in a session.
func (s *LLMService) GenerateSessionTitle(ctx context.Context, seed string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a financial analysis session that starts with: %q.", seed)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("title generation request failed: %w", err)
	}

	title := responseText(resp)
	if title == "" {
		return "", fmt.Errorf("model generated an empty title")
	}
	return strings.Trim(title, "\"'\n\r\t ."), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
