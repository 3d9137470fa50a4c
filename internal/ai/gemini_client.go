package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"patient-qa-platform/internal/rag"

	genai "github.com/google/generative-ai-go/genai"
)

// GeminiClient wraps the Gemini generation API with a circuit breaker,
// client-side rate limiting and token accounting. One client is constructed
// at process start and shared.
type GeminiClient struct {
	apiKey       string
	model        string
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	tier         string
}

// ErrModelUnavailable is returned while the circuit breaker is open and no
// generation request was attempted. Callers must not treat it as an answer.
var ErrModelUnavailable = errors.New("model temporarily unavailable")

type TokenCounter struct {
	mu              sync.Mutex
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(apiKey, model, tier string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY for generation")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10)

	return &GeminiClient{
		apiKey:       apiKey,
		model:        model,
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{},
		client:       client,
		tier:         tier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// AnswerQuestion generates an answer to a patient's question conditioned on
// the assembled document context. The prompt hedges according to the
// context tier: strong matches answer from the document, weak matches blend
// in general knowledge, and an empty context falls back to general
// knowledge alone. Returns the answer text and the tokens consumed.
func (gc *GeminiClient) AnswerQuestion(ctx context.Context, question string, block rag.ContextBlock) (string, int, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.answer_question")
	defer span.End()

	prompt := BuildAnswerPrompt(question, block)

	estimatedTokens := estimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.context_tier", string(block.Tier)),
		attribute.Int("gemini.context_sources", len(block.Sources)),
		attribute.String("gemini.model", gc.model),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1, getRateLimits(gc.tier)) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, errors.New("rate limit exceeded: wait before retry")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.3)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		return resp, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", 0, ErrModelUnavailable
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", 0, err
	}

	resp := result.(*genai.GenerateContentResponse)
	answer := extractText(resp)
	if answer == "" {
		return "", 0, errors.New("empty response from model")
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return answer, extractTokenUsage(resp), nil
}

// Summarize produces a medical-document summary of the given text.
func (gc *GeminiClient) Summarize(ctx context.Context, text string) (string, int, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.summarize")
	defer span.End()

	prompt := BuildSummaryPrompt(text)
	if !gc.tokenCounter.CanConsume(estimateTokens(prompt), 1, getRateLimits(gc.tier)) {
		return "", 0, errors.New("rate limit exceeded: wait before retry")
	}
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return "", 0, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.4)
		model.SetMaxOutputTokens(2048)
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return "", 0, ErrModelUnavailable
		}
		return "", 0, err
	}

	resp := result.(*genai.GenerateContentResponse)
	summary := extractText(resp)
	if summary == "" {
		return "", 0, errors.New("empty response from model")
	}
	gc.tokenCounter.RecordUsage(extractTokenUsage(resp), 1)
	return summary, extractTokenUsage(resp), nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int, limits RateLimits) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// BuildAnswerPrompt assembles the tier-specific Q&A prompt. Exported so the
// prompt shape is testable without a live API key.
func BuildAnswerPrompt(question string, block rag.ContextBlock) string {
	switch block.Tier {
	case rag.TierDocument:
		return fmt.Sprintf(`You are a helpful medical assistant. The user is asking about their medical report.

Answer based on the document content below. If the document doesn't contain enough information, you may supplement with general medical knowledge, but clearly indicate what comes from the document vs. general knowledge.

DOCUMENT CONTENT:
%s

USER QUESTION: %s

ANSWER:`, block.Text, question)

	case rag.TierMixed, rag.TierSampled:
		return fmt.Sprintf(`You are a helpful medical assistant. The user has asked a question about their medical report.

The document content below may or may not directly answer the question. Please:
1. First try to answer based on the document if relevant
2. If the document doesn't contain the answer, use your general medical knowledge to help
3. Clearly indicate when you're using general knowledge vs. document information

DOCUMENT CONTENT (may be partially relevant):
%s

USER QUESTION: %s

ANSWER:`, block.Text, question)

	default:
		return fmt.Sprintf(`You are a helpful medical assistant.

The user has asked a medical question. Please answer using general medical knowledge. Be clear, accurate, and helpful.

USER QUESTION: %s

ANSWER:`, question)
	}
}

// BuildSummaryPrompt assembles the document-summary prompt.
func BuildSummaryPrompt(text string) string {
	return fmt.Sprintf(`You are a helpful medical assistant.

Provide a comprehensive summary of this medical document. Focus on:
1. Key diagnoses and findings
2. Important test results or measurements
3. Recommendations or treatment plans
4. Any critical alerts or abnormal values

Document:
%s

Summary:`, text)
}

// Rough token estimation: 1 token is about 4 characters for Gemini.
func estimateTokens(prompt string) int {
	return len(prompt) / 4
}

// Extract token usage from a Gemini response, falling back to estimation.
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	estimated := len(extractText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func extractText(resp *genai.GenerateContentResponse) string {
	total := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					total += string(text)
				}
			}
		}
	}
	return total
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
