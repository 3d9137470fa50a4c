package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"patient-qa-platform/internal/rag"
)

func TestBuildAnswerPromptDocumentTier(t *testing.T) {
	block := rag.ContextBlock{
		Text: "[Source 1: report #0]\nAspirin 81mg daily",
		Tier: rag.TierDocument,
	}
	prompt := BuildAnswerPrompt("What dose of aspirin?", block)
	if !strings.Contains(prompt, "Aspirin 81mg daily") {
		t.Error("prompt missing document content")
	}
	if !strings.Contains(prompt, "What dose of aspirin?") {
		t.Error("prompt missing the question")
	}
	if !strings.Contains(prompt, "Answer based on the document content") {
		t.Error("document tier should instruct answering from the document")
	}
}

func TestBuildAnswerPromptMixedTier(t *testing.T) {
	for _, tier := range []rag.Tier{rag.TierMixed, rag.TierSampled} {
		block := rag.ContextBlock{Text: "some context", Tier: tier}
		prompt := BuildAnswerPrompt("question", block)
		if !strings.Contains(prompt, "may be partially relevant") {
			t.Errorf("tier %q should flag partially relevant context", tier)
		}
	}
}

func TestBuildAnswerPromptGeneralTier(t *testing.T) {
	block := rag.ContextBlock{Tier: rag.TierNone}
	prompt := BuildAnswerPrompt("What is hypertension?", block)
	if !strings.Contains(prompt, "general medical knowledge") {
		t.Error("general tier should fall back to general knowledge")
	}
	if strings.Contains(prompt, "DOCUMENT CONTENT") {
		t.Error("general tier prompt should not reference a document")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("estimateTokens = %d, want 100", got)
	}
	if got := estimateTokens(""); got != 0 {
		t.Errorf("estimateTokens(\"\") = %d", got)
	}
}

func TestGetRateLimits(t *testing.T) {
	free := getRateLimits("free")
	tier1 := getRateLimits("tier1")
	if free.RPM >= tier1.RPM {
		t.Errorf("free RPM %d should be below tier1 RPM %d", free.RPM, tier1.RPM)
	}
	unknown := getRateLimits("nonsense")
	if unknown != free {
		t.Errorf("unknown tier should fall back to free limits")
	}
}

func TestTokenCounterLimits(t *testing.T) {
	now := time.Now()
	tc := &TokenCounter{lastMinuteReset: now, lastDayReset: now}
	limits := RateLimits{RPM: 2, TPM: 1000, RPD: 10}

	if !tc.CanConsume(100, 1, limits) {
		t.Fatal("fresh counter should allow a request")
	}
	tc.RecordUsage(100, 1)
	tc.RecordUsage(100, 1)

	if tc.CanConsume(100, 1, limits) {
		t.Error("RPM limit should block the third request in the window")
	}
	if tc.CanConsume(950, 0, limits) {
		t.Error("TPM limit should block an oversized token spend")
	}
}

func TestAnswerQuestionOpenBreakerReturnsError(t *testing.T) {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
	for i := 0; i < 3; i++ {
		breaker.Execute(func() (interface{}, error) {
			return nil, errors.New("upstream failure")
		})
	}
	if breaker.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", breaker.State())
	}

	now := time.Now()
	gc := &GeminiClient{
		model:        "gemini-2.0-flash",
		breaker:      breaker,
		rateLimiter:  rate.NewLimiter(rate.Inf, 1),
		tokenCounter: &TokenCounter{lastMinuteReset: now, lastDayReset: now},
		tier:         "free",
	}

	answer, tokens, err := gc.AnswerQuestion(context.Background(), "question", rag.ContextBlock{Tier: rag.TierNone})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if answer != "" || tokens != 0 {
		t.Errorf("got answer %q tokens %d, want empty answer and zero tokens", answer, tokens)
	}
}
