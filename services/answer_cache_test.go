package services

import (
	"strings"
	"testing"
)

func TestAnswerKeyDeterministic(t *testing.T) {
	a := answerKey("user1", "What dose of aspirin?")
	b := answerKey("user1", "What dose of aspirin?")
	if a != b {
		t.Fatal("same inputs must produce the same key")
	}
}

func TestAnswerKeyIsolatesUsers(t *testing.T) {
	a := answerKey("user1", "What dose of aspirin?")
	b := answerKey("user2", "What dose of aspirin?")
	if a == b {
		t.Fatal("different users must not share cache entries")
	}
}

func TestAnswerKeyHidesQuestionText(t *testing.T) {
	question := "Does the patient have diabetes?"
	key := answerKey("user1", question)
	if strings.Contains(key, "diabetes") {
		t.Fatalf("question text leaked into cache key: %q", key)
	}
	if !strings.HasPrefix(key, "answer:") {
		t.Errorf("unexpected key shape: %q", key)
	}
}

func TestAnswerKeySeparatorInjection(t *testing.T) {
	// "ab" + "c" and "a" + "bc" must hash differently.
	if answerKey("ab", "c") == answerKey("a", "bc") {
		t.Fatal("key derivation is ambiguous across user/question boundary")
	}
}
