package services

import (
	"strings"
	"testing"
)

func TestCleanExtractedTextRemovesCIDArtifacts(t *testing.T) {
	dirty := "Patient(cid:3) was admitted(cid:127) with chest pain."
	got := CleanExtractedText(dirty)
	if strings.Contains(got, "cid:") {
		t.Errorf("cid artifacts survived: %q", got)
	}
	if !strings.Contains(got, "was admitted") {
		t.Errorf("real text lost: %q", got)
	}
}

func TestCleanExtractedTextCollapsesBlankLines(t *testing.T) {
	dirty := "line one\n\n\n\n\nline two"
	got := CleanExtractedText(dirty)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank-line run survived: %q", got)
	}
	if !strings.Contains(got, "line one") || !strings.Contains(got, "line two") {
		t.Errorf("content lost: %q", got)
	}
}

func TestCleanExtractedTextStripsControlBytes(t *testing.T) {
	dirty := "before\x00after�end"
	got := CleanExtractedText(dirty)
	if strings.ContainsRune(got, 0) || strings.ContainsRune(got, '�') {
		t.Errorf("control bytes survived: %q", got)
	}
}

func TestEvaluateTextQualityProse(t *testing.T) {
	prose := "The patient was admitted with chest pain. An electrocardiogram was " +
		"performed on arrival and showed normal sinus rhythm. Aspirin was given in the " +
		"emergency department and the patient was admitted for observation."
	score := evaluateTextQuality(prose)
	if score < 0.7 {
		t.Errorf("clean prose scored %f", score)
	}
}

func TestEvaluateTextQualityGarbage(t *testing.T) {
	garbage := strings.Repeat("�\x01\x02", 50)
	score := evaluateTextQuality(garbage)
	if score > 0.3 {
		t.Errorf("corrupted text scored %f", score)
	}
}

func TestEvaluateTextQualityTooShort(t *testing.T) {
	if score := evaluateTextQuality("hi"); score != 0.1 {
		t.Errorf("near-empty text scored %f", score)
	}
}
