package services

import (
	"encoding/json"
	"strings"
	"testing"

	"patient-qa-platform/models"
)

func TestRecordLineParsing(t *testing.T) {
	line := `{"hadm_id":"100375","age":"67","gender":"M","diagnosis":"CAD","medications":"aspirin 81mg","discharge_note":"Stable at discharge."}`
	var rec recordLine
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.HadmID != "100375" || rec.Medications != "aspirin 81mg" {
		t.Errorf("bad parse: %+v", rec)
	}
}

func TestRenderRecord(t *testing.T) {
	rec := &models.PatientRecord{
		HadmID:      "100375",
		Age:         "67",
		Diagnosis:   "Coronary artery disease",
		Medications: "Aspirin 81mg daily",
	}
	text := renderRecord(rec)
	for _, want := range []string{"Admission: 100375", "Diagnosis: Coronary artery disease", "Medications: Aspirin 81mg daily"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered record missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Gender:") {
		t.Errorf("empty fields should be omitted:\n%s", text)
	}
	// Sections are separated so the chunker can break between them.
	if !strings.Contains(text, "\n\n") {
		t.Errorf("sections not separated:\n%s", text)
	}
}

func TestRenderRecordEmpty(t *testing.T) {
	if got := renderRecord(&models.PatientRecord{}); got != "" {
		t.Errorf("empty record rendered %q", got)
	}
}
