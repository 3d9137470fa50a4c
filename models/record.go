package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PatientRecord is a structured hospital-admission record loaded from a
// JSON-lines export. HadmID identifies the admission and doubles as the
// metadata filter key during retrieval.
type PatientRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HadmID        string             `bson:"hadm_id" json:"hadm_id"`
	Age           string             `bson:"age,omitempty" json:"age,omitempty"`
	Gender        string             `bson:"gender,omitempty" json:"gender,omitempty"`
	Diagnosis     string             `bson:"diagnosis,omitempty" json:"diagnosis,omitempty"`
	Medications   string             `bson:"medications,omitempty" json:"medications,omitempty"`
	Procedures    string             `bson:"procedures,omitempty" json:"procedures,omitempty"`
	LabResults    string             `bson:"lab_results,omitempty" json:"lab_results,omitempty"`
	DischargeNote string             `bson:"discharge_note,omitempty" json:"discharge_note,omitempty"`
	LoadedAt      time.Time          `bson:"loaded_at" json:"loaded_at"`
}
