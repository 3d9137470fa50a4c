package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/models"
)

// RecordService loads structured hospital-admission records from a
// JSON-lines export and turns them into retrievable documents tagged with
// their admission id.
type RecordService struct {
	db *mongo.Database
}

func NewRecordService(db *mongo.Database) *RecordService {
	return &RecordService{db: db}
}

// recordLine mirrors one line of the JSON-lines export.
type recordLine struct {
	HadmID        string `json:"hadm_id"`
	Age           string `json:"age"`
	Gender        string `json:"gender"`
	Diagnosis     string `json:"diagnosis"`
	Medications   string `json:"medications"`
	Procedures    string `json:"procedures"`
	LabResults    string `json:"lab_results"`
	DischargeNote string `json:"discharge_note"`
}

// LoadFromFile parses the export and upserts each record by admission id.
// Malformed lines are skipped with a warning rather than failing the load.
// Returns the number of records loaded and how many of them were new.
func (rs *RecordService) LoadFromFile(ctx context.Context, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	col := rs.db.Collection("patient_records")

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	loaded := 0
	inserted := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec recordLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logger.Warn("skipping malformed record line", "line", lineNo, "error", err.Error())
			continue
		}
		if rec.HadmID == "" {
			logger.Warn("skipping record without admission id", "line", lineNo)
			continue
		}

		update := bson.M{"$set": models.PatientRecord{
			HadmID:        rec.HadmID,
			Age:           rec.Age,
			Gender:        rec.Gender,
			Diagnosis:     rec.Diagnosis,
			Medications:   rec.Medications,
			Procedures:    rec.Procedures,
			LabResults:    rec.LabResults,
			DischargeNote: rec.DischargeNote,
			LoadedAt:      time.Now(),
		}}
		res, err := col.UpdateOne(ctx, bson.M{"hadm_id": rec.HadmID}, update, options.Update().SetUpsert(true))
		if err != nil {
			return loaded, inserted, fmt.Errorf("failed to upsert record %s: %w", rec.HadmID, err)
		}
		if res.UpsertedCount > 0 {
			inserted++
		}
		loaded++
	}

	if err := scanner.Err(); err != nil {
		return loaded, inserted, fmt.Errorf("failed to read record file: %w", err)
	}

	logger.Info("patient records loaded", "count", loaded, "new", inserted, "path", path)
	return loaded, inserted, nil
}

// Get returns one record by admission id.
func (rs *RecordService) Get(ctx context.Context, hadmID string) (*models.PatientRecord, error) {
	var rec models.PatientRecord
	err := rs.db.Collection("patient_records").FindOne(ctx, bson.M{"hadm_id": hadmID}).Decode(&rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all record admission ids.
func (rs *RecordService) List(ctx context.Context) ([]string, error) {
	cur, err := rs.db.Collection("patient_records").Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"hadm_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			HadmID string `bson:"hadm_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.HadmID)
	}
	return ids, cur.Err()
}

// AsDocuments renders records as retrievable documents. Each record
// becomes one document whose chunks carry the admission id in metadata, so
// retrieval can be filtered to a single admission.
func (rs *RecordService) AsDocuments(ctx context.Context) ([]rag.Document, error) {
	cur, err := rs.db.Collection("patient_records").Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []rag.Document
	for cur.Next(ctx) {
		var rec models.PatientRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		docs = append(docs, rag.Document{
			Name: "record-" + rec.HadmID,
			Text: renderRecord(&rec),
			Meta: map[string]string{"hadm_id": rec.HadmID},
		})
	}
	return docs, cur.Err()
}

// renderRecord flattens a structured record into prose-ish sections the
// chunker can split on.
func renderRecord(rec *models.PatientRecord) string {
	var b strings.Builder
	write := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n\n")
	}

	write("Admission", rec.HadmID)
	write("Age", rec.Age)
	write("Gender", rec.Gender)
	write("Diagnosis", rec.Diagnosis)
	write("Medications", rec.Medications)
	write("Procedures", rec.Procedures)
	write("Lab results", rec.LabResults)
	write("Discharge note", rec.DischargeNote)

	return strings.TrimSpace(b.String())
}
