package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter       metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	TokensUsed           metric.Int64Counter
	RetrievalDuration    metric.Float64Histogram
	ChunksIndexed        metric.Int64Counter
	DocumentProcessTime  metric.Float64Histogram
	ContextTierCounter   metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("patient-qa-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"rag.retrieval.duration",
		metric.WithDescription("Vector retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"rag.chunks.indexed",
		metric.WithDescription("Total chunks added to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	documentProcessTime, err := meter.Float64Histogram(
		"document.processing.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	contextTierCounter, err := meter.Int64Counter(
		"rag.context.tier",
		metric.WithDescription("Answers grouped by context tier"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		RetrievalDuration:   retrievalDuration,
		ChunksIndexed:       chunksIndexed,
		DocumentProcessTime: documentProcessTime,
		ContextTierCounter:  contextTierCounter,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordRetrieval records a vector search, tagged with the backend that
// served it.
func (m *Metrics) RecordRetrieval(backend string, duration float64, results int) {
	attrs := []attribute.KeyValue{
		attribute.String("rag.backend", backend),
		attribute.Int("rag.results", results),
	}

	m.RetrievalDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordChunksIndexed records chunks entering the index
func (m *Metrics) RecordChunksIndexed(count int64, backend string) {
	attrs := []attribute.KeyValue{
		attribute.String("rag.backend", backend),
	}

	m.ChunksIndexed.Add(context.Background(), count, metric.WithAttributes(attrs...))
}

// RecordDocumentProcessing records document ingestion metrics
func (m *Metrics) RecordDocumentProcessing(duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("document.status", status),
		attribute.String("service", "document_processor"),
	}

	m.DocumentProcessTime.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordContextTier records which context tier an answer used
func (m *Metrics) RecordContextTier(tier string) {
	attrs := []attribute.KeyValue{
		attribute.String("rag.tier", tier),
	}

	m.ContextTierCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
