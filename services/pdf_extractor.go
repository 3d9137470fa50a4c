package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"patient-qa-platform/internal/config"
	"patient-qa-platform/internal/logger"
)

// PDFExtractor handles PDF text extraction for medical documents.
type PDFExtractor struct {
	config *config.Config
}

func NewPDFExtractor(cfg *config.Config) *PDFExtractor {
	return &PDFExtractor{config: cfg}
}

// ExtractionResult contains the result of PDF text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	Method         string
	QualityScore   float64
	ProcessingTime time.Duration
	WordCount      int
	CharacterCount int
}

// cidArtifact matches the (cid:N) glyph references some PDF producers
// leave in extracted text.
var cidArtifact = regexp.MustCompile(`\(cid:\d+\)`)

// ExtractText extracts text from a PDF, trying the native reader first and
// falling back to pdftotext when quality is poor.
func (e *PDFExtractor) ExtractText(ctx context.Context, filePath string) (*ExtractionResult, error) {
	start := time.Now()

	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) <= 0 {
			return nil, fmt.Errorf("context deadline exceeded before extraction")
		}
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > 100<<20 { // in-memory extraction cap
		return nil, fmt.Errorf("pdf too large for in-memory extraction")
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}

	methods := []struct {
		name    string
		extract func(context.Context, []byte) (*ExtractionResult, error)
	}{
		{"go-pdf", e.extractWithGoPDF},
		{"poppler", e.extractWithPoppler},
	}

	var lastErr error
	var bestResult *ExtractionResult

	for _, method := range methods {
		result, err := method.extract(ctx, content)
		if err != nil {
			logger.Debug("extraction method failed", "method", method.name, "error", err.Error())
			lastErr = err
			continue
		}

		result.Text = CleanExtractedText(result.Text)
		result.Method = method.name
		result.ProcessingTime = time.Since(start)
		result.QualityScore = evaluateTextQuality(result.Text)
		analyzeText(result)

		logger.Debug("extraction finished", "method", method.name, "chars", len(result.Text), "quality", result.QualityScore)

		if result.QualityScore >= 0.7 {
			return result, nil
		}

		if bestResult == nil || result.QualityScore > bestResult.QualityScore {
			bestResult = result
		}
	}

	if bestResult != nil && bestResult.QualityScore >= 0.3 {
		return bestResult, nil
	}

	return nil, fmt.Errorf("all extraction methods failed: %v", lastErr)
}

// extractWithGoPDF uses the Go PDF library for extraction
func (e *PDFExtractor) extractWithGoPDF(ctx context.Context, content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("failed to extract page text", "page", i, "error", err.Error())
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	extractedText := textBuilder.String()
	if len(strings.TrimSpace(extractedText)) == 0 {
		return nil, fmt.Errorf("no text extracted by go-pdf")
	}

	return &ExtractionResult{
		Text:  extractedText,
		Pages: pages,
	}, nil
}

// extractWithPoppler uses poppler-utils (pdftotext) for extraction
func (e *PDFExtractor) extractWithPoppler(ctx context.Context, content []byte) (*ExtractionResult, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	extractedText := stdout.String()
	if len(extractedText) == 0 {
		return nil, fmt.Errorf("no text extracted by pdftotext")
	}

	return &ExtractionResult{
		Text:  extractedText,
		Pages: strings.Count(extractedText, "\f") + 1,
	}, nil
}

// CleanExtractedText strips extraction artifacts: (cid:N) glyph
// references, null bytes, and runs of blank lines.
func CleanExtractedText(text string) string {
	text = cidArtifact.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "�", "")

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 2 {
				continue
			}
		} else {
			blank = 0
		}
		cleaned = append(cleaned, strings.TrimRight(line, " \t"))
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// evaluateTextQuality scores extracted text on a 0..1 scale. High
// corruption (replacement characters, non-text glyphs) drags the score
// down, readable prose pushes it up.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int

	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		case r > 127:
			printable++
		default:
			corrupted++
		}
	}

	total := len([]rune(text))
	alphanumericRatio := float64(alphanumeric) / float64(total)
	printableRatio := float64(printable) / float64(total)
	corruptedRatio := float64(corrupted) / float64(total)

	score := printableRatio * 0.4
	if alphanumericRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphanumericRatio
	}
	score -= corruptedRatio * 2.0

	if len(text) > 100 {
		score += 0.1
	}
	if hasProsePatterns(text) {
		score += 0.2
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// hasProsePatterns checks for signals of well-extracted running text
func hasProsePatterns(text string) bool {
	patterns := []string{
		`\b[A-Z][a-z]+\b`, // Capitalized words
		`[.!?]\s+[A-Z]`,   // Sentence boundaries
		`\b(the|and|or|of|to|in|for|with|on|at|by|from)\b`,
	}

	good := 0
	for _, pattern := range patterns {
		if matched, _ := regexp.MatchString(pattern, text); matched {
			good++
		}
	}
	return good >= 2
}

func analyzeText(result *ExtractionResult) {
	result.WordCount = len(strings.Fields(result.Text))
	result.CharacterCount = len(result.Text)
}
