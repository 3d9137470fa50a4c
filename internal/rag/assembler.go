package rag

import (
	"fmt"
	"math/rand"
	"strings"
)

// Tier classifies how much document support the assembled context carries.
// The generation layer picks its prompt (and how much to hedge) from this.
type Tier string

const (
	// TierDocument: at least one result cleared the strong-match threshold.
	TierDocument Tier = "document"
	// TierMixed: results exist but none is a strong match; generation
	// should blend document content with general knowledge.
	TierMixed Tier = "document_and_knowledge"
	// TierSampled: retrieval found nothing, but the corpus is non-empty;
	// a small random sample of chunks stands in as generic context.
	TierSampled Tier = "sampled"
	// TierNone: no chunks loaded at all.
	TierNone Tier = "general_knowledge"
)

// Source attributes one context excerpt back to its chunk.
type Source struct {
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Preview      string  `json:"preview"`
	Score        float32 `json:"score,omitempty"`
}

// ContextBlock is the assembled handoff to the generation layer.
type ContextBlock struct {
	Text    string
	Sources []Source
	Tier    Tier
}

// Assembler converts retrieval results into a bounded, labeled context
// block. Each excerpt is prefixed with a source tag so downstream
// generation can attribute claims.
type Assembler struct {
	strongMatch float32
	weakTop     int
	sampleSize  int
	maxChars    int
	previewLen  int
	rnd         *rand.Rand
}

// NewAssembler configures the tiering policy. strongMatch is the score
// above which a result counts as a real document match; maxChars caps the
// assembled context to respect the downstream prompt budget.
func NewAssembler(strongMatch float32, maxChars int) *Assembler {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Assembler{
		strongMatch: strongMatch,
		weakTop:     3,
		sampleSize:  3,
		maxChars:    maxChars,
		previewLen:  200,
		rnd:         rand.New(rand.NewSource(rand.Int63())),
	}
}

// Assemble builds the context block from retrieval results. corpus is the
// full chunk pool, consulted only for the sampled fallback when results is
// empty but chunks exist.
func (a *Assembler) Assemble(results []Result, corpus []Chunk) ContextBlock {
	strong := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score > a.strongMatch {
			strong = append(strong, r)
		}
	}

	switch {
	case len(strong) > 0:
		return a.fromResults(strong, TierDocument)
	case len(results) > 0:
		top := results
		if len(top) > a.weakTop {
			top = top[:a.weakTop]
		}
		return a.fromResults(top, TierMixed)
	case len(corpus) > 0:
		return a.fromSample(corpus)
	default:
		return ContextBlock{Tier: TierNone}
	}
}

func (a *Assembler) fromResults(results []Result, tier Tier) ContextBlock {
	var b strings.Builder
	sources := make([]Source, 0, len(results))
	for i, r := range results {
		tag := fmt.Sprintf("[Source %d: %s #%d]", i+1, r.Chunk.DocumentName, r.Chunk.Index)
		wrote, more := a.write(&b, tag, r.Chunk.Text)
		if wrote {
			sources = append(sources, Source{
				DocumentName: r.Chunk.DocumentName,
				ChunkIndex:   r.Chunk.Index,
				Preview:      truncate(r.Chunk.Text, a.previewLen),
				Score:        r.Score,
			})
		}
		if !more {
			break
		}
	}
	return ContextBlock{Text: b.String(), Sources: sources, Tier: tier}
}

func (a *Assembler) fromSample(corpus []Chunk) ContextBlock {
	n := a.sampleSize
	if n > len(corpus) {
		n = len(corpus)
	}
	picks := a.rnd.Perm(len(corpus))[:n]

	var b strings.Builder
	sources := make([]Source, 0, n)
	for _, idx := range picks {
		c := corpus[idx]
		tag := fmt.Sprintf("[From document: %s #%d]", c.DocumentName, c.Index)
		wrote, more := a.write(&b, tag, c.Text)
		if wrote {
			sources = append(sources, Source{
				DocumentName: c.DocumentName,
				ChunkIndex:   c.Index,
				Preview:      truncate(c.Text, a.previewLen),
			})
		}
		if !more {
			break
		}
	}
	return ContextBlock{Text: b.String(), Sources: sources, Tier: TierSampled}
}

// write appends one tagged excerpt unless it would blow the budget.
// Reports whether the excerpt was written (possibly truncated) and whether
// there is room for more.
func (a *Assembler) write(b *strings.Builder, tag, text string) (wrote, more bool) {
	sep := ""
	if b.Len() > 0 {
		sep = "\n\n"
	}
	if b.Len()+len(sep)+len(tag)+1+len(text) > a.maxChars {
		// First excerpt gets truncated rather than dropped so a single
		// oversized chunk cannot empty the context. The ellipsis counts
		// against the budget too.
		if b.Len() == 0 {
			remaining := a.maxChars - len(tag) - 1 - len("...")
			if remaining > 0 {
				b.WriteString(tag)
				b.WriteString("\n")
				b.WriteString(truncate(text, remaining))
				return true, false
			}
		}
		return false, false
	}
	b.WriteString(sep)
	b.WriteString(tag)
	b.WriteString("\n")
	b.WriteString(text)
	return true, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
