package postprocessors

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/sitechat/internal/core/domain"
	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors in order around a Chunker.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
// Input is the raw page text.
// Output is the non-empty chunks ready for embedding, numbered from 0.
func (p *Pipeline) Process(content string) []driven.Chunk {
	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	if strings.TrimSpace(content) == "" {
		return nil
	}

	// Start with a single chunk containing all content
	chunks := []driven.Chunk{
		{
			Content:     content,
			Position:    0,
			StartOffset: 0,
			EndOffset:   len(content),
		},
	}

	for _, proc := range processors {
		chunks = proc.Process(chunks)
	}

	// Positions must stay contiguous whatever the processors dropped
	result := make([]driven.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		chunk.Position = len(result)
		result = append(result, chunk)
	}
	return result
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline creates a pipeline with the default processors.
func DefaultPipeline() *Pipeline {
	return NewPipelineFromConfig(domain.DefaultPipelineConfig().Chunking)
}

// NewPipelineFromConfig creates the ingestion pipeline: whitespace
// normalisation of the page text followed by the chunker.
func NewPipelineFromConfig(cfg domain.ChunkingConfig) *Pipeline {
	p := NewPipeline()
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewChunker(ChunkConfig{
		MaxChunkSize:       cfg.Size,
		Overlap:            cfg.Overlap,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}))
	return p
}

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// MaxChunkSize is the maximum characters per chunk
	MaxChunkSize int

	// Overlap is the character overlap between chunks
	Overlap int

	// PreserveSentences tries to break at sentence boundaries
	PreserveSentences bool

	// PreserveParagraphs tries to break at paragraph boundaries
	PreserveParagraphs bool
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChunkSize:       500,
		Overlap:            128,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

// Chunker splits content into overlapping chunks.
// Chunks are trimmed and never empty.
type Chunker struct {
	config ChunkConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Chunker)(nil)

// NewChunker creates a new chunker with the given config.
func NewChunker(config ChunkConfig) *Chunker {
	if config.MaxChunkSize < 1 {
		config.MaxChunkSize = DefaultChunkConfig().MaxChunkSize
	}
	if config.Overlap < 0 || config.Overlap >= config.MaxChunkSize {
		config.Overlap = 0
	}
	return &Chunker{config: config}
}

// Process splits content into chunks.
func (c *Chunker) Process(chunks []driven.Chunk) []driven.Chunk {
	var result []driven.Chunk
	position := 0

	for _, chunk := range chunks {
		newChunks := c.splitContent(chunk.Content, chunk.StartOffset, &position)
		result = append(result, newChunks...)
	}

	return result
}

// Name returns the processor name.
func (c *Chunker) Name() string {
	return "chunker"
}

// Order returns 0 - chunker runs after text normalisation.
func (c *Chunker) Order() int {
	return 0
}

// splitContent splits content into overlapping, trimmed chunks.
// Window size and overlap count characters; offsets stay byte positions
// and always fall on a character boundary.
func (c *Chunker) splitContent(content string, baseOffset int, position *int) []driven.Chunk {
	var chunks []driven.Chunk
	size := c.config.MaxChunkSize
	start := 0

	for start < len(content) {
		end := advanceRunes(content, start, size)

		if end < len(content) {
			if bp := c.findBreakPoint(content, start, end); bp > start {
				end = bp
			}
		}

		if chunk, ok := trimmedChunk(content, start, end, baseOffset); ok {
			chunk.Position = *position
			chunks = append(chunks, chunk)
			*position++
		}

		if end >= len(content) {
			break
		}

		start = c.nextStart(content, start, end)
	}

	return chunks
}

// nextStart places the next window Overlap characters before end, moved
// forward to the next word start when one lies inside the overlap.
func (c *Chunker) nextStart(content string, start, end int) int {
	next := retreatRunes(content, end, c.config.Overlap)
	if next <= start {
		return end
	}
	if idx := strings.IndexAny(content[next:end], " \n\t"); idx != -1 && next+idx+1 < end {
		next += idx + 1
	}
	return next
}

// findBreakPoint finds the best boundary in the back half of the window:
// paragraph, then sentence, then word. Returns maxEnd for a hard cut.
func (c *Chunker) findBreakPoint(content string, start, maxEnd int) int {
	searchStart := retreatRunes(content, maxEnd, c.config.MaxChunkSize/2)
	// Breaking inside the overlap would stall the window
	if minStart := advanceRunes(content, start, c.config.Overlap+1); searchStart < minStart {
		searchStart = minStart
	}
	if searchStart >= maxEnd {
		return maxEnd
	}

	searchContent := content[searchStart:maxEnd]

	// Try to break at paragraph boundary (double newline)
	if c.config.PreserveParagraphs {
		if idx := strings.LastIndex(searchContent, "\n\n"); idx != -1 {
			return searchStart + idx + 2 // After the double newline
		}
	}

	// Try to break at sentence boundary
	if c.config.PreserveSentences {
		sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
		bestIdx := -1

		for _, ender := range sentenceEnders {
			if idx := strings.LastIndex(searchContent, ender); idx != -1 {
				endPos := idx + len(ender)
				if endPos > bestIdx {
					bestIdx = endPos
				}
			}
		}

		if bestIdx > 0 {
			return searchStart + bestIdx
		}
	}

	// Try to break at word boundary
	if idx := strings.LastIndexAny(searchContent, " \n\t"); idx != -1 {
		return searchStart + idx + 1
	}

	// No good break point found, use maxEnd
	return maxEnd
}

// advanceRunes returns the byte index n characters after from, capped at len(s).
func advanceRunes(s string, from, n int) int {
	i := from
	for ; n > 0 && i < len(s); n-- {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}

// retreatRunes returns the byte index n characters before from, floored at 0.
func retreatRunes(s string, from, n int) int {
	i := from
	for ; n > 0 && i > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return i
}

// trimmedChunk builds a chunk for content[start:end] without surrounding
// whitespace. Offsets follow the trimmed text.
func trimmedChunk(content string, start, end, baseOffset int) (driven.Chunk, bool) {
	raw := content[start:end]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return driven.Chunk{}, false
	}
	lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
	return driven.Chunk{
		Content:     trimmed,
		StartOffset: baseOffset + start + lead,
		EndOffset:   baseOffset + start + lead + len(trimmed),
	}, true
}

// WhitespaceNormalizer normalizes whitespace in extracted page text.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace in chunks.
func (w *WhitespaceNormalizer) Process(chunks []driven.Chunk) []driven.Chunk {
	result := make([]driven.Chunk, 0, len(chunks))

	for _, chunk := range chunks {
		content := chunk.Content

		// Normalize line endings
		content = strings.ReplaceAll(content, "\r\n", "\n")
		content = strings.ReplaceAll(content, "\r", "\n")

		// Collapse runs of spaces and tabs (but preserve newlines)
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			lines[i] = strings.Join(strings.Fields(line), " ")
		}
		content = strings.Join(lines, "\n")

		// Remove excessive blank lines
		for strings.Contains(content, "\n\n\n") {
			content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
		}

		content = strings.TrimSpace(content)

		if len(content) > 0 {
			newChunk := chunk
			newChunk.Content = content
			newChunk.EndOffset = newChunk.StartOffset + len(content)
			result = append(result, newChunk)
		}
	}

	return result
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns -10 - runs on the whole page text before the chunker.
func (w *WhitespaceNormalizer) Order() int {
	return -10
}
