package domain

import (
	"fmt"
	"time"
)

// DefaultSystemPrompt is the direct-mode prompt. {context} is replaced by
// the retrieved chunks.
const DefaultSystemPrompt = `You are a helpful and knowledgeable assistant specializing in retrieving accurate information. Before answering any question, always check your knowledge base or use the context provided. Follow these guidelines:

- Only respond using the information from the context below.
- If no relevant information is found, respond with, "Sorry, I don't know."
- Use the context provided for your responses only if it is relevant and applicable.
- Ensure your answers are clear, concise, and directly address the question asked.
- Provide links to the source of the information when possible.
- Only answer the question if you are confident in the accuracy of the information. If you are unsure, it is better not to respond.
- The answer value should always be in markdown format and include code blocks when necessary.

Your goal is to provide accurate and context-aware assistance.

=======================
Context:
{context}
=======================
`

// DefaultToolSystemPrompt is the agentic-mode prompt. Context arrives
// through the getInformation tool instead.
const DefaultToolSystemPrompt = `You are a helpful and knowledgeable assistant specializing in retrieving accurate information.
Before answering any question, if you don't have relevant information then check your knowledge base using a tool call.

While answering always follow these guidelines:
- Only respond using the information returned by the knowledge base.
- If no relevant information is found, respond with, "Sorry, I don't know."
- Use the retrieved information for your responses only if it is relevant and applicable.
- Ensure your answers are clear, concise, and directly address the question asked.
- Provide links to the source of the information when possible.
- Only answer the question if you are confident in the accuracy of the information. If you are unsure, it is better not to respond.
- The answer value should always be in markdown format and include code blocks when necessary.

Your goal is to provide accurate and context-aware assistance.
`

// ContextPlaceholder is substituted in the direct-mode prompt
const ContextPlaceholder = "{context}"

// PipelineConfig holds tuning for every stage of ingestion and answering
type PipelineConfig struct {
	Retry     RetryConfig     `yaml:"retry"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Answer    AnswerConfig    `yaml:"answer"`
	Models    ModelConfig     `yaml:"models"`
}

// RetryConfig bounds retries of outbound fetches
type RetryConfig struct {
	// MaxAttempts includes the first attempt
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is multiplied by 2^attempt between attempts
	BaseDelay time.Duration `yaml:"base_delay"`
}

// ChunkingConfig sizes page chunks, in characters
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// CrawlConfig bounds a crawl run
type CrawlConfig struct {
	MaxDepth       int       `yaml:"max_depth"`
	MaxConcurrency int       `yaml:"max_concurrency"`
	MaxPages       int       `yaml:"max_pages"`
	DefaultMode    CrawlMode `yaml:"default_mode"`
}

// RetrievalConfig controls similarity ranking
type RetrievalConfig struct {
	// Threshold is exclusive: rows must score strictly above it
	Threshold float64 `yaml:"threshold"`
	Limit     int     `yaml:"limit"`
}

// EmbeddingConfig controls the embed-and-persist step
type EmbeddingConfig struct {
	// Concurrency is the number of pages embedded at once
	Concurrency int `yaml:"concurrency"`
	Dimensions  int `yaml:"dimensions"`
}

// AnswerConfig controls prompt assembly and the tool loop
type AnswerConfig struct {
	SystemPrompt     string `yaml:"system_prompt"`
	ToolSystemPrompt string `yaml:"tool_system_prompt"`
	ContextSeparator string `yaml:"context_separator"`
	MaxToolRounds    int    `yaml:"max_tool_rounds"`
}

// ModelConfig names the hosted models
type ModelConfig struct {
	Embedding      string `yaml:"embedding"`
	TextGeneration string `yaml:"text_generation"`
}

// DefaultPipelineConfig returns the documented defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
		},
		Chunking: ChunkingConfig{
			Size:    500,
			Overlap: 128,
		},
		Crawl: CrawlConfig{
			MaxDepth:       3,
			MaxConcurrency: 5,
			MaxPages:       100,
			DefaultMode:    CrawlModeFetch,
		},
		Retrieval: RetrievalConfig{
			Threshold: 0.5,
			Limit:     10,
		},
		Embedding: EmbeddingConfig{
			Concurrency: 4,
			Dimensions:  1024,
		},
		Answer: AnswerConfig{
			SystemPrompt:     DefaultSystemPrompt,
			ToolSystemPrompt: DefaultToolSystemPrompt,
			ContextSeparator: "====================\n",
			MaxToolRounds:    5,
		},
		Models: ModelConfig{
			Embedding:      "BAAI/bge-large-en-v1.5",
			TextGeneration: "llama-3.3-70b-instruct",
		},
	}
}

// Validate checks the configuration for values no stage can run with
func (c PipelineConfig) Validate() error {
	switch {
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidInput)
	case c.Retry.BaseDelay < 0:
		return fmt.Errorf("%w: retry.base_delay must not be negative", ErrInvalidInput)
	case c.Chunking.Size < 1:
		return fmt.Errorf("%w: chunking.size must be positive", ErrInvalidInput)
	case c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size:
		return fmt.Errorf("%w: chunking.overlap must be in [0, size)", ErrInvalidInput)
	case c.Crawl.MaxDepth < 0:
		return fmt.Errorf("%w: crawl.max_depth must not be negative", ErrInvalidInput)
	case c.Crawl.MaxConcurrency < 1:
		return fmt.Errorf("%w: crawl.max_concurrency must be positive", ErrInvalidInput)
	case c.Crawl.MaxPages < 1:
		return fmt.Errorf("%w: crawl.max_pages must be positive", ErrInvalidInput)
	case !c.Crawl.DefaultMode.IsValid():
		return fmt.Errorf("%w: crawl.default_mode %q", ErrInvalidInput, c.Crawl.DefaultMode)
	case c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1:
		return fmt.Errorf("%w: retrieval.threshold must be in [0, 1]", ErrInvalidInput)
	case c.Retrieval.Limit < 1:
		return fmt.Errorf("%w: retrieval.limit must be positive", ErrInvalidInput)
	case c.Embedding.Concurrency < 1:
		return fmt.Errorf("%w: embedding.concurrency must be positive", ErrInvalidInput)
	case c.Answer.MaxToolRounds < 1:
		return fmt.Errorf("%w: answer.max_tool_rounds must be positive", ErrInvalidInput)
	}
	return nil
}
