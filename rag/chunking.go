package rag

import (
	"strings"

	"go.uber.org/zap"
)

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`     // 块大小（tokens）
	ChunkOverlap int `json:"chunk_overlap"`  // 重叠大小（tokens）
	MinChunkSize int `json:"min_chunk_size"` // 最小块大小
}

// DefaultChunkingConfig 默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    800,
		ChunkOverlap: 120,
		MinChunkSize: 50,
	}
}

// Chunk 文档块
type Chunk struct {
	Index      int    `json:"index"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

// Chunker 递归分块器。在段落、句子、单词边界依次尝试分割，
// 保持语义完整性；相邻块之间带重叠，避免检索时截断上下文。
type Chunker struct {
	config    ChunkingConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器
func NewChunker(config ChunkingConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkingConfig().ChunkSize
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.MinChunkSize <= 0 {
		config.MinChunkSize = DefaultChunkingConfig().MinChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "chunker")),
	}
}

// 分隔符优先级：段落 > 行 > 句子 > 单词
var chunkSeparators = []string{"\n\n", "\n", ". ", "。", "! ", "！", "? ", "？", " "}

// ChunkText 将文本切分为带重叠的块。空白文本产生零个块；
// 任何非空输入至少产生一个块，内容永不丢失。
func (c *Chunker) ChunkText(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Chunk{}
	}

	pieces := c.split(text, chunkSeparators)
	pieces = c.mergeSmallTail(pieces)
	chunks := c.withOverlap(pieces)

	c.logger.Debug("chunking completed",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize),
		zap.Int("overlap", c.config.ChunkOverlap))

	return chunks
}

// split 递归分割：用当前分隔符累积内容，超限时落块，
// 单段仍超限则下探到更细的分隔符。
func (c *Chunker) split(text string, separators []string) []string {
	if c.tokenizer.CountTokens(text) <= c.config.ChunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return c.hardSplit(text)
	}

	separator := separators[0]
	parts := strings.Split(text, separator)
	if len(parts) == 1 {
		return c.split(text, separators[1:])
	}

	// 恢复分隔符（除最后一个片段）
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += separator
	}

	var pieces []string
	current := ""
	for _, part := range parts {
		if current != "" && c.tokenizer.CountTokens(current+part) > c.config.ChunkSize {
			pieces = append(pieces, current)
			current = ""
		}
		if c.tokenizer.CountTokens(part) > c.config.ChunkSize {
			pieces = append(pieces, c.split(part, separators[1:])...)
			continue
		}
		current += part
	}
	if current != "" {
		pieces = append(pieces, current)
	}
	return pieces
}

// hardSplit 最后手段：按估算字符数切，rune 安全。
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	charsPerChunk := c.config.ChunkSize * 4
	if charsPerChunk <= 0 {
		charsPerChunk = len(runes)
	}

	var pieces []string
	for i := 0; i < len(runes); i += charsPerChunk {
		end := i + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
	}
	return pieces
}

// mergeSmallTail 把低于最小块大小的尾块并入前一块，内容不丢。
func (c *Chunker) mergeSmallTail(pieces []string) []string {
	if len(pieces) < 2 {
		return pieces
	}
	last := pieces[len(pieces)-1]
	if c.tokenizer.CountTokens(last) >= c.config.MinChunkSize {
		return pieces
	}
	pieces[len(pieces)-2] += last
	return pieces[:len(pieces)-1]
}

// withOverlap 为每个块（除第一个）前置上一块的尾部，
// 并丢弃纯空白片段。
func (c *Chunker) withOverlap(pieces []string) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	overlapChars := c.config.ChunkOverlap * 4

	prev := ""
	for _, piece := range pieces {
		content := piece
		if prev != "" && overlapChars > 0 {
			content = tailRunes(prev, overlapChars) + content
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			TokenCount: c.tokenizer.CountTokens(content),
		})
		prev = piece
	}
	return chunks
}

// tailRunes 返回字符串的最后 n 个 rune。
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
