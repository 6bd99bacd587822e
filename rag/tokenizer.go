package rag

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 分词器接口，供分块器度量块大小。
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenCounter 基于 tiktoken 的分词器。编码表在第一次使用时才加载
// （可能触发下载），加载失败时回退到字符估算。
type TiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenCounter 创建分词器。encoding 为 tiktoken 编码名，
// 空值使用 cl100k_base。
func NewTiktokenCounter(encoding string, logger *zap.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{
		encoding: encoding,
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数。
// 编码表不可用时回退到 len(text)/4 估算。
func (t *TiktokenCounter) CountTokens(text string) int {
	if err := t.init(); err != nil {
		t.logger.Warn("tiktoken unavailable, falling back to estimate", zap.Error(err))
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// estimateTokens 按约 4 字符一个 token 估算。
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

var _ Tokenizer = (*TiktokenCounter)(nil)
