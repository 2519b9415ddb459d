package generator

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized 表示凭证缺失或无效，服务端拒绝了请求（401/403）。
	ErrUnauthorized = errors.New("llm: unauthorized")
	// ErrEmptyResponse 表示模型返回了空内容。
	ErrEmptyResponse = errors.New("llm: empty response")
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ImageDescriber 把图片 URL 转成一段文字描述。
type ImageDescriber interface {
	DescribeImage(ctx context.Context, imageURL string) (string, error)
}

// ImageGenerator 根据提示词生成图片，返回编码后的字节。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// LLMSettings 提供给具体实现的基础配置。
// 写作和评审各用一份，参数互相独立。
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}
