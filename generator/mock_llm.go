package generator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
)

// MockLLM 一个简单的占位实现，便于本地调试和测试，不调用外部模型。
// 按顺序返回 Replies；用完后把最后一条消息拼成单页 Markdown。
type MockLLM struct {
	Replies []string
	Err     error

	mu      sync.Mutex
	prompts []Prompt
}

func (m *MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) > 0 {
		reply := m.Replies[0]
		m.Replies = m.Replies[1:]
		return reply, nil
	}

	var last string
	if msgs := prompt.messages(); len(msgs) > 0 {
		last = msgs[len(msgs)-1].Content
	}
	var sb strings.Builder
	sb.WriteString("# Draft\n\n")
	sb.WriteString("## Overview\n\n")
	sb.WriteString(strings.TrimSpace(last))
	sb.WriteString("\n")
	return sb.String(), nil
}

// Prompts 返回目前收到的全部提示词（副本）。
func (m *MockLLM) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

// DescribeImage 对所有图片给出同样的描述。
func (m *MockLLM) DescribeImage(_ context.Context, imageURL string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return "An illustration found at " + imageURL, nil
}

// GenerateImage 返回一张不透明的小占位 PNG。
func (m *MockLLM) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill := color.RGBA{R: 0x3b, G: 0x6e, B: 0xa5, A: 0xff}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
