package imagery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"chatppt_studio/generator"
)

// Synthesizer produces a fresh image for prompt and stores it at destBase
// (a path without extension), returning the written path.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt, destBase string) (string, error)
}

// ImageSynthesizer generates images with an ImageGenerator, prefixing every
// prompt with a fixed style instruction.
type ImageSynthesizer struct {
	gen     generator.ImageGenerator
	prefix  string
	saver   Saver
	timeout time.Duration
	logger  *slog.Logger
}

func NewImageSynthesizer(gen generator.ImageGenerator, prefix string, saver Saver, timeout time.Duration, logger *slog.Logger) *ImageSynthesizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageSynthesizer{gen: gen, prefix: strings.TrimSpace(prefix), saver: saver, timeout: timeout, logger: logger}
}

func (s *ImageSynthesizer) Synthesize(ctx context.Context, prompt, destBase string) (string, error) {
	full := prompt
	if s.prefix != "" {
		full = s.prefix + " " + prompt
	}
	s.logger.Info("synthesizing image", "prompt", prompt, "dest", destBase)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := s.gen.GenerateImage(ctx, full)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("synthesize: decode: %w", err)
	}
	path, err := s.saver.Save(img, destBase)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return path, nil
}
