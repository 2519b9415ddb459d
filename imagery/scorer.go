package imagery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"chatppt_studio/generator"
)

const similarityTemplate = "Compare the slide text and image description provided below and respond ONLY with a similarity score between 0 and 1.\n\nSlide Text: %s\n\nImage Description: %s\n\nSimilarity Score:"

// Scorer rates how well the image at url illustrates slideText. The result
// is always within [0,1]; failures score 0.
type Scorer interface {
	Score(ctx context.Context, slideText, url string) float64
}

// LLMScorer describes the image with a vision model and asks a judge model
// for a numeric similarity between that description and the slide text.
type LLMScorer struct {
	describer generator.ImageDescriber
	judge     generator.LLMClient
	timeout   time.Duration
	logger    *slog.Logger
}

func NewLLMScorer(describer generator.ImageDescriber, judge generator.LLMClient, timeout time.Duration, logger *slog.Logger) *LLMScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMScorer{describer: describer, judge: judge, timeout: timeout, logger: logger}
}

func (s *LLMScorer) Score(ctx context.Context, slideText, url string) float64 {
	log := s.logger.With("url", url)

	describeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	desc, err := s.describer.DescribeImage(describeCtx, url)
	cancel()
	if err != nil {
		log.Warn("image description failed, scoring 0", "error", err)
		return 0
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		log.Warn("empty image description, scoring 0")
		return 0
	}
	log.Debug("image described", "description", generator.Snippet(desc, 120))

	judgeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	raw, err := s.judge.Complete(judgeCtx, generator.Prompt{
		User: fmt.Sprintf(similarityTemplate, slideText, desc),
	})
	cancel()
	if err != nil {
		log.Warn("similarity request failed, scoring 0", "error", err)
		return 0
	}
	score, err := ParseScore(raw)
	if err != nil {
		log.Warn("unusable similarity score, scoring 0", "raw", raw, "error", err)
		return 0
	}
	log.Debug("image scored", "score", score)
	return score
}

var errScoreRange = errors.New("score outside [0,1]")

// ParseScore reads a similarity value. Anything but a single number in
// [0,1] is rejected.
func ParseScore(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse score: %w", err)
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: %v", errScoreRange, v)
	}
	return v, nil
}
