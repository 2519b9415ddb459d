package imagery

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"chatppt_studio/generator"
)

var queryLine = regexp.MustCompile(`\[(.+?)\]:\s*(.+)`)

// ExtractQueries collects the `[Title]: query` pairs of an advisory text.
// A title given twice keeps its first position and its last query.
// Text without such lines yields no pairs.
func ExtractQueries(advice string) []SlideQuery {
	var out []SlideQuery
	index := map[string]int{}
	for _, m := range queryLine.FindAllStringSubmatch(advice, -1) {
		title := strings.TrimSpace(m[1])
		query := strings.TrimSpace(m[2])
		if title == "" || query == "" {
			continue
		}
		if i, ok := index[title]; ok {
			out[i].Query = query
			continue
		}
		index[title] = len(out)
		out = append(out, SlideQuery{SlideTitle: title, Query: query})
	}
	return out
}

// Advisor asks a model which image to look for on each slide.
type Advisor struct {
	llm    generator.LLMClient
	system string
	logger *slog.Logger
}

func NewAdvisor(llm generator.LLMClient, systemPrompt string, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{llm: llm, system: systemPrompt, logger: logger}
}

// Advise returns the slide queries suggested for document.
func (a *Advisor) Advise(ctx context.Context, document string) ([]SlideQuery, error) {
	out, err := a.llm.Complete(ctx, generator.Prompt{
		System: a.system,
		User:   "**Content**:\n\n" + document,
	})
	if err != nil {
		return nil, fmt.Errorf("advise: %w", err)
	}
	a.logger.Debug("image advice received", "advice", generator.Snippet(out, 200))

	queries := ExtractQueries(out)
	if len(queries) == 0 {
		a.logger.Warn("advice contained no [Title]: query lines")
	}
	return queries, nil
}
