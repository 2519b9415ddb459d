package imagery

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"chatppt_studio/generator"
)

type stubAdvisor struct {
	queries []SlideQuery
	err     error
}

func (s stubAdvisor) Advise(context.Context, string) ([]SlideQuery, error) {
	return s.queries, s.err
}

// stubSearcher returns the candidates registered for a query.
type stubSearcher map[string][]Candidate

func (s stubSearcher) Search(_ context.Context, slideTitle, query string) []Candidate {
	var out []Candidate
	for _, c := range s[query] {
		c.SlideTitle, c.Query = slideTitle, query
		out = append(out, c)
	}
	return out
}

// stubScorer scores by url.
type stubScorer map[string]float64

func (s stubScorer) Score(_ context.Context, _ string, url string) float64 {
	return s[url]
}

type recordingSynth struct {
	err error

	mu    sync.Mutex
	calls []string
}

func (r *recordingSynth) Synthesize(_ context.Context, prompt, destBase string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, prompt)
	if r.err != nil {
		return "", r.err
	}
	return destBase + ".jpeg", nil
}

func candidate(url string, w, h int) Candidate {
	return Candidate{
		URL:        url,
		Width:      w,
		Height:     h,
		Resolution: w * h,
		Image:      filled(w, h, color.NRGBA{R: 90, G: 90, B: 90, A: 255}),
	}
}

func newTestPipeline(t *testing.T, opts PipelineOptions) *Pipeline {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	p, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}

func TestBest(t *testing.T) {
	scored := []ScoredCandidate{
		{Candidate: Candidate{URL: "r400", Resolution: 400}, Score: 0.5},
		{Candidate: Candidate{URL: "r225", Resolution: 225}, Score: 0.9},
		{Candidate: Candidate{URL: "r100", Resolution: 100}, Score: 0.5},
	}
	if best, _ := Best(scored); best.URL != "r225" {
		t.Errorf("highest score should win, got %s", best.URL)
	}

	tied := []ScoredCandidate{
		{Candidate: Candidate{URL: "r400", Resolution: 400}, Score: 0.8},
		{Candidate: Candidate{URL: "r100", Resolution: 100}, Score: 0.8},
	}
	if best, _ := Best(tied); best.URL != "r400" {
		t.Errorf("first of equal scores should win, got %s", best.URL)
	}

	if _, ok := Best(nil); ok {
		t.Error("Best(nil) should report no candidate")
	}
}

func TestAccept(t *testing.T) {
	if !Accept(0.70, 0.7) {
		t.Error("0.70 must be accepted")
	}
	if Accept(0.69, 0.7) {
		t.Error("0.69 must be rejected")
	}
}

func TestPipeline_SelectsHighestScoreAcrossResolutions(t *testing.T) {
	cands := []Candidate{candidate("r400", 20, 20), candidate("r225", 15, 15), candidate("r100", 10, 10)}
	synth := &recordingSynth{}
	p := newTestPipeline(t, PipelineOptions{
		Advisor:     stubAdvisor{queries: []SlideQuery{{SlideTitle: "Intro", Query: "q"}}},
		Searcher:    stubSearcher{"q": cands},
		Scorer:      stubScorer{"r400": 0.5, "r225": 0.9, "r100": 0.5},
		Synthesizer: synth,
	})

	res, err := p.Run(context.Background(), "## Intro\ntext", "run1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	path, ok := res.Images["Intro"]
	if !ok {
		t.Fatal("Intro should have an image")
	}
	if filepath.Base(path) != "Intro_1.jpeg" {
		t.Errorf("unexpected path %s", path)
	}
	if len(synth.calls) != 0 {
		t.Errorf("synthesis should not run, got %v", synth.calls)
	}
	if res.RunDir != filepath.Dir(path) {
		t.Errorf("image %s not under run dir %s", path, res.RunDir)
	}
	want := fmt.Sprintf("## Intro\n![Intro](%s)\ntext", filepath.ToSlash(path))
	if res.Document != want {
		t.Errorf("document = %q, want %q", res.Document, want)
	}
}

func TestPipeline_ThresholdBoundary(t *testing.T) {
	for _, tt := range []struct {
		score     float64
		wantSynth bool
	}{
		{0.70, false},
		{0.69, true},
	} {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			synth := &recordingSynth{}
			p := newTestPipeline(t, PipelineOptions{
				Advisor:     stubAdvisor{queries: []SlideQuery{{SlideTitle: "Intro", Query: "sunrise"}}},
				Searcher:    stubSearcher{"sunrise": {candidate("u", 10, 10)}},
				Scorer:      stubScorer{"u": tt.score},
				Synthesizer: synth,
			})
			res, err := p.Run(context.Background(), "## Intro", "r")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if got := len(synth.calls) == 1; got != tt.wantSynth {
				t.Errorf("synthesis called = %v, want %v", got, tt.wantSynth)
			}
			if _, ok := res.Images["Intro"]; !ok {
				t.Error("slide should be illustrated either way")
			}
		})
	}
}

func TestPipeline_NoResultsFallsBackToSynthesis(t *testing.T) {
	advice := &generator.MockLLM{Replies: []string{"Suggestions:\n[Overview]: city skyline at sunset\n"}}
	synth := &recordingSynth{}
	p := newTestPipeline(t, PipelineOptions{
		Advisor:     NewAdvisor(advice, "advise", nil),
		Searcher:    stubSearcher{},
		Scorer:      stubScorer{},
		Synthesizer: synth,
	})

	res, err := p.Run(context.Background(), "# Deck\n## Overview\nbody", "run")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(synth.calls) != 1 || synth.calls[0] != "city skyline at sunset" {
		t.Fatalf("expected one synthesis with the query, got %v", synth.calls)
	}
	path := res.Images["Overview"]
	if filepath.Base(path) != "Overview_gen.jpeg" {
		t.Errorf("Images[Overview] = %q", path)
	}
}

func TestPipeline_SynthesisFailureLeavesSlideEmpty(t *testing.T) {
	p := newTestPipeline(t, PipelineOptions{
		Advisor: stubAdvisor{queries: []SlideQuery{
			{SlideTitle: "A", Query: "qa"},
			{SlideTitle: "B", Query: "qb"},
		}},
		Searcher:    stubSearcher{"qb": {candidate("b", 10, 10)}},
		Scorer:      stubScorer{"b": 0.95},
		Synthesizer: &recordingSynth{err: errors.New("content policy")},
	})
	doc := "## A\nx\n## B\ny"
	res, err := p.Run(context.Background(), doc, "r")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := res.Images["A"]; ok {
		t.Error("A should have no image")
	}
	if _, ok := res.Images["B"]; !ok {
		t.Error("B should have an image")
	}
	if strings.Count(res.Document, "![") != 1 {
		t.Errorf("expected one embedded image, got %q", res.Document)
	}
}

func TestPipeline_UnauthorizedAbortsRun(t *testing.T) {
	p := newTestPipeline(t, PipelineOptions{
		Advisor: stubAdvisor{queries: []SlideQuery{
			{SlideTitle: "A", Query: "qa"},
			{SlideTitle: "B", Query: "qb"},
		}},
		Searcher:    stubSearcher{},
		Scorer:      stubScorer{},
		Synthesizer: &recordingSynth{err: fmt.Errorf("synthesize: %w", generator.ErrUnauthorized)},
		Concurrency: 2,
	})
	_, err := p.Run(context.Background(), "## A\n## B", "r")
	if !errors.Is(err, generator.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPipeline_AdvisorFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, PipelineOptions{
		Advisor:     stubAdvisor{err: errors.New("no model")},
		Searcher:    stubSearcher{},
		Scorer:      stubScorer{},
		Synthesizer: &recordingSynth{},
	})
	if _, err := p.Run(context.Background(), "## A", "r"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPipeline_DropsTitlesWithoutHeading(t *testing.T) {
	synth := &recordingSynth{}
	p := newTestPipeline(t, PipelineOptions{
		Advisor: stubAdvisor{queries: []SlideQuery{
			{SlideTitle: "Real", Query: "q1"},
			{SlideTitle: "Invented", Query: "q2"},
		}},
		Searcher:    stubSearcher{},
		Scorer:      stubScorer{},
		Synthesizer: synth,
	})
	res, err := p.Run(context.Background(), "## Real\ntext", "r")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Images) != 1 || res.Images["Real"] == "" {
		t.Errorf("unexpected images %v", res.Images)
	}
	if len(synth.calls) != 1 {
		t.Errorf("invented slide must not be resolved, calls=%v", synth.calls)
	}
}

func TestPipeline_ParallelSlides(t *testing.T) {
	var queries []SlideQuery
	var doc strings.Builder
	search := stubSearcher{}
	scores := stubScorer{}
	for i := 0; i < 8; i++ {
		title := fmt.Sprintf("Slide %d", i)
		q := fmt.Sprintf("query %d", i)
		url := fmt.Sprintf("u%d", i)
		queries = append(queries, SlideQuery{SlideTitle: title, Query: q})
		search[q] = []Candidate{candidate(url, 4, 4)}
		scores[url] = 0.8
		fmt.Fprintf(&doc, "## %s\n", title)
	}
	p := newTestPipeline(t, PipelineOptions{
		Advisor:     stubAdvisor{queries: queries},
		Searcher:    search,
		Scorer:      scores,
		Synthesizer: &recordingSynth{},
		Concurrency: 4,
	})
	res, err := p.Run(context.Background(), doc.String(), "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Images) != 8 {
		t.Errorf("expected 8 images, got %d", len(res.Images))
	}
	if res.RunDir == "" {
		t.Error("empty run name should get a generated directory")
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	if _, err := NewPipeline(PipelineOptions{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
	_, err := NewPipeline(PipelineOptions{
		Advisor:     stubAdvisor{},
		Searcher:    stubSearcher{},
		Scorer:      stubScorer{},
		Synthesizer: &recordingSynth{},
		Threshold:   1.5,
	})
	if err == nil {
		t.Error("expected error for threshold above 1")
	}
}

func TestNewPipeline_ZeroThresholdUsesDefault(t *testing.T) {
	synth := &recordingSynth{}
	p, err := NewPipeline(PipelineOptions{
		Advisor:     stubAdvisor{queries: []SlideQuery{{SlideTitle: "Intro", Query: "q"}}},
		Searcher:    stubSearcher{"q": {candidate("dead", 10, 10)}},
		Scorer:      stubScorer{},
		Synthesizer: synth,
		OutputDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if p.threshold != DefaultThreshold {
		t.Errorf("threshold = %v, want %v", p.threshold, DefaultThreshold)
	}

	res, err := p.Run(context.Background(), "## Intro\ntext", "run")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(synth.calls) != 1 || synth.calls[0] != "q" {
		t.Errorf("a 0.0 score must fall back to synthesis, got %v", synth.calls)
	}
	if filepath.Base(res.Images["Intro"]) != "Intro_gen.jpeg" {
		t.Errorf("expected synthesized image, got %v", res.Images)
	}
}

func TestPipeline_SaveFailureLeavesSlideEmpty(t *testing.T) {
	// A regular file where the output directory should be makes every save fail.
	blocked := filepath.Join(t.TempDir(), "images")
	if err := os.WriteFile(blocked, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	synth := &recordingSynth{}
	p := newTestPipeline(t, PipelineOptions{
		Advisor:     stubAdvisor{queries: []SlideQuery{{SlideTitle: "Intro", Query: "q"}}},
		Searcher:    stubSearcher{"q": {candidate("good", 10, 10)}},
		Scorer:      stubScorer{"good": 0.95},
		Synthesizer: synth,
		OutputDir:   blocked,
	})

	res, err := p.Run(context.Background(), "## Intro\ntext", "run")
	if err != nil {
		t.Fatalf("save failures must not fail the run: %v", err)
	}
	if _, ok := res.Images["Intro"]; ok {
		t.Errorf("slide should have no image, got %v", res.Images)
	}
	if len(synth.calls) != 0 {
		t.Errorf("a failed save must not trigger synthesis, got %v", synth.calls)
	}
	if res.Document != "## Intro\ntext" {
		t.Errorf("document should be unchanged, got %q", res.Document)
	}
}
