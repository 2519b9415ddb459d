package imagery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chatppt_studio/generator"
)

// DefaultThreshold is the minimum similarity for a found image to be used.
const DefaultThreshold = 0.7

// QueryAdvisor suggests one image query per slide of a document.
type QueryAdvisor interface {
	Advise(ctx context.Context, document string) ([]SlideQuery, error)
}

type PipelineOptions struct {
	Advisor     QueryAdvisor
	Searcher    Searcher
	Scorer      Scorer
	Synthesizer Synthesizer
	Saver       Saver
	// Threshold is inclusive: a best score equal to it is accepted.
	// Zero means DefaultThreshold, so fail-low scores never pass.
	Threshold float64
	// Concurrency is the number of slides resolved at once, 1 means sequential.
	Concurrency int
	OutputDir   string
	Logger      *slog.Logger
}

// Pipeline finds or synthesizes one image per slide and embeds the results.
type Pipeline struct {
	advisor     QueryAdvisor
	searcher    Searcher
	scorer      Scorer
	synthesizer Synthesizer
	saver       Saver
	threshold   float64
	concurrency int
	outputDir   string
	logger      *slog.Logger
}

func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	switch {
	case opts.Advisor == nil:
		return nil, errors.New("pipeline: advisor is required")
	case opts.Searcher == nil:
		return nil, errors.New("pipeline: searcher is required")
	case opts.Scorer == nil:
		return nil, errors.New("pipeline: scorer is required")
	case opts.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("pipeline: threshold %v outside [0,1]", opts.Threshold)
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "images"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		advisor:     opts.Advisor,
		searcher:    opts.Searcher,
		scorer:      opts.Scorer,
		synthesizer: opts.Synthesizer,
		saver:       opts.Saver,
		threshold:   opts.Threshold,
		concurrency: opts.Concurrency,
		outputDir:   opts.OutputDir,
		logger:      opts.Logger,
	}, nil
}

// Result is the outcome of one illustration run.
type Result struct {
	Document string        `json:"document"`
	Images   SlideImageMap `json:"images"`
	Queries  []SlideQuery  `json:"queries"`
	RunDir   string        `json:"run_dir"`
}

// Run illustrates document. Images are written below OutputDir/run; an empty
// run gets a random name. Slides that end up without an image are not an
// error. Only advisor failures, bad credentials and cancellation are.
func (p *Pipeline) Run(ctx context.Context, document, run string) (Result, error) {
	if run == "" {
		run = uuid.NewString()
	}
	runDir := filepath.Join(p.outputDir, FileStem(run))
	log := p.logger.With("run", run)

	advised, err := p.advisor.Advise(ctx, document)
	if err != nil {
		return Result{}, fmt.Errorf("illustrate: %w", err)
	}

	headings := map[string]bool{}
	for _, t := range SlideTitles(document) {
		headings[t] = true
	}
	queries := make([]SlideQuery, 0, len(advised))
	for _, q := range advised {
		if !headings[q.SlideTitle] {
			log.Warn("advised slide has no matching heading, dropping", "slide", q.SlideTitle)
			continue
		}
		queries = append(queries, q)
	}

	images, err := p.Resolve(ctx, queries, runDir)
	if err != nil {
		return Result{}, fmt.Errorf("illustrate: %w", err)
	}
	log.Info("illustration finished", "slides", len(queries), "illustrated", len(images))
	return Result{
		Document: Embed(document, images),
		Images:   images,
		Queries:  queries,
		RunDir:   runDir,
	}, nil
}

// Resolve finds an image for every query. Slides are independent; a fatal
// error on one cancels the rest.
func (p *Pipeline) Resolve(ctx context.Context, queries []SlideQuery, runDir string) (SlideImageMap, error) {
	images := SlideImageMap{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			path, ok, err := p.resolveSlide(ctx, q, runDir)
			if err != nil {
				return fmt.Errorf("slide %q: %w", q.SlideTitle, err)
			}
			if ok {
				mu.Lock()
				images[q.SlideTitle] = path
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func (p *Pipeline) resolveSlide(ctx context.Context, q SlideQuery, runDir string) (string, bool, error) {
	log := p.logger.With("slide", q.SlideTitle, "query", q.Query)
	stem := filepath.Join(runDir, FileStem(q.SlideTitle))

	candidates := p.searcher.Search(ctx, q.SlideTitle, q.Query)
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	if len(candidates) > 0 {
		scored := make([]ScoredCandidate, 0, len(candidates))
		for _, c := range candidates {
			s := p.scorer.Score(ctx, q.Query, c.URL)
			log.Debug("candidate scored", "url", c.URL, "resolution", c.Resolution, "score", s)
			scored = append(scored, ScoredCandidate{Candidate: c, Score: s})
		}
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		best, _ := Best(scored)
		if Accept(best.Score, p.threshold) {
			path, err := p.saver.Save(best.Image, stem+"_1")
			if err != nil {
				log.Error("saving accepted image failed", "url", best.URL, "error", err)
				return "", false, nil
			}
			log.Info("image accepted", "url", best.URL, "score", best.Score, "path", path)
			return path, true, nil
		}
		log.Warn("best score below threshold, synthesizing", "score", best.Score, "threshold", p.threshold)
	} else {
		log.Warn("no images found, synthesizing")
	}

	path, err := p.synthesizer.Synthesize(ctx, q.Query, stem+"_gen")
	if err != nil {
		if errors.Is(err, generator.ErrUnauthorized) || ctx.Err() != nil {
			return "", false, err
		}
		log.Error("image synthesis failed, slide stays without image", "error", err)
		return "", false, nil
	}
	log.Info("image synthesized", "path", path)
	return path, true, nil
}

// Best returns the highest scoring candidate. Among equal scores the earliest
// one wins, so the resolution order of the search decides ties.
func Best(scored []ScoredCandidate) (ScoredCandidate, bool) {
	if len(scored) == 0 {
		return ScoredCandidate{}, false
	}
	best := scored[0]
	for _, s := range scored[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best, true
}

// Accept reports whether score clears threshold. The bound is inclusive.
func Accept(score, threshold float64) bool {
	return score >= threshold
}
