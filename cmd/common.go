package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"chatppt_studio/config"
	"chatppt_studio/generator"
	"chatppt_studio/history"
	"chatppt_studio/imagery"
	"chatppt_studio/refine"
)

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// buildLLM returns the text model for one role.
func buildLLM(cfg config.Config, model string, temperature float64, maxTokens int) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:    cfg.LLM.Provider,
		Model:       model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return generator.NewOpenAILLMFromConfig(settings)
	case config.ProviderDeepSeek:
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if cfg.LLM.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case config.ProviderAnthropic:
		return generator.NewAnthropicLLMFromConfig(settings)
	case config.ProviderMock:
		return &generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func buildImaging(cfg config.Config) (describer generator.ImageDescriber, judge generator.LLMClient, synth generator.ImageGenerator, err error) {
	if cfg.LLM.Provider == config.ProviderMock {
		m := &generator.MockLLM{}
		return m, &generator.MockLLM{}, m, nil
	}
	vision, err := generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
		Provider: config.ProviderOpenAI,
		Model:    cfg.Vision.Model,
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		// The judge answers with a single number.
		MaxTokens:   10,
		Temperature: cfg.Vision.Temperature,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	images, err := generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
		Provider: config.ProviderOpenAI,
		Model:    cfg.ImageModel,
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return vision, vision, images, nil
}

// app bundles the components shared by the commands.
type app struct {
	cfg     config.Config
	prompts config.Prompts
	logger  *slog.Logger
	store   history.Store
	engine  *refine.Engine
	close   func()
}

func openStore(ctx context.Context, cfg config.Config) (history.Store, func(), error) {
	switch cfg.History.Backend {
	case config.BackendSQLite:
		s, err := history.NewSQLite(cfg.History.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.BackendPostgres:
		s, err := history.NewPostgres(ctx, cfg.History.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return history.NewMemoryStore(), func() {}, nil
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := setupLogging(level, os.Stderr)

	prompts, err := config.LoadPrompts(cfg.Prompts.Dir)
	if err != nil {
		return nil, err
	}

	writer, err := buildLLM(cfg, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	if err != nil {
		return nil, err
	}
	critic, err := buildLLM(cfg, cfg.Critique.Model, cfg.Critique.Temperature, cfg.LLM.MaxTokens)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	engine, err := refine.NewEngine(writer, critic, store, refine.Options{
		WriterPrompt:   prompts.Writer,
		CritiquePrompt: prompts.Critique,
		MaxRounds:      cfg.Refine.MaxRounds,
		Logger:         logger.With("component", "refine"),
	})
	if err != nil {
		closeStore()
		return nil, err
	}
	logger.Debug("app ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "history", cfg.History.Backend)
	return &app{
		cfg:     cfg,
		prompts: prompts,
		logger:  logger,
		store:   store,
		engine:  engine,
		close:   closeStore,
	}, nil
}

func (a *app) pipeline() (*imagery.Pipeline, error) {
	if err := a.cfg.RequireImaging(); err != nil {
		return nil, err
	}
	img := a.cfg.Images
	logger := a.logger.With("component", "imagery")

	advisorLLM, err := buildLLM(a.cfg, a.cfg.Advisor.Model, a.cfg.Advisor.Temperature, a.cfg.LLM.MaxTokens)
	if err != nil {
		return nil, err
	}
	describer, judge, gen, err := buildImaging(a.cfg)
	if err != nil {
		return nil, err
	}
	saver := imagery.Saver{MaxDimension: img.MaxDimension, Quality: img.Quality}

	return imagery.NewPipeline(imagery.PipelineOptions{
		Advisor: imagery.NewAdvisor(advisorLLM, a.prompts.ImageAdvisor, logger),
		Searcher: imagery.NewBingSearcher(imagery.SearchOptions{
			BaseURL: img.SearchURL,
			Count:   img.Candidates,
			Timeout: img.Timeout,
			Retry:   imagery.DefaultRetryPolicy(img.Retries),
			Logger:  logger,
		}),
		Scorer:      imagery.NewLLMScorer(describer, judge, img.ScoreTimeout, logger),
		Synthesizer: imagery.NewImageSynthesizer(gen, a.prompts.ImageGenerator, saver, img.SynthTimeout, logger),
		Saver:       saver,
		Threshold:   img.Threshold,
		Concurrency: img.Concurrency,
		OutputDir:   img.OutputDir,
		Logger:      logger,
	})
}

// readInput returns text if set, else the content of path, else stdin.
func readInput(text, path string) (string, error) {
	if text != "" {
		return text, nil
	}
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func writeOutput(path, content string) error {
	if path == "" {
		_, err := fmt.Fprintln(os.Stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
