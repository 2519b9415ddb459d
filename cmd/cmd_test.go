package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatppt_studio/config"
	"chatppt_studio/generator"
	"chatppt_studio/history"
)

func TestSetupLogging_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogging("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "slide", "Intro")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"slide":"Intro"`) {
		t.Errorf("expected JSON warn line, got %q", out)
	}
}

func TestBuildLLM(t *testing.T) {
	tests := []struct {
		name    string
		llm     config.LLMConfig
		wantErr bool
	}{
		{"mock", config.LLMConfig{Provider: config.ProviderMock}, false},
		{"openai", config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "sk"}, false},
		{"anthropic", config.LLMConfig{Provider: config.ProviderAnthropic, APIKey: "sk"}, false},
		{"deepseek without url", config.LLMConfig{Provider: config.ProviderDeepSeek, APIKey: "sk"}, true},
		{"unknown", config.LLMConfig{Provider: "bard"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildLLM(config.Config{LLM: tt.llm}, "some-model", 0.5, 100)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildImaging_Mock(t *testing.T) {
	d, j, g, err := buildImaging(config.Config{LLM: config.LLMConfig{Provider: config.ProviderMock}})
	if err != nil {
		t.Fatalf("buildImaging failed: %v", err)
	}
	if _, ok := d.(*generator.MockLLM); !ok {
		t.Errorf("describer is %T", d)
	}
	if j == nil || g == nil {
		t.Error("judge and generator must be set")
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	mem, closeMem, err := openStore(ctx, config.Config{History: config.HistoryConfig{Backend: config.BackendMemory}})
	if err != nil {
		t.Fatal(err)
	}
	defer closeMem()
	if _, ok := mem.(*history.MemoryStore); !ok {
		t.Errorf("memory backend gave %T", mem)
	}

	path := filepath.Join(t.TempDir(), "h.db")
	sq, closeSQ, err := openStore(ctx, config.Config{History: config.HistoryConfig{Backend: config.BackendSQLite, SQLitePath: path}})
	if err != nil {
		t.Fatal(err)
	}
	defer closeSQ()
	if _, ok := sq.(history.Catalog); !ok {
		t.Error("sqlite store should list sessions")
	}
}

func TestReadInput(t *testing.T) {
	got, err := readInput("inline", "ignored.md")
	if err != nil || got != "inline" {
		t.Errorf("text flag should win, got %q %v", got, err)
	}
	path := filepath.Join(t.TempDir(), "in.md")
	if err := os.WriteFile(path, []byte("## From file"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = readInput("", path)
	if err != nil || got != "## From file" {
		t.Errorf("got %q %v", got, err)
	}
	if _, err := readInput("", filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}
