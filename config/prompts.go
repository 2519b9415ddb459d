package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.txt
var builtinPrompts embed.FS

// Prompts are the system instructions of every model role.
type Prompts struct {
	Writer         string
	Critique       string
	ImageAdvisor   string
	ImageGenerator string
}

var promptFiles = []string{"writer.txt", "critique.txt", "image_advisor.txt", "image_generator.txt"}

// LoadPrompts reads the prompt files from dir, or the built-in set when dir
// is empty. A configured dir must contain every file.
func LoadPrompts(dir string) (Prompts, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(builtinPrompts, "prompts")
		if err != nil {
			return Prompts{}, err
		}
		fsys = sub
	} else {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return Prompts{}, &ConfigError{Field: "prompts.dir", Reason: fmt.Sprintf("%s is not a directory", dir)}
		}
		fsys = os.DirFS(dir)
	}

	texts := make(map[string]string, len(promptFiles))
	for _, name := range promptFiles {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Prompts{}, &ConfigError{Field: "prompts.dir", Reason: fmt.Sprintf("missing prompt file %s", filepath.Join(dir, name))}
			}
			return Prompts{}, fmt.Errorf("read prompt %s: %w", name, err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return Prompts{}, &ConfigError{Field: "prompts.dir", Reason: fmt.Sprintf("prompt file %s is empty", name)}
		}
		texts[name] = text
	}
	return Prompts{
		Writer:         texts["writer.txt"],
		Critique:       texts["critique.txt"],
		ImageAdvisor:   texts["image_advisor.txt"],
		ImageGenerator: texts["image_generator.txt"],
	}, nil
}
