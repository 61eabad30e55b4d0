package wire

import (
	"fmt"
	"os"
	"strings"

	"github.com/example/evoloop/internal/config"
	"github.com/example/evoloop/internal/core/prompt"
)

// loadTemplates reads template overrides from disk and fills the rest with
// the built-in templates. A coder override must pass validation.
func loadTemplates(dir string, p config.Prompts) (prompt.Set, error) {
	var set prompt.Set
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{p.Coder, &set.Coder},
		{p.Judge, &set.Judge},
		{p.Evolver, &set.Evolver},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(config.Resolve(dir, f.path))
		if err != nil {
			return prompt.Set{}, fmt.Errorf("failed to read template: %w", err)
		}
		*f.dst = string(data)
	}

	set = set.WithDefaults()
	if err := prompt.ValidateCoderPrompt(set.Coder); err != nil {
		return prompt.Set{}, fmt.Errorf("coder template %s: %w", p.Coder, err)
	}
	return set, nil
}

// cacheName is the corpus cache file for a hub dataset split.
func cacheName(b config.Benchmark) string {
	name := strings.NewReplacer("/", "__", ":", "_").Replace(b.Dataset)
	return fmt.Sprintf("%s.%s.%s.jsonl", name, b.Config, b.Split)
}
