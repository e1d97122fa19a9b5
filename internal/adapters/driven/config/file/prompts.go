package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads answer prompts from text files in a directory.
// Missing or broken files fall back to the built-in defaults.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

type promptTemplate struct {
	text string
	// placeholders must each appear in an edited template.
	placeholders []string
}

var defaultPrompts = map[string]promptTemplate{
	driven.PromptAnswerGrounded: {
		placeholders: []string{driven.PlaceholderContext, driven.PlaceholderQuestion},
		text: `You are a workplace safety consultant. Answer the question using only the
reference material below. Each passage is labelled with the document it came
from. Cite the document names you relied on. If the material does not cover
the question, say so plainly instead of guessing.

Reference material:
{{context}}

Question: {{question}}

Answer:`,
	},
	driven.PromptAnswerUngrounded: {
		placeholders: []string{driven.PlaceholderQuestion},
		text: `You are a workplace safety consultant. No reference material in the safety
library matched this question. Say clearly that your answer is not based on
the library, then give brief general guidance and recommend checking the
relevant regulations or a qualified person.

Question: {{question}}

Answer:`,
	},
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.consultant/prompts/.
//
// No I/O happens here. The directory and default files are written on the
// first Load.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".consultant", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
func (s *PromptStore) Load(name string) (string, error) {
	def, known := defaultPrompts[name]
	if !known {
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		return def.text, nil
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	switch {
	case err != nil:
		logger.Debug("prompt %s: %v, using default", name, err)
		prompt = def.text
	default:
		if missing := missingPlaceholders(prompt, def.placeholders); len(missing) > 0 {
			logger.Warn("prompt %s is missing %s, using default", name, strings.Join(missing, ", "))
			prompt = def.text
		}
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files that are missing.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		logger.Warn("%v, using built-in prompts", s.initErr)
		return
	}

	for name, def := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(def.text+"\n"), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

func missingPlaceholders(prompt string, want []string) []string {
	var missing []string
	for _, p := range want {
		if !strings.Contains(prompt, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("%s.txt is empty", name)
	}
	return prompt, nil
}

func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	content := `# Consultant Prompts

These files are the instructions sent to the language model when answering.

## Files

- ` + "`answer_grounded.txt`" + ` - used when relevant passages were retrieved.
  ` + "`{{context}}`" + ` is replaced with the passages and ` + "`{{question}}`" + ` with
  the question.
- ` + "`answer_ungrounded.txt`" + ` - used when nothing relevant was found.
  ` + "`{{question}}`" + ` is replaced with the question.

## Customisation

Edit a file and the change applies to the next question asked by a new
process. Other text, including ` + "`%`" + ` signs, is sent as written. A file
missing a placeholder is ignored and the built-in prompt is used instead. Delete a file to restore its default.
`
	return os.WriteFile(path, []byte(content), 0600)
}
