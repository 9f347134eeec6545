// Package engine builds the recognition engine provider selected on the
// command line. Tesseract support links libtesseract through cgo; build with
// the notesseract tag to leave it out.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// newTesseract is set by tesseract.go; nil in notesseract builds
var newTesseract func(languages ...string) scanning.EngineProvider

// Config selects and configures a recognition engine
type Config struct {
	Kind        string
	Languages   string
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string
}

// RegisterFlags adds the engine flags to fs
func (c *Config) RegisterFlags(fs *ff.FlagSet) {
	fs.StringVar(&c.Kind, 0, "engine", "tesseract", "Recognition engine: 'tesseract', 'gemini' or 'ollama'")
	fs.StringVar(&c.Languages, 0, "languages", "eng", "Tesseract languages, '+' separated (e.g. eng+deu)")
	fs.StringVar(&c.GeminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&c.GeminiModel, 0, "gemini-model", "gemini-2.5-flash", "Google Gemini model name")
	fs.StringVar(&c.OllamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&c.OllamaModel, 0, "ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
}

// NewProvider returns the configured engine provider
func NewProvider(c Config) (scanning.EngineProvider, error) {
	switch c.Kind {
	case "tesseract":
		if newTesseract == nil {
			return nil, fmt.Errorf("tesseract engine not available in this build: use gemini or ollama")
		}
		langs := strings.Split(c.Languages, "+")
		slog.Info("Initializing tesseract engine...", "languages", langs)
		return newTesseract(langs...), nil
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := c.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini engine...", "model", c.GeminiModel)
		p, err := scanning.NewGeminiProvider(apiKey, c.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return p, nil
	case "ollama":
		slog.Info("Initializing Ollama engine...", "url", c.OllamaURL, "model", c.OllamaModel)
		p, err := scanning.NewOllamaProvider(c.OllamaURL, c.OllamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("invalid engine %q: want tesseract, gemini or ollama", c.Kind)
	}
}

// SetupLogging installs the default text logger at the named level
func SetupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
