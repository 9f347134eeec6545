package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks a vision model to behave like an OCR engine
const transcribePrompt = `Transcribe all text in this receipt image exactly as printed.

- Keep the original line order, one printed line per output line
- Do not correct spelling, reformat numbers or dates, or translate
- Do not add commentary, headings, or markdown
- If there is no readable text, return an empty response`

// GeminiProvider creates Gemini-backed recognition engines
type GeminiProvider struct {
	apiKey    string
	modelName string
}

// NewGeminiProvider creates a new GeminiProvider
func NewGeminiProvider(apiKey string, modelName string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GeminiProvider{apiKey: apiKey, modelName: modelName}, nil
}

// NewEngine opens a Gemini client for one receipt
func (p *GeminiProvider) NewEngine(ctx context.Context) (Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(p.modelName)
	model.SetTemperature(0)

	return &geminiEngine{client: client, model: model}, nil
}

type geminiEngine struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func (g *geminiEngine) Recognize(ctx context.Context, png []byte) (string, error) {
	// genai.ImageData expects just the format suffix, not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", png),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return stripCodeFence(text.String()), nil
}

func (g *geminiEngine) Close() error {
	return g.client.Close()
}

// stripCodeFence removes a markdown fence some models wrap output in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// drop the opening fence line (``` or ```text)
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
