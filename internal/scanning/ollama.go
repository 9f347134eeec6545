package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
)

// OllamaProvider creates engines that transcribe receipts with a local
// Ollama vision model
type OllamaProvider struct {
	baseURL  string
	model    string
	client   *http.Client
	attempts uint
	delay    time.Duration
}

// NewOllamaProvider creates a new OllamaProvider
// Recommended models for receipt transcription:
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
func NewOllamaProvider(baseURL string, modelName string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &OllamaProvider{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on CPU
		},
		attempts: 3,
		delay:    2 * time.Second,
	}, nil
}

// WithRetry overrides the retry policy for transient API failures
func (p *OllamaProvider) WithRetry(attempts uint, delay time.Duration) *OllamaProvider {
	p.attempts = attempts
	p.delay = delay
	return p
}

// NewEngine returns an engine for one receipt. Ollama keeps models loaded
// server-side, so the engine only carries request state.
func (p *OllamaProvider) NewEngine(ctx context.Context) (Engine, error) {
	return &ollamaEngine{provider: p}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// errTransient marks failures worth retrying
var errTransient = errors.New("transient ollama failure")

type ollamaEngine struct {
	provider *OllamaProvider
}

func (o *ollamaEngine) Recognize(ctx context.Context, png []byte) (string, error) {
	p := o.provider

	reqBody := ollamaChatRequest{
		Model:  p.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an OCR engine. You output only the text visible in images.",
			},
			{
				Role:    "user",
				Content: transcribePrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(png)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var chatResp ollamaChatResponse
	err = retry.Do(
		func() error {
			return o.chat(ctx, jsonData, &chatResp)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errTransient)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying ollama request", "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	return stripCodeFence(chatResp.Message.Content), nil
}

func (o *ollamaEngine) chat(ctx context.Context, body []byte, out *ollamaChatResponse) error {
	url := fmt.Sprintf("%s/api/chat", o.provider.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.provider.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: calling ollama API: %v", errTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d: %s", errTransient, resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (o *ollamaEngine) Close() error {
	return nil
}
