// Package tesseract recognizes receipt text locally with libtesseract.
// It needs cgo and the tesseract/leptonica development headers.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// Provider creates one gosseract client per receipt
type Provider struct {
	languages []string
}

// NewProvider creates a new Provider. With no languages English is used.
func NewProvider(languages ...string) *Provider {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Provider{languages: languages}
}

// NewEngine allocates a tesseract API handle
func (p *Provider) NewEngine(ctx context.Context) (scanning.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(p.languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting language: %w", err)
	}
	// Receipts are a single column of mixed-size text
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}

	return &engine{client: client}, nil
}

type engine struct {
	client *gosseract.Client
}

// Recognize runs tesseract synchronously. libtesseract cannot be interrupted,
// so ctx is only checked before starting.
func (e *engine) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}

func (e *engine) Close() error {
	return e.client.Close()
}
