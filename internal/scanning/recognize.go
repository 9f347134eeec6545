package scanning

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// recognize runs one engine instance over the image. The engine is created
// for this call only and closed before returning, on every path.
func recognize(ctx context.Context, engines EngineProvider, img *NormalizedImage, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	engine, err := engines.NewEngine(ctx)
	if err != nil {
		return "", &RecognitionError{Op: "creating engine", Err: err}
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Warn("Failed to close recognition engine", "error", err)
		}
	}()

	text, err := engine.Recognize(ctx, img.Data)
	if err != nil {
		return "", &RecognitionError{Op: "running engine", Err: err}
	}
	// Engines that ignore ctx may still return after the deadline
	if err := ctx.Err(); err != nil {
		return "", &RecognitionError{Op: "running engine", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &RecognitionError{Op: "reading output", Err: ErrNoText}
	}

	return text, nil
}
