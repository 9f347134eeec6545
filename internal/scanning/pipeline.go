package scanning

import (
	"context"
	"log/slog"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline turns a receipt photo into suggested expense data. It holds no
// per-receipt state and is safe for concurrent use.
type Pipeline struct {
	normalizer *Normalizer
	engines    EngineProvider
	timeSource TimeSource
	timeout    time.Duration
}

// NewPipeline creates a Pipeline with the default normalizer and clock.
// A zero timeout leaves recognition unbounded.
func NewPipeline(engines EngineProvider, timeout time.Duration) *Pipeline {
	return NewPipelineWithDeps(NewNormalizer(), engines, defaultTimeSource{}, timeout)
}

// NewPipelineWithDeps creates a Pipeline with custom dependencies for testing
func NewPipelineWithDeps(normalizer *Normalizer, engines EngineProvider, timeSrc TimeSource, timeout time.Duration) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		engines:    engines,
		timeSource: timeSrc,
		timeout:    timeout,
	}
}

// Extract runs normalization, recognition, field extraction, date
// normalization and classification in that order. Only the first two can
// fail; they return *ImageDecodeError or *RecognitionError. defaultCategory
// is used when no keyword matches; pass Other (or "") for no preference.
func (p *Pipeline) Extract(ctx context.Context, raw RawImage, defaultCategory Category) (*ReceiptData, error) {
	start := p.timeSource.Now()

	img, err := p.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	text, err := recognize(ctx, p.engines, img, p.timeout)
	if err != nil {
		return nil, err
	}
	slog.Debug("Recognized receipt text", "chars", len(text), "width", img.Width, "height", img.Height)

	fields := ExtractFields(text)

	merchant := fields.Merchant
	if merchant == "" {
		merchant = UnknownMerchant
	}

	category := Classify(fields.Merchant, text)
	if category == Other {
		if c, ok := ParseCategory(string(defaultCategory)); ok {
			category = c
		}
	}

	data := &ReceiptData{
		Total:    fields.Total,
		Date:     NormalizeDate(fields.DateToken, start),
		Merchant: merchant,
		Category: category,
	}

	slog.Debug("Extracted receipt data",
		"total", data.Total,
		"date", data.Date,
		"merchant", data.Merchant,
		"category", data.Category,
	)

	return data, nil
}
