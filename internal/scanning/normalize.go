package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	// DefaultTargetWidth is the width every receipt is scaled to before recognition
	DefaultTargetWidth = 800

	// DefaultContrast is the contrast boost on imaging's -100..100 scale.
	// 100 thresholds the grey image at mid-grey.
	DefaultContrast = 100.0
)

var errEmptyImage = errors.New("empty image")

// Normalizer prepares receipt photos for text recognition
type Normalizer struct {
	TargetWidth int
	Contrast    float64
}

// NewNormalizer creates a Normalizer with the default width and contrast
func NewNormalizer() *Normalizer {
	return &Normalizer{
		TargetWidth: DefaultTargetWidth,
		Contrast:    DefaultContrast,
	}
}

// Normalize decodes the image, converts it to greyscale, boosts contrast and
// scales it to the target width keeping the aspect ratio
func (n *Normalizer) Normalize(raw RawImage) (*NormalizedImage, error) {
	mimeType := normalizeMimeType(raw.ContentType)

	img, err := decodeImage(raw.Data, mimeType)
	if err != nil {
		return nil, &ImageDecodeError{ContentType: mimeType, Err: err}
	}

	adjusted := imaging.AdjustContrast(imaging.Grayscale(img), n.Contrast)
	resized := imaging.Resize(adjusted, n.TargetWidth, 0, imaging.Lanczos)

	// imaging works in NRGBA; collapse to one luminance channel
	bounds := resized.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, resized, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return &NormalizedImage{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// normalizeMimeType lowercases the MIME type and drops parameters
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, errEmptyImage
	}

	switch {
	case mimeType == "application/pdf" || isPDFFormat(data):
		return pdfToImage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	// Phone cameras store rotation in EXIF; honour it so text is upright
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF: %w", err)
		}
		return nil, err
	}
	return img, nil
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Most receipts are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
