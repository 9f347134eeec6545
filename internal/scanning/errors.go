package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCategory is returned when a label is outside the category set
	ErrInvalidCategory = errors.New("invalid category")

	// ErrNoText is returned when the engine recognized nothing usable
	ErrNoText = errors.New("no text recognized")
)

// ImageDecodeError means the input bytes are not a supported image
type ImageDecodeError struct {
	ContentType string
	Err         error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decoding image (%s): %v", e.ContentType, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// RecognitionError means the recognition engine could not produce text
type RecognitionError struct {
	Op  string
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognizing text: %s: %v", e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
