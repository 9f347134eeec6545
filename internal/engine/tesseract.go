//go:build !notesseract

package engine

import (
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/scanning/tesseract"
)

func init() {
	newTesseract = func(languages ...string) scanning.EngineProvider {
		return tesseract.NewProvider(languages...)
	}
}
