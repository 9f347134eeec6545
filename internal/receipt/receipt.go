package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// Status is the processing state of an uploaded receipt
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Receipt represents an uploaded receipt image and what was read from it
type Receipt struct {
	ID          string                `json:"id"`
	OwnerID     string                `json:"owner_id"`
	Filename    string                `json:"filename"` // storage path of the original image
	ContentType string                `json:"content_type"`
	Status      Status                `json:"status"`
	Extracted   *scanning.ReceiptData `json:"extracted,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ProcessedAt *time.Time            `json:"processed_at,omitempty"`
}

// Expense is a saved spend, either typed in or confirmed from a receipt
type Expense struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	ReceiptID   string            `json:"receipt_id,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Category    scanning.Category `json:"category"`
	Date        string            `json:"date"` // YYYY-MM-DD
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ExpenseInput is the user-editable part of an Expense
type ExpenseInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
}
