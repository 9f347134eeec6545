package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/scanning"
)

var (
	// ErrInvalidExpense is returned for expense input that fails validation
	ErrInvalidExpense = errors.New("invalid expense")

	// ErrReceiptNotReady is returned when a receipt has no extracted data yet
	ErrReceiptNotReady = errors.New("receipt has no extracted data")
)

// defaultExpenseDescription is used when a receipt yields no merchant
const defaultExpenseDescription = "Receipt Expense"

// Extractor reads expense data out of a receipt image
type Extractor interface {
	Extract(ctx context.Context, raw scanning.RawImage, defaultCategory scanning.Category) (*scanning.ReceiptData, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt and expense operations
type Service struct {
	db          DB
	extractor   Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, extractor, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameSpecialChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces       = regexp.MustCompile(`\s+`)
	ownerDirChars        = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if filenameSpecialChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = filenameSpecialChars.ReplaceAllString(base, "")
	base = filenameSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce long names; 50 chars is plenty
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ownerDir turns an owner ID into a safe storage directory name
func ownerDir(ownerID string) string {
	dir := ownerDirChars.ReplaceAllString(ownerID, "_")
	if dir == "" {
		dir = "_"
	}
	return dir
}

// ProcessReceipt stores an uploaded receipt image, runs extraction and
// records the outcome. The receipt record moves through uploading and
// processing to completed or failed; a failed record is kept with its error.
func (s *Service) ProcessReceipt(ctx context.Context, ownerID, filename string, data []byte, contentType, defaultCategory string) (*Receipt, error) {
	now := s.timeSource.Now()
	receipt := &Receipt{
		ID:          s.idGenerator.Generate(),
		OwnerID:     ownerID,
		ContentType: contentType,
		Status:      StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	storagePath := path.Join(ownerDir(ownerID), fmt.Sprintf("%s_%s", receipt.ID, sanitizeFilename(filename)))
	savedPath, err := s.storage.Save(storagePath, data)
	if err != nil {
		s.markFailed(receipt, err)
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receipt.Filename = savedPath
	receipt.Status = StatusProcessing
	receipt.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	category := scanning.Category(defaultCategory)
	if c, ok := scanning.ParseCategory(defaultCategory); ok {
		category = c
	}
	extracted, err := s.extractor.Extract(ctx, scanning.RawImage{Data: data, ContentType: contentType}, category)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"receipt_id", receipt.ID,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.markFailed(receipt, err)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	done := s.timeSource.Now()
	receipt.Extracted = extracted
	receipt.Status = StatusCompleted
	receipt.UpdatedAt = done
	receipt.ProcessedAt = &done
	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	return receipt, nil
}

// markFailed records a terminal failure on the receipt
func (s *Service) markFailed(receipt *Receipt, cause error) {
	done := s.timeSource.Now()
	receipt.Status = StatusFailed
	receipt.Error = cause.Error()
	receipt.UpdatedAt = done
	receipt.ProcessedAt = &done
	if err := s.db.SaveReceipt(receipt); err != nil {
		slog.Error("Failed to record receipt failure", "receipt_id", receipt.ID, "error", err)
	}
}

// ownedReceipt loads a receipt and hides it from anyone but its owner
func (s *Service) ownedReceipt(ownerID, id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, err
	}
	if receipt.OwnerID != ownerID {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(ownerID, id string) (*Receipt, error) {
	receipt, err := s.ownedReceipt(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns an owner's receipts, newest first
func (s *Service) ListReceipts(ownerID string) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(ownerID, id string) error {
	receipt, err := s.ownedReceipt(ownerID, id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if receipt.Filename != "" {
		if err := s.storage.Delete(receipt.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
		}
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the image data for a receipt
func (s *Service) GetReceiptFile(ownerID, id string) ([]byte, string, error) {
	receipt, err := s.ownedReceipt(ownerID, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Filename == "" {
		return nil, "", fmt.Errorf("receipt %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// SetReceiptCategory overrides the suggested category before the receipt
// is saved as an expense
func (s *Service) SetReceiptCategory(ownerID, id, category string) (*Receipt, error) {
	receipt, err := s.ownedReceipt(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Extracted == nil {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrReceiptNotReady)
	}

	if err := receipt.Extracted.SetCategory(category); err != nil {
		return nil, err
	}
	receipt.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return receipt, nil
}

// CreateExpenseFromReceipt saves a completed receipt's data as an expense.
// A missing total becomes zero for the user to correct.
func (s *Service) CreateExpenseFromReceipt(ownerID, receiptID string) (*Expense, error) {
	receipt, err := s.ownedReceipt(ownerID, receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Status != StatusCompleted || receipt.Extracted == nil {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, ErrReceiptNotReady)
	}
	data := receipt.Extracted
	now := s.timeSource.Now()

	amount := decimal.Zero
	if data.Total != "" {
		if a, err := decimal.NewFromString(data.Total); err == nil {
			amount = a
		} else {
			slog.Warn("Failed to parse receipt total", "receipt_id", receiptID, "total", data.Total, "error", err)
		}
	}

	date := data.Date
	if _, err := time.Parse(isoDate, date); err != nil {
		date = now.Format(isoDate)
	}

	description := strings.TrimSpace(data.Merchant)
	if description == "" {
		description = defaultExpenseDescription
	}

	category := data.Category
	if _, ok := scanning.ParseCategory(string(category)); !ok {
		category = scanning.Other
	}

	expense := &Expense{
		ID:          s.idGenerator.Generate(),
		OwnerID:     ownerID,
		ReceiptID:   receipt.ID,
		Amount:      amount,
		Category:    category,
		Date:        date,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

const isoDate = "2006-01-02"

// validateExpense checks user input and returns the canonical category and date
func validateExpense(in ExpenseInput) (scanning.Category, string, error) {
	category, ok := scanning.ParseCategory(in.Category)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown category %q", ErrInvalidExpense, in.Category)
	}
	d, err := time.Parse(isoDate, strings.TrimSpace(in.Date))
	if err != nil {
		return "", "", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidExpense)
	}
	if in.Amount.IsNegative() {
		return "", "", fmt.Errorf("%w: amount must not be negative", ErrInvalidExpense)
	}
	if strings.TrimSpace(in.Description) == "" {
		return "", "", fmt.Errorf("%w: description is required", ErrInvalidExpense)
	}
	return category, d.Format(isoDate), nil
}

// CreateExpense records a manually entered expense
func (s *Service) CreateExpense(ownerID string, in ExpenseInput) (*Expense, error) {
	category, date, err := validateExpense(in)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	expense := &Expense{
		ID:          s.idGenerator.Generate(),
		OwnerID:     ownerID,
		Amount:      in.Amount,
		Category:    category,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

func (s *Service) ownedExpense(ownerID, id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, err
	}
	if expense.OwnerID != ownerID {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(ownerID, id string) (*Expense, error) {
	expense, err := s.ownedExpense(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns an owner's expenses, most recent date first
func (s *Service) ListExpenses(ownerID string) ([]*Expense, error) {
	expenses, err := s.db.ListExpenses(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].Date != expenses[j].Date {
			return expenses[i].Date > expenses[j].Date
		}
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

// UpdateExpense replaces the editable fields of an expense
func (s *Service) UpdateExpense(ownerID, id string, in ExpenseInput) (*Expense, error) {
	expense, err := s.ownedExpense(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	category, date, err := validateExpense(in)
	if err != nil {
		return nil, err
	}

	expense.Amount = in.Amount
	expense.Category = category
	expense.Date = date
	expense.Description = strings.TrimSpace(in.Description)
	expense.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// DeleteExpense removes an expense
func (s *Service) DeleteExpense(ownerID, id string) error {
	if _, err := s.ownedExpense(ownerID, id); err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}
	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}
