package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// maxUploadSize covers high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var decodeErr *scanning.ImageDecodeError
	var recErr *scanning.RecognitionError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidExpense), errors.Is(err, scanning.ErrInvalidCategory):
		return http.StatusBadRequest
	case errors.Is(err, ErrReceiptNotReady):
		return http.StatusConflict
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &recErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes a response matching its kind.
// Internal failures are not echoed back to the client.
func writeServiceError(w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
		writeError(w, "Internal server error", code)
		return
	}
	writeError(w, err.Error(), code)
}

// detectContentType falls back to the file extension when the part has no type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt stores an uploaded receipt and runs extraction on it
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	defaultCategory := r.FormValue("default_category")
	if defaultCategory != "" {
		if _, ok := scanning.ParseCategory(defaultCategory); !ok {
			writeError(w, "Unknown default category", http.StatusBadRequest)
			return
		}
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)

	receipt, err := s.service.ProcessReceipt(r.Context(), ownerFrom(r.Context()), header.Filename, data, contentType, defaultCategory)
	if err != nil {
		writeServiceError(w, "Error processing receipt", err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleListReceipts returns the caller's receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts(ownerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Error listing receipts", err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(ownerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error getting receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the original upload for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(ownerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(ownerFrom(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, "Error deleting receipt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetReceiptCategory overrides a receipt's suggested category
func (s *Server) handleSetReceiptCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.service.SetReceiptCategory(ownerFrom(r.Context()), r.PathValue("id"), req.Category)
	if err != nil {
		writeServiceError(w, "Error setting category", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleCreateExpenseFromReceipt saves a receipt's extraction as an expense
func (s *Server) handleCreateExpenseFromReceipt(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.CreateExpenseFromReceipt(ownerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error creating expense from receipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// handleListExpenses returns the caller's expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses(ownerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Error listing expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func decodeExpenseInput(r *http.Request) (ExpenseInput, error) {
	var in ExpenseInput
	err := json.NewDecoder(r.Body).Decode(&in)
	return in, err
}

// handleCreateExpense records a manually entered expense
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := decodeExpenseInput(r)
	if err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.CreateExpense(ownerFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, "Error creating expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(ownerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "Error getting expense", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleUpdateExpense edits an expense
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := decodeExpenseInput(r)
	if err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.UpdateExpense(ownerFrom(r.Context()), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, "Error updating expense", err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleDeleteExpense deletes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(ownerFrom(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, "Error deleting expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCategories returns the category set in display order
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scanning.Categories())
}

// handleReport summarizes the caller's spend
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	months := DefaultReportMonths
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			writeError(w, "months must be between 1 and 120", http.StatusBadRequest)
			return
		}
		months = n
	}

	report, err := s.service.Report(ownerFrom(r.Context()), months)
	if err != nil {
		writeServiceError(w, "Error building report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExportCSV downloads the caller's expenses as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.WriteExpensesCSV(&buf, ownerFrom(r.Context())); err != nil {
		writeServiceError(w, "Error exporting expenses", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
	w.Write(buf.Bytes())
}

// handleExportXLSX downloads the caller's expenses as a workbook
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.WriteExpensesXLSX(&buf, ownerFrom(r.Context())); err != nil {
		writeServiceError(w, "Error exporting expenses", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.xlsx"`)
	w.Write(buf.Bytes())
}
