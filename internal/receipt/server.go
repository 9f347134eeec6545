package receipt

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// LocalOwner owns every record when basic auth is not configured
const LocalOwner = "local"

type ownerKey struct{}

// Server handles HTTP requests for receipts and expenses
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials and returns the owner they identify
func (s *Server) authenticate(r *http.Request) (string, bool) {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return LocalOwner, true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return "", false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return "", false
	}

	if credentials[0] != s.basicAuth.Username || credentials[1] != s.basicAuth.Password {
		return "", false
	}
	return credentials[0], true
}

// ownerFrom returns the owner stored by requireAuth
func ownerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey{}).(string); ok {
		return owner
	}
	return LocalOwner
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Expense Tracker"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Receipts
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("PUT /api/receipts/{id}/category", s.requireAuth(s.handleSetReceiptCategory))
	s.mux.HandleFunc("POST /api/receipts/{id}/expense", s.requireAuth(s.handleCreateExpenseFromReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))

	// Expenses
	s.mux.HandleFunc("GET /api/expenses/{id}", s.requireAuth(s.handleGetExpense))
	s.mux.HandleFunc("PUT /api/expenses/{id}", s.requireAuth(s.handleUpdateExpense))
	s.mux.HandleFunc("DELETE /api/expenses/{id}", s.requireAuth(s.handleDeleteExpense))
	s.mux.HandleFunc("GET /api/expenses", s.requireAuth(s.handleListExpenses))
	s.mux.HandleFunc("POST /api/expenses", s.requireAuth(s.handleCreateExpense))

	// Reference data, reports and exports
	s.mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleListCategories))
	s.mux.HandleFunc("GET /api/reports", s.requireAuth(s.handleReport))
	s.mux.HandleFunc("GET /api/export/expenses.csv", s.requireAuth(s.handleExportCSV))
	s.mux.HandleFunc("GET /api/export/expenses.xlsx", s.requireAuth(s.handleExportXLSX))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
