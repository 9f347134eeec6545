package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	// do routes a single request through the server under test
	do := func(req *http.Request) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	newRequest := func(method, path string, body io.Reader) *http.Request {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		return req
	}

	jsonRequest := func(method, path string, v any) *http.Request {
		body, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		req := newRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	uploadRequest := func(filename, partType string, data []byte, defaultCategory string) *http.Request {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		if filename != "" {
			h := make(map[string][]string)
			h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
			if partType != "" {
				h["Content-Type"] = []string{partType}
			}
			part, err := writer.CreatePart(h)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
		}
		if defaultCategory != "" {
			Expect(writer.WriteField("default_category", defaultCategory)).To(Succeed())
		}
		Expect(writer.Close()).To(Succeed())

		req := newRequest(http.MethodPost, "/api/receipts", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	errorBody := func(resp *http.Response) string {
		var body map[string]string
		decode(resp, &body)
		return body["error"]
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		service = NewServiceWithDeps(db, extractor, storage, &mockIDGenerator{}, &mockTimeSource{now: time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)})
		auth = BasicAuth{}
		ghttpServer = ghttp.NewServer()
	})

	JustBeforeEach(func() {
		server = NewServerWithMux(service, auth, http.NewServeMux())
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("POST /api/receipts", func() {
		When("upload succeeds", func() {
			It("should return the completed receipt", func() {
				resp := do(uploadRequest("receipt.jpg", "image/jpeg", []byte("jpeg data"), ""))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.ID).To(Equal("test-id-1"))
				Expect(receipt.OwnerID).To(Equal(LocalOwner))
				Expect(receipt.Status).To(Equal(StatusCompleted))
				Expect(receipt.Extracted.Total).To(Equal("25.99"))
			})
		})

		When("the part has no content type", func() {
			It("should infer it from the extension", func() {
				resp := do(uploadRequest("IMG_0001.HEIC", "", []byte("heic data"), ""))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(extractor.lastContentType).To(Equal("image/heic"))
			})
		})

		When("a default category is given", func() {
			It("should pass a known category through", func() {
				resp := do(uploadRequest("receipt.jpg", "image/jpeg", []byte("x"), "Travel"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(extractor.lastDefault).To(Equal(scanning.Travel))
			})

			It("should reject an unknown category", func() {
				resp := do(uploadRequest("receipt.jpg", "image/jpeg", []byte("x"), "Snacks"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(extractor.calls).To(Equal(0))
			})
		})

		When("no file is provided", func() {
			It("should return Bad Request", func() {
				resp := do(uploadRequest("", "", nil, ""))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorBody(resp)).To(ContainSubstring("No file was selected"))
			})
		})

		When("the body is not multipart", func() {
			It("should return Bad Request", func() {
				req := newRequest(http.MethodPost, "/api/receipts", strings.NewReader("nope"))
				req.Header.Set("Content-Type", "text/plain")
				resp := do(req)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(errorBody(resp)).To(Equal("Error parsing form"))
			})
		})

		When("the image cannot be decoded", func() {
			BeforeEach(func() {
				extractor.err = &scanning.ImageDecodeError{ContentType: "image/jpeg", Err: errors.New("unsupported image format")}
			})

			It("should return Unprocessable Entity", func() {
				resp := do(uploadRequest("receipt.jpg", "image/jpeg", []byte("garbage"), ""))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(errorBody(resp)).To(ContainSubstring("unsupported image format"))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				extractor.err = &scanning.RecognitionError{Op: "running engine", Err: errors.New("engine crashed")}
			})

			It("should return Bad Gateway and keep the failed receipt", func() {
				resp := do(uploadRequest("receipt.jpg", "image/jpeg", []byte("x"), ""))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(db.receipts["test-id-1"].Status).To(Equal(StatusFailed))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return Internal Server Error without leaking details", func() {
				resp := do(uploadRequest("receipt.jpg", "image/jpeg", []byte("x"), ""))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorBody(resp)).To(Equal("Internal server error"))
			})
		})
	})

	Describe("receipt routes", func() {
		BeforeEach(func() {
			_, err := service.ProcessReceipt(context.Background(), LocalOwner, "receipt.png", []byte("png data"), "image/png", "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should list receipts", func() {
			resp := do(newRequest(http.MethodGet, "/api/receipts", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var receipts []Receipt
			decode(resp, &receipts)
			Expect(receipts).To(HaveLen(1))
		})

		It("should return an empty array when there are none", func() {
			delete(db.receipts, "test-id-1")
			resp := do(newRequest(http.MethodGet, "/api/receipts", nil))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
		})

		It("should get a receipt", func() {
			resp := do(newRequest(http.MethodGet, "/api/receipts/test-id-1", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var receipt Receipt
			decode(resp, &receipt)
			Expect(receipt.Extracted.Merchant).To(Equal("Corner Store"))
		})

		It("should return Not Found for a missing receipt", func() {
			resp := do(newRequest(http.MethodGet, "/api/receipts/missing", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should serve the original file", func() {
			resp := do(newRequest(http.MethodGet, "/api/receipts/test-id-1/file", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("png data")))
		})

		It("should override the category", func() {
			resp := do(jsonRequest(http.MethodPut, "/api/receipts/test-id-1/category", map[string]string{"category": "Shopping"}))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.receipts["test-id-1"].Extracted.Category).To(Equal(scanning.Shopping))
		})

		It("should reject an unknown category override", func() {
			resp := do(jsonRequest(http.MethodPut, "/api/receipts/test-id-1/category", map[string]string{"category": "Snacks"}))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should save the receipt as an expense", func() {
			resp := do(newRequest(http.MethodPost, "/api/receipts/test-id-1/expense", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var expense Expense
			decode(resp, &expense)
			Expect(expense.ReceiptID).To(Equal("test-id-1"))
			Expect(expense.Amount.StringFixed(2)).To(Equal("25.99"))
		})

		It("should refuse to save a receipt that is not ready", func() {
			db.receipts["test-id-1"].Status = StatusProcessing
			resp := do(newRequest(http.MethodPost, "/api/receipts/test-id-1/expense", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should delete a receipt", func() {
			resp := do(newRequest(http.MethodDelete, "/api/receipts/test-id-1", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.receipts).To(BeEmpty())
		})
	})

	Describe("expense routes", func() {
		var input ExpenseInput

		BeforeEach(func() {
			input = ExpenseInput{
				Amount:      decimal.RequireFromString("12.50"),
				Category:    "Groceries",
				Date:        "2024-01-18",
				Description: "Market run",
			}
		})

		It("should create an expense", func() {
			resp := do(jsonRequest(http.MethodPost, "/api/expenses", input))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var expense Expense
			decode(resp, &expense)
			Expect(expense.OwnerID).To(Equal(LocalOwner))
			Expect(expense.Category).To(Equal(scanning.Groceries))
		})

		It("should accept a numeric amount", func() {
			req := newRequest(http.MethodPost, "/api/expenses", strings.NewReader(`{"amount":3.75,"category":"Other","date":"2024-01-02","description":"Coffee"}`))
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(db.expenses["test-id-1"].Amount.StringFixed(2)).To(Equal("3.75"))
		})

		It("should reject invalid input", func() {
			input.Date = "yesterday"
			resp := do(jsonRequest(http.MethodPost, "/api/expenses", input))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorBody(resp)).To(ContainSubstring("YYYY-MM-DD"))
		})

		It("should reject a malformed body", func() {
			resp := do(newRequest(http.MethodPost, "/api/expenses", strings.NewReader("{")))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("an expense exists", func() {
			BeforeEach(func() {
				_, err := service.CreateExpense(LocalOwner, input)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should list it", func() {
				resp := do(newRequest(http.MethodGet, "/api/expenses", nil))
				var expenses []Expense
				decode(resp, &expenses)
				Expect(expenses).To(HaveLen(1))
			})

			It("should get it", func() {
				resp := do(newRequest(http.MethodGet, "/api/expenses/test-id-1", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should update it", func() {
				input.Description = "Farmers market"
				resp := do(jsonRequest(http.MethodPut, "/api/expenses/test-id-1", input))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(db.expenses["test-id-1"].Description).To(Equal("Farmers market"))
			})

			It("should delete it", func() {
				resp := do(newRequest(http.MethodDelete, "/api/expenses/test-id-1", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.expenses).To(BeEmpty())
			})

			It("should export it as CSV", func() {
				resp := do(newRequest(http.MethodGet, "/api/export/expenses.csv", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/csv"))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("expenses.csv"))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("2024-01-18,Market run,Groceries,12.50"))
			})

			It("should export it as XLSX", func() {
				resp := do(newRequest(http.MethodGet, "/api/export/expenses.xlsx", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(body).To(HavePrefix("PK"))
			})

			It("should report on it", func() {
				resp := do(newRequest(http.MethodGet, "/api/reports?months=3", nil))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var report Report
				decode(resp, &report)
				Expect(report.Monthly).To(HaveLen(3))
				Expect(report.Total.StringFixed(2)).To(Equal("12.50"))
				Expect(report.Categories).To(ConsistOf(HaveField("Category", scanning.Groceries)))
			})
		})

		It("should reject a bad report window", func() {
			resp := do(newRequest(http.MethodGet, "/api/reports?months=zero", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should hide a missing expense", func() {
			resp := do(newRequest(http.MethodGet, "/api/expenses/missing", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/categories", func() {
		It("should list every category in order", func() {
			resp := do(newRequest(http.MethodGet, "/api/categories", nil))
			var categories []string
			decode(resp, &categories)
			Expect(categories).To(HaveLen(9))
			Expect(categories[0]).To(Equal("Food & Dining"))
			Expect(categories[8]).To(Equal("Other"))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do(newRequest(http.MethodOptions, "/api/expenses", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})

		It("should set headers on normal responses", func() {
			resp := do(newRequest(http.MethodGet, "/api/categories", nil))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "alice", Password: "pass"}
		})

		withCredentials := func(req *http.Request, user, pass string) *http.Request {
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
			return req
		}

		It("should reject missing credentials", func() {
			resp := do(newRequest(http.MethodGet, "/api/receipts", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject a wrong password", func() {
			resp := do(withCredentials(newRequest(http.MethodGet, "/api/receipts", nil), "alice", "wrong"))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should scope records to the authenticated user", func() {
			_, err := service.CreateExpense("bob", ExpenseInput{Amount: decimal.NewFromInt(1), Category: "Other", Date: "2024-01-01", Description: "Bob's"})
			Expect(err).NotTo(HaveOccurred())

			resp := do(withCredentials(jsonRequest(http.MethodPost, "/api/expenses", ExpenseInput{
				Amount: decimal.NewFromInt(2), Category: "Other", Date: "2024-01-02", Description: "Alice's",
			}), "alice", "pass"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var expense Expense
			decode(resp, &expense)
			Expect(expense.OwnerID).To(Equal("alice"))

			resp = do(withCredentials(newRequest(http.MethodGet, "/api/expenses/test-id-1", nil), "alice", "pass"))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("authenticate", func() {
		It("should identify the local owner when auth is off", func() {
			owner, ok := server.authenticate(newRequest(http.MethodGet, "/", nil))
			Expect(ok).To(BeTrue())
			Expect(owner).To(Equal(LocalOwner))
		})
	})
})
