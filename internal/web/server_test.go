package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/saleimport/internal/accounts"
	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/sheet"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mpw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte(content))
	}
	mpw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports/sales", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.RemoteAddr = "192.0.2.1:1234"
	return req
}

// ============================================================================
// Health and middleware
// ============================================================================

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		want    int
	}{
		{"database up", nil, http.StatusOK},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubService{pingErr: tt.pingErr})
			rec := do(t, srv, http.MethodGet, "/healthz", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(&stubService{})
	rec := do(t, srv, http.MethodGet, "/healthz", "")

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	srv := NewServer(&stubService{}, cfg)

	if rec := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200 without a key", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/products", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/products status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want 200", rec.Code)
	}
}

func TestRateLimitEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, ImportLimit: 1}
	srv := NewServer(&stubService{}, cfg)

	if rec := do(t, srv, http.MethodGet, "/api/products", ""); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/api/products", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
}

// ============================================================================
// Imports
// ============================================================================

func TestImportSales_CSV(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(svc)

	csv := "Email,Product,Qty,Price,Date\n" +
		"ana@example.com,Cement,2,10.50,2024-03-01\n" +
		"bo@example.com,Sand,1,$4.00,03/02/2024\n"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "file", "march.csv", csv))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result importer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RowsProcessed != 2 {
		t.Errorf("RowsProcessed = %d, want 2", result.RowsProcessed)
	}
	if svc.source != "march.csv" {
		t.Errorf("source = %q, want march.csv", svc.source)
	}
	if svc.clientIP != "192.0.2.1" {
		t.Errorf("client ip = %q, want 192.0.2.1", svc.clientIP)
	}
	if len(svc.rows) != 2 || !svc.rows[1].UnitPrice.Equal(decimal.NewFromInt(4)) {
		t.Errorf("rows = %+v", svc.rows)
	}
}

func TestImportSales_ReportsErrorsBothWays(t *testing.T) {
	svc := &stubService{result: &importer.Result{
		RowsProcessed: 2,
		SalesCreated:  1,
		Errors: []importer.RowError{
			{Row: 2, Kind: importer.KindRowRejected, Message: "quantity must be at least 1, got 0"},
		},
	}}
	srv := newTestServer(svc)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "file", "march.csv", "Email,Product,Qty,Price\na@x.com,P,1,1\n"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		SalesCreated int                 `json:"salesCreated"`
		Errors       []importer.RowError `json:"errors"`
		Messages     []string            `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.SalesCreated != 1 {
		t.Errorf("salesCreated = %d, want 1", body.SalesCreated)
	}
	if len(body.Errors) != 1 || body.Errors[0].Row != 2 || body.Errors[0].Kind != importer.KindRowRejected {
		t.Errorf("errors = %+v, want one row 2 rejection", body.Errors)
	}
	want := "row 2: quantity must be at least 1, got 0"
	if len(body.Messages) != 1 || body.Messages[0] != want {
		t.Errorf("messages = %q, want [%q]", body.Messages, want)
	}
}

func TestPreviewImport(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(svc)

	req := uploadRequest(t, "file", "march.csv", "Email,Product,Qty,Price\nana@example.com,Cement,2,10.50\n")
	req.URL.Path = "/api/imports/sales/preview"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var preview importer.Preview
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if preview.TotalRows != 1 || preview.NewProducts != 1 {
		t.Errorf("preview = %+v, want 1 row, 1 new product", preview)
	}
	if svc.source != "march.csv" {
		t.Errorf("source = %q, want march.csv", svc.source)
	}
}

func TestImportSales_Errors(t *testing.T) {
	tests := []struct {
		name     string
		svcErr   error
		maxSize  int64
		field    string
		filename string
		content  string
		want     int
		wantCode string
	}{
		{"no file", nil, 0, "", "", "", http.StatusBadRequest, "FILE004"},
		{"wrong field", nil, 0, "upload", "a.csv", "x", http.StatusBadRequest, "FILE004"},
		{"unsupported format", nil, 0, "file", "sales.pdf", "x", http.StatusUnsupportedMediaType, "FILE006"},
		{"missing columns", nil, 0, "file", "sales.csv", "email,product\na@x.com,P\n", http.StatusBadRequest, "VAL004"},
		{"too large", nil, 64, "file", "sales.csv", strings.Repeat("x", 4096), http.StatusRequestEntityTooLarge, "FILE001"},
		{"busy", core.ErrTooManyImports, 0, "file", "sales.csv", "email\n", http.StatusServiceUnavailable, "IMP001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubService{err: tt.svcErr, maxSize: tt.maxSize})
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, uploadRequest(t, tt.field, tt.filename, tt.content))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestImportSales_BusySetsRetryAfter(t *testing.T) {
	srv := newTestServer(&stubService{err: core.ErrTooManyImports})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "file", "a.csv", "x"))

	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestImportHistory(t *testing.T) {
	id := uuid.New()
	svc := &stubService{}
	svc.run.ID = id
	srv := newTestServer(svc)

	if rec := do(t, srv, http.MethodGet, "/api/imports?limit=5", ""); rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if svc.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", svc.gotLimit)
	}

	if rec := do(t, srv, http.MethodGet, "/api/imports/"+id.String(), ""); rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if svc.gotID != id {
		t.Errorf("id = %s, want %s", svc.gotID, id)
	}

	rec := do(t, srv, http.MethodGet, "/api/imports/active", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"phase":"resolving"`) {
		t.Errorf("active = %d %s", rec.Code, rec.Body.String())
	}
}

// ============================================================================
// Customers, products and sales
// ============================================================================

func TestCustomerRoutes(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		svcErr   error
		want     int
		wantCode string
	}{
		{"list", http.MethodGet, "/api/customers?limit=10&offset=20", "", nil, http.StatusOK, ""},
		{"get", http.MethodGet, "/api/customers/" + id.String(), "", nil, http.StatusOK, ""},
		{"get bad id", http.MethodGet, "/api/customers/nope", "", nil, http.StatusBadRequest, "VAL003"},
		{"get missing", http.MethodGet, "/api/customers/" + id.String(), "", store.ErrNotFound, http.StatusNotFound, "DB008"},
		{"create", http.MethodPost, "/api/customers", `{"email":"a@x.com","displayName":"Ana"}`, nil, http.StatusCreated, ""},
		{"create unknown field", http.MethodPost, "/api/customers", `{"mail":"a@x.com"}`, nil, http.StatusBadRequest, "VAL003"},
		{"create empty body", http.MethodPost, "/api/customers", "", nil, http.StatusBadRequest, "VAL003"},
		{"create rejected email", http.MethodPost, "/api/customers", `{"email":"x"}`, accounts.ErrEmailRejected, http.StatusBadRequest, "VAL008"},
		{"create duplicate", http.MethodPost, "/api/customers", `{"email":"a@x.com"}`, store.ErrDuplicate, http.StatusConflict, "DB001"},
		{"update", http.MethodPut, "/api/customers/" + id.String(), `{"displayName":"Bo"}`, nil, http.StatusOK, ""},
		{"delete", http.MethodDelete, "/api/customers/" + id.String(), "", nil, http.StatusNoContent, ""},
		{"delete in use", http.MethodDelete, "/api/customers/" + id.String(), "", store.ErrInUse, http.StatusConflict, "DB003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubService{err: tt.svcErr})
			rec := do(t, srv, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("%s %s status = %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := decodeError(t, rec).Code; got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}

func TestListCustomers_Page(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(svc)
	do(t, srv, http.MethodGet, "/api/customers?limit=10&offset=20", "")

	if svc.gotPage != (store.Page{Limit: 10, Offset: 20}) {
		t.Errorf("page = %+v, want limit 10 offset 20", svc.gotPage)
	}
}

func TestCreateProduct_DecodesPrice(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(svc)

	rec := do(t, srv, http.MethodPost, "/api/products", `{"name":"Cement","unitPrice":"10.50","stockQuantity":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	want := core.ProductInput{Name: "Cement", UnitPrice: decimal.RequireFromString("10.50"), StockQuantity: 3}
	if svc.gotProduct.Name != want.Name || !svc.gotProduct.UnitPrice.Equal(want.UnitPrice) || svc.gotProduct.StockQuantity != 3 {
		t.Errorf("input = %+v, want %+v", svc.gotProduct, want)
	}
}

func TestProductRoutes_Errors(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		svcErr error
		want   int
	}{
		{"invalid", http.MethodPost, "/api/products", `{"name":""}`, fmt.Errorf("%w: name is required", core.ErrInvalidInput), http.StatusBadRequest},
		{"duplicate", http.MethodPut, "/api/products/" + id.String(), `{"name":"A","unitPrice":1}`, store.ErrDuplicate, http.StatusConflict},
		{"delete in use", http.MethodDelete, "/api/products/" + id.String(), "", store.ErrInUse, http.StatusConflict},
		{"internal", http.MethodGet, "/api/products", "", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubService{err: tt.svcErr})
			if rec := do(t, srv, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateSale(t *testing.T) {
	customer := uuid.New()
	product := uuid.New()
	svc := &stubService{}
	srv := newTestServer(svc)

	body := fmt.Sprintf(`{"customerId":%q,"date":"03/01/2024","items":[{"productId":%q,"quantity":2}]}`, customer, product)
	rec := do(t, srv, http.MethodPost, "/api/sales", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.gotID != customer || len(svc.gotItems) != 1 || svc.gotItems[0].Quantity != 2 {
		t.Errorf("got customer %s items %+v", svc.gotID, svc.gotItems)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !svc.gotDate.Equal(want) {
		t.Errorf("date = %v, want %v", svc.gotDate, want)
	}
}

func TestCreateSale_Errors(t *testing.T) {
	customer := uuid.New()
	tests := []struct {
		name     string
		body     string
		svcErr   error
		want     int
		wantCode string
	}{
		{"bad date", fmt.Sprintf(`{"customerId":%q,"date":"someday","items":[]}`, customer), nil, http.StatusBadRequest, "VAL003"},
		{"bad customer id", `{"customerId":"nope","items":[]}`, nil, http.StatusBadRequest, "VAL003"},
		{"out of stock", fmt.Sprintf(`{"customerId":%q,"items":[]}`, customer), fmt.Errorf("%w: \"Sand\" has 0, 1 requested", store.ErrInsufficientStock), http.StatusConflict, "VAL007"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubService{err: tt.svcErr})
			rec := do(t, srv, http.MethodPost, "/api/sales", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestListSales_Filters(t *testing.T) {
	customer := uuid.New()
	run := uuid.New()
	svc := &stubService{}
	srv := newTestServer(svc)

	rec := do(t, srv, http.MethodGet, "/api/sales?customer="+customer.String()+"&import="+run.String()+"&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.gotFilter.CustomerID != customer || svc.gotFilter.ImportRunID != run || svc.gotFilter.Page.Limit != 5 {
		t.Errorf("filter = %+v", svc.gotFilter)
	}

	if rec := do(t, srv, http.MethodGet, "/api/sales?customer=bad", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", rec.Code)
	}
}

// ============================================================================
// Status mapping
// ============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("insert: %w", store.ErrDuplicate), http.StatusConflict},
		{store.ErrInsufficientStock, http.StatusConflict},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{sheet.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{sheet.ErrNoHeader, http.StatusBadRequest},
		{importer.ErrNoRows, http.StatusBadRequest},
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
