package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"invoicer/internal/repository"
	"invoicer/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func sampleInvoice(fileID string) models.Invoice {
	return models.Invoice{
		ID:       "65f1c0ffee0000000000abcd",
		FileID:   fileID,
		FileName: fileID + ".pdf",
		Vendor:   models.Vendor{Name: "Acme GmbH", TaxID: "DE123"},
		Invoice: models.InvoiceData{
			Number:   "INV-7",
			Date:     "2024-03-01",
			Currency: "EUR",
			Subtotal: ptr(100.0),
			Total:    ptr(119.0),
			LineItems: []models.LineItem{
				{Description: "Hosting", UnitPrice: 50, Quantity: 2, Total: 100},
			},
		},
		CreatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestNewRow(t *testing.T) {
	row := NewRow(sampleInvoice("f1"))

	if row.TaxAmount == nil || *row.TaxAmount != 19 {
		t.Errorf("TaxAmount = %v, want 19", row.TaxAmount)
	}
	if row.LineItems != "2 x Hosting" {
		t.Errorf("LineItems = %q", row.LineItems)
	}
	if row.CreatedAt != "2024-03-01 09:30:00" {
		t.Errorf("CreatedAt = %q", row.CreatedAt)
	}

	values := row.Values()
	if len(values) != len(Headers) {
		t.Fatalf("len(Values) = %d, want %d", len(values), len(Headers))
	}
	if values[7] != "" {
		t.Errorf("missing tax percent = %v, want empty cell", values[7])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	invoices := []models.Invoice{sampleInvoice("f1"), sampleInvoice("f2")}
	if err := WriteXLSX(&buf, invoices); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(XLSXSheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "File Name" || rows[0][len(Headers)-1] != "Created At" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[2][0] != "f2.pdf" || rows[2][3] != "Acme GmbH" || rows[2][9] != "119" {
		t.Errorf("row = %v", rows[2])
	}
}

func TestCollectPagesThroughAll(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < repository.MaxLimit+5; i++ {
		inv := sampleInvoice(fmt.Sprintf("file-%03d", i))
		if _, err := repo.Create(ctx, &inv); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Collect(ctx, repo, "")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != repository.MaxLimit+5 {
		t.Errorf("len = %d, want %d", len(got), repository.MaxLimit+5)
	}

	none, err := Collect(ctx, repo, "no such vendor")
	if err != nil || len(none) != 0 {
		t.Errorf("Collect(no match) = %d, %v", len(none), err)
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0", "1AbC-d_9", false},
		{"https://docs.google.com/document/d/xyz", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractSpreadsheetID(tt.url)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractSpreadsheetID(%q) = %q, %v", tt.url, got, err)
		}
	}
}

// fakeSheetsAPI serves the handful of Sheets v4 endpoints the exporter calls.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	calls    []string
	appended [][]interface{}
	header   [][]interface{}
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "batchUpdate")
		fmt.Fprint(w, `{"replies":[{"addSheet":{"properties":{"sheetId":42,"title":"Invoices"}}}]}`)
	case strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		fmt.Fprint(w, `{}`)
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		f.calls = append(f.calls, "updateHeader")
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.header = vr.Values
		fmt.Fprint(w, `{}`)
	case strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "getHeader")
		fmt.Fprint(w, `{"values":[]}`)
	default:
		f.calls = append(f.calls, "get")
		fmt.Fprint(w, `{"spreadsheetId":"sheet123","sheets":[{"properties":{"sheetId":0,"title":"Sheet1"}}]}`)
	}
}

func TestSheetsExporter(t *testing.T) {
	api := &fakeSheetsAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	svc, err := sheets.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}

	exporter := NewSheetsExporterWithService(svc, "sheet123", "")
	if err := exporter.Export(ctx, []models.Invoice{sampleInvoice("f1")}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	want := []string{"get", "batchUpdate", "getHeader", "updateHeader", "batchUpdate", "append"}
	if strings.Join(api.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", api.calls, want)
	}
	if len(api.header) != 1 || api.header[0][0] != "File Name" {
		t.Errorf("header = %v", api.header)
	}
	if len(api.appended) != 1 || api.appended[0][1] != "INV-7" {
		t.Errorf("appended = %v", api.appended)
	}
}
