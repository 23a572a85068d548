package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datavista/internal/config"
	"datavista/internal/engine"

	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func newTestServer(t *testing.T, store *engine.Store) (*echo.Echo, *Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit = 0
	cfg.LogLevel = "off"
	h := NewHandler(store)
	e, err := NewServer(cfg, h)
	if err != nil {
		t.Fatal(err)
	}
	return e, h
}

func do(e *echo.Echo, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type olapBody struct {
	Operation string          `json:"operation"`
	Columns   []string        `json:"columns"`
	Headers   []string        `json:"headers"`
	Rows      [][]interface{} `json:"rows"`
	Count     int             `json:"count"`
}

func decodeOLAP(t *testing.T, rec *httptest.ResponseRecorder) olapBody {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body olapBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestLoadingReturns503(t *testing.T) {
	e, h := newTestServer(t, nil)

	for _, target := range []string{"/api/olap", "/api/records", "/api/dashboard", "/api/products/top"} {
		if rec := do(e, http.MethodGet, target, "", nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", target, rec.Code)
		}
	}

	h.SetStore(engine.NewStore(engine.SampleRecords()))
	if rec := do(e, http.MethodGet, "/api/olap", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 after load, got %d", rec.Code)
	}
}

func TestLoadFailureReturns500(t *testing.T) {
	e, h := newTestServer(t, nil)
	h.SetLoadError(errors.New("reading sales.csv: no such file"))

	for _, target := range []string{"/api/olap", "/api/records", "/api/dashboard", "/api/sales/monthly"} {
		rec := do(e, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", target, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "no such file") {
			t.Errorf("%s: expected the cause in the body, got %s", target, rec.Body.String())
		}
	}
}

func TestGetOLAPSlice(t *testing.T) {
	e, _ := newTestServer(t, engine.NewStore(engine.SampleRecords()))

	body := decodeOLAP(t, do(e, http.MethodGet, "/api/olap?op=slice&field=state&value=California", "", nil))
	if body.Operation != "slice" || body.Count != 2 {
		t.Fatalf("Unexpected response: %+v", body)
	}
	if body.Headers[3] != "City" {
		t.Errorf("Expected City header, got %v", body.Headers)
	}
	if body.Rows[1][3] != "San Diego" {
		t.Errorf("Expected San Diego, got %v", body.Rows[1][3])
	}
	if body.Rows[0][5] != float64(1000) {
		t.Errorf("Expected numeric sales 1000, got %#v", body.Rows[0][5])
	}
}

func TestGetOLAPPivotBlankCells(t *testing.T) {
	e, _ := newTestServer(t, engine.NewStore(engine.SampleRecords()))

	body := decodeOLAP(t, do(e, http.MethodGet, "/api/olap?op=pivot", "", nil))
	if len(body.Rows) != 3 || len(body.Columns) != 5 {
		t.Fatalf("Expected 3x5 pivot, got %dx%d", len(body.Rows), len(body.Columns))
	}
	if body.Rows[0][3] != "" {
		t.Errorf("Expected blank cell, got %#v", body.Rows[0][3])
	}
}

func TestGetOLAPETag(t *testing.T) {
	e, _ := newTestServer(t, engine.NewStore(engine.SampleRecords()))

	first := do(e, http.MethodGet, "/api/olap?op=rollup", "", nil)
	tag := first.Header().Get(headerETag)
	if tag == "" {
		t.Fatal("Missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/olap?op=rollup", nil)
	req.Header.Set(headerIfNoneMatch, tag)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", rec.Code)
	}

	other := do(e, http.MethodGet, "/api/olap?op=pivot", "", nil)
	if other.Header().Get(headerETag) == tag {
		t.Error("Different operations should not share an ETag")
	}
}

func TestGetOLAPArrow(t *testing.T) {
	e, _ := newTestServer(t, engine.NewStore(engine.SampleRecords()))

	rec := do(e, http.MethodGet, "/api/olap/arrow?op=rollup", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != arrowStreamMIME {
		t.Errorf("Unexpected content type %s", ct)
	}

	rdr, err := ipc.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer rdr.Release()
	if !rdr.Next() {
		t.Fatal("Expected a record batch")
	}
	if n := rdr.Record().NumCols(); n != 5 {
		t.Errorf("Expected 5 rollup columns, got %d", n)
	}
}

func TestPostOLAPJSON(t *testing.T) {
	e, _ := newTestServer(t, nil)

	payload := `[
		{"date":"2024-02-01","country":"USA","state":"California","city":"Los Angeles","product":"iPhone","sales":700},
		{"date":"2024-02-01","country":"USA","state":"California","city":"San Diego","product":"iPhone","sales":300}
	]`
	body := decodeOLAP(t, do(e, http.MethodPost, "/api/olap?op=rollup", echo.MIMEApplicationJSON, []byte(payload)))
	if body.Count != 1 || body.Rows[0][4] != float64(1000) {
		t.Errorf("Expected one merged row of 1000, got %+v", body)
	}
}

func TestPostOLAPCSV(t *testing.T) {
	e, _ := newTestServer(t, nil)

	payload := "date,state,city,product,sales\n2024-01-05,Texas,Austin,iPad,5\n2024-01-05,Ohio,Akron,iPad,6\n"
	body := decodeOLAP(t, do(e, http.MethodPost, "/api/olap?op=dice&field1=state&values1=Texas&field2=product&values2=iPad,iPhone", "text/csv; charset=utf-8", []byte(payload)))
	if body.Count != 1 || body.Rows[0][3] != "Austin" {
		t.Errorf("Expected only Austin, got %+v", body)
	}
}

func TestPostOLAPMalformed(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec := do(e, http.MethodPost, "/api/olap", echo.MIMEApplicationJSON, []byte(`[{"sales":`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", rec.Code)
	}
}

func TestPostOLAPNonFiniteSales(t *testing.T) {
	e, _ := newTestServer(t, nil)
	for _, bad := range []string{"NaN", "Inf"} {
		payload := "date,state,product,sales\n2024-01-01,Texas,iPhone," + bad + "\n"
		rec := do(e, http.MethodPost, "/api/olap", "text/csv", []byte(payload))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", bad, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "line 2") {
			t.Errorf("%s: expected the line number, got %s", bad, rec.Body.String())
		}
	}
}

func TestGetRecordsPagination(t *testing.T) {
	e, _ := newTestServer(t, engine.NewStore(engine.SampleRecords()))

	rec := do(e, http.MethodGet, "/api/records?limit=2&offset=1", "", nil)
	var body struct {
		Data []struct {
			City string `json:"city"`
		} `json:"data"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 6 || len(body.Data) != 2 || body.Data[0].City != "San Diego" {
		t.Errorf("Unexpected page: %+v", body)
	}

	rec = do(e, http.MethodGet, "/api/records?offset=50", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 0 {
		t.Errorf("Expected empty page past the end, got %d", len(body.Data))
	}
}

func TestGetOperations(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/api/operations", "", nil)
	var ops []operationInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &ops); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 6 || ops[0].Name != engine.OpDice || len(ops[0].Params) != 4 {
		t.Errorf("Unexpected operations: %+v", ops)
	}
}

func TestDashboardRoutes(t *testing.T) {
	e, _ := newTestServer(t, engine.NewStore(engine.SampleRecords()))

	rec := do(e, http.MethodGet, "/api/products/top?limit=1", "", nil)
	var products []struct {
		Name  string  `json:"product_name"`
		Value float64 `json:"sales"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].Name != "MacBook" || products[0].Value != 3700 {
		t.Errorf("Unexpected top product: %+v", products)
	}

	rec = do(e, http.MethodGet, "/api/sales/monthly", "", nil)
	if !strings.Contains(rec.Body.String(), `"January"`) {
		t.Errorf("Expected January in monthly sales: %s", rec.Body.String())
	}
}

func TestPostPlaygroundRaw(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/playground?name=data.csv", "text/plain", []byte("city,visits\nOslo,3\nLima,4\nOslo,1\n"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Columns []string `json:"columns"`
		Rows    [][]string `json:"rows"`
		Series  struct {
			Points []struct {
				Label string  `json:"label"`
				Value float64 `json:"value"`
			} `json:"points"`
		} `json:"series"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Columns) != 2 || len(body.Rows) != 3 {
		t.Errorf("Unexpected table: %+v", body)
	}
	if len(body.Series.Points) != 2 || body.Series.Points[0].Value != 4 {
		t.Errorf("Expected Oslo=4, got %+v", body.Series.Points)
	}
}

func TestPostPlaygroundNonFiniteText(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/playground?name=x.csv", "text/plain", []byte("name,score\nalice,NaN\nbob,inf\n"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"rows":[["alice","NaN"],["bob","inf"]]`) {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestPostPlaygroundMultipart(t *testing.T) {
	e, _ := newTestServer(t, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "upload.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(`{"name":"widget","count":2}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rec := do(e, http.MethodPost, "/api/playground", w.FormDataContentType(), buf.Bytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"columns":["name","count"]`) {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestPostPlaygroundMalformed(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/playground?name=bad.json", "text/plain", []byte(`{"a":`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/api/playground?label=x&value=y", "text/plain", []byte("a,b\n1,2\n"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown series columns, got %d", rec.Code)
	}
}
