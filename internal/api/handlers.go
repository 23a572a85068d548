package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"datavista/internal/engine"
	"datavista/internal/models"
	"datavista/internal/playground"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"golang.org/x/exp/maps"
)

const (
	arrowStreamMIME   = "application/vnd.apache.arrow.stream"
	headerETag        = "ETag"
	headerIfNoneMatch = "If-None-Match"
)

// Handler serves the cube. Until SetStore is called every data route
// answers 503 so the server can start before the dataset is loaded; after
// SetLoadError they answer 500 with the cause.
type Handler struct {
	store     atomic.Pointer[engine.Store]
	dashboard atomic.Pointer[models.DashboardData]
	loadErr   atomic.Pointer[echo.HTTPError]
}

func NewHandler(store *engine.Store) *Handler {
	h := &Handler{}
	if store != nil {
		h.SetStore(store)
	}
	return h
}

// SetStore publishes a loaded dataset and its dashboard aggregates.
func (h *Handler) SetStore(store *engine.Store) {
	h.dashboard.Store(store.Aggregate())
	h.store.Store(store)
}

// SetLoadError records that the dataset could not be loaded.
func (h *Handler) SetLoadError(err error) {
	he := echo.NewHTTPError(http.StatusInternalServerError, "dataset failed to load: "+err.Error()).SetInternal(err)
	h.loadErr.Store(he)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/records", h.GetRecords)
	api.GET("/operations", h.GetOperations)
	api.GET("/olap", h.GetOLAP)
	api.GET("/olap/arrow", h.GetOLAPArrow)
	api.POST("/olap", h.PostOLAP)
	api.GET("/dashboard", h.GetDashboard)
	api.GET("/revenue", h.GetRevenueByCountry)
	api.GET("/products/top", h.GetTopProducts)
	api.GET("/states/top", h.GetTopStates)
	api.GET("/sales/monthly", h.GetMonthlySales)
	api.POST("/playground", h.PostPlayground)
}

var errLoading = echo.NewHTTPError(http.StatusServiceUnavailable, "dataset is still loading")

// unavailable explains why no dataset is being served.
func (h *Handler) unavailable() error {
	if he := h.loadErr.Load(); he != nil {
		return he
	}
	return errLoading
}

func (h *Handler) loaded() (*engine.Store, error) {
	s := h.store.Load()
	if s == nil {
		return nil, h.unavailable()
	}
	return s, nil
}

func (h *Handler) loadedDashboard() (*models.DashboardData, error) {
	d := h.dashboard.Load()
	if d == nil {
		return nil, h.unavailable()
	}
	return d, nil
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// page cuts [offset, offset+limit) out of a list of n items.
func page(c echo.Context, n int) (start, end, limit, offset int) {
	limit, offset = getPaginationParams(c, n)
	if offset >= n {
		return n, n, limit, offset
	}
	end = offset + limit
	if end > n {
		end = n
	}
	return offset, end, limit, offset
}

func (h *Handler) GetRecords(c echo.Context) error {
	s, err := h.loaded()
	if err != nil {
		return err
	}
	records := s.Records()
	start, end, limit, offset := page(c, len(records))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   records[start:end],
		"total":  len(records),
		"limit":  limit,
		"offset": offset,
	})
}

type operationInfo struct {
	Name   engine.Operation `json:"name"`
	Params []string         `json:"params"`
}

func (h *Handler) GetOperations(c echo.Context) error {
	ops := maps.Keys(engine.Operations)
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	out := make([]operationInfo, 0, len(ops))
	for _, op := range ops {
		params := engine.Operations[op]
		if params == nil {
			params = []string{}
		}
		out = append(out, operationInfo{Name: op, Params: params})
	}
	return c.JSON(http.StatusOK, out)
}

type olapResponse struct {
	Operation engine.Operation `json:"operation"`
	Columns   []string         `json:"columns"`
	Headers   []string         `json:"headers"`
	Rows      []engine.Row     `json:"rows"`
	Count     int              `json:"count"`
}

func newOLAPResponse(res *engine.Result) olapResponse {
	return olapResponse{
		Operation: res.Operation,
		Columns:   res.Columns,
		Headers:   res.Headers(),
		Rows:      res.Rows,
		Count:     len(res.Rows),
	}
}

func queryOLAP(c echo.Context) (engine.Operation, engine.Params) {
	op := engine.ParseOperation(c.QueryParam("op"))
	return op, engine.Params{
		Field:   c.QueryParam("field"),
		Value:   c.QueryParam("value"),
		Field1:  c.QueryParam("field1"),
		Values1: c.QueryParam("values1"),
		Field2:  c.QueryParam("field2"),
		Values2: c.QueryParam("values2"),
	}
}

// etag identifies a transform of a given dataset.
func etag(s *engine.Store, op engine.Operation, p engine.Params, kind string) string {
	key := fmt.Sprintf("%x\x00%s\x00%s\x00%+v", s.Fingerprint(), kind, op, p)
	return fmt.Sprintf(`"%016x"`, xxh3.HashString(key))
}

// notModified sets the ETag header and reports whether the client copy is current.
func notModified(c echo.Context, tag string) bool {
	c.Response().Header().Set(headerETag, tag)
	return c.Request().Header.Get(headerIfNoneMatch) == tag
}

func (h *Handler) GetOLAP(c echo.Context) error {
	s, err := h.loaded()
	if err != nil {
		return err
	}
	op, p := queryOLAP(c)
	if notModified(c, etag(s, op, p, "json")) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, newOLAPResponse(s.Transform(op, p)))
}

func (h *Handler) GetOLAPArrow(c echo.Context) error {
	s, err := h.loaded()
	if err != nil {
		return err
	}
	op, p := queryOLAP(c)
	if notModified(c, etag(s, op, p, "arrow")) {
		return c.NoContent(http.StatusNotModified)
	}

	c.Response().Header().Set(echo.HeaderContentType, arrowStreamMIME)
	c.Response().WriteHeader(http.StatusOK)
	return engine.WriteArrow(c.Response(), s.Transform(op, p))
}

// PostOLAP runs the transform over records sent in the body (JSON by
// default, CSV when the content type says so) instead of the loaded store.
func (h *Handler) PostOLAP(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading body")
	}

	var records []models.Record
	mt, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if mt == "text/csv" {
		records, err = engine.ParseCSV(body)
	} else {
		records, err = engine.ParseJSON(body)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "could not parse records: "+err.Error()).SetInternal(err)
	}

	op, p := queryOLAP(c)
	return c.JSON(http.StatusOK, newOLAPResponse(engine.Transform(records, op, p)))
}

func (h *Handler) GetDashboard(c echo.Context) error {
	d, err := h.loadedDashboard()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetRevenueByCountry(c echo.Context) error {
	d, err := h.loadedDashboard()
	if err != nil {
		return err
	}
	stats := d.CountryStats
	start, end, limit, offset := page(c, len(stats))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   stats[start:end],
		"total":  len(stats),
		"limit":  limit,
		"offset": offset,
	})
}

// returns Top 20 products
func (h *Handler) GetTopProducts(c echo.Context) error {
	d, err := h.loadedDashboard()
	if err != nil {
		return err
	}
	data := d.TopProducts
	limit, _ := getPaginationParams(c, len(data))

	if limit < len(data) {
		return c.JSON(http.StatusOK, data[:limit])
	}
	return c.JSON(http.StatusOK, data)
}

// returns Top 30 states
func (h *Handler) GetTopStates(c echo.Context) error {
	d, err := h.loadedDashboard()
	if err != nil {
		return err
	}
	data := d.TopStates
	limit, _ := getPaginationParams(c, len(data))

	if limit < len(data) {
		return c.JSON(http.StatusOK, data[:limit])
	}
	return c.JSON(http.StatusOK, data)
}

// monthly sales
func (h *Handler) GetMonthlySales(c echo.Context) error {
	d, err := h.loadedDashboard()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d.MonthlySales)
}

type seriesResponse struct {
	Label  string             `json:"label"`
	Value  string             `json:"value"`
	Points []playground.Point `json:"points"`
}

type playgroundResponse struct {
	*playground.Dataset
	Profile []playground.ColumnProfile `json:"profile"`
	Series  *seriesResponse            `json:"series,omitempty"`
}

// PostPlayground accepts a multipart "file" field or a raw body whose name
// comes from the "name" query parameter.
func (h *Handler) PostPlayground(c echo.Context) error {
	name, data, err := readUpload(c)
	if err != nil {
		return err
	}

	ds, err := playground.Parse(name, data)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Failed to parse file: "+err.Error()).SetInternal(err)
	}

	resp := playgroundResponse{Dataset: ds, Profile: ds.Profile()}
	label, value := c.QueryParam("label"), c.QueryParam("value")
	if label != "" && value != "" {
		points, ok := ds.Series(label, value)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown series columns")
		}
		resp.Series = &seriesResponse{Label: label, Value: value, Points: points}
	} else if label, value, points := ds.DefaultSeries(); points != nil {
		resp.Series = &seriesResponse{Label: label, Value: value, Points: points}
	}
	return c.JSON(http.StatusOK, resp)
}

func readUpload(c echo.Context) (string, []byte, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", nil, echo.NewHTTPError(http.StatusBadRequest, "missing file field").SetInternal(err)
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, errors.Wrap(err, "opening upload")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, errors.Wrap(err, "reading upload")
		}
		return fh.Filename, data, nil
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return "", nil, errors.Wrap(err, "reading body")
	}
	return c.QueryParam("name"), data, nil
}
