package review

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService(nil))
	e := echo.New()
	return h, e
}

func jsonContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func createViaHandler(t *testing.T, h *Handler, e *echo.Echo) *View {
	t.Helper()
	c, rec := jsonContext(e, http.MethodPost, `{"review_type":"post","clinician_role":"ALERT CN"}`)
	if err := h.CreateReview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var v View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &v
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_CreateReview(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)
	if v.Fields["clinician_role"] != "ALERT CN" {
		t.Errorf("expected role ALERT CN, got %v", v.Fields["clinician_role"])
	}
}

func TestHandler_CreateReview_BadType(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, `{"review_type":"sideways"}`)
	expectHTTPError(t, h.CreateReview(c), http.StatusBadRequest)
}

func TestHandler_GetReview_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectHTTPError(t, h.GetReview(c), http.StatusNotFound)
}

func TestHandler_ListReviews(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e)
	createViaHandler(t, h, e)

	req := httptest.NewRequest(http.MethodGet, "/?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListReviews(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Summary `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}
	if link := rec.Header().Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}
}

func TestHandler_SetField(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)

	c, rec := jsonContext(e, http.MethodPut, `{"value":true}`)
	c.SetParamNames("id", "name")
	c.SetParamValues(v.ID, "renal")
	if err := h.SetField(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got View
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Fields["renal"] != true {
		t.Errorf("expected renal true, got %v", got.Fields["renal"])
	}
}

func TestHandler_SetField_Errors(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)

	tests := []struct {
		name  string
		field string
		body  string
		code  int
	}{
		{"unknown field", "nonsense", `{"value":"x"}`, http.StatusNotFound},
		{"wrong kind", "renal", `{"value":[1,2]}`, http.StatusBadRequest},
		{"bad option", "override", `{"value":"purple"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := jsonContext(e, http.MethodPut, tt.body)
			c.SetParamNames("id", "name")
			c.SetParamValues(v.ID, tt.field)
			expectHTTPError(t, h.SetField(c), tt.code)
		})
	}
}

func TestHandler_Import(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)

	body, _ := json.Marshal(map[string]string{"text": importNote})
	c, rec := jsonContext(e, http.MethodPost, string(body))
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum ImportSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Toast != "Data Imported Successfully" || !sum.QuickReview {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestHandler_Import_EmptyText(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)
	c, _ := jsonContext(e, http.MethodPost, `{"text":""}`)
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	expectHTTPError(t, h.Import(c), http.StatusBadRequest)
}

func TestHandler_ApplyADDS(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)

	c, rec := jsonContext(e, http.MethodPost, `{"rr":"32","spo2":"90","o2":"RA","sbp":"110","hr":"120","temp":"37","avpu":"A"}`)
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	if err := h.ApplyADDS(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct {
		Score struct {
			Total int `json:"total"`
		} `json:"score"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Score.Total != 5 {
		t.Errorf("expected ADDS 5, got %d", out.Score.Total)
	}
}

func TestHandler_Devices(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)

	c, rec := jsonContext(e, http.MethodPost, `{"type":"CVC","details":"R IJ","insertion_date":"2026-10-01"}`)
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	if err := h.AddDevice(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, _ = jsonContext(e, http.MethodPost, `{"type":"CVC","insertion_date":"01/10/2026"}`)
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	expectHTTPError(t, h.AddDevice(c), http.StatusBadRequest)

	c, _ = jsonContext(e, http.MethodDelete, "")
	c.SetParamNames("id", "index")
	c.SetParamValues(v.ID, "x")
	expectHTTPError(t, h.RemoveDevice(c), http.StatusBadRequest)

	c, _ = jsonContext(e, http.MethodDelete, "")
	c.SetParamNames("id", "index")
	c.SetParamValues(v.ID, "5")
	expectHTTPError(t, h.RemoveDevice(c), http.StatusBadRequest)

	c, rec = jsonContext(e, http.MethodDelete, "")
	c.SetParamNames("id", "index")
	c.SetParamValues(v.ID, "0")
	if err := h.RemoveDevice(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_UndoWithoutClear(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)
	c, _ := jsonContext(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	expectHTTPError(t, h.Undo(c), http.StatusConflict)
}

func TestHandler_SurveyURL(t *testing.T) {
	h, e := newTestHandler()
	v := createViaHandler(t, h, e)
	c, rec := jsonContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(v.ID)
	if err := h.GetSurveyURL(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if !strings.Contains(out["url"], "alert_team=2") {
		t.Errorf("expected CN team code, got %q", out["url"])
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/reviews":                               false,
		"POST /api/v1/reviews":                              false,
		"GET /api/v1/reviews/:id":                           false,
		"PUT /api/v1/reviews/:id/fields/:name":              false,
		"POST /api/v1/reviews/:id/import":                   false,
		"POST /api/v1/reviews/:id/report/regenerate":        false,
		"DELETE /api/v1/reviews/:id/devices/:index":         false,
		"POST /api/v1/reviews/:id/discharge-prompt/dismiss": false,
		"GET /api/v1/reviews/:id/survey-url":                false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
