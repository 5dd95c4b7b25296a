package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevehiehn/formwizard/internal/condition"
	"github.com/stevehiehn/formwizard/internal/definition"
	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/route"
	"github.com/stevehiehn/formwizard/internal/step"
	"github.com/stevehiehn/formwizard/internal/tempstore"
	"github.com/stevehiehn/formwizard/internal/wizard"
)

func variantDefinition() *definition.Definition {
	return &definition.Definition{
		Name:       "variant",
		Label:      "Page variant",
		Collection: "page_variant",
		Operations: []definition.Operation{
			{Key: "general", Handler: "text", Title: "General", With: map[string]string{"field": "description"}},
			{Key: "selection", Handler: "text", Title: "Selection", With: map[string]string{"field": "note"}},
		},
		Conditions: &definition.ConditionSlot{Slot: "selection_criteria", ReturnStep: "selection"},
	}
}

type testServer struct {
	srv     *Server
	handler http.Handler
	stores  tempstore.Factory
}

func newTestServer(t *testing.T, stores tempstore.Factory) testServer {
	t.Helper()
	if stores == nil {
		stores = tempstore.NewMemoryFactory()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	routes := route.NewTable()
	metrics := NewMetrics()
	srv := New(routes, metrics, logger)

	def := variantDefinition()
	e, err := wizard.New(def, stores, step.NewRegistry(), wizard.WithLogger(logger), wizard.WithObserver(metrics))
	require.NoError(t, err)

	plugins := condition.NewManager()
	condition.RegisterBuiltins(plugins, nil)
	flow, err := condition.NewFlow(stores, plugins, condition.SlotHooks(def.Name, def.RouteName(), *def.Conditions), routes, logger)
	require.NoError(t, err)
	require.NoError(t, srv.Register(e, flow))

	return testServer{srv: srv, handler: srv.Handler(), stores: stores}
}

func (ts testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) postJSON(t *testing.T, path string, op string, values map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(map[string]any{"op": op, "values": values})
	require.NoError(t, err)
	return ts.do(t, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["wizards"])
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestListWizards(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/wizards", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []wizardInfo
	decode(t, rec, &body)
	require.Len(t, body, 1)
	assert.Equal(t, "variant", body[0].Name)
	assert.Equal(t, []string{"general", "selection"}, body[0].Steps)
	assert.Len(t, body[0].Conditions, 2)
}

func TestNoJSWizardEndToEnd(t *testing.T) {
	ts := newTestServer(t, nil)

	form := url.Values{
		"label":       {"My variant"},
		"id":          {"my_variant"},
		"description": {"Hello"},
		"op":          {"Next"},
	}
	rec := ts.do(t, http.MethodPost, "/wizards/variant/nojs", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/wizards/variant/nojs/my_variant/selection", rec.Header().Get("Location"))

	rec = ts.postJSON(t, "/wizards/variant/nojs/my_variant/conditions/request_path", "", map[string]any{"pages": "/node"})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/wizards/variant/nojs/my_variant/selection", rec.Header().Get("Location"))

	rec = ts.do(t, http.MethodGet, "/wizards/variant/nojs/my_variant/selection", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Form struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Actions []struct {
				Label string `json:"label"`
			} `json:"actions"`
		} `json:"form"`
		Values map[string]any `json:"values"`
	}
	decode(t, rec, &page)
	assert.Equal(t, "text_step_note", page.Form.ID)
	assert.Equal(t, "Selection", page.Form.Title)
	require.Len(t, page.Form.Actions, 2)
	assert.Equal(t, "Finish", page.Form.Actions[1].Label)
	assert.Equal(t, "Hello", page.Values["description"])
	assert.Len(t, page.Values["selection_criteria"], 1)

	rec = ts.postJSON(t, "/wizards/variant/nojs/my_variant/selection", "Finish", map[string]any{"note": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done map[string]any
	decode(t, rec, &done)
	assert.Equal(t, "finished", done["status"])
	assert.Equal(t, "my_variant", done["machine_name"])

	got, err := ts.stores.Get("page_variant").Get(context.Background(), "my_variant")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := rec.Body.String()
	assert.Contains(t, metrics, "formwizard_transitions_total")
	assert.Contains(t, metrics, `transition="finish"`)
	assert.Contains(t, metrics, "formwizard_http_requests_total")
}

func TestAjaxSubmitReturnsCommands(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.postJSON(t, "/wizards/variant/ajax", "Next", map[string]any{
		"label": "Modal", "id": "modal_one", "description": "x",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{
		"command": "openModalWizard",
		"wizard": "variant",
		"tempstore_id": "page_variant",
		"machine_name": "modal_one",
		"step": "selection"
	}]`, rec.Body.String())
}

func TestValidationFailureIs422(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.postJSON(t, "/wizards/variant/nojs", "Next", map[string]any{"id": "Bad Name"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Errors map[string]string `json:"errors"`
		Error  struct {
			Type string `json:"type"`
			Step string `json:"step"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	assert.Equal(t, wzerrors.ValidationError, body.Error.Type)
	assert.Equal(t, "general", body.Error.Step)
	assert.Contains(t, body.Errors, "label")
	assert.Contains(t, body.Errors, "id")
}

func TestInitValues(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"label": "Seeded"}`

	rec := ts.do(t, http.MethodPut, "/wizards/variant/seeded", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/wizards/variant/seeded", strings.NewReader(`{"label": "Other"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ts.stores.Get("page_variant").Get(context.Background(), "seeded")
	require.NoError(t, err)
	assert.Equal(t, "Seeded", got["label"])
}

func TestNotFoundResponses(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{
		"/wizards/missing/nojs",
		"/wizards/variant/nojs/m1/nope",
		"/wizards/variant/sometimes",
		"/wizards/variant/nojs/m1/conditions/unknown_plugin",
		"/wizards/variant/nojs/m1/conditions/4",
	} {
		rec := ts.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestRemoveCondition(t *testing.T) {
	ts := newTestServer(t, nil)
	seed := map[string]any{"selection_criteria": []any{
		map[string]any{"id": "request_path", "configuration": map[string]any{"pages": "/a"}},
	}}
	require.NoError(t, ts.stores.Get("page_variant").Set(context.Background(), "m1", seed))

	rec := ts.do(t, http.MethodDelete, "/wizards/variant/m1/conditions/0", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/wizards/variant/m1/conditions/0", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/wizards/variant/m1/conditions/first", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadBodyIs400(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/wizards/variant/nojs", strings.NewReader("{not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type downStore struct{}

func (downStore) fail(op, key string) error {
	return wzerrors.NewStoreError(op, key, io.ErrUnexpectedEOF)
}
func (s downStore) Get(_ context.Context, key string) (map[string]any, error) {
	return nil, s.fail("get", key)
}
func (s downStore) Set(_ context.Context, key string, _ map[string]any) error {
	return s.fail("set", key)
}
func (s downStore) SetIfNotExists(_ context.Context, key string, _ map[string]any) (bool, error) {
	return false, s.fail("set", key)
}
func (s downStore) Delete(_ context.Context, key string) error { return s.fail("delete", key) }
func (s downStore) Metadata(_ context.Context, key string) (*tempstore.Metadata, error) {
	return nil, s.fail("metadata", key)
}

type downFactory struct{}

func (downFactory) Get(string) tempstore.Store { return downStore{} }

func TestStoreUnavailableIs503(t *testing.T) {
	ts := newTestServer(t, downFactory{})
	rec := ts.do(t, http.MethodGet, "/wizards/variant/nojs/m1/general", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegisterRejectsUnknownRoutes(t *testing.T) {
	srv := New(route.NewTable(), nil, nil)
	def := variantDefinition()
	def.FinishRoute = "variant.done"
	e, err := wizard.New(def, tempstore.NewMemoryFactory(), step.NewRegistry())
	require.NoError(t, err)

	err = srv.Register(e, nil)
	require.Error(t, err)
	assert.True(t, wzerrors.IsType(err, wzerrors.RouteNotFound))
}
