// Package server exposes wizards over HTTP. Forms are served as JSON; nojs
// submissions answer with a 303 redirect to the next step, ajax submissions
// with a list of modal commands.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevehiehn/formwizard/internal/condition"
	"github.com/stevehiehn/formwizard/internal/definition"
	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/form"
	"github.com/stevehiehn/formwizard/internal/route"
	"github.com/stevehiehn/formwizard/internal/tempstore"
	"github.com/stevehiehn/formwizard/internal/wizard"
)

// Route names registered by New.
const (
	RouteStart      = "wizard.start"
	RouteStep       = definition.DefaultRoute
	RouteConditions = "wizard.conditions"
)

// Request headers
const (
	HeaderRequestID = "X-Request-Id"
	HeaderOwner     = "X-Wizard-Owner"
)

type registered struct {
	engine *wizard.Engine
	flow   *condition.Flow
}

// Server serves the registered wizards.
type Server struct {
	routes  *route.Table
	metrics *Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	wizards map[string]registered
}

// New creates a server and registers its routes in routes.
func New(routes *route.Table, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	routes.Add(RouteStart, "/wizards/{wizard}/{js}")
	routes.Add(RouteStep, "/wizards/{wizard}/{js}/{machine_name}/{step}")
	routes.Add(RouteConditions, "/wizards/{wizard}/{js}/{machine_name}/conditions/{condition}")
	return &Server{
		routes:  routes,
		metrics: metrics,
		logger:  logger,
		wizards: map[string]registered{},
	}
}

// Register serves e. flow may be nil for wizards without conditions. The
// definition's step and finish routes must exist in the route table.
func (s *Server) Register(e *wizard.Engine, flow *condition.Flow) error {
	def := e.Definition()
	for _, name := range []string{def.RouteName(), def.FinishRoute} {
		if name == "" {
			continue
		}
		if _, ok := s.routes.Pattern(name); !ok {
			return &wzerrors.WizardError{
				Type:    wzerrors.RouteNotFound,
				Wizard:  def.Name,
				Message: fmt.Sprintf("wizard %q uses unknown route %q", def.Name, name),
				Hint:    "Known routes: " + fmt.Sprint(s.routes.Names()),
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wizards[def.Name] = registered{engine: e, flow: flow}
	return nil
}

func (s *Server) lookup(name string) (registered, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.wizards[name]
	return reg, ok
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /wizards", s.handleList)
	mux.HandleFunc("PUT /wizards/{wizard}/{machine_name}", s.handleInit)
	mux.HandleFunc("GET /wizards/{wizard}/{js}", s.handleStep)
	mux.HandleFunc("POST /wizards/{wizard}/{js}", s.handleStep)
	mux.HandleFunc("GET /wizards/{wizard}/{js}/{machine_name}/{step}", s.handleStep)
	mux.HandleFunc("POST /wizards/{wizard}/{js}/{machine_name}/{step}", s.handleStep)
	mux.HandleFunc("GET /wizards/{wizard}/{js}/{machine_name}/conditions/{condition}", s.handleCondition)
	mux.HandleFunc("POST /wizards/{wizard}/{js}/{machine_name}/conditions/{condition}", s.handleCondition)
	mux.HandleFunc("DELETE /wizards/{wizard}/{machine_name}/conditions/{index}", s.handleRemoveCondition)
	return s.instrument(mux)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("wizard server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("wizard server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type loggerKey struct{}

func (s *Server) log(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return s.logger
}

// instrument assigns a request id, records the tempstore owner, and records
// metrics once the request is served.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		owner := r.Header.Get(HeaderOwner)
		if owner == "" {
			owner = id
		}
		logger := s.logger.With("request_id", id)
		ctx := context.WithValue(r.Context(), loggerKey{}, logger)
		ctx = tempstore.ContextWithOwner(ctx, owner)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Method, pattern, rec.status, elapsed)
		logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.wizards)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"wizards": count,
	})
}

type wizardInfo struct {
	Name       string                 `json:"name"`
	Label      string                 `json:"label,omitempty"`
	Collection string                 `json:"collection"`
	Steps      []string               `json:"steps"`
	Conditions []condition.PluginInfo `json:"conditions,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]wizardInfo, 0, len(s.wizards))
	for _, reg := range s.wizards {
		def := reg.engine.Definition()
		info := wizardInfo{Name: def.Name, Label: def.Label, Collection: def.Collection, Steps: def.Keys()}
		if reg.flow != nil {
			info.Conditions = reg.flow.Plugins()
		}
		out = append(out, info)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (registered, bool) {
	name := r.PathValue("wizard")
	reg, ok := s.lookup(name)
	if !ok {
		s.writeError(w, r, &wzerrors.WizardError{
			Type:    wzerrors.RouteNotFound,
			Wizard:  name,
			Message: fmt.Sprintf("unknown wizard %q", name),
		})
		return reg, false
	}
	if js := r.PathValue("js"); js != "" && js != wizard.JSAjax && js != wizard.JSNoJS {
		s.writeError(w, r, &wzerrors.WizardError{
			Type:    wzerrors.RouteNotFound,
			Wizard:  name,
			Message: fmt.Sprintf("js must be %q or %q, got %q", wizard.JSAjax, wizard.JSNoJS, js),
		})
		return reg, false
	}
	return reg, true
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var values map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			s.writeBadRequest(w, r, "request body must be a JSON object")
			return
		}
	}
	wz, err := reg.engine.Wizard(r.PathValue("machine_name"), "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := wz.InitValues(r.Context(), values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"machine_name": wz.MachineName(), "created": created})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolve(w, r)
	if !ok {
		return
	}
	wz, err := reg.engine.Wizard(r.PathValue("machine_name"), r.PathValue("step"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	build := func(ctx context.Context, st *form.State) (*form.Form, error) {
		return wz.BuildForm(ctx, st)
	}
	s.serveForm(w, r, build, func() string { return wz.MachineName() })
}

func (s *Server) handleCondition(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if reg.flow == nil {
		s.writeError(w, r, &wzerrors.WizardError{
			Type:    wzerrors.RouteNotFound,
			Wizard:  reg.engine.Definition().Name,
			Message: "wizard has no conditions",
		})
		return
	}
	collection := reg.engine.Definition().Collection
	machineName := r.PathValue("machine_name")
	ref := r.PathValue("condition")
	build := func(ctx context.Context, st *form.State) (*form.Form, error) {
		return reg.flow.Build(ctx, st, ref, collection, machineName)
	}
	s.serveForm(w, r, build, func() string { return machineName })
}

func (s *Server) handleRemoveCondition(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if reg.flow == nil {
		s.writeError(w, r, &wzerrors.WizardError{Type: wzerrors.RouteNotFound, Message: "wizard has no conditions"})
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeBadRequest(w, r, "condition index must be an integer")
		return
	}
	if err := reg.flow.Remove(r.Context(), reg.engine.Definition().Collection, r.PathValue("machine_name"), index); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type formResponse struct {
	Form   *form.Form        `json:"form"`
	Values map[string]any    `json:"values,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	Error  error             `json:"error,omitempty"`
}

// serveForm builds the form on GET and processes it on POST.
func (s *Server) serveForm(w http.ResponseWriter, r *http.Request, build func(context.Context, *form.State) (*form.Form, error), machineName func() string) {
	ctx := r.Context()
	isAjax := r.PathValue("js") == wizard.JSAjax

	if r.Method == http.MethodGet {
		st := form.NewState(nil)
		st.Ajax = isAjax
		f, err := build(ctx, st)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, formResponse{Form: f, Values: st.CachedValues()})
		return
	}

	op, values, err := decodeSubmission(r)
	if err != nil {
		s.writeBadRequest(w, r, err.Error())
		return
	}
	st := form.NewState(values)
	st.Op = op
	st.Ajax = isAjax
	f, err := build(ctx, st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := form.Process(ctx, f, st); err != nil {
		if wzerrors.IsType(err, wzerrors.ValidationError) {
			we, _ := wzerrors.As(err)
			s.log(r).Info("submission rejected", "form", f.ID, "step", f.Step, "fields", len(we.Fields))
			writeJSON(w, http.StatusUnprocessableEntity, formResponse{Form: f, Errors: st.Errors(), Error: we})
			return
		}
		s.writeError(w, r, err)
		return
	}

	switch {
	case st.Ajax && st.Response != nil:
		writeJSON(w, http.StatusOK, st.Response)
	case st.Redirect != nil:
		params := map[string]string{"wizard": r.PathValue("wizard")}
		for k, v := range st.Redirect.Params {
			params[k] = v
		}
		url, err := s.routes.URL(st.Redirect.Route, params)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		http.Redirect(w, r, url, http.StatusSeeOther)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "finished", "machine_name": machineName()})
	}
}

// decodeSubmission reads the pressed button and the submitted values from a
// JSON body {"op": ..., "values": {...}} or a urlencoded form whose "op"
// field names the button.
func decodeSubmission(r *http.Request) (string, map[string]any, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return "", nil, fmt.Errorf("invalid form body: %w", err)
		}
		values := map[string]any{}
		for k, vs := range r.PostForm {
			if k == "op" {
				continue
			}
			if len(vs) == 1 {
				values[k] = vs[0]
			} else {
				items := make([]any, len(vs))
				for i, v := range vs {
					items[i] = v
				}
				values[k] = items
			}
		}
		return r.PostForm.Get("op"), values, nil
	}

	var body struct {
		Op     string         `json:"op"`
		Values map[string]any `json:"values"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", nil, fmt.Errorf("request body must be JSON: %w", err)
		}
	}
	return body.Op, body.Values, nil
}

func statusFor(err error) int {
	we, ok := wzerrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch we.Type {
	case wzerrors.ValidationError:
		return http.StatusUnprocessableEntity
	case wzerrors.StoreUnavailable:
		return http.StatusServiceUnavailable
	case wzerrors.UnknownStep, wzerrors.RouteNotFound, wzerrors.PluginNotFound, wzerrors.IndexOutOfRange:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	we, ok := wzerrors.As(err)
	if !ok {
		we = &wzerrors.WizardError{Type: "INTERNAL", Message: err.Error()}
	}
	if status >= http.StatusInternalServerError {
		s.log(r).Error("request failed", "error", err, "status", status)
	} else {
		s.log(r).Info("request rejected", "error", err, "status", status)
	}
	writeJSON(w, status, map[string]any{"error": we})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.log(r).Info("bad request", "error", msg)
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": &wzerrors.WizardError{Type: "BAD_REQUEST", Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
