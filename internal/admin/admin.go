package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/die-net/gatekeep/internal/logging"
	"github.com/die-net/gatekeep/internal/policy"
)

type Options struct {
	Policy *policy.Engine
	// Logs, if set, is served by GET /logs.
	Logs *logging.Tail
	// Gatherer, if set, is served by GET /metrics.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// BlacklistResponse is the body of GET /blacklist.
type BlacklistResponse struct {
	Enabled bool     `json:"enabled"`
	Entries []string `json:"entries"`
}

// Response is the body of every mutation endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type api struct {
	policy *policy.Engine
	logs   *logging.Tail
	logger *zap.Logger
}

// NewHandler returns the router for the administrative interface.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &api{policy: opts.Policy, logs: opts.Logs, logger: logger.Named("admin")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", a.dashboard)
	r.Get("/blacklist", a.blacklist)
	r.Post("/add_blacklist", a.addEntry)
	r.Post("/remove_blacklist", a.removeEntry)
	r.Post("/mode", a.setMode)
	r.Get("/logs", a.tail)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (a *api) blacklist(rw http.ResponseWriter, _ *http.Request) {
	write(rw, http.StatusOK, BlacklistResponse{
		Enabled: a.policy.Enabled(),
		Entries: a.policy.Entries(),
	})
}

func (a *api) addEntry(rw http.ResponseWriter, r *http.Request) {
	entry, ok := readEntry(rw, r)
	if !ok {
		return
	}
	a.policy.Add(entry)
	write(rw, http.StatusOK, Response{Success: true})
}

func (a *api) removeEntry(rw http.ResponseWriter, r *http.Request) {
	entry, ok := readEntry(rw, r)
	if !ok {
		return
	}
	a.policy.Remove(entry)
	write(rw, http.StatusOK, Response{Success: true})
}

func (a *api) setMode(rw http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(strings.TrimSpace(r.PostFormValue("enabled")))
	if err != nil {
		write(rw, http.StatusBadRequest, Response{Message: `form field "enabled" must be true or false`})
		return
	}
	a.policy.SetEnabled(enabled)
	write(rw, http.StatusOK, Response{Success: true})
}

func (a *api) tail(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if a.logs == nil {
		return
	}
	if _, err := rw.Write([]byte(a.logs.String())); err != nil {
		a.logger.Debug("writing logs failed", zap.Error(err))
	}
}

// readEntry returns the "entry" form field, answering 400 itself when it
// is missing or normalizes to nothing.
func readEntry(rw http.ResponseWriter, r *http.Request) (string, bool) {
	entry := strings.TrimSpace(r.PostFormValue("entry"))
	if policy.Normalize(entry) == "" {
		write(rw, http.StatusBadRequest, Response{Message: `form field "entry" is required`})
		return "", false
	}
	return entry, true
}

func write(rw http.ResponseWriter, status int, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}
