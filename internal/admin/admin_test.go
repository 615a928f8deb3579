package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/die-net/gatekeep/internal/logging"
	"github.com/die-net/gatekeep/internal/metrics"
	"github.com/die-net/gatekeep/internal/policy"
)

type fixture struct {
	policy  *policy.Engine
	tail    *logging.Tail
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	p := policy.New(logger, true)
	tail := logging.NewTail(10)
	reg := prometheus.NewRegistry()
	m := metrics.NewProxy(reg)
	m.Request("connect")

	return &fixture{
		policy:  p,
		tail:    tail,
		handler: NewHandler(Options{Policy: p, Logs: tail, Gatherer: reg, Logger: logger}),
	}
}

func (f *fixture) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestBlacklistLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/blacklist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, BlacklistResponse{Enabled: true, Entries: []string{}}, decode[BlacklistResponse](t, rec))

	rec = f.do(t, http.MethodPost, "/add_blacklist", url.Values{"entry": {"https://www.Example.com/path"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true}`, rec.Body.String())
	require.True(t, f.policy.IsBlocked("example.com"))

	f.do(t, http.MethodPost, "/add_blacklist", url.Values{"entry": {"test.org"}})
	rec = f.do(t, http.MethodGet, "/blacklist", nil)
	require.Equal(t, []string{"example.com", "test.org"}, decode[BlacklistResponse](t, rec).Entries)

	rec = f.do(t, http.MethodPost, "/remove_blacklist", url.Values{"entry": {"example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, f.policy.IsBlocked("example.com"))

	// Removing an absent entry is not an error.
	rec = f.do(t, http.MethodPost, "/remove_blacklist", url.Values{"entry": {"absent.example"}})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEmptyEntryRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{"/add_blacklist", "/remove_blacklist"} {
		rec := f.do(t, http.MethodPost, path, url.Values{"entry": {"  "}})
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		require.False(t, decode[Response](t, rec).Success, path)
	}
	require.Empty(t, f.policy.Entries())
}

func TestMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.policy.Add("blocked.example")

	rec := f.do(t, http.MethodPost, "/mode", url.Values{"enabled": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, f.policy.Enabled())
	require.False(t, f.policy.IsBlocked("blocked.example"))

	rec = f.do(t, http.MethodPost, "/mode", url.Values{"enabled": {"maybe"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, f.policy.Enabled())

	f.do(t, http.MethodPost, "/mode", url.Values{"enabled": {"true"}})
	require.True(t, f.policy.IsBlocked("blocked.example"))
}

func TestDashboardEscapesEntries(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.policy.Add("evil.example<script>")

	rec := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "Blacklist Manager")
	require.NotContains(t, rec.Body.String(), "evil.example<script>")
}

func TestLogs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, _ = f.tail.Write([]byte("first line\nsecond line\n"))

	rec := f.do(t, http.MethodGet, "/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "first line\nsecond line\n", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `gatekeep_proxy_requests_total{kind="connect"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/add_blacklist", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
