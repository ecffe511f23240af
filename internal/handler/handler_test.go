package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/catalyst-dev/liveops/internal/config"
	"github.com/catalyst-dev/liveops/internal/core"
	"github.com/catalyst-dev/liveops/internal/metrics"
)

type stubWatchOpener struct {
	open func() (watch.Interface, error)
}

func (s *stubWatchOpener) OpenWatch(context.Context, core.WatchScope, metav1.ListOptions) (watch.Interface, error) {
	return s.open()
}

type stubLogRepo struct {
	pods  []string
	texts map[string]string
	errs  map[string]error
}

func (s *stubLogRepo) ListPods(context.Context, string, string) ([]string, error) {
	return s.pods, nil
}

func (s *stubLogRepo) FetchLogs(_ context.Context, _, pod, _ string, _ core.LogOptions) (string, error) {
	if err := s.errs[pod]; err != nil {
		return "", err
	}
	return s.texts[pod], nil
}

func (s *stubLogRepo) StreamLogs(_ context.Context, _, pod, _ string, _ core.LogOptions) (io.ReadCloser, error) {
	if err := s.errs[pod]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(s.texts[pod])), nil
}

type stubExecRepo struct {
	output string
	err    error
	block  bool
}

func (s *stubExecRepo) Exec(ctx context.Context, _, _, _ string, opts core.ExecOptions) error {
	if s.output != "" {
		io.WriteString(opts.Stdout, s.output)
	}
	if s.block {
		if opts.Stdin != nil {
			go io.Copy(io.Discard, opts.Stdin)
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func newTestServer(t *testing.T, opener core.WatchOpener, logs core.LogRepo, exec core.ExecRepo) (*echo.Echo, *core.SessionStore) {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	store := core.NewSessionStore()
	h := New(
		conf,
		core.NewWatchUseCase(opener, m),
		core.NewLogUseCase(logs, m),
		core.NewShellUseCase(exec, store, m),
		m,
	)
	e := echo.New()
	h.Mount(e)
	return e, store
}

func doRequest(e *echo.Echo, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t, &stubWatchOpener{}, &stubLogRepo{}, &stubExecRepo{})
	rec := doRequest(e, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, &stubWatchOpener{}, &stubLogRepo{}, &stubExecRepo{})
	rec := doRequest(e, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "liveops_watch_sessions") {
		t.Error("gauge missing from exposition")
	}
}

func TestGetLogsEndpoint(t *testing.T) {
	repo := &stubLogRepo{texts: map[string]string{"web-0": "hello\nworld\n"}}
	e, _ := newTestServer(t, &stubWatchOpener{}, repo, &stubExecRepo{})

	rec := doRequest(e, http.MethodGet, "/v1/logs?namespace=preview&pod=web-0", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload logsPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Text != "hello\nworld\n" || payload.Target != "web-0" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestGetLogsErrorMapping(t *testing.T) {
	repo := &stubLogRepo{
		texts: map[string]string{},
		errs: map[string]error{
			"web-0": apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, "web-0"),
		},
	}
	e, _ := newTestServer(t, &stubWatchOpener{}, repo, &stubExecRepo{})

	rec := doRequest(e, http.MethodGet, "/v1/logs?namespace=preview&pod=web-0", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/v1/logs?pod=web-0", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWatchEndpointSSE(t *testing.T) {
	fw := watch.NewFakeWithChanSize(2, false)
	fw.Add(&unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata":   map[string]any{"name": "web-0", "resourceVersion": "3"},
	}})
	fw.Stop()
	opener := &stubWatchOpener{open: func() (watch.Interface, error) { return fw, nil }}
	e, _ := newTestServer(t, opener, &stubLogRepo{}, &stubExecRepo{})

	rec := doRequest(e, http.MethodGet, "/v1/watch?resource=pods&namespace=preview&reconnect=false", nil, "")
	body := rec.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Error("missing connected event")
	}
	if !strings.Contains(body, "event: change") || !strings.Contains(body, `"type":"ADDED"`) {
		t.Errorf("missing change event in %q", body)
	}
	if !strings.Contains(body, "event: error") {
		t.Error("missing terminal error event")
	}
}

func TestStreamLogsEndpointSSE(t *testing.T) {
	repo := &stubLogRepo{
		pods: []string{"web-0", "web-1"},
		texts: map[string]string{
			"web-0": "alpha\n",
			"web-1": "beta\n",
		},
	}
	e, _ := newTestServer(t, &stubWatchOpener{}, repo, &stubExecRepo{})

	rec := doRequest(e, http.MethodGet, "/v1/logs/stream?namespace=preview&selector=app%3Dweb", nil, "")
	body := rec.Body.String()
	if !strings.Contains(body, "event: targets") {
		t.Error("missing targets event")
	}
	// Multi-target lines carry the pod prefix.
	if !strings.Contains(body, `[web-0] alpha`) || !strings.Contains(body, `[web-1] beta`) {
		t.Errorf("missing prefixed lines in %q", body)
	}
	if !strings.Contains(body, "event: end") {
		t.Error("missing end event")
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	e, store := newTestServer(t, &stubWatchOpener{}, &stubLogRepo{}, &stubExecRepo{block: true})

	rec := doRequest(e, http.MethodPost, "/v1/sessions",
		strings.NewReader(`{"namespace":"preview","pod":"web-0","width":120,"height":40}`),
		echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload sessionPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.ID == "" || !payload.Active {
		t.Fatalf("payload = %+v", payload)
	}

	// Keystrokes and resize frames are accepted while live.
	rec = doRequest(e, http.MethodPost, "/v1/sessions/"+payload.ID+"/input",
		strings.NewReader("ls\n"), echo.MIMEOctetStream)
	if rec.Code != http.StatusNoContent {
		t.Errorf("input status = %d", rec.Code)
	}
	frame := core.EncodeResizeFrame(100, 30)
	rec = doRequest(e, http.MethodPost, "/v1/sessions/"+payload.ID+"/input",
		strings.NewReader(string(frame)), echo.MIMEOctetStream)
	if rec.Code != http.StatusNoContent {
		t.Errorf("resize frame status = %d", rec.Code)
	}
	rec = doRequest(e, http.MethodPost, "/v1/sessions/"+payload.ID+"/resize",
		strings.NewReader(`{"width":90,"height":28}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusNoContent {
		t.Errorf("resize status = %d", rec.Code)
	}

	// Delete is idempotent.
	for i := 0; i < 2; i++ {
		rec = doRequest(e, http.MethodDelete, "/v1/sessions/"+payload.ID, nil, "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("delete status = %d", rec.Code)
		}
	}
	if _, ok := store.Get(payload.ID); ok {
		t.Error("session still stored after delete")
	}

	// Input to a deleted session reports not found.
	rec = doRequest(e, http.MethodPost, "/v1/sessions/"+payload.ID+"/input",
		strings.NewReader("x"), echo.MIMEOctetStream)
	if rec.Code != http.StatusNotFound {
		t.Errorf("input after delete status = %d", rec.Code)
	}
}

func TestStreamSessionEndpoint(t *testing.T) {
	e, _ := newTestServer(t, &stubWatchOpener{}, &stubLogRepo{}, &stubExecRepo{output: "hello"})

	rec := doRequest(e, http.MethodPost, "/v1/sessions",
		strings.NewReader(`{"namespace":"preview","pod":"web-0"}`),
		echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var payload sessionPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doRequest(e, http.MethodGet, "/v1/sessions/"+payload.ID+"/stream", nil, "")
	}()
	select {
	case rec = <-done:
	case <-deadline:
		t.Fatal("stream did not finish")
	}

	body := rec.Body.String()
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	if !strings.Contains(body, encoded) {
		t.Errorf("stream body %q missing output chunk", body)
	}
	if !strings.Contains(body, `"exitCode":0`) {
		t.Errorf("stream body %q missing close event", body)
	}
}
