package httpserver

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"learnshell/framework"
	"learnshell/framework/router"
)

func textComponent(value string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, value)
		return err
	})
}

func textView(value string) framework.ViewFunc {
	return func() templ.Component { return textComponent(value) }
}

func shellComponent(sessionID string) templ.Component {
	return textComponent("shell:" + sessionID)
}

func testRegistry() *router.Registry {
	return router.NewRegistry().
		Register("/", textView("<div>Home page</div>"), nil).
		Register("/a", textView(`<div>A page<span id="slot"></span></div>`), func(_ context.Context, scope framework.MountScope) error {
			scope.On("ping", func(_ context.Context, signals framework.Signals) error {
				return scope.Patch("slot", textComponent("pong "+signals.String("value")))
			})
			return nil
		}).
		Register("/b", textView("<div>B page</div>"), nil)
}

func TestHTTPServerCachePoliciesAndAssets(t *testing.T) {
	t.Parallel()

	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "file.txt"), []byte("asset"), 0o644); err != nil {
		t.Fatalf("write static asset: %v", err)
	}

	handler, err := New(Config{
		Registry: testRegistry(),
		Shell:    shellComponent,
		Static: StaticMount{
			URLPrefix: "/static/",
			Dir:       staticDir,
		},
		Stylesheets: map[string]func() string{
			"chroma.css": func() string { return ".chroma{}" },
		},
		CachePolicies: CachePolicies{
			HTML:   "html-cache",
			Live:   "live-cache",
			Static: "static-cache",
			Health: "health-cache",
			Error:  "error-cache",
		},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	recShell := httptest.NewRecorder()
	handler.ServeHTTP(recShell, httptest.NewRequest(http.MethodGet, "/", nil))
	if recShell.Code != http.StatusOK {
		t.Fatalf("shell status: expected %d, got %d", http.StatusOK, recShell.Code)
	}
	if got := recShell.Header().Get("Cache-Control"); got != "html-cache" {
		t.Fatalf("shell cache policy: expected %q, got %q", "html-cache", got)
	}
	if body := recShell.Body.String(); !strings.HasPrefix(body, "shell:") || len(body) <= len("shell:") {
		t.Fatalf("shell body: expected session id, got %q", body)
	}

	recStatic := httptest.NewRecorder()
	handler.ServeHTTP(recStatic, httptest.NewRequest(http.MethodGet, "/static/file.txt", nil))
	if recStatic.Code != http.StatusOK {
		t.Fatalf("static status: expected %d, got %d", http.StatusOK, recStatic.Code)
	}
	if got := recStatic.Header().Get("Cache-Control"); got != "static-cache" {
		t.Fatalf("static cache policy: expected %q, got %q", "static-cache", got)
	}

	recCSS := httptest.NewRecorder()
	handler.ServeHTTP(recCSS, httptest.NewRequest(http.MethodGet, "/static/chroma.css", nil))
	if recCSS.Code != http.StatusOK {
		t.Fatalf("stylesheet status: expected %d, got %d", http.StatusOK, recCSS.Code)
	}
	if got := recCSS.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/css") {
		t.Fatalf("stylesheet content type: got %q", got)
	}
	if body := recCSS.Body.String(); body != ".chroma{}" {
		t.Fatalf("stylesheet body: got %q", body)
	}

	recHealth := httptest.NewRecorder()
	handler.ServeHTTP(recHealth, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recHealth.Code != http.StatusOK {
		t.Fatalf("health status: expected %d, got %d", http.StatusOK, recHealth.Code)
	}
	if got := recHealth.Header().Get("Cache-Control"); got != "health-cache" {
		t.Fatalf("health cache policy: expected %q, got %q", "health-cache", got)
	}
	if body := strings.TrimSpace(recHealth.Body.String()); body != "ok" {
		t.Fatalf("health body: expected %q, got %q", "ok", body)
	}

	recMissing := httptest.NewRecorder()
	handler.ServeHTTP(recMissing, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if recMissing.Code != http.StatusNotFound {
		t.Fatalf("missing status: expected %d, got %d", http.StatusNotFound, recMissing.Code)
	}
	if got := recMissing.Header().Get("Cache-Control"); got != "error-cache" {
		t.Fatalf("missing cache policy: expected %q, got %q", "error-cache", got)
	}
}

func TestHTTPServerClientCookie(t *testing.T) {
	t.Parallel()

	var seen []string
	handler, err := New(Config{
		Registry: testRegistry(),
		Shell:    shellComponent,
		SessionContext: func(r *http.Request, clientID string) context.Context {
			seen = append(seen, clientID)
			return r.Context()
		},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := first.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != defaultClientCookie {
		t.Fatalf("expected %s cookie, got %v", defaultClientCookie, cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if got := second.Result().Cookies(); len(got) != 0 {
		t.Fatalf("expected cookie to be reused, got %v", got)
	}
	if first.Body.String() == second.Body.String() {
		t.Fatalf("expected a new session id per shell render")
	}

	if len(seen) != 2 || seen[0] != cookies[0].Value || seen[1] != cookies[0].Value {
		t.Fatalf("expected both renders to see client %q, got %v", cookies[0].Value, seen)
	}
}

func TestHTTPServerRequiresRegistryAndShell(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Shell: shellComponent}); err == nil {
		t.Fatal("expected missing registry to fail")
	}
	if _, err := New(Config{Registry: router.NewRegistry()}); err == nil {
		t.Fatal("expected missing shell to fail")
	}
}

type eventStream struct {
	lines chan string
	seen  strings.Builder
}

func openStream(t *testing.T, ctx context.Context, target string) *eventStream {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("build stream request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stream status: expected %d, got %d", http.StatusOK, res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("stream content type: got %q", got)
	}

	stream := &eventStream{lines: make(chan string, 64)}
	go func() {
		defer res.Body.Close()
		defer close(stream.lines)
		scanner := bufio.NewScanner(res.Body)
		for scanner.Scan() {
			stream.lines <- scanner.Text()
		}
	}()
	return stream
}

func (s *eventStream) waitFor(t *testing.T, substr string) {
	t.Helper()

	if strings.Contains(s.seen.String(), substr) {
		return
	}
	timeout := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				t.Fatalf("stream closed before %q; got %q", substr, s.seen.String())
			}
			s.seen.WriteString(line)
			s.seen.WriteString("\n")
			if strings.Contains(s.seen.String(), substr) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q; got %q", substr, s.seen.String())
		}
	}
}

func signalsQuery(payload string) string {
	return "datastar=" + url.QueryEscape(payload)
}

func doRequest(t *testing.T, method string, target string, body string) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	_ = res.Body.Close()
	return res.StatusCode
}

func waitForStatus(t *testing.T, expected int, do func() int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		got := do()
		if got == expected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected status %d, last got %d", expected, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHTTPServerLiveSession(t *testing.T) {
	t.Parallel()

	handler, err := New(Config{Registry: testRegistry(), Shell: shellComponent})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := openStream(t, ctx, srv.URL+"/live/connect?"+signalsQuery(`{"session":"s1","hash":"#/b"}`))
	stream.waitFor(t, "selector #route")
	stream.waitFor(t, "<div>B page</div>")

	session := signalsQuery(`{"session":"s1"}`)
	if got := doRequest(t, http.MethodGet, srv.URL+"/live/navigate?to=%2Fa&"+session, ""); got != http.StatusNoContent {
		t.Fatalf("navigate status: expected %d, got %d", http.StatusNoContent, got)
	}
	stream.waitFor(t, "A page")
	stream.waitFor(t, `window.location.hash = "#/a"`)

	waitForStatus(t, http.StatusNoContent, func() int {
		return doRequest(t, http.MethodPost, srv.URL+"/live/action/ping", `{"session":"s1","value":"x"}`)
	})
	stream.waitFor(t, "selector #slot")
	stream.waitFor(t, "pong x")

	if got := doRequest(t, http.MethodPost, srv.URL+"/live/action/nope", `{"session":"s1"}`); got != http.StatusNotFound {
		t.Fatalf("unknown action status: expected %d, got %d", http.StatusNotFound, got)
	}

	if got := doRequest(t, http.MethodGet, srv.URL+"/live/location?"+signalsQuery(`{"session":"s1","hash":"#/"}`), ""); got != http.StatusNoContent {
		t.Fatalf("location status: expected %d, got %d", http.StatusNoContent, got)
	}
	stream.waitFor(t, "Home page")

	stream.seen.Reset()
	if got := doRequest(t, http.MethodGet, srv.URL+"/live/navigate?to=%2Fb&"+session, ""); got != http.StatusNoContent {
		t.Fatalf("navigate status: expected %d, got %d", http.StatusNoContent, got)
	}
	stream.waitFor(t, "B page")

	stream.seen.Reset()
	if got := doRequest(t, http.MethodGet, srv.URL+"/live/location?"+signalsQuery(`{"session":"s1","hash":""}`), ""); got != http.StatusNoContent {
		t.Fatalf("cleared hash status: expected %d, got %d", http.StatusNoContent, got)
	}
	stream.waitFor(t, "Home page")

	if got := doRequest(t, http.MethodGet, srv.URL+"/live/navigate?to=%2Fa&"+signalsQuery(`{"session":"other"}`), ""); got != http.StatusNotFound {
		t.Fatalf("unknown session status: expected %d, got %d", http.StatusNotFound, got)
	}

	cancel()
	waitForStatus(t, http.StatusNotFound, func() int {
		return doRequest(t, http.MethodGet, srv.URL+"/live/navigate?to=%2Fb&"+session, "")
	})
}

func TestHTTPServerRejectsConnectWithoutSession(t *testing.T) {
	t.Parallel()

	handler, err := New(Config{Registry: testRegistry(), Shell: shellComponent})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live/connect?"+signalsQuery(`{"hash":"#/"}`), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
