package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/config"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/npm"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/pypi"
	"github.com/l-schulte/waypack-machine/internal/localfiles"
	"github.com/l-schulte/waypack-machine/internal/metrics"
	"github.com/l-schulte/waypack-machine/internal/overrides"
	"github.com/l-schulte/waypack-machine/internal/server"
)

// upstreamStub 记录收到的请求并返回预设响应。
type upstreamStub struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	status   int
	header   http.Header
	body     string
}

func newUpstreamStub(t *testing.T, status int, body string) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{status: status, body: body, header: http.Header{}}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.requests = append(stub.requests, r.Clone(r.Context()))
		status, body := stub.status, stub.body
		for key, values := range stub.header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		stub.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *upstreamStub) hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *upstreamStub) last() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

type proxyFixture struct {
	app      *fiber.App
	recorder *metrics.Recorder
	logs     *logBuffer
}

type logBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

type fixtureOptions struct {
	upstream  string
	table     *overrides.Table
	localRoot string
}

func newProxyFixture(t *testing.T, opts fixtureOptions) *proxyFixture {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000},
		Registries: []config.RegistryConfig{
			{Name: "npm", Module: "npm", Upstream: opts.upstream + "/"},
			{Name: "yarn", Module: "yarn", Upstream: opts.upstream + "/"},
			{Name: "pip", Module: "pip", Upstream: opts.upstream + "/simple/"},
		},
	}
	table, err := server.NewRouteTable(cfg)
	if err != nil {
		t.Fatalf("route table: %v", err)
	}

	root := opts.localRoot
	if root == "" {
		root = t.TempDir()
	}
	dir, err := localfiles.NewDir(root)
	if err != nil {
		t.Fatalf("local dir: %v", err)
	}

	logs := &logBuffer{}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(logs)

	recorder := metrics.NewRecorder()
	handler := NewHandler(HandlerOptions{
		Client:   NewRegistryClient(&http.Client{}, "waypack-test"),
		Resolver: overrides.NewResolver(opts.table, dir),
		Local:    dir,
		Recorder: recorder,
		Logger:   logger,
	})

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   table,
		Proxy:      handler,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &proxyFixture{app: app, recorder: recorder, logs: logs}
}

func (f *proxyFixture) do(t *testing.T, method, target string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func (f *proxyFixture) count(route, ecosystem, outcome string) uint64 {
	for _, c := range f.recorder.Snapshot().Requests {
		if c.Route == route && c.Ecosystem == ecosystem && c.Outcome == outcome {
			return c.Value
		}
	}
	return 0
}
