package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/cache"
	"github.com/l-schulte/waypack-machine/internal/config"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/npm"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/pypi"
	"github.com/l-schulte/waypack-machine/internal/localfiles"
	"github.com/l-schulte/waypack-machine/internal/metrics"
	"github.com/l-schulte/waypack-machine/internal/overrides"
	"github.com/l-schulte/waypack-machine/internal/proxy"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/server"
	"github.com/l-schulte/waypack-machine/internal/server/routes"
)

// testEnv 按与 main 相同的顺序装配完整服务。
type testEnv struct {
	app        *fiber.App
	storageDir string
	localDir   string
	recorder   *metrics.Recorder
	logs       *syncBuffer
}

type envOptions struct {
	upstream  string
	overrides string
	localFile map[string]string
}

type syncBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	root := t.TempDir()
	storageDir := filepath.Join(root, "storage")
	localDir := filepath.Join(root, "local_files")
	for rel, content := range opts.localFile {
		full := filepath.Join(localDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir local file: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write local file: %v", err)
		}
	}

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:           5000,
			StoragePath:          storageDir,
			LocalFilesPath:       localDir,
			MetricsFlushInterval: config.Duration(time.Minute),
		},
		Registries: []config.RegistryConfig{
			{Name: "npm", Module: "npm", Upstream: opts.upstream + "/"},
			{Name: "yarn", Module: "yarn", Upstream: opts.upstream + "/"},
			{Name: "pip", Module: "pip", Upstream: opts.upstream + "/simple/"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	var table *overrides.Table
	if opts.overrides != "" {
		parsed, err := overrides.Parse([]byte(opts.overrides))
		if err != nil {
			t.Fatalf("parse overrides: %v", err)
		}
		table = parsed
	}

	logs := &syncBuffer{}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(logs)

	routeTable, err := server.NewRouteTable(cfg)
	if err != nil {
		t.Fatalf("route table: %v", err)
	}
	store, err := cache.NewStore(storageDir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	dir, err := localfiles.NewDir(localDir)
	if err != nil {
		t.Fatalf("local dir: %v", err)
	}

	recorder := metrics.NewRecorder()
	client := server.NewUpstreamClient(cfg)
	handler := proxy.NewHandler(proxy.HandlerOptions{
		Client:   proxy.NewRegistryClient(client, "waypack-integration"),
		Resolver: overrides.NewResolver(table, dir),
		Local:    dir,
		Recorder: recorder,
		Logger:   logger,
	})
	// 只有注册了钩子的模块才能过滤元数据
	forwarder := proxy.NewForwarder(logger)
	for _, key := range hooks.Keys() {
		forwarder.Bind(key, handler)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   routeTable,
		Proxy:      forwarder,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	pull := cache.NewPullThrough(client, store, storageDir, "waypack-integration")
	routes.RegisterLocalRoutes(app, dir, table)
	routes.RegisterCacheRoutes(app, proxy.NewCacheHandler(pull, recorder, logger))
	routes.RegisterModuleRoutes(app, routeTable)
	routes.RegisterMetricsRoutes(app, recorder)

	t.Cleanup(func() { _ = app.Shutdown() })

	return &testEnv{
		app:        app,
		storageDir: storageDir,
		localDir:   localDir,
		recorder:   recorder,
		logs:       logs,
	}
}

func (e *testEnv) get(t *testing.T, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("app.Test %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}
