package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/common/expfmt"

	"github.com/l-schulte/waypack-machine/internal/config"
	"github.com/l-schulte/waypack-machine/internal/hubmodule"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/npm"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/pypi"
	"github.com/l-schulte/waypack-machine/internal/localfiles"
	"github.com/l-schulte/waypack-machine/internal/metrics"
	"github.com/l-schulte/waypack-machine/internal/overrides"
	"github.com/l-schulte/waypack-machine/internal/server"
)

func doGet(t *testing.T, app *fiber.App, target string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
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

func TestEncodeModulesSortsAndAddsHookStatus(t *testing.T) {
	modules := []hubmodule.ModuleMetadata{
		{Key: "b", ContentType: "application/json"},
		{Key: "a", ContentType: "application/json"},
	}
	status := map[string]string{"a": "registered"}

	encoded := encodeModules(modules, status)
	if len(encoded) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(encoded))
	}
	if encoded[0].Key != "a" || encoded[0].HookStatus != "registered" {
		t.Fatalf("unexpected first module %+v", encoded[0])
	}
	if encoded[1].Key != "b" || encoded[1].HookStatus != "" {
		t.Fatalf("unexpected second module %+v", encoded[1])
	}
}

func TestRegistriesEndpoint(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 4000},
		Registries: []config.RegistryConfig{
			{Name: "npm", Module: "npm", Upstream: "http://registry.npmjs.org/"},
			{Name: "pip", Module: "pip", Upstream: "https://pypi.org/simple/"},
		},
	}
	table, err := server.NewRouteTable(cfg)
	if err != nil {
		t.Fatalf("route table: %v", err)
	}
	app := fiber.New()
	RegisterModuleRoutes(app, table)

	resp, body := doGet(t, app, "/-/registries")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Registries []registryPayload  `json:"registries"`
		Hooks      map[string]string `json:"hook_registry"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Registries) != 2 || payload.Registries[0].Name != "npm" || payload.Registries[1].Upstream != "https://pypi.org/simple/" {
		t.Fatalf("unexpected registries %+v", payload.Registries)
	}
	if payload.Hooks["pip"] != "registered" {
		t.Fatalf("expected pip hooks registered, got %v", payload.Hooks)
	}

	resp, body = doGet(t, app, "/-/registries/pip")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "application/vnd.pypi.simple.v1+json") {
		t.Fatalf("detail: %d %s", resp.StatusCode, body)
	}
	resp, _ = doGet(t, app, "/-/registries/cargo")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown registry, got %d", resp.StatusCode)
	}
}

func TestLocalRoutes(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir, err := localfiles.NewDir(root)
	if err != nil {
		t.Fatalf("dir: %v", err)
	}
	raw := `{"files": {"a": "a.txt"}, "versions": {}}`
	table, err := overrides.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	app := fiber.New()
	RegisterLocalRoutes(app, dir, table)

	if resp, body := doGet(t, app, "/local/a.txt"); resp.StatusCode != http.StatusOK || body != "hello" {
		t.Fatalf("local file: %d %s", resp.StatusCode, body)
	}
	if resp, body := doGet(t, app, "/local/nope.txt"); resp.StatusCode != http.StatusNotFound || body != "Local file not found: nope.txt" {
		t.Fatalf("missing local file: %d %s", resp.StatusCode, body)
	}
	if resp, body := doGet(t, app, "/local_config"); resp.StatusCode != http.StatusOK || body != raw {
		t.Fatalf("local config: %d %s", resp.StatusCode, body)
	}

	empty := fiber.New()
	RegisterLocalRoutes(empty, dir, nil)
	if resp, body := doGet(t, empty, "/local_config"); resp.StatusCode != http.StatusNotFound || body != "Local packages configuration not found" {
		t.Fatalf("missing config: %d %s", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.Inc("registry", "npm", "filtered")
	recorder.Inc("registry", "npm", "filtered")

	app := fiber.New()
	RegisterMetricsRoutes(app, recorder)

	resp, body := doGet(t, app, "/-/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != metrics.ContentType {
		t.Fatalf("unexpected content type %s", ct)
	}
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	family, ok := families["waypack_requests_total"]
	if !ok || len(family.GetMetric()) != 1 || family.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("unexpected requests family %v", family)
	}
}
