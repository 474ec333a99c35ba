package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/cache"
	"github.com/l-schulte/waypack-machine/internal/metrics"
)

type cacheFixture struct {
	app      *fiber.App
	base     string
	recorder *metrics.Recorder
}

func newCacheFixture(t *testing.T) *cacheFixture {
	t.Helper()
	base := t.TempDir()
	store, err := cache.NewStore(base)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	recorder := metrics.NewRecorder()
	handler := NewCacheHandler(cache.NewPullThrough(&http.Client{}, store, base, "waypack-test"), recorder, logger)

	app := fiber.New()
	app.Get("/request/*", handler.HandleRequest)
	app.Get("/custom_cache/*", handler.HandleTree)
	return &cacheFixture{app: app, base: base, recorder: recorder}
}

func (f *cacheFixture) get(t *testing.T, target string) (*http.Response, string) {
	t.Helper()
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, target, nil))
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

func TestCacheHandlerRequestMissThenHit(t *testing.T) {
	stub := newUpstreamStub(t, http.StatusOK, "tarball-bytes")
	stub.header.Set("Content-Type", "application/gzip")
	fx := newCacheFixture(t)

	target := stub.URL + "/pkg/-/pkg-1.0.0.tgz"
	resp, body := fx.get(t, "/request/"+target+"?token=abc")
	if resp.StatusCode != http.StatusOK || body != "tarball-bytes" {
		t.Fatalf("first request: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Waypack-Cache-Hit") != "false" {
		t.Fatalf("expected cache miss header")
	}
	if got := stub.last().RequestURI; got != "/pkg/-/pkg-1.0.0.tgz?token=abc" {
		t.Fatalf("unexpected upstream uri %s", got)
	}

	resp, body = fx.get(t, "/request/"+target+"?token=abc")
	if resp.StatusCode != http.StatusOK || body != "tarball-bytes" {
		t.Fatalf("second request: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Waypack-Cache-Hit") != "true" {
		t.Fatalf("expected cache hit header")
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/gzip" {
		t.Fatalf("expected stored content type, got %s", ct)
	}
	if stub.hits() != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", stub.hits())
	}

	digest := cache.Digest(target + "?token=abc")
	if _, err := os.Stat(filepath.Join(fx.base, cache.NamespaceRequest, digest)); err != nil {
		t.Fatalf("expected flat cache file: %v", err)
	}
	inventory, err := os.ReadFile(filepath.Join(fx.base, cache.NamespaceRequest, cache.InventoryFile))
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	if !strings.Contains(string(inventory), digest+","+target+"?token=abc") {
		t.Fatalf("unexpected inventory %s", inventory)
	}
}

func TestCacheHandlerTreeLayout(t *testing.T) {
	stub := newUpstreamStub(t, http.StatusOK, "wheel")
	fx := newCacheFixture(t)

	base := stub.URL + "/packages"
	resp, body := fx.get(t, "/custom_cache/"+base+"/resource/ab/cd/pkg-1.0-py3-none-any.whl")
	if resp.StatusCode != http.StatusOK || body != "wheel" {
		t.Fatalf("tree request: %d %s", resp.StatusCode, body)
	}
	if got := stub.last().URL.Path; got != "/packages/ab/cd/pkg-1.0-py3-none-any.whl" {
		t.Fatalf("unexpected upstream path %s", got)
	}
	mirrored := filepath.Join(fx.base, cache.NamespaceTree, cache.Digest(base), "ab", "cd", "pkg-1.0-py3-none-any.whl")
	if _, err := os.Stat(mirrored); err != nil {
		t.Fatalf("expected mirrored file: %v", err)
	}
}

func TestCacheHandlerDoesNotCacheErrors(t *testing.T) {
	stub := newUpstreamStub(t, http.StatusNotFound, "gone")
	fx := newCacheFixture(t)

	for i := 0; i < 2; i++ {
		resp, body := fx.get(t, "/request/"+stub.URL+"/missing.tgz")
		if resp.StatusCode != http.StatusNotFound || body != "gone" {
			t.Fatalf("attempt %d: %d %s", i, resp.StatusCode, body)
		}
	}
	if stub.hits() != 2 {
		t.Fatalf("errors must not be cached, got %d upstream hits", stub.hits())
	}
}

func TestCacheHandlerRejectsInvalidTargets(t *testing.T) {
	fx := newCacheFixture(t)

	cases := []string{
		"/request/ftp://example.com/file",
		"/request/not-a-url",
		"/custom_cache/https://example.com/no-separator",
	}
	for _, target := range cases {
		resp, body := fx.get(t, target)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.StatusCode)
		}
		if !strings.Contains(body, codeInvalidTarget) {
			t.Fatalf("%s: unexpected body %s", target, body)
		}
	}
}

func TestRepairScheme(t *testing.T) {
	cases := map[string]string{
		"https:/example.com/a":  "https://example.com/a",
		"http:/example.com/a":   "http://example.com/a",
		"https://example.com/a": "https://example.com/a",
		"example.com/a":         "example.com/a",
	}
	for in, want := range cases {
		if got := repairScheme(in); got != want {
			t.Fatalf("repairScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
