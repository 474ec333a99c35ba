package pypi

import (
	"strings"
	"testing"
	"time"

	"github.com/l-schulte/waypack-machine/internal/hubmodule"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
)

func TestClassify(t *testing.T) {
	cases := map[string]hooks.Shape{
		"requests":                        hooks.Bare,
		"requests/":                       hooks.Bare,
		"requests/requests-2.31.0.tar.gz": hooks.PathShaped,
		"/":                               hooks.PathShaped,
	}
	for identifier, want := range cases {
		if got := classify(nil, identifier); got != want {
			t.Fatalf("classify(%q) = %s, want %s", identifier, got, want)
		}
	}
}

func TestUpstreamPathAddsTrailingSlash(t *testing.T) {
	for _, identifier := range []string{"flask", "flask/"} {
		if got := upstreamPath(nil, identifier); got != "flask/" {
			t.Fatalf("upstreamPath(%q) = %s", identifier, got)
		}
	}
}

func TestFilterDocument(t *testing.T) {
	body := []byte(`{"name":"flask","files":[
		{"filename":"flask-1.0.tar.gz","upload-time":"2018-04-26T00:00:00Z"},
		{"filename":"flask-3.0.0.tar.gz","upload-time":"2023-09-30T00:00:00Z"}
	]}`)
	out, err := filterDocument(nil, "flask/", body, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if !strings.Contains(string(out), `"versions":["1.0"]`) || strings.Contains(string(out), "3.0.0") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestModuleRegistered(t *testing.T) {
	meta, ok := hubmodule.Resolve("pip")
	if !ok {
		t.Fatalf("pip module not registered")
	}
	if meta.Accept != simpleJSON || meta.ContentType != simpleJSON {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if _, ok := hooks.Fetch("pip"); !ok {
		t.Fatalf("pip hooks not registered")
	}
}
