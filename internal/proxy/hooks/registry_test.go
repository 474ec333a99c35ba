package hooks

import (
	"sync"
	"testing"
)

func TestRegisterAndFetch(t *testing.T) {
	registry = sync.Map{}
	h := Hooks{Classify: func(*RequestContext, string) Shape { return PathShaped }}
	if err := Register("test", h); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	got, ok := Fetch("TEST")
	if !ok {
		t.Fatalf("expected fetch ok")
	}
	if got.ClassifyOrBare(nil, "x") != PathShaped {
		t.Fatalf("expected registered classify hook")
	}
	if Status("test") != "registered" {
		t.Fatalf("expected registered status")
	}
	if Status("missing") != "missing" {
		t.Fatalf("expected missing status")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	registry = sync.Map{}
	if err := Register("dup", Hooks{}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := Register("dup", Hooks{}); err != ErrDuplicateHook {
		t.Fatalf("expected ErrDuplicateHook, got %v", err)
	}
	if err := Register("  ", Hooks{}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSnapshot(t *testing.T) {
	registry = sync.Map{}
	_ = Register("a", Hooks{})
	snap := Snapshot([]string{"a", "b"})
	if snap["a"] != "registered" {
		t.Fatalf("expected a registered, got %s", snap["a"])
	}
	if snap["b"] != "missing" {
		t.Fatalf("expected b missing, got %s", snap["b"])
	}
}

func TestDefaultsWithoutHooks(t *testing.T) {
	var h Hooks
	if h.ClassifyOrBare(nil, "a/b") != Bare {
		t.Fatalf("missing classify hook should default to bare")
	}
	if h.UpstreamPathOrIdentity(nil, "lodash") != "lodash" {
		t.Fatalf("missing upstream hook should keep identifier")
	}
}

func TestKeysSorted(t *testing.T) {
	registry = sync.Map{}
	_ = Register("pip", Hooks{})
	_ = Register("npm", Hooks{})
	keys := Keys()
	if len(keys) != 2 || keys[0] != "npm" || keys[1] != "pip" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
