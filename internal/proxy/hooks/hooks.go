package hooks

import "time"

// Shape classifies a package identifier taken from the request path.
type Shape int

const (
	// Bare is a plain package name that is eligible for timeline filtering.
	Bare Shape = iota
	// PathShaped carries extra segments (tarballs, versions, sub-resources)
	// and is always forwarded to the upstream unfiltered.
	PathShaped
)

func (s Shape) String() string {
	if s == PathShaped {
		return "path"
	}
	return "bare"
}

// RequestContext exposes route/request details without importing server internals.
type RequestContext struct {
	Ecosystem    string
	ModuleKey    string
	UpstreamBase string
	Method       string
}

// Hooks describes customization points for ecosystem-specific behavior.
type Hooks struct {
	// Classify decides whether an identifier is bare or path-shaped.
	Classify func(ctx *RequestContext, identifier string) Shape
	// UpstreamPath maps a bare identifier to the path appended to the upstream base.
	UpstreamPath func(ctx *RequestContext, identifier string) string
	// FilterDocument projects an upstream document onto the view at cutoff.
	FilterDocument func(ctx *RequestContext, identifier string, body []byte, cutoff time.Time) ([]byte, error)
}

// ClassifyOrBare applies Classify, treating a missing hook as Bare.
func (h Hooks) ClassifyOrBare(ctx *RequestContext, identifier string) Shape {
	if h.Classify == nil {
		return Bare
	}
	return h.Classify(ctx, identifier)
}

// UpstreamPathOrIdentity applies UpstreamPath, defaulting to the identifier itself.
func (h Hooks) UpstreamPathOrIdentity(ctx *RequestContext, identifier string) string {
	if h.UpstreamPath == nil {
		return identifier
	}
	return h.UpstreamPath(ctx, identifier)
}
