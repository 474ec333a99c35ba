package npm

import (
	"strings"
	"time"

	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/timeline"
)

// classify 判断 identifier 是否为包名：lodash 或 @scope/name 视为 bare，
// lodash/-/lodash-1.0.0.tgz、@scope/name/1.2.3 等带额外路径的一律原样跳转。
func classify(_ *hooks.RequestContext, identifier string) hooks.Shape {
	if !strings.Contains(identifier, "/") {
		return hooks.Bare
	}
	if scope, name, ok := splitScoped(identifier); ok && scope != "" && name != "" {
		return hooks.Bare
	}
	return hooks.PathShaped
}

// upstreamPath 将 scope 与包名之间的 `/` 编码为 %2f，与 npm CLI 请求格式一致。
func upstreamPath(_ *hooks.RequestContext, identifier string) string {
	if scope, name, ok := splitScoped(identifier); ok {
		return scope + "%2f" + name
	}
	return identifier
}

func filterDocument(_ *hooks.RequestContext, _ string, body []byte, cutoff time.Time) ([]byte, error) {
	return timeline.FilterRegistry(body, cutoff)
}

func splitScoped(identifier string) (scope, name string, ok bool) {
	if !strings.HasPrefix(identifier, "@") {
		return "", "", false
	}
	scope, name, found := strings.Cut(identifier, "/")
	if !found || strings.Contains(name, "/") {
		return "", "", false
	}
	return scope, name, true
}
