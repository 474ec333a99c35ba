package pypi

import (
	"strings"
	"time"

	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/timeline"
)

// pip 请求的项目页通常带结尾 `/`（requests/），去掉后再判断。
func projectName(identifier string) string {
	return strings.TrimSuffix(identifier, "/")
}

func classify(_ *hooks.RequestContext, identifier string) hooks.Shape {
	name := projectName(identifier)
	if name == "" || strings.Contains(name, "/") {
		return hooks.PathShaped
	}
	return hooks.Bare
}

func upstreamPath(_ *hooks.RequestContext, identifier string) string {
	return projectName(identifier) + "/"
}

func filterDocument(_ *hooks.RequestContext, identifier string, body []byte, cutoff time.Time) ([]byte, error) {
	return timeline.FilterSimpleIndex(body, projectName(identifier), cutoff)
}
