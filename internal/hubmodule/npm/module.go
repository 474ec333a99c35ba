// Package npm 注册 npm 与 yarn 两个 npm 兼容生态，二者共享同一组钩子。
package npm

import (
	"github.com/l-schulte/waypack-machine/internal/hubmodule"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
)

const contentType = "application/json"

func init() {
	hubmodule.MustRegister(hubmodule.ModuleMetadata{
		Key:             "npm",
		Description:     "npm registry packuments filtered by publish time",
		ContentType:     contentType,
		DefaultUpstream: "http://registry.npmjs.org/",
	})
	hubmodule.MustRegister(hubmodule.ModuleMetadata{
		Key:             "yarn",
		Description:     "yarn registry packuments filtered by publish time",
		ContentType:     contentType,
		DefaultUpstream: "http://registry.yarnpkg.com/",
	})

	h := hooks.Hooks{
		Classify:       classify,
		UpstreamPath:   upstreamPath,
		FilterDocument: filterDocument,
	}
	hooks.MustRegister("npm", h)
	hooks.MustRegister("yarn", h)
}
