// Package pypi 注册 pip 生态：上游为 PEP 691 JSON simple index。
package pypi

import (
	"github.com/l-schulte/waypack-machine/internal/hubmodule"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
)

const simpleJSON = "application/vnd.pypi.simple.v1+json"

func init() {
	hubmodule.MustRegister(hubmodule.ModuleMetadata{
		Key:             "pip",
		Description:     "PyPI simple index (JSON) filtered by upload time",
		ContentType:     simpleJSON,
		Accept:          simpleJSON,
		DefaultUpstream: "https://pypi.org/simple/",
	})
	hooks.MustRegister("pip", hooks.Hooks{
		Classify:       classify,
		UpstreamPath:   upstreamPath,
		FilterDocument: filterDocument,
	})
}
