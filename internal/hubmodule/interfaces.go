package hubmodule

// ModuleMetadata 记录一个生态模块的静态信息，供路由装配和诊断端使用。
type ModuleMetadata struct {
	Key         string
	Description string
	// ContentType 是过滤后元数据以及 versions 覆盖返回时使用的类型。
	ContentType string
	// Accept 为请求上游时携带的 Accept 头，留空则不设置。
	Accept          string
	DefaultUpstream string
}
