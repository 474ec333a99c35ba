package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/l-schulte/waypack-machine/internal/config"
	"github.com/l-schulte/waypack-machine/internal/hubmodule"
)

// RegistryRoute 将一个生态的配置与派生属性（解析后的 Upstream、模块元数据）
// 聚合在一起，供路由/代理层直接复用，避免重复解析配置。
type RegistryRoute struct {
	// Config 是配置中该生态字段的副本，避免外部修改。
	Config config.RegistryConfig
	// Name 为路径中的生态段，例如 npm、yarn、pip。
	Name string
	// UpstreamURL 在构造 RouteTable 时提前解析完成。
	UpstreamURL *url.URL
	// ModuleKey/Module 记录当前生态选用的模块及其元数据。
	ModuleKey string
	Module    hubmodule.ModuleMetadata
	// ListenPort 记录当前 CLI 监听端口，方便日志输出。
	ListenPort int
}

// UpstreamBase 返回带结尾 `/` 的上游地址，identifier 直接拼接在其后。
func (r *RegistryRoute) UpstreamBase() string {
	return r.Config.Upstream
}

// RouteTable 提供生态名到 RegistryRoute 的查询能力。
type RouteTable struct {
	routes  map[string]*RegistryRoute
	ordered []*RegistryRoute
}

// NewRouteTable 根据配置构建路由表。调用方应在启动阶段创建一次并复用。
func NewRouteTable(cfg *config.Config) (*RouteTable, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	table := &RouteTable{
		routes: make(map[string]*RegistryRoute, len(cfg.Registries)),
	}

	for _, reg := range cfg.Registries {
		if _, exists := table.routes[reg.Name]; exists {
			return nil, fmt.Errorf("duplicate registry %s", reg.Name)
		}
		route, err := buildRoute(cfg, reg)
		if err != nil {
			return nil, err
		}
		table.routes[reg.Name] = route
		table.ordered = append(table.ordered, route)
	}

	return table, nil
}

// Lookup 根据生态名查找 RegistryRoute。
func (t *RouteTable) Lookup(name string) (*RegistryRoute, bool) {
	if t == nil {
		return nil, false
	}
	route, ok := t.routes[name]
	return route, ok
}

// List 返回按配置顺序排列的路由副本，用于 /-/registries 输出。
func (t *RouteTable) List() []RegistryRoute {
	if t == nil || len(t.ordered) == 0 {
		return nil
	}
	result := make([]RegistryRoute, len(t.ordered))
	for i, route := range t.ordered {
		result[i] = *route
	}
	return result
}

func buildRoute(cfg *config.Config, reg config.RegistryConfig) (*RegistryRoute, error) {
	meta, ok := hubmodule.Resolve(reg.Module)
	if !ok {
		return nil, fmt.Errorf("registry %s: module %s is not registered", reg.Name, reg.Module)
	}

	upstreamURL, err := url.Parse(reg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for registry %s: %w", reg.Name, err)
	}

	return &RegistryRoute{
		Config:      reg,
		Name:        reg.Name,
		UpstreamURL: upstreamURL,
		ModuleKey:   meta.Key,
		Module:      meta,
		ListenPort:  cfg.Global.ListenPort,
	}, nil
}
