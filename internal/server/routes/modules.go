package routes

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/l-schulte/waypack-machine/internal/hubmodule"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/server"
)

// RegisterModuleRoutes 暴露 /-/registries 诊断接口，列出生态、上游与模块钩子状态。
func RegisterModuleRoutes(app *fiber.App, table *server.RouteTable) {
	if app == nil || table == nil {
		return
	}

	app.Get("/-/registries", func(c fiber.Ctx) error {
		hookStatus := hooks.Snapshot(hubmodule.Keys())
		payload := fiber.Map{
			"modules":       encodeModules(hubmodule.List(), hookStatus),
			"registries":    encodeRegistries(table.List()),
			"hook_registry": hookStatus,
		}
		return c.JSON(payload)
	})

	app.Get("/-/registries/:name", func(c fiber.Ctx) error {
		name := strings.ToLower(strings.TrimSpace(c.Params("name")))
		route, ok := table.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "registry_not_found"})
		}
		encoded := encodeModule(route.Module)
		encoded.HookStatus = hooks.Status(route.ModuleKey)
		return c.JSON(fiber.Map{
			"registry": encodeRegistry(*route),
			"module":   encoded,
		})
	})
}

type modulePayload struct {
	Key             string `json:"key"`
	Description     string `json:"description"`
	ContentType     string `json:"content_type"`
	Accept          string `json:"accept,omitempty"`
	DefaultUpstream string `json:"default_upstream"`
	HookStatus      string `json:"hook_status,omitempty"`
}

type registryPayload struct {
	Name      string `json:"name"`
	ModuleKey string `json:"module_key"`
	Upstream  string `json:"upstream"`
	Port      int    `json:"port"`
}

func encodeModules(mods []hubmodule.ModuleMetadata, status map[string]string) []modulePayload {
	if len(mods) == 0 {
		return nil
	}
	sort.Slice(mods, func(i, j int) bool {
		return mods[i].Key < mods[j].Key
	})
	result := make([]modulePayload, 0, len(mods))
	for _, meta := range mods {
		item := encodeModule(meta)
		if s, ok := status[meta.Key]; ok {
			item.HookStatus = s
		}
		result = append(result, item)
	}
	return result
}

func encodeModule(meta hubmodule.ModuleMetadata) modulePayload {
	return modulePayload{
		Key:             meta.Key,
		Description:     meta.Description,
		ContentType:     meta.ContentType,
		Accept:          meta.Accept,
		DefaultUpstream: meta.DefaultUpstream,
	}
}

// encodeRegistries 保持配置顺序输出。
func encodeRegistries(routes []server.RegistryRoute) []registryPayload {
	if len(routes) == 0 {
		return nil
	}
	result := make([]registryPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeRegistry(route))
	}
	return result
}

func encodeRegistry(route server.RegistryRoute) registryPayload {
	return registryPayload{
		Name:      route.Name,
		ModuleKey: route.ModuleKey,
		Upstream:  route.UpstreamBase(),
		Port:      route.ListenPort,
	}
}
