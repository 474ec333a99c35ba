package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if strings.TrimSpace(g.LocalFilesPath) == "" {
		return newFieldError("Global.LocalFilesPath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError("Global.UpstreamTimeout", "不能为负数")
	}
	if g.MetricsFlushInterval.DurationValue() <= 0 {
		return newFieldError("Global.MetricsFlushInterval", "必须大于 0")
	}

	if len(c.Registries) == 0 {
		return errors.New("至少需要配置一个 Registry")
	}

	seen := map[string]struct{}{}
	for i := range c.Registries {
		reg := &c.Registries[i]
		if reg.Name == "" {
			return newFieldError("Registry[].Name", "不能为空")
		}
		if _, ok := lookupBuiltin(reg.Name); !ok {
			return newFieldError(registryField(reg.Name, "Name"), "仅支持 "+supportedRegistryList)
		}
		if _, exists := seen[reg.Name]; exists {
			return newFieldError(registryField(reg.Name, "Name"), "重复")
		}
		seen[reg.Name] = struct{}{}

		if err := validateUpstream(reg.Upstream); err != nil {
			return fmt.Errorf("%s: %w", registryField(reg.Name, "Upstream"), err)
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
