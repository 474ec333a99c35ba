package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有注册表与缓存共享同一份参数。
type GlobalConfig struct {
	ListenPort           int      `mapstructure:"ListenPort"`
	LogLevel             string   `mapstructure:"LogLevel"`
	LogFilePath          string   `mapstructure:"LogFilePath"`
	LogMaxSize           int      `mapstructure:"LogMaxSize"`
	LogMaxBackups        int      `mapstructure:"LogMaxBackups"`
	LogCompress          bool     `mapstructure:"LogCompress"`
	StoragePath          string   `mapstructure:"StoragePath"`
	LocalFilesPath       string   `mapstructure:"LocalFilesPath"`
	OverridesPath        string   `mapstructure:"OverridesPath"`
	UpstreamTimeout      Duration `mapstructure:"UpstreamTimeout"`
	MetricsFlushInterval Duration `mapstructure:"MetricsFlushInterval"`
	MetricsFile          string   `mapstructure:"MetricsFile"`
}

// RegistryConfig 描述一个生态（npm/yarn/pip）对应的上游注册表。
type RegistryConfig struct {
	Name     string `mapstructure:"Name"`
	Upstream string `mapstructure:"Upstream"`
	Module   string `mapstructure:"Module"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig     `mapstructure:",squash"`
	Registries []RegistryConfig `mapstructure:"Registry"`
}

// Registry 按名称查找注册表配置，名称大小写不敏感。
func (c *Config) Registry(name string) (RegistryConfig, bool) {
	if c == nil {
		return RegistryConfig{}, false
	}
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, reg := range c.Registries {
		if reg.Name == normalized {
			return reg, true
		}
	}
	return RegistryConfig{}, false
}

// RegistrySummary 返回 name=upstream 形式的摘要，供启动日志使用。
func RegistrySummary(regs []RegistryConfig) []string {
	if len(regs) == 0 {
		return nil
	}
	result := make([]string, len(regs))
	for i, reg := range regs {
		result[i] = fmt.Sprintf("%s=%s", reg.Name, reg.Upstream)
	}
	return result
}
