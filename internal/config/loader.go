package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath 是未显式指定配置文件时的查找位置。
const DefaultPath = "config.toml"

// Load 读取并解析 TOML 配置文件，文件缺失视为错误。
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadOrDefault 与 Load 相同，但文件不存在时直接使用默认值。
func LoadOrDefault(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, required bool) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	bindRegistryEnv(v)

	if _, err := os.Stat(path); err == nil || required {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Registries {
		applyRegistryDefaults(&cfg.Registries[i])
	}
	appendBuiltinRegistries(&cfg)
	applyRegistryEnv(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, target := range []*string{&cfg.Global.StoragePath, &cfg.Global.LocalFilesPath} {
		abs, err := filepath.Abs(*target)
		if err != nil {
			return nil, fmt.Errorf("无法解析目录 %s: %w", *target, err)
		}
		*target = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 3000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("LocalFilesPath", "./local_files")
	v.SetDefault("OverridesPath", "./local_packages.config.json")
	v.SetDefault("UpstreamTimeout", 0)
	v.SetDefault("MetricsFlushInterval", "60s")
	v.SetDefault("MetricsFile", "")
}

// bindRegistryEnv 让 NPM_REGISTRY_URL 等环境变量可以通过 viper 读取。
func bindRegistryEnv(v *viper.Viper) {
	for _, def := range builtinRegistries {
		_ = v.BindEnv(def.EnvVar)
	}
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 3000
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if g.MetricsFlushInterval.DurationValue() == 0 {
		g.MetricsFlushInterval = Duration(time.Minute)
	}
}

func applyRegistryDefaults(r *RegistryConfig) {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	if trimmed := strings.TrimSpace(r.Module); trimmed == "" {
		r.Module = r.Name
	} else {
		r.Module = strings.ToLower(trimmed)
	}
	upstream := strings.TrimSpace(r.Upstream)
	if upstream == "" {
		if def, ok := lookupBuiltin(r.Name); ok {
			upstream = def.Upstream
		}
	}
	if upstream != "" {
		r.Upstream = ensureTrailingSlash(upstream)
	}
}

// appendBuiltinRegistries 为未声明的内置生态补全默认上游。
func appendBuiltinRegistries(cfg *Config) {
	for _, def := range builtinRegistries {
		if _, ok := cfg.Registry(def.Name); ok {
			continue
		}
		cfg.Registries = append(cfg.Registries, RegistryConfig{
			Name:     def.Name,
			Upstream: def.Upstream,
			Module:   def.Name,
		})
	}
}

// applyRegistryEnv 在文件配置之后应用环境变量覆盖，优先级最高。
func applyRegistryEnv(v *viper.Viper, cfg *Config) {
	for i := range cfg.Registries {
		def, ok := lookupBuiltin(cfg.Registries[i].Name)
		if !ok {
			continue
		}
		if override := strings.TrimSpace(v.GetString(def.EnvVar)); override != "" {
			cfg.Registries[i].Upstream = ensureTrailingSlash(override)
		}
	}
}

func ensureTrailingSlash(raw string) string {
	if strings.HasSuffix(raw, "/") {
		return raw
	}
	return raw + "/"
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
