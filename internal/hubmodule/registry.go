package hubmodule

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
)

const defaultContentType = "application/json"

// ErrDuplicateModule 表示同一个 key 被注册了两次。
var ErrDuplicateModule = errors.New("module already registered")

// modules 在 init() 阶段写入，之后只读。
var modules = &moduleSet{byKey: map[string]ModuleMetadata{}}

type moduleSet struct {
	mu    sync.RWMutex
	byKey map[string]ModuleMetadata
	keys  []string
}

// Register 将模块元数据加入全局注册表。
// ContentType 缺省为 application/json；DefaultUpstream 若填写必须是 http(s) 绝对地址。
func Register(meta ModuleMetadata) error {
	meta.Key = normalizeKey(meta.Key)
	if meta.Key == "" {
		return errors.New("module key is required")
	}
	if meta.ContentType == "" {
		meta.ContentType = defaultContentType
	}
	if meta.DefaultUpstream != "" {
		parsed, err := url.Parse(meta.DefaultUpstream)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("module %s: invalid default upstream %q", meta.Key, meta.DefaultUpstream)
		}
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, exists := modules.byKey[meta.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, meta.Key)
	}
	modules.byKey[meta.Key] = meta
	idx, _ := slices.BinarySearch(modules.keys, meta.Key)
	modules.keys = slices.Insert(modules.keys, idx, meta.Key)
	return nil
}

// MustRegister 在注册失败时 panic，供模块 init() 使用。
func MustRegister(meta ModuleMetadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 按 key 查找模块，大小写不敏感。
func Resolve(key string) (ModuleMetadata, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	meta, ok := modules.byKey[normalizeKey(key)]
	return meta, ok
}

// List 返回按 key 排序的模块元数据副本。
func List() []ModuleMetadata {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	if len(modules.keys) == 0 {
		return nil
	}
	result := make([]ModuleMetadata, 0, len(modules.keys))
	for _, key := range modules.keys {
		result = append(result, modules.byKey[key])
	}
	return result
}

// Keys 返回排序后的模块 key。
func Keys() []string {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	return slices.Clone(modules.keys)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
