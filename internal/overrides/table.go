// Package overrides 加载本地包覆盖表，并决定某个包标识是否绕过上游。
//
// 覆盖表在进程启动时读取一次，之后只读，可被多个请求并发访问。
package overrides

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// ErrNotFound 表示覆盖表文件不存在。
var ErrNotFound = errors.New("local packages configuration not found")

// Table 对应 local_packages.config.json 的 files/versions 两张表。
// versions 中的值保持原始 JSON，返回给客户端时不做任何改写。
type Table struct {
	Files    map[string]string          `json:"files"`
	Versions map[string]json.RawMessage `json:"versions"`

	raw []byte
}

// Load 读取覆盖表文件。文件不存在时返回 ErrNotFound。
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("读取覆盖表失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析覆盖表内容，缺失的 files/versions 视为空表。
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("解析覆盖表失败: %w", err)
	}
	if table.Files == nil {
		table.Files = map[string]string{}
	}
	if table.Versions == nil {
		table.Versions = map[string]json.RawMessage{}
	}
	table.raw = bytes.TrimSpace(data)
	return &table, nil
}

// Raw 返回加载时的原始 JSON 文档，供 /local_config 原样输出。
func (t *Table) Raw() []byte {
	if t == nil {
		return nil
	}
	return t.raw
}

// Summary 给出条目数量以及最多 limit 个示例 key（按字典序）。
func (t *Table) Summary(limit int) (files []string, versions []string) {
	if t == nil {
		return nil, nil
	}
	return sampleKeys(t.Files, limit), sampleKeys(t.Versions, limit)
}

func sampleKeys[V any](m map[string]V, limit int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit >= 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
