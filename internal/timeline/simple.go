package timeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	versionRun    = regexp.MustCompile(`^\d+(\.\d+)*`)
	nameSeparator = regexp.MustCompile(`[-_.]+`)
)

// SimpleIndexDocument 是 PEP 691 项目详情页的顶层字段集合。
type SimpleIndexDocument map[string]json.RawMessage

type simpleFile struct {
	Filename   string  `json:"filename"`
	UploadTime *string `json:"upload-time"`
}

// FilterSimpleIndex 解析 simple index JSON 并按截止时间过滤 files。
func FilterSimpleIndex(body []byte, project string, cutoff time.Time) ([]byte, error) {
	var doc SimpleIndexDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrMalformedDocument)
	}
	filtered, err := FilterSimpleIndexDocument(doc, project, cutoff)
	if err != nil {
		return nil, err
	}
	return encode(filtered)
}

// FilterSimpleIndexDocument 保留 upload-time 不晚于 cutoff 的文件，并从文件名
// 重新推导 versions 列表。缺少 upload-time 的文件无法判断发布时间，同样被排除。
func FilterSimpleIndexDocument(doc SimpleIndexDocument, project string, cutoff time.Time) (SimpleIndexDocument, error) {
	var files []json.RawMessage
	if raw, ok := doc["files"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &files); err != nil {
			return nil, fmt.Errorf("%w: files: %v", ErrMalformedDocument, err)
		}
	}
	if name := documentName(doc); name != "" {
		project = name
	}

	kept := make([]json.RawMessage, 0, len(files))
	versions := make([]string, 0)
	seen := make(map[string]struct{})
	for _, raw := range files {
		var file simpleFile
		if err := json.Unmarshal(raw, &file); err != nil || file.UploadTime == nil {
			continue
		}
		at, ok := ParseInstant(*file.UploadTime)
		if !ok || at.After(cutoff) {
			continue
		}
		kept = append(kept, raw)
		version := VersionFromFilename(project, file.Filename)
		if version == "" {
			continue
		}
		if _, dup := seen[version]; dup {
			continue
		}
		seen[version] = struct{}{}
		versions = append(versions, version)
	}

	out := make(SimpleIndexDocument, len(doc)+2)
	for key, value := range doc {
		out[key] = value
	}
	var err error
	if out["files"], err = marshal(kept); err != nil {
		return nil, err
	}
	if out["versions"], err = marshal(versions); err != nil {
		return nil, err
	}
	return out, nil
}

// VersionFromFilename 从分发文件名中取出版本号，例如
// requests-2.31.0-py3-none-any.whl 得到 2.31.0。无法识别时返回空字符串。
func VersionFromFilename(project, filename string) string {
	rest := stripProjectPrefix(project, filename)
	return versionRun.FindString(rest)
}

// NormalizeName 按 PEP 503 规则归一化项目名。
func NormalizeName(name string) string {
	return strings.ToLower(nameSeparator.ReplaceAllString(strings.TrimSpace(name), "-"))
}

func stripProjectPrefix(project, filename string) string {
	if normalized := NormalizeName(project); normalized != "" {
		for i := 0; i < len(filename); i++ {
			if filename[i] != '-' {
				continue
			}
			if NormalizeName(filename[:i]) == normalized {
				return filename[i+1:]
			}
		}
	}
	return filename
}

func documentName(doc SimpleIndexDocument) string {
	raw, ok := doc["name"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return name
}
