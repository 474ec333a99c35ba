package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	timeModified = "modified"
	timeCreated  = "created"
)

// RegistryDocument 是 npm/yarn packument 的顶层字段集合，值保持原始 JSON。
type RegistryDocument map[string]json.RawMessage

// FilterRegistry 解析 packument，按截止时间过滤后重新编码。
func FilterRegistry(body []byte, cutoff time.Time) ([]byte, error) {
	var doc RegistryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrMalformedDocument)
	}
	filtered, err := FilterRegistryDocument(doc, cutoff)
	if err != nil {
		return nil, err
	}
	return encode(filtered)
}

// FilterRegistryDocument 只保留发布时间不晚于 cutoff 的版本。
// time 中存在但 versions 中缺失的版本视为已撤回，直接忽略。
func FilterRegistryDocument(doc RegistryDocument, cutoff time.Time) (RegistryDocument, error) {
	versions := map[string]json.RawMessage{}
	if raw, ok := doc["versions"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &versions); err != nil {
			return nil, fmt.Errorf("%w: versions: %v", ErrMalformedDocument, err)
		}
	}
	times := map[string]json.RawMessage{}
	if raw, ok := doc["time"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &times); err != nil {
			return nil, fmt.Errorf("%w: time: %v", ErrMalformedDocument, err)
		}
	}

	keptVersions := make(map[string]json.RawMessage)
	keptTimes := make(map[string]string)
	retained := make([]string, 0, len(times))
	var newest time.Time

	for version, rawTime := range times {
		if version == timeModified || version == timeCreated {
			continue
		}
		meta, published := versions[version]
		if !published {
			continue
		}
		var stamp string
		if err := json.Unmarshal(rawTime, &stamp); err != nil {
			continue
		}
		at, ok := ParseInstant(stamp)
		if !ok || at.After(cutoff) {
			continue
		}
		keptVersions[version] = meta
		keptTimes[version] = FormatInstant(at)
		retained = append(retained, version)
		if at.After(newest) {
			newest = at
		}
	}

	timeField := make(map[string]json.RawMessage, len(keptTimes)+2)
	for version, stamp := range keptTimes {
		timeField[version] = mustString(stamp)
	}
	if len(retained) == 0 {
		timeField[timeModified] = mustString("")
	} else {
		timeField[timeModified] = mustString(FormatInstant(newest))
	}
	if created, ok := times[timeCreated]; ok {
		timeField[timeCreated] = created
	}

	distTags := map[string]string{}
	if len(retained) > 0 {
		distTags["latest"] = Latest(retained)
	}

	out := make(RegistryDocument, len(doc)+3)
	for key, value := range doc {
		out[key] = value
	}
	var err error
	if out["versions"], err = marshal(keptVersions); err != nil {
		return nil, err
	}
	if out["time"], err = marshal(timeField); err != nil {
		return nil, err
	}
	if out["dist-tags"], err = marshal(distTags); err != nil {
		return nil, err
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func mustString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func marshal(v any) (json.RawMessage, error) {
	raw, err := encode(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// encode 关闭 HTML 转义，避免 tarball URL 中的 & 被改写。
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
