package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCutoff 表示截止时间无法按十进制秒数解析。
var ErrInvalidCutoff = errors.New("invalid cutoff")

// ErrMalformedDocument 表示上游文档结构与预期不符（例如 versions 不是对象）。
var ErrMalformedDocument = errors.New("malformed document")

const instantLayout = "2006-01-02T15:04:05.000Z"

var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseCutoff 将路径中的 Unix 秒数解析为 UTC 时间点。
func ParseCutoff(raw string) (time.Time, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCutoff, raw)
	}
	return time.Unix(seconds, 0).UTC(), nil
}

// ParseInstant 解析 ISO-8601 发布时间；没有时区信息时按 UTC 处理。
func ParseInstant(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatInstant 以毫秒精度和字面量 Z 后缀输出时间。
func FormatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}
