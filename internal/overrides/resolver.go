package overrides

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Kind 描述覆盖决策的类型。
type Kind int

const (
	// None 表示没有命中覆盖，继续走上游流程。
	None Kind = iota
	// Redirect 表示直接 302 到覆盖表给出的绝对 URL。
	Redirect
	// LocalFile 表示返回本地文件目录中的文件。
	LocalFile
	// Literal 表示原样返回 versions 表中的元数据。
	Literal
)

func (k Kind) String() string {
	switch k {
	case Redirect:
		return "redirect"
	case LocalFile:
		return "local"
	case Literal:
		return "literal"
	default:
		return "none"
	}
}

// Decision 是一次覆盖解析的结果。
type Decision struct {
	Kind Kind
	// Target 为重定向 URL 或本地相对路径。
	Target string
	// Body 仅在 Literal 时有值。
	Body json.RawMessage
}

// LocalFS 抽象本地文件是否存在的判断，localfiles.Dir 满足该接口。
type LocalFS interface {
	Exists(rel string) bool
}

// Resolver 按 files -> versions 的优先级解析覆盖决策。
type Resolver struct {
	table *Table
	local LocalFS
}

// NewResolver 构造解析器，table 为 nil 时所有请求都返回 None。
func NewResolver(table *Table, local LocalFS) *Resolver {
	return &Resolver{table: table, local: local}
}

// Resolve 判断 identifier 是否命中覆盖。
// files 中的本地路径不存在时继续检查 versions。
func (r *Resolver) Resolve(identifier string) Decision {
	if r == nil || r.table == nil {
		return Decision{Kind: None}
	}
	if target, ok := r.table.Files[identifier]; ok {
		if isAbsoluteURL(target) {
			return Decision{Kind: Redirect, Target: target}
		}
		if r.local != nil && r.local.Exists(target) {
			return Decision{Kind: LocalFile, Target: target}
		}
	}
	if body, ok := r.table.Versions[identifier]; ok {
		return Decision{Kind: Literal, Body: body}
	}
	return Decision{Kind: None}
}

func isAbsoluteURL(raw string) bool {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Host != ""
}
