package cache

import (
	_ "crypto/sha256"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"
)

// 两种定位方案各自占用一个命名空间。
const (
	NamespaceRequest = "local_cache"
	NamespaceTree    = "custom_cache"
)

// Target 描述一次拉取：缓存位置、上游 URL 以及写入记录用的原始定位串。
type Target struct {
	Locator Locator
	URL     string
	// Digest 写入 inventory：request 方案为 sha256(url)，tree 方案为 sha256(base)。
	Digest string
	Origin string
}

// Digest 返回定位串的 sha256 十六进制摘要。
func Digest(locator string) string {
	return digest.FromString(locator).Encoded()
}

// RequestTarget 针对 /request/<url> 构造平铺文件的定位，key = sha256(url)。
func RequestTarget(rawURL string) (Target, error) {
	if err := validateURL(rawURL); err != nil {
		return Target{}, err
	}
	key := Digest(rawURL)
	return Target{
		Locator: Locator{Namespace: NamespaceRequest, Path: key},
		URL:     rawURL,
		Digest:  key,
		Origin:  rawURL,
	}, nil
}

// TreeTarget 针对 /custom_cache/<base>/resource/<sub> 构造目录树定位：
// sha256(base) 作为目录，sub 原样镜像在其下。带查询串时在文件名后追加摘要，
// 避免同一路径的不同查询互相覆盖。
func TreeTarget(baseURL, subPath, rawQuery string) (Target, error) {
	if err := validateURL(baseURL); err != nil {
		return Target{}, err
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+subPath), "/")
	if cleaned == "" || cleaned == "." {
		return Target{}, fmt.Errorf("%w: empty resource path", ErrInvalidLocator)
	}

	upstream := strings.TrimSuffix(baseURL, "/") + "/" + cleaned
	baseKey := Digest(baseURL)
	rel := baseKey + "/" + cleaned
	if rawQuery != "" {
		upstream += "?" + rawQuery
		rel += ".__qs_" + Digest(rawQuery)[:16]
	}
	return Target{
		Locator: Locator{Namespace: NamespaceTree, Path: rel},
		URL:     upstream,
		Digest:  baseKey,
		Origin:  upstream,
	}, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocator, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidLocator)
	}
	return nil
}
