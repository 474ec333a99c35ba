package server

import (
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/l-schulte/waypack-machine/internal/config"
	"github.com/l-schulte/waypack-machine/internal/version"
)

// newTransport 为所有上游共享连接池；只限制拨号与 TLS 握手时间。
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// userAgentTransport 为没有显式设置 User-Agent 的请求补上服务标识。
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewUpstreamClient 返回 registry 与缓存共用的 http.Client。
// UpstreamTimeout 为 0 时不设置整体超时，慢上游只阻塞对应的请求。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	var timeout time.Duration
	if cfg != nil {
		if value := cfg.Global.UpstreamTimeout.DurationValue(); value > 0 {
			timeout = value
		}
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			base:      newTransport(),
			userAgent: version.UserAgent(),
		},
	}
}

// 代理不能转发的逐跳头（RFC 7230 6.1），外加部分代理仍在使用的 Proxy-Connection。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// IsHopByHopHeader reports whether the header must be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// PassthroughHeaders 返回上游错误响应中可以原样回给客户端的头。
// Content-Length 由 fasthttp 按实际 body 重新计算，因此一并去掉。
func PassthroughHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, values := range src {
		if IsHopByHopHeader(key) || textproto.CanonicalMIMEHeaderKey(key) == "Content-Length" {
			continue
		}
		dst[textproto.CanonicalMIMEHeaderKey(key)] = append(dst[textproto.CanonicalMIMEHeaderKey(key)], values...)
	}
	return dst
}
