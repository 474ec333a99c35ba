package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/server"
)

// UpstreamResponse 保存一次上游元数据请求的完整结果。
type UpstreamResponse struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// RegistryClient 向上游注册表请求原始元数据。不重试，超时沿用 http.Client 的设置。
type RegistryClient struct {
	client    *http.Client
	userAgent string
}

// NewRegistryClient 使用共享的上游 http.Client 构造客户端。
func NewRegistryClient(client *http.Client, userAgent string) *RegistryClient {
	return &RegistryClient{client: client, userAgent: userAgent}
}

// Fetch 请求 <upstream-base><UpstreamPath(identifier)>，并携带模块声明的 Accept 头。
func (r *RegistryClient) Fetch(
	ctx context.Context,
	route *server.RegistryRoute,
	def hooks.Hooks,
	hookCtx *hooks.RequestContext,
	identifier string,
) (*UpstreamResponse, error) {
	target := route.UpstreamBase() + def.UpstreamPathOrIdentity(hookCtx, identifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if accept := route.Module.Accept; accept != "" {
		req.Header.Set("Accept", accept)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return &UpstreamResponse{
		URL:    target,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
