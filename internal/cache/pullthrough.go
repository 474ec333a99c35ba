package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

// DefaultContentType 在上游与元数据都没有给出类型时使用。
const DefaultContentType = "application/octet-stream"

// Fetcher 是发起上游请求的最小接口，*http.Client 满足该接口。
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result 是一次 GetOrFetch 的结果。Body 在多个等待者之间共享，调用方不得修改。
type Result struct {
	Status      int
	Header      http.Header
	Body        []byte
	ContentType string
	CacheHit    bool
	// StoreErr 记录写缓存或写 inventory 的失败，此时响应仍然返回给客户端。
	StoreErr error
}

// PullThrough 组合 Store 与上游 Fetcher：命中直接返回，未命中时同一定位只拉取一次。
type PullThrough struct {
	client      Fetcher
	store       Store
	userAgent   string
	inventories map[string]*Inventory
	group       singleflight.Group
}

// NewPullThrough 构造拉取器，inventory 文件位于 basePath/<namespace>/cache_inventory.csv。
func NewPullThrough(client Fetcher, store Store, basePath, userAgent string) *PullThrough {
	inventories := map[string]*Inventory{
		NamespaceRequest: NewInventory(filepath.Join(basePath, NamespaceRequest, InventoryFile)),
		NamespaceTree:    NewInventory(filepath.Join(basePath, NamespaceTree, InventoryFile)),
	}
	return &PullThrough{
		client:      client,
		store:       store,
		userAgent:   userAgent,
		inventories: inventories,
	}
}

// GetOrFetch 按定位读取缓存，未命中时向上游发起一次 GET。
// 只有 2xx 响应会被写入缓存；上游请求不随客户端断开而取消。
func (p *PullThrough) GetOrFetch(ctx context.Context, target Target) (*Result, error) {
	if res, err := p.lookup(ctx, target.Locator); err != nil || res != nil {
		return res, err
	}

	value, err, _ := p.group.Do(locatorKey(target.Locator), func() (any, error) {
		detached := context.WithoutCancel(ctx)
		// 等待期间可能已有其他请求写入
		if res, err := p.lookup(detached, target.Locator); err != nil || res != nil {
			return res, err
		}
		return p.fetch(detached, target)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Result), nil
}

func (p *PullThrough) lookup(ctx context.Context, locator Locator) (*Result, error) {
	cached, err := p.store.Get(ctx, locator)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}
	defer cached.Reader.Close()

	body, err := io.ReadAll(cached.Reader)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	contentType := cached.Entry.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Result{
		Status:      http.StatusOK,
		Header:      http.Header{},
		Body:        body,
		ContentType: contentType,
		CacheHit:    true,
	}, nil
}

func (p *PullThrough) fetch(ctx context.Context, target Target) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultContentType
	}
	result := &Result{
		Status:      resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		ContentType: contentType,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, nil
	}

	_, err = p.store.Put(ctx, target.Locator, bytes.NewReader(body), PutOptions{
		ContentType: contentType,
		Origin:      target.Origin,
	})
	if err != nil {
		result.StoreErr = fmt.Errorf("store entry: %w", err)
		return result, nil
	}
	if inv := p.inventories[target.Locator.Namespace]; inv != nil {
		if err := inv.Append(target.Digest, target.Origin); err != nil {
			// 每个缓存条目都要有 inventory 记录，写记录失败时撤回条目，下次重新拉取
			if rmErr := p.store.Remove(ctx, target.Locator); rmErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback entry: %w", rmErr))
			}
			result.StoreErr = err
		}
	}
	return result, nil
}
