package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const metaDir = ".meta"

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 Locator 并发写入，同时复用 basePath。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type entryMeta struct {
	ContentType string `json:"content_type,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		// 上级路径是已缓存的文件（先缓存了 a 再请求 a/b）同样视为未命中
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	meta := s.readMeta(locator)
	entry := Entry{
		Locator:     locator,
		FilePath:    filePath,
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
		ContentType: meta.ContentType,
		Origin:      meta.Origin,
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock, err := s.lockEntry(locator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	// 元数据先于正文落盘，读到正文时总能拿到对应的内容类型
	meta := entryMeta{ContentType: opts.ContentType, Origin: opts.Origin}
	if err := s.writeMeta(locator, meta); err != nil {
		return nil, err
	}

	written, err := writeAtomic(ctx, filePath, body)
	if err != nil {
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:     locator,
		FilePath:    filePath,
		SizeBytes:   written,
		ModTime:     modTime,
		ContentType: opts.ContentType,
		Origin:      opts.Origin,
	}
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	unlock, err := s.lockEntry(locator)
	if err != nil {
		return err
	}
	defer unlock()

	filePath, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	metaPath, err := s.metaPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) lockEntry(locator Locator) (func(), error) {
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}, nil
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	if err := validateNamespace(locator.Namespace); err != nil {
		return "", err
	}
	return resolveUnder(filepath.Join(s.basePath, locator.Namespace), locator.Path, "")
}

func (s *fileStore) metaPath(locator Locator) (string, error) {
	if err := validateNamespace(locator.Namespace); err != nil {
		return "", err
	}
	return resolveUnder(filepath.Join(s.basePath, metaDir, locator.Namespace), locator.Path, ".json")
}

func validateNamespace(namespace string) error {
	if namespace == "" || strings.HasPrefix(namespace, ".") || strings.ContainsAny(namespace, `/\`) {
		return fmt.Errorf("%w: namespace %q", ErrInvalidLocator, namespace)
	}
	return nil
}

// resolveUnder 清理相对路径并确保结果仍位于 root 之下。
func resolveUnder(root, rel, suffix string) (string, error) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidLocator)
	}
	filePath := filepath.Join(root, filepath.FromSlash(rel)) + suffix
	if !strings.HasPrefix(filePath, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidLocator, rel)
	}
	return filePath, nil
}

func (s *fileStore) readMeta(locator Locator) entryMeta {
	var meta entryMeta
	metaPath, err := s.metaPath(locator)
	if err != nil {
		return meta
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return meta
	}
	_ = json.Unmarshal(data, &meta)
	return meta
}

func (s *fileStore) writeMeta(locator Locator, meta entryMeta) error {
	metaPath, err := s.metaPath(locator)
	if err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = writeAtomic(context.Background(), metaPath, strings.NewReader(string(data)))
	return err
}

// writeAtomic 写入同目录临时文件后 rename 到目标位置。
func writeAtomic(ctx context.Context, target string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(target), ".cache-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return 0, err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return 0, err
	}
	return written, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.Namespace + "::" + locator.Path
}
