// Package localfiles 提供对本地静态文件目录的只读访问。
package localfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound 表示请求的本地文件不存在或是目录。
var ErrNotFound = errors.New("local file not found")

// ErrInvalidPath 表示相对路径试图跳出根目录。
var ErrInvalidPath = errors.New("invalid local file path")

// Dir 以 root 为根目录解析相对路径，所有路径均为 URL 路径风格。
type Dir struct {
	root string
}

// NewDir 构建本地文件目录；目录不存在时不会报错，查询时统一返回 ErrNotFound。
func NewDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local files path required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local files path: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root 返回目录的绝对路径。
func (d *Dir) Root() string {
	return d.root
}

// Resolve 将相对路径映射为根目录下的绝对路径。
func (d *Dir) Resolve(rel string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+rel), "/")
	if cleaned == "" {
		return "", ErrInvalidPath
	}
	full := filepath.Join(d.root, filepath.FromSlash(cleaned))
	if full != d.root && !strings.HasPrefix(full, d.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// Exists 判断相对路径是否指向一个普通文件。
func (d *Dir) Exists(rel string) bool {
	_, err := d.Stat(rel)
	return err == nil
}

// Stat 返回文件信息，目录或缺失文件返回 ErrNotFound。
func (d *Dir) Stat(rel string) (fs.FileInfo, error) {
	full, err := d.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return info, nil
}

// Open 打开本地文件，调用方负责关闭。
func (d *Dir) Open(rel string) (*os.File, fs.FileInfo, error) {
	info, err := d.Stat(rel)
	if err != nil {
		return nil, nil, err
	}
	full, _ := d.Resolve(rel)
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return f, info, nil
}
