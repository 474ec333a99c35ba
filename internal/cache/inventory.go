package cache

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// InventoryFile 是每个命名空间根目录下的写入记录文件名。
const InventoryFile = "cache_inventory.csv"

// Inventory 以追加方式记录 (digest, locator)，互斥锁只保护这一个文件。
type Inventory struct {
	mu   sync.Mutex
	path string
}

// NewInventory 构造指向 path 的记录器，文件在首次追加时创建。
func NewInventory(path string) *Inventory {
	return &Inventory{path: path}
}

// Append 追加一行记录。
func (i *Inventory) Append(digest, locator string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("create inventory dir: %w", err)
	}
	f, err := os.OpenFile(i.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open inventory: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{digest, locator}); err != nil {
		f.Close()
		return fmt.Errorf("write inventory: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush inventory: %w", err)
	}
	return f.Close()
}
