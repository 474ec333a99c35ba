package cache

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func readInventory(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open inventory: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse inventory: %v", err)
	}
	return rows
}

func TestInventoryAppendsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local_cache", InventoryFile)
	inv := NewInventory(path)
	if err := inv.Append("d1", "https://a.test/x,y"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := inv.Append("d2", "https://b.test/"); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows := readInventory(t, path)
	if len(rows) != 2 || rows[0][0] != "d1" || rows[0][1] != "https://a.test/x,y" || rows[1][0] != "d2" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestInventoryConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), InventoryFile)
	inv := NewInventory(path)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := inv.Append(fmt.Sprintf("d%d", i), "https://x.test/"); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if rows := readInventory(t, path); len(rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(rows))
	}
}
