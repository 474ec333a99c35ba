package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Flusher 定期把 Recorder 快照写入 JSON 文件，path 为空时不做任何事。
type Flusher struct {
	recorder *Recorder
	path     string
	interval time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewFlusher 构造刷新器，interval 不大于 0 时使用 60s。
func NewFlusher(recorder *Recorder, path string, interval time.Duration, logger *logrus.Logger) *Flusher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Flusher{
		recorder: recorder,
		path:     path,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动后台刷新协程，重复调用无效。
func (f *Flusher) Start() {
	if f.path == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running || f.stopped {
		return
	}
	f.running = true
	go f.loop()
}

// Stop 停止后台协程并执行最后一次写入。
func (f *Flusher) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	running := f.running
	f.mu.Unlock()

	if !running {
		f.flushAndLog()
		return
	}
	close(f.stop)
	<-f.done
}

func (f *Flusher) loop() {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flushAndLog()
		case <-f.stop:
			f.flushAndLog()
			return
		}
	}
}

func (f *Flusher) flushAndLog() {
	if err := f.Flush(); err != nil && f.logger != nil {
		f.logger.WithFields(logrus.Fields{
			"action": "metrics_flush",
			"path":   f.path,
		}).WithError(err).Warn("写入指标快照失败")
	}
}

// Flush 立即写入一次快照（临时文件 + rename）。
func (f *Flusher) Flush() error {
	if f.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(f.recorder.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*")
	if err != nil {
		return fmt.Errorf("create metrics temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write metrics snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close metrics snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename metrics snapshot: %w", err)
	}
	return nil
}
