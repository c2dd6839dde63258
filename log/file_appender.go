package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternsql/tern/config"
)

// FileAppender writes log lines to a file, optionally through a buffered
// channel so the logging goroutine never blocks on disk I/O. It implements
// config.ConfigChangeListener so a ConfigManager can hot-swap its path,
// level, and sync/async mode without dropping already-buffered lines.
type FileAppender struct {
	mu            sync.Mutex
	file          *os.File
	path          string
	cfg           *LogCfg
	async         bool
	queue         chan []byte
	done          chan struct{}
	wg            sync.WaitGroup
	size          int64
	closeOnce     sync.Once
	logger        *GameLogger
	configManager config.ConfigManager
}

// NewFileAppender creates a FileAppender from a static configuration.
func NewFileAppender(cfg *LogCfg, logger *GameLogger) *FileAppender {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	fa := &FileAppender{
		cfg:    cfg,
		path:   cfg.LogPath,
		async:  cfg.IsAsync,
		logger: logger,
	}

	_ = fa.openFile()

	if fa.async {
		fa.startAsync()
	}

	return fa
}

// NewFileAppenderWithConfigManager creates a FileAppender whose configuration
// is pulled from the "logger" entry of cm, and registers it for hot-reload.
func NewFileAppenderWithConfigManager(cm config.ConfigManager, logger *GameLogger) *FileAppender {
	cfg := getDefaultCfg()
	if cm != nil {
		if c, err := cm.GetConfig("logger"); err == nil {
			if lc, ok := c.(*LogCfg); ok {
				cfg = lc
			}
		}
	}

	fa := NewFileAppender(cfg, logger)
	fa.configManager = cm

	if cm != nil {
		cm.AddChangeListener(fa)
	}

	return fa
}

// GetCurrentConfig returns the configuration currently in effect.
func (fa *FileAppender) GetCurrentConfig() *LogCfg {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.cfg
}

// openFile opens fa.path, creating parent directories as needed. Callers
// must hold fa.mu.
func (fa *FileAppender) openFile() error {
	if dir := filepath.Dir(fa.path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	f, err := os.OpenFile(fa.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	fa.file = f
	fa.size = 0
	if info, statErr := f.Stat(); statErr == nil {
		fa.size = info.Size()
	}

	return nil
}

// startAsync launches the background writer goroutine. Callers must hold
// fa.mu.
func (fa *FileAppender) startAsync() {
	size := fa.cfg.AsyncCacheSize
	if size <= 0 {
		size = 1024
	}

	queue := make(chan []byte, size)
	done := make(chan struct{})
	fa.queue = queue
	fa.done = done

	fa.wg.Add(1)
	go func() {
		defer fa.wg.Done()
		fa.asyncLoop(queue, done)
	}()
}

// asyncLoop drains queue until done fires, then drains whatever is left
// without blocking for further writes, and returns.
func (fa *FileAppender) asyncLoop(queue chan []byte, done chan struct{}) {
	for {
		select {
		case data, ok := <-queue:
			if !ok {
				return
			}
			fa.writeToFile(data)
		case <-done:
			for {
				select {
				case data, ok := <-queue:
					if !ok {
						return
					}
					fa.writeToFile(data)
				default:
					return
				}
			}
		}
	}
}

func (fa *FileAppender) writeToFile(data []byte) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.file == nil {
		return
	}
	n, _ := fa.file.Write(data)
	fa.size += int64(n)
	fa.maybeRotateLocked()
}

// maybeRotateLocked renames the current file aside and opens a fresh one
// once it crosses FileSplitMB. Callers must hold fa.mu.
func (fa *FileAppender) maybeRotateLocked() {
	if fa.cfg == nil || fa.cfg.FileSplitMB <= 0 {
		return
	}

	limit := int64(fa.cfg.FileSplitMB) * 1024 * 1024
	if fa.size < limit {
		return
	}

	if fa.file != nil {
		_ = fa.file.Close()
	}

	rotated := fmt.Sprintf("%s.%d", fa.path, time.Now().UnixNano())
	_ = os.Rename(fa.path, rotated)
	_ = fa.openFile()
}

// Write implements LogAppender. In async mode it enqueues a copy of p and
// returns immediately; in sync mode it writes to disk before returning.
func (fa *FileAppender) Write(p []byte) (int, error) {
	fa.mu.Lock()
	async := fa.async
	queue := fa.queue
	fa.mu.Unlock()

	if async && queue != nil {
		cp := make([]byte, len(p))
		copy(cp, p)
		queue <- cp
		return len(p), nil
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.file == nil {
		return 0, errors.New("log: file appender has no open file")
	}
	n, err := fa.file.Write(p)
	fa.size += int64(n)
	fa.maybeRotateLocked()
	return n, err
}

// Refresh drains whatever is currently queued without waiting for new
// writes to arrive.
func (fa *FileAppender) Refresh() {
	fa.mu.Lock()
	async := fa.async
	queue := fa.queue
	fa.mu.Unlock()

	if !async || queue == nil {
		return
	}

	for {
		select {
		case data, ok := <-queue:
			if !ok {
				return
			}
			fa.writeToFile(data)
		default:
			return
		}
	}
}

// OnConfigChanged implements config.ConfigChangeListener, applying a path
// change, level change, or sync/async switch without losing already
// buffered lines.
func (fa *FileAppender) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}

	lc, ok := newConfig.(*LogCfg)
	if !ok {
		return fmt.Errorf("log: file appender received unexpected config type %T", newConfig)
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()

	pathChanged := lc.LogPath != fa.path
	asyncChanged := lc.IsAsync != fa.async
	fa.cfg = lc

	if pathChanged {
		if fa.file != nil {
			_ = fa.file.Close()
		}
		fa.path = lc.LogPath
		if err := fa.openFile(); err != nil {
			return err
		}
	}

	if asyncChanged {
		if fa.async && !lc.IsAsync {
			if fa.done != nil {
				close(fa.done)
			}
			fa.queue = nil
			fa.done = nil
			fa.async = false
		} else if !fa.async && lc.IsAsync {
			fa.async = true
			fa.startAsync()
		}
	}

	return nil
}

// Close flushes any buffered lines and releases the underlying file.
func (fa *FileAppender) Close() error {
	fa.closeOnce.Do(func() {
		fa.mu.Lock()
		done := fa.done
		fa.mu.Unlock()

		if done != nil {
			close(done)
		}
		fa.wg.Wait()

		fa.mu.Lock()
		if fa.file != nil {
			_ = fa.file.Close()
			fa.file = nil
		}
		fa.mu.Unlock()
	})

	return nil
}
