package template

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

// DefaultDebounce 編輯器保存時往往連續觸發多個事件
const DefaultDebounce = 200 * time.Millisecond

// ReloadHandler 模板重新加載成功後調用
type ReloadHandler func(cfg *clash.Config)

// Watcher 監視模板文件，變化後重新加載
// 監視的是所在目錄，這樣"寫臨時文件再改名"的保存方式也能被捕獲
type Watcher struct {
	path     string
	handler  ReloadHandler
	debounce time.Duration
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher 創建監視器，debounce <= 0 時使用 DefaultDebounce
func NewWatcher(path string, handler ReloadHandler, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		handler:  handler,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start 開始監視，ctx 取消或 Stop 後退出
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop 停止監視，可重複調用
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("模板監視出錯", zap.Error(err))
		case <-timerCh:
			timerCh = nil
			w.reload()
		}
	}
}

// reload 加載失敗時保留舊模板
func (w *Watcher) reload() {
	cfg, err := Load(w.path, w.logger)
	if err != nil {
		w.logger.Error("模板重新加載失敗，繼續使用舊模板", zap.Error(err))
		return
	}
	w.handler(cfg)
}
