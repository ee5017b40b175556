// Package store 基於 BadgerDB 的鍵值存儲，以及建立在它之上的狀態倉庫。
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// KV 鍵值存儲接口
type KV interface {
	// Get 讀取鍵，不存在時 ok 為 false
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 在一個事務中寫入全部鍵
	Set(ctx context.Context, entries map[string][]byte) error
	// Delete 刪除鍵，不存在時不報錯
	Delete(ctx context.Context, key string) error
}

// Config BadgerDB 配置
type Config struct {
	// Path 數據目錄，InMemory 時忽略
	Path string
	// InMemory 不落盤，用於測試
	InMemory bool
	// SyncWrites 每次寫入都 fsync
	SyncWrites bool
	// GCInterval value log GC 間隔，0 表示不做 GC
	GCInterval time.Duration
}

// DefaultConfig 持久化默認配置
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 10 * time.Minute,
	}
}

// InMemoryConfig 測試用配置
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger 把 badger 的日誌轉到 zap
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }

// DB BadgerDB 實現的 KV
type DB struct {
	db     *badger.DB
	logger *zap.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open 打開數據庫
func Open(cfg Config, logger *zap.Logger) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("持久化存儲需要數據目錄")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("創建數據目錄 %s 失敗: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打開 badger 數據庫失敗: %w", err)
	}

	d := &DB{db: bdb, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		d.stopGC = make(chan struct{})
		d.doneGC = make(chan struct{})
		go d.runGC(cfg.GCInterval)
	}
	return d, nil
}

func (d *DB) runGC(interval time.Duration) {
	defer close(d.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite 表示沒有需要回收的數據
			if err := d.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				d.logger.Warn("badger value log GC 失敗", zap.Error(err))
			}
		}
	}
}

// Get 實現 KV
func (d *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("讀取 %s 失敗: %w", key, err)
	}
	return value, true, nil
}

// Set 實現 KV
func (d *DB) Set(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("寫入 %s 失敗: %w", k, err)
			}
		}
		return nil
	})
}

// Delete 實現 KV
func (d *DB) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close 停止 GC 並關閉數據庫
func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.doneGC
	}
	return d.db.Close()
}
