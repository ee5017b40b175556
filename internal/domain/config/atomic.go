package config

import (
	"sync"
	"sync/atomic"
)

// AtomicContainer 運行時配置容器
// 讀取無鎖；寫入時複製一份、修改、驗證後原子替換指針
type AtomicContainer struct {
	ptr atomic.Pointer[Config]
	mu  sync.Mutex // 串行化寫操作
}

// NewAtomicContainer 初始化，保存一份深拷貝
func NewAtomicContainer(cfg *Config) *AtomicContainer {
	c := &AtomicContainer{}
	c.ptr.Store(cfg.DeepCopy())
	return c
}

// Get 當前配置的只讀快照
// ⚠️ 返回的對象不能修改，修改必須通過 Update
func (c *AtomicContainer) Get() *Config {
	return c.ptr.Load()
}

// Update 在副本上應用 fn，驗證通過後替換
func (c *AtomicContainer) Update(fn func(*Config) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newCfg := c.ptr.Load().DeepCopy()
	if err := fn(newCfg); err != nil {
		return err
	}
	if err := newCfg.Validate(); err != nil {
		return err
	}

	c.ptr.Store(newCfg)
	return nil
}

// Replace 用重新加載的配置整體替換，驗證失敗時保留舊配置
func (c *AtomicContainer) Replace(cfg *Config) error {
	return c.Update(func(dst *Config) error {
		*dst = *cfg.DeepCopy()
		return nil
	})
}
