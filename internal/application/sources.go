package application

import (
	"sync"
	"sync/atomic"

	"github.com/Yat-Muk/prism-clash/internal/domain/state"
)

// SourceStore 外部來源快照容器
// 讀取無鎖；刷新時構造新快照並整體替換，不修改已發布的快照
type SourceStore struct {
	ptr atomic.Pointer[state.Sources]
	mu  sync.Mutex // 串行化寫操作
}

// NewSourceStore 以空快照初始化
func NewSourceStore() *SourceStore {
	s := &SourceStore{}
	s.ptr.Store(state.EmptySources())
	return s
}

// Get 當前快照，只讀
func (s *SourceStore) Get() *state.Sources {
	return s.ptr.Load()
}

// Update 基於當前快照生成新快照並替換
func (s *SourceStore) Update(fn func(*state.Sources) *state.Sources) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptr.Store(fn(s.ptr.Load()))
}
