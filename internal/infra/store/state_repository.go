package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/state"
)

// keyPrefix 狀態鍵的命名空間
const keyPrefix = "state/"

// StateRepository 每個註冊表單獨存一個鍵，值為 YAML
type StateRepository struct {
	kv     KV
	logger *zap.Logger
}

// NewStateRepository 創建狀態倉庫
func NewStateRepository(kv KV, logger *zap.Logger) *StateRepository {
	return &StateRepository{kv: kv, logger: logger}
}

// Load 實現 state.Repository，每次返回新對象
func (r *StateRepository) Load(ctx context.Context) (*state.State, error) {
	st := state.New()
	for _, k := range state.AllKeys() {
		data, ok, err := r.kv.Get(ctx, keyPrefix+string(k))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := yaml.Unmarshal(data, st.Field(k)); err != nil {
			return nil, fmt.Errorf("解析 %s 失敗: %w", k, err)
		}
	}
	if st.RulesetNames == nil {
		st.RulesetNames = make(map[string]string)
	}
	return st, nil
}

// Save 實現 state.Repository，全部鍵在一個事務中寫入
func (r *StateRepository) Save(ctx context.Context, st *state.State, keys ...state.Key) error {
	if len(keys) == 0 {
		keys = state.AllKeys()
	}

	entries := make(map[string][]byte, len(keys))
	for _, k := range keys {
		field := st.Field(k)
		if field == nil {
			return fmt.Errorf("未知的狀態鍵 %q", k)
		}
		data, err := yaml.Marshal(field)
		if err != nil {
			return fmt.Errorf("序列化 %s 失敗: %w", k, err)
		}
		entries[keyPrefix+string(k)] = data
	}

	if err := r.kv.Set(ctx, entries); err != nil {
		return err
	}
	r.logger.Debug("狀態已保存", zap.Int("keys", len(keys)))
	return nil
}
