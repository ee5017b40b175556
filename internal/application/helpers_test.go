package application

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

// memRepo 按鍵序列化到內存，行為與 KV 實現一致
type memRepo struct {
	mu    sync.Mutex
	data  map[state.Key][]byte
	saves []state.Key
}

func newMemRepo() *memRepo {
	return &memRepo{data: make(map[state.Key][]byte)}
}

func (r *memRepo) Load(_ context.Context) (*state.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := state.New()
	for k, data := range r.data {
		if err := yaml.Unmarshal(data, st.Field(k)); err != nil {
			return nil, err
		}
	}
	if st.RulesetNames == nil {
		st.RulesetNames = make(map[string]string)
	}
	return st, nil
}

func (r *memRepo) Save(_ context.Context, st *state.State, keys ...state.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(keys) == 0 {
		keys = state.AllKeys()
	}
	for _, k := range keys {
		data, err := yaml.Marshal(st.Field(k))
		if err != nil {
			return err
		}
		r.data[k] = data
		r.saves = append(r.saves, k)
	}
	return nil
}

// seed 直接寫入一份狀態
func (r *memRepo) seed(t *testing.T, st *state.State) {
	t.Helper()
	require.NoError(t, r.Save(context.Background(), st))
	r.saves = nil
}

func (r *memRepo) mustLoad(t *testing.T) *state.State {
	t.Helper()
	st, err := r.Load(context.Background())
	require.NoError(t, err)
	return st
}

// fakeFetcher 按 URL 返回預設響應
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*FetchResponse
	errs      map[string]error
	calls     []FetchRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]*FetchResponse), errs: make(map[string]error)}
}

func (f *fakeFetcher) set(url, body, usage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := http.Header{}
	if usage != "" {
		h.Set(UsageHeader, usage)
	}
	f.responses[url] = &FetchResponse{Body: []byte(body), Header: h}
	delete(f.errs, url)
}

func (f *fakeFetcher) fail(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = fmt.Errorf("connection refused")
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (*FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("unexpected url %s", req.URL)
}

// testConfig 不生成地區分組、不過濾，便於斷言
func testConfig() *config.Config {
	c := config.DefaultConfig()
	c.Compose.Region.ByCountry = false
	c.Compose.FilterKeywords = nil
	c.Compose.PatchLifespan = 2
	c.Server.BaseURL = "http://prism.local"
	return c
}

func mustParse(t *testing.T, doc string) *clash.Config {
	t.Helper()
	cfg, skipped, err := clash.Parse([]byte(doc))
	require.NoError(t, err)
	require.Empty(t, skipped)
	return cfg
}

func mustRule(t *testing.T, line string) rule.Rule {
	t.Helper()
	r, err := rule.ParseLine(line)
	require.NoError(t, err)
	return r
}

func ruleItem(t *testing.T, line string, source resource.Source) rulelist.Item {
	t.Helper()
	return rulelist.NewItem(mustRule(t, line), source)
}

func item[T any](name string, data T, source resource.Source) resource.Item[T] {
	return resource.Item[T]{Name: name, Data: data, Metadata: resource.NewMetadata(source)}
}

func ruleStrings(rules []rule.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.String()
	}
	return out
}

func names(items []map[string]any) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = clash.Name(it)
	}
	return out
}

func nopLogger() *zap.Logger { return zap.NewNop() }

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
