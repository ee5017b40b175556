package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShort(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version, GitCommit = "1.2.0", ""
	assert.Equal(t, "v1.2.0", Short())

	GitCommit = "abcdef01"
	assert.Equal(t, "v1.2.0 (abcdef01)", Short())
	assert.Contains(t, Info(), "Prism Clash v1.2.0")
	assert.Contains(t, Info(), "Git Commit: abcdef01")
}

func TestLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("解析標籤", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
			_, _ = w.Write([]byte(`{"tag_name":"v2.3.4"}`))
		}))
		defer srv.Close()

		v, err := Latest(ctx, srv.Client(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "2.3.4", v)
	})

	t.Run("沒有發布", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		v, err := Latest(ctx, srv.Client(), srv.URL)
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("限流", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := Latest(ctx, srv.Client(), srv.URL)
		assert.Error(t, err)
	})
}
