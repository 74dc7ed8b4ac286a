package avatar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// pngHeader is a minimal payload that sniffs as image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestFetchDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(pngHeader)
	}))
	defer server.Close()

	cache, err := NewCache(t.TempDir(), server.Client(), server.URL)
	require.NoError(t, err)

	path, err := cache.Fetch(context.Background(), "/avatars/alice")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, ".png"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)

	again, err := cache.Fetch(context.Background(), "/avatars/alice")
	require.NoError(t, err)
	require.Equal(t, path, again)
	require.Equal(t, int32(1), hits.Load())
}

func TestFetchAbsoluteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngHeader)
	}))
	defer server.Close()

	cache, err := NewCache(t.TempDir(), server.Client(), "http://unused.invalid")
	require.NoError(t, err)

	path, err := cache.Fetch(context.Background(), server.URL+"/direct.png")
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestFetchRejectsNonImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer server.Close()

	cache, err := NewCache(t.TempDir(), server.Client(), server.URL)
	require.NoError(t, err)

	_, err = cache.Fetch(context.Background(), "/avatars/broken")
	require.Error(t, err)
}

func TestFetchRejectsEmptyRef(t *testing.T) {
	cache, err := NewCache(t.TempDir(), nil, "http://unused.invalid")
	require.NoError(t, err)
	_, err = cache.Fetch(context.Background(), "")
	require.Error(t, err)
}

func TestFetchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	cache, err := NewCache(t.TempDir(), server.Client(), server.URL)
	require.NoError(t, err)

	_, err = cache.Fetch(context.Background(), "/avatars/missing")
	require.Error(t, err)
}
