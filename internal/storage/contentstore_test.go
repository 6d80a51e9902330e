package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/priceguess-ingest/internal/fetcher"
)

type assetFetcher struct {
	mu     sync.Mutex
	assets map[string]*fetcher.Response
	calls  []string
}

func (f *assetFetcher) Fetch(ctx context.Context, url string) (*fetcher.Response, error) {
	return nil, errors.New("documents are not served here")
}

func (f *assetFetcher) FetchAsset(_ context.Context, url string) (*fetcher.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, url)
	resp, ok := f.assets[url]
	if !ok {
		return nil, &fetcher.Error{URL: url, Message: "request failed", Cause: errors.New("no such host")}
	}
	return resp, nil
}

func image(body, contentType string) *fetcher.Response {
	return &fetcher.Response{StatusCode: 200, OK: true, Body: []byte(body), ContentType: contentType}
}

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) Head(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return m.Called(ctx, key, body, contentType).Error(0)
}

func (m *mockObjectStore) PublicURL(key string) string {
	return m.Called(key).String(0)
}

func TestContentStore_IdenticalBytesStoredOnce(t *testing.T) {
	f := &assetFetcher{assets: map[string]*fetcher.Response{
		"https://m.media-amazon.com/images/I/a.jpg":     image("same-bytes", "image/jpeg"),
		"https://pisces.bbystatic.com/image2/b.jpg":     image("same-bytes", "image/jpeg"),
		"https://m.media-amazon.com/images/I/other.jpg": image("other-bytes", "image/jpeg"),
	}}
	objects := NewMemoryStore("https://images.example.com")
	store := NewContentStore(f, objects, "assets", nil)

	first, err := store.Store(context.Background(), "https://m.media-amazon.com/images/I/a.jpg")
	require.NoError(t, err)
	second, err := store.Store(context.Background(), "https://pisces.bbystatic.com/image2/b.jpg")
	require.NoError(t, err)
	third, err := store.Store(context.Background(), "https://m.media-amazon.com/images/I/other.jpg")
	require.NoError(t, err)

	assert.Equal(t, first.PublicURL, second.PublicURL)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.True(t, first.Uploaded)
	assert.False(t, second.Uploaded)
	assert.NotEqual(t, first.Key, third.Key)

	assert.Equal(t, 2, objects.Len())
	assert.Equal(t, 2, objects.Puts())
	assert.Regexp(t, `^assets/[0-9a-f]{64}\.jpg$`, first.Key)
	assert.Equal(t, "https://images.example.com/"+first.Key, first.PublicURL)
}

func TestContentStore_ConcurrentIdenticalBytes(t *testing.T) {
	f := &assetFetcher{assets: map[string]*fetcher.Response{}}
	urls := []string{
		"https://m.media-amazon.com/images/I/1.png",
		"https://m.media-amazon.com/images/I/2.png",
		"https://m.media-amazon.com/images/I/3.png",
		"https://m.media-amazon.com/images/I/4.png",
	}
	for _, u := range urls {
		f.assets[u] = image("png-bytes", "image/png")
	}
	objects := NewMemoryStore("")
	store := NewContentStore(f, objects, "", nil)

	var wg sync.WaitGroup
	keys := make([]string, len(urls))
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			asset, err := store.Store(context.Background(), u)
			assert.NoError(t, err)
			keys[i] = asset.Key
		}(i, u)
	}
	wg.Wait()

	assert.Equal(t, 1, objects.Len())
	assert.Equal(t, 1, objects.Puts())
	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
}

// slowHeadStore holds every probe long enough for concurrent stores of the
// same key to join one flight.
type slowHeadStore struct {
	*MemoryStore
	delay time.Duration
}

func (s slowHeadStore) Head(ctx context.Context, key string) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Head(ctx, key)
}

func TestContentStore_ConcurrentUploadReportedOnce(t *testing.T) {
	f := &assetFetcher{assets: map[string]*fetcher.Response{}}
	urls := []string{
		"https://m.media-amazon.com/images/I/x.png",
		"https://m.media-amazon.com/images/I/y.png",
		"https://m.media-amazon.com/images/I/z.png",
	}
	for _, u := range urls {
		f.assets[u] = image("same-png", "image/png")
	}
	objects := NewMemoryStore("")
	store := NewContentStore(f, slowHeadStore{MemoryStore: objects, delay: 50 * time.Millisecond}, "assets", nil)

	var wg sync.WaitGroup
	uploaded := make([]bool, len(urls))
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			asset, err := store.Store(context.Background(), u)
			assert.NoError(t, err)
			uploaded[i] = asset.Uploaded
		}(i, u)
	}
	wg.Wait()

	reported := 0
	for _, u := range uploaded {
		if u {
			reported++
		}
	}
	assert.Equal(t, 1, objects.Puts())
	assert.Equal(t, objects.Puts(), reported)
}

func TestContentStore_StripsQueryBeforeFetch(t *testing.T) {
	f := &assetFetcher{assets: map[string]*fetcher.Response{
		"https://pisces.bbystatic.com/image2/p.jpg": image("bytes", "image/jpeg"),
	}}
	store := NewContentStore(f, NewMemoryStore(""), "assets", nil)

	_, err := store.Store(context.Background(), "https://pisces.bbystatic.com/image2/p.jpg?maxHeight=640&format=webp")

	require.NoError(t, err)
	assert.Equal(t, []string{"https://pisces.bbystatic.com/image2/p.jpg"}, f.calls)
}

func TestContentStore_ExistingObjectNotReuploaded(t *testing.T) {
	f := &assetFetcher{assets: map[string]*fetcher.Response{
		"https://img.example.com/a.webp": image("webp-bytes", "image/webp"),
	}}
	objects := new(mockObjectStore)
	objects.On("Head", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	objects.On("PublicURL", mock.AnythingOfType("string")).Return("https://cdn.example.com/x.webp")

	asset, err := NewContentStore(f, objects, "assets", nil).Store(context.Background(), "https://img.example.com/a.webp")

	require.NoError(t, err)
	assert.False(t, asset.Uploaded)
	assert.Equal(t, "webp", asset.Extension)
	objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestContentStore_Failures(t *testing.T) {
	source := "https://img.example.com/a.jpg"

	tests := []struct {
		name   string
		assets map[string]*fetcher.Response
		setup  func(m *mockObjectStore)
		target error
	}{
		{
			name:   "fetch fails",
			assets: map[string]*fetcher.Response{},
			setup:  func(m *mockObjectStore) {},
			target: ErrAssetFetch,
		},
		{
			name:   "fetch returns 404",
			assets: map[string]*fetcher.Response{source: {StatusCode: 404}},
			setup:  func(m *mockObjectStore) {},
			target: ErrAssetFetch,
		},
		{
			name:   "probe fails",
			assets: map[string]*fetcher.Response{source: image("x", "image/jpeg")},
			setup: func(m *mockObjectStore) {
				m.On("Head", mock.Anything, mock.Anything).Return(errors.New("403 forbidden"))
			},
			target: ErrStorageProbe,
		},
		{
			name:   "upload fails",
			assets: map[string]*fetcher.Response{source: image("x", "image/jpeg")},
			setup: func(m *mockObjectStore) {
				m.On("Head", mock.Anything, mock.Anything).Return(ErrNotFound)
				m.On("Put", mock.Anything, mock.Anything, []byte("x"), "image/jpeg").Return(errors.New("slow down")).Once()
			},
			target: ErrStorageUpload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := new(mockObjectStore)
			tt.setup(objects)
			store := NewContentStore(&assetFetcher{assets: tt.assets}, objects, "assets", nil)

			_, err := store.Store(context.Background(), source)

			assert.ErrorIs(t, err, tt.target)
			objects.AssertExpectations(t)
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               "jpg",
		"image/jpg":                "jpg",
		"image/png":                "png",
		"image/webp":               "webp",
		"image/gif":                "gif",
		"image/PNG; charset=utf-8": "png",
		"application/octet-stream": "jpg",
		"":                         "jpg",
	}
	for contentType, want := range tests {
		assert.Equal(t, want, ExtensionFor(contentType), contentType)
	}
}

func TestStripQuery(t *testing.T) {
	assert.Equal(t, "https://a.example.com/x.jpg", stripQuery("https://a.example.com/x.jpg?v=1#frag"))
	assert.Equal(t, "https://a.example.com/x.jpg", stripQuery("https://a.example.com/x.jpg"))
}
