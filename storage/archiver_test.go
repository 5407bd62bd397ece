package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrackHound/cache"
	"TrackHound/config"
	"TrackHound/core/request"
	"TrackHound/model"
)

type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	presigns int
	removed  []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memStore) PresignedGet(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presigns++
	return fmt.Sprintf("http://minio.local/%s?sig=%d", key, m.presigns), nil
}

func (m *memStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	m.removed = append(m.removed, key)
	return nil
}

func (m *memStore) object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func newTestTracks() *cache.TrackCache {
	ttls := config.CacheTTLConfig{
		TrackSearch: 5 * time.Minute,
		TrackInfo:   time.Hour,
		DownloadURL: time.Hour,
		Trending:    30 * time.Minute,
	}
	return cache.NewTrackCache(cache.New("test", cache.NewLocalStore(64), nil, ttls, time.Minute))
}

func newTestExecutor() *request.Executor {
	return request.New(request.Config{
		Source:      "archive",
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	})
}

func TestArchiveUploadsAndCachesURL(t *testing.T) {
	payload := []byte("ID3fake-mp3-bytes")
	var gotAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	store := newMemStore()
	tracks := newTestTracks()
	arch := NewArchiver(store, newTestExecutor(), tracks)

	res := &model.DownloadResolution{
		URL:     srv.URL + "/stream",
		Format:  "mp3",
		Headers: map[string]string{"User-Agent": "TrackHound/1.0"},
	}
	require.NoError(t, arch.Archive(context.Background(), model.SourceVKAudio, "abc123", res))

	data, ok := store.object("vk_audio/abc123.mp3")
	require.True(t, ok)
	assert.Equal(t, payload, data)
	assert.Equal(t, "audio/mpeg", store.types["vk_audio/abc123.mp3"])
	assert.Equal(t, "TrackHound/1.0", gotAgent.Load())

	info, ok := tracks.GetArchived(context.Background(), model.SourceVKAudio, "abc123")
	require.True(t, ok)
	assert.Equal(t, "vk_audio/abc123.mp3", info.ObjectKey)
	assert.Contains(t, info.URL, "vk_audio/abc123.mp3")
}

func TestArchiveSkipsUploadWhenObjectExists(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	store := newMemStore()
	store.objects["vk_audio/abc123.mp3"] = []byte("already-there")
	tracks := newTestTracks()
	arch := NewArchiver(store, newTestExecutor(), tracks)

	res := &model.DownloadResolution{URL: srv.URL, Format: "mp3"}
	require.NoError(t, arch.Archive(context.Background(), model.SourceVKAudio, "abc123", res))

	assert.Equal(t, int32(0), hits.Load(), "existing objects must not be fetched again")
	data, _ := store.object("vk_audio/abc123.mp3")
	assert.Equal(t, []byte("already-there"), data)

	_, ok := tracks.GetArchived(context.Background(), model.SourceVKAudio, "abc123")
	assert.True(t, ok, "the presigned URL is still refreshed")
}

func TestArchiveIgnoresEmptyResolution(t *testing.T) {
	store := newMemStore()
	arch := NewArchiver(store, newTestExecutor(), newTestTracks())

	require.NoError(t, arch.Archive(context.Background(), model.SourceYouTube, "x", nil))
	require.NoError(t, arch.Archive(context.Background(), model.SourceYouTube, "x", &model.DownloadResolution{}))
	assert.Empty(t, store.objects)
}

func TestArchiveFailsOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := newMemStore()
	arch := NewArchiver(store, newTestExecutor(), newTestTracks())

	err := arch.Archive(context.Background(), model.SourceYouTube, "vid1", &model.DownloadResolution{URL: srv.URL})
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestArchiveRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore()
	arch := NewArchiver(store, newTestExecutor(), newTestTracks())

	err := arch.Archive(context.Background(), model.SourceYouTube, "vid1", &model.DownloadResolution{URL: srv.URL})
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestObjectKeySanitizesAndDefaults(t *testing.T) {
	assert.Equal(t, "youtube/a_b_c.mp3", ObjectKey(model.SourceYouTube, "a/b/c", ""))
	assert.Equal(t, "spotify/x.flac", ObjectKey(model.SourceSpotify, "x", "FLAC"))
	assert.Equal(t, "vk_audio/42.m4a", ObjectKey(model.SourceVKAudio, "42", "m4a"))
}

func TestRemoveUsesCachedKeyForFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mp4")
		_, _ = w.Write([]byte("m4a-bytes"))
	}))
	defer srv.Close()

	store := newMemStore()
	tracks := newTestTracks()
	arch := NewArchiver(store, newTestExecutor(), tracks)

	res := &model.DownloadResolution{URL: srv.URL, Format: "m4a"}
	require.NoError(t, arch.Archive(context.Background(), model.SourceSpotify, "track9", res))
	_, ok := store.object("spotify/track9.m4a")
	require.True(t, ok)

	require.NoError(t, arch.Remove(context.Background(), model.SourceSpotify, "track9"))

	_, ok = store.object("spotify/track9.m4a")
	assert.False(t, ok)
	assert.Equal(t, []string{"spotify/track9.m4a"}, store.removed)
	_, ok = tracks.GetArchived(context.Background(), model.SourceSpotify, "track9")
	assert.False(t, ok)
}

func TestArchivedRecoversFromBucketWhenCacheCold(t *testing.T) {
	store := newMemStore()
	store.objects["vk_audio/cold1.mp3"] = []byte("bytes")
	tracks := newTestTracks()
	arch := NewArchiver(store, newTestExecutor(), tracks)

	info, ok := arch.Archived(context.Background(), model.SourceVKAudio, "cold1")
	require.True(t, ok)
	assert.Equal(t, "vk_audio/cold1.mp3", info.ObjectKey)
	assert.NotEmpty(t, info.URL)

	cached, ok := tracks.GetArchived(context.Background(), model.SourceVKAudio, "cold1")
	require.True(t, ok, "recovered entries are cached back")
	assert.Equal(t, info.ObjectKey, cached.ObjectKey)
}

func TestArchivedMissingEverywhere(t *testing.T) {
	arch := NewArchiver(newMemStore(), newTestExecutor(), newTestTracks())
	_, ok := arch.Archived(context.Background(), model.SourceYouTube, "nope")
	assert.False(t, ok)
}

func TestResolutionFromArchivedCopy(t *testing.T) {
	store := newMemStore()
	store.objects["vk_audio/kept.mp3"] = []byte("bytes")
	arch := NewArchiver(store, newTestExecutor(), newTestTracks())

	res, ok := arch.Resolution(context.Background(), model.SourceVKAudio, "kept")
	require.True(t, ok)
	assert.NotEmpty(t, res.URL)
	assert.Equal(t, "mp3", res.Format)
	require.NotNil(t, res.ExpiresAt)
	assert.False(t, res.Expired(time.Now()))
	assert.True(t, res.Expired(time.Now().Add(25*time.Hour)))

	_, ok = arch.Resolution(context.Background(), model.SourceVKAudio, "never-archived")
	assert.False(t, ok)
}
