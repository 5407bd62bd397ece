package spotify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"TrackHound/core/request"
	"TrackHound/core/source"
	"TrackHound/model"
)

const searchFixture = `{"tracks":{"items":[
 {"id":"t1","name":"Believer","duration_ms":204000,"explicit":false,"popularity":88,
  "artists":[{"name":"Imagine Dragons"}],
  "album":{"name":"Evolve","release_date":"2017-06-23",
           "images":[{"url":"https://img.example/640.jpg","width":640,"height":640},
                     {"url":"https://img.example/300.jpg","width":300,"height":300}]},
  "external_urls":{"spotify":"https://open.spotify.com/track/t1"},
  "preview_url":"https://p.scdn.co/mp3-preview/t1"},
 {"id":"t2","name":"Under Pressure","duration_ms":248000,"explicit":false,"popularity":80,
  "artists":[{"name":"Queen"},{"name":"David Bowie"}],
  "album":{"name":"Hot Space","release_date":"1982"},
  "external_urls":{"spotify":"https://open.spotify.com/track/t2"}}
]}}`

// spotifyStub serves the auth and API endpoints from one server and counts
// token grants.
type spotifyStub struct {
	srv         *httptest.Server
	tokenGrants int32
	searchHits  int32
	failNext401 int32
}

func newSpotifyStub(t *testing.T) *spotifyStub {
	s := &spotifyStub{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		wantBasic := "Basic " + base64.StdEncoding.EncodeToString([]byte("id:secret"))
		assert.Equal(t, wantBasic, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		n := atomic.AddInt32(&s.tokenGrants, 1)
		fmt.Fprintf(w, `{"access_token":"tok%d","expires_in":3600,"token_type":"Bearer"}`, n)
	})

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.searchHits, 1)
		if atomic.CompareAndSwapInt32(&s.failNext401, 1, 0) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		wantBearer := fmt.Sprintf("Bearer tok%d", atomic.LoadInt32(&s.tokenGrants))
		assert.Equal(t, wantBearer, r.Header.Get("Authorization"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "US", r.URL.Query().Get("market"))
		w.Write([]byte(searchFixture))
	})

	mux.HandleFunc("/browse/featured-playlists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"playlists":{"items":[{"id":"pl1","name":"Today's Top Hits"}]}}`))
	})

	mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
		  {"track":{"id":"t9","name":"Uprising","duration_ms":304000,
		            "artists":[{"name":"Muse"}],
		            "album":{"name":"The Resistance","release_date":"2009-09-14"}}},
		  {"track":null}
		]}`))
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newTestAdapter(stub *spotifyStub, id, secret string) *Adapter {
	exec := request.New(request.Config{
		Source:      model.SourceSpotify,
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	})
	return &Adapter{
		client: &client{
			exec:     exec,
			apiBase:  stub.srv.URL,
			authBase: stub.srv.URL + "/api/token",
			id:       id,
			secret:   secret,
			now:      time.Now,
		},
		log: zap.NewNop(),
	}
}

func TestSearchMapsTracks(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "id", "secret")

	results, err := a.Search(context.Background(), "believer", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "Believer", first.Title)
	assert.Equal(t, "Imagine Dragons", first.Artist)
	assert.Equal(t, "Evolve", first.Album)
	assert.Equal(t, 204, first.Duration)
	assert.Equal(t, "t1", first.ExternalID)
	assert.Equal(t, "https://open.spotify.com/track/t1", first.URL)
	assert.Equal(t, "https://img.example/640.jpg", first.CoverURL, "largest image wins")
	assert.Equal(t, 2017, first.Year)
	assert.Equal(t, model.SourceSpotify, first.Source)
	assert.Equal(t, "88", first.Metadata["popularity"])
	assert.Equal(t, "https://p.scdn.co/mp3-preview/t1", first.Metadata["preview_url"])

	second := results[1]
	assert.Equal(t, "Queen, David Bowie", second.Artist)
	assert.Equal(t, 1982, second.Year, "bare-year release dates parse")
	assert.Empty(t, second.CoverURL)
}

func TestSearchCachesToken(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "id", "secret")

	_, err := a.Search(context.Background(), "one", 5)
	require.NoError(t, err)
	_, err = a.Search(context.Background(), "two", 5)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.tokenGrants))
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.searchHits))
}

func TestTokenRefreshesBeforeExpiry(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "id", "secret")

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.client.now = func() time.Time { return current }

	_, err := a.Search(context.Background(), "one", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.tokenGrants))

	// Still inside the guard window: cached token is reused.
	current = current.Add(3539 * time.Second)
	_, err = a.Search(context.Background(), "two", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.tokenGrants))

	// 3600s lifetime minus the 60s guard has elapsed: re-auth.
	current = current.Add(1 * time.Second)
	_, err = a.Search(context.Background(), "three", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.tokenGrants))
}

func TestSearchReauthenticatesOnceOn401(t *testing.T) {
	stub := newSpotifyStub(t)
	atomic.StoreInt32(&stub.failNext401, 1)
	a := newTestAdapter(stub, "id", "secret")

	results, err := a.Search(context.Background(), "believer", 5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.tokenGrants), "401 invalidates and re-auths")
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.searchHits))
}

func TestSearchWithoutCredentials(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "", "")

	_, err := a.Search(context.Background(), "believer", 5)
	require.Error(t, err)
	assert.True(t, source.IsAuthFailed(err))
	assert.Zero(t, atomic.LoadInt32(&stub.tokenGrants))
}

func TestShortCatalogDurationsSurvive(t *testing.T) {
	stub := newSpotifyStub(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok1","expires_in":3600}`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tracks":{"items":[
		  {"id":"t1","name":"Intro","duration_ms":5000,"artists":[{"name":"Muse"}],"album":{"name":"x"}}
		]}}`))
	})
	stub.srv.Config.Handler = mux

	a := newTestAdapter(stub, "id", "secret")
	results, err := a.Search(context.Background(), "intro", 5)
	require.NoError(t, err)
	require.Len(t, results, 1, "metadata catalogs skip the duration floor")
	assert.Equal(t, 5, results[0].Duration)
}

func TestResolveDownloadAlwaysUnavailable(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "id", "secret")

	res, err := a.ResolveDownload(context.Background(), "t1")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, source.IsUnavailable(err))
}

func TestPopularUsesFeaturedPlaylists(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "id", "secret")

	results, err := a.Popular(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "null playlist entries are skipped")
	assert.Equal(t, "Uprising", results[0].Title)
	assert.Equal(t, "Muse", results[0].Artist)
}

func TestPopularFallsBackToSearch(t *testing.T) {
	stub := newSpotifyStub(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok1","expires_in":3600}`))
	})
	mux.HandleFunc("/browse/featured-playlists", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	var searchQuery string
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		searchQuery = r.URL.Query().Get("q")
		w.Write([]byte(searchFixture))
	})
	stub.srv.Config.Handler = mux

	a := newTestAdapter(stub, "id", "secret")
	results, err := a.Popular(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, popularFallbackQuery, searchQuery)
}

func TestHealthCheck(t *testing.T) {
	stub := newSpotifyStub(t)
	a := newTestAdapter(stub, "id", "secret")

	status := a.HealthCheck(context.Background())
	assert.Equal(t, model.SourceSpotify, status.Source)
	assert.True(t, status.Healthy)
	assert.False(t, status.CheckedAt.IsZero())
}
