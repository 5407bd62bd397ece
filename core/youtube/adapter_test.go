package youtube

import (
	"context"
	"errors"
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

type fakeExtractor struct {
	searchFn    func(ctx context.Context, query string, limit int) ([]ytdlpEntry, error)
	videoInfoFn func(ctx context.Context, videoURL string) (*ytdlpInfo, error)
	searchCalls int32
}

func (f *fakeExtractor) search(ctx context.Context, query string, limit int) ([]ytdlpEntry, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query, limit)
}

func (f *fakeExtractor) videoInfo(ctx context.Context, videoURL string) (*ytdlpInfo, error) {
	if f.videoInfoFn == nil {
		return nil, errors.New("videoInfo not stubbed")
	}
	return f.videoInfoFn(ctx, videoURL)
}

func newTestAdapter(apiBase, key string, ext extractor) *Adapter {
	exec := request.New(request.Config{
		Source:      model.SourceYouTube,
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	})
	if ext == nil {
		ext = &fakeExtractor{}
	}
	return &Adapter{
		client:  &client{exec: exec, apiBase: apiBase, key: key},
		extract: ext,
		log:     zap.NewNop(),
	}
}

const apiSearchFixture = `{"items":[
  {"id":{"videoId":"vid1"},"snippet":{
    "title":"Imagine Dragons - Believer (Official Music Video)",
    "channelTitle":"ImagineDragonsVEVO",
    "publishedAt":"2017-03-07T14:00:00Z",
    "thumbnails":{"high":{"url":"https://img.example/hq1.jpg"}}}},
  {"id":{"videoId":"vid2"},"snippet":{
    "title":"Muse - Uprising",
    "channelTitle":"MuseVEVO",
    "publishedAt":"2009-09-07T10:00:00Z",
    "thumbnails":{"medium":{"url":"https://img.example/mq2.jpg"}}}}
]}`

func TestSearchAPITier(t *testing.T) {
	var ext fakeExtractor
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "believer audio", q.Get("q"))
		assert.Equal(t, "snippet", q.Get("part"))
		assert.Equal(t, "video", q.Get("type"))
		assert.Equal(t, "10", q.Get("videoCategoryId"))
		assert.Equal(t, "true", q.Get("videoEmbeddable"))
		assert.Equal(t, "true", q.Get("videoSyndicated"))
		assert.Equal(t, "relevance", q.Get("order"))
		assert.Equal(t, "2", q.Get("maxResults"))
		assert.Equal(t, "apikey", q.Get("key"))
		w.Write([]byte(apiSearchFixture))
	}))
	defer api.Close()

	a := newTestAdapter(api.URL, "apikey", &ext)
	results, err := a.Search(context.Background(), "believer", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "Believer", first.Title)
	assert.Equal(t, "Imagine Dragons", first.Artist)
	assert.Equal(t, "vid1", first.ExternalID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", first.URL)
	assert.Equal(t, "https://img.example/hq1.jpg", first.CoverURL)
	assert.Equal(t, 2017, first.Year)
	assert.Equal(t, model.QualityMedium, first.Quality)
	assert.Equal(t, "api", first.Metadata["origin"])

	assert.Zero(t, atomic.LoadInt32(&ext.searchCalls), "filled limit skips extraction")
}

func TestSearchExtractionTopUp(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
		  {"id":{"videoId":"vid1"},"snippet":{
		    "title":"Imagine Dragons - Believer","channelTitle":"x",
		    "thumbnails":{}}}
		]}`))
	}))
	defer api.Close()

	ext := fakeExtractor{
		searchFn: func(_ context.Context, query string, limit int) ([]ytdlpEntry, error) {
			assert.Equal(t, "believer audio", query)
			assert.Equal(t, 2, limit, "extraction asks only for the shortfall")
			return []ytdlpEntry{
				{ID: "vid2", Title: "Muse - Uprising", Uploader: "someone", Duration: 304, UploadDate: "20090907", ViewCount: 12345},
				{ID: "vid3", Title: "AC/DC - Thunderstruck", Uploader: "someone", Duration: 292},
			}, nil
		},
	}

	a := newTestAdapter(api.URL, "apikey", &ext)
	results, err := a.Search(context.Background(), "believer", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Believer", results[0].Title, "api tier results come first")
	assert.Equal(t, "Uprising", results[1].Title)
	assert.Equal(t, 304, results[1].Duration)
	assert.Equal(t, 2009, results[1].Year)
	assert.Equal(t, "12345", results[1].Metadata["view_count"])
	assert.Equal(t, "ytdlp", results[1].Metadata["origin"])
}

func TestSearchNoKeySkipsAPI(t *testing.T) {
	var apiHits int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiHits, 1)
	}))
	defer api.Close()

	ext := fakeExtractor{
		searchFn: func(context.Context, string, int) ([]ytdlpEntry, error) {
			return []ytdlpEntry{{ID: "vid1", Title: "Muse - Uprising", Duration: 304}}, nil
		},
	}

	a := newTestAdapter(api.URL, "", &ext)
	results, err := a.Search(context.Background(), "uprising", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Zero(t, atomic.LoadInt32(&apiHits))
}

func TestSearchDurationWindow(t *testing.T) {
	ext := fakeExtractor{
		searchFn: func(context.Context, string, int) ([]ytdlpEntry, error) {
			return []ytdlpEntry{
				{ID: "short", Title: "A - Sting", Duration: 20},
				{ID: "good", Title: "B - Song", Duration: 500},
				{ID: "long", Title: "C - Full Concert Set", Duration: 1200},
				{ID: "unknown", Title: "D - Mystery", Duration: 0},
			}, nil
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	results, err := a.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "good", results[0].ExternalID)
	assert.Equal(t, "unknown", results[1].ExternalID, "unknown duration passes the window")
}

func TestSearchDedupesAcrossTiers(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
		  {"id":{"videoId":"same"},"snippet":{
		    "title":"Muse - Uprising","channelTitle":"x","thumbnails":{}}}
		]}`))
	}))
	defer api.Close()

	ext := fakeExtractor{
		searchFn: func(context.Context, string, int) ([]ytdlpEntry, error) {
			return []ytdlpEntry{
				{ID: "same", Title: "Muse - Uprising (Live)", Duration: 300},
				{ID: "other", Title: "Muse - Uprising", Duration: 304},
			}, nil
		},
	}

	a := newTestAdapter(api.URL, "apikey", &ext)
	results, err := a.Search(context.Background(), "uprising", 5)
	require.NoError(t, err)
	require.Len(t, results, 1, "repeat id and repeat artist|title both collapse")
	assert.Equal(t, "same", results[0].ExternalID)
}

func TestSearchUnparseableTitlesDropped(t *testing.T) {
	ext := fakeExtractor{
		searchFn: func(context.Context, string, int) ([]ytdlpEntry, error) {
			return []ytdlpEntry{
				{ID: "vid1", Title: "lofi compilation", Uploader: "Chill Music Records", Duration: 300},
				{ID: "vid2", Title: "Muse - Uprising", Duration: 304},
			}, nil
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	results, err := a.Search(context.Background(), "x", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "vid2", results[0].ExternalID)
}

func TestSearchAllTiersFailed(t *testing.T) {
	ext := fakeExtractor{
		searchFn: func(context.Context, string, int) ([]ytdlpEntry, error) {
			return nil, errors.New("yt-dlp: exit status 1")
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	_, err := a.Search(context.Background(), "x", 5)
	require.Error(t, err)

	var se *source.Error
	require.True(t, errors.As(err, &se), "tier errors surface typed")
	assert.Equal(t, model.SourceYouTube, se.Source)
}

func TestSearchEmptyQuery(t *testing.T) {
	ext := fakeExtractor{}
	a := newTestAdapter("http://unused.invalid", "", &ext)
	results, err := a.Search(context.Background(), "   ", 5)
	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, atomic.LoadInt32(&ext.searchCalls))
}

func TestPopularChart(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/videos", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "mostPopular", q.Get("chart"))
		assert.Equal(t, "10", q.Get("videoCategoryId"))
		assert.Equal(t, "snippet,contentDetails", q.Get("part"))
		w.Write([]byte(`{"items":[
		  {"id":"vid1","snippet":{
		    "title":"Imagine Dragons - Believer","channelTitle":"x",
		    "publishedAt":"2017-03-07T14:00:00Z","thumbnails":{}},
		   "contentDetails":{"duration":"PT3M24S"}}
		]}`))
	}))
	defer api.Close()

	var ext fakeExtractor
	a := newTestAdapter(api.URL, "apikey", &ext)
	results, err := a.Popular(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Believer", results[0].Title)
	assert.Equal(t, 204, results[0].Duration)
	assert.Equal(t, "chart", results[0].Metadata["origin"])
	assert.Zero(t, atomic.LoadInt32(&ext.searchCalls))
}

func TestPopularWithoutKeyUsesExtraction(t *testing.T) {
	ext := fakeExtractor{
		searchFn: func(_ context.Context, query string, _ int) ([]ytdlpEntry, error) {
			return []ytdlpEntry{{ID: "id-" + query, Title: "A - " + query, Duration: 200}}, nil
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	results, err := a.Popular(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int32(len(trendingQueries)), atomic.LoadInt32(&ext.searchCalls))
	assert.Len(t, results, len(trendingQueries))
}

func TestResolveDownload(t *testing.T) {
	ext := fakeExtractor{
		videoInfoFn: func(_ context.Context, videoURL string) (*ytdlpInfo, error) {
			assert.Equal(t, "https://www.youtube.com/watch?v=vid1", videoURL)
			return &ytdlpInfo{
				ID: "vid1",
				Formats: []ytdlpFormat{
					{FormatID: "22", URL: "https://cdn/muxed", Ext: "mp4", ACodec: "mp4a.40.2", VCodec: "avc1", ABR: 192},
					{FormatID: "140", URL: "https://cdn/m4a", Ext: "m4a", ACodec: "mp4a.40.2", VCodec: "none", ABR: 128, ASR: 44100},
					{FormatID: "251", URL: "https://cdn/opus", Ext: "webm", ACodec: "opus", VCodec: "none", ABR: 160, ASR: 48000},
				},
			}, nil
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	res, err := a.ResolveDownload(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/opus", res.URL)
	assert.Equal(t, "webm", res.Format)
	assert.Equal(t, 160, res.Bitrate)
	assert.Equal(t, extractorUserAgent, res.Headers["User-Agent"])
	assert.Equal(t, "251", res.Metadata["format_id"])
	assert.Equal(t, "ytdlp", res.Metadata["origin"])

	require.NotNil(t, res.ExpiresAt)
	until := time.Until(*res.ExpiresAt)
	assert.Greater(t, until, resolutionTTL-time.Minute)
	assert.LessOrEqual(t, until, resolutionTTL)
}

func TestResolveDownloadDefaultsBitrate(t *testing.T) {
	ext := fakeExtractor{
		videoInfoFn: func(context.Context, string) (*ytdlpInfo, error) {
			return &ytdlpInfo{Formats: []ytdlpFormat{
				{FormatID: "0", URL: "https://cdn/a", Ext: "opus", ACodec: "opus", VCodec: "none", ASR: 48000},
			}}, nil
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	res, err := a.ResolveDownload(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, 128, res.Bitrate)
	assert.Equal(t, "mp3", res.Format, "unfamiliar container reported as mp3")
}

func TestResolveDownloadNoAudio(t *testing.T) {
	ext := fakeExtractor{
		videoInfoFn: func(context.Context, string) (*ytdlpInfo, error) {
			return &ytdlpInfo{Formats: []ytdlpFormat{
				{FormatID: "137", URL: "https://cdn/v", ACodec: "none", VCodec: "avc1"},
			}}, nil
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	_, err := a.ResolveDownload(context.Background(), "vid1")
	require.Error(t, err)
	assert.True(t, source.IsUnavailable(err))
}

func TestResolveDownloadExtractionFailure(t *testing.T) {
	ext := fakeExtractor{
		videoInfoFn: func(context.Context, string) (*ytdlpInfo, error) {
			return nil, fmt.Errorf("yt-dlp: exit status 1: Video unavailable")
		},
	}

	a := newTestAdapter("http://unused.invalid", "", &ext)
	_, err := a.ResolveDownload(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, source.IsUnavailable(err))
}

func TestResolveDownloadEmptyID(t *testing.T) {
	a := newTestAdapter("http://unused.invalid", "", &fakeExtractor{})
	_, err := a.ResolveDownload(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, source.IsNotFound(err))
}

func TestHealthCheck(t *testing.T) {
	ext := fakeExtractor{
		searchFn: func(context.Context, string, int) ([]ytdlpEntry, error) {
			return []ytdlpEntry{{ID: "vid1", Title: "A - B", Duration: 100}}, nil
		},
	}
	a := newTestAdapter("http://unused.invalid", "", &ext)
	status := a.HealthCheck(context.Background())
	assert.Equal(t, model.SourceYouTube, status.Source)
	assert.True(t, status.Healthy)
	assert.False(t, status.CheckedAt.IsZero())
}
