package youtube

import (
	"context"
	"net/url"
	"strconv"

	"TrackHound/core/request"
	"TrackHound/core/source"
	"TrackHound/model"
)

const (
	defaultAPIBase = "https://www.googleapis.com/youtube/v3"
	watchBase      = "https://www.youtube.com"

	// Data API caps maxResults at 50 per page.
	maxPageSize = 50
)

type client struct {
	exec    *request.Executor
	apiBase string
	key     string
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet snippet `json:"snippet"`
}

type snippet struct {
	Title        string     `json:"title"`
	ChannelTitle string     `json:"channelTitle"`
	PublishedAt  string     `json:"publishedAt"`
	Thumbnails   thumbnails `json:"thumbnails"`
}

type thumbnails struct {
	Default *thumbnail `json:"default"`
	Medium  *thumbnail `json:"medium"`
	High    *thumbnail `json:"high"`
}

type thumbnail struct {
	URL string `json:"url"`
}

// best returns the largest available thumbnail.
func (t thumbnails) best() string {
	switch {
	case t.High != nil:
		return t.High.URL
	case t.Medium != nil:
		return t.Medium.URL
	case t.Default != nil:
		return t.Default.URL
	default:
		return ""
	}
}

type videosResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID             string  `json:"id"`
	Snippet        snippet `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

// searchVideos queries the Data API search endpoint, restricted to
// embeddable syndicated videos in the music category.
func (c *client) searchVideos(ctx context.Context, query string, limit int) ([]searchItem, error) {
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("videoEmbeddable", "true")
	params.Set("videoSyndicated", "true")
	params.Set("videoCategoryId", "10")
	params.Set("order", "relevance")
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("key", c.key)

	resp, err := c.exec.Get(ctx, c.apiBase+"/search", params, nil)
	if err != nil {
		return nil, err
	}
	var page searchResponse
	if err := resp.JSON(&page); err != nil {
		return nil, source.E(model.SourceYouTube, "youtube:search", source.KindUnknown, err)
	}
	return page.Items, nil
}

// popularVideos pulls the music-category chart.
func (c *client) popularVideos(ctx context.Context, limit int) ([]videoItem, error) {
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("chart", "mostPopular")
	params.Set("videoCategoryId", "10")
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("key", c.key)

	resp, err := c.exec.Get(ctx, c.apiBase+"/videos", params, nil)
	if err != nil {
		return nil, err
	}
	var page videosResponse
	if err := resp.JSON(&page); err != nil {
		return nil, source.E(model.SourceYouTube, "youtube:videos", source.KindUnknown, err)
	}
	return page.Items, nil
}
