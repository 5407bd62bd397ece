package vkaudio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"TrackHound/core/request"
	"TrackHound/core/source"
	"TrackHound/model"
)

const (
	apiVersion = "5.131"
	webBase    = "https://vk.com"
	mobileBase = "https://m.vk.com"

	// VK caps audio.search at 300 items per call.
	maxAPICount = 300
)

// browser headers for the scraping fallback; VK serves stripped pages to
// unidentified clients.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "ru-RU,ru;q=0.9,en;q=0.8",
}

type client struct {
	exec       *request.Executor
	apiBase    string
	webBase    string
	mobileBase string
	token      string
}

type apiEnvelope struct {
	Error    *apiError       `json:"error"`
	Response json.RawMessage `json:"response"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

type audioItem struct {
	ID         int64       `json:"id"`
	OwnerID    int64       `json:"owner_id"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Duration   int         `json:"duration"`
	URL        string      `json:"url"`
	Date       int64       `json:"date"`
	GenreID    int         `json:"genre_id"`
	IsExplicit bool        `json:"is_explicit"`
	Album      *audioAlbum `json:"album"`
}

type audioAlbum struct {
	Title string      `json:"title"`
	Thumb *albumThumb `json:"thumb"`
}

type albumThumb struct {
	Photo600 string `json:"photo_600"`
}

type searchPage struct {
	Count int         `json:"count"`
	Items []audioItem `json:"items"`
}

// call runs one VK API method and unwraps its envelope. VK reports errors
// with HTTP 200, so the envelope is inspected here.
func (c *client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	op := "vk:" + method

	params.Set("access_token", c.token)
	params.Set("v", apiVersion)

	resp, err := c.exec.Get(ctx, c.apiBase+"/"+method, params, nil)
	if err != nil {
		return nil, err
	}

	var envelope apiEnvelope
	if err := resp.JSON(&envelope); err != nil {
		return nil, source.E(model.SourceVKAudio, op, source.KindUnknown, err)
	}

	if envelope.Error != nil {
		apiErr := fmt.Errorf("vk api error %d: %s", envelope.Error.Code, envelope.Error.Message)
		switch envelope.Error.Code {
		case 5: // user authorization failed
			return nil, source.E(model.SourceVKAudio, op, source.KindAuthFailed, apiErr)
		case 6: // too many requests per second
			return nil, source.E(model.SourceVKAudio, op, source.KindRateLimited, apiErr)
		default:
			return nil, source.E(model.SourceVKAudio, op, source.KindUnknown, apiErr)
		}
	}
	return envelope.Response, nil
}

// searchAudio runs audio.search sorted by popularity.
func (c *client) searchAudio(ctx context.Context, query string, limit int) ([]audioItem, error) {
	if limit > maxAPICount {
		limit = maxAPICount
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	params.Set("sort", "2")
	params.Set("search_own", "0")
	params.Set("offset", "0")

	raw, err := c.call(ctx, "audio.search", params)
	if err != nil {
		return nil, err
	}

	var page searchPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, source.E(model.SourceVKAudio, "vk:audio.search", source.KindUnknown, err)
	}
	return page.Items, nil
}

// audioByID fetches one track via audio.getById.
func (c *client) audioByID(ctx context.Context, ownerID, audioID string) (*audioItem, error) {
	params := url.Values{}
	params.Set("audios", ownerID+"_"+audioID)
	params.Set("extended", "1")

	raw, err := c.call(ctx, "audio.getById", params)
	if err != nil {
		return nil, err
	}

	var items []audioItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, source.E(model.SourceVKAudio, "vk:audio.getById", source.KindUnknown, err)
	}
	if len(items) == 0 {
		return nil, source.E(model.SourceVKAudio, "vk:audio.getById", source.KindNotFound,
			fmt.Errorf("track not found: %s_%s", ownerID, audioID))
	}
	return &items[0], nil
}

// fetchTrackPage pulls the public track page HTML for the scrape fallback.
func (c *client) fetchTrackPage(ctx context.Context, externalID string) (string, error) {
	resp, err := c.exec.Get(ctx, c.webBase+"/audio"+externalID, nil, browserHeaders)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// fetchMobileSearch pulls the m.vk.com audio search page, which is served
// without authentication. The mobile markup is far easier to parse than the
// desktop SPA.
func (c *client) fetchMobileSearch(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("c[section]", "search")
	params.Set("c[q]", query)

	headers := make(map[string]string, len(browserHeaders))
	for k, v := range browserHeaders {
		headers[k] = v
	}
	headers["User-Agent"] = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"

	resp, err := c.exec.Get(ctx, c.mobileBase+"/audio", params, headers)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// genreNames maps VK genre ids to display names.
var genreNames = map[int]string{
	1: "Rock", 2: "Pop", 3: "Rap & Hip-Hop", 4: "Easy Listening",
	5: "Dance & House", 6: "Instrumental", 7: "Metal", 8: "Dubstep",
	9: "Jazz & Blues", 10: "Drum & Bass", 11: "Trance", 12: "Chanson",
	13: "Ethnic", 14: "Acoustic & Vocal", 15: "Reggae", 16: "Classical",
	17: "Indie Pop", 18: "Other", 19: "Speech", 20: "Alternative",
	21: "Electropop & Disco", 22: "Folk",
}

func genreName(id int) string {
	return genreNames[id]
}
