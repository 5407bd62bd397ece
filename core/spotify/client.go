package spotify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"TrackHound/core/request"
	"TrackHound/core/source"
	"TrackHound/model"
)

const (
	defaultAPIBase  = "https://api.spotify.com/v1"
	defaultAuthBase = "https://accounts.spotify.com/api/token"

	// The search endpoint caps limit at 50.
	maxPageSize = 50

	// Tokens are refreshed this long before their advertised expiry so
	// an in-flight call never crosses the boundary.
	tokenExpiryGuard = 60 * time.Second
)

type client struct {
	exec     *request.Executor
	apiBase  string
	authBase string
	id       string
	secret   string

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchResponse struct {
	Tracks struct {
		Items []track `json:"items"`
	} `json:"tracks"`
}

type track struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []artist          `json:"artists"`
	Album        album             `json:"album"`
	DurationMS   int               `json:"duration_ms"`
	Explicit     bool              `json:"explicit"`
	Popularity   int               `json:"popularity"`
	PreviewURL   string            `json:"preview_url"`
	ExternalURLs map[string]string `json:"external_urls"`
}

type artist struct {
	Name string `json:"name"`
}

type album struct {
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	Images      []image `json:"images"`
}

type image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type featuredResponse struct {
	Playlists struct {
		Items []playlistRef `json:"items"`
	} `json:"playlists"`
}

type playlistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type playlistTracksResponse struct {
	Items []struct {
		Track *track `json:"track"`
	} `json:"items"`
}

// authenticate runs the client-credentials flow, reusing the cached token
// until the guard window before expiry.
func (c *client) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}
	if c.id == "" || c.secret == "" {
		return "", source.E(model.SourceSpotify, "spotify:auth", source.KindAuthFailed,
			fmt.Errorf("client credentials not configured"))
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.id + ":" + c.secret))
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	resp, err := c.exec.PostForm(ctx, c.authBase, form,
		map[string]string{"Authorization": "Basic " + basic})
	if err != nil {
		switch source.StatusOf(err) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return "", source.E(model.SourceSpotify, "spotify:auth", source.KindAuthFailed, err)
		}
		return "", err
	}

	var tok tokenResponse
	if err := resp.JSON(&tok); err != nil {
		return "", source.E(model.SourceSpotify, "spotify:auth", source.KindUnknown, err)
	}
	if tok.AccessToken == "" {
		return "", source.E(model.SourceSpotify, "spotify:auth", source.KindAuthFailed,
			fmt.Errorf("token response carried no access_token"))
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}

	c.token = tok.AccessToken
	c.expires = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryGuard)
	return c.token, nil
}

// get runs an authenticated API call, re-authenticating once on a 401 in
// case the token was revoked early.
func (c *client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	resp, err := c.exec.Get(ctx, c.apiBase+path, params,
		map[string]string{"Authorization": "Bearer " + token})
	if err != nil && source.StatusOf(err) == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()

		token, err = c.authenticate(ctx)
		if err != nil {
			return err
		}
		resp, err = c.exec.Get(ctx, c.apiBase+path, params,
			map[string]string{"Authorization": "Bearer " + token})
	}
	if err != nil {
		return err
	}

	if err := resp.JSON(out); err != nil {
		return source.E(model.SourceSpotify, "spotify:"+path, source.KindUnknown, err)
	}
	return nil
}

func (c *client) searchTracks(ctx context.Context, query string, limit int) ([]track, error) {
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("market", "US")
	params.Set("limit", strconv.Itoa(limit))

	var page searchResponse
	if err := c.get(ctx, "/search", params, &page); err != nil {
		return nil, err
	}
	return page.Tracks.Items, nil
}

func (c *client) featuredPlaylists(ctx context.Context, limit int) ([]playlistRef, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var page featuredResponse
	if err := c.get(ctx, "/browse/featured-playlists", params, &page); err != nil {
		return nil, err
	}
	return page.Playlists.Items, nil
}

func (c *client) playlistTracks(ctx context.Context, playlistID string, limit int) ([]track, error) {
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("market", "US")
	params.Set("limit", strconv.Itoa(limit))

	var page playlistTracksResponse
	if err := c.get(ctx, "/playlists/"+playlistID+"/tracks", params, &page); err != nil {
		return nil, err
	}
	out := make([]track, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Track != nil {
			out = append(out, *item.Track)
		}
	}
	return out, nil
}
