package vkaudio

import (
	"context"
	"net/http"
	"strings"

	"TrackHound/core/request"
	"TrackHound/core/source"
	"TrackHound/logger"
)

var audioExtensions = []string{".mp3", ".m4a", ".ogg", ".wav", ".flac"}

type prober struct {
	exec *request.Executor
}

// validate probes a decoded candidate before it is handed out. A HEAD that
// answers 200 with an audio content type passes; 405 falls back to a ranged
// GET. Transport failures count as valid because VK CDNs drop probe
// requests from clients they have not seen while still serving the real
// download.
func (p *prober) validate(ctx context.Context, rawURL string) bool {
	if !strings.HasPrefix(rawURL, "http") {
		return false
	}
	lower := strings.ToLower(rawURL)
	known := false
	for _, ext := range audioExtensions {
		if strings.Contains(lower, ext) {
			known = true
			break
		}
	}
	if !known {
		return false
	}

	resp, err := p.exec.Do(ctx, &request.Request{Method: http.MethodHead, URL: rawURL})
	if err != nil {
		if source.StatusOf(err) == http.StatusMethodNotAllowed {
			return p.validateRanged(ctx, rawURL)
		}
		if source.StatusOf(err) == 0 {
			logger.Debug("stream probe failed in transport, assuming valid",
				logger.String("url", rawURL),
				logger.ErrorField(err))
			return true
		}
		return false
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.Contains(contentType, "audio/") ||
		strings.Contains(contentType, "application/octet-stream")
}

// validateRanged fetches the first KB when the CDN rejects HEAD.
func (p *prober) validateRanged(ctx context.Context, rawURL string) bool {
	resp, err := p.exec.Do(ctx, &request.Request{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: map[string]string{"Range": "bytes=0-1023"},
	})
	if err != nil {
		return source.StatusOf(err) == 0
	}
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent
}
