package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"TrackHound/cache"
	"TrackHound/core/request"
	"TrackHound/logger"
	"TrackHound/model"
)

// presignExpiry bounds how long a handed-out archive URL stays valid.
const presignExpiry = 24 * time.Hour

// Archiver copies freshly resolved streams into the archive bucket and
// records a presigned URL in the track-info cache, so repeat downloads
// can be served without going back to the source.
type Archiver struct {
	store  ObjectStore
	http   *request.Executor
	tracks *cache.TrackCache
	log    *zap.Logger
}

// NewArchiver wires the background archival path. tracks may be nil; the
// archiver then still stores objects but never caches presigned URLs.
func NewArchiver(store ObjectStore, httpExec *request.Executor, tracks *cache.TrackCache) *Archiver {
	return &Archiver{
		store:  store,
		http:   httpExec,
		tracks: tracks,
		log:    logger.Named("archive"),
	}
}

// ObjectKey is where a track's archived copy lives inside the bucket.
func ObjectKey(src model.TrackSource, externalID, format string) string {
	if format == "" {
		format = "mp3"
	}
	id := strings.ReplaceAll(externalID, "/", "_")
	return fmt.Sprintf("%s/%s.%s", src, id, strings.ToLower(format))
}

// Archive fetches the resolved stream and uploads it, then caches a
// presigned URL for the track. A track that is already in the bucket only
// gets its URL refreshed.
func (a *Archiver) Archive(ctx context.Context, src model.TrackSource, externalID string, res *model.DownloadResolution) error {
	if res == nil || res.URL == "" {
		return nil
	}
	key := ObjectKey(src, externalID, res.Format)

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		resp, err := a.http.Get(ctx, res.URL, nil, res.Headers)
		if err != nil {
			return fmt.Errorf("failed to fetch stream for %s: %w", key, err)
		}
		if len(resp.Body) == 0 {
			return fmt.Errorf("empty stream body for %s", key)
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = contentTypeFor(res.Format)
		}
		if err := a.store.Put(ctx, key, bytes.NewReader(resp.Body), int64(len(resp.Body)), contentType); err != nil {
			return err
		}
		a.log.Info("archived track",
			logger.String("key", key),
			logger.Int("bytes", len(resp.Body)))
	}

	url, err := a.store.PresignedGet(ctx, key, presignExpiry)
	if err != nil {
		return err
	}
	if a.tracks != nil {
		info := &cache.ArchivedTrack{
			ObjectKey:  key,
			URL:        url,
			Format:     res.Format,
			ArchivedAt: time.Now(),
		}
		if err := a.tracks.SetArchived(ctx, src, externalID, info); err != nil {
			a.log.Warn("caching archived track failed",
				logger.String("key", key),
				logger.ErrorField(err))
		}
	}
	return nil
}

// Archived returns the cached presigned URL for a track, refreshing it
// from the bucket when the cache has expired but the object survives.
func (a *Archiver) Archived(ctx context.Context, src model.TrackSource, externalID string) (*cache.ArchivedTrack, bool) {
	if a.tracks != nil {
		if info, ok := a.tracks.GetArchived(ctx, src, externalID); ok {
			return info, true
		}
	}
	key := ObjectKey(src, externalID, "")
	exists, err := a.store.Exists(ctx, key)
	if err != nil || !exists {
		return nil, false
	}
	url, err := a.store.PresignedGet(ctx, key, presignExpiry)
	if err != nil {
		return nil, false
	}
	info := &cache.ArchivedTrack{ObjectKey: key, URL: url, Format: "mp3", ArchivedAt: time.Now()}
	if a.tracks != nil {
		if err := a.tracks.SetArchived(ctx, src, externalID, info); err != nil {
			a.log.Warn("caching archived track failed",
				logger.String("key", key),
				logger.ErrorField(err))
		}
	}
	return info, true
}

// Resolution adapts an archived copy into the shape resolve callers
// expect, so a track whose upstream has vanished can still be served.
// The URL expires presignExpiry after the archive entry was minted.
func (a *Archiver) Resolution(ctx context.Context, src model.TrackSource, externalID string) (*model.DownloadResolution, bool) {
	info, ok := a.Archived(ctx, src, externalID)
	if !ok {
		return nil, false
	}
	expiresAt := info.ArchivedAt.Add(presignExpiry)
	return &model.DownloadResolution{
		URL:       info.URL,
		ExpiresAt: &expiresAt,
		Format:    info.Format,
	}, true
}

// Remove drops a track's archived copy along with its cache entry. The
// object key is recovered from the cache when possible so non-default
// formats are removed correctly.
func (a *Archiver) Remove(ctx context.Context, src model.TrackSource, externalID string) error {
	var key string
	if a.tracks != nil {
		if info, ok := a.tracks.GetArchived(ctx, src, externalID); ok {
			key = info.ObjectKey
		}
	}
	if key == "" {
		key = ObjectKey(src, externalID, "")
	}
	if err := a.store.Remove(ctx, key); err != nil {
		return err
	}
	if a.tracks != nil {
		if err := a.tracks.DeleteArchived(ctx, src, externalID); err != nil {
			a.log.Warn("dropping archived track entry failed",
				logger.String("key", key),
				logger.ErrorField(err))
		}
	}
	return nil
}

func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "", "mp3":
		return "audio/mpeg"
	case "m4a", "aac":
		return "audio/mp4"
	case "ogg", "opus":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
