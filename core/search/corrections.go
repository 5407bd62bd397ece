package search

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"TrackHound/logger"
)

// builtinCorrections fixes transliterated artist names and common
// misspellings that upstream catalogs will never match as-is.
var builtinCorrections = map[string]string{
	"беливер":         "believer",
	"имаджин драгонс": "imagine dragons",
	"тейлор свифт":    "taylor swift",
	"ед ширан":        "ed sheeran",
	"линкин парк":     "linkin park",
	"колдплей":        "coldplay",
	"рианна":          "rihanna",
	"эминем":          "eminem",
}

// Corrections rewrites misspelled queries before they reach the
// aggregator. The built-in table is merged with an optional JSON file
// of {"mistake": "correction"} pairs; the file wins on conflicts and
// is reloaded whenever it changes on disk.
type Corrections struct {
	mu      sync.RWMutex
	entries map[string]string

	path    string
	watcher *fsnotify.Watcher
	log     *zap.Logger
}

// NewCorrections builds the merged table. An empty path means
// built-ins only, with no watcher.
func NewCorrections(path string) *Corrections {
	c := &Corrections{
		path: path,
		log:  logger.Named("corrections"),
	}
	c.reload()
	if path != "" {
		c.watch()
	}
	return c
}

func (c *Corrections) reload() {
	merged := make(map[string]string, len(builtinCorrections))
	for mistake, fix := range builtinCorrections {
		merged[mistake] = fix
	}
	if c.path != "" {
		data, err := os.ReadFile(c.path)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine, built-ins still apply.
		case err != nil:
			c.log.Warn("reading corrections file failed",
				logger.String("path", c.path), logger.ErrorField(err))
		default:
			var fromFile map[string]string
			if err := json.Unmarshal(data, &fromFile); err != nil {
				c.log.Warn("corrections file is not valid JSON",
					logger.String("path", c.path), logger.ErrorField(err))
				break
			}
			for mistake, fix := range fromFile {
				merged[strings.ToLower(strings.TrimSpace(mistake))] = strings.ToLower(strings.TrimSpace(fix))
			}
		}
	}

	c.mu.Lock()
	c.entries = merged
	c.mu.Unlock()
}

// watch reloads the table when the file changes. The watch sits on the
// directory because editors replace files on save, which kills a watch
// on the file itself.
func (c *Corrections) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Warn("corrections watcher unavailable", logger.ErrorField(err))
		return
	}
	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		c.log.Warn("watching corrections directory failed",
			logger.String("dir", dir), logger.ErrorField(err))
		watcher.Close()
		return
	}
	c.watcher = watcher

	target := filepath.Clean(c.path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					c.reload()
					c.log.Info("corrections reloaded", logger.String("path", c.path))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Warn("corrections watcher error", logger.ErrorField(err))
			}
		}
	}()
}

// Apply rewrites every known mistake inside the query. It reports
// whether anything changed; the corrected query comes back lower-cased.
func (c *Corrections) Apply(query string) (string, bool) {
	corrected := strings.ToLower(query)

	c.mu.RLock()
	defer c.mu.RUnlock()
	changed := false
	for mistake, fix := range c.entries {
		if strings.Contains(corrected, mistake) {
			corrected = strings.ReplaceAll(corrected, mistake, fix)
			changed = true
		}
	}
	if !changed {
		return "", false
	}
	return corrected, true
}

// MatchPrefix returns corrections whose mistake or fix starts with the
// prefix, for blending into suggestions. Results are sorted and capped.
func (c *Corrections) MatchPrefix(prefix string, limit int) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil
	}

	c.mu.RLock()
	seen := make(map[string]struct{})
	for mistake, fix := range c.entries {
		if strings.HasPrefix(mistake, prefix) || strings.HasPrefix(fix, prefix) {
			seen[fix] = struct{}{}
		}
	}
	c.mu.RUnlock()

	if len(seen) == 0 {
		return nil
	}
	matches := make([]string, 0, len(seen))
	for fix := range seen {
		matches = append(matches, fix)
	}
	sort.Strings(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Len reports the size of the merged table.
func (c *Corrections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the file watcher if one is running.
func (c *Corrections) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
