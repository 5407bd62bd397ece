package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// extractorUserAgent is also attached to resolved stream URLs: the CDN
// expects the same identity that extracted them.
const extractorUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// extractor is the local extraction engine behind the API tier. Implemented
// by ytdlpExtractor; tests substitute a fake.
type extractor interface {
	search(ctx context.Context, query string, limit int) ([]ytdlpEntry, error)
	videoInfo(ctx context.Context, videoURL string) (*ytdlpInfo, error)
}

type ytdlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	UploadDate string  `json:"upload_date"`
	ViewCount  int64   `json:"view_count"`
}

type ytdlpInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Uploader string        `json:"uploader"`
	Duration float64       `json:"duration"`
	Formats  []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	Ext      string  `json:"ext"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
	ASR      float64 `json:"asr"`
	FileSize int64   `json:"filesize"`
}

type searchDump struct {
	Entries []ytdlpEntry `json:"entries"`
}

// ytdlpExtractor shells out to the yt-dlp binary and reads its JSON dumps.
type ytdlpExtractor struct {
	path    string
	timeout time.Duration
}

func newExtractor(path string, timeout time.Duration) *ytdlpExtractor {
	if path == "" {
		path = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ytdlpExtractor{path: path, timeout: timeout}
}

func (x *ytdlpExtractor) baseArgs() []string {
	return []string{
		"--quiet",
		"--no-warnings",
		"--no-color",
		"--no-playlist",
		"--user-agent", extractorUserAgent,
	}
}

// search runs a flat ytsearch dump: metadata only, no format extraction.
func (x *ytdlpExtractor) search(ctx context.Context, query string, limit int) ([]ytdlpEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	args := append(x.baseArgs(),
		"--flat-playlist",
		"--dump-single-json",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	)

	out, err := x.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var dump searchDump
	if err := json.Unmarshal(out, &dump); err != nil {
		return nil, fmt.Errorf("decode search dump: %w", err)
	}
	return dump.Entries, nil
}

// videoInfo dumps full metadata for one video, formats included.
func (x *ytdlpExtractor) videoInfo(ctx context.Context, videoURL string) (*ytdlpInfo, error) {
	args := append(x.baseArgs(), "--dump-single-json", videoURL)

	out, err := x.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decode video dump: %w", err)
	}
	return &info, nil
}

func (x *ytdlpExtractor) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[:300]
		}
		if msg != "" {
			return nil, fmt.Errorf("yt-dlp: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return stdout.Bytes(), nil
}

// bestAudioFormat picks the richest audio-only format, scored by bitrate
// plus sample rate. Falls back to the first format with any audio track.
func bestAudioFormat(formats []ytdlpFormat) *ytdlpFormat {
	var best *ytdlpFormat
	bestScore := 0.0

	for i := range formats {
		f := &formats[i]
		if f.ACodec == "none" || f.VCodec != "none" {
			continue
		}
		score := f.ABR + f.ASR/1000
		if score > bestScore {
			bestScore = score
			best = f
		}
	}
	if best != nil {
		return best
	}

	for i := range formats {
		if formats[i].ACodec != "" && formats[i].ACodec != "none" {
			return &formats[i]
		}
	}
	return nil
}
