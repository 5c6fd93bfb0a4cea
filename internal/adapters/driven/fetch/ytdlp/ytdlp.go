// Package ytdlp fetches YouTube metadata and audio by running the yt-dlp tool.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/logger"
)

// Ensure Client implements the interfaces.
var (
	_ driven.VideoDownloader = (*Client)(nil)
	_ driven.VideoCatalog    = (*Client)(nil)
)

// DefaultBinary is looked up on PATH.
const DefaultBinary = "yt-dlp"

// ErrNotInstalled is returned when the yt-dlp binary cannot be found.
var ErrNotInstalled = errors.New("yt-dlp is not installed or not found in PATH")

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Client wraps the yt-dlp command line.
type Client struct {
	binary string
	run    Runner
}

// Option configures the client.
type Option func(*Client)

// WithBinary sets the yt-dlp executable path.
func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithRunner replaces command execution, for tests.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.run = r
	}
}

// New creates a yt-dlp client.
func New(opts ...Option) *Client {
	c := &Client{binary: DefaultBinary, run: execRunner}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// videoJSON is the subset of yt-dlp's --dump-json output we read.
type videoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	WebpageURL  string  `json:"webpage_url"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Channel     string  `json:"channel"`
	Uploader    string  `json:"uploader"`
	ChannelURL  string  `json:"channel_url"`
	UploaderURL string  `json:"uploader_url"`
	UploadDate  string  `json:"upload_date"`
}

func (v videoJSON) info() driven.VideoInfo {
	info := driven.VideoInfo{
		ID:          v.ID,
		Title:       v.Title,
		URL:         domain.VideoURL(v.ID),
		Description: v.Description,
		Duration:    v.Duration,
		ChannelName: v.Channel,
		ChannelURL:  v.ChannelURL,
		UploadDate:  v.UploadDate,
	}
	if info.ChannelName == "" {
		info.ChannelName = v.Uploader
	}
	if info.ChannelURL == "" {
		info.ChannelURL = v.UploaderURL
	}
	if info.Title == "" {
		info.Title = "Unknown"
	}
	return info
}

// Info returns metadata for one video without downloading it.
func (c *Client) Info(ctx context.Context, url string) (*driven.VideoInfo, error) {
	out, err := c.run(ctx, c.binary, "--dump-json", "--no-download", "--no-playlist", url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp info %s: %w", url, err)
	}
	var v videoJSON
	if err := json.Unmarshal(out, &v); err != nil {
		return nil, fmt.Errorf("yt-dlp info %s: parse output: %w", url, err)
	}
	info := v.info()
	return &info, nil
}

// DownloadAudio extracts mono 16kHz low-bitrate mp3 audio into dir.
// The small format keeps an hour of speech under the transcription upload limit.
func (c *Client) DownloadAudio(ctx context.Context, url, dir string) (string, error) {
	template := filepath.Join(dir, "%(id)s.%(ext)s")
	_, err := c.run(ctx, c.binary,
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "9",
		"--postprocessor-args", "ffmpeg:-ac 1 -ar 16000",
		"--no-playlist",
		"-o", template,
		url,
	)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download %s: %w", url, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.mp3"))
	if err != nil {
		return "", fmt.Errorf("find audio: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp download %s: audio file not found after download", url)
	}
	return matches[0], nil
}

// Search returns up to limit videos for query using ytsearch.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]driven.VideoInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := c.run(ctx, c.binary, "--dump-json", "--flat-playlist", "--no-download",
		fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	return parseLines(out), nil
}

// ListChannel returns the channel's most recent uploads.
func (c *Client) ListChannel(ctx context.Context, channelURL string, limit int) ([]driven.VideoInfo, error) {
	args := []string{"--dump-json", "--flat-playlist", "--no-download"}
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	args = append(args, uploadsURL(channelURL))

	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp list channel %s: %w", channelURL, err)
	}
	return parseLines(out), nil
}

// uploadsURL points a bare channel URL at its Videos tab so yt-dlp lists uploads
// rather than the channel's tabs.
func uploadsURL(channelURL string) string {
	u := strings.TrimRight(channelURL, "/")
	for _, tab := range []string{"/videos", "/streams", "/shorts", "/playlists"} {
		if strings.HasSuffix(u, tab) {
			return u
		}
	}
	return u + "/videos"
}

// parseLines reads one JSON object per line, skipping malformed lines.
func parseLines(out []byte) []driven.VideoInfo {
	var videos []driven.VideoInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var v videoJSON
		if err := json.Unmarshal(line, &v); err != nil || v.ID == "" {
			logger.Warn("yt-dlp: skipping malformed line: %v", err)
			continue
		}
		videos = append(videos, v.info())
	}
	return videos
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	logger.Debug("exec %s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotInstalled
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return nil, err
	}
	return out, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
