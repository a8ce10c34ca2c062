package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/service/common"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// MetadataFetcher looks up display metadata for a video
type MetadataFetcher interface {
	FetchTitle(ctx context.Context, videoID string) (string, error)
}

// metadataFetcher reads the watch page first and falls back to yt-dlp
type metadataFetcher struct {
	client    *http.Client
	watchBase string
	cmdRunner common.CmdRunner
	ytDlpPath string
}

// NewMetadataFetcher creates a MetadataFetcher. cmdRunner may be nil to
// disable the yt-dlp fallback.
func NewMetadataFetcher(client *http.Client, cmdRunner common.CmdRunner, ytDlpPath string) MetadataFetcher {
	return NewMetadataFetcherWithBase(client, "https://www.youtube.com/watch?v=", cmdRunner, ytDlpPath)
}

// NewMetadataFetcherWithBase creates a MetadataFetcher with a custom watch page base URL (for testing)
func NewMetadataFetcherWithBase(client *http.Client, watchBase string, cmdRunner common.CmdRunner, ytDlpPath string) MetadataFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if ytDlpPath == "" {
		ytDlpPath = "yt-dlp"
	}
	return &metadataFetcher{
		client:    client,
		watchBase: watchBase,
		cmdRunner: cmdRunner,
		ytDlpPath: ytDlpPath,
	}
}

// ytDlpVideoInfo represents the yt-dlp JSON fields used here
type ytDlpVideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// FetchTitle returns the video title
func (f *metadataFetcher) FetchTitle(ctx context.Context, videoID string) (string, error) {
	if !IsVideoID(videoID) {
		return "", errors.New(errors.CodeInvalidArg, "invalid video ID")
	}

	title, pageErr := f.titleFromWatchPage(ctx, videoID)
	if pageErr == nil {
		return title, nil
	}
	if f.cmdRunner == nil {
		return "", pageErr
	}

	title, err := f.titleFromYtDlp(ctx, videoID)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExternal, "failed to fetch video title")
	}
	return title, nil
}

func (f *metadataFetcher) titleFromWatchPage(ctx context.Context, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.watchBase+videoID, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to build watch page request")
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExternal, "watch page request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.CodeExternal, fmt.Sprintf("watch page returned status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxTrackBytes))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExternal, "failed to parse watch page")
	}

	candidates := []string{
		doc.Find(`meta[name="title"]`).AttrOr("content", ""),
		doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
		strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), " - YouTube"),
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" && c != "YouTube" {
			return c, nil
		}
	}

	return "", errors.New(errors.CodeNotFound, "watch page has no title")
}

func (f *metadataFetcher) titleFromYtDlp(ctx context.Context, videoID string) (string, error) {
	output, err := f.cmdRunner.Run(ctx, f.ytDlpPath, "--dump-json", "--skip-download", "--no-playlist", WatchURL(videoID))
	if err != nil {
		return "", err
	}

	var info ytDlpVideoInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return "", fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	if strings.TrimSpace(info.Title) == "" {
		return "", fmt.Errorf("yt-dlp returned no title")
	}
	return strings.TrimSpace(info.Title), nil
}

// DefaultTitle is used when no title could be fetched
func DefaultTitle(videoID string) string {
	return "YouTube Video " + videoID
}
