// Package audio acquires audio-only media for a video into a scratch
// directory. Every acquired file is owned by an Artifact whose Release
// removes it.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/logging"
	"github.com/Taichi-iskw/ytscribe/internal/service/common"
	"github.com/Taichi-iskw/ytscribe/internal/service/youtube"
)

// Downloader defines operations for downloading audio from videos
type Downloader interface {
	// Download fetches the best audio-only stream for the video
	Download(ctx context.Context, videoID, videoURL string) (*Artifact, error)
}

// Artifact is a downloaded audio file in the scratch directory
type Artifact struct {
	VideoID string
	Path    string

	once sync.Once
	err  error
}

// Release removes the file. It is safe to call more than once.
func (a *Artifact) Release() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			a.err = err
		}
	})
	return a.err
}

// ytDlpDownloader implements Downloader using yt-dlp
type ytDlpDownloader struct {
	cmdRunner  common.CmdRunner
	ytDlpPath  string
	scratchDir string
	now        func() time.Time
	logger     logrus.FieldLogger
}

// NewDownloader creates a new Downloader
func NewDownloader(cmdRunner common.CmdRunner, cfg config.AudioConfig, logger logrus.FieldLogger) Downloader {
	if cmdRunner == nil {
		cmdRunner = common.NewCmdRunner()
	}
	ytDlpPath := cfg.YtDlpPath
	if ytDlpPath == "" {
		ytDlpPath = "yt-dlp"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = "temp"
	}
	return &ytDlpDownloader{
		cmdRunner:  cmdRunner,
		ytDlpPath:  ytDlpPath,
		scratchDir: scratchDir,
		now:        time.Now,
		logger:     logger,
	}
}

// Download writes {scratchDir}/{videoId}-{timestamp}.<ext>. On failure any
// partial output is removed before returning.
func (d *ytDlpDownloader) Download(ctx context.Context, videoID, videoURL string) (*Artifact, error) {
	if !youtube.IsVideoID(videoID) {
		return nil, errors.New(errors.CodeInvalidArg, "invalid video ID")
	}
	if videoURL == "" {
		videoURL = youtube.WatchURL(videoID)
	}

	if err := os.MkdirAll(d.scratchDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create scratch directory")
	}

	base := fmt.Sprintf("%s-%d", videoID, d.now().UnixNano())
	args := []string{
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-progress",
		"--quiet",
		"-o", filepath.Join(d.scratchDir, base+".%(ext)s"),
		videoURL,
	}

	start := time.Now()
	if _, err := d.cmdRunner.Run(ctx, d.ytDlpPath, args...); err != nil {
		d.removeMatching(base)
		return nil, errors.Wrap(err, errors.CodeExternal, formatYtDlpError(err, videoID))
	}

	path, err := d.findDownloaded(base)
	if err != nil {
		d.removeMatching(base)
		return nil, err
	}

	d.logger.WithFields(logrus.Fields{
		"video_id": videoID,
		"path":     path,
		"duration": time.Since(start).String(),
	}).Debug("audio downloaded")

	return &Artifact{VideoID: videoID, Path: path}, nil
}

func (d *ytDlpDownloader) findDownloaded(base string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.scratchDir, base+".*"))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to scan scratch directory")
	}

	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Size() == 0 {
			return "", errors.New(errors.CodeExternal, "downloaded audio file is empty")
		}
		return m, nil
	}

	return "", errors.New(errors.CodeExternal, "yt-dlp finished without producing an audio file")
}

func (d *ytDlpDownloader) removeMatching(base string) {
	matches, _ := filepath.Glob(filepath.Join(d.scratchDir, base+".*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			d.logger.WithError(err).WithField("path", m).Warn("failed to remove partial download")
		}
	}
}

func isPartial(path string) bool {
	for _, suffix := range []string{".part", ".ytdl", ".temp"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// formatYtDlpError provides user-friendly error messages for yt-dlp failures
func formatYtDlpError(err error, videoID string) string {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "executable file not found") ||
		(strings.Contains(errMsg, "No such file or directory") && strings.Contains(errMsg, "yt-dlp")):
		return "yt-dlp is not installed or not found in PATH. Please install yt-dlp"
	case strings.Contains(errMsg, "Sign in to confirm your age") || strings.Contains(errMsg, "age-restricted"):
		return "video is age-restricted and cannot be downloaded"
	case strings.Contains(errMsg, "available in your country") || strings.Contains(errMsg, "geo restriction"):
		return "video is not available in this region"
	case strings.Contains(errMsg, "consent"):
		return "video requires consent confirmation and cannot be downloaded"
	case strings.Contains(errMsg, "Private video"):
		return "video is private and cannot be downloaded"
	case strings.Contains(errMsg, "Video unavailable") || strings.Contains(errMsg, "This video is not available"):
		return "video is not available (may be private, deleted, or region-blocked)"
	case strings.Contains(errMsg, "Requested format is not available"):
		return "no audio stream is available for this video"
	case strings.Contains(errMsg, "HTTP Error 429"):
		return "rate limited by YouTube - please try again later"
	case strings.Contains(errMsg, "HTTP Error 403"):
		return "access denied - video may be region-blocked or require login"
	case strings.Contains(errMsg, "context deadline exceeded"):
		return "audio download timed out"
	case strings.Contains(errMsg, "Unable to download") || strings.Contains(errMsg, "network"):
		return "network error while downloading audio"
	default:
		return fmt.Sprintf("failed to download audio for video '%s'", videoID)
	}
}
