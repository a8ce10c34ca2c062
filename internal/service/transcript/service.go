// Package transcript orchestrates transcript acquisition: cache lookup, then
// caption scraping, then audio download and speech recognition, persisting
// the first usable result once per video.
package transcript

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/logging"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	transcriptrepo "github.com/Taichi-iskw/ytscribe/internal/repository/transcript"
	"github.com/Taichi-iskw/ytscribe/internal/service/audio"
	"github.com/Taichi-iskw/ytscribe/internal/service/normalize"
	"github.com/Taichi-iskw/ytscribe/internal/service/speech"
	"github.com/Taichi-iskw/ytscribe/internal/service/youtube"
	"github.com/Taichi-iskw/ytscribe/internal/storage"
)

// Messages returned alongside successful results
const (
	MessageCreated  = "Transcript created successfully"
	MessageCached   = "Transcript retrieved from cache"
	MessageNoSpeech = "no speech detected"
	MessageDryRun   = "Transcript generated (dry run, not saved)"
)

const (
	defaultWorkers        = 2
	defaultMaxQueue       = 16
	defaultCaptionTimeout = 20 * time.Second
	defaultRunTimeout     = 30 * time.Minute
)

// ErrSpeechDisabled is returned when captions are unavailable and no speech
// provider is configured
var ErrSpeechDisabled = errors.New(errors.CodeDependency,
	"no captions available and speech transcription is not configured")

// ErrNoStore is returned by a service built without a Repository for any
// request that needs the store
var ErrNoStore = errors.New(errors.CodeDependency, "transcript store is not configured")

// ErrInvalidInput is returned when no video ID can be extracted from the input
var ErrInvalidInput = errors.New(errors.CodeInvalidArg, "could not extract a YouTube video ID from the input")

// Service defines operations for transcript acquisition
type Service interface {
	// CreateTranscript resolves the input to a video and returns its transcript,
	// producing and storing one if none exists yet
	CreateTranscript(ctx context.Context, input Input) (*Result, error)

	// GetTranscript retrieves a stored transcript by ID
	GetTranscript(ctx context.Context, id string) (*model.Transcript, error)
}

// Input is a transcript request
type Input struct {
	URL string
	// DryRun skips the cache and never persists
	DryRun bool
}

// Result is the outcome of CreateTranscript. Transcript.ID is empty when
// nothing was stored.
type Result struct {
	Transcript *model.Transcript
	VideoID    string
	Source     model.Source
	Message    string
}

// Dependencies are the collaborators of the service. Transcriber may be nil,
// which disables the audio tier. Metadata and Archiver are optional.
type Dependencies struct {
	Repository  transcriptrepo.Repository
	Captions    youtube.CaptionScraper
	Metadata    youtube.MetadataFetcher
	Downloader  audio.Downloader
	Transcriber speech.Transcriber
	Archiver    storage.Archiver
	Logger      logrus.FieldLogger
}

// Options bounds the work done by the service
type Options struct {
	// Workers is the number of concurrent download+transcribe runs
	Workers int
	// MaxQueue is how many callers may wait for a worker
	MaxQueue       int
	CaptionTimeout time.Duration
	// RunTimeout bounds one shared run. Runs are detached from the callers
	// that joined them, so this is the only deadline they observe.
	RunTimeout time.Duration
}

// service implements Service
type service struct {
	repo        transcriptrepo.Repository
	captions    youtube.CaptionScraper
	metadata    youtube.MetadataFetcher
	downloader  audio.Downloader
	transcriber speech.Transcriber
	archiver    storage.Archiver
	logger      logrus.FieldLogger

	group          singleflight.Group
	heavy          *semaphore.Weighted
	inHeavy        atomic.Int64
	heavyLimit     int64
	captionTimeout time.Duration
	runTimeout     time.Duration
	now            func() time.Time
}

// NewService creates a new Service
func NewService(deps Dependencies, opts Options) Service {
	if opts.Workers < 1 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxQueue < 0 {
		opts.MaxQueue = defaultMaxQueue
	}
	if opts.CaptionTimeout <= 0 {
		opts.CaptionTimeout = defaultCaptionTimeout
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	if deps.Archiver == nil {
		deps.Archiver = storage.NopArchiver()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	return &service{
		repo:           deps.Repository,
		captions:       deps.Captions,
		metadata:       deps.Metadata,
		downloader:     deps.Downloader,
		transcriber:    deps.Transcriber,
		archiver:       deps.Archiver,
		logger:         deps.Logger,
		heavy:          semaphore.NewWeighted(int64(opts.Workers)),
		heavyLimit:     int64(opts.Workers + opts.MaxQueue),
		captionTimeout: opts.CaptionTimeout,
		runTimeout:     opts.RunTimeout,
		now:            time.Now,
	}
}

// CreateTranscript runs the tiers in order. Concurrent calls for the same
// video share one run. The run does not stop when a caller gives up: it
// finishes under RunTimeout and stores its result for later requests.
func (s *service) CreateTranscript(ctx context.Context, input Input) (*Result, error) {
	videoID, ok := youtube.ResolveVideoID(input.URL)
	if !ok {
		return nil, ErrInvalidInput
	}
	if s.repo == nil && !input.DryRun {
		return nil, ErrNoStore
	}

	key := videoID
	if input.DryRun {
		key = "dry-run:" + videoID
	}

	ch := s.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		defer cancel()
		return s.create(runCtx, videoID, input)
	})

	select {
	case <-ctx.Done():
		s.logger.WithField("video_id", videoID).Debug("caller left before the transcript was ready")
		return nil, errors.Wrap(ctx.Err(), errors.CodeUnavailable,
			"request ended before the transcript was ready, please retry later")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.WithField("video_id", videoID).Debug("joined in-flight transcript request")
		}
		return res.Val.(*Result), nil
	}
}

func (s *service) create(ctx context.Context, videoID string, input Input) (*Result, error) {
	logger := s.logger.WithField("video_id", videoID)
	start := time.Now()

	if !input.DryRun {
		cached, err := s.repo.GetByVideoID(ctx, videoID)
		switch {
		case err == nil:
			logger.WithField("source", model.SourceCache).Info("transcript served from cache")
			return &Result{Transcript: cached, VideoID: videoID, Source: model.SourceCache, Message: MessageCached}, nil
		case !errors.IsCode(err, errors.CodeNotFound):
			return nil, storageError(err, "transcript cache lookup failed")
		}
	}

	if result, ok := s.fromCaptions(ctx, logger, videoID, input); ok {
		return s.finish(ctx, logger, result, input, start)
	}

	result, err := s.fromAudio(ctx, logger, videoID, input)
	if err != nil {
		return nil, err
	}
	if len(result.Transcript.Segments) == 0 {
		logger.WithField("source", model.SourceAI).Info("no speech detected")
		return result, nil
	}
	return s.finish(ctx, logger, result, input, start)
}

// fromCaptions never fails: any scrape problem falls through to the audio tier
func (s *service) fromCaptions(ctx context.Context, logger logrus.FieldLogger, videoID string, input Input) (*Result, bool) {
	if s.captions == nil {
		return nil, false
	}

	cctx, cancel := context.WithTimeout(ctx, s.captionTimeout)
	defer cancel()

	captions, err := s.captions.FetchCaptions(cctx, videoID)
	if err != nil {
		logger.WithError(err).Debug("caption scrape unavailable, falling back to audio")
		return nil, false
	}

	segments := normalize.FromCues(captions.Cues)
	if len(segments) == 0 {
		logger.Debug("caption track had no usable cues, falling back to audio")
		return nil, false
	}

	title := captions.Title
	if title == "" {
		title = s.fetchTitle(ctx, logger, videoID)
	}

	return &Result{
		Transcript: s.newTranscript(videoID, input.URL, title, segments, model.SourceKindScrape),
		VideoID:    videoID,
		Source:     model.SourceScrape,
	}, true
}

func (s *service) fromAudio(ctx context.Context, logger logrus.FieldLogger, videoID string, input Input) (*Result, error) {
	if s.transcriber == nil {
		return nil, ErrSpeechDisabled
	}

	release, err := s.acquireHeavy(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	artifact, err := s.downloader.Download(ctx, videoID, youtube.WatchURL(videoID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := artifact.Release(); err != nil {
			logger.WithError(err).WithField("path", artifact.Path).Warn("failed to remove audio file")
		}
	}()

	recognition, err := s.transcriber.Transcribe(ctx, artifact.Path)
	if err != nil {
		return nil, err
	}

	segments := normalize.FromRecognition(recognition)
	title := s.fetchTitle(ctx, logger, videoID)
	result := &Result{
		Transcript: s.newTranscript(videoID, input.URL, title, segments, model.SourceKindAI),
		VideoID:    videoID,
		Source:     model.SourceAI,
	}
	if len(segments) == 0 {
		result.Transcript.ID = ""
		result.Message = MessageNoSpeech
	}
	return result, nil
}

// finish persists the result. When another writer stored the video first,
// that record wins and is returned as a cache hit.
func (s *service) finish(ctx context.Context, logger logrus.FieldLogger, result *Result, input Input, start time.Time) (*Result, error) {
	fields := logrus.Fields{
		"source":   result.Source,
		"segments": len(result.Transcript.Segments),
		"duration": time.Since(start).String(),
	}

	if input.DryRun {
		result.Transcript.ID = ""
		result.Message = MessageDryRun
		logger.WithFields(fields).Info("transcript generated (dry run)")
		return result, nil
	}

	err := s.repo.Create(ctx, result.Transcript)
	if errors.IsCode(err, errors.CodeConflict) {
		stored, getErr := s.repo.GetByVideoID(ctx, result.VideoID)
		if getErr != nil {
			return nil, storageError(getErr, "failed to read existing transcript")
		}
		logger.WithFields(fields).Info("transcript already stored by a concurrent request")
		return &Result{Transcript: stored, VideoID: result.VideoID, Source: model.SourceCache, Message: MessageCached}, nil
	}
	if err != nil {
		return nil, storageError(err, "failed to save transcript")
	}

	if err := s.archiver.Archive(ctx, result.Transcript); err != nil {
		logger.WithError(err).Warn("failed to archive transcript")
	}

	result.Message = MessageCreated
	logger.WithFields(fields).Info("transcript created")
	return result, nil
}

// GetTranscript retrieves a stored transcript by ID
func (s *service) GetTranscript(ctx context.Context, id string) (*model.Transcript, error) {
	if s.repo == nil {
		return nil, ErrNoStore
	}
	if id == "" {
		return nil, errors.New(errors.CodeNotFound, "transcript not found")
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, storageError(err, "failed to fetch transcript")
	}
	return t, nil
}

// acquireHeavy admits the caller to the download+transcribe tier or rejects
// it when the wait queue is full
func (s *service) acquireHeavy(ctx context.Context) (func(), error) {
	if s.inHeavy.Add(1) > s.heavyLimit {
		s.inHeavy.Add(-1)
		return nil, errors.New(errors.CodeUnavailable, "transcription capacity exceeded, please try again later")
	}
	if err := s.heavy.Acquire(ctx, 1); err != nil {
		s.inHeavy.Add(-1)
		return nil, errors.Wrap(err, errors.CodeUnavailable, "gave up waiting for a transcription worker")
	}
	return func() {
		s.heavy.Release(1)
		s.inHeavy.Add(-1)
	}, nil
}

func (s *service) fetchTitle(ctx context.Context, logger logrus.FieldLogger, videoID string) string {
	if s.metadata == nil {
		return youtube.DefaultTitle(videoID)
	}
	title, err := s.metadata.FetchTitle(ctx, videoID)
	if err != nil || title == "" {
		logger.WithError(err).Debug("title lookup failed")
		return youtube.DefaultTitle(videoID)
	}
	return title
}

func (s *service) newTranscript(videoID, sourceURL, title string, segments []model.Segment, kind model.SourceKind) *model.Transcript {
	return &model.Transcript{
		ID:         uuid.NewString(),
		VideoID:    videoID,
		SourceURL:  sourceURL,
		Title:      title,
		FullText:   normalize.FullText(segments),
		Segments:   segments,
		SourceKind: kind,
		CreatedAt:  s.now().UTC(),
	}
}

// storageError keeps store failures closed: the request fails rather than
// doing uncached work
func storageError(err error, message string) error {
	code := errors.CodeOf(err)
	if code == errors.CodeInternal {
		code = errors.CodeUnavailable
	}
	return errors.Wrap(err, code, message)
}
