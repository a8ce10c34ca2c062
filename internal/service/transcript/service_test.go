package transcript

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	"github.com/Taichi-iskw/ytscribe/internal/service/speech"
	"github.com/Taichi-iskw/ytscribe/internal/service/youtube"
)

const testVideoID = "abcdefghijk"

type fixture struct {
	repo        *memoryRepository
	captions    *fakeCaptions
	downloader  *fakeDownloader
	transcriber *fakeTranscriber
	archiver    *recordingArchiver
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		repo:        newMemoryRepository(),
		captions:    &fakeCaptions{captions: map[string]*youtube.Captions{}},
		downloader:  newFakeDownloader(t),
		transcriber: &fakeTranscriber{result: speechResult()},
		archiver:    &recordingArchiver{},
	}
}

func (f *fixture) service(opts Options) Service {
	return f.serviceWith(f.transcriber, opts)
}

func (f *fixture) serviceWith(tr speech.Transcriber, opts Options) Service {
	return NewService(Dependencies{
		Repository:  f.repo,
		Captions:    f.captions,
		Metadata:    &fakeTitles{title: "Fetched Title"},
		Downloader:  f.downloader,
		Transcriber: tr,
		Archiver:    f.archiver,
	}, opts)
}

func (f *fixture) withCaptions(videoID string) {
	f.captions.captions[videoID] = &youtube.Captions{
		Title:    "Caption Title",
		Language: "en",
		Cues: []model.RawCue{
			{Text: "second line", Start: 2500, Duration: 1500, Unit: model.UnitMilliseconds},
			{Text: "first line", Start: 0, Duration: 2500, Unit: model.UnitMilliseconds},
			{Text: "third line", Start: 4000, Duration: 1000, Unit: model.UnitMilliseconds},
		},
	}
}

func TestCreateTranscript_ScrapeTier(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	svc := f.service(Options{})

	result, err := svc.CreateTranscript(context.Background(), Input{URL: "https://youtu.be/" + testVideoID})
	require.NoError(t, err)

	assert.Equal(t, model.SourceScrape, result.Source)
	assert.Equal(t, testVideoID, result.VideoID)
	assert.Equal(t, MessageCreated, result.Message)
	assert.NotEmpty(t, result.Transcript.ID)
	assert.Equal(t, "Caption Title", result.Transcript.Title)
	assert.Equal(t, model.SourceKindScrape, result.Transcript.SourceKind)
	assert.Equal(t, "first line second line third line", result.Transcript.FullText)

	segments := result.Transcript.Segments
	require.NotEmpty(t, segments)
	for i := 1; i < len(segments); i++ {
		assert.LessOrEqual(t, segments[i-1].OffsetMs, segments[i].OffsetMs)
	}

	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, int32(0), f.downloader.calls.Load())
	assert.Equal(t, []string{testVideoID}, f.archiver.videos)
}

func TestCreateTranscript_SecondRequestIsCached(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	svc := f.service(Options{})
	ctx := context.Background()

	first, err := svc.CreateTranscript(ctx, Input{URL: "https://www.youtube.com/watch?v=" + testVideoID})
	require.NoError(t, err)

	second, err := svc.CreateTranscript(ctx, Input{URL: testVideoID})
	require.NoError(t, err)

	assert.Equal(t, first.Transcript.ID, second.Transcript.ID)
	assert.Equal(t, model.SourceCache, second.Source)
	assert.Equal(t, MessageCached, second.Message)
	assert.Equal(t, int32(1), f.captions.calls.Load())
}

func TestCreateTranscript_AudioTier(t *testing.T) {
	f := newFixture(t)
	svc := f.service(Options{})

	result, err := svc.CreateTranscript(context.Background(), Input{URL: "https://www.youtube.com/shorts/" + testVideoID})
	require.NoError(t, err)

	assert.Equal(t, model.SourceAI, result.Source)
	assert.Equal(t, model.SourceKindAI, result.Transcript.SourceKind)
	assert.Equal(t, "Fetched Title", result.Transcript.Title)
	require.Len(t, result.Transcript.Segments, 2)
	assert.Equal(t, model.Segment{Text: "Welcome back. Today we cook.", OffsetMs: 0, DurationMs: 3000}, result.Transcript.Segments[0])
	assert.Equal(t, int64(3500), result.Transcript.Segments[1].OffsetMs)

	assert.Equal(t, 1, f.repo.count())
	assert.Empty(t, f.downloader.files(t), "audio file must be removed after transcription")
}

func TestCreateTranscript_NoSpeechDetected(t *testing.T) {
	f := newFixture(t)
	f.transcriber.result = &model.RecognitionResult{Unit: model.UnitSeconds}
	svc := f.service(Options{})

	result, err := svc.CreateTranscript(context.Background(), Input{URL: "https://youtu.be/" + testVideoID})
	require.NoError(t, err)

	assert.Equal(t, model.SourceAI, result.Source)
	assert.Equal(t, MessageNoSpeech, result.Message)
	assert.NotNil(t, result.Transcript.Segments)
	assert.Empty(t, result.Transcript.Segments)
	assert.Empty(t, result.Transcript.ID)

	assert.Equal(t, 0, f.repo.count())
	assert.Empty(t, f.archiver.videos)
	assert.Empty(t, f.downloader.files(t))
}

func TestCreateTranscript_InvalidInput(t *testing.T) {
	f := newFixture(t)
	svc := f.service(Options{})

	for _, input := range []string{"not-a-url", "", "https://example.com/watch?v=short"} {
		_, err := svc.CreateTranscript(context.Background(), Input{URL: input})
		require.Error(t, err, input)
		assert.Equal(t, errors.CodeInvalidArg, errors.CodeOf(err), input)
	}

	assert.Equal(t, int32(0), f.captions.calls.Load())
	assert.Equal(t, int32(0), f.downloader.calls.Load())
	assert.Empty(t, f.downloader.files(t))
}

func TestCreateTranscript_TranscriptionFailureRemovesAudio(t *testing.T) {
	f := newFixture(t)
	f.transcriber.err = errors.New(errors.CodeExternal, "speech provider request failed")
	svc := f.service(Options{})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternal, errors.CodeOf(err))

	require.Len(t, f.transcriber.paths, 1)
	assert.NoFileExists(t, f.transcriber.paths[0])
	assert.Empty(t, f.downloader.files(t))
	assert.Equal(t, 0, f.repo.count())
}

func TestCreateTranscript_DownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.downloader.err = errors.New(errors.CodeExternal, "video is age-restricted and cannot be downloaded")
	svc := f.service(Options{})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternal, errors.CodeOf(err))
	assert.Empty(t, f.transcriber.paths)
}

func TestCreateTranscript_SpeechDisabledFailsFast(t *testing.T) {
	f := newFixture(t)
	svc := f.serviceWith(nil, Options{})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpeechDisabled)
	assert.Equal(t, errors.CodeDependency, errors.CodeOf(err))
	assert.Equal(t, int32(0), f.downloader.calls.Load())
}

func TestCreateTranscript_CacheFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	f.repo.getErr = errors.New(errors.CodeUnavailable, "database connection error")
	svc := f.service(Options{})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.CodeOf(err))
	assert.Equal(t, int32(0), f.captions.calls.Load())
	assert.Equal(t, int32(0), f.downloader.calls.Load())
}

func TestCreateTranscript_PersistFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	f.repo.createErr = errors.Wrap(assert.AnError, errors.CodeInternal, "failed to create transcript")
	svc := f.service(Options{})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.CodeOf(err))
	assert.Empty(t, f.archiver.videos)
}

func TestCreateTranscript_ConflictReturnsStoredRecord(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	winner := storedTranscript(testVideoID)
	// another process stores the video between our cache miss and our insert
	f.repo.beforeCreate = func() { f.repo.put(winner) }
	svc := f.service(Options{})

	result, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.NoError(t, err)

	assert.Equal(t, model.SourceCache, result.Source)
	assert.Equal(t, winner.ID, result.Transcript.ID)
	assert.Equal(t, "stored text", result.Transcript.FullText)
	assert.Empty(t, f.archiver.videos)
}

func TestCreateTranscript_ArchiveFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	f.archiver.err = assert.AnError
	svc := f.service(Options{})

	result, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.NoError(t, err)
	assert.Equal(t, model.SourceScrape, result.Source)
}

func TestCreateTranscript_ConcurrentRequestsStoreOnce(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	f.captions.wait = make(chan struct{})

	// two services over one store stand in for two processes
	services := []Service{f.service(Options{}), f.service(Options{})}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = services[i%2].CreateTranscript(context.Background(), Input{URL: "https://youtu.be/" + testVideoID})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.captions.wait)
	wg.Wait()

	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, int32(1), f.repo.creates.Load())

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Transcript.ID, results[i].Transcript.ID)
	}
}

func TestCreateTranscript_FollowerSurvivesLeaderCancel(t *testing.T) {
	f := newFixture(t)
	f.transcriber.started = make(chan struct{}, 1)
	f.transcriber.wait = make(chan struct{})
	svc := f.service(Options{})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.CreateTranscript(leaderCtx, Input{URL: testVideoID})
		leaderErr <- err
	}()
	<-f.transcriber.started

	type outcome struct {
		result *Result
		err    error
	}
	follower := make(chan outcome, 1)
	go func() {
		result, err := svc.CreateTranscript(context.Background(), Input{URL: "https://youtu.be/" + testVideoID})
		follower <- outcome{result, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	err := <-leaderErr
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	close(f.transcriber.wait)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, model.SourceAI, got.result.Source)
	assert.NotEmpty(t, got.result.Transcript.Segments)

	assert.Equal(t, int32(1), f.downloader.calls.Load())
	assert.Equal(t, 1, f.repo.count())
	assert.Empty(t, f.downloader.files(t))
}

func TestCreateTranscript_RunOutlivesCaller(t *testing.T) {
	f := newFixture(t)
	f.transcriber.started = make(chan struct{}, 1)
	f.transcriber.wait = make(chan struct{})
	svc := f.service(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.CreateTranscript(ctx, Input{URL: testVideoID})
		errCh <- err
	}()
	<-f.transcriber.started
	cancel()
	require.Error(t, <-errCh)

	close(f.transcriber.wait)
	// a request landing before the run returns joins it instead of hitting the store
	require.Eventually(t, func() bool {
		result, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
		return err == nil && result.Source == model.SourceCache
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, int32(1), f.downloader.calls.Load())
}

func TestCreateTranscript_RunTimeoutBoundsSharedRun(t *testing.T) {
	f := newFixture(t)
	f.transcriber.wait = make(chan struct{})
	svc := f.service(Options{RunTimeout: 50 * time.Millisecond})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, f.repo.count())
	assert.Empty(t, f.downloader.files(t))
}

func TestCreateTranscript_WithoutStore(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	svc := NewService(Dependencies{
		Captions:    f.captions,
		Downloader:  f.downloader,
		Transcriber: f.transcriber,
	}, Options{})

	_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
	require.ErrorIs(t, err, ErrNoStore)
	assert.Equal(t, errors.CodeDependency, errors.CodeOf(err))
	assert.Equal(t, int32(0), f.captions.calls.Load())

	_, err = svc.GetTranscript(context.Background(), "5f1c7c43-3d5b-4c1e-9f0e-2b7d3f3a9c11")
	require.ErrorIs(t, err, ErrNoStore)

	result, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, model.SourceScrape, result.Source)
}

func TestCreateTranscript_HeavyTierBackpressure(t *testing.T) {
	f := newFixture(t)
	f.transcriber.started = make(chan struct{}, 1)
	f.transcriber.wait = make(chan struct{})
	svc := f.service(Options{Workers: 1, MaxQueue: 0})

	done := make(chan error, 1)
	go func() {
		_, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID})
		done <- err
	}()
	<-f.transcriber.started

	_, err := svc.CreateTranscript(context.Background(), Input{URL: "zyxwvutsrqp"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.CodeOf(err))

	close(f.transcriber.wait)
	require.NoError(t, <-done)
	assert.Empty(t, f.downloader.files(t))
}

func TestCreateTranscript_DryRunDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	f.withCaptions(testVideoID)
	f.repo.put(storedTranscript(testVideoID))
	svc := f.service(Options{})

	result, err := svc.CreateTranscript(context.Background(), Input{URL: testVideoID, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, model.SourceScrape, result.Source)
	assert.Equal(t, MessageDryRun, result.Message)
	assert.Empty(t, result.Transcript.ID)
	assert.Equal(t, int32(0), f.repo.creates.Load())
}

func TestGetTranscript(t *testing.T) {
	f := newFixture(t)
	stored := storedTranscript(testVideoID)
	f.repo.put(stored)
	svc := f.service(Options{})

	got, err := svc.GetTranscript(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	_, err = svc.GetTranscript(context.Background(), "missing")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	_, err = svc.GetTranscript(context.Background(), "")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}
