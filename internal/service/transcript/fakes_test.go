package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	"github.com/Taichi-iskw/ytscribe/internal/service/audio"
	"github.com/Taichi-iskw/ytscribe/internal/service/youtube"
)

// memoryRepository is an in-memory Repository with create-if-absent semantics
type memoryRepository struct {
	mu      sync.Mutex
	byVideo map[string]*model.Transcript
	byID    map[string]*model.Transcript

	getErr    error
	createErr error
	// beforeCreate runs inside Create before the existence check
	beforeCreate func()
	creates      atomic.Int32
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		byVideo: map[string]*model.Transcript{},
		byID:    map[string]*model.Transcript{},
	}
}

func (r *memoryRepository) GetByVideoID(ctx context.Context, videoID string) (*model.Transcript, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byVideo[videoID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "transcript not found")
	}
	return t, nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id string) (*model.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "transcript not found")
	}
	return t, nil
}

func (r *memoryRepository) Create(ctx context.Context, t *model.Transcript) error {
	if r.beforeCreate != nil {
		r.beforeCreate()
	}
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byVideo[t.VideoID]; ok {
		return errors.New(errors.CodeConflict, "transcript for this video already exists")
	}
	r.byVideo[t.VideoID] = t
	r.byID[t.ID] = t
	r.creates.Add(1)
	return nil
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byVideo)
}

func (r *memoryRepository) put(t *model.Transcript) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byVideo[t.VideoID] = t
	r.byID[t.ID] = t
}

// fakeCaptions serves fixed cues per video ID
type fakeCaptions struct {
	captions map[string]*youtube.Captions
	wait     chan struct{}
	calls    atomic.Int32
}

func (f *fakeCaptions) FetchCaptions(ctx context.Context, videoID string) (*youtube.Captions, error) {
	f.calls.Add(1)
	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c, ok := f.captions[videoID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "no caption tracks available")
	}
	return c, nil
}

// fakeDownloader writes a real file into the scratch directory
type fakeDownloader struct {
	dir   string
	err   error
	calls atomic.Int32
}

func newFakeDownloader(t *testing.T) *fakeDownloader {
	return &fakeDownloader{dir: filepath.Join(t.TempDir(), "temp")}
}

func (d *fakeDownloader) Download(ctx context.Context, videoID, videoURL string) (*audio.Artifact, error) {
	n := d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(d.dir, fmt.Sprintf("%s-%d.webm", videoID, n))
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		return nil, err
	}
	return &audio.Artifact{VideoID: videoID, Path: path}, nil
}

func (d *fakeDownloader) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(d.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// fakeTranscriber returns a fixed result, optionally blocking until released
type fakeTranscriber struct {
	result  *model.RecognitionResult
	err     error
	started chan struct{}
	wait    chan struct{}
	paths   []string
	mu      sync.Mutex
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*model.RecognitionResult, error) {
	f.mu.Lock()
	f.paths = append(f.paths, audioPath)
	f.mu.Unlock()
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file missing during transcription: %w", err)
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

// fakeTitles returns a fixed title
type fakeTitles struct {
	title string
	err   error
}

func (f *fakeTitles) FetchTitle(ctx context.Context, videoID string) (string, error) {
	return f.title, f.err
}

// recordingArchiver records archived video IDs
type recordingArchiver struct {
	mu     sync.Mutex
	videos []string
	err    error
}

func (a *recordingArchiver) Archive(ctx context.Context, t *model.Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.videos = append(a.videos, t.VideoID)
	return a.err
}

func storedTranscript(videoID string) *model.Transcript {
	return &model.Transcript{
		ID:         uuid.NewString(),
		VideoID:    videoID,
		SourceURL:  youtube.WatchURL(videoID),
		Title:      "Stored",
		FullText:   "stored text",
		Segments:   []model.Segment{{Text: "stored text", DurationMs: 1000}},
		SourceKind: model.SourceKindScrape,
	}
}

func speechResult() *model.RecognitionResult {
	return &model.RecognitionResult{
		Unit: model.UnitSeconds,
		Paragraphs: []model.Paragraph{
			{Start: 0, End: 3, Sentences: []model.Sentence{{Text: "Welcome back."}, {Text: "Today we cook."}}},
			{Start: 3.5, End: 9, Sentences: []model.Sentence{{Text: "First, the onions."}}},
		},
	}
}
