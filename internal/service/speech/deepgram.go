package speech

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/logging"
	"github.com/Taichi-iskw/ytscribe/internal/model"
)

const (
	maxBackoff       = 30 * time.Second
	backoffFactor    = 2.0
	maxErrorBodySize = 4 << 10
)

// deepgramTranscriber implements Transcriber using Deepgram's pre-recorded API
type deepgramTranscriber struct {
	client         *http.Client
	baseURL        string
	apiKey         string
	model          string
	language       string
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	limiter        *rate.Limiter
	logger         logrus.FieldLogger
}

// NewDeepgramTranscriber creates a Transcriber for Deepgram
func NewDeepgramTranscriber(client *http.Client, cfg config.SpeechConfig, logger logrus.FieldLogger) Transcriber {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.deepgram.com"
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &deepgramTranscriber{
		client:         client,
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		language:       cfg.Language,
		timeout:        cfg.Timeout,
		maxRetries:     maxRetries,
		initialBackoff: cfg.InitialBackoff,
		limiter:        rate.NewLimiter(limit, 1),
		logger:         logger,
	}
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Words      []struct {
					Word           string  `json:"word"`
					PunctuatedWord string  `json:"punctuated_word"`
					Start          float64 `json:"start"`
					End            float64 `json:"end"`
				} `json:"words"`
				Paragraphs *struct {
					Paragraphs []struct {
						Start     float64 `json:"start"`
						End       float64 `json:"end"`
						Sentences []struct {
							Text  string  `json:"text"`
							Start float64 `json:"start"`
							End   float64 `json:"end"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// statusError is a non-200 reply from the provider
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("deepgram returned %d: %s", e.Status, e.Body)
}

// Transcribe uploads the audio file, retrying transient failures with
// exponential backoff and jitter. The whole call, retries included, is
// bounded by the configured timeout.
func (t *deepgramTranscriber) Transcribe(ctx context.Context, audioPath string) (*model.RecognitionResult, error) {
	if audioPath == "" {
		return nil, errors.New(errors.CodeInvalidArg, "audio path is required")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	logger := t.logger.WithField("audio", filepath.Base(audioPath))

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			wait := t.backoff(attempt)
			logger.WithFields(logrus.Fields{
				"attempt":          attempt + 1,
				"backoff_duration": wait,
				"error":            lastErr,
			}).Warn("retrying speech transcription")

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, contextError(ctx, lastErr)
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return nil, contextError(ctx, err)
		}

		result, err := t.transcribeOnce(ctx, audioPath)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, contextError(ctx, err)
		}
		if !isTransient(err) {
			return nil, classify(err)
		}
	}

	return nil, errors.Wrap(lastErr, errors.CodeExternal,
		fmt.Sprintf("speech transcription failed after %d attempts", t.maxRetries+1))
}

func (t *deepgramTranscriber) transcribeOnce(ctx context.Context, audioPath string) (*model.RecognitionResult, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to open audio file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to stat audio file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.listenURL(), f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build speech request")
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", contentType(audioPath))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var dg deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dg); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to decode speech response")
	}

	return toRecognition(&dg), nil
}

func (t *deepgramTranscriber) listenURL() string {
	q := url.Values{}
	if t.model != "" {
		q.Set("model", t.model)
	}
	if t.language != "" {
		q.Set("language", t.language)
	}
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("paragraphs", "true")
	return t.baseURL + "/v1/listen?" + q.Encode()
}

func (t *deepgramTranscriber) backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(t.initialBackoff) * math.Pow(backoffFactor, float64(attempt-1)))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	if backoff <= 0 {
		return 0
	}
	return backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
}

func toRecognition(dg *deepgramResponse) *model.RecognitionResult {
	result := &model.RecognitionResult{Unit: model.UnitSeconds}
	if len(dg.Results.Channels) == 0 || len(dg.Results.Channels[0].Alternatives) == 0 {
		return result
	}
	alt := dg.Results.Channels[0].Alternatives[0]
	result.Transcript = alt.Transcript

	if alt.Paragraphs != nil {
		for _, p := range alt.Paragraphs.Paragraphs {
			para := model.Paragraph{Start: p.Start, End: p.End}
			for _, s := range p.Sentences {
				para.Sentences = append(para.Sentences, model.Sentence{Text: s.Text, Start: s.Start, End: s.End})
			}
			result.Paragraphs = append(result.Paragraphs, para)
		}
	}

	for _, w := range alt.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		result.Words = append(result.Words, model.Word{Text: text, Start: w.Start, End: w.End})
	}

	return result
}

// isTransient reports whether a retry may succeed: network failures, 408,
// 429 and 5xx replies
func isTransient(err error) bool {
	var se *statusError
	if stderrors.As(err, &se) {
		return se.Status == http.StatusRequestTimeout ||
			se.Status == http.StatusTooManyRequests ||
			se.Status >= 500
	}
	if _, ok := err.(*errors.AppError); ok {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return stderrors.As(err, &netErr) || stderrors.As(err, &urlErr) || stderrors.Is(err, io.ErrUnexpectedEOF)
}

func classify(err error) error {
	var se *statusError
	if !stderrors.As(err, &se) {
		if _, ok := err.(*errors.AppError); ok {
			return err
		}
		return errors.Wrap(err, errors.CodeExternal, "speech provider request failed")
	}
	switch se.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Wrap(err, errors.CodeDependency, "speech provider rejected the API key")
	case http.StatusRequestEntityTooLarge:
		return errors.Wrap(err, errors.CodeExternal, "audio file is too large for the speech provider")
	case http.StatusBadRequest:
		return errors.Wrap(err, errors.CodeExternal, "speech provider could not process the audio")
	default:
		return errors.Wrap(err, errors.CodeExternal, fmt.Sprintf("speech provider returned status %d", se.Status))
	}
}

func contextError(ctx context.Context, cause error) error {
	if cause == nil {
		cause = ctx.Err()
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(cause, errors.CodeExternal, "speech transcription timed out")
	}
	return errors.Wrap(cause, errors.CodeExternal, "speech transcription cancelled")
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
