// Package speech turns downloaded audio into a provider-neutral
// RecognitionResult.
package speech

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	"github.com/Taichi-iskw/ytscribe/internal/service/common"
)

// Transcriber defines operations for speech-to-text transcription
type Transcriber interface {
	// Transcribe recognizes speech in the audio file. A result with no
	// paragraphs and no words means no speech was detected.
	Transcribe(ctx context.Context, audioPath string) (*model.RecognitionResult, error)
}

// ErrNotConfigured is returned by New when the provider lacks credentials
var ErrNotConfigured = errors.New(errors.CodeDependency,
	"speech transcription is not configured: set DEEPGRAM_API_KEY or use the whisper provider")

// New builds the configured provider. It is called once at startup and the
// result is shared by all requests.
func New(cfg config.SpeechConfig, client *http.Client, cmdRunner common.CmdRunner, logger logrus.FieldLogger) (Transcriber, error) {
	switch cfg.Provider {
	case "whisper":
		return NewWhisperTranscriber(cmdRunner, cfg, logger), nil
	case "", "deepgram":
		if cfg.APIKey == "" {
			return nil, ErrNotConfigured
		}
		return NewDeepgramTranscriber(client, cfg, logger), nil
	default:
		return nil, errors.New(errors.CodeInvalidArg, "unsupported speech provider: "+cfg.Provider)
	}
}
