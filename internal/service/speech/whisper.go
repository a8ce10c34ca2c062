package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/logging"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	"github.com/Taichi-iskw/ytscribe/internal/service/common"
)

// whisperTranscriber implements Transcriber using the Whisper CLI
type whisperTranscriber struct {
	cmdRunner common.CmdRunner
	path      string
	model     string
	language  string
	logger    logrus.FieldLogger
}

// whisperOutput is the JSON written by `whisper --output_format json`
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

// NewWhisperTranscriber creates a Transcriber backed by the local Whisper CLI
func NewWhisperTranscriber(cmdRunner common.CmdRunner, cfg config.SpeechConfig, logger logrus.FieldLogger) Transcriber {
	if cmdRunner == nil {
		cmdRunner = common.NewCmdRunner()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	path := cfg.WhisperPath
	if path == "" {
		path = "whisper"
	}
	modelName := cfg.WhisperModel
	if modelName == "" {
		modelName = "base"
	}
	return &whisperTranscriber{
		cmdRunner: cmdRunner,
		path:      path,
		model:     modelName,
		language:  cfg.Language,
		logger:    logger,
	}
}

// Transcribe runs Whisper with word timestamps. Each Whisper segment becomes
// one paragraph.
func (s *whisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*model.RecognitionResult, error) {
	if audioPath == "" {
		return nil, errors.New(errors.CodeInvalidArg, "audio path is required")
	}

	outputDir, err := os.MkdirTemp("", "ytscribe-whisper-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create temp directory")
	}
	defer os.RemoveAll(outputDir)

	args := []string{
		audioPath,
		"--model", s.model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--word_timestamps", "True",
		"--temperature", "0",
	}
	if s.language != "" && s.language != "auto" {
		args = append(args, "--language", s.language)
	}

	if _, err := s.cmdRunner.Run(ctx, s.path, args...); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, s.formatWhisperError(err, audioPath))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read whisper output")
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to parse whisper output")
	}

	s.logger.WithFields(logrus.Fields{
		"segments": len(out.Segments),
		"language": out.Language,
	}).Debug("whisper transcription finished")

	result := &model.RecognitionResult{
		Unit:       model.UnitSeconds,
		Transcript: strings.TrimSpace(out.Text),
	}
	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Paragraphs = append(result.Paragraphs, model.Paragraph{
			Start:     seg.Start,
			End:       seg.End,
			Sentences: []model.Sentence{{Text: text, Start: seg.Start, End: seg.End}},
		})
		for _, w := range seg.Words {
			result.Words = append(result.Words, model.Word{Text: strings.TrimSpace(w.Word), Start: w.Start, End: w.End})
		}
	}

	return result, nil
}

// formatWhisperError provides user-friendly error messages for Whisper failures
func (s *whisperTranscriber) formatWhisperError(err error, audioPath string) string {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "executable file not found") ||
		(strings.Contains(errMsg, "No such file or directory") && strings.Contains(errMsg, "whisper")):
		return "Whisper is not installed. Please install OpenAI Whisper: pip install openai-whisper"
	case strings.Contains(errMsg, "No module named"):
		return "Whisper dependencies missing. Please reinstall: pip install --upgrade openai-whisper"
	case strings.Contains(errMsg, "not enough memory") || strings.Contains(errMsg, "OutOfMemoryError"):
		return fmt.Sprintf("insufficient memory for model '%s'. Try using a smaller model (tiny, base, small)", s.model)
	case strings.Contains(errMsg, "Could not load model"):
		return fmt.Sprintf("failed to load Whisper model '%s'", s.model)
	case strings.Contains(errMsg, "context deadline exceeded"):
		return "speech transcription timed out"
	default:
		return fmt.Sprintf("transcription of %s failed with model '%s'", filepath.Base(audioPath), s.model)
	}
}
