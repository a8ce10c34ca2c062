package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	transcriptsvc "github.com/Taichi-iskw/ytscribe/internal/service/transcript"
)

// Formatter defines interface for output formatting
type Formatter interface {
	Format(result *transcriptsvc.Result) (string, error)
}

// NewFormatter returns the formatter for the given name
func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "", "text":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "srt":
		return &SRTFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: text, json, srt)", format)
	}
}

// TextFormatter formats output as plain text
type TextFormatter struct{}

// Format formats the transcript as plain text
func (f *TextFormatter) Format(result *transcriptsvc.Result) (string, error) {
	var output strings.Builder
	t := result.Transcript

	if result.Message != "" {
		output.WriteString(result.Message + "\n")
	}
	if t.ID != "" {
		output.WriteString(fmt.Sprintf("Transcript ID: %s\n", t.ID))
	}
	output.WriteString(fmt.Sprintf("Video ID: %s\n", result.VideoID))
	if t.Title != "" {
		output.WriteString(fmt.Sprintf("Title: %s\n", t.Title))
	}
	output.WriteString(fmt.Sprintf("Source: %s\n", result.Source))
	if !t.CreatedAt.IsZero() {
		output.WriteString(fmt.Sprintf("Created: %s\n", t.CreatedAt.Format(time.RFC3339)))
	}

	output.WriteString(fmt.Sprintf("\n--- Segments (%d) ---\n", len(t.Segments)))
	for _, segment := range t.Segments {
		output.WriteString(fmt.Sprintf("[%s -> %s] %s\n",
			formatMillis(segment.OffsetMs, '.'),
			formatMillis(segment.OffsetMs+segment.DurationMs, '.'),
			segment.Text))
	}

	return output.String(), nil
}

// JSONFormatter formats output as JSON, matching the HTTP response shape
type JSONFormatter struct{}

// Format formats the transcript as JSON
func (f *JSONFormatter) Format(result *transcriptsvc.Result) (string, error) {
	type Output struct {
		Message      string          `json:"message,omitempty"`
		TranscriptID string          `json:"transcriptId"`
		VideoID      string          `json:"videoId"`
		Title        string          `json:"title"`
		Transcript   string          `json:"transcript"`
		Segments     []model.Segment `json:"segments"`
		Source       model.Source    `json:"source"`
	}

	t := result.Transcript
	segments := t.Segments
	if segments == nil {
		segments = []model.Segment{}
	}

	jsonBytes, err := json.MarshalIndent(Output{
		Message:      result.Message,
		TranscriptID: t.ID,
		VideoID:      result.VideoID,
		Title:        t.Title,
		Transcript:   t.FullText,
		Segments:     segments,
		Source:       result.Source,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(jsonBytes) + "\n", nil
}

// SRTFormatter formats output as SRT subtitles
type SRTFormatter struct{}

// Format formats the transcript as SRT
func (f *SRTFormatter) Format(result *transcriptsvc.Result) (string, error) {
	return formatAsSRT(result.Transcript.Segments), nil
}

// formatAsSRT formats transcript segments as SRT subtitle format
func formatAsSRT(segments []model.Segment) string {
	var result strings.Builder

	for i, segment := range segments {
		// SRT format: sequence number, timestamp, text, blank line
		result.WriteString(fmt.Sprintf("%d\n", i+1))
		result.WriteString(fmt.Sprintf("%s --> %s\n",
			formatMillis(segment.OffsetMs, ','),
			formatMillis(segment.OffsetMs+segment.DurationMs, ',')))
		result.WriteString(fmt.Sprintf("%s\n\n", segment.Text))
	}

	return result.String()
}

// formatMillis renders HH:MM:SS<sep>mmm. SRT uses a comma separator.
func formatMillis(ms int64, sep rune) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms % 3_600_000) / 60_000
	secs := (ms % 60_000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, millis)
}

// formatTranscriptError provides user-friendly error messages for transcript failures
func formatTranscriptError(err error, input string) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch {
	case errors.IsCode(err, errors.CodeInvalidArg) && strings.Contains(errMsg, "video ID"):
		return fmt.Errorf("❌ '%s' is not a YouTube URL or video ID.\n   • Accepted: watch, youtu.be, shorts, embed and live URLs, or an 11-character ID", input)
	case strings.Contains(errMsg, "speech transcription is not configured"):
		return fmt.Errorf("❌ This video has no captions and speech transcription is not configured.\n   • Set DEEPGRAM_API_KEY or speech.api_key\n   • Or use speech.provider: whisper with a local Whisper install")
	case strings.Contains(errMsg, "yt-dlp is not installed"):
		return fmt.Errorf("❌ yt-dlp is required but not installed.\n   • Install: pip install yt-dlp\n   • Or visit: https://github.com/yt-dlp/yt-dlp")
	case strings.Contains(errMsg, "Whisper is not installed"):
		return fmt.Errorf("❌ Whisper is required but not installed.\n   • Install: pip install openai-whisper\n   • Or visit: https://github.com/openai/whisper")
	case strings.Contains(errMsg, "age-restricted"):
		return fmt.Errorf("❌ Video '%s' is age-restricted and cannot be downloaded.", input)
	case strings.Contains(errMsg, "not available"), strings.Contains(errMsg, "private"):
		return fmt.Errorf("❌ Video '%s' is not available. Please check:\n   • Video ID is correct\n   • Video is not private or deleted\n   • Video is not blocked in your region", input)
	case strings.Contains(errMsg, "rejected the API key"):
		return fmt.Errorf("❌ The speech provider rejected the API key.\n   • Check DEEPGRAM_API_KEY or speech.api_key")
	case strings.Contains(errMsg, "rate limited"):
		return fmt.Errorf("❌ YouTube rate limit reached.\n   • Wait a few minutes and try again")
	case strings.Contains(errMsg, "timed out"):
		return fmt.Errorf("❌ Transcription timed out for '%s'.\n   • Long videos may need a larger speech.timeout", input)
	case errors.IsCode(err, errors.CodeUnavailable):
		return fmt.Errorf("❌ Transcript storage is unavailable.\n   • Check that the database is running\n   • Run 'ytscribe config show' to verify settings\n   %s", errMsg)
	default:
		return fmt.Errorf("❌ Transcription failed for '%s':\n   %s", input, errMsg)
	}
}
