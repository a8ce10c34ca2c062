// Package normalize converts caption cues and speech recognition results
// into the canonical segment representation.
package normalize

import (
	"math"
	"sort"
	"strings"

	"github.com/Taichi-iskw/ytscribe/internal/model"
)

// BucketThresholdMs closes a word bucket once it spans this long
const BucketThresholdMs int64 = 10_000

// FromCues converts caption cues to segments
func FromCues(cues []model.RawCue) []model.Segment {
	segments := make([]model.Segment, 0, len(cues))
	for _, cue := range cues {
		segments = appendSegment(segments, cue.Text, toMs(cue.Start, cue.Unit), toMs(cue.Duration, cue.Unit))
	}
	return finalize(segments)
}

// FromRecognition converts a recognition result to segments. Paragraphs are
// used when present, otherwise words are bucketed. A nil or empty result
// yields an empty slice.
//
// Each paragraph with text maps to exactly one segment in input order. A
// paragraph whose sentences are all blank produces no segment, so segments
// never carry empty text.
func FromRecognition(result *model.RecognitionResult) []model.Segment {
	if result == nil {
		return []model.Segment{}
	}
	if len(result.Paragraphs) > 0 {
		return fromParagraphs(result.Paragraphs, result.Unit)
	}
	if len(result.Words) > 0 {
		return fromWords(result.Words, result.Unit)
	}
	return []model.Segment{}
}

// FullText joins segment texts with single spaces
func FullText(segments []model.Segment) string {
	return model.JoinText(segments)
}

func fromParagraphs(paragraphs []model.Paragraph, unit model.TimeUnit) []model.Segment {
	segments := make([]model.Segment, 0, len(paragraphs))
	for _, p := range paragraphs {
		texts := make([]string, 0, len(p.Sentences))
		for _, s := range p.Sentences {
			if t := strings.TrimSpace(s.Text); t != "" {
				texts = append(texts, t)
			}
		}
		start := toMs(p.Start, unit)
		end := toMs(p.End, unit)
		segments = appendSegment(segments, strings.Join(texts, " "), start, end-start)
	}
	return finalize(segments)
}

// fromWords groups words greedily in a single pass. A bucket closes when the
// current word ends at least BucketThresholdMs after the bucket started, or
// when the word ends a sentence.
func fromWords(words []model.Word, unit model.TimeUnit) []model.Segment {
	segments := make([]model.Segment, 0, len(words)/8+1)

	var (
		texts       []string
		bucketStart int64
		bucketEnd   int64
	)
	flush := func() {
		if len(texts) == 0 {
			return
		}
		segments = appendSegment(segments, strings.Join(texts, " "), bucketStart, bucketEnd-bucketStart)
		texts = texts[:0]
	}

	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		start := toMs(w.Start, unit)
		end := toMs(w.End, unit)
		if len(texts) == 0 {
			bucketStart = start
		}
		texts = append(texts, text)
		if end > bucketEnd || len(texts) == 1 {
			bucketEnd = end
		}

		if end-bucketStart >= BucketThresholdMs || endsSentence(text) {
			flush()
		}
	}
	flush()

	return finalize(segments)
}

func endsSentence(text string) bool {
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// toMs converts a tagged time value. Untagged values are treated as seconds,
// which is what every caption and recognition source reports by default.
func toMs(v float64, unit model.TimeUnit) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	if unit == model.UnitMilliseconds {
		return int64(math.Round(v))
	}
	return int64(math.Round(v * 1000))
}

func appendSegment(segments []model.Segment, text string, offsetMs, durationMs int64) []model.Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return segments
	}
	if offsetMs < 0 {
		offsetMs = 0
	}
	if durationMs < 0 {
		durationMs = 0
	}
	return append(segments, model.Segment{Text: text, OffsetMs: offsetMs, DurationMs: durationMs})
}

// finalize keeps insertion order for equal offsets while guaranteeing
// non-decreasing offsets
func finalize(segments []model.Segment) []model.Segment {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].OffsetMs < segments[j].OffsetMs
	})
	return segments
}
