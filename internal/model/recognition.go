package model

// TimeUnit tags every raw time value produced by a scraper or recognizer
type TimeUnit string

const (
	UnitSeconds      TimeUnit = "s"
	UnitMilliseconds TimeUnit = "ms"
)

// RawCue is one caption entry as returned by the caption track
type RawCue struct {
	Text     string
	Start    float64
	Duration float64
	Unit     TimeUnit
}

// RecognitionResult is the provider-neutral output of a speech transcription.
// Paragraphs are preferred over Words when both are present.
type RecognitionResult struct {
	Unit       TimeUnit    `json:"unit"`
	Transcript string      `json:"transcript"`
	Paragraphs []Paragraph `json:"paragraphs,omitempty"`
	Words      []Word      `json:"words,omitempty"`
}

type Paragraph struct {
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	Sentences []Sentence `json:"sentences"`
}

type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Word carries punctuated text when the provider supplies it
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
