package model

import (
	"strings"
	"time"
)

// SourceKind records which tier produced a stored transcript
type SourceKind string

const (
	SourceKindScrape SourceKind = "scrape"
	SourceKindAI     SourceKind = "ai"
)

// Source is the tier that answered a single request
type Source string

const (
	SourceCache  Source = "cache"
	SourceScrape Source = "scrape"
	SourceAI     Source = "ai"
)

// Segment is one timed span of transcript text
type Segment struct {
	Text       string `json:"text" bson:"text"`
	OffsetMs   int64  `json:"offsetMs" bson:"offsetMs"`
	DurationMs int64  `json:"durationMs" bson:"durationMs"`
}

// Transcript is persisted once per video ID and never mutated afterwards
type Transcript struct {
	ID         string     `json:"transcriptId" bson:"_id"`
	VideoID    string     `json:"videoId" bson:"videoId"`
	SourceURL  string     `json:"sourceUrl" bson:"sourceUrl"`
	Title      string     `json:"title,omitempty" bson:"title,omitempty"`
	FullText   string     `json:"fullText" bson:"fullText"`
	Segments   []Segment  `json:"segments" bson:"segments"`
	SourceKind SourceKind `json:"sourceKind" bson:"sourceKind"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
}

// JoinText space-joins segment texts
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
