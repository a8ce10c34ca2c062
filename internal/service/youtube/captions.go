package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Taichi-iskw/ytscribe/internal/errors"
	"github.com/Taichi-iskw/ytscribe/internal/model"
)

const (
	defaultPlayerEndpoint = "https://www.youtube.com/youtubei/v1/player?prettyPrint=false"
	androidClientVersion  = "19.09.37"
	androidUserAgent      = "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip"
	maxTrackBytes         = 10 << 20
)

var multiSpace = regexp.MustCompile(`\s+`)

// Captions is a publisher or auto-generated caption track
type Captions struct {
	Title    string
	Language string
	Cues     []model.RawCue
}

// CaptionScraper fetches captions without downloading media
type CaptionScraper interface {
	FetchCaptions(ctx context.Context, videoID string) (*Captions, error)
}

type captionScraper struct {
	client         *http.Client
	playerEndpoint string
	languages      []string
}

// NewCaptionScraper creates a CaptionScraper using the innertube player API
func NewCaptionScraper(client *http.Client, languages []string) CaptionScraper {
	return NewCaptionScraperWithEndpoint(client, defaultPlayerEndpoint, languages)
}

// NewCaptionScraperWithEndpoint creates a CaptionScraper with a custom player endpoint (for testing)
func NewCaptionScraperWithEndpoint(client *http.Client, endpoint string, languages []string) CaptionScraper {
	if client == nil {
		client = http.DefaultClient
	}
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &captionScraper{
		client:         client,
		playerEndpoint: endpoint,
		languages:      languages,
	}
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		Title string `json:"title"`
	} `json:"videoDetails"`
	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// srv3 format: <timedtext><body><p t="ms" d="ms">text or <s> spans</p>
type timedText struct {
	XMLName xml.Name `xml:"timedtext"`
	Body    struct {
		Paragraphs []ttParagraph `xml:"p"`
	} `xml:"body"`
}

type ttParagraph struct {
	Start int64    `xml:"t,attr"`
	Dur   int64    `xml:"d,attr"`
	Text  string   `xml:",chardata"`
	Spans []ttSpan `xml:"s"`
}

type ttSpan struct {
	Text string `xml:",chardata"`
}

// legacy format: <transcript><text start="s" dur="s">text</text>
type legacyTranscript struct {
	XMLName xml.Name      `xml:"transcript"`
	Texts   []legacyEntry `xml:"text"`
}

type legacyEntry struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

// FetchCaptions lists the video's caption tracks, picks the preferred one and
// downloads its cues. Every failure is reported as an error; callers treat
// all of them as "no captions".
func (s *captionScraper) FetchCaptions(ctx context.Context, videoID string) (*Captions, error) {
	if !IsVideoID(videoID) {
		return nil, errors.New(errors.CodeInvalidArg, "invalid video ID")
	}

	player, err := s.fetchPlayer(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if status := player.PlayabilityStatus.Status; status != "" && status != "OK" {
		return nil, errors.New(errors.CodeExternal,
			fmt.Sprintf("video is not playable (%s): %s", status, player.PlayabilityStatus.Reason))
	}

	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	track, ok := selectTrack(tracks, s.languages)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "no caption tracks available")
	}

	cues, err := s.fetchTrack(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(cues) == 0 {
		return nil, errors.New(errors.CodeNotFound, "caption track is empty")
	}

	return &Captions{
		Title:    strings.TrimSpace(player.VideoDetails.Title),
		Language: track.LanguageCode,
		Cues:     cues,
	}, nil
}

func (s *captionScraper) fetchPlayer(ctx context.Context, videoID string) (*playerResponse, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":        "ANDROID",
				"clientVersion":     androidClientVersion,
				"androidSdkVersion": 30,
				"hl":                "en",
				"gl":                "US",
			},
		},
		"videoId":        videoID,
		"contentCheckOk": true,
		"racyCheckOk":    true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode player request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.playerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build player request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "player request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeExternal, fmt.Sprintf("player request returned status %d", resp.StatusCode))
	}

	var player playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTrackBytes)).Decode(&player); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to decode player response")
	}

	return &player, nil
}

func (s *captionScraper) fetchTrack(ctx context.Context, baseURL string) ([]model.RawCue, error) {
	trackURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "invalid caption track URL")
	}
	q := trackURL.Query()
	q.Set("fmt", "srv3")
	trackURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build caption request")
	}
	req.Header.Set("User-Agent", androidUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "caption request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeExternal, fmt.Sprintf("caption request returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to read caption track")
	}

	return parseTrack(data)
}

// parseTrack decodes srv3 first and falls back to the legacy transcript format
func parseTrack(data []byte) ([]model.RawCue, error) {
	var tt timedText
	if err := xml.Unmarshal(data, &tt); err == nil {
		cues := make([]model.RawCue, 0, len(tt.Body.Paragraphs))
		for _, p := range tt.Body.Paragraphs {
			text := p.Text
			if len(p.Spans) > 0 {
				var sb strings.Builder
				for _, span := range p.Spans {
					sb.WriteString(span.Text)
				}
				text = sb.String()
			}
			text = cleanCaptionText(text)
			if text == "" {
				continue
			}
			cues = append(cues, model.RawCue{
				Text:     text,
				Start:    float64(p.Start),
				Duration: float64(p.Dur),
				Unit:     model.UnitMilliseconds,
			})
		}
		return cues, nil
	}

	var legacy legacyTranscript
	if err := xml.Unmarshal(data, &legacy); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "unrecognized caption track format")
	}

	cues := make([]model.RawCue, 0, len(legacy.Texts))
	for _, entry := range legacy.Texts {
		text := cleanCaptionText(entry.Text)
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(entry.Start, 64)
		if err != nil {
			continue
		}
		dur, _ := strconv.ParseFloat(entry.Dur, 64)
		cues = append(cues, model.RawCue{
			Text:     text,
			Start:    start,
			Duration: dur,
			Unit:     model.UnitSeconds,
		})
	}
	return cues, nil
}

// selectTrack prefers, per configured language, a manual track over an
// auto-generated one, then any manual track, then whatever exists.
func selectTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}

	matches := func(t captionTrack, lang string) bool {
		code := strings.ToLower(t.LanguageCode)
		lang = strings.ToLower(lang)
		return code == lang || strings.HasPrefix(code, lang+"-")
	}

	for _, lang := range languages {
		for _, t := range tracks {
			if matches(t, lang) && t.Kind != "asr" {
				return t, true
			}
		}
		for _, t := range tracks {
			if matches(t, lang) {
				return t, true
			}
		}
	}

	for _, t := range tracks {
		if t.Kind != "asr" {
			return t, true
		}
	}
	return tracks[0], true
}

// caption text is frequently double-escaped
func cleanCaptionText(text string) string {
	text = html.UnescapeString(html.UnescapeString(text))
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
