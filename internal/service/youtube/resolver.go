package youtube

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// path prefixes that are followed by a video ID
var idPathPrefixes = []string{"embed", "shorts", "v", "live", "e"}

// IsVideoID reports whether s has the shape of a YouTube video ID
func IsVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// ResolveVideoID extracts the canonical 11-character video ID from a bare ID
// or any of the common YouTube URL shapes. The second return value is false
// when no ID can be found.
func ResolveVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if IsVideoID(input) {
		return input, true
	}

	u, ok := parseLooseURL(input)
	if !ok {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !isYouTubeHost(host) {
		return "", false
	}
	segments := splitPath(u.Path)

	if host == "youtu.be" {
		if len(segments) > 0 && IsVideoID(segments[0]) {
			return segments[0], true
		}
		return "", false
	}

	if v := u.Query().Get("v"); v != "" {
		if IsVideoID(v) {
			return v, true
		}
		return "", false
	}

	for i, seg := range segments {
		if i+1 >= len(segments) {
			break
		}
		for _, prefix := range idPathPrefixes {
			if seg == prefix && IsVideoID(segments[i+1]) {
				return segments[i+1], true
			}
		}
	}

	if len(segments) > 0 && IsVideoID(segments[len(segments)-1]) {
		return segments[len(segments)-1], true
	}

	return "", false
}

// youtubeDomains are the registrable domains that serve videos. Subdomains
// such as m. and music. are accepted.
var youtubeDomains = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}

func isYouTubeHost(host string) bool {
	for _, d := range youtubeDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// WatchURL returns the canonical watch URL for a video ID
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// parseLooseURL accepts URLs with or without a scheme ("youtu.be/ID")
func parseLooseURL(input string) (*url.URL, bool) {
	if !strings.Contains(input, "://") {
		if !strings.Contains(input, "/") && !strings.Contains(input, "?") {
			return nil, false
		}
		input = "https://" + input
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
