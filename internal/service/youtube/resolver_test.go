package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveVideoID_EquivalentShapes(t *testing.T) {
	const id = "dQw4w9WgXcQ"

	inputs := []string{
		"dQw4w9WgXcQ",
		"  dQw4w9WgXcQ  ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		"https://m.youtube.com/watch?feature=share&v=dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ&list=RD",
		"youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=abc",
		"youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?start=3",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
		"https://www.youtube.com/live/dQw4w9WgXcQ?feature=share",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			got, ok := ResolveVideoID(input)
			assert.True(t, ok)
			assert.Equal(t, id, got)
		})
	}
}

func TestResolveVideoID_NotFound(t *testing.T) {
	inputs := []string{
		"",
		"not-a-url",
		"dQw4w9WgXc",
		"dQw4w9WgXcQQ",
		"dQw4w9WgX!Q",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQQ",
		"https://youtu.be/",
		"https://www.youtube.com/",
		"https://www.youtube.com/channel/UC1234567890",
		"://broken",
		"http://[::1",
		"https://example.com/videos/dQw4w9WgXcQ",
		"https://example.com/watch?v=dQw4w9WgXcQ",
		"https://notyoutube.com/embed/dQw4w9WgXcQ",
		"https://youtube.com.evil.example/watch?v=dQw4w9WgXcQ",
		"example.com/dQw4w9WgXcQ",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			got, ok := ResolveVideoID(input)
			assert.False(t, ok)
			assert.Empty(t, got)
		})
	}
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abcdefghijk", WatchURL("abcdefghijk"))

	id, ok := ResolveVideoID(WatchURL("abcdefghijk"))
	assert.True(t, ok)
	assert.Equal(t, "abcdefghijk", id)
}
