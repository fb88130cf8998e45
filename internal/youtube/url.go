package youtube

import "regexp"

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([^&\n?#/]+)`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([^&\n?#/]+)`),
}

// ExtractVideoID pulls the video identifier out of the common YouTube URL
// shapes (watch, short link, embed, shorts). It returns the empty string
// when the URL does not look like a YouTube video link.
func ExtractVideoID(url string) string {
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(url); len(match) > 1 {
			return match[1]
		}
	}
	return ""
}
