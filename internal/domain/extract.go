package domain

import "strings"

// Extract parses raw channel text into a structured post. Only text whose
// first non-empty line begins with the marker is a post; everything else
// returns ok == false and must be skipped without side effects.
//
// The title is the first line with the marker and surrounding whitespace
// stripped. The body is everything after that line, trimmed. Tags are all
// whitespace-delimited #-tokens of the whole text, kept verbatim in order of
// first appearance; a bare "#" is not a tag.
func Extract(text, marker string) (ExtractedPost, bool) {
	if text == "" || marker == "" {
		return ExtractedPost{}, false
	}

	lines := strings.Split(text, "\n")
	first := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = i
			break
		}
	}
	if first < 0 {
		return ExtractedPost{}, false
	}

	firstLine := strings.TrimSpace(lines[first])
	if !strings.HasPrefix(firstLine, marker) {
		return ExtractedPost{}, false
	}

	post := ExtractedPost{
		Title: strings.TrimSpace(strings.TrimPrefix(firstLine, marker)),
		Body:  strings.TrimSpace(strings.Join(lines[first+1:], "\n")),
	}

	for _, token := range strings.Fields(text) {
		if len(token) > 1 && strings.HasPrefix(token, "#") {
			post.Tags = append(post.Tags, token)
		}
	}

	return post, true
}
