package domain

import "time"

// Post represents one archived channel post.
type Post struct {
	// ID is the surrogate key assigned by the archive store.
	ID int64

	// SourceMessageID is the message id assigned by the messaging gateway
	// (the channel message number). Unique; re-ingesting the same id updates
	// the existing row instead of creating a new one.
	SourceMessageID int64

	// Title is the first line of the source text with the marker stripped.
	Title string

	// Body is the remaining text.
	Body string

	// CreatedAt is set once at insertion and is the sole ordering and
	// eviction key.
	CreatedAt time.Time
}

// PostSummary is a search hit: enough to reference and present a post
// without carrying its full body.
type PostSummary struct {
	ID              int64
	SourceMessageID int64
	Title           string
	CreatedAt       time.Time
}

// SearchResult pairs a post summary with the post's full tag set for
// presentation.
type SearchResult struct {
	PostSummary
	Tags []string
}

// ExtractedPost is the output of the tag extractor: a structured view of a
// channel message that passed the marker filter.
type ExtractedPost struct {
	Title string
	Body  string

	// Tags holds every #-token of the source text in order of first
	// appearance, verbatim and not deduplicated.
	Tags []string
}
