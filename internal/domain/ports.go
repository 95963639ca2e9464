package domain

import (
	"context"
	"time"
)

// ArchiveRepository defines persistence operations for posts, tags and their
// associations. Implementations must make every mutation atomic: concurrent
// ingests of the same source message id must resolve to a single surviving
// row without surfacing a duplicate-key error.
type ArchiveRepository interface {
	// SavePost runs the whole persist step in one transaction: upsert the
	// post by source message id (overwriting title and body on conflict,
	// keeping created_at), link the given tags (get-or-create, ignoring
	// pairs already linked), and evict the oldest posts beyond maxPosts.
	// Returns the post's surrogate id.
	SavePost(ctx context.Context, post *Post, tags []string, maxPosts int) (int64, error)

	// UpsertPost inserts or updates a post by its source message id and
	// returns the surrogate id. On conflict the title and body are
	// overwritten; created_at is kept from the first insert.
	UpsertPost(ctx context.Context, post *Post) (int64, error)

	// LinkTags resolves each tag name (creating missing ones) and associates
	// them with the post. Already-linked pairs are ignored.
	LinkTags(ctx context.Context, postID int64, tags []string) error

	// EnforceCapacity deletes the oldest posts beyond maxPosts, ordered by
	// created_at then id ascending. Associations cascade. Returns the number
	// of posts deleted.
	EnforceCapacity(ctx context.Context, maxPosts int) (int64, error)

	// TagsForPost returns the post's tag names sorted lexicographically.
	TagsForPost(ctx context.Context, postID int64) ([]string, error)

	// FindByKeyword returns up to limit posts whose title contains the
	// keyword, case-insensitively, newest first.
	FindByKeyword(ctx context.Context, keyword string, limit int) ([]PostSummary, error)

	// FindByTag returns up to limit posts carrying exactly the given tag,
	// newest first.
	FindByTag(ctx context.Context, tag string, limit int) ([]PostSummary, error)

	// CountPosts returns the number of archived posts.
	CountPosts(ctx context.Context) (int64, error)

	// CountTags returns the number of known tags.
	CountTags(ctx context.Context) (int64, error)
}

// SubscriptionRepository defines persistence operations for user→tag
// subscriptions. It shares tag identity with the archive: both resolve tag
// names through the same get-or-create rows.
type SubscriptionRepository interface {
	// Toggle flips the subscription of user to tag, creating the tag if it
	// does not exist yet. Returns true if the user is subscribed after the
	// call.
	Toggle(ctx context.Context, userID int64, tag string) (bool, error)

	// ListForUser returns the user's subscribed tag names, lexicographic.
	ListForUser(ctx context.Context, userID int64) ([]string, error)

	// ListAllTags returns every known tag name, lexicographic.
	ListAllTags(ctx context.Context) ([]string, error)

	// Subscribers returns the ids of all users subscribed to the tag. An
	// unknown tag yields an empty slice, not an error.
	Subscribers(ctx context.Context, tag string) ([]int64, error)
}

// Gateway is the messaging side the core delivers through. Implementations
// live at the edge; the core never touches transport APIs directly.
type Gateway interface {
	// Deliver sends the referenced channel post to the user, decorated with
	// its tag list.
	Deliver(ctx context.Context, userID int64, sourceMessageID int64, tags []string) error

	// SendFallbackNotice sends a plain degraded notice (e.g. a link instead
	// of a full copy) when Deliver fails.
	SendFallbackNotice(ctx context.Context, userID int64, sourceMessageID int64) error
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
