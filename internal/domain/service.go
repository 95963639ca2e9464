package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Options carries the tunable behavior of the core service.
type Options struct {
	// MaxPosts is the archive capacity; the oldest posts beyond it are
	// evicted on every ingest.
	MaxPosts int

	// DefaultSearchLimit is used when a search request carries no limit.
	DefaultSearchLimit int

	// MinSearchLimit and MaxSearchLimit clamp every requested limit.
	MinSearchLimit int
	MaxSearchLimit int

	// TitleMarker is the prefix a first line must carry for the message to
	// count as a structured post.
	TitleMarker string
}

// DefaultOptions returns the options the original deployment ran with.
func DefaultOptions() Options {
	return Options{
		MaxPosts:           1000,
		DefaultSearchLimit: 5,
		MinSearchLimit:     1,
		MaxSearchLimit:     50,
		TitleMarker:        "📌",
	}
}

// Service is the core domain service. It owns ingestion of channel posts,
// tag fan-out to subscribers, archive search and subscription management.
type Service struct {
	archive ArchiveRepository
	subs    SubscriptionRepository
	gateway Gateway
	opts    Options
	logger  *slog.Logger
	now     Clock
}

// NewService creates a Service. A zero MaxPosts or marker is rejected since
// both would silently disable ingestion.
func NewService(archive ArchiveRepository, subs SubscriptionRepository, gateway Gateway, opts Options, logger *slog.Logger) (*Service, error) {
	if opts.MaxPosts <= 0 {
		return nil, fmt.Errorf("max posts must be positive, got %d", opts.MaxPosts)
	}
	if opts.TitleMarker == "" {
		return nil, fmt.Errorf("title marker is required")
	}
	if opts.MinSearchLimit <= 0 || opts.MaxSearchLimit < opts.MinSearchLimit {
		return nil, fmt.Errorf("invalid search limit range [%d, %d]", opts.MinSearchLimit, opts.MaxSearchLimit)
	}
	if opts.DefaultSearchLimit <= 0 {
		opts.DefaultSearchLimit = 5
	}
	return &Service{
		archive: archive,
		subs:    subs,
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// IngestChannelPost runs the full pipeline for one inbound channel message:
// filter, persist (one transaction), fan out. Non-post text is skipped
// silently and reported as ingested == false. A persistence failure aborts
// before any delivery; a delivery failure never aborts the rest of the
// fan-out and never unwinds the persisted post.
func (s *Service) IngestChannelPost(ctx context.Context, sourceMessageID int64, text string) (ingested bool, err error) {
	extracted, ok := Extract(text, s.opts.TitleMarker)
	if !ok {
		return false, nil
	}

	post := &Post{
		SourceMessageID: sourceMessageID,
		Title:           extracted.Title,
		Body:            extracted.Body,
		CreatedAt:       s.now().UTC(),
	}
	postID, err := s.archive.SavePost(ctx, post, extracted.Tags, s.opts.MaxPosts)
	if err != nil {
		return false, fmt.Errorf("save post %d: %w", sourceMessageID, err)
	}

	s.logger.Info("post ingested",
		"post_id", postID,
		"source_message_id", sourceMessageID,
		"title", post.Title,
		"tags", extracted.Tags,
	)

	s.fanOut(ctx, sourceMessageID, extracted.Tags)
	return true, nil
}

// fanOut delivers the post to every subscriber of any of its tags, exactly
// once per user. Deliveries run concurrently and fail independently.
func (s *Service) fanOut(ctx context.Context, sourceMessageID int64, tags []string) {
	targets := make(map[int64]struct{})
	for _, tag := range dedup(tags) {
		users, err := s.subs.Subscribers(ctx, tag)
		if err != nil {
			s.logger.Error("subscriber lookup failed", "tag", tag, "error", err)
			continue
		}
		for _, u := range users {
			targets[u] = struct{}{}
		}
	}
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for userID := range targets {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			s.deliverTo(ctx, userID, sourceMessageID, tags)
		}(userID)
	}
	wg.Wait()

	s.logger.Info("fan-out complete", "source_message_id", sourceMessageID, "subscribers", len(targets))
}

// deliverTo attempts one delivery, degrading to a fallback notice. Both
// failing is terminal for this subscriber: logged, never retried.
func (s *Service) deliverTo(ctx context.Context, userID, sourceMessageID int64, tags []string) {
	err := s.gateway.Deliver(ctx, userID, sourceMessageID, tags)
	if err == nil {
		return
	}
	s.logger.Warn("delivery failed, sending fallback", "user_id", userID, "source_message_id", sourceMessageID, "error", err)
	if err := s.gateway.SendFallbackNotice(ctx, userID, sourceMessageID); err != nil {
		s.logger.Error("fallback notice failed, dropping", "user_id", userID, "source_message_id", sourceMessageID, "error", err)
	}
}

// SearchKeyword returns posts whose title contains the keyword, newest
// first, with each hit's tag set resolved for presentation. limit <= 0 means
// the configured default; any value is clamped into the configured range.
func (s *Service) SearchKeyword(ctx context.Context, keyword string, limit int) ([]SearchResult, error) {
	summaries, err := s.archive.FindByKeyword(ctx, keyword, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("keyword search %q: %w", keyword, err)
	}
	return s.attachTags(ctx, summaries)
}

// SearchTag returns posts carrying exactly the given tag, newest first.
func (s *Service) SearchTag(ctx context.Context, tag string, limit int) ([]SearchResult, error) {
	summaries, err := s.archive.FindByTag(ctx, tag, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("tag search %q: %w", tag, err)
	}
	return s.attachTags(ctx, summaries)
}

func (s *Service) attachTags(ctx context.Context, summaries []PostSummary) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(summaries))
	for _, sum := range summaries {
		tags, err := s.archive.TagsForPost(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("tags for post %d: %w", sum.ID, err)
		}
		results = append(results, SearchResult{PostSummary: sum, Tags: tags})
	}
	return results, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.opts.DefaultSearchLimit
	}
	if limit < s.opts.MinSearchLimit {
		return s.opts.MinSearchLimit
	}
	if limit > s.opts.MaxSearchLimit {
		return s.opts.MaxSearchLimit
	}
	return limit
}

// ToggleSubscription flips the user's subscription to the tag, lazily
// creating the tag. Returns true if the user is subscribed afterwards.
func (s *Service) ToggleSubscription(ctx context.Context, userID int64, tag string) (bool, error) {
	subscribed, err := s.subs.Toggle(ctx, userID, tag)
	if err != nil {
		return false, fmt.Errorf("toggle subscription user=%d tag=%q: %w", userID, tag, err)
	}
	s.logger.Info("subscription toggled", "user_id", userID, "tag", tag, "subscribed", subscribed)
	return subscribed, nil
}

// Subscriptions returns the user's subscribed tags, lexicographic.
func (s *Service) Subscriptions(ctx context.Context, userID int64) ([]string, error) {
	tags, err := s.subs.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions user=%d: %w", userID, err)
	}
	return tags, nil
}

// AllTags returns the universe of known tags, lexicographic. It backs the
// subscription toggle menu.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	tags, err := s.subs.ListAllTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all tags: %w", err)
	}
	return tags, nil
}

// Stats reports archive counters for the ops surface.
func (s *Service) Stats(ctx context.Context) (posts, tags int64, err error) {
	if posts, err = s.archive.CountPosts(ctx); err != nil {
		return 0, 0, fmt.Errorf("count posts: %w", err)
	}
	if tags, err = s.archive.CountTags(ctx); err != nil {
		return 0, 0, fmt.Errorf("count tags: %w", err)
	}
	return posts, tags, nil
}

// MaxPosts exposes the configured capacity for the ops surface.
func (s *Service) MaxPosts() int { return s.opts.MaxPosts }

func dedup(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
