package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeArchive struct {
	saveErr   error
	saved     []savedPost
	tagsByID  map[int64][]string
	summaries []PostSummary

	lastLimit int
}

type savedPost struct {
	post     Post
	tags     []string
	maxPosts int
}

func (f *fakeArchive) SavePost(_ context.Context, post *Post, tags []string, maxPosts int) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, savedPost{post: *post, tags: tags, maxPosts: maxPosts})
	return int64(len(f.saved)), nil
}

func (f *fakeArchive) UpsertPost(_ context.Context, post *Post) (int64, error) { return 1, nil }
func (f *fakeArchive) LinkTags(_ context.Context, _ int64, _ []string) error { return nil }
func (f *fakeArchive) EnforceCapacity(_ context.Context, _ int) (int64, error) { return 0, nil }

func (f *fakeArchive) TagsForPost(_ context.Context, postID int64) ([]string, error) {
	return f.tagsByID[postID], nil
}

func (f *fakeArchive) FindByKeyword(_ context.Context, _ string, limit int) ([]PostSummary, error) {
	f.lastLimit = limit
	if limit < len(f.summaries) {
		return f.summaries[:limit], nil
	}
	return f.summaries, nil
}

func (f *fakeArchive) FindByTag(_ context.Context, _ string, limit int) ([]PostSummary, error) {
	f.lastLimit = limit
	return f.summaries, nil
}

func (f *fakeArchive) CountPosts(_ context.Context) (int64, error) { return int64(len(f.saved)), nil }
func (f *fakeArchive) CountTags(_ context.Context) (int64, error) { return 0, nil }

type fakeSubs struct {
	byTag      map[string][]int64
	subscribed map[string]bool
}

func (f *fakeSubs) Toggle(_ context.Context, _ int64, tag string) (bool, error) {
	if f.subscribed == nil {
		f.subscribed = make(map[string]bool)
	}
	f.subscribed[tag] = !f.subscribed[tag]
	return f.subscribed[tag], nil
}

func (f *fakeSubs) ListForUser(_ context.Context, _ int64) ([]string, error) { return nil, nil }
func (f *fakeSubs) ListAllTags(_ context.Context) ([]string, error) { return nil, nil }

func (f *fakeSubs) Subscribers(_ context.Context, tag string) ([]int64, error) {
	return f.byTag[tag], nil
}

type fakeGateway struct {
	mu        sync.Mutex
	failFor   map[int64]error
	delivered []int64
	fallbacks []int64
}

func (f *fakeGateway) Deliver(_ context.Context, userID int64, _ int64, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[userID]; err != nil {
		return err
	}
	f.delivered = append(f.delivered, userID)
	return nil
}

func (f *fakeGateway) SendFallbackNotice(_ context.Context, userID int64, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, userID)
	return nil
}

func newTestService(t *testing.T, archive *fakeArchive, subs *fakeSubs, gw *fakeGateway) *Service {
	t.Helper()
	svc, err := NewService(archive, subs, gw, DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIngestSkipsNonPosts(t *testing.T) {
	archive := &fakeArchive{}
	gw := &fakeGateway{}
	svc := newTestService(t, archive, &fakeSubs{}, gw)

	ingested, err := svc.IngestChannelPost(context.Background(), 1, "just a chat message")
	if err != nil {
		t.Fatalf("IngestChannelPost: %v", err)
	}
	if ingested {
		t.Error("non-post text was ingested")
	}
	if len(archive.saved) != 0 {
		t.Errorf("archive touched for skipped message: %+v", archive.saved)
	}
	if len(gw.delivered) != 0 {
		t.Errorf("deliveries for skipped message: %v", gw.delivered)
	}
}

func TestIngestPersistsBeforeFanOut(t *testing.T) {
	archive := &fakeArchive{saveErr: errors.New("db down")}
	gw := &fakeGateway{}
	subs := &fakeSubs{byTag: map[string][]int64{"#a": {1, 2}}}
	svc := newTestService(t, archive, subs, gw)

	_, err := svc.IngestChannelPost(context.Background(), 7, "📌 T\n#a")
	if err == nil {
		t.Fatal("expected error from failed persist")
	}
	if len(gw.delivered)+len(gw.fallbacks) != 0 {
		t.Errorf("fan-out ran despite persist failure: delivered=%v fallbacks=%v", gw.delivered, gw.fallbacks)
	}
}

func TestIngestDedupsFanOut(t *testing.T) {
	archive := &fakeArchive{}
	gw := &fakeGateway{}
	subs := &fakeSubs{byTag: map[string][]int64{
		"#a": {1, 2},
		"#b": {2, 3},
	}}
	svc := newTestService(t, archive, subs, gw)

	ingested, err := svc.IngestChannelPost(context.Background(), 42, "📌 T\nbody\n#a #b #a")
	if err != nil {
		t.Fatalf("IngestChannelPost: %v", err)
	}
	if !ingested {
		t.Fatal("post was not ingested")
	}

	sort.Slice(gw.delivered, func(i, j int) bool { return gw.delivered[i] < gw.delivered[j] })
	if diff := cmp.Diff([]int64{1, 2, 3}, gw.delivered); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestIsolatesDeliveryFailures(t *testing.T) {
	archive := &fakeArchive{}
	gw := &fakeGateway{failFor: map[int64]error{2: errors.New("blocked by user")}}
	subs := &fakeSubs{byTag: map[string][]int64{"#a": {1, 2, 3}}}
	svc := newTestService(t, archive, subs, gw)

	ingested, err := svc.IngestChannelPost(context.Background(), 9, "📌 T\n#a")
	if err != nil {
		t.Fatalf("IngestChannelPost: %v", err)
	}
	if !ingested {
		t.Fatal("post was not ingested")
	}

	sort.Slice(gw.delivered, func(i, j int) bool { return gw.delivered[i] < gw.delivered[j] })
	if diff := cmp.Diff([]int64{1, 3}, gw.delivered); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2}, gw.fallbacks); diff != "" {
		t.Errorf("fallbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestWithoutTagsStoresAndSkipsFanOut(t *testing.T) {
	archive := &fakeArchive{}
	gw := &fakeGateway{}
	svc := newTestService(t, archive, &fakeSubs{}, gw)

	ingested, err := svc.IngestChannelPost(context.Background(), 5, "📌 Untagged\nbody only")
	if err != nil {
		t.Fatalf("IngestChannelPost: %v", err)
	}
	if !ingested {
		t.Fatal("post was not ingested")
	}
	if len(archive.saved) != 1 {
		t.Fatalf("saved %d posts, want 1", len(archive.saved))
	}
	if got := archive.saved[0].tags; len(got) != 0 {
		t.Errorf("saved tags = %v, want none", got)
	}
	if len(gw.delivered) != 0 {
		t.Errorf("deliveries without subscribers: %v", gw.delivered)
	}
}

func TestSearchLimitClamp(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero means default", 0, 5},
		{"negative means default", -3, 5},
		{"in range passes through", 7, 7},
		{"above max clamps down", 1000, 50},
		{"at min passes through", 1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			archive := &fakeArchive{}
			svc := newTestService(t, archive, &fakeSubs{}, &fakeGateway{})

			if _, err := svc.SearchKeyword(context.Background(), "x", tc.limit); err != nil {
				t.Fatalf("SearchKeyword: %v", err)
			}
			if archive.lastLimit != tc.want {
				t.Errorf("effective limit = %d, want %d", archive.lastLimit, tc.want)
			}
		})
	}
}

func TestSearchAttachesTags(t *testing.T) {
	now := time.Now().UTC()
	archive := &fakeArchive{
		summaries: []PostSummary{
			{ID: 1, SourceMessageID: 11, Title: "first", CreatedAt: now},
			{ID: 2, SourceMessageID: 12, Title: "second", CreatedAt: now},
		},
		tagsByID: map[int64][]string{
			1: {"#a", "#b"},
		},
	}
	svc := newTestService(t, archive, &fakeSubs{}, &fakeGateway{})

	results, err := svc.SearchTag(context.Background(), "#a", 10)
	if err != nil {
		t.Fatalf("SearchTag: %v", err)
	}

	want := []SearchResult{
		{PostSummary: archive.summaries[0], Tags: []string{"#a", "#b"}},
		{PostSummary: archive.summaries[1]},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleSubscriptionRoundTrips(t *testing.T) {
	subs := &fakeSubs{}
	svc := newTestService(t, &fakeArchive{}, subs, &fakeGateway{})

	on, err := svc.ToggleSubscription(context.Background(), 1, "#news")
	if err != nil {
		t.Fatalf("ToggleSubscription: %v", err)
	}
	if !on {
		t.Error("first toggle should subscribe")
	}

	off, err := svc.ToggleSubscription(context.Background(), 1, "#news")
	if err != nil {
		t.Fatalf("ToggleSubscription: %v", err)
	}
	if off {
		t.Error("second toggle should unsubscribe")
	}
}

func TestNewServiceRejectsBadOptions(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"zero capacity", Options{MaxPosts: 0, MinSearchLimit: 1, MaxSearchLimit: 50, TitleMarker: "📌"}},
		{"missing marker", Options{MaxPosts: 10, MinSearchLimit: 1, MaxSearchLimit: 50}},
		{"inverted limit range", Options{MaxPosts: 10, MinSearchLimit: 10, MaxSearchLimit: 5, TitleMarker: "📌"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewService(&fakeArchive{}, &fakeSubs{}, &fakeGateway{}, tc.opts, testLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
