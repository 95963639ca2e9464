package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkaveh/tagnotify/internal/domain"
	"github.com/mkaveh/tagnotify/internal/sqlite"
)

type noopGateway struct{}

func (noopGateway) Deliver(context.Context, int64, int64, []string) error { return nil }
func (noopGateway) SendFallbackNotice(context.Context, int64, int64) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := sqlite.NewRepository(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := domain.NewService(repo, repo, noopGateway{}, domain.DefaultOptions(), logger)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx := context.Background()
	post := &domain.Post{SourceMessageID: 1, Title: "seeded", CreatedAt: time.Now().UTC()}
	if _, err := repo.SavePost(ctx, post, []string{"#a", "#b"}, 1000); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	return NewServer(":0", service, logger)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Posts    int64 `json:"posts"`
		Tags     int64 `json:"tags"`
		MaxPosts int   `json:"max_posts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Posts != 1 || body.Tags != 2 {
		t.Errorf("posts/tags = %d/%d, want 1/2", body.Posts, body.Tags)
	}
	if body.MaxPosts != 1000 {
		t.Errorf("max_posts = %d, want 1000", body.MaxPosts)
	}
}
