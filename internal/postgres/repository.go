package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mkaveh/tagnotify/internal/domain"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	source_message_id BIGINT UNIQUE NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id BIGSERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS post_tags (
	post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (post_id, tag_id)
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id BIGINT NOT NULL,
	tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at, id);
CREATE INDEX IF NOT EXISTS idx_post_tags_tag ON post_tags (tag_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_tag ON subscriptions (tag_id);
`

// Repository implements domain.ArchiveRepository and
// domain.SubscriptionRepository using PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection and applies the schema. The caller should call Close when the
// repository is no longer needed.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SavePost upserts the post, links its tags and enforces the capacity bound
// in a single transaction, so readers never observe partial linkage and
// concurrent ingests cannot over- or under-evict.
func (r *Repository) SavePost(ctx context.Context, post *domain.Post, tags []string, maxPosts int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	postID, err := upsertPost(ctx, tx, post)
	if err != nil {
		return 0, err
	}
	if err := linkTags(ctx, tx, postID, tags); err != nil {
		return 0, err
	}
	if _, err := enforceCapacity(ctx, tx, maxPosts); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return postID, nil
}

// UpsertPost inserts or updates a post by source message id.
func (r *Repository) UpsertPost(ctx context.Context, post *domain.Post) (int64, error) {
	return upsertPost(ctx, r.db, post)
}

// LinkTags associates the named tags with the post, creating missing tags.
func (r *Repository) LinkTags(ctx context.Context, postID int64, tags []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := linkTags(ctx, tx, postID, tags); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EnforceCapacity deletes the oldest posts beyond maxPosts.
func (r *Repository) EnforceCapacity(ctx context.Context, maxPosts int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := enforceCapacity(ctx, tx, maxPosts)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return deleted, nil
}

// execer is the subset of *sql.DB and *sql.Tx the statement helpers need.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertPost(ctx context.Context, e execer, post *domain.Post) (int64, error) {
	var id int64
	err := e.QueryRowContext(ctx, `
		INSERT INTO posts (source_message_id, title, body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_message_id)
		DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body
		RETURNING id`,
		post.SourceMessageID, post.Title, post.Body, post.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert post %d: %w", post.SourceMessageID, err)
	}
	return id, nil
}

func linkTags(ctx context.Context, e execer, postID int64, tags []string) error {
	for _, tag := range tags {
		tagID, err := getOrCreateTag(ctx, e, tag)
		if err != nil {
			return err
		}
		_, err = e.ExecContext(ctx, `
			INSERT INTO post_tags (post_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			postID, tagID,
		)
		if err != nil {
			return fmt.Errorf("link post %d to tag %q: %w", postID, tag, err)
		}
	}
	return nil
}

// getOrCreateTag resolves a tag name to its id atomically. The no-op DO
// UPDATE makes RETURNING yield the id on the conflict path too, avoiding a
// select-then-insert race.
func getOrCreateTag(ctx context.Context, e execer, name string) (int64, error) {
	var id int64
	err := e.QueryRowContext(ctx, `
		INSERT INTO tags (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get or create tag %q: %w", name, err)
	}
	return id, nil
}

func enforceCapacity(ctx context.Context, e execer, maxPosts int) (int64, error) {
	res, err := e.ExecContext(ctx, `
		DELETE FROM posts WHERE id IN (
			SELECT id FROM posts
			ORDER BY created_at DESC, id DESC
			OFFSET $1
		)`, maxPosts,
	)
	if err != nil {
		return 0, fmt.Errorf("delete excess posts: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// TagsForPost returns the post's tag names sorted lexicographically.
func (r *Repository) TagsForPost(ctx context.Context, postID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id
		WHERE pt.post_id = $1
		ORDER BY t.name`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tags for post %d: %w", postID, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// FindByKeyword returns posts whose title contains the keyword,
// case-insensitively, newest first.
func (r *Repository) FindByKeyword(ctx context.Context, keyword string, limit int) ([]domain.PostSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_message_id, title, created_at
		FROM posts
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		keyword, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts by keyword %q: %w", keyword, err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// FindByTag returns posts carrying exactly the given tag, newest first.
func (r *Repository) FindByTag(ctx context.Context, tag string, limit int) ([]domain.PostSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.source_message_id, p.title, p.created_at
		FROM posts p
		JOIN post_tags pt ON pt.post_id = p.id
		JOIN tags t ON t.id = pt.tag_id
		WHERE t.name = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2`,
		tag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts by tag %q: %w", tag, err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// CountPosts returns the number of archived posts.
func (r *Repository) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

// CountTags returns the number of known tags.
func (r *Repository) CountTags(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&n)
	return n, err
}

// Toggle flips the user's subscription to the tag inside one transaction,
// lazily creating the tag.
func (r *Repository) Toggle(ctx context.Context, userID int64, tag string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	tagID, err := getOrCreateTag(ctx, tx, tag)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND tag_id = $2`,
		userID, tagID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}

	subscribed := false
	if removed, _ := res.RowsAffected(); removed == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscriptions (user_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			userID, tagID,
		)
		if err != nil {
			return false, fmt.Errorf("insert subscription: %w", err)
		}
		subscribed = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return subscribed, nil
}

// ListForUser returns the user's subscribed tag names, lexicographic.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN subscriptions s ON s.tag_id = t.id
		WHERE s.user_id = $1
		ORDER BY t.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ListAllTags returns every known tag name, lexicographic.
func (r *Repository) ListAllTags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query all tags: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Subscribers returns the ids of users subscribed to the tag. An unknown tag
// yields an empty result.
func (r *Repository) Subscribers(ctx context.Context, tag string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.user_id FROM subscriptions s
		JOIN tags t ON t.id = s.tag_id
		WHERE t.name = $1
		ORDER BY s.user_id`,
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers of %q: %w", tag, err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return users, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func scanSummaries(rows *sql.Rows) ([]domain.PostSummary, error) {
	var posts []domain.PostSummary
	for rows.Next() {
		var p domain.PostSummary
		if err := rows.Scan(&p.ID, &p.SourceMessageID, &p.Title, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
