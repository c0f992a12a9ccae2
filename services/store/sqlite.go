// Package store archives scanned posts in a local SQLite file. Every scan
// appends its rows; nothing is deduplicated across runs.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"sjsage522/feedscanner/internal/post"
	"sjsage522/feedscanner/logger"
	"sjsage522/feedscanner/pkg/errors"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	post_type TEXT,
	section TEXT,
	title TEXT,
	upvotes INTEGER,
	downvotes INTEGER,
	comment_count INTEGER,
	publish_time DATETIME,
	fetch_time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_post_id ON posts(post_id);
CREATE INDEX IF NOT EXISTS idx_posts_run_id ON posts(run_id);
`

// PostStore is a SQLite archive of scanned posts
type PostStore struct {
	db   *sql.DB
	path string
	log  *logger.Logger
}

// Open opens or creates the database at path
func Open(path string) (*PostStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errors.NewStorage("sqlite", "create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, errors.NewStorage("sqlite", "open "+path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.NewStorage("sqlite", "enable WAL mode", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.NewStorage("sqlite", "create tables", err)
	}

	return &PostStore{
		db:   db,
		path: path,
		log:  logger.ForStore().WithField("path", path),
	}, nil
}

// Close closes the database
func (s *PostStore) Close() error {
	return s.db.Close()
}

// Save appends p under runID
func (s *PostStore) Save(ctx context.Context, runID string, p *post.Post) error {
	var published any
	if !p.PublishTime.IsZero() {
		published = p.PublishTime.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (run_id, post_id, post_type, section, title, upvotes, downvotes, comment_count, publish_time, fetch_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, p.ID, p.Type, p.Section, p.Title, p.Upvotes, p.Downvotes, p.CommentCount, published, p.FetchTime.UTC())
	if err != nil {
		return errors.NewStorage("sqlite", "insert post "+p.ID, err)
	}
	s.log.Debug().Str("run_id", runID).Str("post_id", p.ID).Msg("Stored post")
	return nil
}

// Count returns the number of stored rows for postID, or all rows when
// postID is empty
func (s *PostStore) Count(ctx context.Context, postID string) (int, error) {
	query := "SELECT COUNT(*) FROM posts"
	var args []any
	if postID != "" {
		query += " WHERE post_id = ?"
		args = append(args, postID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.NewStorage("sqlite", "count posts", err)
	}
	return n, nil
}

// Latest returns the most recently stored row for postID
func (s *PostStore) Latest(ctx context.Context, postID string) (*post.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT post_id, post_type, section, title, upvotes, downvotes, comment_count, publish_time, fetch_time
		FROM posts WHERE post_id = ? ORDER BY id DESC LIMIT 1`, postID)

	var (
		p         post.Post
		published sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Type, &p.Section, &p.Title, &p.Upvotes, &p.Downvotes, &p.CommentCount, &published, &p.FetchTime)
	if err == sql.ErrNoRows {
		return nil, errors.NewStorage("sqlite", "no stored post "+postID, err)
	}
	if err != nil {
		return nil, errors.NewStorage("sqlite", "read post "+postID, err)
	}
	if published.Valid {
		p.PublishTime = published.Time
	}
	return &p, nil
}
