package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/mathprepa/internal/model"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS topics (
    seq  INTEGER PRIMARY KEY AUTOINCREMENT,
    id   TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS exercises (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    solution   TEXT NOT NULL,
    topic_id   TEXT NOT NULL,
    difficulty TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS forum_posts (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    user_id    TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS forum_replies (
    id         TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    user_id    TEXT NOT NULL,
    post_id    TEXT NOT NULL REFERENCES forum_posts(id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_forum_replies_post_id ON forum_replies(post_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
)`,
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListTopics returns all topics in insertion order.
func (s *SQLiteStore) ListTopics(ctx context.Context) ([]model.Topic, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM topics ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// ListExercises returns all exercises in insertion order.
func (s *SQLiteStore) ListExercises(ctx context.Context) ([]model.Exercise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, solution, topic_id, difficulty
		FROM exercises ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var exercises []model.Exercise
	for rows.Next() {
		var e model.Exercise
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Solution, &e.TopicID, &e.Difficulty); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return exercises, nil
}

// CreateTopic inserts a topic unless one with the same id exists.
func (s *SQLiteStore) CreateTopic(ctx context.Context, t *model.Topic) (bool, error) {
	if t.ID == "" {
		t.ID = model.NewID()
	}
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO topics (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
		t.ID, t.Name,
	)
	if err != nil {
		return false, fmt.Errorf("insert topic: %w", err)
	}
	return insertedOne(result)
}

// CreateExercise inserts an exercise unless one with the same id exists.
func (s *SQLiteStore) CreateExercise(ctx context.Context, e *model.Exercise) (bool, error) {
	if e.ID == "" {
		e.ID = model.NewID()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO exercises (id, title, content, solution, topic_id, difficulty)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Title, e.Content, e.Solution, e.TopicID, string(e.Difficulty),
	)
	if err != nil {
		return false, fmt.Errorf("insert exercise: %w", err)
	}
	return insertedOne(result)
}

// ListPosts returns all posts ordered by created_at DESC, id DESC.
func (s *SQLiteStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, created_at, user_id
		FROM forum_posts ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UserID); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// GetPost retrieves a post by ID.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p := &model.Post{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, created_at, user_id FROM forum_posts WHERE id = ?", id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// CreatePost inserts a new post.
func (s *SQLiteStore) CreatePost(ctx context.Context, p *model.Post) error {
	prepareInsert(&p.ID, &p.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO forum_posts (id, title, content, created_at, user_id) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Title, p.Content, p.CreatedAt, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// ListReplies returns the replies of one post ordered by created_at ASC, id ASC.
func (s *SQLiteStore) ListReplies(ctx context.Context, postID string) ([]model.Reply, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, created_at, user_id, post_id
		FROM forum_replies WHERE post_id = ? ORDER BY created_at ASC, id ASC`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	var replies []model.Reply
	for rows.Next() {
		var r model.Reply
		if err := rows.Scan(&r.ID, &r.Content, &r.CreatedAt, &r.UserID, &r.PostID); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		replies = append(replies, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return replies, nil
}

// CreateReply inserts a reply after checking that its post exists.
func (s *SQLiteStore) CreateReply(ctx context.Context, r *model.Reply) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM forum_posts WHERE id = ?", r.PostID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("check post: %w", err)
	}

	prepareInsert(&r.ID, &r.CreatedAt)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO forum_replies (id, content, created_at, user_id, post_id) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Content, r.CreatedAt, r.UserID, r.PostID,
	); err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reply: %w", err)
	}
	return nil
}

// GetStats computes catalog and board counts in a single read transaction.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := newStats()
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM topics", &stats.Topics},
		{"SELECT COUNT(*) FROM exercises", &stats.Exercises},
		{"SELECT COUNT(*) FROM forum_posts", &stats.Posts},
		{"SELECT COUNT(*) FROM forum_replies", &stats.Replies},
	}
	for _, c := range counts {
		if err := tx.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	if err := scanGroupCounts(ctx, tx,
		"SELECT difficulty, COUNT(*) FROM exercises GROUP BY difficulty",
		stats.ExercisesByDifficulty); err != nil {
		return nil, fmt.Errorf("count by difficulty: %w", err)
	}
	if err := scanGroupCounts(ctx, tx,
		"SELECT topic_id, COUNT(*) FROM exercises GROUP BY topic_id",
		stats.ExercisesByTopic); err != nil {
		return nil, fmt.Errorf("count by topic: %w", err)
	}

	return stats, nil
}

// RevokeToken records a token id as revoked until expiresAt. Expired entries
// are purged on the way.
func (s *SQLiteStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at <= ?", time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("purge revoked tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?) ON CONFLICT(jti) DO NOTHING",
		jti, expiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether jti has been revoked and not yet expired.
func (s *SQLiteStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM revoked_tokens WHERE jti = ? AND expires_at > ?",
		jti, time.Now().UTC(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanGroupCounts(ctx context.Context, q queryer, query string, dst map[string]int) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

func insertedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}
