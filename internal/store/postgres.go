package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seantiz/mathprepa/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS topics (
    seq  BIGSERIAL,
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS exercises (
    seq        BIGSERIAL,
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    solution   TEXT NOT NULL,
    topic_id   TEXT NOT NULL,
    difficulty TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS forum_posts (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    user_id    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS forum_replies (
    id         TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    user_id    TEXT NOT NULL,
    post_id    TEXT NOT NULL REFERENCES forum_posts(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_forum_replies_post_id ON forum_replies(post_id, created_at);
CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// Compile-time interface satisfaction check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at connString, verifies the
// connection and runs migrations.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that a pooled connection is usable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ListTopics(ctx context.Context) ([]model.Topic, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM topics ORDER BY seq")
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

func (s *PostgresStore) ListExercises(ctx context.Context) ([]model.Exercise, error) {
	rows, err := s.pool.Query(ctx,
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
		var difficulty string
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Solution, &e.TopicID, &difficulty); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		e.Difficulty = model.Difficulty(difficulty)
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return exercises, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, t *model.Topic) (bool, error) {
	if t.ID == "" {
		t.ID = model.NewID()
	}
	tag, err := s.pool.Exec(ctx,
		"INSERT INTO topics (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		t.ID, t.Name,
	)
	if err != nil {
		return false, fmt.Errorf("insert topic: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CreateExercise(ctx context.Context, e *model.Exercise) (bool, error) {
	if e.ID == "" {
		e.ID = model.NewID()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO exercises (id, title, content, solution, topic_id, difficulty)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Title, e.Content, e.Solution, e.TopicID, string(e.Difficulty),
	)
	if err != nil {
		return false, fmt.Errorf("insert exercise: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.pool.Query(ctx,
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
		p.CreatedAt = p.CreatedAt.UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p := &model.Post{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, title, content, created_at, user_id FROM forum_posts WHERE id = $1", id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, p *model.Post) error {
	prepareInsert(&p.ID, &p.CreatedAt)
	_, err := s.pool.Exec(ctx,
		"INSERT INTO forum_posts (id, title, content, created_at, user_id) VALUES ($1, $2, $3, $4, $5)",
		p.ID, p.Title, p.Content, p.CreatedAt, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListReplies(ctx context.Context, postID string) ([]model.Reply, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, created_at, user_id, post_id
		FROM forum_replies WHERE post_id = $1 ORDER BY created_at ASC, id ASC`, postID,
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
		r.CreatedAt = r.CreatedAt.UTC()
		replies = append(replies, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return replies, nil
}

func (s *PostgresStore) CreateReply(ctx context.Context, r *model.Reply) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, "SELECT 1 FROM forum_posts WHERE id = $1", r.PostID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("check post: %w", err)
	}

	prepareInsert(&r.ID, &r.CreatedAt)
	if _, err := tx.Exec(ctx,
		"INSERT INTO forum_replies (id, content, created_at, user_id, post_id) VALUES ($1, $2, $3, $4, $5)",
		r.ID, r.Content, r.CreatedAt, r.UserID, r.PostID,
	); err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stats := newStats()
	err = tx.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM topics),
		(SELECT COUNT(*) FROM exercises),
		(SELECT COUNT(*) FROM forum_posts),
		(SELECT COUNT(*) FROM forum_replies)`,
	).Scan(&stats.Topics, &stats.Exercises, &stats.Posts, &stats.Replies)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	groups := []struct {
		query string
		dst   map[string]int
	}{
		{"SELECT difficulty, COUNT(*) FROM exercises GROUP BY difficulty", stats.ExercisesByDifficulty},
		{"SELECT topic_id, COUNT(*) FROM exercises GROUP BY topic_id", stats.ExercisesByTopic},
	}
	for _, g := range groups {
		rows, err := tx.Query(ctx, g.query)
		if err != nil {
			return nil, fmt.Errorf("group counts: %w", err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan group count: %w", err)
			}
			g.dst[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate group counts: %w", err)
		}
	}

	return stats, nil
}

func (s *PostgresStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM revoked_tokens WHERE expires_at <= NOW()"); err != nil {
		return fmt.Errorf("purge revoked tokens: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		"INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING",
		jti, expiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > NOW())", jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
