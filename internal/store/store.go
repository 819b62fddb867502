package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/mathprepa/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrPostNotFound is returned when a reply targets a post that does not exist.
	ErrPostNotFound = errors.New("post not found")
)

// Stats holds aggregate catalog and board counts.
type Stats struct {
	Topics                int            `json:"topics"`
	Exercises             int            `json:"exercises"`
	ExercisesByDifficulty map[string]int `json:"exercises_by_difficulty"`
	ExercisesByTopic      map[string]int `json:"exercises_by_topic"`
	Posts                 int            `json:"posts"`
	Replies               int            `json:"replies"`
}

// Store defines the persistence operations for catalog and board records.
//
// List operations return records in a store-defined order: topics and exercises
// in insertion order, posts newest first and replies oldest first. Timestamp
// ties are broken by id.
type Store interface {
	ListTopics(ctx context.Context) ([]model.Topic, error)
	ListExercises(ctx context.Context) ([]model.Exercise, error)
	// CreateTopic and CreateExercise are idempotent by id and report whether a
	// row was inserted.
	CreateTopic(ctx context.Context, t *model.Topic) (bool, error)
	CreateExercise(ctx context.Context, e *model.Exercise) (bool, error)

	ListPosts(ctx context.Context) ([]model.Post, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	// CreatePost and CreateReply assign ID and CreatedAt when they are unset.
	CreatePost(ctx context.Context, p *model.Post) error
	ListReplies(ctx context.Context, postID string) ([]model.Reply, error)
	CreateReply(ctx context.Context, r *model.Reply) error

	GetStats(ctx context.Context) (*Stats, error)

	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// prepareInsert fills the server-assigned fields of a new board record.
func prepareInsert(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = model.NewID()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	} else {
		*createdAt = createdAt.UTC()
	}
}

func newStats() *Stats {
	return &Stats{
		ExercisesByDifficulty: make(map[string]int),
		ExercisesByTopic:      make(map[string]int),
	}
}
