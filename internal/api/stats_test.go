package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/mathprepa/internal/model"
)

func TestGetStatsEmpty(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var stats statsResponse
	if code := newTestClient(t, ts).do(http.MethodGet, "/v1/stats", nil, &stats); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	if stats.Topics != 0 || stats.Exercises != 0 || stats.Posts != 0 || stats.Replies != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}

func TestGetStatsPopulated(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	topic := &model.Topic{ID: "alg", Name: "Algèbre"}
	if _, err := srv.store.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	for _, d := range []model.Difficulty{model.DifficultyEasy, model.DifficultyEasy, model.DifficultyHard} {
		ex := &model.Exercise{Title: "E", Content: "C", TopicID: topic.ID, Difficulty: d}
		if _, err := srv.store.CreateExercise(ctx, ex); err != nil {
			t.Fatalf("CreateExercise: %v", err)
		}
	}
	post := &model.Post{Title: "T", Content: "C", UserID: "u1"}
	if err := srv.store.CreatePost(ctx, post); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if err := srv.store.CreateReply(ctx, &model.Reply{Content: "R", UserID: "u2", PostID: post.ID}); err != nil {
		t.Fatalf("CreateReply: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	c := newTestClient(t, ts)

	// Mount a view so it is counted.
	c.do(http.MethodGet, "/v1/catalog", nil, nil)

	var stats statsResponse
	if code := c.do(http.MethodGet, "/v1/stats", nil, &stats); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	if stats.Topics != 1 {
		t.Errorf("topics = %d, want 1", stats.Topics)
	}
	if stats.Exercises != 3 {
		t.Errorf("exercises = %d, want 3", stats.Exercises)
	}
	if stats.ExercisesByDifficulty["facile"] != 2 {
		t.Errorf("by_difficulty[facile] = %d, want 2", stats.ExercisesByDifficulty["facile"])
	}
	if stats.ExercisesByTopic["alg"] != 3 {
		t.Errorf("by_topic[alg] = %d, want 3", stats.ExercisesByTopic["alg"])
	}
	if stats.Posts != 1 || stats.Replies != 1 {
		t.Errorf("posts, replies = %d, %d, want 1, 1", stats.Posts, stats.Replies)
	}
	if stats.ActiveViews != 1 {
		t.Errorf("active_views = %d, want 1", stats.ActiveViews)
	}
}
