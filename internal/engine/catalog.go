package engine

import (
	"context"
	"html/template"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/mathprepa/internal/model"
	"github.com/seantiz/mathprepa/internal/render"
)

// CatalogSource is the read side of the store used by the catalog.
type CatalogSource interface {
	ListTopics(ctx context.Context) ([]model.Topic, error)
	ListExercises(ctx context.Context) ([]model.Exercise, error)
}

// CatalogState is the view-local state of the catalog. The fields are
// independent: setting one never changes another.
type CatalogState struct {
	TopicID    string
	Difficulty model.Difficulty
	Visible    map[string]bool
}

// DifficultyOption is one entry of the difficulty selector.
type DifficultyOption struct {
	Value model.Difficulty `json:"value"`
	Label string           `json:"label"`
}

// ExerciseView is an exercise prepared for display.
type ExerciseView struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	TopicID         string           `json:"topic_id"`
	TopicName       string           `json:"topic_name,omitempty"`
	Difficulty      model.Difficulty `json:"difficulty"`
	ContentHTML     template.HTML    `json:"content_html"`
	SolutionVisible bool             `json:"solution_visible"`
	SolutionHTML    template.HTML    `json:"solution_html,omitempty"`
}

// CatalogView is a snapshot of the catalog as the user sees it.
type CatalogView struct {
	TopicFilter      string             `json:"topic_filter"`
	DifficultyFilter model.Difficulty   `json:"difficulty_filter"`
	Topics           []model.Topic      `json:"topics"`
	Difficulties     []DifficultyOption `json:"difficulties"`
	Exercises        []ExerciseView     `json:"exercises"`
}

// CatalogEngine holds one user's catalog: the loaded records, the two filter
// selectors and the solution-visibility map. It is safe for concurrent use.
type CatalogEngine struct {
	source   CatalogSource
	renderer render.Renderer
	logger   *slog.Logger

	mu        sync.Mutex
	topics    []model.Topic
	exercises []model.Exercise
	state     CatalogState
}

// NewCatalogEngine creates an empty catalog. Call Load to mount it.
func NewCatalogEngine(source CatalogSource, renderer render.Renderer, logger *slog.Logger) *CatalogEngine {
	return &CatalogEngine{
		source:   source,
		renderer: renderer,
		logger:   logger,
		state:    CatalogState{Visible: make(map[string]bool)},
	}
}

// Load fetches topics and exercises concurrently. Each list is replaced
// independently; a failed fetch leaves its list empty.
func (e *CatalogEngine) Load(ctx context.Context) {
	ctx, span := startSpan(ctx, "catalog.load")
	defer span.End()

	var g errgroup.Group
	g.Go(func() error {
		topics, err := e.source.ListTopics(ctx)
		if err != nil {
			e.fetchFailed(kindTopics, err)
			topics = nil
		}
		e.mu.Lock()
		e.topics = topics
		e.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		exercises, err := e.source.ListExercises(ctx)
		if err != nil {
			e.fetchFailed(kindExercises, err)
			exercises = nil
		}
		e.mu.Lock()
		e.exercises = exercises
		e.mu.Unlock()
		return nil
	})
	_ = g.Wait()

	e.mu.Lock()
	span.SetAttributes(
		attribute.Int("catalog.topics", len(e.topics)),
		attribute.Int("catalog.exercises", len(e.exercises)),
	)
	e.mu.Unlock()
}

func (e *CatalogEngine) fetchFailed(kind string, err error) {
	fetchFailuresTotal.WithLabelValues(kind).Inc()
	e.logger.Error("fetch failed", "kind", kind, "error", err)
}

// Topics returns the loaded topics in store order.
func (e *CatalogEngine) Topics() []model.Topic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Topic(nil), e.topics...)
}

// Exercises returns every loaded exercise in store order.
func (e *CatalogEngine) Exercises() []model.Exercise {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Exercise(nil), e.exercises...)
}

// Filter returns the loaded exercises matching topicID and difficulty. An
// empty argument matches everything.
func (e *CatalogEngine) Filter(topicID string, difficulty model.Difficulty) []model.Exercise {
	e.mu.Lock()
	defer e.mu.Unlock()
	return FilterExercises(e.exercises, topicID, difficulty)
}

// FilterExercises keeps, in order, the exercises whose topic equals topicID
// and whose difficulty equals difficulty. An empty criterion is not applied.
func FilterExercises(exercises []model.Exercise, topicID string, difficulty model.Difficulty) []model.Exercise {
	out := make([]model.Exercise, 0, len(exercises))
	for _, ex := range exercises {
		if topicID != "" && ex.TopicID != topicID {
			continue
		}
		if difficulty != "" && ex.Difficulty != difficulty {
			continue
		}
		out = append(out, ex)
	}
	return out
}

// SetTopicFilter selects the topic filter; "" clears it.
func (e *CatalogEngine) SetTopicFilter(topicID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.TopicID = topicID
}

// SetDifficultyFilter selects the difficulty filter; "" clears it.
func (e *CatalogEngine) SetDifficultyFilter(d model.Difficulty) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Difficulty = d
}

// ToggleSolution flips the solution visibility of one exercise and returns
// the new value.
func (e *CatalogEngine) ToggleSolution(exerciseID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := !e.state.Visible[exerciseID]
	e.state.Visible[exerciseID] = v
	return v
}

// SolutionVisible reports whether the solution of exerciseID is revealed.
func (e *CatalogEngine) SolutionVisible(exerciseID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Visible[exerciseID]
}

// State returns a copy of the view state.
func (e *CatalogEngine) State() CatalogState {
	e.mu.Lock()
	defer e.mu.Unlock()
	visible := make(map[string]bool, len(e.state.Visible))
	for k, v := range e.state.Visible {
		visible[k] = v
	}
	return CatalogState{TopicID: e.state.TopicID, Difficulty: e.state.Difficulty, Visible: visible}
}

// View applies the current filters and renders the matching exercises.
// Exercises whose topic is unknown get no topic name.
func (e *CatalogEngine) View() CatalogView {
	e.mu.Lock()
	topics := append([]model.Topic(nil), e.topics...)
	filtered := FilterExercises(e.exercises, e.state.TopicID, e.state.Difficulty)
	visible := make(map[string]bool, len(filtered))
	for _, ex := range filtered {
		visible[ex.ID] = e.state.Visible[ex.ID]
	}
	view := CatalogView{
		TopicFilter:      e.state.TopicID,
		DifficultyFilter: e.state.Difficulty,
	}
	e.mu.Unlock()

	names := make(map[string]string, len(topics))
	for _, t := range topics {
		names[t.ID] = t.Name
	}

	view.Topics = topics
	if view.Topics == nil {
		view.Topics = []model.Topic{}
	}
	view.Difficulties = make([]DifficultyOption, 0, len(model.Difficulties))
	for _, d := range model.Difficulties {
		view.Difficulties = append(view.Difficulties, DifficultyOption{Value: d, Label: d.Label()})
	}

	view.Exercises = make([]ExerciseView, 0, len(filtered))
	for _, ex := range filtered {
		ev := ExerciseView{
			ID:              ex.ID,
			Title:           ex.Title,
			TopicID:         ex.TopicID,
			TopicName:       names[ex.TopicID],
			Difficulty:      ex.Difficulty,
			ContentHTML:     e.renderer.Render(ex.Content),
			SolutionVisible: visible[ex.ID],
		}
		if ev.SolutionVisible {
			ev.SolutionHTML = e.renderer.Render(ex.Solution)
		}
		view.Exercises = append(view.Exercises, ev)
	}
	return view
}
