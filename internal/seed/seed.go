// Package seed imports catalog topics and exercises from YAML files.
//
// A catalog file lists topics and exercises with stable ids. Importing is
// idempotent: records whose id already exists are skipped.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/mathprepa/internal/model"
)

// ErrInvalidCatalog is returned when a catalog file fails to parse or validate.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the content of a catalog file.
type Catalog struct {
	Topics    []model.Topic    `yaml:"topics"`
	Exercises []model.Exercise `yaml:"exercises"`
}

// Writer is the write side of the store used by the import.
type Writer interface {
	ListTopics(ctx context.Context) ([]model.Topic, error)
	CreateTopic(ctx context.Context, t *model.Topic) (bool, error)
	CreateExercise(ctx context.Context, e *model.Exercise) (bool, error)
}

// Result summarizes an import.
type Result struct {
	TopicsCreated    int      `json:"topics_created"`
	TopicsSkipped    int      `json:"topics_skipped"`
	ExercisesCreated int      `json:"exercises_created"`
	ExercisesSkipped int      `json:"exercises_skipped"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Parse decodes and validates a catalog. Text fields are NFC-normalized.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	seen := make(map[string]bool)
	for i := range c.Topics {
		t := &c.Topics[i]
		t.ID = model.NormalizeText(t.ID)
		t.Name = model.NormalizeText(t.Name)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: topic %d: %v", ErrInvalidCatalog, i, err)
		}
		if seen["topic:"+t.ID] {
			return nil, fmt.Errorf("%w: duplicate topic id %q", ErrInvalidCatalog, t.ID)
		}
		seen["topic:"+t.ID] = true
	}
	for i := range c.Exercises {
		e := &c.Exercises[i]
		e.ID = model.NormalizeText(e.ID)
		e.Title = model.NormalizeText(e.Title)
		e.Content = model.NormalizeText(e.Content)
		e.Solution = model.NormalizeText(e.Solution)
		e.TopicID = model.NormalizeText(e.TopicID)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: exercise %d: %v", ErrInvalidCatalog, i, err)
		}
		if seen["exercise:"+e.ID] {
			return nil, fmt.Errorf("%w: duplicate exercise id %q", ErrInvalidCatalog, e.ID)
		}
		seen["exercise:"+e.ID] = true
	}
	return &c, nil
}

// ParseFile reads and parses a catalog file.
func ParseFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Importer writes parsed catalogs to a store.
type Importer struct {
	w      Writer
	logger *slog.Logger
}

// NewImporter creates an importer writing to w.
func NewImporter(w Writer, logger *slog.Logger) *Importer {
	return &Importer{w: w, logger: logger}
}

// Import writes topics first, then exercises. Exercises referencing a topic
// that is neither in the catalog nor in the store are still imported, with
// a warning.
func (im *Importer) Import(ctx context.Context, c *Catalog) (*Result, error) {
	existing, err := im.w.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	known := make(map[string]bool, len(existing)+len(c.Topics))
	for _, t := range existing {
		known[t.ID] = true
	}

	res := &Result{}
	for i := range c.Topics {
		t := c.Topics[i]
		created, err := im.w.CreateTopic(ctx, &t)
		if err != nil {
			return res, fmt.Errorf("create topic %s: %w", t.ID, err)
		}
		if created {
			res.TopicsCreated++
		} else {
			res.TopicsSkipped++
		}
		known[t.ID] = true
	}

	for i := range c.Exercises {
		e := c.Exercises[i]
		if !known[e.TopicID] {
			msg := fmt.Sprintf("exercise %s references unknown topic %s", e.ID, e.TopicID)
			res.Warnings = append(res.Warnings, msg)
			im.logger.Warn("unknown topic", "exercise_id", e.ID, "topic_id", e.TopicID)
		}
		created, err := im.w.CreateExercise(ctx, &e)
		if err != nil {
			return res, fmt.Errorf("create exercise %s: %w", e.ID, err)
		}
		if created {
			res.ExercisesCreated++
		} else {
			res.ExercisesSkipped++
		}
	}

	im.logger.Info("catalog imported",
		"topics_created", res.TopicsCreated,
		"topics_skipped", res.TopicsSkipped,
		"exercises_created", res.ExercisesCreated,
		"exercises_skipped", res.ExercisesSkipped,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// ImportFile parses path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	c, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, c)
}
