package model

// Difficulty is the coarse rating attached to an exercise.
type Difficulty string

// Difficulty constants.
const (
	DifficultyEasy   Difficulty = "facile"
	DifficultyMedium Difficulty = "moyen"
	DifficultyHard   Difficulty = "difficile"
)

// Difficulties lists every difficulty in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

var difficultyLabels = map[Difficulty]string{
	DifficultyEasy:   "Facile",
	DifficultyMedium: "Moyen",
	DifficultyHard:   "Difficile",
}

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	_, ok := difficultyLabels[d]
	return ok
}

// Label returns the human-readable label, or the raw value for unknown difficulties.
func (d Difficulty) Label() string {
	if l, ok := difficultyLabels[d]; ok {
		return l
	}
	return string(d)
}

// Topic is a subject category tagging exercises.
type Topic struct {
	ID   string `json:"id" yaml:"id" validate:"required,max=64"`
	Name string `json:"name" yaml:"name" validate:"required,max=200"`
}

// Exercise is a catalog entry. Content and Solution are markdown.
type Exercise struct {
	ID         string     `json:"id" yaml:"id" validate:"required,max=64"`
	Title      string     `json:"title" yaml:"title" validate:"required,max=300"`
	Content    string     `json:"content" yaml:"content" validate:"required"`
	Solution   string     `json:"solution" yaml:"solution"`
	TopicID    string     `json:"topic_id" yaml:"topic" validate:"required,max=64"`
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty" validate:"required,difficulty"`
}

// Validate checks the topic fields.
func (t *Topic) Validate() error {
	return validate.Struct(t)
}

// Validate checks the exercise fields, including the difficulty enum.
func (e *Exercise) Validate() error {
	return validate.Struct(e)
}
