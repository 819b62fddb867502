package model

import "time"

// Length limits for board submissions, in runes. The validate tags refer to
// them through aliases.
const (
	MaxPostTitleLen   = 200
	MaxPostContentLen = 10000
	MaxReplyLen       = 10000
)

// Post is a discussion thread opener. Content is plain text.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title" validate:"required,post_title"`
	Content   string    `json:"content" validate:"required,post_content"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id" validate:"required"`
}

// Reply is a single-level answer to a post.
type Reply struct {
	ID        string    `json:"id"`
	Content   string    `json:"content" validate:"required,reply_content"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id" validate:"required"`
	PostID    string    `json:"post_id" validate:"required"`
}

// Validate checks the user-supplied post fields.
func (p *Post) Validate() error {
	return validate.Struct(p)
}

// Validate checks the user-supplied reply fields.
func (r *Reply) Validate() error {
	return validate.Struct(r)
}
