package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/seantiz/mathprepa/internal/model"
	"github.com/seantiz/mathprepa/internal/store"
)

// BoardStore is the part of the store used by the discussion board.
type BoardStore interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListReplies(ctx context.Context, postID string) ([]model.Reply, error)
	CreatePost(ctx context.Context, p *model.Post) error
	CreateReply(ctx context.Context, r *model.Reply) error
}

// Identity reports the user a request acts for.
type Identity interface {
	CurrentUser(ctx context.Context) (string, bool)
}

// BoardMode is the state of the board view.
type BoardMode string

const (
	ModeList   BoardMode = "list"
	ModeThread BoardMode = "thread"
)

// PostForm holds the pending new-post input.
type PostForm struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Thread is the selected post with its replies, oldest first.
type Thread struct {
	Post    model.Post    `json:"post"`
	Replies []model.Reply `json:"replies"`
}

// BoardView is a snapshot of the board as the user sees it.
type BoardView struct {
	Mode       BoardMode    `json:"mode"`
	Posts      []model.Post `json:"posts"`
	Thread     *Thread      `json:"thread,omitempty"`
	PostForm   PostForm     `json:"post_form"`
	ReplyDraft string       `json:"reply_draft"`
	CanWrite   bool         `json:"can_write"`
}

// BoardEngine holds one user's view of the discussion board. It starts in
// the list view; selecting a post enters the thread view and Back returns.
// It is safe for concurrent use.
type BoardEngine struct {
	store    BoardStore
	identity Identity
	logger   *slog.Logger

	mu         sync.Mutex
	mode       BoardMode
	posts      []model.Post
	selected   *model.Post
	replies    []model.Reply
	generation uint64 // bumped on every selection change
	postForm   PostForm
	replyDraft string
}

// NewBoardEngine creates a board in the list view with no posts loaded.
func NewBoardEngine(s BoardStore, identity Identity, logger *slog.Logger) *BoardEngine {
	return &BoardEngine{
		store:    s,
		identity: identity,
		logger:   logger,
		mode:     ModeList,
	}
}

// ListPosts fetches the posts, newest first, and replaces the loaded list.
// On failure the list becomes empty.
func (e *BoardEngine) ListPosts(ctx context.Context) []model.Post {
	ctx, span := startSpan(ctx, "board.list_posts")
	defer span.End()

	posts, err := e.store.ListPosts(ctx)
	if err != nil {
		e.fetchFailed(kindPosts, err)
		posts = nil
	}
	span.SetAttributes(attribute.Int("board.posts", len(posts)))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.posts = posts
	return append([]model.Post(nil), posts...)
}

// SelectPost enters the thread view for a post and fetches its replies.
// Posts missing from the loaded list are looked up in the store.
func (e *BoardEngine) SelectPost(ctx context.Context, postID string) error {
	e.mu.Lock()
	var post *model.Post
	for i := range e.posts {
		if e.posts[i].ID == postID {
			p := e.posts[i]
			post = &p
			break
		}
	}
	e.mu.Unlock()

	// A post created after the list was loaded is looked up directly.
	if post == nil {
		p, err := e.store.GetPost(ctx, postID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPostNotFound, postID)
		}
		if err != nil {
			e.fetchFailed(kindPost, err)
			return fmt.Errorf("get post %s: %w", postID, err)
		}
		post = p
	}

	e.mu.Lock()
	e.mode = ModeThread
	e.selected = post
	e.replies = nil
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	e.fetchReplies(ctx, postID, gen)
	return nil
}

// fetchReplies loads the replies of postID. The result is applied only if
// the selection has not changed since gen was taken.
func (e *BoardEngine) fetchReplies(ctx context.Context, postID string, gen uint64) {
	ctx, span := startSpan(ctx, "board.list_replies", attribute.String("board.post_id", postID))
	defer span.End()

	replies, err := e.store.ListReplies(ctx, postID)
	if err != nil {
		e.fetchFailed(kindReplies, err)
		replies = nil
	}
	span.SetAttributes(attribute.Int("board.replies", len(replies)))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen || e.mode != ModeThread {
		e.logger.Debug("discarding stale reply fetch", "post_id", postID)
		return
	}
	e.replies = replies
}

// Back returns to the list view and drops the selected post and its replies.
func (e *BoardEngine) Back() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeList
	e.selected = nil
	e.replies = nil
	e.generation++
}

// Refresh re-fetches the list shown by the current view.
func (e *BoardEngine) Refresh(ctx context.Context) {
	e.mu.Lock()
	mode, selected, gen := e.mode, e.selected, e.generation
	e.mu.Unlock()

	if mode == ModeThread && selected != nil {
		e.fetchReplies(ctx, selected.ID, gen)
		return
	}
	e.ListPosts(ctx)
}

// SetPostForm replaces the pending new-post input.
func (e *BoardEngine) SetPostForm(form PostForm) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.postForm = form
}

// SetReplyDraft replaces the pending reply input.
func (e *BoardEngine) SetReplyDraft(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replyDraft = content
}

// CreatePost submits the post form as the current user. Without a user it
// does nothing and returns ErrNotAuthenticated. On success the form is
// cleared and the posts are fetched again; on failure the form is kept.
func (e *BoardEngine) CreatePost(ctx context.Context) (err error) {
	userID, ok := e.identity.CurrentUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	ctx, span := startSpan(ctx, "board.create_post")
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	form := e.postForm
	e.mu.Unlock()

	post := &model.Post{
		Title:   model.NormalizeText(form.Title),
		Content: model.NormalizeText(form.Content),
		UserID:  userID,
	}
	if err := post.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := e.store.CreatePost(ctx, post); err != nil {
		mutationFailuresTotal.WithLabelValues(kindPost).Inc()
		e.logger.Error("create post failed", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
	e.logger.Info("post created", "post_id", post.ID, "user_id", userID)

	e.mu.Lock()
	if e.postForm == form {
		e.postForm = PostForm{}
	}
	e.mu.Unlock()

	refetchesTotal.WithLabelValues(kindPosts).Inc()
	e.ListPosts(ctx)
	return nil
}

// CreateReply submits the reply draft to the selected post as the current
// user. On success the draft is cleared and the replies are fetched again.
func (e *BoardEngine) CreateReply(ctx context.Context) (err error) {
	userID, ok := e.identity.CurrentUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	e.mu.Lock()
	selected, draft, gen := e.selected, e.replyDraft, e.generation
	e.mu.Unlock()
	if selected == nil {
		return ErrNoPostSelected
	}

	ctx, span := startSpan(ctx, "board.create_reply", attribute.String("board.post_id", selected.ID))
	defer func() { endSpan(span, err) }()

	reply := &model.Reply{
		Content: model.NormalizeText(draft),
		UserID:  userID,
		PostID:  selected.ID,
	}
	if err := reply.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := e.store.CreateReply(ctx, reply); err != nil {
		mutationFailuresTotal.WithLabelValues(kindReply).Inc()
		e.logger.Error("create reply failed", "post_id", selected.ID, "user_id", userID, "error", err)
		return fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
	e.logger.Info("reply created", "reply_id", reply.ID, "post_id", selected.ID, "user_id", userID)

	e.mu.Lock()
	if e.replyDraft == draft {
		e.replyDraft = ""
	}
	e.mu.Unlock()

	refetchesTotal.WithLabelValues(kindReplies).Inc()
	e.fetchReplies(ctx, selected.ID, gen)
	return nil
}

func (e *BoardEngine) fetchFailed(kind string, err error) {
	fetchFailuresTotal.WithLabelValues(kind).Inc()
	e.logger.Error("fetch failed", "kind", kind, "error", err)
}

// Mode returns the current view state.
func (e *BoardEngine) Mode() BoardMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Posts returns the loaded posts, newest first.
func (e *BoardEngine) Posts() []model.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Post(nil), e.posts...)
}

// Selected returns the post of the thread view.
func (e *BoardEngine) Selected() (model.Post, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == nil {
		return model.Post{}, false
	}
	return *e.selected, true
}

// Replies returns the replies of the selected post, oldest first.
func (e *BoardEngine) Replies() []model.Reply {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Reply(nil), e.replies...)
}

// PostForm returns the pending new-post input.
func (e *BoardEngine) PostForm() PostForm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.postForm
}

// ReplyDraft returns the pending reply input.
func (e *BoardEngine) ReplyDraft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replyDraft
}

// View returns the board as seen by the user of ctx.
func (e *BoardEngine) View(ctx context.Context) BoardView {
	_, canWrite := e.identity.CurrentUser(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	view := BoardView{
		Mode:       e.mode,
		PostForm:   e.postForm,
		ReplyDraft: e.replyDraft,
		CanWrite:   canWrite,
	}
	view.Posts = append([]model.Post{}, e.posts...)
	if e.mode == ModeThread && e.selected != nil {
		replies := append([]model.Reply{}, e.replies...)
		view.Thread = &Thread{Post: *e.selected, Replies: replies}
	}
	return view
}
