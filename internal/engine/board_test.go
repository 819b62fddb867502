package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/mathprepa/internal/engine"
	"github.com/seantiz/mathprepa/internal/identity"
	"github.com/seantiz/mathprepa/internal/model"
	"github.com/seantiz/mathprepa/internal/store"
)

// fakeBoard is an in-memory board store that counts calls and can fail on demand.
type fakeBoard struct {
	mu          sync.Mutex
	posts       []model.Post
	replies     map[string][]model.Reply
	listPostErr error
	getPostErr  error
	listRepErr  error
	createErr   error

	// gates, when set for a post id, block ListReplies until closed.
	gates map[string]chan struct{}

	listPostCalls  int
	listReplyCalls int
	createCalls    int
}

func newFakeBoard(posts ...model.Post) *fakeBoard {
	return &fakeBoard{
		posts:   posts,
		replies: make(map[string][]model.Reply),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeBoard) ListPosts(context.Context) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPostCalls++
	if f.listPostErr != nil {
		return nil, f.listPostErr
	}
	out := make([]model.Post, 0, len(f.posts))
	for i := len(f.posts) - 1; i >= 0; i-- {
		out = append(out, f.posts[i])
	}
	return out, nil
}

func (f *fakeBoard) GetPost(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPostErr != nil {
		return nil, f.getPostErr
	}
	for _, p := range f.posts {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeBoard) ListReplies(_ context.Context, postID string) ([]model.Reply, error) {
	f.mu.Lock()
	f.listReplyCalls++
	gate := f.gates[postID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listRepErr != nil {
		return nil, f.listRepErr
	}
	return append([]model.Reply(nil), f.replies[postID]...), nil
}

func (f *fakeBoard) CreatePost(_ context.Context, p *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = model.NewID()
	p.CreatedAt = time.Now().UTC()
	f.posts = append(f.posts, *p)
	return nil
}

func (f *fakeBoard) CreateReply(_ context.Context, r *model.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	r.ID = model.NewID()
	r.CreatedAt = time.Now().UTC()
	f.replies[r.PostID] = append(f.replies[r.PostID], *r)
	return nil
}

func (f *fakeBoard) counts() (listPosts, listReplies, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listPostCalls, f.listReplyCalls, f.createCalls
}

func newBoard(t *testing.T, s engine.BoardStore) *engine.BoardEngine {
	t.Helper()
	e := engine.NewBoardEngine(s, identity.ContextProvider{}, discardLogger())
	e.ListPosts(context.Background())
	return e
}

func signedIn(user string) context.Context {
	return identity.WithUser(context.Background(), user)
}

func post(id, title string) model.Post {
	return model.Post{ID: id, Title: title, Content: "body", UserID: "u", CreatedAt: time.Now().UTC()}
}

func TestBoardStartsInListView(t *testing.T) {
	e := newBoard(t, newFakeBoard(post("p1", "first"), post("p2", "second")))

	assert.Equal(t, engine.ModeList, e.Mode())
	posts := e.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[0].ID)
	_, ok := e.Selected()
	assert.False(t, ok)
}

func TestListPostsFailureEmptiesList(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)
	require.Len(t, e.Posts(), 1)

	fb.listPostErr = errors.New("down")
	assert.Empty(t, e.ListPosts(context.Background()))
	assert.Empty(t, e.Posts())
}

func TestSelectPostAndBack(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	fb.replies["p1"] = []model.Reply{
		{ID: "r1", Content: "a", PostID: "p1"},
		{ID: "r2", Content: "b", PostID: "p1"},
	}
	e := newBoard(t, fb)

	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	assert.Equal(t, engine.ModeThread, e.Mode())
	sel, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "first", sel.Title)
	require.Len(t, e.Replies(), 2)
	assert.Equal(t, "r1", e.Replies()[0].ID)

	e.Back()
	assert.Equal(t, engine.ModeList, e.Mode())
	assert.Empty(t, e.Replies())
	_, ok = e.Selected()
	assert.False(t, ok)
}

func TestSelectUnknownPost(t *testing.T) {
	e := newBoard(t, newFakeBoard(post("p1", "first")))

	err := e.SelectPost(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrPostNotFound)
	assert.Equal(t, engine.ModeList, e.Mode())
}

func TestSelectPostCreatedAfterListLoad(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)

	fb.mu.Lock()
	fb.posts = append(fb.posts, post("p2", "late"))
	fb.replies["p2"] = []model.Reply{{ID: "r1", PostID: "p2"}}
	fb.mu.Unlock()

	require.NoError(t, e.SelectPost(context.Background(), "p2"))
	assert.Equal(t, engine.ModeThread, e.Mode())
	sel, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "late", sel.Title)
	assert.Len(t, e.Replies(), 1)
	// The loaded list is left as it was.
	assert.Len(t, e.Posts(), 1)
}

func TestSelectPostLookupFailure(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	fb.getPostErr = errors.New("down")
	e := newBoard(t, fb)

	err := e.SelectPost(context.Background(), "p9")
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrPostNotFound)
	assert.Equal(t, engine.ModeList, e.Mode())
	_, listReplies, _ := fb.counts()
	assert.Equal(t, 0, listReplies)
}

func TestSelectPostReplyFetchFailure(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	fb.listRepErr = errors.New("down")
	e := newBoard(t, fb)

	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	assert.Equal(t, engine.ModeThread, e.Mode())
	assert.Empty(t, e.Replies())
}

func TestCreatePostRequiresUser(t *testing.T) {
	fb := newFakeBoard()
	e := newBoard(t, fb)
	e.SetPostForm(engine.PostForm{Title: "Hello", Content: "World"})

	err := e.CreatePost(context.Background())
	assert.ErrorIs(t, err, engine.ErrNotAuthenticated)

	listPosts, _, creates := fb.counts()
	assert.Equal(t, 0, creates)
	assert.Equal(t, 1, listPosts)
	assert.Equal(t, engine.PostForm{Title: "Hello", Content: "World"}, e.PostForm())
}

func TestCreatePostSuccess(t *testing.T) {
	fb := newFakeBoard(post("p1", "old"))
	e := newBoard(t, fb)
	e.SetPostForm(engine.PostForm{Title: "  Hello ", Content: "World"})

	require.NoError(t, e.CreatePost(signedIn("user-1")))

	listPosts, _, creates := fb.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 2, listPosts, "exactly one re-fetch after create")
	assert.Equal(t, engine.PostForm{}, e.PostForm())

	posts := e.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "Hello", posts[0].Title)
	assert.Equal(t, "user-1", posts[0].UserID)
}

func TestCreatePostFailureKeepsForm(t *testing.T) {
	fb := newFakeBoard()
	fb.createErr = errors.New("disk full")
	e := newBoard(t, fb)
	form := engine.PostForm{Title: "Hello", Content: "World"}
	e.SetPostForm(form)

	err := e.CreatePost(signedIn("user-1"))
	assert.ErrorIs(t, err, engine.ErrMutationFailed)
	assert.Equal(t, form, e.PostForm())

	listPosts, _, _ := fb.counts()
	assert.Equal(t, 1, listPosts, "no re-fetch after a failed create")
}

func TestCreatePostInvalidInput(t *testing.T) {
	fb := newFakeBoard()
	e := newBoard(t, fb)

	for _, form := range []engine.PostForm{
		{Title: "", Content: "x"},
		{Title: "x", Content: "   "},
		{Title: strings.Repeat("a", model.MaxPostTitleLen+1), Content: "x"},
	} {
		e.SetPostForm(form)
		err := e.CreatePost(signedIn("user-1"))
		assert.ErrorIs(t, err, engine.ErrInvalidInput)
		assert.Equal(t, form, e.PostForm())
	}
	_, _, creates := fb.counts()
	assert.Equal(t, 0, creates)
}

func TestCreateReplyRequiresSelection(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)
	e.SetReplyDraft("hi")

	err := e.CreateReply(signedIn("user-1"))
	assert.ErrorIs(t, err, engine.ErrNoPostSelected)
	_, _, creates := fb.counts()
	assert.Equal(t, 0, creates)
}

func TestCreateReplyRequiresUser(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)
	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	e.SetReplyDraft("hi")

	err := e.CreateReply(context.Background())
	assert.ErrorIs(t, err, engine.ErrNotAuthenticated)
	assert.Equal(t, "hi", e.ReplyDraft())
	_, _, creates := fb.counts()
	assert.Equal(t, 0, creates)
}

func TestCreateReplySuccess(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)
	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	e.SetReplyDraft("Merci !")

	require.NoError(t, e.CreateReply(signedIn("user-2")))

	_, listReplies, creates := fb.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 2, listReplies, "exactly one re-fetch after create")
	assert.Empty(t, e.ReplyDraft())

	replies := e.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "Merci !", replies[0].Content)
	assert.Equal(t, "p1", replies[0].PostID)
	assert.Equal(t, engine.ModeThread, e.Mode())
}

func TestCreateReplyFailureKeepsDraft(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)
	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	fb.createErr = errors.New("timeout")
	e.SetReplyDraft("draft")

	err := e.CreateReply(signedIn("user-2"))
	assert.ErrorIs(t, err, engine.ErrMutationFailed)
	assert.Equal(t, "draft", e.ReplyDraft())
}

func TestStaleReplyFetchIsDiscarded(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"), post("p2", "second"))
	fb.replies["p1"] = []model.Reply{{ID: "r-p1", PostID: "p1"}}
	fb.replies["p2"] = []model.Reply{{ID: "r-p2", PostID: "p2"}}
	gate := make(chan struct{})
	fb.gates["p1"] = gate
	e := newBoard(t, fb)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.SelectPost(context.Background(), "p1")
	}()

	// Wait until the p1 fetch is in flight, then move to p2.
	require.Eventually(t, func() bool {
		_, n, _ := fb.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, e.SelectPost(context.Background(), "p2"))

	close(gate)
	<-done

	sel, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "p2", sel.ID)
	replies := e.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "r-p2", replies[0].ID)
}

func TestReplyFetchAfterBackIsDiscarded(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	fb.replies["p1"] = []model.Reply{{ID: "r1", PostID: "p1"}}
	gate := make(chan struct{})
	fb.gates["p1"] = gate
	e := newBoard(t, fb)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.SelectPost(context.Background(), "p1")
	}()
	require.Eventually(t, func() bool {
		_, n, _ := fb.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	e.Back()
	close(gate)
	<-done

	assert.Equal(t, engine.ModeList, e.Mode())
	assert.Empty(t, e.Replies())
}

func TestRefresh(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)

	e.Refresh(context.Background())
	listPosts, listReplies, _ := fb.counts()
	assert.Equal(t, 2, listPosts)
	assert.Equal(t, 0, listReplies)

	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	e.Refresh(context.Background())
	listPosts, listReplies, _ = fb.counts()
	assert.Equal(t, 2, listPosts)
	assert.Equal(t, 2, listReplies)
}

func TestBoardView(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	fb.replies["p1"] = []model.Reply{{ID: "r1", PostID: "p1"}}
	e := newBoard(t, fb)

	view := e.View(context.Background())
	assert.Equal(t, engine.ModeList, view.Mode)
	assert.Len(t, view.Posts, 1)
	assert.Nil(t, view.Thread)
	assert.False(t, view.CanWrite)

	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	view = e.View(signedIn("user-1"))
	assert.Equal(t, engine.ModeThread, view.Mode)
	assert.Len(t, view.Posts, 1)
	require.NotNil(t, view.Thread)
	assert.Equal(t, "p1", view.Thread.Post.ID)
	assert.Len(t, view.Thread.Replies, 1)
	assert.True(t, view.CanWrite)
}

func TestEmptyBoardViewSendsPostsArray(t *testing.T) {
	e := newBoard(t, newFakeBoard())

	b, err := json.Marshal(e.View(context.Background()))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"posts":[]`)
	assert.Contains(t, string(b), `"mode":"list"`)
}

func TestReplyRefetchAfterBackIsDiscarded(t *testing.T) {
	fb := newFakeBoard(post("p1", "first"))
	e := newBoard(t, fb)
	require.NoError(t, e.SelectPost(context.Background(), "p1"))
	e.SetReplyDraft("merci")

	gate := make(chan struct{})
	fb.mu.Lock()
	fb.gates["p1"] = gate
	fb.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- e.CreateReply(signedIn("bob")) }()

	// The reply is stored and its refetch is blocked; leave the thread.
	require.Eventually(t, func() bool {
		_, n, _ := fb.counts()
		return n == 2
	}, time.Second, 5*time.Millisecond)
	e.Back()
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, engine.ModeList, e.Mode())
	assert.Empty(t, e.Replies())
	assert.Empty(t, e.ReplyDraft())
}

// A full round trip against SQLite: post, open, reply, back.
func TestBoardWithSQLite(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := signedIn("alice")
	e := newBoard(t, s)
	assert.Empty(t, e.Posts())

	e.SetPostForm(engine.PostForm{Title: "Intégrales", Content: "Comment calculer ∫ x dx ?"})
	require.NoError(t, e.CreatePost(ctx))
	posts := e.Posts()
	require.Len(t, posts, 1)

	require.NoError(t, e.SelectPost(ctx, posts[0].ID))
	e.SetReplyDraft("x²/2 + C")
	require.NoError(t, e.CreateReply(ctx))
	e.SetReplyDraft("Merci")
	require.NoError(t, e.CreateReply(signedIn("bob")))

	replies := e.Replies()
	require.Len(t, replies, 2)
	assert.Equal(t, "alice", replies[0].UserID)
	assert.Equal(t, "bob", replies[1].UserID)

	e.Back()
	assert.Equal(t, engine.ModeList, e.Mode())
	assert.Len(t, e.Posts(), 1)
}
