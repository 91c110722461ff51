package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/gourmet-search/pkg/client"
	"github.com/Sternrassler/gourmet-search/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var osaka = model.SearchCriteria{Latitude: 34.70, Longitude: 135.50, Radius: model.Radius500m}

type fetchCall struct {
	criteria model.SearchCriteria
	start    int
	count    int
}

// fakeFetcher serves a catalogue of total records. Calls are numbered from 1;
// holds blocks a numbered call until its channel is closed.
type fakeFetcher struct {
	mu        sync.Mutex
	total     int
	calls     []fetchCall
	failAt    map[int]error
	emptyAt   map[int]bool
	holds     map[int]chan struct{}
	ignoreCtx bool
	entered   chan fetchCall
}

func newFakeFetcher(total int) *fakeFetcher {
	return &fakeFetcher{
		total:   total,
		failAt:  map[int]error{},
		emptyAt: map[int]bool{},
		holds:   map[int]chan struct{}{},
		entered: make(chan fetchCall, 16),
	}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, criteria model.SearchCriteria, start, count int) (*model.SearchResultPage, error) {
	f.mu.Lock()
	c := fetchCall{criteria: criteria, start: start, count: count}
	f.calls = append(f.calls, c)
	n := len(f.calls)
	err := f.failAt[start]
	delete(f.failAt, start)
	empty := f.emptyAt[start]
	hold := f.holds[n]
	total := f.total
	f.mu.Unlock()

	f.entered <- c

	if hold != nil {
		if f.ignoreCtx {
			<-hold
		} else {
			select {
			case <-hold:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if err != nil {
		return nil, err
	}

	page := &model.SearchResultPage{TotalAvailable: total, StartOffset: start}
	if !empty {
		for i := start; i < start+count && i <= total; i++ {
			page.Records = append(page.Records, model.RestaurantRecord{
				ID:   fmt.Sprintf("%s#%d", criteria.Keyword, i),
				Name: fmt.Sprintf("Shop %d", i),
			})
		}
	}
	page.ReturnedCount = len(page.Records)
	return page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) starts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.start
	}
	return out
}

func (f *fakeFetcher) hold(call int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.holds[call] = ch
	return ch
}

func waitEntered(t *testing.T, f *fakeFetcher) fetchCall {
	t.Helper()
	select {
	case c := <-f.entered:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not started")
		return fetchCall{}
	}
}

func newTestSession(f PageFetcher, opts ...Option) *Session {
	return NewSession(f, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func TestStartOffset(t *testing.T) {
	tests := []struct {
		page int
		want int
	}{
		{1, 1},
		{2, 21},
		{3, 41},
		{10, 181},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, startOffset(tt.page), "page %d", tt.page)
	}
}

func TestNewSession_Idle(t *testing.T) {
	s := newTestSession(newFakeFetcher(10))

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Records())
	assert.False(t, s.Loading())
	assert.False(t, s.CanLoadMore())
	assert.NoError(t, s.Err())
}

func TestSession_PagesThroughResults(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	assert.Len(t, s.Records(), 20)
	assert.Equal(t, 45, s.TotalAvailable())
	assert.True(t, s.CanLoadMore())
	assert.Equal(t, StateLoaded, s.State())
	assert.Equal(t, 1, s.CurrentPage())

	require.NoError(t, s.LoadMore(ctx))
	assert.Len(t, s.Records(), 40)
	assert.True(t, s.CanLoadMore())
	assert.Equal(t, 2, s.CurrentPage())

	require.NoError(t, s.LoadMore(ctx))
	assert.Len(t, s.Records(), 45)
	assert.False(t, s.CanLoadMore())
	assert.Equal(t, 3, s.CurrentPage())

	assert.Equal(t, []int{1, 21, 41}, f.starts())
	for _, c := range f.calls {
		assert.Equal(t, PageSize, c.count)
	}

	records := s.Records()
	assert.Equal(t, "#1", records[0].ID)
	assert.Equal(t, "#45", records[44].ID)
}

func TestSession_LoadMoreWhenComplete(t *testing.T) {
	f := newFakeFetcher(5)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	before := s.Snapshot()
	require.False(t, before.CanLoadMore)

	require.NoError(t, s.LoadMore(ctx))
	require.NoError(t, s.LoadMore(ctx))

	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, before, s.Snapshot())
}

func TestSession_LoadMoreBeforeSearch(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)

	require.NoError(t, s.LoadMore(context.Background()))
	assert.Equal(t, 0, f.callCount())
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_LoadMoreWhileLoading(t *testing.T) {
	f := newFakeFetcher(100)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	waitEntered(t, f)

	release := f.hold(2)
	done := make(chan error, 1)
	go func() { done <- s.LoadMore(ctx) }()
	waitEntered(t, f)

	require.True(t, s.Loading())
	during := s.Snapshot()

	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 2, f.callCount(), "no duplicate fetch while loading")
	assert.Equal(t, during, s.Snapshot())

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, s.Records(), 40)
	assert.False(t, s.Loading())
}

func TestSession_SearchResetsBeforeFirstPage(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	require.NoError(t, s.LoadMore(ctx))
	require.Len(t, s.Records(), 40)
	for i := 0; i < 2; i++ {
		waitEntered(t, f)
	}

	release := f.hold(3)
	done := make(chan error, 1)
	ramen := osaka
	ramen.Keyword = "ramen"
	go func() { done <- s.Search(ctx, ramen) }()
	waitEntered(t, f)

	snap := s.Snapshot()
	assert.Empty(t, snap.Records)
	assert.Equal(t, 1, snap.CurrentPage)
	assert.Equal(t, 0, snap.TotalAvailable)
	assert.True(t, snap.Loading)
	assert.Equal(t, ramen, snap.Criteria)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, s.Records(), 20)
	assert.Equal(t, "ramen#1", s.Records()[0].ID)
}

func TestSession_ServerErrorKeepsRecords(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	before := s.Records()

	serverErr := &client.APIError{Class: client.ErrorClassNetwork, StatusCode: 500, Message: "500 Internal Server Error"}
	f.mu.Lock()
	f.failAt[21] = serverErr
	f.mu.Unlock()

	err := s.LoadMore(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrNetwork))

	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.False(t, snap.Loading)
	assert.Equal(t, before, snap.Records)
	assert.Equal(t, serverErr, snap.Err)
	assert.Contains(t, snap.Error, "status 500")
	assert.Equal(t, 1, snap.CurrentPage)
	assert.True(t, snap.CanLoadMore)

	// Retrying asks for the same page again.
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, []int{1, 21, 21}, f.starts())
	assert.Len(t, s.Records(), 40)
	assert.NoError(t, s.Err())
	assert.Equal(t, StateLoaded, s.State())
}

func TestSession_DecodeErrorOnFirstPage(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)

	decodeErr := &client.APIError{Class: client.ErrorClassDecode, StatusCode: 200, Err: client.ErrMissingField}
	f.failAt[1] = decodeErr

	err := s.Search(context.Background(), osaka)
	require.ErrorIs(t, err, client.ErrDecode)

	assert.Empty(t, s.Records())
	assert.Equal(t, StateError, s.State())
	assert.False(t, s.CanLoadMore())

	// A new search recovers.
	require.NoError(t, s.Search(context.Background(), osaka))
	assert.Len(t, s.Records(), 20)
	assert.NoError(t, s.Err())
}

func TestSession_SupersededSearchIsCancelled(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)
	ctx := context.Background()

	f.hold(1)
	first := make(chan error, 1)
	go func() { first <- s.Search(ctx, osaka) }()
	waitEntered(t, f)

	sushi := osaka
	sushi.Keyword = "sushi"
	require.NoError(t, s.Search(ctx, sushi))

	require.ErrorIs(t, <-first, ErrSuperseded)

	snap := s.Snapshot()
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, sushi, snap.Criteria)
	assert.Len(t, snap.Records, 20)
	assert.Equal(t, "sushi#1", snap.Records[0].ID)
	assert.NoError(t, snap.Err)
}

func TestSession_StaleResponseDropped(t *testing.T) {
	f := newFakeFetcher(45)
	f.ignoreCtx = true
	s := newTestSession(f)
	ctx := context.Background()

	release := f.hold(1)
	first := make(chan error, 1)
	go func() { first <- s.Search(ctx, osaka) }()
	waitEntered(t, f)

	sushi := osaka
	sushi.Keyword = "sushi"
	require.NoError(t, s.Search(ctx, sushi))

	close(release)
	require.ErrorIs(t, <-first, ErrSuperseded)

	records := s.Records()
	require.Len(t, records, 20)
	for _, r := range records {
		assert.Contains(t, r.ID, "sushi#")
	}
}

func TestSession_EmptyPageStopsPaging(t *testing.T) {
	f := newFakeFetcher(45)
	f.emptyAt[21] = true
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	require.NoError(t, s.LoadMore(ctx))

	assert.Len(t, s.Records(), 20)
	assert.False(t, s.CanLoadMore())
	require.NoError(t, s.LoadAll(ctx))
	assert.Equal(t, 2, f.callCount())
}

func TestSession_LoadAll(t *testing.T) {
	f := newFakeFetcher(105)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	require.NoError(t, s.LoadAll(ctx))

	assert.Len(t, s.Records(), 105)
	assert.Equal(t, 6, s.CurrentPage())
	assert.False(t, s.CanLoadMore())
	assert.Equal(t, []int{1, 21, 41, 61, 81, 101}, f.starts())
}

func TestSession_LoadAllStopsOnError(t *testing.T) {
	f := newFakeFetcher(105)
	f.failAt[41] = &client.APIError{Class: client.ErrorClassNetwork, StatusCode: 503}
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	err := s.LoadAll(ctx)
	require.ErrorIs(t, err, client.ErrNetwork)
	assert.Len(t, s.Records(), 40)
}

func TestSession_LoadAllRespectsContext(t *testing.T) {
	f := newFakeFetcher(105)
	s := newTestSession(f)

	require.NoError(t, s.Search(context.Background(), osaka))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.LoadAll(ctx), context.Canceled)
	assert.Len(t, s.Records(), 20)
}

func TestSession_Observer(t *testing.T) {
	var states []State
	var loaded []int
	f := newFakeFetcher(25)
	s := newTestSession(f, WithObserver(func(snap Snapshot) {
		states = append(states, snap.State)
		loaded = append(loaded, len(snap.Records))
	}))
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	require.NoError(t, s.LoadMore(ctx))
	require.NoError(t, s.LoadMore(ctx)) // no-op, no notification

	assert.Equal(t, []State{StateLoading, StateLoaded, StateLoading, StateLoaded}, states)
	assert.Equal(t, []int{0, 20, 20, 25}, loaded)
}

func TestSession_ObserverVersions(t *testing.T) {
	var versions []uint64
	f := newFakeFetcher(45)
	s := newTestSession(f, WithObserver(func(snap Snapshot) {
		versions = append(versions, snap.Version)
	}))
	ctx := context.Background()

	assert.Zero(t, s.Snapshot().Version)

	require.NoError(t, s.Search(ctx, osaka))
	f.failAt[21] = errors.New("boom")
	require.Error(t, s.LoadMore(ctx))
	require.NoError(t, s.LoadMore(ctx))

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, versions)
	assert.Equal(t, uint64(6), s.Snapshot().Version)
}

func TestSession_StaleCompletionKeepsNewerVersion(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	waitEntered(t, f)

	f.ignoreCtx = true
	release := f.hold(2)
	done := make(chan error, 1)
	go func() { done <- s.LoadMore(ctx) }()
	waitEntered(t, f)

	require.NoError(t, s.Search(ctx, osaka))
	waitEntered(t, f)
	after := s.Snapshot().Version

	close(release)
	require.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, after, s.Snapshot().Version)
}

func TestSession_IdleSnapshotJSON(t *testing.T) {
	s := newTestSession(newFakeFetcher(10))

	out, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"state":"idle"`)
	assert.Contains(t, string(out), `"range":null`)

	require.NoError(t, s.Search(context.Background(), osaka))
	out, err = json.Marshal(s.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"range":"500m"`)
}

type nilPageFetcher struct{}

func (nilPageFetcher) FetchPage(context.Context, model.SearchCriteria, int, int) (*model.SearchResultPage, error) {
	return nil, nil
}

func TestSession_NilPageIsDecodeError(t *testing.T) {
	s := newTestSession(nilPageFetcher{})

	err := s.Search(context.Background(), osaka)
	require.ErrorIs(t, err, client.ErrDecode)
	assert.Equal(t, StateError, s.State())
	assert.Empty(t, s.Records())
}

func TestSession_RecordsAreCopies(t *testing.T) {
	s := newTestSession(newFakeFetcher(3))
	require.NoError(t, s.Search(context.Background(), osaka))

	records := s.Records()
	records[0].Name = "mutated"
	snap := s.Snapshot()
	snap.Records[1].Name = "mutated"

	fresh := s.Records()
	assert.Equal(t, "Shop 1", fresh[0].Name)
	assert.Equal(t, "Shop 2", fresh[1].Name)
}

func TestSession_Close(t *testing.T) {
	f := newFakeFetcher(45)
	s := newTestSession(f)
	ctx := context.Background()

	require.NoError(t, s.Search(ctx, osaka))
	waitEntered(t, f)

	f.hold(2)
	done := make(chan error, 1)
	go func() { done <- s.LoadMore(ctx) }()
	waitEntered(t, f)

	s.Close()
	require.ErrorIs(t, <-done, ErrSuperseded)
	assert.Len(t, s.Records(), 20)
	assert.False(t, s.Loading())
}
