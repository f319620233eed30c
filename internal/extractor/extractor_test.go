package extractor

import (
	"context"
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discounthub/harvester/internal/adapter"
	"discounthub/harvester/internal/domain"
	"discounthub/harvester/internal/metrics"
)

// fakeAdapter scripts one CollectPage result per step.
type fakeAdapter struct {
	pages   [][]domain.RawItem
	reveal  bool // reveal-driven, like a DOM adapter
	lastHas bool // hasMore after the scripted pages run out
	openErr error
	pageErr map[int]error
	calls   int
	closed  bool
}

type fakeSession struct{ a *fakeAdapter }

func (s *fakeSession) Close() error {
	s.a.closed = true
	return nil
}

func (f *fakeAdapter) Name() string       { return "Fake" }
func (f *fakeAdapter) BaseURL() string    { return "https://fake.test" }
func (f *fakeAdapter) RevealDriven() bool { return f.reveal }

func (f *fakeAdapter) Open(ctx context.Context) (adapter.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeSession{a: f}, nil
}

func (f *fakeAdapter) CollectPage(ctx context.Context, sess adapter.Session, state adapter.PageState) ([]domain.RawItem, bool, error) {
	f.calls++
	if err, ok := f.pageErr[state.Page]; ok {
		return nil, false, err
	}
	if state.Page > len(f.pages) {
		return nil, f.lastHas, nil
	}
	return f.pages[state.Page-1], true, nil
}

func item(title string) domain.RawItem {
	return domain.RawItem{Title: title, OriginalPrice: "100,00", Price: "50,00"}
}

func TestCollectStopsWhenPageSaysNoMore(t *testing.T) {
	f := &fakeAdapter{
		pages: [][]domain.RawItem{
			{item("a"), item("b")},
			{item("c")},
		},
	}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.True(t, f.closed)
	// Two scripted pages plus the authoritative empty one.
	assert.Equal(t, 3, f.calls)
}

func TestCollectStopsAfterStabilityQuietSteps(t *testing.T) {
	// The same item set forever: every step past the first is quiet.
	same := []domain.RawItem{item("a"), item("b")}
	f := &fakeAdapter{
		pages:   [][]domain.RawItem{same, same, same, same, same, same, same, same, same, same},
		reveal:  true,
		lastHas: true,
	}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 2)
	// Step 1 grows, then 5 quiet steps end the loop.
	assert.Equal(t, 6, f.calls)
}

func TestCollectQuietCounterResetsOnGrowth(t *testing.T) {
	f := &fakeAdapter{
		reveal: true,
		pages: [][]domain.RawItem{
			{item("a")},
			{item("a")}, // quiet
			{item("a")}, // quiet
			{item("a"), item("b")}, // growth resets the counter
			{item("b")},
			{item("b")},
			{item("b")},
		},
	}
	e := New(f, 3, metrics.New())

	items, err := e.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 7, f.calls)
}

func TestCollectPaginatedSourceRunsToEmptyPage(t *testing.T) {
	// A paginated source serving the same promo across many category pages:
	// pages 1-6 hold nothing but already-seen titles, page 7 a new item,
	// page 8 is empty. Only the empty page may end the harvest.
	dup := []domain.RawItem{item("a")}
	f := &fakeAdapter{
		pages: [][]domain.RawItem{
			dup, dup, dup, dup, dup, dup,
			{item("b")},
		},
	}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Title)
	assert.Equal(t, "b", items[1].Title)
	assert.Equal(t, 8, f.calls)
}

func TestCollectDeduplicatesByTitleFirstWins(t *testing.T) {
	f := &fakeAdapter{
		pages: [][]domain.RawItem{
			{
				{Title: "Sek Süt 1L", URL: "/first", OriginalPrice: "100", Price: "50"},
				{Title: "sek  süt 1l", URL: "/second", OriginalPrice: "90", Price: "40"},
			},
		},
	}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/first", items[0].URL)
}

func TestCollectDropsEmptySlugTitles(t *testing.T) {
	f := &fakeAdapter{
		pages: [][]domain.RawItem{
			{item("---"), item("ok")},
		},
	}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].Title)
}

func TestCollectReturnsPartialItemsOnPageError(t *testing.T) {
	f := &fakeAdapter{
		pages: [][]domain.RawItem{
			{item("a"), item("b")},
		},
		pageErr: map[int]error{2: errors.New("listing timed out")},
	}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.Error(t, err)
	assert.Len(t, items, 2)
	assert.True(t, f.closed)
}

func TestCollectOpenFailure(t *testing.T) {
	f := &fakeAdapter{openErr: errors.New("bootstrap rejected")}
	e := New(f, 5, metrics.New())

	items, err := e.Collect(context.Background())

	require.Error(t, err)
	assert.Empty(t, items)
}

func TestCollectReportsStepCount(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	// Two item pages plus the closing empty one: three steps.
	f := &fakeAdapter{pages: [][]domain.RawItem{{item("a")}, {item("b")}}}
	e := New(f, 5, metrics.New())

	_, err := e.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, f.calls)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Contains(t, entry.Message, "over 3 steps")
}

func TestCollectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeAdapter{pages: [][]domain.RawItem{{item("a")}}}
	e := New(f, 5, metrics.New())

	_, err := e.Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
