package client

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/katscan/internal/testutil"
	"github.com/Sternrassler/katscan/pkg/collection"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorTraits(i int) []collection.Trait {
	color := "red"
	if i%2 == 1 {
		color = "blue"
	}
	return []collection.Trait{{Name: "color", Value: color}}
}

func newKatAPI(t *testing.T) *testutil.MockKatAPI {
	t.Helper()
	mock := testutil.NewMockKatAPI(10)
	t.Cleanup(mock.Close)
	mock.AddCollection(collection.Info{Tick: "KASPUNKS", Deployer: "kaspa:qq", State: "deployed"}, testutil.GenerateItems(25, colorTraits))
	mock.AddCollection(collection.Info{Tick: "GHOSTS"}, testutil.GenerateItems(3, nil))
	return mock
}

func TestFetchPage(t *testing.T) {
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	tests := []struct {
		page      int
		wantItems int
		wantFirst collection.ItemID
		wantMeta  collection.PageMeta
	}{
		{page: 1, wantItems: 10, wantFirst: "1", wantMeta: collection.PageMeta{CurrentPage: 1, TotalPages: 3, PageSize: 10, TotalItems: 25, HasMorePages: true}},
		{page: 2, wantItems: 10, wantFirst: "11", wantMeta: collection.PageMeta{CurrentPage: 2, TotalPages: 3, PageSize: 10, TotalItems: 25, HasMorePages: true}},
		{page: 3, wantItems: 5, wantFirst: "21", wantMeta: collection.PageMeta{CurrentPage: 3, TotalPages: 3, PageSize: 10, TotalItems: 25, HasMorePages: false}},
	}

	for _, tt := range tests {
		page, err := client.FetchPage(ctx, "KASPUNKS", tt.page, nil)
		require.NoError(t, err)

		assert.Len(t, page.Items, tt.wantItems)
		assert.Equal(t, tt.wantFirst, page.Items[0].ID)
		if diff := cmp.Diff(tt.wantMeta, page.Meta); diff != "" {
			t.Errorf("page %d meta mismatch (-want +got):\n%s", tt.page, diff)
		}
		require.NotNil(t, page.Info)
		assert.Equal(t, "KASPUNKS", page.Info.Tick)
		assert.Equal(t, "kaspa:qq", page.Info.Deployer)
	}
}

func TestFetchPage_AppliesFilters(t *testing.T) {
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), nil)

	page, err := client.FetchPage(context.Background(), "KASPUNKS", 1, collection.Filters{"color": "blue"})
	require.NoError(t, err)

	require.Len(t, page.Items, 5)
	for _, item := range page.Items {
		value, _ := item.Trait("color")
		assert.Equal(t, "blue", value, "item %s", item.ID)
	}
	assert.Equal(t, 25, page.Meta.TotalItems, "totals describe the unfiltered collection")
	assert.True(t, page.Meta.HasMorePages)
}

func TestFetchPage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		tick    string
		page    int
		setup   func(m *testutil.MockKatAPI)
		checkFn func(t *testing.T, err error)
	}{
		{
			name: "unknown tick",
			tick: "NOPE",
			page: 1,
			checkFn: func(t *testing.T, err error) {
				assert.True(t, IsUpstreamStatus(err))
				assert.Equal(t, ErrorClassClient, ClassOf(err))
			},
		},
		{
			name:  "malformed entries",
			tick:  "KASPUNKS",
			page:  1,
			setup: func(m *testutil.MockKatAPI) { m.SetResponse(EndpointEntries, testutil.NewMalformedResponse()) },
			checkFn: func(t *testing.T, err error) {
				assert.True(t, IsMalformed(err), "got %v", err)
			},
		},
		{
			name: "missing result",
			tick: "KASPUNKS",
			page: 1,
			setup: func(m *testutil.MockKatAPI) {
				m.SetResponse(EndpointTick, testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"message":"ok"}`})
			},
			checkFn: func(t *testing.T, err error) {
				assert.True(t, IsMalformed(err), "got %v", err)
			},
		},
		{
			name: "zero page",
			tick: "KASPUNKS",
			page: 0,
			checkFn: func(t *testing.T, err error) {
				assert.EqualError(t, err, "invalid page 0")
			},
		},
		{
			name: "empty tick",
			page: 1,
			checkFn: func(t *testing.T, err error) {
				assert.EqualError(t, err, "tick is required")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newKatAPI(t)
			if tt.setup != nil {
				tt.setup(mock)
			}
			client := newTestClient(t, mock.URL(), nil, func(c *Config) { c.MaxRetries = 0 })

			_, err := client.FetchPage(context.Background(), tt.tick, tt.page, nil)
			require.Error(t, err)
			tt.checkFn(t, err)
		})
	}
}

func TestFetchPage_ServedFromRedis(t *testing.T) {
	redisClient, _ := newMiniredis(t)
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.FetchPage(ctx, "KASPUNKS", 1, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, mock.PathCount(EndpointEntries))
	assert.Equal(t, 1, mock.PathCount(EndpointTick))
}

func TestListCollections(t *testing.T) {
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), nil)

	infos, err := client.ListCollections(context.Background())
	require.NoError(t, err)

	ticks := make([]string, len(infos))
	for i, info := range infos {
		ticks[i] = info.Tick
	}
	assert.Equal(t, []string{"GHOSTS", "KASPUNKS"}, ticks)
	assert.Equal(t, 25, infos[1].Max)
}

func TestTickInfo_ConcurrentCallsShareRequest(t *testing.T) {
	mock := newKatAPI(t)
	mock.SetHandler(EndpointTick, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"tick":"KASPUNKS","max":25}}`))
	})
	client := newTestClient(t, mock.URL(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := client.TickInfo(context.Background(), "KASPUNKS")
			assert.NoError(t, err)
			if info != nil {
				assert.Equal(t, 25, info.Max)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, mock.PathCount(EndpointTick))
}

func TestTickInfo_CallerCancelLeavesSharedRequest(t *testing.T) {
	mock := newKatAPI(t)
	mock.SetHandler(EndpointTick, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"result":{"tick":"KASPUNKS","max":25}}`))
	})
	client := newTestClient(t, mock.URL(), nil)

	impatient, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := client.TickInfo(context.Background(), "KASPUNKS")
		done <- err
	}()

	_, err := client.TickInfo(impatient, "KASPUNKS")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, <-done, "patient caller must not see the impatient caller's cancellation")
}

func TestTickInfo_LastCallerCancelReachesUpstream(t *testing.T) {
	mock := newKatAPI(t)
	var once sync.Once
	upstreamCancelled := make(chan struct{})
	mock.SetHandler(EndpointTick, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			once.Do(func() { close(upstreamCancelled) })
		case <-time.After(2 * time.Second):
			w.Write([]byte(`{"result":{"tick":"KASPUNKS","max":25}}`))
		}
	})
	client := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.TickInfo(ctx, "KASPUNKS")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-upstreamCancelled:
	case <-time.After(time.Second):
		t.Fatal("upstream request kept running after its only caller returned")
	}

	mock.ClearHandler(EndpointTick)
	info, err := client.TickInfo(context.Background(), "KASPUNKS")
	require.NoError(t, err, "a later caller must start a fresh request")
	assert.Equal(t, "KASPUNKS", info.Tick)
}

func TestFetchWindow(t *testing.T) {
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	// The mock serves 10-entry windows; a 5-entry page is cut from each.
	page, err := client.FetchWindow(ctx, "KASPUNKS", 2, 5, nil)
	require.NoError(t, err)

	ids := make([]collection.ItemID, len(page.Items))
	for i, item := range page.Items {
		ids[i] = item.ID
	}
	assert.Equal(t, []collection.ItemID{"6", "7", "8", "9", "10"}, ids)
	assert.Equal(t, collection.PageMeta{CurrentPage: 2, TotalPages: 5, PageSize: 5, TotalItems: 25, HasMorePages: true}, page.Meta)

	_, err = client.FetchWindow(ctx, "KASPUNKS", 1, 0, nil)
	assert.Error(t, err)
}

func TestWindowed_DrivesPaginator(t *testing.T) {
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	p := collection.New(client.Windowed(5))
	p.Initialize(ctx, "KASPUNKS")
	for i := 0; i < 10 && p.State().HasMore(); i++ {
		p.LoadMore(ctx)
	}

	state := p.State()
	assert.Equal(t, collection.Idle, state.FetchState)
	assert.Len(t, state.Items, 25)
	assert.Equal(t, 5, state.Pagination.TotalPages)
}

func TestClient_DrivesPaginator(t *testing.T) {
	mock := newKatAPI(t)
	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	p := collection.New(client)
	p.Initialize(ctx, "KASPUNKS")
	p.LoadMore(ctx)
	p.LoadMore(ctx)
	p.LoadMore(ctx)

	state := p.State()
	assert.Equal(t, collection.Idle, state.FetchState)
	assert.Len(t, state.Items, 25)
	assert.False(t, state.HasMore())

	p.SetFilter(ctx, "color", "red")
	state = p.State()
	assert.Len(t, state.Items, 5)
	assert.Equal(t, collection.Filters{"color": "red"}, state.Filters)
}
