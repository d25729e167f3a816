package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/katscan/pkg/cache"
	"github.com/Sternrassler/katscan/pkg/collection"
	"golang.org/x/sync/errgroup"
)

// KatAPI endpoints.
const (
	EndpointTick    = "/nfts/tick"
	EndpointEntries = "/nfts/entries"
	EndpointList    = "/nfts/list"
)

// envelope is the {"result": ...} wrapper every KatAPI response uses.
type envelope[T any] struct {
	Result *T `json:"result"`
}

var _ collection.PageDataSource = (*Client)(nil)

// FetchPage implements collection.PageDataSource with the configured page size.
func (c *Client) FetchPage(ctx context.Context, tick string, page int, filters collection.Filters) (collection.Page, error) {
	return c.FetchWindow(ctx, tick, page, c.config.PageSize, filters)
}

// Windowed returns a PageDataSource that pages tick entries in windows of
// pageSize instead of the configured size.
func (c *Client) Windowed(pageSize int) collection.PageDataSource {
	return collection.PageDataSourceFunc(func(ctx context.Context, tick string, page int, filters collection.Filters) (collection.Page, error) {
		return c.FetchWindow(ctx, tick, page, pageSize, filters)
	})
}

// FetchWindow fetches page of tick with offset (page-1)*pageSize. Tick info
// and the entries window are fetched concurrently; the window is cut to
// pageSize and filters are applied to it.
func (c *Client) FetchWindow(ctx context.Context, tick string, page, pageSize int, filters collection.Filters) (collection.Page, error) {
	if tick == "" {
		return collection.Page{}, fmt.Errorf("tick is required")
	}
	if page < 1 {
		return collection.Page{}, fmt.Errorf("invalid page %d", page)
	}
	if pageSize < 1 {
		return collection.Page{}, fmt.Errorf("invalid page size %d", pageSize)
	}

	var (
		info    *collection.Info
		entries []collection.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.TickInfo(gctx, tick)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = c.Entries(gctx, tick, (page-1)*pageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return collection.Page{}, err
	}

	if len(entries) > pageSize {
		entries = entries[:pageSize]
	}

	totalPages := (info.Max + pageSize - 1) / pageSize
	if info.Max < 0 {
		totalPages = -1
	}

	c.logger.Debug().
		Str("tick", tick).
		Int("page", page).
		Int("page_size", pageSize).
		Int("total_pages", totalPages).
		Int("entries", len(entries)).
		Msg("Fetched page")

	return collection.Page{
		Items: filters.Apply(entries),
		Meta: collection.PageMeta{
			CurrentPage:  page,
			TotalPages:   totalPages,
			PageSize:     pageSize,
			TotalItems:   info.Max,
			HasMorePages: page < totalPages,
		},
		Info: info,
	}, nil
}

// TickInfo returns the metadata of one collection.
func (c *Client) TickInfo(ctx context.Context, tick string) (*collection.Info, error) {
	var info collection.Info
	if err := c.getJSON(ctx, EndpointTick, url.Values{"tick": {tick}}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Entries returns the raw entries window starting at offset.
func (c *Client) Entries(ctx context.Context, tick string, offset int) ([]collection.Item, error) {
	var items []collection.Item
	query := url.Values{"tick": {tick}, "offset": {strconv.Itoa(offset)}}
	if err := c.getJSON(ctx, EndpointEntries, query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListCollections returns every collection KatAPI knows about.
func (c *Client) ListCollections(ctx context.Context) ([]collection.Info, error) {
	var infos []collection.Info
	if err := c.getJSON(ctx, EndpointList, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// getJSON GETs endpoint and decodes the envelope's result into out.
// Concurrent identical requests share one upstream call. The shared call
// outlives the cancellation of any single caller and is cancelled once the
// last caller waiting on it has returned.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	key := cache.CacheKey{Endpoint: endpoint, QueryParams: query}.String()

	call := c.joinCall(ctx, key)
	defer c.leaveCall(key, call)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetchBody(call.ctx, endpoint, query)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			sharedRequestsTotal.Inc()
		}
		if res.Err != nil {
			return res.Err
		}
		return decodeResult(res.Val.([]byte), endpoint, out)
	}
}

// sharedCall is the context of one collapsed upstream call and the number
// of callers waiting on it.
type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *Client) joinCall(ctx context.Context, key string) *sharedCall {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()

	call, ok := c.calls[key]
	if !ok {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &sharedCall{ctx: callCtx, cancel: cancel}
		c.calls[key] = call
	}
	call.waiters++
	return call
}

// leaveCall drops one waiter. The last one cancels the call and makes the
// group forget it, so a later caller starts a fresh request.
func (c *Client) leaveCall(key string, call *sharedCall) {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return
	}
	call.cancel()
	if c.calls[key] == call {
		delete(c.calls, key)
		c.group.Forget(key)
	}
}

func (c *Client) fetchBody(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	resp, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Class: ErrorClassNetwork, StatusCode: resp.StatusCode, Endpoint: endpoint, Message: "read body", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Class: ErrorClassMalformed, StatusCode: resp.StatusCode, Endpoint: endpoint, Message: "unexpected status"}
	}
	return body, nil
}

func decodeResult(body []byte, endpoint string, out any) error {
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		return &APIError{Class: ErrorClassMalformed, StatusCode: http.StatusOK, Endpoint: endpoint, Message: "decode envelope", Err: err}
	}
	if env.Result == nil || string(*env.Result) == "null" {
		errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		return &APIError{Class: ErrorClassMalformed, StatusCode: http.StatusOK, Endpoint: endpoint, Message: "missing result"}
	}
	if err := json.Unmarshal(*env.Result, out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		return &APIError{Class: ErrorClassMalformed, StatusCode: http.StatusOK, Endpoint: endpoint, Message: "decode result", Err: err}
	}
	return nil
}
